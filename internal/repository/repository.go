// Package repository provides the generic GORM-backed implementation of
// domain.Repository.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/simp-lee/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/marketbase/internal/domain"
	"github.com/simp-lee/marketbase/internal/pkg"
	"github.com/simp-lee/marketbase/internal/query"
)

// Model constrains P to *T where T embeds domain.BaseEntity.
type Model[T any] interface {
	*T
	domain.Entity
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Options tune paging. Zero values select the package defaults.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Fields the repository stamps itself; Update and PartialUpdate never write them
// from caller input.
var protectedFields = map[string]bool{
	"ID":        true,
	"CreatedAt": true,
	"UpdatedAt": true,
	"IsDeleted": true,
	"Version":   true,
}

// Repository implements domain.Repository[T] on top of GORM.
// It holds only immutable state and is safe for concurrent use.
type Repository[T any, P Model[T]] struct {
	db        *gorm.DB
	logger    *slog.Logger
	fields    *query.Registry
	build     *query.Builder
	opts      Options
	versioned bool
	now       func() time.Time

	idColumn, createdColumn, updatedColumn, deletedColumn, versionColumn string
}

// New creates a repository for T. The field registry of T is built on first
// use and shared by every repository of the same type.
func New[T any, P Model[T]](db *gorm.DB, logger *slog.Logger, opts Options) (*Repository[T, P], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}

	fields, err := query.RegistryFor(new(T), db.NamingStrategy)
	if err != nil {
		return nil, err
	}

	r := &Repository[T, P]{
		db:            db,
		logger:        logger,
		fields:        fields,
		build:         query.NewBuilder(fields, db.Dialector.Name(), logger),
		opts:          opts,
		now:           func() time.Time { return time.Now().UTC() },
		idColumn:      fields.Column("ID"),
		createdColumn: fields.Column("CreatedAt"),
		updatedColumn: fields.Column("UpdatedAt"),
		deletedColumn: fields.Column("IsDeleted"),
		versionColumn: fields.Column("Version"),
	}
	if r.idColumn == "" || r.createdColumn == "" || r.updatedColumn == "" || r.deletedColumn == "" {
		return nil, fmt.Errorf("repository: %s does not map the base entity columns", fields.Entity())
	}
	_, r.versioned = any(new(T)).(domain.Versioned)
	r.versioned = r.versioned && r.versionColumn != ""

	return r, nil
}

// Builder exposes the query builder bound to T.
func (r *Repository[T, P]) Builder() *query.Builder { return r.build }

// --- reads ---

// GetByID returns the entity with the given id, or nil when there is none.
func (r *Repository[T, P]) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool, include ...string) (*T, error) {
	var entity T
	err := r.preload(ctx, r.scope(ctx, includeDeleted, r.idEq(id)), include).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &entity, nil
}

// ListAll returns every entity, newest first.
func (r *Repository[T, P]) ListAll(ctx context.Context, includeDeleted bool) ([]T, error) {
	return r.GetAllWithPredicate(ctx, nil, includeDeleted)
}

// GetAllWithPredicate returns every entity matching predicate, newest first.
// A nil predicate matches everything.
func (r *Repository[T, P]) GetAllWithPredicate(ctx context.Context, predicate domain.Predicate, includeDeleted bool, include ...string) ([]T, error) {
	var items []T
	tx := r.preload(ctx, r.scope(ctx, includeDeleted, predicate), include)
	if err := r.ordered(tx, r.build.DefaultOrder()).Find(&items).Error; err != nil {
		return nil, mapError(err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// GetPaged returns one page of the entities matching opts.Predicate.
func (r *Repository[T, P]) GetPaged(ctx context.Context, opts domain.PageOptions) (*domain.PagedResult[T], error) {
	order := r.build.Order(ctx, opts.OrderBy, opts.Ascending)
	return r.page(ctx, []clause.Expression{opts.Predicate}, opts.IncludeDeleted, opts.Include, order, opts.PageNumber, opts.PageSize)
}

// SmartSearch applies the free-text term, the structured filters, the
// soft-delete rule and the ordering of req, then pages the result.
func (r *Repository[T, P]) SmartSearch(ctx context.Context, req domain.SmartSearchRequest) (*domain.PagedResult[T], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	filters, applied, err := r.build.Filters(ctx, req.Filters)
	if err != nil {
		return nil, err
	}
	text := r.build.Text(req.SearchTerm)
	order := r.build.Order(ctx, req.OrderBy, req.Ascending)

	result, err := r.page(ctx, []clause.Expression{text, filters}, req.IncludeDeleted, req.IncludeProperties, order, req.PageNumber, req.PageSize)
	if err != nil {
		return nil, err
	}
	result.Metadata["searchTerm"] = req.SearchTerm
	result.Metadata["filtersApplied"] = applied
	result.Metadata["filtersRequested"] = len(req.Filters)
	return result, nil
}

// Count returns the number of entities matching predicate.
func (r *Repository[T, P]) Count(ctx context.Context, predicate domain.Predicate, includeDeleted bool) (int64, error) {
	var total int64
	if err := r.scope(ctx, includeDeleted, predicate).Count(&total).Error; err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

// Exists reports whether at least one entity matches predicate.
func (r *Repository[T, P]) Exists(ctx context.Context, predicate domain.Predicate, includeDeleted bool) (bool, error) {
	var ids []uuid.UUID
	if err := r.scope(ctx, includeDeleted, predicate).Limit(1).Pluck(r.idColumn, &ids).Error; err != nil {
		return false, mapError(err)
	}
	return len(ids) > 0, nil
}

// --- writes ---

// Add stamps and inserts entity. A caller-supplied id is kept; an empty one
// is generated.
func (r *Repository[T, P]) Add(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, domain.NewAppError(domain.CodeValidation, "entity is required", nil)
	}
	r.stampNew(entity, r.now())
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return nil, mapError(err)
	}
	return entity, nil
}

// AddRange stamps every entity like Add and inserts them in one statement.
func (r *Repository[T, P]) AddRange(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	now := r.now()
	for i, e := range entities {
		if e == nil {
			return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("entity %d is nil", i), nil)
		}
		r.stampNew(e, now)
	}
	if err := r.db.WithContext(ctx).Create(entities).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Update writes every non-protected field of entity to the stored row with
// the same id. The id, creation time and deletion flag of the stored row are
// kept and copied back into entity once the transaction has committed.
func (r *Repository[T, P]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return domain.NewAppError(domain.CodeValidation, "entity is required", nil)
	}
	id := P(entity).GetBase().ID
	now := r.now()

	values := r.columnValues(entity)
	values[r.updatedColumn] = now

	var (
		stored  T
		version int64
	)
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Clauses(r.where(r.idEq(id))).Take(&stored).Error; err != nil {
			return mapError(err)
		}
		if r.versioned {
			version = any(entity).(domain.Versioned).GetVersion()
		}
		return r.write(tx, id, version, values)
	})
	if err != nil {
		return err
	}

	base := P(entity).GetBase()
	*base = *P(&stored).GetBase()
	base.UpdatedAt = &now
	if r.versioned {
		any(entity).(domain.Versioned).SetVersion(version + 1)
	}
	return nil
}

// PartialUpdate writes the named fields of the entity with the given id and
// returns the stored result. Keys may be Go field, JSON or column names;
// unknown or protected keys are skipped with a warning. Values are converted
// to the field type, and a value that does not convert is a validation error.
func (r *Repository[T, P]) PartialUpdate(ctx context.Context, id uuid.UUID, fields map[string]any) (*T, error) {
	values := make(map[string]any, len(fields)+2)
	for name, raw := range fields {
		f, ok := r.fields.Lookup(name)
		if !ok || protectedFields[f.Name] || !f.Updatable {
			r.logger.WarnContext(ctx, "partial update skipped field",
				slog.String("entity", r.fields.Entity()),
				slog.String("property", name),
			)
			continue
		}
		v, err := query.Coerce(f, raw)
		if err != nil {
			return nil, domain.NewAppError(domain.CodeValidation, "invalid value for "+f.Name, err)
		}
		if v == nil && !f.Nullable {
			return nil, domain.NewAppError(domain.CodeValidation, f.Name+" cannot be null", nil)
		}
		values[f.Column] = v
	}
	values[r.updatedColumn] = r.now()

	var stored T
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Clauses(r.where(r.idEq(id))).Take(&stored).Error; err != nil {
			return mapError(err)
		}
		var version int64
		if r.versioned {
			version = any(&stored).(domain.Versioned).GetVersion()
		}
		if err := r.write(tx, id, version, values); err != nil {
			return err
		}
		stored = *new(T)
		return mapError(tx.Clauses(r.where(r.idEq(id))).Take(&stored).Error)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Delete permanently removes the entity with the given id. A missing id is
// a no-op.
func (r *Repository[T, P]) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Clauses(r.where(r.idEq(id))).Delete(new(T))
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		r.warnMissing(ctx, "delete", id)
	}
	return nil
}

// DeleteEntity permanently removes entity.
func (r *Repository[T, P]) DeleteEntity(ctx context.Context, entity *T) error {
	if entity == nil {
		return domain.NewAppError(domain.CodeValidation, "entity is required", nil)
	}
	return r.Delete(ctx, P(entity).GetBase().ID)
}

// SoftDelete flags the entity with the given id as deleted. A missing or
// already deleted entity is a no-op.
func (r *Repository[T, P]) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.setDeleted(ctx, id, true)
	return err
}

// SoftDeleteEntity flags entity as deleted and updates it in place.
func (r *Repository[T, P]) SoftDeleteEntity(ctx context.Context, entity *T) error {
	if entity == nil {
		return domain.NewAppError(domain.CodeValidation, "entity is required", nil)
	}
	base := P(entity).GetBase()
	now, err := r.setDeleted(ctx, base.ID, true)
	if err != nil || now == nil {
		return err
	}
	base.IsDeleted = true
	base.UpdatedAt = now
	return nil
}

// Restore clears the deletion flag of the entity with the given id. An
// entity that is missing or not deleted is left alone.
func (r *Repository[T, P]) Restore(ctx context.Context, id uuid.UUID) error {
	_, err := r.setDeleted(ctx, id, false)
	return err
}

// DeleteRange soft or hard deletes entities in one transaction.
func (r *Repository[T, P]) DeleteRange(ctx context.Context, entities []*T, softDelete bool) error {
	ids := make([]any, 0, len(entities))
	for _, e := range entities {
		if e != nil {
			ids = append(ids, P(e).GetBase().ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	in := clause.IN{Column: r.col(r.idColumn), Values: ids}
	now := r.now()

	var (
		affected int64
		live     []uuid.UUID
	)
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var res *gorm.DB
		if softDelete {
			w := r.where(in, clause.Eq{Column: r.col(r.deletedColumn), Value: false})
			if err := tx.Model(new(T)).Clauses(w).Pluck(r.idColumn, &live).Error; err != nil {
				return mapError(err)
			}
			if len(live) == 0 {
				return nil
			}
			res = tx.Model(new(T)).Clauses(w).
				Updates(map[string]any{r.deletedColumn: true, r.updatedColumn: now})
		} else {
			res = tx.Clauses(r.where(in)).Delete(new(T))
		}
		affected = res.RowsAffected
		return mapError(res.Error)
	})
	if err != nil {
		return err
	}

	if affected < int64(len(ids)) {
		r.logger.WarnContext(ctx, "delete range: some records were missing or already deleted",
			slog.String("entity", r.fields.Entity()),
			slog.Int("requested", len(ids)),
			slog.Int64("affected", affected),
		)
	}
	if softDelete {
		// Only rows that were live before the update are stamped.
		updated := make(map[uuid.UUID]bool, len(live))
		for _, id := range live {
			updated[id] = true
		}
		for _, e := range entities {
			if e == nil {
				continue
			}
			if base := P(e).GetBase(); updated[base.ID] {
				base.IsDeleted = true
				base.UpdatedAt = &now
			}
		}
	}
	return nil
}

// --- helpers ---

func (r *Repository[T, P]) stampNew(entity *T, now time.Time) {
	base := P(entity).GetBase()
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	base.CreatedAt = now
	base.UpdatedAt = nil
	base.IsDeleted = false
	if v, ok := any(entity).(domain.Versioned); ok && r.versioned {
		v.SetVersion(1)
	}
}

// write issues the UPDATE for id. Versioned entities are matched on their
// current version, which is then bumped; no matching row means another
// writer got there first.
func (r *Repository[T, P]) write(tx *gorm.DB, id uuid.UUID, version int64, values map[string]any) error {
	conds := []clause.Expression{r.idEq(id)}
	if r.versioned {
		conds = append(conds, clause.Eq{Column: r.col(r.versionColumn), Value: version})
		values[r.versionColumn] = version + 1
	}
	res := tx.Model(new(T)).Clauses(r.where(conds...)).Updates(values)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// setDeleted flips the deletion flag when it differs from deleted and
// returns the stamp it wrote, or nil when nothing changed.
func (r *Repository[T, P]) setDeleted(ctx context.Context, id uuid.UUID, deleted bool) (*time.Time, error) {
	now := r.now()
	res := r.db.WithContext(ctx).Model(new(T)).
		Clauses(r.where(r.idEq(id), clause.Eq{Column: r.col(r.deletedColumn), Value: !deleted})).
		Updates(map[string]any{r.deletedColumn: deleted, r.updatedColumn: now})
	if res.Error != nil {
		return nil, mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		op := "soft delete"
		if !deleted {
			op = "restore"
		}
		r.warnMissing(ctx, op, id)
		return nil, nil
	}
	return &now, nil
}

// columnValues reads every writable, non-protected field of entity keyed by column.
func (r *Repository[T, P]) columnValues(entity *T) map[string]any {
	rv := reflect.ValueOf(entity).Elem()
	values := make(map[string]any)
	for _, f := range r.fields.Fields() {
		if protectedFields[f.Name] || !f.Updatable {
			continue
		}
		fv := rv.FieldByName(f.Name)
		if !fv.IsValid() {
			continue
		}
		values[f.Column] = fv.Interface()
	}
	return values
}

func (r *Repository[T, P]) page(ctx context.Context, preds []clause.Expression, includeDeleted bool, include []string, order clause.OrderByColumn, pageNumber, pageSize int) (*domain.PagedResult[T], error) {
	pageNumber, pageSize = r.pageBounds(ctx, pageNumber, pageSize)

	var total int64
	if err := r.scope(ctx, includeDeleted, preds...).Count(&total).Error; err != nil {
		return nil, mapError(err)
	}
	// The paginator moves a page past the end back to the last page; such a
	// request gets an empty page instead.
	if total == 0 || int64(pageNumber-1)*int64(pageSize) >= total {
		return domain.NewPagedResult[T](nil, total, pageNumber, pageSize), nil
	}

	p, err := pagination.NewPaginator(
		pagination.WithItemsPerPage[T](pageSize),
		pagination.WithKnownTotal[T](total),
		pagination.WithSliceCallback(func(ctx context.Context, offset, limit int) ([]T, error) {
			var items []T
			tx := r.preload(ctx, r.scope(ctx, includeDeleted, preds...), include)
			if err := r.ordered(tx, order).Offset(offset).Limit(limit).Find(&items).Error; err != nil {
				return nil, mapError(err)
			}
			return items, nil
		}),
	).Paginate(ctx, pageNumber)
	if err != nil {
		return nil, mapError(err)
	}
	return domain.PagedResultFrom(p), nil
}

func (r *Repository[T, P]) pageBounds(ctx context.Context, pageNumber, pageSize int) (int, int) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = r.opts.DefaultPageSize
	}
	if pageSize > r.opts.MaxPageSize {
		r.logger.WarnContext(ctx, "page size clamped",
			slog.String("entity", r.fields.Entity()),
			slog.Int("requested", pageSize),
			slog.Int("max", r.opts.MaxPageSize),
		)
		pageSize = r.opts.MaxPageSize
	}
	return pageNumber, pageSize
}

// scope starts a query over T with preds and the soft-delete rule applied.
func (r *Repository[T, P]) scope(ctx context.Context, includeDeleted bool, preds ...clause.Expression) *gorm.DB {
	if !includeDeleted {
		preds = append(preds, r.build.NotDeleted())
	}
	tx := r.db.WithContext(ctx).Model(new(T))
	if w, ok := query.Where(preds...); ok {
		tx = tx.Clauses(w)
	}
	return tx
}

func (r *Repository[T, P]) preload(ctx context.Context, tx *gorm.DB, include []string) *gorm.DB {
	for _, name := range include {
		rel, ok := r.fields.Relation(name)
		if !ok {
			r.logger.WarnContext(ctx, "include skipped: unknown relation",
				slog.String("entity", r.fields.Entity()),
				slog.String("property", name),
			)
			continue
		}
		tx = tx.Preload(rel)
	}
	return tx
}

// ordered applies order with the id as a tiebreak so that paging is stable.
func (r *Repository[T, P]) ordered(tx *gorm.DB, order clause.OrderByColumn) *gorm.DB {
	tx = tx.Order(order)
	if order.Column.Name != r.idColumn {
		tx = tx.Order(clause.OrderByColumn{Column: r.col(r.idColumn), Desc: order.Desc})
	}
	return tx
}

func (r *Repository[T, P]) where(exprs ...clause.Expression) clause.Where {
	w, _ := query.Where(exprs...)
	return w
}

func (r *Repository[T, P]) idEq(id uuid.UUID) clause.Expression {
	return clause.Eq{Column: r.col(r.idColumn), Value: id}
}

func (r *Repository[T, P]) col(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

func (r *Repository[T, P]) warnMissing(ctx context.Context, op string, id uuid.UUID) {
	r.logger.WarnContext(ctx, op+" skipped: no matching record",
		slog.String("entity", r.fields.Entity()),
		slog.String("id", id.String()),
	)
}
