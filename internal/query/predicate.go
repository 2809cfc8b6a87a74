package query

import (
	"context"
	"log/slog"
	"reflect"
	"strconv"
	"unicode/utf8"

	"gorm.io/gorm/clause"

	"github.com/simp-lee/marketbase/internal/domain"
)

// Builder composes predicates and orderings for one entity type.
// It holds no mutable state and is safe for concurrent use.
type Builder struct {
	fields  *Registry
	dialect string
	logger  *slog.Logger
}

// NewBuilder returns a Builder over the given registry. dialect is the GORM
// dialector name ("sqlite", "postgres", ...); it selects how case-sensitive
// text operators are rendered.
func NewBuilder(fields *Registry, dialect string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{fields: fields, dialect: dialect, logger: logger}
}

// Registry returns the field registry the builder resolves names against.
func (b *Builder) Registry() *Registry { return b.fields }

// Filters ANDs together one condition per filter item. Items naming an
// unknown property, a Between without a second value, or a text operator on
// a non-text field are dropped with a warning. A value that cannot be converted to the field's type is an error.
// The returned expression is nil when no filter survives; applied counts the
// filters that made it into the expression.
func (b *Builder) Filters(ctx context.Context, items []domain.FilterItem) (expr clause.Expression, applied int, err error) {
	exprs := make([]clause.Expression, 0, len(items))
	for _, item := range items {
		f, ok := b.fields.Lookup(item.PropertyName)
		if !ok {
			b.logger.WarnContext(ctx, "filter skipped: unknown property",
				slog.String("entity", b.fields.Entity()),
				slog.String("property", item.PropertyName),
			)
			continue
		}
		if item.Operator == domain.OpBetween && item.SecondValue == nil {
			b.logger.WarnContext(ctx, "filter skipped: between requires a second value",
				slog.String("entity", b.fields.Entity()),
				slog.String("property", item.PropertyName),
			)
			continue
		}
		if isTextOperator(item.Operator) && f.Kind != KindText {
			b.logger.WarnContext(ctx, "filter skipped: operator requires a text field",
				slog.String("entity", b.fields.Entity()),
				slog.String("property", item.PropertyName),
				slog.String("operator", string(item.Operator)),
			)
			continue
		}

		e, err := b.condition(f, item)
		if err != nil {
			return nil, 0, err
		}
		exprs = append(exprs, e)
	}

	if len(exprs) == 0 {
		return nil, 0, nil
	}
	return clause.And(exprs...), len(exprs), nil
}

func (b *Builder) condition(f *Field, item domain.FilterItem) (clause.Expression, error) {
	col := column(f)

	switch item.Operator {
	case domain.OpIsNull:
		return clause.Eq{Column: col, Value: nil}, nil
	case domain.OpIsNotNull:
		return clause.Neq{Column: col, Value: nil}, nil

	case domain.OpEquals, domain.OpNotEquals:
		v, err := coerceFilter(f, item.Value)
		if err != nil {
			return nil, err
		}
		if item.Operator == domain.OpEquals {
			return clause.Eq{Column: col, Value: v}, nil
		}
		return clause.Neq{Column: col, Value: v}, nil

	case domain.OpContains, domain.OpStartsWith, domain.OpEndsWith:
		v, err := coerceFilter(f, item.Value)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, domain.InvalidFilter(f.Name, string(item.Operator)+" requires a value", nil)
		}
		return b.textMatch(col, item.Operator, textValue(v)), nil

	case domain.OpGreaterThan, domain.OpLessThan, domain.OpGreaterThanOrEqual, domain.OpLessThanOrEqual:
		v, err := b.orderedValue(f, item.Operator, item.Value)
		if err != nil {
			return nil, err
		}
		switch item.Operator {
		case domain.OpGreaterThan:
			return clause.Gt{Column: col, Value: v}, nil
		case domain.OpLessThan:
			return clause.Lt{Column: col, Value: v}, nil
		case domain.OpGreaterThanOrEqual:
			return clause.Gte{Column: col, Value: v}, nil
		default:
			return clause.Lte{Column: col, Value: v}, nil
		}

	case domain.OpBetween:
		lo, err := b.orderedValue(f, item.Operator, item.Value)
		if err != nil {
			return nil, err
		}
		hi, err := b.orderedValue(f, item.Operator, item.SecondValue)
		if err != nil {
			return nil, err
		}
		// Bounds are not reordered: an inverted range matches nothing.
		return clause.And(clause.Gte{Column: col, Value: lo}, clause.Lte{Column: col, Value: hi}), nil
	}

	return nil, domain.InvalidFilter(f.Name, "unknown operator "+strconv.Quote(string(item.Operator)), nil)
}

func isTextOperator(op domain.FilterOperator) bool {
	return op == domain.OpContains || op == domain.OpStartsWith || op == domain.OpEndsWith
}

func (b *Builder) orderedValue(f *Field, op domain.FilterOperator, raw any) (any, error) {
	if !f.Ordered() {
		return nil, domain.InvalidFilter(f.Name, string(op)+" requires a numeric or date field", nil)
	}
	v, err := coerceFilter(f, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domain.InvalidFilter(f.Name, string(op)+" requires a value", nil)
	}
	return v, nil
}

// textMatch renders a case-sensitive substring test. SQLite's LIKE ignores
// ASCII case, so dedicated string functions are used where available.
func (b *Builder) textMatch(col clause.Column, op domain.FilterOperator, s string) clause.Expression {
	if s == "" {
		return clause.Neq{Column: col, Value: nil}
	}
	n := strconv.Itoa(utf8.RuneCountInString(s))

	switch b.dialect {
	case "sqlite":
		switch op {
		case domain.OpContains:
			return clause.Expr{SQL: "instr(?, ?) > 0", Vars: []any{col, s}}
		case domain.OpStartsWith:
			return clause.Expr{SQL: "substr(?, 1, " + n + ") = ?", Vars: []any{col, s}}
		default:
			return clause.Expr{SQL: "substr(?, -" + n + ") = ?", Vars: []any{col, s}}
		}
	case "postgres":
		switch op {
		case domain.OpContains:
			return clause.Expr{SQL: "strpos(?, ?) > 0", Vars: []any{col, s}}
		case domain.OpStartsWith:
			return clause.Expr{SQL: "left(?, " + n + ") = ?", Vars: []any{col, s}}
		default:
			return clause.Expr{SQL: "right(?, " + n + ") = ?", Vars: []any{col, s}}
		}
	}

	pattern := escapeLike(s)
	switch op {
	case domain.OpContains:
		pattern = "%" + pattern + "%"
	case domain.OpStartsWith:
		pattern += "%"
	default:
		pattern = "%" + pattern
	}
	return clause.Expr{SQL: `? LIKE ? ESCAPE '\'`, Vars: []any{col, pattern}}
}

func coerceFilter(f *Field, raw any) (any, error) {
	v, err := Coerce(f, raw)
	if err != nil {
		return nil, domain.InvalidFilter(f.Name, "value is not a valid "+f.Kind.String(), err)
	}
	return v, nil
}

// textValue also unwraps named string types.
func textValue(v any) string {
	return reflect.ValueOf(v).String()
}

func column(f *Field) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: f.Column}
}

// NotDeleted is the soft-delete exclusion applied to every read path.
func (b *Builder) NotDeleted() clause.Expression {
	return clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: b.fields.Column("IsDeleted")}, Value: false}
}
