package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// Predicate is a structured condition built by programmatic callers,
// e.g. clause.Eq{Column: "sku", Value: "A-1"} or gorm.Expr("price > ?", 10).
// A nil Predicate matches everything.
type Predicate = clause.Expression

// PageOptions are the arguments of a paged read.
type PageOptions struct {
	PageNumber     int
	PageSize       int
	Predicate      Predicate
	OrderBy        string
	Ascending      bool
	IncludeDeleted bool
	Include        []string
}

// Repository is the generic data access contract shared by every entity type.
// Read paths exclude soft-deleted records unless includeDeleted is set.
type Repository[T any] interface {
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool, include ...string) (*T, error)
	ListAll(ctx context.Context, includeDeleted bool) ([]T, error)
	GetAllWithPredicate(ctx context.Context, predicate Predicate, includeDeleted bool, include ...string) ([]T, error)
	GetPaged(ctx context.Context, opts PageOptions) (*PagedResult[T], error)
	SmartSearch(ctx context.Context, req SmartSearchRequest) (*PagedResult[T], error)

	Add(ctx context.Context, entity *T) (*T, error)
	AddRange(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	PartialUpdate(ctx context.Context, id uuid.UUID, fields map[string]any) (*T, error)

	Delete(ctx context.Context, id uuid.UUID) error
	DeleteEntity(ctx context.Context, entity *T) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	SoftDeleteEntity(ctx context.Context, entity *T) error
	Restore(ctx context.Context, id uuid.UUID) error
	DeleteRange(ctx context.Context, entities []*T, softDelete bool) error

	Count(ctx context.Context, predicate Predicate, includeDeleted bool) (int64, error)
	Exists(ctx context.Context, predicate Predicate, includeDeleted bool) (bool, error)
}
