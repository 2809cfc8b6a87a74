// Package catalog wires the category and product resources.
package catalog

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/marketbase/internal/domain"
	"github.com/simp-lee/marketbase/internal/repository"
	"github.com/simp-lee/marketbase/internal/resource"
)

// Models returns the catalog tables in migration order.
func Models() []any {
	return []any{&domain.Category{}, &domain.Product{}}
}

// Module implements the app.Module interface for the catalog.
type Module struct {
	categories *resource.Handler[domain.Category, *domain.Category]
	products   *resource.Handler[domain.Product, *domain.Product]
	listing    *ListingHandler
}

// NewModule builds the catalog repositories and handlers on db.
func NewModule(db *gorm.DB, log *slog.Logger, opts repository.Options) (*Module, error) {
	if db == nil {
		return nil, errors.New("catalog.NewModule: db must not be nil")
	}

	categories, err := repository.New[domain.Category](db, log, opts)
	if err != nil {
		return nil, err
	}
	products, err := repository.New[domain.Product](db, log, opts)
	if err != nil {
		return nil, err
	}

	pageSize := opts.DefaultPageSize
	if pageSize <= 0 {
		pageSize = repository.DefaultPageSize
	}
	return &Module{
		categories: resource.NewHandler[domain.Category](categories, pageSize),
		products:   resource.NewHandler[domain.Product](products, pageSize),
		listing:    NewListingHandler(categories, products),
	}, nil
}

// RegisterRoutes mounts /categories and /products on api.
func (m *Module) RegisterRoutes(api *gin.RouterGroup) {
	cg := api.Group("/categories")
	m.categories.RegisterRoutes(cg)
	cg.GET("/:id/products", m.listing.ProductsInCategory)

	m.products.RegisterRoutes(api.Group("/products"))
}
