package catalog

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/marketbase/internal/domain"
	"github.com/simp-lee/marketbase/internal/pkg"
)

// ListingHandler serves catalog reads that span both resources.
type ListingHandler struct {
	categories domain.Repository[domain.Category]
	products   domain.Repository[domain.Product]
}

// NewListingHandler creates a ListingHandler. Panics if a repository is nil.
func NewListingHandler(categories domain.Repository[domain.Category], products domain.Repository[domain.Product]) *ListingHandler {
	if categories == nil || products == nil {
		panic("catalog.NewListingHandler: repositories must not be nil")
	}
	return &ListingHandler{categories: categories, products: products}
}

// ProductsInCategory handles GET /categories/:id/products. Only active
// products are listed unless ?all=true.
func (h *ListingHandler) ProductsInCategory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "invalid id", err))
		return
	}

	ctx := c.Request.Context()
	exists, err := h.categories.Exists(ctx, clause.Eq{Column: clause.Column{Name: "id"}, Value: id}, false)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	if !exists {
		pkg.Error(c, domain.ErrNotFound)
		return
	}

	var pred domain.Predicate = clause.Eq{Column: clause.Column{Name: "category_id"}, Value: id}
	if !pkg.QueryBool(c, "all") {
		pred = clause.And(pred, clause.Eq{Column: clause.Column{Name: "is_active"}, Value: true})
	}
	items, err := h.products.GetAllWithPredicate(ctx, pred, false)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, items)
}
