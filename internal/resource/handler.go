// Package resource exposes a domain.Repository over a REST API.
package resource

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/simp-lee/marketbase/internal/domain"
	"github.com/simp-lee/marketbase/internal/pkg"
	"github.com/simp-lee/marketbase/internal/repository"
)

// Handler serves the CRUD and search endpoints of one entity type.
type Handler[T any, P repository.Model[T]] struct {
	repo     domain.Repository[T]
	pageSize int
}

// NewHandler creates a Handler over repo. pageSize is the page size used when
// a list request does not ask for one.
func NewHandler[T any, P repository.Model[T]](repo domain.Repository[T], pageSize int) *Handler[T, P] {
	if repo == nil {
		panic("resource.NewHandler: repository must not be nil")
	}
	return &Handler[T, P]{repo: repo, pageSize: pageSize}
}

// RegisterRoutes mounts the endpoints on g, e.g. /api/v1/products.
func (h *Handler[T, P]) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/search", h.Search)
	g.GET("/count", h.Count)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/restore", h.Restore)
}

// Get handles GET /:id?include=a,b&include_deleted=true.
func (h *Handler[T, P]) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entity, err := h.repo.GetByID(c.Request.Context(), id,
		pkg.QueryBool(c, "include_deleted"), pkg.SplitList(c.Query("include"))...)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	if entity == nil {
		pkg.Error(c, domain.ErrNotFound)
		return
	}
	pkg.Success(c, entity)
}

// List handles GET / with the query-string form of a smart search.
func (h *Handler[T, P]) List(c *gin.Context) {
	req, err := pkg.ParseSearchRequest(c, h.pageSize)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	h.search(c, req)
}

// Search handles POST /search with a JSON smart search request.
func (h *Handler[T, P]) Search(c *gin.Context) {
	req := domain.SmartSearchRequest{PageNumber: 1, PageSize: h.pageSize}
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	h.search(c, req)
}

func (h *Handler[T, P]) search(c *gin.Context, req domain.SmartSearchRequest) {
	result, err := h.repo.SmartSearch(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, result)
}

// Count handles GET /count?include_deleted=true.
func (h *Handler[T, P]) Count(c *gin.Context) {
	n, err := h.repo.Count(c.Request.Context(), nil, pkg.QueryBool(c, "include_deleted"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, gin.H{"count": n})
}

// Create handles POST /.
func (h *Handler[T, P]) Create(c *gin.Context) {
	var entity T
	if !pkg.BindAndValidate(c, &entity) {
		return
	}

	created, err := h.repo.Add(c.Request.Context(), &entity)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, created)
}

// Update handles PUT /:id. The id in the path wins over one in the body.
func (h *Handler[T, P]) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var entity T
	if !pkg.BindAndValidate(c, &entity) {
		return
	}
	P(&entity).GetBase().ID = id

	if err := h.repo.Update(c.Request.Context(), &entity); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, &entity)
}

// Patch handles PATCH /:id with a JSON object of field names to values.
func (h *Handler[T, P]) Patch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil || len(fields) == 0 {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "body must be a non-empty JSON object", err))
		return
	}

	entity, err := h.repo.PartialUpdate(c.Request.Context(), id, fields)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, entity)
}

// Delete handles DELETE /:id. Records are soft deleted unless ?soft=false.
func (h *Handler[T, P]) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	soft := true
	if v, set := c.GetQuery("soft"); set {
		b, err := strconv.ParseBool(v)
		if err != nil {
			pkg.Error(c, domain.NewAppError(domain.CodeValidation, "soft must be true or false", err))
			return
		}
		soft = b
	}

	var err error
	if soft {
		err = h.repo.SoftDelete(c.Request.Context(), id)
	} else {
		err = h.repo.Delete(c.Request.Context(), id)
	}
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// Restore handles POST /:id/restore.
func (h *Handler[T, P]) Restore(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.repo.Restore(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// parseID reads the :id path parameter and writes a 400 response when it is
// not a UUID.
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err == nil && id == uuid.Nil {
		err = errors.New("nil uuid")
	}
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "invalid id", err))
		return uuid.Nil, false
	}
	return id, true
}
