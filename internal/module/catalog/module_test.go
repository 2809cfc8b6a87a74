package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simp-lee/marketbase/internal/domain"
	"github.com/simp-lee/marketbase/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestModuleRegisterRoutes(t *testing.T) {
	mod, err := NewModule(setupTestDB(t), nil, repository.Options{})
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	r := gin.New()
	mod.RegisterRoutes(r.Group("/api/v1"))

	expected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/categories"},
		{http.MethodPost, "/api/v1/categories"},
		{http.MethodGet, "/api/v1/categories/:id"},
		{http.MethodGet, "/api/v1/categories/:id/products"},
		{http.MethodGet, "/api/v1/products"},
		{http.MethodPost, "/api/v1/products"},
		{http.MethodPost, "/api/v1/products/search"},
		{http.MethodGet, "/api/v1/products/count"},
		{http.MethodGet, "/api/v1/products/:id"},
		{http.MethodPut, "/api/v1/products/:id"},
		{http.MethodPatch, "/api/v1/products/:id"},
		{http.MethodDelete, "/api/v1/products/:id"},
		{http.MethodPost, "/api/v1/products/:id/restore"},
	}

	registered := make(map[string]bool)
	for _, ri := range r.Routes() {
		registered[ri.Method+":"+ri.Path] = true
	}
	for _, exp := range expected {
		if !registered[exp.method+":"+exp.path] {
			t.Errorf("expected route %s %s to be registered", exp.method, exp.path)
		}
	}
}

func TestNewModule_NilDB(t *testing.T) {
	if _, err := NewModule(nil, nil, repository.Options{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestNewListingHandler_PanicsOnNilRepository(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil repositories")
		}
	}()
	_ = NewListingHandler(nil, nil)
}

func TestProductsInCategory(t *testing.T) {
	db := setupTestDB(t)
	mod, err := NewModule(db, nil, repository.Options{})
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	r := gin.New()
	mod.RegisterRoutes(r.Group("/api/v1"))

	ctx := context.Background()
	categories, _ := repository.New[domain.Category](db, nil, repository.Options{})
	products, _ := repository.New[domain.Product](db, nil, repository.Options{})

	kitchen, err := categories.Add(ctx, &domain.Category{Name: "Kitchen", Slug: "kitchen"})
	if err != nil {
		t.Fatalf("Add category: %v", err)
	}
	garden, err := categories.Add(ctx, &domain.Category{Name: "Garden", Slug: "garden"})
	if err != nil {
		t.Fatalf("Add category: %v", err)
	}
	for _, p := range []domain.Product{
		{Name: "Kettle", SKU: "K-1", Currency: "EUR", IsActive: true, CategoryID: &kitchen.ID},
		{Name: "Toaster", SKU: "K-2", Currency: "EUR", IsActive: false, CategoryID: &kitchen.ID},
		{Name: "Rake", SKU: "G-1", Currency: "EUR", IsActive: true, CategoryID: &garden.ID},
	} {
		if _, err := products.Add(ctx, &p); err != nil {
			t.Fatalf("Add product: %v", err)
		}
	}

	get := func(path string) (int, []domain.Product) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var resp struct {
			Data []domain.Product `json:"data"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		return w.Code, resp.Data
	}

	base := "/api/v1/categories/" + kitchen.ID.String() + "/products"
	code, items := get(base)
	if code != http.StatusOK || len(items) != 1 || items[0].Name != "Kettle" {
		t.Errorf("active listing = %d %+v", code, items)
	}
	if code, items = get(base + "?all=true"); code != http.StatusOK || len(items) != 2 {
		t.Errorf("full listing = %d, %d items; want 2", code, len(items))
	}

	if code, _ = get("/api/v1/categories/" + uuid.NewString() + "/products"); code != http.StatusNotFound {
		t.Errorf("missing category status = %d; want 404", code)
	}
	if code, _ = get("/api/v1/categories/nope/products"); code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d; want 400", code)
	}
}
