package pkg

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/marketbase/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testInput is used to generate real validator.ValidationErrors.
type testInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// newResponseTestContext creates a gin context backed by an httptest.ResponseRecorder.
func newResponseTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

// newResponseTestContextWithBody creates a gin context with a JSON request body.
func newResponseTestContextWithBody(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

// makeValidationErrors validates an empty testInput and returns the resulting
// validator.ValidationErrors.
func makeValidationErrors(t *testing.T) validator.ValidationErrors {
	t.Helper()
	validate := validator.New()
	err := validate.Struct(testInput{})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("expected validator.ValidationErrors, got %T", err)
	}
	return ve
}

func TestSuccess(t *testing.T) {
	c, w := newResponseTestContext()

	data := map[string]string{"greeting": "hello"}
	Success(c, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Errorf("expected code %d, got %d", http.StatusOK, resp.Code)
	}
	if resp.Message != "success" {
		t.Errorf("expected message %q, got %q", "success", resp.Message)
	}
	if resp.Data == nil {
		t.Error("expected non-nil data")
	}
}

func TestSuccess_NilData(t *testing.T) {
	c, w := newResponseTestContext()

	Success(c, nil)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Errorf("expected code %d, got %d", http.StatusOK, resp.Code)
	}
	if resp.Data != nil {
		t.Errorf("expected nil data, got %v", resp.Data)
	}
}

func TestError_AppError_NotFound(t *testing.T) {
	c, w := newResponseTestContext()

	appErr := domain.NewAppError(domain.CodeNotFound, "product not found", nil)
	Error(c, appErr)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected code %d, got %d", http.StatusNotFound, resp.Code)
	}
	if resp.Message != "product not found" {
		t.Errorf("expected message %q, got %q", "product not found", resp.Message)
	}
	if resp.Data != nil {
		t.Errorf("expected nil data, got %v", resp.Data)
	}
}

func TestError_AppError_AlreadyExists(t *testing.T) {
	c, w := newResponseTestContext()

	appErr := domain.NewAppError(domain.CodeAlreadyExists, "sku taken", nil)
	Error(c, appErr)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusConflict {
		t.Errorf("expected code %d, got %d", http.StatusConflict, resp.Code)
	}
	if resp.Message != "sku taken" {
		t.Errorf("expected message %q, got %q", "sku taken", resp.Message)
	}
}

func TestError_AppError_Validation(t *testing.T) {
	c, w := newResponseTestContext()

	appErr := domain.NewAppError(domain.CodeValidation, "bad input", nil)
	Error(c, appErr)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestError_GenericError(t *testing.T) {
	c, w := newResponseTestContext()

	Error(c, errors.New("something broke"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusInternalServerError {
		t.Errorf("expected code %d, got %d", http.StatusInternalServerError, resp.Code)
	}
	if resp.Message != "internal error" {
		t.Errorf("expected message %q, got %q", "internal error", resp.Message)
	}
}

func TestCreated(t *testing.T) {
	c, w := newResponseTestContext()

	Created(c, map[string]string{"id": "abc"})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, w.Code)
	}
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusCreated || resp.Message != "created" {
		t.Errorf("unexpected envelope %+v", resp)
	}
}

func TestError_AppError_Conflict(t *testing.T) {
	c, w := newResponseTestContext()

	Error(c, domain.ErrConflict)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestError_WrappedCauseNotExposed(t *testing.T) {
	c, w := newResponseTestContext()

	Error(c, domain.NewAppError(domain.CodeInternal, "database error", errors.New("disk on fire")))

	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Errorf("wrapped cause leaked: %s", w.Body.String())
	}
}

func TestList(t *testing.T) {
	c, w := newResponseTestContext()

	type item struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	result := domain.NewPagedResult([]item{{ID: 1, Name: "Alpha"}, {ID: 2, Name: "Beta"}}, 5, 1, 2)
	result.Metadata["searchTerm"] = "a"
	List(c, result)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp struct {
		Code    int                      `json:"code"`
		Message string                   `json:"message"`
		Data    domain.PagedResult[item] `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusOK || resp.Message != "success" {
		t.Errorf("unexpected envelope code=%d message=%q", resp.Code, resp.Message)
	}
	if len(resp.Data.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(resp.Data.Items))
	}
	if resp.Data.TotalCount != 5 || resp.Data.TotalPages != 3 || resp.Data.PageSize != 2 {
		t.Errorf("unexpected paging %+v", resp.Data)
	}
	if resp.Data.Metadata["searchTerm"] != "a" {
		t.Errorf("expected metadata searchTerm, got %v", resp.Data.Metadata)
	}
}

func TestBindAndValidate_EmbeddedJSONNames(t *testing.T) {
	c, w := newResponseTestContextWithBody(`{}`)

	type base struct {
		Slug string `json:"slug" binding:"required"`
	}
	type bindInput struct {
		base
		Name string `json:"name" binding:"required"`
	}

	var input bindInput
	if BindAndValidate(c, &input) {
		t.Fatal("expected BindAndValidate to fail")
	}

	var resp ValidationErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if _, ok := resp.Errors["slug"]; !ok {
		t.Errorf("expected error for embedded field 'slug', got %v", resp.Errors)
	}
}

func TestValidationError_WithValidatorErrors(t *testing.T) {
	c, w := newResponseTestContext()

	ve := makeValidationErrors(t)
	ValidationError(c, ve)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp ValidationErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected code %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if resp.Message != "validation error" {
		t.Errorf("expected message %q, got %q", "validation error", resp.Message)
	}
	if len(resp.Errors) == 0 {
		t.Fatal("expected field errors, got none")
	}

	// Without obj, ValidationError falls back to lowercased struct field names.
	if msg, ok := resp.Errors["name"]; !ok {
		t.Error("expected error for field 'name'")
	} else if msg != "This field is required" {
		t.Errorf("expected message %q for name, got %q", "This field is required", msg)
	}

	if msg, ok := resp.Errors["email"]; !ok {
		t.Error("expected error for field 'email'")
	} else if msg != "This field is required" {
		t.Errorf("expected message %q for email, got %q", "This field is required", msg)
	}
}

func TestValidationError_NonValidationError(t *testing.T) {
	c, w := newResponseTestContext()

	ValidationError(c, errors.New("bad json"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected code %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if resp.Message != "bad request" {
		t.Errorf("expected message %q, got %q", "bad request", resp.Message)
	}
}

func TestBindAndValidate_InvalidJSON(t *testing.T) {
	c, w := newResponseTestContextWithBody(`{"invalid json`)

	// bindInput uses gin binding tags.
	type bindInput struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}

	var input bindInput
	ok := BindAndValidate(c, &input)

	if ok {
		t.Error("expected BindAndValidate to return false for invalid JSON")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Message != "bad request" {
		t.Errorf("expected message %q, got %q", "bad request", resp.Message)
	}
}

func TestBindAndValidate_MissingFields(t *testing.T) {
	c, w := newResponseTestContextWithBody(`{}`)

	type bindInput struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}

	var input bindInput
	ok := BindAndValidate(c, &input)

	if ok {
		t.Error("expected BindAndValidate to return false for missing required fields")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp ValidationErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected code %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if resp.Message != "validation error" {
		t.Errorf("expected message %q, got %q", "validation error", resp.Message)
	}

	// BindAndValidate has obj, so it should use JSON tag names.
	if _, ok := resp.Errors["name"]; !ok {
		t.Error("expected error for field 'name'")
	}
	if _, ok := resp.Errors["email"]; !ok {
		t.Error("expected error for field 'email'")
	}
}

func TestBindAndValidate_InvalidEmail(t *testing.T) {
	c, w := newResponseTestContextWithBody(`{"name":"Alice","email":"not-an-email"}`)

	type bindInput struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}

	var input bindInput
	ok := BindAndValidate(c, &input)

	if ok {
		t.Error("expected BindAndValidate to return false for invalid email")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp ValidationErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if msg, ok := resp.Errors["email"]; !ok {
		t.Error("expected error for field 'email'")
	} else if msg != "Must be a valid email address" {
		t.Errorf("expected message %q for email field, got %q", "Must be a valid email address", msg)
	}

	// name should NOT be in errors since it's valid.
	if _, ok := resp.Errors["name"]; ok {
		t.Error("did not expect error for field 'name'")
	}
}

func TestBindAndValidate_MinLength(t *testing.T) {
	c, w := newResponseTestContextWithBody(`{"name":"Al"}`)

	type bindInput struct {
		Name string `json:"name" binding:"required,min=3"`
	}

	var input bindInput
	ok := BindAndValidate(c, &input)

	if ok {
		t.Error("expected BindAndValidate to return false for too-short name")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp ValidationErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if msg, ok := resp.Errors["name"]; !ok {
		t.Error("expected error for field 'name'")
	} else if msg != "Must be at least 3 characters" {
		t.Errorf("expected message %q for name field, got %q", "Must be at least 3 characters", msg)
	}
}

func TestBindAndValidate_ValidInput(t *testing.T) {
	c, w := newResponseTestContextWithBody(`{"name":"Alice","email":"alice@example.com"}`)

	type bindInput struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}

	var input bindInput
	ok := BindAndValidate(c, &input)

	if !ok {
		t.Error("expected BindAndValidate to return true for valid input")
	}
	// No response should be written on success.
	if w.Code != http.StatusOK {
		t.Errorf("expected recorder default status 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body on success, got %q", w.Body.String())
	}
	if input.Name != "Alice" {
		t.Errorf("expected Name='Alice', got %q", input.Name)
	}
	if input.Email != "alice@example.com" {
		t.Errorf("expected Email='alice@example.com', got %q", input.Email)
	}
}
