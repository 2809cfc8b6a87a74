package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/simp-lee/pagination"
)

// FilterOperator is the comparison applied by a FilterItem.
type FilterOperator string

const (
	OpEquals             FilterOperator = "Equals"
	OpNotEquals          FilterOperator = "NotEquals"
	OpContains           FilterOperator = "Contains"
	OpStartsWith         FilterOperator = "StartsWith"
	OpEndsWith           FilterOperator = "EndsWith"
	OpGreaterThan        FilterOperator = "GreaterThan"
	OpLessThan           FilterOperator = "LessThan"
	OpGreaterThanOrEqual FilterOperator = "GreaterThanOrEqual"
	OpLessThanOrEqual    FilterOperator = "LessThanOrEqual"
	OpBetween            FilterOperator = "Between"
	OpIsNull             FilterOperator = "IsNull"
	OpIsNotNull          FilterOperator = "IsNotNull"
)

// filterOperators is ordered by wire ordinal.
var filterOperators = []FilterOperator{
	OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
	OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual,
	OpBetween, OpIsNull, OpIsNotNull,
}

// ParseFilterOperator resolves an operator by name (case-insensitive) or ordinal.
func ParseFilterOperator(s string) (FilterOperator, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(filterOperators) {
			return "", fmt.Errorf("filter operator %d out of range", n)
		}
		return filterOperators[n], nil
	}
	for _, op := range filterOperators {
		if strings.EqualFold(string(op), s) {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown filter operator %q", s)
}

// Valid reports whether op is one of the known operators.
func (op FilterOperator) Valid() bool {
	_, err := ParseFilterOperator(string(op))
	return err == nil && op != ""
}

// UnmarshalJSON accepts the operator name or its ordinal.
func (op *FilterOperator) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Errorf("invalid filter operator %s", string(data))
	}
	parsed, err := ParseFilterOperator(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// FilterItem is one condition against a named field.
// SecondValue is only read by range operators.
type FilterItem struct {
	PropertyName string         `json:"propertyName" validate:"required"`
	Operator     FilterOperator `json:"operator" validate:"required"`
	Value        any            `json:"value,omitempty"`
	SecondValue  any            `json:"secondValue,omitempty"`
}

// SmartSearchRequest combines free text, structured filters, ordering and paging.
type SmartSearchRequest struct {
	SearchTerm        string       `json:"searchTerm,omitempty"`
	Filters           []FilterItem `json:"filters,omitempty" validate:"dive"`
	IncludeProperties []string     `json:"includeProperties,omitempty"`
	OrderBy           string       `json:"orderBy,omitempty"`
	Ascending         bool         `json:"ascending"`
	IncludeDeleted    bool         `json:"includeDeleted"`
	PageNumber        int          `json:"pageNumber" validate:"min=1"`
	PageSize          int          `json:"pageSize" validate:"min=1"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks paging bounds and that every filter names a property and a known operator.
func (r *SmartSearchRequest) Validate() error {
	if err := requestValidator().Struct(r); err != nil {
		return NewAppError(CodeValidation, "invalid search request", err)
	}
	for i, f := range r.Filters {
		if !f.Operator.Valid() {
			return NewAppError(CodeValidation, fmt.Sprintf("invalid search request: filters[%d] has unknown operator %q", i, f.Operator), nil)
		}
	}
	return nil
}

// PagedResult is the envelope returned by paged reads.
// TotalCount is the size of the full filtered set, not of Items.
type PagedResult[T any] struct {
	Items      []T            `json:"items"`
	TotalCount int64          `json:"totalCount"`
	PageNumber int            `json:"pageNumber"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewPagedResult builds a PagedResult and computes TotalPages.
func NewPagedResult[T any](items []T, total int64, pageNumber, pageSize int) *PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &PagedResult[T]{
		Items:      items,
		TotalCount: total,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Metadata:   map[string]any{},
	}
}

// PagedResultFrom converts a page computed by the pagination package.
func PagedResultFrom[T any](p *pagination.Pagination[T]) *PagedResult[T] {
	r := NewPagedResult(p.Items, p.TotalItems, p.CurrentPage, p.ItemsPerPage)
	r.TotalPages = p.TotalPages
	return r
}

func (p *PagedResult[T]) HasPreviousPage() bool { return p.PageNumber > 1 }
func (p *PagedResult[T]) HasNextPage() bool     { return p.PageNumber < p.TotalPages }
