package pkg

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/marketbase/internal/domain"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// reservedParams lists query parameter names used for paging, sorting and
// loading, not for filtering.
var reservedParams = map[string]bool{
	"page":            true,
	"page_size":       true,
	"sort":            true,
	"q":               true,
	"include":         true,
	"include_deleted": true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// operatorSuffixes maps the short "field__op" suffixes to filter operators.
// Full operator names ("amount__GreaterThanOrEqual") are accepted as well.
var operatorSuffixes = map[string]domain.FilterOperator{
	"eq":         domain.OpEquals,
	"ne":         domain.OpNotEquals,
	"like":       domain.OpContains,
	"contains":   domain.OpContains,
	"startswith": domain.OpStartsWith,
	"endswith":   domain.OpEndsWith,
	"gt":         domain.OpGreaterThan,
	"lt":         domain.OpLessThan,
	"gte":        domain.OpGreaterThanOrEqual,
	"lte":        domain.OpLessThanOrEqual,
	"between":    domain.OpBetween,
	"isnull":     domain.OpIsNull,
	"notnull":    domain.OpIsNotNull,
}

// ParseSearchRequest builds a smart search request from query params:
//
//	?q=term&page=2&page_size=10&sort=price:desc&include=category&include_deleted=true
//	&name__contains=Pro&price__between=10,20&published_at__notnull&stock=0
//
// A bare "field=value" is an equality filter. Between takes two comma
// separated bounds. Unresolvable field names are passed through and left to
// the repository, which drops them; a malformed parameter is an error.
func ParseSearchRequest(c *gin.Context, pageSize int) (domain.SmartSearchRequest, error) {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	req := domain.SmartSearchRequest{
		SearchTerm: strings.TrimSpace(c.Query("q")),
		PageNumber: defaultPage,
		PageSize:   pageSize,
	}

	if page, err := strconv.Atoi(c.Query("page")); err == nil && page >= 1 {
		req.PageNumber = page
	}
	if size, err := strconv.Atoi(c.Query("page_size")); err == nil && size >= 1 {
		req.PageSize = size
	}

	if s := c.Query("sort"); s != "" {
		field, direction, _ := strings.Cut(s, ":")
		field = strings.TrimSpace(field)
		direction = strings.ToLower(strings.TrimSpace(direction))
		if !validFieldName.MatchString(field) || !slices.Contains([]string{"", "asc", "desc"}, direction) {
			return req, fmt.Errorf("invalid sort %q", s)
		}
		req.OrderBy = field
		req.Ascending = direction != "desc"
	}

	req.IncludeProperties = SplitList(c.Query("include"))
	req.IncludeDeleted = QueryBool(c, "include_deleted")

	query := c.Request.URL.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		if !reservedParams[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		item, err := parseFilter(key, query.Get(key))
		if err != nil {
			return req, err
		}
		if item != nil {
			req.Filters = append(req.Filters, *item)
		}
	}
	return req, nil
}

// parseFilter returns nil for a parameter that carries no filter, such as an
// empty equality value.
func parseFilter(key, value string) (*domain.FilterItem, error) {
	field, suffix, hasOp := strings.Cut(key, "__")
	if !validFieldName.MatchString(field) {
		return nil, fmt.Errorf("invalid filter field %q", field)
	}

	op := domain.OpEquals
	if hasOp {
		var ok bool
		if op, ok = operatorSuffixes[strings.ToLower(suffix)]; !ok {
			parsed, err := domain.ParseFilterOperator(suffix)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", key, err)
			}
			op = parsed
		}
	}

	item := &domain.FilterItem{PropertyName: field, Operator: op}
	switch op {
	case domain.OpIsNull, domain.OpIsNotNull:
		return item, nil
	case domain.OpBetween:
		lo, hi, found := strings.Cut(value, ",")
		item.Value = strings.TrimSpace(lo)
		if found {
			item.SecondValue = strings.TrimSpace(hi)
		}
		return item, nil
	}

	if value == "" && !hasOp {
		return nil, nil
	}
	item.Value = value
	return item, nil
}

// QueryBool reports whether the query parameter is set to a true value.
// A bare "?name" counts as true.
func QueryBool(c *gin.Context, name string) bool {
	v, ok := c.GetQuery(name)
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
