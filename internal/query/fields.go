// Package query turns dynamic search criteria into GORM clause expressions.
//
// Field metadata is introspected once per entity type and cached in a
// Registry; the builders then resolve names through the registry and never
// reflect over the entity on the request path.
package query

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/schema"

	"github.com/simp-lee/marketbase/internal/domain"
)

// Kind classifies a field by how it can be compared.
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindInt
	KindUint
	KindFloat
	KindBool
	KindTime
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindUUID:
		return "uuid"
	default:
		return "other"
	}
}

// Field describes one mapped column of an entity.
type Field struct {
	Name      string // Go struct field name
	JSONName  string
	Column    string
	Kind      Kind
	Type      reflect.Type // field type with pointers removed
	Nullable  bool
	Updatable bool
}

// Ordered reports whether range comparisons make sense for the field.
func (f *Field) Ordered() bool {
	switch f.Kind {
	case KindInt, KindUint, KindFloat, KindTime:
		return true
	}
	return false
}

// Registry is the immutable field table of one entity type.
type Registry struct {
	entity    string
	fields    []*Field
	byName    map[string]*Field
	text      []*Field
	relations map[string]string
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})

	registries sync.Map // reflect.Type -> *Registry
)

// RegistryFor returns the cached registry of model's type, parsing it with
// namer on first use. model must be a struct or a pointer to one.
func RegistryFor(model any, namer schema.Namer) (*Registry, error) {
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("query: model must be a struct, got %T", model)
	}
	if r, ok := registries.Load(t); ok {
		return r.(*Registry), nil
	}

	s, err := schema.Parse(reflect.New(t).Interface(), &sync.Map{}, namer)
	if err != nil {
		return nil, fmt.Errorf("query: parse %s: %w", t.Name(), err)
	}
	r := newRegistry(s, reflect.New(t).Interface())

	actual, _ := registries.LoadOrStore(t, r)
	return actual.(*Registry), nil
}

func newRegistry(s *schema.Schema, model any) *Registry {
	r := &Registry{
		entity:    s.Name,
		byName:    make(map[string]*Field),
		relations: make(map[string]string),
	}

	for _, dbName := range s.DBNames {
		sf := s.FieldsByDBName[dbName]
		if sf == nil || !sf.Readable {
			continue
		}
		f := &Field{
			Name:      sf.Name,
			JSONName:  jsonName(sf.Tag.Get("json")),
			Column:    sf.DBName,
			Type:      sf.IndirectFieldType,
			Nullable:  sf.FieldType.Kind() == reflect.Ptr,
			Updatable: sf.Updatable,
		}
		f.Kind = kindOf(f.Type)
		r.fields = append(r.fields, f)

		for _, key := range []string{f.Name, f.JSONName, f.Column} {
			if key == "" {
				continue
			}
			if _, taken := r.byName[strings.ToLower(key)]; !taken {
				r.byName[strings.ToLower(key)] = f
			}
		}
	}

	allow := map[string]bool(nil)
	if ts, ok := model.(domain.TextSearchable); ok {
		allow = make(map[string]bool)
		for _, name := range ts.TextSearchFields() {
			allow[strings.ToLower(name)] = true
		}
	}
	for _, f := range r.fields {
		if f.Kind != KindText {
			continue
		}
		if allow != nil && !allow[strings.ToLower(f.Name)] && !allow[strings.ToLower(f.JSONName)] && !allow[f.Column] {
			continue
		}
		r.text = append(r.text, f)
	}

	for name := range s.Relationships.Relations {
		r.relations[strings.ToLower(name)] = name
	}
	return r
}

// Entity returns the entity type name.
func (r *Registry) Entity() string { return r.entity }

// Lookup resolves a Go field name, JSON name or column name, ignoring case.
func (r *Registry) Lookup(name string) (*Field, bool) {
	f, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Fields returns every mapped field in declaration order.
func (r *Registry) Fields() []*Field { return r.fields }

// TextFields returns the fields eligible for free-text search.
func (r *Registry) TextFields() []*Field { return r.text }

// Relation resolves an association name for preloading, ignoring case.
func (r *Registry) Relation(name string) (string, bool) {
	rel, ok := r.relations[strings.ToLower(strings.TrimSpace(name))]
	return rel, ok
}

// Column returns the column of the Go field name, or "" when it is not mapped.
func (r *Registry) Column(fieldName string) string {
	for _, f := range r.fields {
		if f.Name == fieldName {
			return f.Column
		}
	}
	return ""
}

func kindOf(t reflect.Type) Kind {
	switch t {
	case timeType:
		return KindTime
	case uuidType:
		return KindUUID
	}
	switch t.Kind() {
	case reflect.String:
		return KindText
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	}
	return KindOther
}

func jsonName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
