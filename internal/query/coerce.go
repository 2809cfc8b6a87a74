package query

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

var errFractional = errors.New("value has a fractional part")

// Coerce converts v to a value of f's Go type (pointers removed).
// nil stays nil so that callers can express NULL.
func Coerce(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		v = rv.Elem().Interface()
	}
	if reflect.TypeOf(v) == f.Type && f.Kind != KindTime {
		return v, nil
	}

	var (
		out any
		err error
	)
	switch f.Kind {
	case KindText:
		out, err = cast.ToStringE(v)
	case KindInt:
		if err = checkIntegral(v); err == nil {
			out, err = cast.ToInt64E(v)
		}
	case KindUint:
		if err = checkIntegral(v); err == nil {
			out, err = cast.ToUint64E(v)
		}
	case KindFloat:
		out, err = cast.ToFloat64E(v)
	case KindBool:
		out, err = cast.ToBoolE(v)
	case KindTime:
		var t time.Time
		if t, err = cast.ToTimeE(v); err == nil {
			out = t.UTC()
		}
	case KindUUID:
		out, err = toUUID(v)
	default:
		rv := reflect.ValueOf(v)
		if !rv.Type().ConvertibleTo(f.Type) {
			return nil, fmt.Errorf("cannot convert %T to %s", v, f.Type)
		}
		return rv.Convert(f.Type).Interface(), nil
	}
	if err != nil {
		return nil, err
	}
	return convertTo(out, f.Type)
}

// convertTo narrows a canonical value (int64, string, ...) to the field's
// declared type, e.g. int32 or a named string type.
func convertTo(v any, t reflect.Type) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return v, nil
	}
	if !rv.Type().ConvertibleTo(t) {
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	}
	converted := rv.Convert(t)
	if rv.CanInt() && converted.CanInt() && converted.Int() != rv.Int() ||
		rv.CanUint() && converted.CanUint() && converted.Uint() != rv.Uint() {
		return nil, fmt.Errorf("value %v overflows %s", v, t)
	}
	return converted.Interface(), nil
}

func checkIntegral(v any) error {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return errFractional
		}
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return errFractional
		}
	}
	return nil
}

func toUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case []byte:
		return uuid.FromBytes(id)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(s)
}
