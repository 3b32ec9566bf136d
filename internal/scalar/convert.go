package scalar

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Convert narrows v to the Go representation of type t.
//
// Integers convert between widths with a range check, integral floats
// convert to integers, integers widen to floats, and strings parse into
// DateTime (RFC 3339), Duration and UUID. Pointers are dereferenced. A nil
// value is accepted only when t is nullable. Enum targets need the concrete
// Go type; use ConvertEnum.
func Convert(v any, t Type) (any, error) {
	v = deref(v)
	if v == nil {
		if t.IsNullable() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: nil to non-nullable %s", ErrConversion, t)
	}
	base := t.Base()
	rv := reflect.ValueOf(v)

	switch base {
	case Null:
		return nil, fmt.Errorf("%w: %T to null", ErrConversion, v)
	case Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return convertInteger(v, rv, base)
	case Float32, Float64:
		return convertFloat(v, rv, base)
	case String:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case DateTime:
		switch tv := v.(type) {
		case time.Time:
			return tv.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, tv)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConversion, err)
			}
			return parsed.UTC(), nil
		}
	case Duration:
		switch tv := v.(type) {
		case time.Duration:
			return tv, nil
		case string:
			d, err := time.ParseDuration(tv)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConversion, err)
			}
			return d, nil
		}
		if isInteger(rv.Kind()) {
			n, err := convertInteger(v, rv, Int64)
			if err != nil {
				return nil, err
			}
			return time.Duration(n.(int64)), nil
		}
	case UUID:
		switch tv := v.(type) {
		case uuid.UUID:
			return tv, nil
		case [16]byte:
			return uuid.UUID(tv), nil
		case string:
			id, err := uuid.Parse(tv)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConversion, err)
			}
			return id, nil
		}
	case Bytes:
		switch tv := v.(type) {
		case []byte:
			return tv, nil
		case string:
			return []byte(tv), nil
		}
	case Enum:
		if IsEnumType(rv.Type()) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %T to %s", ErrConversion, v, t)
}

// ConvertEnum converts v to the enum Go type rt. Values of rt pass through;
// integers and strings are converted through the enum's underlying type.
func ConvertEnum(v any, rt reflect.Type) (any, error) {
	v = deref(v)
	if v == nil {
		return nil, fmt.Errorf("%w: nil to enum %s", ErrConversion, rt)
	}
	if reflect.TypeOf(v) == rt {
		return v, nil
	}
	under, ok := UnderlyingOf(rt)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnum, rt)
	}
	prim, err := Convert(v, under)
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(prim).Convert(rt).Interface(), nil
}

// Underlying returns the primitive value behind an enum value.
func Underlying(v any) (any, Type, error) {
	rv := reflect.ValueOf(v)
	under, ok := UnderlyingOf(rv.Type())
	if !ok {
		return nil, Null, fmt.Errorf("%w: %T", ErrUnknownEnum, v)
	}
	prim, err := Convert(v, under)
	if err != nil {
		return nil, Null, err
	}
	return prim, under, nil
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func convertInteger(v any, rv reflect.Value, to Type) (any, error) {
	var (
		i        int64
		u        uint64
		negative bool
	)
	switch {
	case isSigned(rv.Kind()):
		i = rv.Int()
		negative = i < 0
		u = uint64(i)
	case isInteger(rv.Kind()):
		u = rv.Uint()
		if u > math.MaxInt64 {
			i = math.MaxInt64
		} else {
			i = int64(u)
		}
	case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("%w: %v is not integral", ErrConversion, f)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			if f < 0 || f >= math.MaxUint64 {
				return nil, fmt.Errorf("%w: %v overflows %s", ErrConversion, f, to)
			}
			u = uint64(f)
			i = math.MaxInt64
		} else {
			i = int64(f)
			negative = i < 0
			u = uint64(i)
		}
	default:
		return nil, fmt.Errorf("%w: %T to %s", ErrConversion, v, to)
	}

	overflow := func() error {
		return fmt.Errorf("%w: %v overflows %s", ErrConversion, v, to)
	}
	signedRange := func(lo, hi int64) error {
		if (!negative && u > uint64(hi)) || i < lo {
			return overflow()
		}
		return nil
	}
	unsignedRange := func(hi uint64) error {
		if negative || u > hi {
			return overflow()
		}
		return nil
	}

	switch to {
	case Int8:
		if err := signedRange(math.MinInt8, math.MaxInt8); err != nil {
			return nil, err
		}
		return int8(i), nil
	case Int16:
		if err := signedRange(math.MinInt16, math.MaxInt16); err != nil {
			return nil, err
		}
		return int16(i), nil
	case Int32:
		if err := signedRange(math.MinInt32, math.MaxInt32); err != nil {
			return nil, err
		}
		return int32(i), nil
	case Int64:
		if err := signedRange(math.MinInt64, math.MaxInt64); err != nil {
			return nil, err
		}
		return i, nil
	case Uint8:
		if err := unsignedRange(math.MaxUint8); err != nil {
			return nil, err
		}
		return uint8(u), nil
	case Uint16:
		if err := unsignedRange(math.MaxUint16); err != nil {
			return nil, err
		}
		return uint16(u), nil
	case Uint32:
		if err := unsignedRange(math.MaxUint32); err != nil {
			return nil, err
		}
		return uint32(u), nil
	default:
		if err := unsignedRange(math.MaxUint64); err != nil {
			return nil, err
		}
		return u, nil
	}
}

func convertFloat(v any, rv reflect.Value, to Type) (any, error) {
	var f float64
	switch {
	case isSigned(rv.Kind()):
		f = float64(rv.Int())
	case isInteger(rv.Kind()):
		f = float64(rv.Uint())
	case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
		f = rv.Float()
	default:
		return nil, fmt.Errorf("%w: %T to %s", ErrConversion, v, to)
	}
	if to == Float32 {
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %v overflows float32", ErrConversion, f)
		}
		return float32(f), nil
	}
	return f, nil
}
