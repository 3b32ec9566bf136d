package scalar

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/linkgraph/internal/wire"
)

// EnumResolver maps enum Go types to their registered names and back.
// The model registry implements it.
type EnumResolver interface {
	EnumName(rt reflect.Type) (string, bool)
	EnumType(name string) (reflect.Type, bool)
}

// DateTime values travel as int64 Unix nanoseconds.
var (
	minDateTime = time.Unix(0, math.MinInt64).UTC()
	maxDateTime = time.Unix(0, math.MaxInt64).UTC()
)

// Write encodes v as type t: the int32 tag, then for nullable types a
// has-value byte, then the value. Enum values are written as the registered
// enum name followed by the tag and value of their underlying primitive.
func Write(w *wire.Writer, t Type, v any, enums EnumResolver) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTag, int32(t))
	}
	w.Int32(int32(t))
	v = deref(v)
	if t.IsNullable() {
		if t == Null {
			return nil
		}
		if v == nil {
			w.Bool(false)
			return nil
		}
		w.Bool(true)
	} else if v == nil {
		return fmt.Errorf("%w: nil value for non-nullable %s", ErrConversion, t)
	}
	return writeValue(w, t.Base(), v, enums)
}

func writeValue(w *wire.Writer, base Type, v any, enums EnumResolver) error {
	if base == Enum {
		return writeEnum(w, v, enums)
	}
	cv, err := Convert(v, base)
	if err != nil {
		return err
	}
	switch base {
	case Bool:
		w.Bool(cv.(bool))
	case Int8:
		w.Byte(byte(cv.(int8)))
	case Uint8:
		w.Byte(cv.(uint8))
	case Int16:
		w.Int16(cv.(int16))
	case Uint16:
		w.Uint16(cv.(uint16))
	case Int32:
		w.Int32(cv.(int32))
	case Uint32:
		w.Uint32(cv.(uint32))
	case Int64:
		w.Int64(cv.(int64))
	case Uint64:
		w.Uint64(cv.(uint64))
	case Float32:
		w.Float32(cv.(float32))
	case Float64:
		w.Float64(cv.(float64))
	case String:
		w.String(cv.(string))
	case DateTime:
		ts := cv.(time.Time)
		if ts.Before(minDateTime) || ts.After(maxDateTime) {
			return fmt.Errorf("%w: %s outside the datetime wire range", ErrConversion, ts.Format(time.RFC3339))
		}
		w.Int64(ts.UnixNano())
	case Duration:
		w.Int64(int64(cv.(time.Duration)))
	case UUID:
		id := cv.(uuid.UUID)
		w.Raw(id[:])
	case Bytes:
		w.Blob(cv.([]byte))
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTag, int32(base))
	}
	return nil
}

func writeEnum(w *wire.Writer, v any, enums EnumResolver) error {
	if enums == nil {
		return fmt.Errorf("%w: no enum registry for %T", ErrUnknownEnum, v)
	}
	name, ok := enums.EnumName(reflect.TypeOf(v))
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownEnum, v)
	}
	prim, under, err := Underlying(v)
	if err != nil {
		return err
	}
	w.String(name)
	w.Int32(int32(under))
	return writeValue(w, under, prim, nil)
}

// Read decodes a value written by Write and returns its type and value.
func Read(r *wire.Reader, enums EnumResolver) (Type, any, error) {
	tag, err := r.Int32()
	if err != nil {
		return Null, nil, err
	}
	t := Type(tag)
	if !t.Valid() {
		return Null, nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	if t == Null {
		return Null, nil, nil
	}
	if t.IsNullable() {
		has, err := r.Bool()
		if err != nil {
			return Null, nil, err
		}
		if !has {
			return t, nil, nil
		}
	}
	v, err := readValue(r, t.Base(), enums)
	if err != nil {
		return Null, nil, err
	}
	return t, v, nil
}

func readValue(r *wire.Reader, base Type, enums EnumResolver) (any, error) {
	switch base {
	case Bool:
		return r.Bool()
	case Int8:
		b, err := r.Byte()
		return int8(b), err
	case Uint8:
		return r.Byte()
	case Int16:
		return r.Int16()
	case Uint16:
		return r.Uint16()
	case Int32:
		return r.Int32()
	case Uint32:
		return r.Uint32()
	case Int64:
		return r.Int64()
	case Uint64:
		return r.Uint64()
	case Float32:
		return r.Float32()
	case Float64:
		return r.Float64()
	case String:
		return r.String()
	case DateTime:
		ns, err := r.Int64()
		if err != nil {
			return nil, err
		}
		return time.Unix(0, ns).UTC(), nil
	case Duration:
		ns, err := r.Int64()
		return time.Duration(ns), err
	case UUID:
		b, err := r.Raw(16)
		if err != nil {
			return nil, err
		}
		var id uuid.UUID
		copy(id[:], b)
		return id, nil
	case Bytes:
		return r.Blob()
	case Enum:
		return readEnum(r, enums)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, int32(base))
	}
}

func readEnum(r *wire.Reader, enums EnumResolver) (any, error) {
	name, err := r.String()
	if err != nil {
		return nil, err
	}
	tag, err := r.Int32()
	if err != nil {
		return nil, err
	}
	under := Type(tag)
	if !under.Valid() || under.IsNullable() || under == Enum {
		return nil, fmt.Errorf("%w: enum underlying %d", ErrUnknownTag, tag)
	}
	prim, err := readValue(r, under, nil)
	if err != nil {
		return nil, err
	}
	if enums == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnum, name)
	}
	rt, ok := enums.EnumType(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnum, name)
	}
	if want, ok := UnderlyingOf(rt); !ok || want != under {
		return nil, fmt.Errorf("%w: %q is not backed by %s", ErrUnknownEnum, name, under)
	}
	return reflect.ValueOf(prim).Convert(rt).Interface(), nil
}
