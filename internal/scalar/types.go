package scalar

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Type is the primitive type tag written on the wire.
type Type int32

const (
	Null     Type = 0
	Bool     Type = 1
	Int8     Type = 2
	Uint8    Type = 3
	Int16    Type = 4
	Uint16   Type = 5
	Int32    Type = 6
	Uint32   Type = 7
	Int64    Type = 8
	Uint64   Type = 9
	Float32  Type = 10
	Float64  Type = 11
	String   Type = 12
	DateTime Type = 13
	Duration Type = 14
	UUID     Type = 15
	Bytes    Type = 16
	Enum     Type = 32

	// NullableFlag marks the nullable variant of a base type.
	NullableFlag Type = 0x40
)

var (
	// ErrUnknownTag is returned when a tag is not a known primitive type.
	ErrUnknownTag = errors.New("scalar: unknown primitive type tag")

	// ErrUnknownEnum is returned when an enum name or Go type is not registered.
	ErrUnknownEnum = errors.New("scalar: unknown enum type")

	// ErrConversion is returned when a value cannot be converted to a type.
	ErrConversion = errors.New("scalar: conversion not possible")
)

var typeNames = map[Type]string{
	Null:     "null",
	Bool:     "bool",
	Int8:     "int8",
	Uint8:    "uint8",
	Int16:    "int16",
	Uint16:   "uint16",
	Int32:    "int32",
	Uint32:   "uint32",
	Int64:    "int64",
	Uint64:   "uint64",
	Float32:  "float32",
	Float64:  "float64",
	String:   "string",
	DateTime: "datetime",
	Duration: "duration",
	UUID:     "uuid",
	Bytes:    "bytes",
	Enum:     "enum",
}

// Base strips the nullable flag.
func (t Type) Base() Type {
	return t &^ NullableFlag
}

// IsNullable reports whether t admits nil.
func (t Type) IsNullable() bool {
	return t&NullableFlag != 0 || t == Null
}

// Nullable returns the nullable variant of t.
func (t Type) Nullable() Type {
	if t == Null {
		return Null
	}
	return t | NullableFlag
}

// Valid reports whether t is a known tag.
func (t Type) Valid() bool {
	if t&NullableFlag != 0 && t.Base() == Null {
		return false
	}
	_, ok := typeNames[t.Base()]
	return ok
}

func (t Type) String() string {
	name, ok := typeNames[t.Base()]
	if !ok {
		return fmt.Sprintf("type(%d)", int32(t))
	}
	if t&NullableFlag != 0 {
		return name + "?"
	}
	return name
}

// ParseType resolves a type name as produced by String, e.g. "int32" or
// "string?".
func ParseType(name string) (Type, error) {
	nullable := false
	if n := len(name); n > 0 && name[n-1] == '?' {
		nullable = true
		name = name[:n-1]
	}
	for t, n := range typeNames {
		if n == name {
			if nullable {
				return t.Nullable(), nil
			}
			return t, nil
		}
	}
	return Null, fmt.Errorf("%w: %q", ErrUnknownTag, name)
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bytesType    = reflect.TypeOf([]byte(nil))
)

// TypeOfGo maps a Go type to its primitive type. Pointer types map to the
// nullable variant of their element. Named integer and string types other
// than time.Duration map to Enum.
func TypeOfGo(rt reflect.Type) (Type, bool) {
	if rt == nil {
		return Null, true
	}
	if rt.Kind() == reflect.Pointer {
		t, ok := TypeOfGo(rt.Elem())
		if !ok {
			return Null, false
		}
		return t.Nullable(), true
	}
	switch rt {
	case timeType:
		return DateTime, true
	case durationType:
		return Duration, true
	case uuidType:
		return UUID, true
	case bytesType:
		return Bytes, true
	}
	t, ok := kindType(rt.Kind())
	if !ok {
		return Null, false
	}
	if IsEnumType(rt) {
		return Enum, true
	}
	return t, true
}

// TypeOf classifies a Go value.
func TypeOf(v any) (Type, bool) {
	if v == nil {
		return Null, true
	}
	return TypeOfGo(reflect.TypeOf(v))
}

// IsEnumType reports whether rt is a named integer or string type that is
// not one of the built-in primitives.
func IsEnumType(rt reflect.Type) bool {
	if rt == nil || rt.PkgPath() == "" || rt == durationType {
		return false
	}
	_, ok := kindType(rt.Kind())
	return ok && rt.Kind() != reflect.Bool && rt.Kind() != reflect.Float32 && rt.Kind() != reflect.Float64
}

// UnderlyingOf returns the primitive type backing an enum Go type.
func UnderlyingOf(rt reflect.Type) (Type, bool) {
	return kindType(rt.Kind())
}

func kindType(k reflect.Kind) (Type, bool) {
	switch k {
	case reflect.Bool:
		return Bool, true
	case reflect.Int8:
		return Int8, true
	case reflect.Uint8:
		return Uint8, true
	case reflect.Int16:
		return Int16, true
	case reflect.Uint16:
		return Uint16, true
	case reflect.Int32:
		return Int32, true
	case reflect.Uint32:
		return Uint32, true
	case reflect.Int, reflect.Int64:
		return Int64, true
	case reflect.Uint, reflect.Uint64:
		return Uint64, true
	case reflect.Float32:
		return Float32, true
	case reflect.Float64:
		return Float64, true
	case reflect.String:
		return String, true
	default:
		return Null, false
	}
}

// Equal compares two scalar values of the same primitive type.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return reflect.ValueOf(a).Equal(reflect.ValueOf(b))
}

// Compare orders two values of the same primitive type. It returns -1, 0 or
// 1, and false when the values are not ordered (mixed types, bool, bytes).
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case uuid.UUID:
		bv, ok := b.(uuid.UUID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return 0, false
	}
	switch ra.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp3(ra.Int() < rb.Int(), ra.Int() > rb.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp3(ra.Uint() < rb.Uint(), ra.Uint() > rb.Uint()), true
	case reflect.Float32, reflect.Float64:
		return cmp3(ra.Float() < rb.Float(), ra.Float() > rb.Float()), true
	case reflect.String:
		return cmp3(ra.String() < rb.String(), ra.String() > rb.String()), true
	default:
		return 0, false
	}
}

func cmp3(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	default:
		return 0
	}
}
