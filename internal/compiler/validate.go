package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/linkgraph/internal/model"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidTypeName   = "E101" // type name empty or contains '/' or '.'
	ErrDuplicateTypeName = "E102" // type declared twice
	ErrBuiltinField      = "E103" // field shadows Key, Created, Modified, From or To
	ErrMissingEndpoint   = "E104" // link without from/to
	ErrUnknownEndpoint   = "E105" // endpoint names no document type
	ErrEndpointIsLink    = "E106" // endpoint names a link type
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var builtinRoots = map[string]bool{
	"Key": true, "Created": true, "Modified": true, "From": true, "To": true,
}

// Validate checks a compiled schema against naming and endpoint rules.
// Endpoints may also name types already present in known, which may be nil.
// Returns all errors found (does not fail-fast).
func Validate(s *Schema, known *model.Registry) []ValidationError {
	var errs []ValidationError
	add := func(t *TypeSpec, field, code, format string, args ...any) {
		e := ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code}
		if t.Pos.IsValid() {
			e.Line = t.Pos.Line()
		}
		errs = append(errs, e)
	}

	declared := map[string]*TypeSpec{}
	for _, t := range s.Types() {
		if t.Name == "" || strings.ContainsAny(t.Name, "/.") {
			add(t, t.Name, ErrInvalidTypeName, "type name %q may not be empty or contain '/' or '.'", t.Name)
		}
		if _, ok := declared[t.Name]; ok {
			add(t, t.Name, ErrDuplicateTypeName, "type %s declared more than once", t.Name)
		}
		declared[t.Name] = t
		if known != nil {
			if _, err := known.Lookup(t.Name); err == nil {
				add(t, t.Name, ErrDuplicateTypeName, "type %s is already registered", t.Name)
			}
		}
		for _, path := range t.FieldNames() {
			root, _, _ := strings.Cut(path, ".")
			if builtinRoots[root] {
				add(t, t.Name+"."+path, ErrBuiltinField, "field %s shadows a built-in field", path)
			}
		}
	}

	for _, t := range s.Links {
		for _, end := range []struct{ label, name string }{{"from", t.From}, {"to", t.To}} {
			field := t.Name + "." + end.label
			if end.name == "" {
				add(t, field, ErrMissingEndpoint, "link %s has no %s type", t.Name, end.label)
				continue
			}
			isLink, ok := endpointKind(end.name, declared, known)
			switch {
			case !ok:
				add(t, field, ErrUnknownEndpoint, "unknown type %s", end.name)
			case isLink:
				add(t, field, ErrEndpointIsLink, "%s is a link type", end.name)
			}
		}
	}
	return errs
}

func endpointKind(name string, declared map[string]*TypeSpec, known *model.Registry) (isLink, ok bool) {
	if t, found := declared[name]; found {
		return t.IsLink, true
	}
	if known == nil {
		return false, false
	}
	info, err := known.Lookup(name)
	if err != nil {
		return false, false
	}
	return info.IsLink, true
}
