package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

// TypeSpec is one compiled document or link type.
type TypeSpec struct {
	Name   string                 `json:"name"`
	IsLink bool                   `json:"is_link"`
	From   string                 `json:"from,omitempty"`
	To     string                 `json:"to,omitempty"`
	Fields map[string]scalar.Type `json:"fields"`
	Pos    token.Pos              `json:"-"`
}

// FieldNames returns the field paths of t in sorted order.
func (t *TypeSpec) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for n := range t.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schema is the set of runtime types declared in CUE.
type Schema struct {
	Models []*TypeSpec `json:"models"`
	Links  []*TypeSpec `json:"links"`
}

// Types returns models followed by links.
func (s *Schema) Types() []*TypeSpec {
	out := make([]*TypeSpec, 0, len(s.Models)+len(s.Links))
	out = append(out, s.Models...)
	return append(out, s.Links...)
}

// Register adds every type in s to reg as a document type.
func (s *Schema) Register(reg *model.Registry) error {
	for _, t := range s.Types() {
		if err := reg.RegisterDocument(t.Name, t.IsLink, t.Fields); err != nil {
			return err
		}
	}
	return nil
}

// CompileSchema reads the models and links structs of a CUE value:
//
//	models: Person: fields: {
//		Name: string
//		Age:  "int32"
//		Nick?: string
//	}
//	links: Knows: {
//		from: "Person"
//		to:   "Person"
//		fields: Since: int
//	}
//
// A field is either a concrete scalar type name ("int32", "uuid?") or a CUE
// type. Optional fields and null disjunctions are nullable. Nested structs
// become dotted paths. All errors are collected before returning.
func CompileSchema(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{}
	var result *multierror.Error
	for _, section := range []struct {
		label  string
		isLink bool
		out    *[]*TypeSpec
	}{
		{"models", false, &s.Models},
		{"links", true, &s.Links},
	} {
		sv := v.LookupPath(cue.ParsePath(section.label))
		if !sv.Exists() {
			continue
		}
		iter, err := sv.Fields()
		if err != nil {
			result = multierror.Append(result, formatCUEError(err))
			continue
		}
		for iter.Next() {
			spec, err := compileType(label(iter.Selector()), section.isLink, iter.Value())
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			*section.out = append(*section.out, spec)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	if len(s.Models)+len(s.Links) == 0 {
		return nil, &CompileError{Field: "models", Message: "schema declares no types", Pos: v.Pos()}
	}
	return s, nil
}

func compileType(name string, isLink bool, v cue.Value) (*TypeSpec, error) {
	spec := &TypeSpec{Name: name, IsLink: isLink, Fields: map[string]scalar.Type{}, Pos: v.Pos()}
	var result *multierror.Error

	if isLink {
		for _, end := range []struct {
			label string
			dst   *string
		}{{"from", &spec.From}, {"to", &spec.To}} {
			ev := v.LookupPath(cue.ParsePath(end.label))
			if !ev.Exists() {
				continue
			}
			s, err := ev.String()
			if err != nil {
				result = multierror.Append(result, &CompileError{
					Field:   name + "." + end.label,
					Message: "endpoint must be a type name",
					Pos:     ev.Pos(),
				})
				continue
			}
			*end.dst = s
		}
	}

	fv := v.LookupPath(cue.ParsePath("fields"))
	if fv.Exists() {
		if err := compileFields(spec, "", fv); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return spec, nil
}

func compileFields(spec *TypeSpec, prefix string, v cue.Value) error {
	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}
	var result *multierror.Error
	for iter.Next() {
		sel := iter.Selector()
		path := prefix + label(sel)
		fv := iter.Value()
		if fv.IncompleteKind() == cue.StructKind {
			if err := compileFields(spec, path+".", fv); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}
		t, err := fieldType(fv)
		if err != nil {
			result = multierror.Append(result, &CompileError{
				Field:   spec.Name + "." + path,
				Message: err.Error(),
				Pos:     fv.Pos(),
			})
			continue
		}
		if sel.ConstraintType() == cue.OptionalConstraint {
			t = t.Nullable()
		}
		spec.Fields[path] = t
	}
	return result.ErrorOrNil()
}

// label returns the bare name of a field selector, without quotes or
// constraint markers.
func label(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// fieldType maps a CUE field value to a scalar type.
func fieldType(v cue.Value) (scalar.Type, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, _ := v.String()
		t, err := scalar.ParseType(name)
		if err != nil {
			return scalar.Null, fmt.Errorf("unknown type name %q", name)
		}
		return t, nil
	}

	kind := v.IncompleteKind()
	nullable := false
	if kind&cue.NullKind != 0 && kind != cue.NullKind {
		nullable = true
		kind &^= cue.NullKind
	}

	var t scalar.Type
	switch kind {
	case cue.StringKind:
		t = scalar.String
	case cue.IntKind:
		t = scalar.Int64
	case cue.FloatKind, cue.NumberKind:
		t = scalar.Float64
	case cue.BoolKind:
		t = scalar.Bool
	case cue.BytesKind:
		t = scalar.Bytes
	default:
		return scalar.Null, fmt.Errorf("unsupported type kind: %v", kind)
	}
	if nullable {
		t = t.Nullable()
	}
	return t, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError converts CUE errors to CompileErrors, keeping every
// error that carries a position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	var result *multierror.Error
	for _, e := range errs {
		positions := errors.Positions(e)
		if len(positions) == 0 {
			result = multierror.Append(result, e)
			continue
		}
		result = multierror.Append(result, &CompileError{
			Field:   "cue",
			Message: e.Error(),
			Pos:     positions[0],
		})
	}
	if len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return result
}
