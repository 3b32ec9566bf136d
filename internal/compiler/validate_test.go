package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

func codes(errs []ValidationError) []string {
	out := []string{}
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateValid(t *testing.T) {
	s := compile(t, peopleSchema)
	assert.Empty(t, Validate(s, nil))
}

func TestValidateErrors(t *testing.T) {
	doc := func(name string, fields ...string) *TypeSpec {
		spec := &TypeSpec{Name: name, Fields: map[string]scalar.Type{}}
		for _, f := range fields {
			spec.Fields[f] = scalar.String
		}
		return spec
	}
	link := func(name, from, to string) *TypeSpec {
		spec := doc(name)
		spec.IsLink, spec.From, spec.To = true, from, to
		return spec
	}

	tests := []struct {
		name   string
		schema *Schema
		want   []string
	}{
		{
			name:   "invalid name",
			schema: &Schema{Models: []*TypeSpec{doc("a.b")}},
			want:   []string{ErrInvalidTypeName},
		},
		{
			name:   "duplicate",
			schema: &Schema{Models: []*TypeSpec{doc("Person")}, Links: []*TypeSpec{link("Person", "Person", "Person")}},
			want:   []string{ErrDuplicateTypeName},
		},
		{
			name:   "builtin field",
			schema: &Schema{Models: []*TypeSpec{doc("Person", "Key", "Created.At", "Name")}},
			want:   []string{ErrBuiltinField, ErrBuiltinField},
		},
		{
			name:   "missing endpoint",
			schema: &Schema{Models: []*TypeSpec{doc("Person")}, Links: []*TypeSpec{link("Knows", "Person", "")}},
			want:   []string{ErrMissingEndpoint},
		},
		{
			name:   "unknown endpoint",
			schema: &Schema{Links: []*TypeSpec{link("Knows", "Robot", "Robot")}},
			want:   []string{ErrUnknownEndpoint, ErrUnknownEndpoint},
		},
		{
			name:   "link endpoint",
			schema: &Schema{Models: []*TypeSpec{doc("Person")}, Links: []*TypeSpec{link("Knows", "Person", "Knows")}},
			want:   []string{ErrEndpointIsLink},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, codes(Validate(tt.schema, nil)))
		})
	}
}

func TestValidateAgainstRegistry(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, reg.RegisterDocument("Person", false, map[string]scalar.Type{"Name": scalar.String}))

	s := &Schema{Links: []*TypeSpec{{Name: "Knows", IsLink: true, From: "Person", To: "Person"}}}
	assert.Empty(t, Validate(s, reg))

	s.Models = []*TypeSpec{{Name: "Person"}}
	assert.Equal(t, []string{ErrDuplicateTypeName}, codes(Validate(s, reg)))
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "Knows.from", Message: "unknown type Robot", Code: ErrUnknownEndpoint}
	assert.Equal(t, "[E105] Knows.from: unknown type Robot", e.Error())
	e.Line = 4
	assert.Equal(t, "[E105] line 4: Knows.from: unknown type Robot", e.Error())
}
