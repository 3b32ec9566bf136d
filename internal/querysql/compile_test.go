package querysql

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/scalar"
)

type level int

func root(name string) *ast.QueryRoot {
	return &ast.QueryRoot{ModelType: name}
}

func cmp(op ast.NodeKind, field string, t scalar.Type, v any) *ast.Comparison {
	return ast.NewComparison(op, ast.NewField(field, t), ast.NewScalar(t, v))
}

func TestCompile_GoldenSQL(t *testing.T) {
	compiler := NewSQLCompiler()

	testCases := []struct {
		name       string
		query      ast.Node
		wantSQL    string
		wantParams []any
	}{
		{
			name:       "bare root",
			query:      root("Person"),
			wantSQL:    "SELECT key, type, body FROM models WHERE type = ? ORDER BY key ASC COLLATE BINARY",
			wantParams: []any{"Person"},
		},
		{
			name: "predicate with and",
			query: &ast.Predicate{
				Source: root("Person"),
				Filter: ast.NewAnd(
					cmp(ast.KindGT, "Age", scalar.Int32, int32(30)),
					cmp(ast.KindStartsWith, "Name", scalar.String, "Jo"),
				),
			},
			wantSQL: "SELECT key, type, body FROM models WHERE type = ? AND " +
				"(COALESCE(json_extract(body, ?) > ?, 0) AND COALESCE(substr(json_extract(body, ?), 1, ?) = ?, 0)) " +
				"ORDER BY key ASC COLLATE BINARY",
			wantParams: []any{"Person", `$."Age"`, int64(30), `$."Name"`, int64(2), "Jo"},
		},
		{
			name: "ordered page",
			query: &ast.Page{
				Source: &ast.OrderBy{
					Source: &ast.Predicate{
						Source: root("Person"),
						Filter: cmp(ast.KindEQ, "home.City", scalar.String, "Oslo"),
					},
					Sorts: []*ast.Sort{
						{Field: ast.NewField("Age", scalar.Int32), Descending: true},
						{Field: ast.NewField("Name", scalar.String)},
					},
				},
				Size:  10,
				Token: "20",
			},
			wantSQL: "SELECT key, type, body FROM models WHERE type = ? AND json_extract(body, ?) IS ? " +
				"ORDER BY json_extract(body, ?) DESC, json_extract(body, ?) ASC, key ASC COLLATE BINARY LIMIT ? OFFSET ?",
			wantParams: []any{"Person", `$."home"."City"`, "Oslo", `$."Age"`, `$."Name"`, int64(11), int64(20)},
		},
		{
			name: "null equality and negation",
			query: &ast.Predicate{
				Source: root("Person"),
				Filter: ast.NewOr(
					ast.NewComparison(ast.KindEQ, ast.NewField("Nick", scalar.String.Nullable()), ast.NewScalar(scalar.String.Nullable(), nil)),
					ast.NewNot(cmp(ast.KindContains, "Name", scalar.String, "x")),
				),
			},
			wantSQL: "SELECT key, type, body FROM models WHERE type = ? AND " +
				"(json_extract(body, ?) IS ? OR NOT (COALESCE(instr(json_extract(body, ?), ?) > 0, 0))) " +
				"ORDER BY key ASC COLLATE BINARY",
			wantParams: []any{"Person", `$."Nick"`, nil, `$."Name"`, "x"},
		},
		{
			name: "stacked predicates",
			query: &ast.Predicate{
				Source: &ast.Predicate{
					Source: root("Person"),
					Filter: cmp(ast.KindNE, "Name", scalar.String, "a"),
				},
				Filter: cmp(ast.KindLTE, "Age", scalar.Int32, int32(9)),
			},
			wantSQL: "SELECT key, type, body FROM models WHERE type = ? AND " +
				"(json_extract(body, ?) IS NOT ? AND COALESCE(json_extract(body, ?) <= ?, 0)) " +
				"ORDER BY key ASC COLLATE BINARY",
			wantParams: []any{"Person", `$."Name"`, "a", `$."Age"`, int64(9)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := compiler.Compile(tc.query)
			require.NoError(t, err)

			assert.Equal(t, tc.wantSQL, sql, "SQL mismatch")
			assert.Equal(t, tc.wantParams, params, "Parameters mismatch")
		})
	}
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	compiler := NewSQLCompiler()
	dangerous := "'; DROP TABLE models; --"

	sql, params, err := compiler.Compile(&ast.Predicate{
		Source: root("Person"),
		Filter: cmp(ast.KindEQ, dangerous, scalar.String, dangerous),
	})
	require.NoError(t, err)

	assert.NotContains(t, sql, "DROP")
	assert.Contains(t, params, dangerous)
	assert.Contains(t, params, `$."'; DROP TABLE models; --"`)
}

func TestCompile_ParamConversion(t *testing.T) {
	id := uuid.MustParse("0190d6f4-6f54-7b59-8a4e-9e0c4b3c1a00")

	testCases := []struct {
		name string
		t    scalar.Type
		v    any
		want any
	}{
		{"bool", scalar.Bool, true, true},
		{"int8", scalar.Int8, int8(-3), int64(-3)},
		{"uint32", scalar.Uint32, uint32(7), int64(7)},
		{"float32", scalar.Float32, float32(1.5), float64(1.5)},
		{"duration", scalar.Duration, 2 * time.Second, int64(2 * time.Second)},
		{"uuid", scalar.UUID, id, id.String()},
		{"enum", scalar.Enum, level(2), int64(2)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scalarToParam(tc.v, tc.t)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompile_Unsupported(t *testing.T) {
	compiler := NewSQLCompiler()

	testCases := []struct {
		name  string
		query ast.Node
	}{
		{"datetime comparison", &ast.Predicate{
			Source: root("Person"),
			Filter: cmp(ast.KindGT, "Created", scalar.DateTime, time.Now()),
		}},
		{"bytes comparison", &ast.Predicate{
			Source: root("Person"),
			Filter: cmp(ast.KindEQ, "Blob", scalar.Bytes, []byte("x")),
		}},
		{"bool ordering", &ast.Predicate{
			Source: root("Person"),
			Filter: cmp(ast.KindGT, "Active", scalar.Bool, true),
		}},
		{"datetime sort", &ast.OrderBy{
			Source: root("Person"),
			Sorts:  []*ast.Sort{{Field: ast.NewField("Created", scalar.DateTime)}},
		}},
		{"unbound parameter", &ast.Predicate{
			Source: root("Person"),
			Filter: ast.NewComparison(ast.KindEQ, ast.NewField("Name", scalar.String), &ast.Parameter{Type: scalar.String}),
		}},
		{"predicate over ordering", &ast.Predicate{
			Source: &ast.OrderBy{Source: root("Person")},
			Filter: cmp(ast.KindEQ, "Name", scalar.String, "a"),
		}},
		{"traversal", &ast.Returns{Parent: &ast.TraverseOrigin{RootType: "Person", Key: ast.NewScalar(scalar.String, "Person/1")}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := compiler.Compile(tc.query)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestCompile_NullOrdering(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(&ast.Predicate{
		Source: root("Person"),
		Filter: ast.NewComparison(ast.KindGT, ast.NewField("Age", scalar.Int32.Nullable()), ast.NewScalar(scalar.Int32.Nullable(), nil)),
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE type = ? AND 0 ORDER BY")
	assert.Equal(t, []any{"Person"}, params)
}

func TestCompile_NilQuery(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	offset, err := ParseToken("")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	offset, err = ParseToken(NextToken(40, 20))
	require.NoError(t, err)
	assert.Equal(t, 60, offset)

	for _, bad := range []string{"abc", "-1"} {
		_, err := ParseToken(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}

	_, _, err = NewSQLCompiler().Compile(&ast.Page{Source: root("Person"), Size: 5, Token: "zz"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$."Key"`, JSONPath("Key"))
	assert.Equal(t, `$."home"."City"`, JSONPath("home.City"))
	assert.Equal(t, `$."a\"b"`, JSONPath(`a"b`))
}
