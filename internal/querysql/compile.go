// Package querysql compiles query ASTs to parameterized SQLite over the
// models table.
//
// Every model row stores its JSON document in the body column, so fields
// are read with json_extract. All values, JSON paths included, are bound
// as parameters and never interpolated. Every query ends with a stable
// ORDER BY whose final tiebreaker is the model key.
package querysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/scalar"
)

// ErrUnsupported is returned for trees or values that have no exact SQL
// rendition. Callers fall back to evaluating them in memory.
var ErrUnsupported = errors.New("querysql: unsupported")

// ErrInvalidToken is returned for page tokens that are not offsets.
var ErrInvalidToken = errors.New("querysql: invalid page token")

// Columns is the select list of every compiled query.
const Columns = "key, type, body"

// SQLCompiler compiles query ASTs to SQL.
type SQLCompiler struct {
	// Table is the models table name.
	Table string
}

// NewSQLCompiler returns a compiler over the "models" table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "models"}
}

// Parts is the flattened shape of a query tree. Stacked predicates are
// conjoined into one filter.
type Parts struct {
	Root   *ast.QueryRoot
	Filter ast.Node
	Sorts  []*ast.Sort
	Page   *ast.Page
}

// Compile converts a QueryRoot, Predicate, OrderBy or Page tree to SQL.
// Returns (sql, params, error). A Page compiles to LIMIT size+1 so the
// caller can tell whether another page follows.
func (c *SQLCompiler) Compile(n ast.Node) (string, []any, error) {
	if n == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	q, err := Split(n)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	params := []any{q.Root.ModelType}
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE type = ?", Columns, c.Table)
	if q.Filter != nil {
		where, wp, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" AND ")
		b.WriteString(where)
		params = append(params, wp...)
	}

	order, op, err := c.compileOrder(q.Sorts)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	params = append(params, op...)

	if q.Page != nil {
		offset, err := ParseToken(q.Page.Token)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, int64(q.Page.Size)+1, int64(offset))
	}
	return b.String(), params, nil
}

// Split flattens a Page, OrderBy, Predicate and QueryRoot chain. Shapes
// that reorder or page an inner result return ErrUnsupported.
func Split(n ast.Node) (*Parts, error) {
	q := &Parts{}
	for {
		switch node := n.(type) {
		case *ast.Page:
			if q.Page != nil || q.Sorts != nil || q.Filter != nil {
				return nil, fmt.Errorf("%w: nested page", ErrUnsupported)
			}
			q.Page = node
			n = node.Source
		case *ast.OrderBy:
			if q.Sorts != nil || q.Filter != nil {
				return nil, fmt.Errorf("%w: nested ordering", ErrUnsupported)
			}
			q.Sorts = node.Sorts
			if q.Sorts == nil {
				q.Sorts = []*ast.Sort{}
			}
			n = node.Source
		case *ast.Predicate:
			q.Filter = ast.Conjoin(node.Filter, q.Filter)
			n = node.Source
		case *ast.QueryRoot:
			q.Root = node
			return q, nil
		case nil:
			return nil, fmt.Errorf("%w: query without root", ErrUnsupported)
		default:
			return nil, fmt.Errorf("%w: %s is not a query", ErrUnsupported, n.Kind())
		}
	}
}

// compileOrder renders the sort list. Key ASC COLLATE BINARY always ends
// the list so results are deterministic.
func (c *SQLCompiler) compileOrder(sorts []*ast.Sort) (string, []any, error) {
	var parts []string
	var params []any
	for _, s := range sorts {
		switch s.Field.Type.Base() {
		case scalar.Bool, scalar.DateTime, scalar.Bytes:
			return "", nil, fmt.Errorf("%w: sort on %s", ErrUnsupported, s.Field.Type)
		}
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("json_extract(body, ?) %s", dir))
		params = append(params, JSONPath(s.Field.Name))
	}
	parts = append(parts, "key ASC COLLATE BINARY")
	return strings.Join(parts, ", "), params, nil
}

// compilePredicate compiles a filter to a two-valued SQL condition: every
// fragment yields 0 or 1, never NULL, so Not behaves as in memory.
func (c *SQLCompiler) compilePredicate(p ast.Node) (string, []any, error) {
	switch pred := p.(type) {
	case *ast.And:
		return c.compileBinary("AND", pred.Left, pred.Right)
	case *ast.Or:
		return c.compileBinary("OR", pred.Left, pred.Right)
	case *ast.Not:
		sql, params, err := c.compilePredicate(pred.Operand)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	case *ast.Comparison:
		return c.compileComparison(pred)
	default:
		return "", nil, fmt.Errorf("%w: predicate %s", ErrUnsupported, p.Kind())
	}
}

func (c *SQLCompiler) compileBinary(op string, l, r ast.Node) (string, []any, error) {
	ls, lp, err := c.compilePredicate(l)
	if err != nil {
		return "", nil, err
	}
	rs, rp, err := c.compilePredicate(r)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("(%s %s %s)", ls, op, rs), append(lp, rp...), nil
}

// compileComparison compiles one comparison. Equality uses IS so null
// fields compare like values; ordering and string operators on a null
// field are false.
func (c *SQLCompiler) compileComparison(cmp *ast.Comparison) (string, []any, error) {
	lit, ok := cmp.Value.(*ast.Scalar)
	if !ok {
		return "", nil, fmt.Errorf("%w: comparison value %s", ErrUnsupported, cmp.Value.Kind())
	}
	param, err := scalarToParam(lit.Value, cmp.Field.Type)
	if err != nil {
		return "", nil, fmt.Errorf("%s %s: %w", cmp.Op, cmp.Field.Name, err)
	}
	field := "json_extract(body, ?)"
	path := JSONPath(cmp.Field.Name)

	switch cmp.Op {
	case ast.KindEQ:
		return field + " IS ?", []any{path, param}, nil
	case ast.KindNE:
		return field + " IS NOT ?", []any{path, param}, nil
	}
	if param == nil {
		return "0", nil, nil
	}
	switch cmp.Op {
	case ast.KindGT, ast.KindGTE, ast.KindLT, ast.KindLTE:
		if _, isBool := param.(bool); isBool {
			return "", nil, fmt.Errorf("%w: %s on bool", ErrUnsupported, cmp.Op)
		}
		return fmt.Sprintf("COALESCE(%s %s ?, 0)", field, sqlOperator(cmp.Op)), []any{path, param}, nil
	case ast.KindStartsWith:
		s, ok := param.(string)
		if !ok {
			return "0", nil, nil
		}
		return fmt.Sprintf("COALESCE(substr(%s, 1, ?) = ?, 0)", field), []any{path, int64(len([]rune(s))), s}, nil
	case ast.KindContains:
		s, ok := param.(string)
		if !ok {
			return "0", nil, nil
		}
		return fmt.Sprintf("COALESCE(instr(%s, ?) > 0, 0)", field), []any{path, s}, nil
	}
	return "", nil, fmt.Errorf("%w: operator %s", ErrUnsupported, cmp.Op)
}

func sqlOperator(k ast.NodeKind) string {
	switch k {
	case ast.KindGT:
		return ">"
	case ast.KindGTE:
		return ">="
	case ast.KindLT:
		return "<"
	default:
		return "<="
	}
}

// JSONPath converts a dotted field path to a SQLite JSON path.
func JSONPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(part, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

// scalarToParam converts a literal to the form json_extract returns for
// the same JSON value. Time and byte values are stored as text with
// varying precision and encoding, so they have no exact SQL comparison.
func scalarToParam(v any, t scalar.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t.Base() == scalar.Enum {
		prim, _, err := scalar.Underlying(v)
		if err != nil {
			return nil, err
		}
		v = prim
	}
	switch val := v.(type) {
	case bool, string:
		return val, nil
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case time.Duration:
		return int64(val), nil
	case uuid.UUID:
		return val.String(), nil
	case time.Time, []byte:
		return nil, fmt.Errorf("%w: %T parameter", ErrUnsupported, v)
	}
	i, err := scalar.Convert(v, scalar.Int64)
	if err != nil {
		return nil, fmt.Errorf("%w: %T parameter", ErrUnsupported, v)
	}
	return i, nil
}

// ParseToken returns the row offset encoded in a page token. The empty
// token is the first page.
func ParseToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	return n, nil
}

// NextToken returns the token of the page after the one at offset.
func NextToken(offset, size int) string {
	return strconv.Itoa(offset + size)
}
