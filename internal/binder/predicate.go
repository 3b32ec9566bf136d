package binder

import (
	"reflect"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

var comparisonOps = map[expr.BinaryOp]ast.NodeKind{
	expr.Equal:              ast.KindEQ,
	expr.NotEqual:           ast.KindNE,
	expr.GreaterThan:        ast.KindGT,
	expr.GreaterThanOrEqual: ast.KindGTE,
	expr.LessThan:           ast.KindLT,
	expr.LessThanOrEqual:    ast.KindLTE,
}

var stringMethods = map[string]ast.NodeKind{
	"StartsWith": ast.KindStartsWith,
	"Contains":   ast.KindContains,
}

func (b *Binder) bindLambdaPredicate(op string, e expr.Expr, typeName string) (ast.Node, error) {
	lambda, param, err := lambda1(op, e)
	if err != nil {
		return nil, err
	}
	return b.bindBool(op, lambda.Body, param, typeName)
}

func (b *Binder) bindBool(op string, e expr.Expr, param *expr.Param, typeName string) (ast.Node, error) {
	switch e := e.(type) {
	case *expr.Binary:
		switch e.Op {
		case expr.AndAlso, expr.OrElse:
			left, err := b.bindBool(op, e.L, param, typeName)
			if err != nil {
				return nil, err
			}
			right, err := b.bindBool(op, e.R, param, typeName)
			if err != nil {
				return nil, err
			}
			if e.Op == expr.AndAlso {
				return ast.NewAnd(left, right), nil
			}
			return ast.NewOr(left, right), nil
		}
		kind, ok := comparisonOps[e.Op]
		if !ok {
			return nil, bindErr(op, e, ErrNotSupported, "operator %s", e.Op)
		}
		return b.bindComparison(op, kind, e.L, e.R, param, typeName)
	case *expr.Unary:
		operand, err := b.bindBool(op, e.X, param, typeName)
		if err != nil {
			return nil, err
		}
		return ast.NewNot(operand), nil
	case *expr.Call:
		kind, ok := stringMethods[e.Method]
		if !ok || e.Object == nil || len(e.Args) != 1 {
			return nil, bindErr(op, e, ErrNotSupported, "method %s", e.Method)
		}
		field, info, err := b.resolveField(op, e.Object, param, typeName)
		if err != nil {
			return nil, err
		}
		if field.Type.Base() != scalar.String {
			return nil, bindErr(op, e, ErrTypeMismatch, "%s on %s field %s", e.Method, field.Type, field.Name)
		}
		value, err := b.bindValue(op, e.Args[0], scalar.String, info)
		if err != nil {
			return nil, err
		}
		return ast.NewComparison(kind, field, value), nil
	case *expr.Member:
		field, _, err := b.resolveField(op, e, param, typeName)
		if err != nil {
			return nil, err
		}
		if field.Type.Base() != scalar.Bool {
			return nil, bindErr(op, e, ErrTypeMismatch, "%s field %s used as a condition", field.Type, field.Name)
		}
		return ast.NewComparison(ast.KindEQ, field, ast.NewScalar(field.Type, true)), nil
	default:
		return nil, bindErr(op, e, ErrNotSupported, "%T in predicate", e)
	}
}

func (b *Binder) bindComparison(op string, kind ast.NodeKind, l, r expr.Expr, param *expr.Param, typeName string) (ast.Node, error) {
	fieldExpr, valueExpr := l, r
	if !rootedAt(l, param) {
		if !rootedAt(r, param) {
			return nil, bindErr(op, &expr.Binary{L: l, R: r}, ErrUnresolvableMember, "no operand references the lambda parameter")
		}
		fieldExpr, valueExpr = r, l
		kind = kind.Flip()
	}
	field, info, err := b.resolveField(op, fieldExpr, param, typeName)
	if err != nil {
		return nil, err
	}
	value, err := b.bindValue(op, valueExpr, field.Type, info)
	if err != nil {
		return nil, err
	}
	return ast.NewComparison(kind, field, value), nil
}

// rootedAt reports whether e is a member chain over param.
func rootedAt(e expr.Expr, param *expr.Param) bool {
	for {
		switch x := e.(type) {
		case *expr.Member:
			e = x.X
		case *expr.Param:
			return x == param || x.Name == param.Name
		default:
			return false
		}
	}
}

// resolveField turns a member chain over param into a field reference.
func (b *Binder) resolveField(op string, e expr.Expr, param *expr.Param, typeName string) (*ast.Field, *model.FieldInfo, error) {
	var names []string
	cur := e
	for {
		m, ok := cur.(*expr.Member)
		if !ok {
			break
		}
		names = append(names, m.Name)
		cur = m.X
	}
	p, ok := cur.(*expr.Param)
	if !ok || len(names) == 0 || (p != param && p.Name != param.Name) {
		return nil, nil, bindErr(op, e, ErrUnresolvableMember, "expression is not a member of %s", param.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	path := strings.Join(names, ".")
	info, err := b.lookupField(typeName, path)
	if err != nil {
		return nil, nil, bindErr(op, e, err, "")
	}
	return ast.NewField(info.Path, info.Type), info, nil
}

// convertLiteral narrows v to the field type. Enum fields convert through
// the field's Go enum type. Strings are NFC normalized.
func convertLiteral(v any, t scalar.Type, field *model.FieldInfo) (any, error) {
	if t.Base() == scalar.Enum && field != nil && field.GoType != nil {
		if v == nil && t.IsNullable() {
			return nil, nil
		}
		rt := field.GoType
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		return scalar.ConvertEnum(v, rt)
	}
	cv, err := scalar.Convert(v, t)
	if err != nil {
		return nil, err
	}
	if s, ok := cv.(string); ok {
		cv = norm.NFC.String(s)
	}
	return cv, nil
}
