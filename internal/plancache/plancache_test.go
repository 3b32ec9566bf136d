package plancache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
)

type person struct {
	model.Entity
	Name string
	Age  int32
	Tall bool
}

func newRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	require.NoError(t, reg.Register("Person", &person{}))
	return reg
}

func newCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	reg := newRegistry(t)
	return New(binder.New(reg), plan.NewGenericBuilder(), NewDefaultPolicy(reg), opts...)
}

func olderThan(source any, age any, prefix string) expr.Expr {
	p := expr.P("p")
	return expr.Seq(binder.OpWhere, expr.Root("Person", false, source), expr.Fn(p, expr.And(
		expr.Gt(expr.Prop(p, "Age"), expr.Const(age)),
		expr.Method(expr.Prop(p, "Name"), "StartsWith", expr.Const(prefix)),
	)))
}

func TestParameterize(t *testing.T) {
	reg := newRegistry(t)
	shape, args, err := Parameterize(olderThan("people", 30, "A"), NewDefaultPolicy(reg))
	require.NoError(t, err)

	assert.Equal(t, []any{30, "A"}, args)
	assert.Equal(t, "Where(Person, p => ((p.Age > $0) && p.Name.StartsWith($1)))", expr.String(shape))
	var indexes []int
	expr.Walk(shape, func(e expr.Expr) bool {
		if a, ok := e.(*expr.Arg); ok {
			indexes = append(indexes, a.Index)
		}
		return true
	})
	assert.Equal(t, []int{0, 1}, indexes)
	assert.True(t, expr.IsQueryRoot(shape.(*expr.Call).Args[0]))
}

func TestParameterizeEvaluatesCaptures(t *testing.T) {
	reg := newRegistry(t)
	captured := struct{ Min int32 }{Min: 18}
	p := expr.P("p")
	e := expr.Seq(binder.OpWhere, expr.Root("Person", false, nil),
		expr.Fn(p, expr.Ge(expr.Prop(p, "Age"), expr.Prop(expr.Const(captured), "Min"))))

	shape, args, err := Parameterize(e, NewDefaultPolicy(reg))
	require.NoError(t, err)
	assert.Equal(t, []any{int32(18)}, args)
	assert.Equal(t, "Where(Person, p => (p.Age >= $0))", expr.String(shape))
}

func TestParameterizeModelsAndTypeNames(t *testing.T) {
	reg := newRegistry(t)
	ada := &person{Entity: model.Entity{Key: "Person/a"}}

	shape, args, err := Parameterize(expr.Seq(binder.OpInsert, expr.Const(ada)), NewDefaultPolicy(reg))
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Same(t, ada, args[0])
	arg := shape.(*expr.Call).Args[0].(*expr.Arg)
	assert.Equal(t, "Person", arg.ModelType)

	traversal := expr.Seq(binder.OpTraverse, expr.Type("Person"), expr.Const("Person/a"))
	shape, args, err = Parameterize(traversal, NewDefaultPolicy(reg))
	require.NoError(t, err)
	assert.Equal(t, []any{"Person/a"}, args)
	assert.Equal(t, expr.TypeName("Person"), shape.(*expr.Call).Args[0].(*expr.Constant).Value)

	shape, args, err = Parameterize(expr.Eq(expr.Prop(expr.P("p"), "Name"), expr.Const(nil)), NewDefaultPolicy(reg))
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.IsType(t, &expr.Constant{}, shape.(*expr.Binary).R)
}

func TestLookupSharesPlansAcrossValues(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	first, args, err := c.Lookup(ctx, plan.DefaultPolicy(), olderThan("a", 30, "A"))
	require.NoError(t, err)
	assert.Equal(t, []any{30, "A"}, args)
	assert.Equal(t, 2, first.Arity)
	assert.False(t, first.Packed)

	second, args, err := c.Lookup(ctx, plan.DefaultPolicy(), olderThan("b", 41, "Z"))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []any{41, "Z"}, args)

	_, _, err = c.Lookup(ctx, plan.Policy{Name: "small", PageSize: 5}, olderThan("a", 30, "A"))
	require.NoError(t, err)

	assert.Equal(t, Stats{Hits: 1, Misses: 2}, c.Stats())
	assert.Equal(t, 2, c.Len())
}

func TestLookupDistinguishesShapes(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	p := expr.P("p")

	a, _, err := c.Lookup(ctx, plan.DefaultPolicy(), olderThan(nil, 30, "A"))
	require.NoError(t, err)
	b, _, err := c.Lookup(ctx, plan.DefaultPolicy(), expr.Seq(binder.OpWhere, expr.Root("Person", false, nil),
		expr.Fn(p, expr.Lt(expr.Prop(p, "Age"), expr.Const(30)))))
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	// a constant of another type is another shape
	d, _, err := c.Lookup(ctx, plan.DefaultPolicy(), olderThan(nil, int64(30), "A"))
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.Equal(t, int64(3), c.Stats().Misses)
}

func TestLookupEvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(t, WithCapacity(2))
	ctx := context.Background()
	p := expr.P("p")
	shapes := []expr.Expr{
		expr.Seq(binder.OpWhere, expr.Root("Person", false, nil), expr.Fn(p, expr.Gt(expr.Prop(p, "Age"), expr.Const(1)))),
		expr.Seq(binder.OpWhere, expr.Root("Person", false, nil), expr.Fn(p, expr.Lt(expr.Prop(p, "Age"), expr.Const(1)))),
		expr.Seq(binder.OpWhere, expr.Root("Person", false, nil), expr.Fn(p, expr.Eq(expr.Prop(p, "Age"), expr.Const(1)))),
	}

	first, _, err := c.Lookup(ctx, plan.DefaultPolicy(), shapes[0])
	require.NoError(t, err)
	_, _, err = c.Lookup(ctx, plan.DefaultPolicy(), shapes[1])
	require.NoError(t, err)
	again, _, err := c.Lookup(ctx, plan.DefaultPolicy(), shapes[0])
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, _, err = c.Lookup(ctx, plan.DefaultPolicy(), shapes[2])
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evictions)

	// shapes[1] was least recently used
	_, _, err = c.Lookup(ctx, plan.DefaultPolicy(), shapes[0])
	require.NoError(t, err)
	_, _, err = c.Lookup(ctx, plan.DefaultPolicy(), shapes[1])
	require.NoError(t, err)
	assert.Equal(t, Stats{Hits: 2, Misses: 4, Evictions: 2}, c.Stats())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLookupPacksWideArgumentLists(t *testing.T) {
	c := newCache(t)
	p := expr.P("p")
	age := func(op func(l, r expr.Expr) *expr.Binary, v int) expr.Expr {
		return op(expr.Prop(p, "Age"), expr.Const(v))
	}
	e := expr.Seq(binder.OpWhere, expr.Root("Person", false, nil), expr.Fn(p,
		expr.And(expr.And(expr.And(expr.And(
			age(expr.Gt, 1), age(expr.Lt, 90)), age(expr.Ne, 5)), age(expr.Ne, 6)),
			expr.Eq(expr.Prop(p, "Name"), expr.Const("x")))))

	q, args, err := c.Lookup(context.Background(), plan.DefaultPolicy(), e)
	require.NoError(t, err)
	assert.Equal(t, 5, q.Arity)
	assert.True(t, q.Packed)
	assert.True(t, q.Plan.Packed)
	assert.Len(t, args, 5)

	_, err = q.Plan.Invoke(context.Background(), plan.FactoryFunc(func(context.Context) (any, error) { return &recorder{}, nil }), args...)
	assert.ErrorIs(t, err, plan.ErrArity, "packed plans take the argument slice itself")

	exec := &recorder{}
	res, err := q.Invoke(context.Background(), plan.FactoryFunc(func(context.Context) (any, error) { return exec, nil }), args)
	require.NoError(t, err)
	assert.Empty(t, res.Value)
	require.Len(t, exec.pages, 1)
	assert.Empty(t, ast.Parameters(exec.pages[0]))
}

func TestLookupDoesNotCacheBindErrors(t *testing.T) {
	c := newCache(t)
	p := expr.P("p")
	bad := expr.Seq(binder.OpWhere, expr.Root("Person", false, nil), expr.Fn(p, expr.Eq(expr.Prop(p, "Shoe"), expr.Const(1))))

	_, _, err := c.Lookup(context.Background(), plan.DefaultPolicy(), bad)
	assert.ErrorIs(t, err, binder.ErrUnresolvableMember)
	assert.Equal(t, 0, c.Len())
}

type recorder struct {
	pages []*ast.Page
}

func (r *recorder) Query(_ context.Context, n *ast.Page) (*model.Page[model.Model], error) {
	r.pages = append(r.pages, n)
	return &model.Page[model.Model]{}, nil
}

func (r *recorder) Save(context.Context, *ast.Save) (model.Model, error)       { return nil, nil }
func (r *recorder) Delete(context.Context, *ast.Delete) (int64, error)         { return 0, nil }
func (r *recorder) Traverse(context.Context, *ast.Returns) ([]*model.Path, error) { return nil, nil }
