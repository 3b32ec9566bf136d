package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/eval"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/scalar"
)

type person struct {
	model.Entity
	Name string
	Age  int32
}

type knows struct {
	model.Link
}

// memory is a NodeExecutor over a slice of models.
type memory struct {
	eval      *eval.Evaluator
	models    []model.Model
	saved     []*ast.Save
	traversed []*ast.Returns
}

func (m *memory) Query(_ context.Context, n *ast.Page) (*model.Page[model.Model], error) {
	src := n.Source
	var sorts []*ast.Sort
	if o, ok := src.(*ast.OrderBy); ok {
		sorts, src = o.Sorts, o.Source
	}
	var filter ast.Node
	if p, ok := src.(*ast.Predicate); ok {
		filter, src = p.Filter, p.Source
	}
	root := src.(*ast.QueryRoot)
	var typed []model.Model
	for _, x := range m.models {
		if strings.HasPrefix(model.KeyOf(x), root.ModelType+"/") {
			typed = append(typed, x)
		}
	}
	out, err := m.eval.Filter(typed, filter)
	if err != nil {
		return nil, err
	}
	if err := m.eval.Sort(out, sorts); err != nil {
		return nil, err
	}
	return &model.Page[model.Model]{Items: out}, nil
}

func (m *memory) Save(_ context.Context, n *ast.Save) (model.Model, error) {
	m.saved = append(m.saved, n)
	n.Model.Base().Key = "Person/1"
	n.Model.Base().IsNew = false
	return n.Model, nil
}

func (m *memory) Delete(context.Context, *ast.Delete) (int64, error) {
	return 1, nil
}

func (m *memory) Traverse(_ context.Context, n *ast.Returns) ([]*model.Path, error) {
	m.traversed = append(m.traversed, n)
	return []*model.Path{{Root: m.models[0]}}, nil
}

func newProvider(t *testing.T) (*Provider, *memory) {
	t.Helper()
	reg := model.NewRegistry()
	require.NoError(t, reg.Register("Person", &person{}))
	require.NoError(t, reg.Register("Knows", &knows{}))
	mem := &memory{eval: eval.New(reg), models: []model.Model{
		&person{Entity: model.Entity{Key: "Person/a"}, Name: "Ada", Age: 36},
		&person{Entity: model.Entity{Key: "Person/b"}, Name: "Bob", Age: 20},
		&person{Entity: model.Entity{Key: "Person/c"}, Name: "Alan", Age: 41},
	}}
	p := NewProvider(reg, plan.NewGenericBuilder(), plan.FactoryFunc(func(context.Context) (any, error) {
		return mem, nil
	}))
	return p, mem
}

func TestSetList(t *testing.T) {
	p, _ := newProvider(t)
	people, err := From[*person](p)
	require.NoError(t, err)

	got, err := people.
		Where(func(x *expr.Param) expr.Expr {
			return expr.And(
				expr.Gt(expr.Prop(x, "Age"), expr.Const(30)),
				expr.Method(expr.Prop(x, "Name"), "StartsWith", expr.Const("A")),
			)
		}).
		OrderByDescending("Age").
		List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alan", got[0].Name)
	assert.Equal(t, "Ada", got[1].Name)

	first, ok, err := people.OrderBy("Name").ThenBy("Age").First(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", first.Name)

	_, ok, err = people.Where(func(x *expr.Param) expr.Expr {
		return expr.Eq(expr.Prop(x, "Name"), expr.Const("Zed"))
	}).First(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetReusesCachedPlans(t *testing.T) {
	p, _ := newProvider(t)
	people, err := From[*person](p)
	require.NoError(t, err)
	older := func(age int) *Set[*person] {
		return people.Where(func(x *expr.Param) expr.Expr {
			return expr.Gt(expr.Prop(x, "Age"), expr.Const(age))
		})
	}

	a, err := older(30).List(context.Background())
	require.NoError(t, err)
	b, err := older(10).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, a, 2)
	assert.Len(t, b, 3)

	stats := p.Cache().Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestModelsByName(t *testing.T) {
	p, _ := newProvider(t)
	set, err := Models(p, "Person")
	require.NoError(t, err)
	all, err := set.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = Models(p, "Robot")
	assert.ErrorIs(t, err, model.ErrUnknownType)

	_, err = From[*knows](p)
	require.NoError(t, err)
}

func TestInsertAndDelete(t *testing.T) {
	p, mem := newProvider(t)
	ada := &person{Entity: model.Entity{Key: model.NewKey("Person"), IsNew: true}, Name: "Ada"}

	saved, err := p.Insert(context.Background(), ada, "Org/7")
	require.NoError(t, err)
	assert.Equal(t, "Person/1", saved.Base().Key)
	require.Len(t, mem.saved, 1)
	assert.Equal(t, ast.NewScalar(scalar.String.Nullable(), "Org/7"), mem.saved[0].OrgUnit)

	_, err = p.Update(context.Background(), ada, "")
	require.NoError(t, err)
	assert.Nil(t, mem.saved[1].OrgUnit)

	n, err := p.Delete(context.Background(), ada)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ada.IsDeleted = true
	_, err = p.Update(context.Background(), ada, "")
	assert.ErrorIs(t, err, model.ErrModelDeleted)
}

func TestTraversal(t *testing.T) {
	p, mem := newProvider(t)

	paths, err := p.Traverse("Person", "Person/a").
		Out("Knows", "Person", func(x *expr.Param) expr.Expr {
			return expr.Gt(expr.Prop(x, "Age"), expr.Const(18))
		}).
		Out("Knows", "Person").
		List(context.Background())
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	require.Len(t, mem.traversed, 1)
	r := mem.traversed[0]
	assert.Equal(t, int32(2), r.EdgeDepth)
	assert.Equal(t, int32(2), r.NodeDepth)
	assert.Equal(t, ast.TerminalModel, r.Terminal)

	_, err = p.Traverse("Person", "Person/a").Returns(binder.SelectRoot).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), mem.traversed[1].EdgeDepth)

	_, err = p.Traverse("Person", "Person/a").In("Knows", "Person").Returns(binder.SelectEdge).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ast.TerminalEdge, mem.traversed[2].Terminal)
	origin := mem.traversed[2].Parent.(*ast.EdgeFilter).Parent.(*ast.TraverseOrigin)
	assert.Equal(t, ast.NewScalar(scalar.String, "Person/a"), origin.Key)
}
