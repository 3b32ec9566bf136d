package query

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
)

// Predicate builds a filter body over the lambda parameter.
type Predicate func(x *expr.Param) expr.Expr

// Set is an immutable query over one model type. Every builder method
// returns a new Set.
type Set[T model.Model] struct {
	p *Provider
	e expr.Expr
}

// From returns the collection of T, which must be a registered pointer
// type.
func From[T model.Model](p *Provider) (*Set[T], error) {
	name, err := p.reg.NameOfGo(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return newSet[T](p, name)
}

// Models returns the collection of a registered type by name. Dynamic
// types are read this way.
func Models(p *Provider, name string) (*Set[model.Model], error) {
	return newSet[model.Model](p, name)
}

func newSet[T model.Model](p *Provider, name string) (*Set[T], error) {
	info, err := p.reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Set[T]{p: p, e: expr.Root(info.Name, info.IsLink, p)}, nil
}

func (s *Set[T]) with(op string, args ...expr.Expr) *Set[T] {
	return &Set[T]{p: s.p, e: expr.Seq(op, append([]expr.Expr{s.e}, args...)...)}
}

// Where filters the collection.
func (s *Set[T]) Where(fn Predicate) *Set[T] {
	x := expr.P("x")
	return s.with(binder.OpWhere, expr.Fn(x, fn(x)))
}

func (s *Set[T]) order(op, path string) *Set[T] {
	x := expr.P("x")
	return s.with(op, expr.Fn(x, expr.Prop(x, path)))
}

// OrderBy sorts ascending by the field at the dotted Go path.
func (s *Set[T]) OrderBy(path string) *Set[T] { return s.order(binder.OpOrderBy, path) }

// OrderByDescending sorts descending by the field at path.
func (s *Set[T]) OrderByDescending(path string) *Set[T] {
	return s.order(binder.OpOrderByDescending, path)
}

// ThenBy adds an ascending secondary sort.
func (s *Set[T]) ThenBy(path string) *Set[T] { return s.order(binder.OpThenBy, path) }

// ThenByDescending adds a descending secondary sort.
func (s *Set[T]) ThenByDescending(path string) *Set[T] {
	return s.order(binder.OpThenByDescending, path)
}

// Expr returns the expression the set has built.
func (s *Set[T]) Expr() expr.Expr {
	return s.e
}

// List runs the query.
func (s *Set[T]) List(ctx context.Context) ([]T, error) {
	v, err := s.p.Execute(ctx, s.e)
	if err != nil {
		return nil, err
	}
	models, ok := v.([]model.Model)
	if !ok {
		return nil, fmt.Errorf("query returned %T", v)
	}
	out := make([]T, 0, len(models))
	for _, m := range models {
		t, ok := m.(T)
		if !ok {
			return nil, fmt.Errorf("query returned %T, want %v", m, reflect.TypeFor[T]())
		}
		out = append(out, t)
	}
	return out, nil
}

// First returns the first result, and false when there is none.
func (s *Set[T]) First(ctx context.Context) (T, bool, error) {
	var zero T
	items, err := s.List(ctx)
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}
