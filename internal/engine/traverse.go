package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/store"
)

// walk is one partial path. Slices are never shared between walks.
type walk struct {
	root  model.Model
	nodes []model.Model
	edges []model.LinkModel
}

func (w walk) last() model.Model {
	if len(w.nodes) == 0 {
		return w.root
	}
	return w.nodes[len(w.nodes)-1]
}

func (w walk) lastEdge() model.LinkModel {
	if len(w.edges) == 0 {
		return nil
	}
	return w.edges[len(w.edges)-1]
}

func (w walk) uses(edgeKey string) bool {
	for _, e := range w.edges {
		if model.KeyOf(e) == edgeKey {
			return true
		}
	}
	return false
}

func (w walk) extend(edge model.LinkModel, node model.Model) walk {
	return walk{
		root:  w.root,
		nodes: append(append(make([]model.Model, 0, len(w.nodes)+1), w.nodes...), node),
		edges: append(append(make([]model.LinkModel, 0, len(w.edges)+1), w.edges...), edge),
	}
}

// traversal holds the state of one Traverse call.
type traversal struct {
	e      *Engine
	budget *visitBudget
	origin string

	// models caches decoded rows so every walk shares one instance per key.
	models map[string]model.Model
}

// Traverse walks the graph breadth first and returns every path, cut to
// the depths the Returns node asks for. A path never walks the same edge
// twice. An origin key that is not stored yields no paths.
func (e *Engine) Traverse(ctx context.Context, n *ast.Returns) (paths []*model.Path, err error) {
	ctx, span := tracer.Start(ctx, "engine.traverse")
	defer func() { endSpan(span, err) }()

	chain, err := traversalChain(n.Parent)
	if err != nil {
		return nil, err
	}
	t := &traversal{e: e, budget: newVisitBudget(e.maxVisits), models: map[string]model.Model{}}

	var walks []walk
	for _, step := range chain {
		switch s := step.(type) {
		case *ast.TraverseOrigin:
			walks, err = t.start(ctx, s)
		case *ast.PathRootFilter:
			walks, err = t.keep(walks, s.Predicate, func(w walk) model.Model { return w.root })
		case *ast.EdgeFilter:
			walks, err = t.hop(ctx, walks, s)
		case *ast.NodeFilter:
			walks, err = t.keep(walks, s.Predicate, walk.last)
		case *ast.EdgeMemberFilter:
			walks, err = t.keep(walks, s.Predicate, func(w walk) model.Model {
				if edge := w.lastEdge(); edge != nil {
					return edge
				}
				return nil
			})
		}
		if err != nil {
			return nil, err
		}
	}

	paths = materialize(walks, n)
	span.SetAttributes(
		attribute.Int("engine.visits", t.budget.current),
		attribute.Int("engine.paths", len(paths)),
	)
	return paths, nil
}

// traversalChain returns the steps below a Returns node, origin first.
func traversalChain(n ast.Node) ([]ast.Node, error) {
	var chain []ast.Node
	for n != nil {
		chain = append(chain, n)
		switch s := n.(type) {
		case *ast.TraverseOrigin:
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, nil
		case *ast.EdgeFilter:
			n = s.Parent
		case *ast.NodeFilter:
			n = s.Parent
		case *ast.EdgeMemberFilter:
			n = s.Parent
		case *ast.PathRootFilter:
			n = s.Parent
		default:
			return nil, fmt.Errorf("%w: %s in traversal chain", ErrInvalidTraversal, n.Kind())
		}
	}
	return nil, fmt.Errorf("%w: no origin", ErrInvalidTraversal)
}

func (t *traversal) start(ctx context.Context, o *ast.TraverseOrigin) ([]walk, error) {
	var key string
	switch k := o.Key.(type) {
	case *ast.Scalar:
		s, ok := k.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: origin key is %T", ErrInvalidTraversal, k.Value)
		}
		key = s
	case *ast.Parameter:
		return nil, fmt.Errorf("%w: origin key $%d", ast.ErrUnboundParameter, k.Index)
	default:
		return nil, fmt.Errorf("%w: origin key is %s", ErrInvalidTraversal, o.Key.Kind())
	}
	t.origin = key

	root, typeName, err := t.model(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if typeName != o.RootType {
		return nil, nil
	}
	return []walk{{root: root}}, nil
}

// model loads key once per traversal.
func (t *traversal) model(ctx context.Context, key string) (model.Model, string, error) {
	if m, ok := t.models[key]; ok {
		name, err := t.e.reg.NameOf(m)
		return m, name, err
	}
	rec, err := t.e.store.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	m, err := t.e.decode(rec)
	if err != nil {
		return nil, "", err
	}
	t.models[key] = m
	return m, rec.Type, nil
}

// keep retains the walks whose selected model matches predicate.
func (t *traversal) keep(walks []walk, predicate ast.Node, pick func(walk) model.Model) ([]walk, error) {
	out := walks[:0:0]
	for _, w := range walks {
		m := pick(w)
		if m == nil {
			continue
		}
		ok, err := t.e.eval.Match(m, predicate)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// hop extends every walk along the matching edges of its last node.
func (t *traversal) hop(ctx context.Context, walks []walk, f *ast.EdgeFilter) ([]walk, error) {
	dir := store.Outgoing
	if f.Direction == ast.KindInEdgeFilter {
		dir = store.Incoming
	}
	var out []walk
	for _, w := range walks {
		cur := w.last()
		records, err := t.e.store.Links(ctx, model.KeyOf(cur), f.EdgeType, dir)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if w.uses(rec.Key) {
				continue
			}
			otherKey := rec.ToKey
			if dir == store.Incoming {
				otherKey = rec.FromKey
			}
			node, typeName, err := t.model(ctx, otherKey)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if typeName != f.NodeType {
				continue
			}
			ok, err := t.e.eval.Match(node, f.Predicate)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			edge, err := t.edge(ctx, rec)
			if err != nil {
				return nil, err
			}
			if err := t.budget.Check(t.origin); err != nil {
				return nil, err
			}
			out = append(out, w.extend(edge, node))
		}
	}
	return out, nil
}

// edge decodes a link row and points it at the cached endpoint instances.
func (t *traversal) edge(ctx context.Context, rec store.Record) (model.LinkModel, error) {
	m, _, err := t.model(ctx, rec.Key)
	if err != nil {
		return nil, err
	}
	lm, ok := m.(model.LinkModel)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a link", ErrInvalidTraversal, rec.Key)
	}
	l := lm.LinkBase()
	if l.From == nil {
		if from, ok := t.models[rec.FromKey]; ok {
			l.From = from
		}
	}
	if l.To == nil {
		if to, ok := t.models[rec.ToKey]; ok {
			l.To = to
		}
	}
	return lm, nil
}

// materialize cuts each walk to the requested depths and drops paths
// that become identical. Nodes are kept at least as deep as edges so
// every edge endpoint is in the path.
func materialize(walks []walk, n *ast.Returns) []*model.Path {
	edgeDepth := int(n.EdgeDepth)
	nodeDepth := max(int(n.NodeDepth), edgeDepth)

	paths := []*model.Path{}
	seen := map[string]struct{}{}
	for _, w := range walks {
		p := &model.Path{
			Root:  w.root,
			Nodes: w.nodes[:min(nodeDepth, len(w.nodes))],
			Edges: w.edges[:min(edgeDepth, len(w.edges))],
		}
		sig := signature(p)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

func signature(p *model.Path) string {
	var b strings.Builder
	b.WriteString(model.KeyOf(p.Root))
	for _, n := range p.Nodes {
		b.WriteString("|n:")
		b.WriteString(model.KeyOf(n))
	}
	for _, e := range p.Edges {
		b.WriteString("|e:")
		b.WriteString(model.KeyOf(e))
	}
	return b.String()
}
