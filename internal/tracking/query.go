package tracking

import (
	"context"

	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/query"
)

// List runs set and, while tracking is enabled, attaches the results and
// returns the tracked instances in their place. Results refresh the
// committed state of clean records.
func List[T model.Model](ctx context.Context, r *Repository, set *query.Set[T]) ([]T, error) {
	items, err := set.List(ctx)
	if err != nil || !r.mgr.Enabled() {
		return items, err
	}
	for i, m := range items {
		t, err := r.attach(m, Unknown, true)
		if err != nil {
			return nil, err
		}
		if tm, ok := t.Model.(T); ok {
			items[i] = tm
		}
	}
	return items, nil
}

// Traverse runs t and, while tracking is enabled, attaches every path.
func Traverse(ctx context.Context, r *Repository, t *query.Traversal) ([]*model.Path, error) {
	paths, err := t.List(ctx)
	if err != nil || !r.mgr.Enabled() {
		return paths, err
	}
	for _, p := range paths {
		if err := r.attachPath(p, true); err != nil {
			return nil, err
		}
	}
	return paths, nil
}
