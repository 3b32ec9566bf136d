package engine

import (
	"context"
	"fmt"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/querysql"
)

// Remote serves formatted AST commands, the receiving end of plans built
// by plan.RemoteBuilder.
type Remote struct {
	e *Engine
}

// Remote returns the command-serving view of the engine.
func (e *Engine) Remote() *Remote {
	return &Remote{e: e}
}

// RemoteFactory returns a plan factory that hands out the engine as a
// plan.RemoteExecutor.
func (e *Engine) RemoteFactory() plan.Factory {
	r := e.Remote()
	return plan.FactoryFunc(func(context.Context) (any, error) {
		return r, nil
	})
}

// parse decodes command and checks that it is a T.
func parse[T ast.Node](r *Remote, command string) (T, error) {
	var zero T
	n, err := r.e.codec.Parse(command)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCommand, err)
	}
	t, ok := n.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %s", ErrCommand, n.Kind())
	}
	return t, nil
}

func checkType(want, got string) error {
	if want != got {
		return fmt.Errorf("%w: command for %s sent as %s", ErrCommand, got, want)
	}
	return nil
}

// Delete runs a formatted Delete command.
func (r *Remote) Delete(ctx context.Context, modelType, command string) (int64, error) {
	n, err := parse[*ast.Delete](r, command)
	if err != nil {
		return 0, err
	}
	if err := checkType(modelType, n.ModelType); err != nil {
		return 0, err
	}
	return r.e.Delete(ctx, n)
}

// Save runs a formatted Save command.
func (r *Remote) Save(ctx context.Context, modelType, command string) (model.Model, error) {
	n, err := parse[*ast.Save](r, command)
	if err != nil {
		return nil, err
	}
	if err := checkType(modelType, n.ModelType); err != nil {
		return nil, err
	}
	return r.e.Save(ctx, n)
}

// Query runs a formatted Page command over a query tree.
func (r *Remote) Query(ctx context.Context, modelType, command string) (*model.Page[model.Model], error) {
	n, err := parse[*ast.Page](r, command)
	if err != nil {
		return nil, err
	}
	parts, err := querysql.Split(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommand, err)
	}
	if err := checkType(modelType, parts.Root.ModelType); err != nil {
		return nil, err
	}
	return r.e.Query(ctx, n)
}

// Traverse runs a formatted Page command over a Returns node and returns
// the requested window of paths.
func (r *Remote) Traverse(ctx context.Context, modelType, command string) (*model.Page[*model.Path], error) {
	n, err := parse[*ast.Page](r, command)
	if err != nil {
		return nil, err
	}
	returns, ok := n.Source.(*ast.Returns)
	if !ok {
		return nil, fmt.Errorf("%w: traversal page over %s", ErrCommand, n.Source.Kind())
	}
	if n.Size <= 0 {
		return nil, fmt.Errorf("%w: page size %d", ErrCommand, n.Size)
	}
	chain, err := traversalChain(returns.Parent)
	if err != nil {
		return nil, err
	}
	if err := checkType(modelType, chain[0].(*ast.TraverseOrigin).RootType); err != nil {
		return nil, err
	}
	offset, err := querysql.ParseToken(n.Token)
	if err != nil {
		return nil, err
	}

	paths, err := r.e.Traverse(ctx, returns)
	if err != nil {
		return nil, err
	}
	out := &model.Page[*model.Path]{Items: []*model.Path{}}
	if offset >= len(paths) {
		return out, nil
	}
	end := min(offset+int(n.Size), len(paths))
	out.Items = paths[offset:end]
	if end < len(paths) {
		out.Next = querysql.NextToken(offset, int(n.Size))
	}
	return out, nil
}
