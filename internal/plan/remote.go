package plan

import (
	"context"
	"fmt"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/eval"
	"github.com/roach88/linkgraph/internal/model"
)

// RemoteBuilder builds plans for a RemoteExecutor. Commands are sent in
// the textual AST form. Queries fetch the unfiltered collection page by
// page and apply filters and sorts locally.
type RemoteBuilder struct {
	codec *ast.Codec
	eval  *eval.Evaluator
}

// NewRemoteBuilder returns a builder that formats commands with reg.
func NewRemoteBuilder(reg *model.Registry) *RemoteBuilder {
	return &RemoteBuilder{codec: ast.NewCodec(reg), eval: eval.New(reg)}
}

func (b *RemoteBuilder) Build(root ast.Node, policy Policy) (*Plan, error) {
	if err := ast.Validate(root); err != nil {
		return nil, err
	}
	var body step
	switch n := root.(type) {
	case *ast.QueryRoot, *ast.Predicate, *ast.OrderBy:
		find, err := b.find(n, policy)
		if err != nil {
			return nil, err
		}
		body = find
	case *ast.Save:
		body = b.save(n)
	case *ast.Delete:
		body = b.delete(n)
	case *ast.Returns:
		rootType, ok := traversalRoot(n)
		if !ok {
			return nil, fmt.Errorf("%w: traversal without origin", ErrNotExecutable)
		}
		body = b.traverse(n, rootType, policy)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable, root.Kind())
	}
	return newPlan(root, policy, body), nil
}

func remoteExecutor(exec any) (RemoteExecutor, error) {
	re, ok := exec.(RemoteExecutor)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a RemoteExecutor", ErrExecutorType, exec)
	}
	return re, nil
}

// find splits n into its root, filter and sorts.
func (b *RemoteBuilder) find(n ast.Node, policy Policy) (step, error) {
	var sorts []*ast.Sort
	if o, ok := n.(*ast.OrderBy); ok {
		sorts, n = o.Sorts, o.Source
	}
	var filter ast.Node
	if p, ok := n.(*ast.Predicate); ok {
		filter, n = p.Filter, p.Source
	}
	root, ok := n.(*ast.QueryRoot)
	if !ok {
		return nil, fmt.Errorf("%w: remote query over %s", ErrNotExecutable, n.Kind())
	}
	bindFilter := binding(filter)
	if filter == nil {
		bindFilter = func([]any) (ast.Node, error) { return nil, nil }
	}

	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := remoteExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		f, err := bindFilter(inv.args)
		if err != nil {
			return nil, err
		}
		all, err := readPages(ctx, policy, func(ctx context.Context, token string) (*model.Page[model.Model], error) {
			cmd, err := b.codec.Format(&ast.Page{
				Source: &ast.Predicate{Source: root},
				Size:   int32(policy.PageSize),
				Token:  token,
			})
			if err != nil {
				return nil, err
			}
			return exec.Query(ctx, root.ModelType, cmd)
		})
		if err != nil {
			return nil, err
		}
		out, err := b.eval.Filter(all, f)
		if err != nil {
			return nil, err
		}
		if err := b.eval.Sort(out, sorts); err != nil {
			return nil, err
		}
		return out, nil
	}, nil
}

func (b *RemoteBuilder) save(n *ast.Save) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := remoteExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		tree, err := bind(inv.args)
		if err != nil {
			return nil, err
		}
		save := tree.(*ast.Save)
		if err := model.CheckSavable(save.Model, false); err != nil {
			return nil, err
		}
		cmd, err := b.codec.Format(save)
		if err != nil {
			return nil, err
		}
		m, err := exec.Save(ctx, save.ModelType, cmd)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", save.ModelType, err)
		}
		return m, nil
	}
}

func (b *RemoteBuilder) delete(n *ast.Delete) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := remoteExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		tree, err := bind(inv.args)
		if err != nil {
			return nil, err
		}
		del := tree.(*ast.Delete)
		if err := model.CheckSavable(del.Model, true); err != nil {
			return nil, err
		}
		cmd, err := b.codec.Format(del)
		if err != nil {
			return nil, err
		}
		count, err := exec.Delete(ctx, del.ModelType, cmd)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", del.ModelType, err)
		}
		return count, nil
	}
}

func (b *RemoteBuilder) traverse(n *ast.Returns, rootType string, policy Policy) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := remoteExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		tree, err := bind(inv.args)
		if err != nil {
			return nil, err
		}
		paths, err := readPages(ctx, policy, func(ctx context.Context, token string) (*model.Page[*model.Path], error) {
			cmd, err := b.codec.Format(&ast.Page{Source: tree, Size: int32(policy.PageSize), Token: token})
			if err != nil {
				return nil, err
			}
			return exec.Traverse(ctx, rootType, cmd)
		})
		if err != nil {
			return nil, err
		}
		if err := validatePaths(paths); err != nil {
			return nil, err
		}
		return paths, nil
	}
}
