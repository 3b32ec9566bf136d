package plan

import (
	"context"
	"fmt"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/model"
)

// GenericBuilder builds plans for a NodeExecutor.
type GenericBuilder struct{}

// NewGenericBuilder returns a builder for in-process executors.
func NewGenericBuilder() *GenericBuilder {
	return &GenericBuilder{}
}

// Build compiles root. Model invariants of literal Save and Delete nodes
// are checked here; parameterized ones are checked per invocation.
func (b *GenericBuilder) Build(root ast.Node, policy Policy) (*Plan, error) {
	if err := ast.Validate(root); err != nil {
		return nil, err
	}
	body, err := b.compile(root, policy)
	if err != nil {
		return nil, err
	}
	return newPlan(root, policy, body), nil
}

func (b *GenericBuilder) compile(root ast.Node, policy Policy) (step, error) {
	switch n := root.(type) {
	case *ast.QueryRoot, *ast.Predicate, *ast.OrderBy:
		if !querySource(n) {
			return nil, fmt.Errorf("%w: %s", ErrNotExecutable, n.Kind())
		}
		return genericQuery(n, policy), nil
	case *ast.Page:
		if !querySource(n.Source) {
			return nil, fmt.Errorf("%w: page over %s", ErrNotExecutable, n.Source.Kind())
		}
		return genericPage(n), nil
	case *ast.Save:
		return genericSave(n), nil
	case *ast.Delete:
		return genericDelete(n), nil
	case *ast.Returns:
		return genericTraverse(n), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable, root.Kind())
	}
}

func nodeExecutor(exec any) (NodeExecutor, error) {
	ne, ok := exec.(NodeExecutor)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a NodeExecutor", ErrExecutorType, exec)
	}
	return ne, nil
}

// genericQuery reads every page of the tree.
func genericQuery(n ast.Node, policy Policy) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := nodeExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		tree, err := bind(inv.args)
		if err != nil {
			return nil, err
		}
		return readPages(ctx, policy, func(ctx context.Context, token string) (*model.Page[model.Model], error) {
			return exec.Query(ctx, &ast.Page{Source: tree, Size: int32(policy.PageSize), Token: token})
		})
	}
}

// genericPage reads the single page the tree asks for.
func genericPage(n *ast.Page) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := nodeExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		tree, err := bind(inv.args)
		if err != nil {
			return nil, err
		}
		page, err := exec.Query(ctx, tree.(*ast.Page))
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return page, nil
	}
}

func genericSave(n *ast.Save) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := nodeExecutor(inv.exec)
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
		m, err := exec.Save(ctx, save)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", save.ModelType, err)
		}
		return m, nil
	}
}

func genericDelete(n *ast.Delete) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := nodeExecutor(inv.exec)
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
		count, err := exec.Delete(ctx, del)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", del.ModelType, err)
		}
		return count, nil
	}
}

func genericTraverse(n *ast.Returns) step {
	bind := binding(n)
	return func(ctx context.Context, inv *invocation) (any, error) {
		exec, err := nodeExecutor(inv.exec)
		if err != nil {
			return nil, err
		}
		tree, err := bind(inv.args)
		if err != nil {
			return nil, err
		}
		paths, err := exec.Traverse(ctx, tree.(*ast.Returns))
		if err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		if err := validatePaths(paths); err != nil {
			return nil, err
		}
		return paths, nil
	}
}

// readPages follows continuation tokens until a page has none or the
// policy's page limit is hit. A missing page or a token seen before fails
// with ErrBadPage.
func readPages[T any](ctx context.Context, policy Policy, fetch func(context.Context, string) (*model.Page[T], error)) ([]T, error) {
	var out []T
	token := ""
	seen := map[string]struct{}{}
	for pages := 0; ; pages++ {
		if policy.MaxPages > 0 && pages >= policy.MaxPages {
			return out, fmt.Errorf("%w: %d pages", ErrPageLimit, policy.MaxPages)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		if page == nil {
			return nil, fmt.Errorf("%w: no page after token %q", ErrBadPage, token)
		}
		out = append(out, page.Items...)
		if page.Next == "" {
			return out, nil
		}
		if _, dup := seen[page.Next]; dup || page.Next == token {
			return nil, fmt.Errorf("%w: token %q repeats", ErrBadPage, page.Next)
		}
		seen[page.Next] = struct{}{}
		token = page.Next
	}
}
