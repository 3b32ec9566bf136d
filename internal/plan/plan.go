package plan

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/model"
)

var tracer = otel.Tracer("linkgraph.plan")

// Policy controls how plans read from executors. Policies are comparable
// and take part in plan cache keys.
type Policy struct {
	Name     string
	PageSize int
	MaxPages int
}

// DefaultPolicy reads pages of 100 items with no page limit.
func DefaultPolicy() Policy {
	return Policy{Name: "default", PageSize: 100}
}

// NodeExecutor runs AST nodes in process.
type NodeExecutor interface {
	// Query reads one page. n is a Page over a QueryRoot, Predicate or
	// OrderBy tree.
	Query(ctx context.Context, n *ast.Page) (*model.Page[model.Model], error)
	Save(ctx context.Context, n *ast.Save) (model.Model, error)
	Delete(ctx context.Context, n *ast.Delete) (int64, error)
	Traverse(ctx context.Context, n *ast.Returns) ([]*model.Path, error)
}

// RemoteExecutor receives formatted AST commands for one model type.
type RemoteExecutor interface {
	Delete(ctx context.Context, modelType, command string) (int64, error)
	Save(ctx context.Context, modelType, command string) (model.Model, error)
	Query(ctx context.Context, modelType, command string) (*model.Page[model.Model], error)
	Traverse(ctx context.Context, modelType, command string) (*model.Page[*model.Path], error)
}

// Factory creates the executor of one invocation. Executors that implement
// io.Closer are closed when the result is released.
type Factory interface {
	Executor(ctx context.Context) (any, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (any, error)

func (f FactoryFunc) Executor(ctx context.Context) (any, error) {
	return f(ctx)
}

// Builder compiles a bound AST into a plan.
type Builder interface {
	Build(root ast.Node, policy Policy) (*Plan, error)
}

// invocation is the state shared by the steps of one Invoke.
type invocation struct {
	exec any
	args []any
}

type step func(ctx context.Context, inv *invocation) (any, error)

// Plan is a compiled query or command.
type Plan struct {
	Root   ast.Node
	Policy Policy
	Arity  int

	// Packed plans take one argument: a []any holding every parameter
	// value in order.
	Packed bool

	body step
}

func newPlan(root ast.Node, policy Policy, body step) *Plan {
	arity := 0
	for _, p := range ast.Parameters(root) {
		if int(p.Index)+1 > arity {
			arity = int(p.Index) + 1
		}
	}
	return &Plan{Root: root, Policy: policy, Arity: arity, body: body}
}

// Result carries the value of one invocation and the executor that
// produced it.
type Result struct {
	Value any
	exec  any
}

// Release closes the executor of the invocation when it is an io.Closer.
// Release is safe to call more than once.
func (r *Result) Release() error {
	if r == nil || r.exec == nil {
		return nil
	}
	exec := r.exec
	r.exec = nil
	if c, ok := exec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Invoke runs the plan with args. Arguments beyond the plan's arity are
// ignored. The factory is called exactly once. On error the executor is
// released before returning.
func (p *Plan) Invoke(ctx context.Context, factory Factory, args ...any) (*Result, error) {
	if p.Packed {
		packed, err := unpack(args)
		if err != nil {
			return nil, err
		}
		args = packed
	}
	if len(args) < p.Arity {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArity, p.Arity, len(args))
	}

	ctx, span := tracer.Start(ctx, "plan.invoke",
		trace.WithAttributes(
			attribute.String("plan.root", p.Root.Kind().String()),
			attribute.String("plan.policy", p.Policy.Name),
			attribute.Int("plan.arity", p.Arity),
		),
	)
	defer span.End()

	exec, err := factory.Executor(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "executor")
		return nil, fmt.Errorf("create executor: %w", err)
	}
	res := &Result{exec: exec}

	v, err := p.body(ctx, &invocation{exec: exec, args: args})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = res.Release()
		return nil, err
	}
	res.Value = v
	return res, nil
}

func unpack(args []any) ([]any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: packed plan takes 1 argument, got %d", ErrArity, len(args))
	}
	packed, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: packed plan takes []any, got %T", ErrArity, args[0])
	}
	return packed, nil
}

// binding returns a function that substitutes invocation arguments into
// n. Trees without parameters are returned unchanged.
func binding(n ast.Node) func(args []any) (ast.Node, error) {
	if len(ast.Parameters(n)) == 0 {
		return func([]any) (ast.Node, error) { return n, nil }
	}
	return func(args []any) (ast.Node, error) {
		return ast.Substitute(n, args)
	}
}

// querySource reports whether n is a readable collection tree.
func querySource(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.QueryRoot:
		return true
	case *ast.Predicate:
		return querySource(n.Source)
	case *ast.OrderBy:
		return querySource(n.Source)
	}
	return false
}

// traversalRoot returns the root type of the traversal ending in n.
func traversalRoot(n ast.Node) (string, bool) {
	for {
		switch t := n.(type) {
		case *ast.TraverseOrigin:
			return t.RootType, true
		case *ast.Returns:
			n = t.Parent
		case *ast.EdgeFilter:
			n = t.Parent
		case *ast.NodeFilter:
			n = t.Parent
		case *ast.EdgeMemberFilter:
			n = t.Parent
		case *ast.PathRootFilter:
			n = t.Parent
		default:
			return "", false
		}
	}
}

func validatePaths(paths []*model.Path) error {
	for i, p := range paths {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("path %d: %w", i, err)
		}
	}
	return nil
}
