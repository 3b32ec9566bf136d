package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/plancache"
	"github.com/roach88/linkgraph/internal/query"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	filterFlags
}

// PlanResult is a bound query with its cache shape and first-page command.
type PlanResult struct {
	ModelType string `json:"model_type"`
	Expr      string `json:"expr"`
	Shape     string `json:"shape"`
	Arity     int    `json:"arity"`
	ShapeHash string `json:"shape_fingerprint"`
	PageSize  int    `json:"page_size"`
	Command   string `json:"command"`
	Tree      string `json:"tree"`
}

// RenderText implements TextRenderer.
func (r PlanResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "expr:    %s\n", r.Expr)
	fmt.Fprintf(w, "shape:   %s (%d arg(s))\n", r.Shape, r.Arity)
	fmt.Fprintf(w, "shape fingerprint: %s\n", r.ShapeHash)
	fmt.Fprintf(w, "command (page size %d):\n  %s\n\n", r.PageSize, r.Command)
	_, err := io.WriteString(w, r.Tree)
	return err
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <model-type>",
		Short: "Bind a query and print its AST",
		Long: `Bind a query to its AST without running it. Prints the parameterized
shape plans are cached under and the first-page command that
"linkgraph exec query" accepts.

Examples:
  linkgraph plan Person --where Age:gt:30 --order-by -Age
  linkgraph plan Person --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	opts.filterFlags.register(cmd)

	return cmd
}

func runPlan(opts *PlanOptions, modelType string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg := opts.Settings()

	reg, _, err := loadRegistry(cfg.Schema.Path)
	if err != nil {
		return err
	}
	// The provider only builds expressions here and is never executed.
	provider := query.NewProvider(reg, plan.NewRemoteBuilder(reg), nil)
	set, err := opts.set(provider, modelType)
	if err != nil {
		if ferr := formatter.Error(ErrCodeFilter, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	e := set.Expr()
	b := binder.New(reg)
	bound, err := b.Bind(e)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to bind query", err)
	}
	shape, args, err := plancache.Parameterize(e, plancache.NewDefaultPolicy(reg))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to parameterize query", err)
	}
	shapeNode, err := b.Bind(shape)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to bind query shape", err)
	}

	codec := ast.NewCodec(reg)
	shapeHash, err := codec.Fingerprint(shapeNode)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fingerprint shape", err)
	}
	page := &ast.Page{Source: bound, Size: int32(cfg.Policy.PageSize)}
	command, err := codec.Format(page)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to format command", err)
	}

	return formatter.Success(PlanResult{
		ModelType: modelType,
		Expr:      expr.String(e),
		Shape:     expr.String(shape),
		Arity:     len(args),
		ShapeHash: shapeHash,
		PageSize:  cfg.Policy.PageSize,
		Command:   command,
		Tree:      ast.Dump(page),
	})
}
