package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/harness"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/query"
	"github.com/roach88/linkgraph/internal/tracking"
)

// ListResult is the output of list and traverse.
type ListResult struct {
	Models []ModelView `json:"models,omitempty"`
	Paths  []string    `json:"paths,omitempty"`
}

// RenderText implements TextRenderer.
func (r ListResult) RenderText(w io.Writer) error {
	for _, m := range r.Models {
		fmt.Fprintf(w, "%s %s\n", m.Key, m.Body)
	}
	for _, p := range r.Paths {
		fmt.Fprintln(w, p)
	}
	if len(r.Models)+len(r.Paths) == 0 {
		fmt.Fprintln(w, "No results.")
	}
	return nil
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	filterFlags
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <model-type>",
		Short: "Query stored models",
		Long: `Query models of one type through the plan cache, reading every page.

Examples:
  linkgraph list Person
  linkgraph list Person --where Age:ge:18 --where Name:ne:Bob --order-by -Age`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}

	opts.filterFlags.register(cmd)

	return cmd
}

func runList(opts *ListOptions, modelType string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	ws, err := openWorkspace(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	set, err := opts.set(ws.provider, modelType)
	if err != nil {
		if ferr := formatter.Error(ErrCodeFilter, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	items, err := set.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	views, err := ws.views(items)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render results", err)
	}
	return formatter.Success(ListResult{Models: views})
}

// TraverseOptions holds flags for the traverse command.
type TraverseOptions struct {
	*RootOptions
	Hops  []string // out:Edge:Node or in:Edge:Node
	Edges bool     // select the last edge walked instead of the node
}

// NewTraverseCommand creates the traverse command.
func NewTraverseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraverseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "traverse <key>",
		Short: "Walk links from a stored model",
		Long: `Walk one or more hops from a root model and print every path found.
Each --hop is out:<link-type>:<node-type> or in:<link-type>:<node-type>.

Examples:
  linkgraph traverse Person/1 --hop out:Knows:Person
  linkgraph traverse Person/1 --hop out:Knows:Person --hop in:Knows:Person`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraverse(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Hops, "hop", nil, "hop as out:Edge:Node or in:Edge:Node")
	cmd.Flags().BoolVar(&opts.Edges, "edges", false, "return edges instead of nodes")

	return cmd
}

func runTraverse(opts *TraverseOptions, key string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	rootType, err := keyType(key)
	if err != nil {
		return err
	}
	if len(opts.Hops) == 0 {
		return NewExitError(ExitCommandError, "at least one --hop is required")
	}

	ws, err := openWorkspace(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	t := ws.provider.Traverse(rootType, key)
	for _, hop := range opts.Hops {
		parts := strings.Split(hop, ":")
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid hop %q: want out:Edge:Node or in:Edge:Node", hop))
		}
		switch parts[0] {
		case "out":
			t = t.Out(parts[1], parts[2])
		case "in":
			t = t.In(parts[1], parts[2])
		default:
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid hop %q: direction must be out or in", hop))
		}
	}
	if opts.Edges {
		t = t.Returns(binder.SelectEdge)
	}

	paths, err := t.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "traversal failed", err)
	}
	result := ListResult{Paths: make([]string, len(paths))}
	for i, p := range paths {
		result.Paths[i] = harness.DescribePath(p)
	}
	return formatter.Success(result)
}

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Key     string   // update this stored model instead of inserting
	Set     []string // name=value
	From    string   // link source key
	To      string   // link target key
	OrgUnit string
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <model-type>",
		Short: "Insert or update a model",
		Long: `Insert a model, or update the stored model named by --key, through a
tracking repository. Links take --from and --to keys.

Examples:
  linkgraph put Person --set Name=Ada --set Age=36
  linkgraph put Person --key Person/1 --set Age=37
  linkgraph put Knows --from Person/1 --to Person/2 --set Since=2020`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "key of the stored model to update")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field as name=value")
	cmd.Flags().StringVar(&opts.From, "from", "", "link source key")
	cmd.Flags().StringVar(&opts.To, "to", "", "link target key")
	cmd.Flags().StringVar(&opts.OrgUnit, "org-unit", "", "org unit recorded on the model")

	return cmd
}

func runPut(opts *PutOptions, modelType string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	fields, err := parseFields(opts.Set)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	ws, err := openWorkspace(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	repo := ws.repository(opts.OrgUnit)
	m, err := ws.stage(ctx, repo, modelType, opts)
	if err == nil {
		err = harness.SetFields(m, fields)
	}
	if err == nil {
		_, err = repo.Attach(m, tracking.ShouldSave)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to stage model", err)
	}
	if err := repo.SaveChanges(ctx); err != nil {
		if ferr := formatter.Error(ErrCodeExecute, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "save failed", err)
	}

	views, err := ws.views([]model.Model{m})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render result", err)
	}
	return formatter.Success(ListResult{Models: views})
}

// stage returns the model put writes: the stored model for --key, or a new
// one with its link endpoints attached.
func (w *workspace) stage(ctx context.Context, repo *tracking.Repository, modelType string, opts *PutOptions) (model.Model, error) {
	if opts.Key != "" {
		m, err := w.find(ctx, repo, opts.Key)
		if err != nil {
			return nil, err
		}
		if got := model.KeyOf(m); !strings.HasPrefix(got, modelType+"/") {
			return nil, fmt.Errorf("%s is not a %s", got, modelType)
		}
		return m, nil
	}

	m, err := w.reg.Create(modelType)
	if err != nil {
		return nil, err
	}
	l, isLink := m.(model.LinkModel)
	if !isLink {
		if opts.From != "" || opts.To != "" {
			return nil, fmt.Errorf("%s is not a link type", modelType)
		}
		return m, nil
	}
	if opts.From == "" || opts.To == "" {
		return nil, fmt.Errorf("link %s needs --from and --to", modelType)
	}
	from, err := w.find(ctx, repo, opts.From)
	if err != nil {
		return nil, err
	}
	to, err := w.find(ctx, repo, opts.To)
	if err != nil {
		return nil, err
	}
	l.LinkBase().From, l.LinkBase().To = from, to
	return m, nil
}

// find loads a stored model by key and attaches it to repo.
func (w *workspace) find(ctx context.Context, repo *tracking.Repository, key string) (model.Model, error) {
	typeName, _, err := model.SplitKey(key)
	if err != nil {
		return nil, err
	}
	set, err := query.Models(w.provider, typeName)
	if err != nil {
		return nil, err
	}
	items, err := tracking.List(ctx, repo, set.Where(func(x *expr.Param) expr.Expr {
		return expr.Eq(expr.Prop(x, "Key"), expr.Const(key))
	}))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s not found", key)
	}
	return items[0], nil
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a stored model",
		Long: `Delete a stored model. Deleting a document also deletes the links
that reference it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRemove(opts *RootOptions, key string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := commandContext(cmd)

	if _, err := keyType(key); err != nil {
		return err
	}
	ws, err := openWorkspace(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	repo := ws.repository("")
	m, err := ws.find(ctx, repo, key)
	if err != nil {
		return WrapExitError(ExitFailure, "delete failed", err)
	}
	if err := repo.MarkDeleted(m); err != nil {
		return WrapExitError(ExitFailure, "delete failed", err)
	}
	if err := repo.SaveChanges(ctx); err != nil {
		return WrapExitError(ExitFailure, "delete failed", err)
	}
	return formatter.Success(fmt.Sprintf("deleted %s", key))
}
