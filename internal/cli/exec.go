package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/harness"
	"github.com/roach88/linkgraph/internal/model"
)

// Exec verbs, one per Remote operation.
const (
	VerbQuery    = "query"
	VerbTraverse = "traverse"
	VerbSave     = "save"
	VerbDelete   = "delete"
)

var execVerbs = []string{VerbQuery, VerbTraverse, VerbSave, VerbDelete}

// ModelView is a stored model as commands print it.
type ModelView struct {
	Key  string          `json:"key"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	Verb    string      `json:"verb"`
	Models  []ModelView `json:"models,omitempty"`
	Paths   []string    `json:"paths,omitempty"`
	Deleted *int64      `json:"deleted,omitempty"`
	Next    string      `json:"next,omitempty"`
}

// RenderText implements TextRenderer.
func (r ExecResult) RenderText(w io.Writer) error {
	switch r.Verb {
	case VerbDelete:
		fmt.Fprintf(w, "deleted %d model(s)\n", *r.Deleted)
	case VerbTraverse:
		for _, p := range r.Paths {
			fmt.Fprintln(w, p)
		}
	default:
		for _, m := range r.Models {
			fmt.Fprintf(w, "%s %s\n", m.Key, m.Body)
		}
	}
	if r.Next != "" {
		fmt.Fprintf(w, "next: %s\n", r.Next)
	}
	return nil
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <verb> <model-type> <command>",
		Short: "Run a base64 AST command against the database",
		Long: `Run one command the way a remote plan sends it. The verb is one of
query, traverse, save or delete, and the model type must match the
command's root. Query and traverse commands return one page; the next
page token is printed when more results remain.

Examples:
  linkgraph exec query Person "$(linkgraph plan Person --format json | jq -r .data.command)"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, args[0], args[1], args[2], cmd)
		},
	}
	return cmd
}

func runExec(opts *RootOptions, verb, modelType, command string, cmd *cobra.Command) error {
	if !slices.Contains(execVerbs, verb) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown verb %q: must be one of %v", verb, execVerbs))
	}
	formatter := newFormatter(opts, cmd)
	ctx := commandContext(cmd)

	ws, err := openWorkspace(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	remote := ws.engine.Remote()
	result := ExecResult{Verb: verb}
	switch verb {
	case VerbQuery:
		page, qerr := remote.Query(ctx, modelType, command)
		if err = qerr; err == nil {
			result.Models, err = ws.views(page.Items)
			result.Next = page.Next
		}
	case VerbTraverse:
		page, terr := remote.Traverse(ctx, modelType, command)
		if err = terr; err == nil {
			result.Paths = make([]string, len(page.Items))
			for i, p := range page.Items {
				result.Paths[i] = harness.DescribePath(p)
			}
			result.Next = page.Next
		}
	case VerbSave:
		saved, serr := remote.Save(ctx, modelType, command)
		if err = serr; err == nil {
			result.Models, err = ws.views([]model.Model{saved})
		}
	case VerbDelete:
		n, derr := remote.Delete(ctx, modelType, command)
		if err = derr; err == nil {
			result.Deleted = &n
		}
	}
	if err != nil {
		if ferr := formatter.Error(ErrCodeExecute, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", verb), err)
	}
	return formatter.Success(result)
}

// views renders models with their JSON bodies.
func (w *workspace) views(models []model.Model) ([]ModelView, error) {
	out := make([]ModelView, 0, len(models))
	for _, m := range models {
		name, body, err := w.reg.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, ModelView{Key: model.KeyOf(m), Type: name, Body: body})
	}
	return out, nil
}
