package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/compiler"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Output string // write the compiled schema as JSON to this file
}

// FieldView is one field of a compiled type.
type FieldView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TypeView is a compiled type as the schema command reports it.
type TypeView struct {
	Name   string      `json:"name"`
	Kind   string      `json:"kind"` // "model" or "link"
	From   string      `json:"from,omitempty"`
	To     string      `json:"to,omitempty"`
	Fields []FieldView `json:"fields"`
}

// SchemaResult is the output of a successful schema check.
type SchemaResult struct {
	Path      string     `json:"path"`
	FileCount int        `json:"file_count"`
	Types     []TypeView `json:"types"`
}

// RenderText implements TextRenderer.
func (r SchemaResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "✓ %s: %d type(s) in %d file(s)\n", r.Path, len(r.Types), r.FileCount)
	for _, t := range r.Types {
		if t.Kind == "link" {
			fmt.Fprintf(w, "  link  %s (%s -> %s)\n", t.Name, t.From, t.To)
		} else {
			fmt.Fprintf(w, "  model %s\n", t.Name)
		}
		for _, f := range t.Fields {
			fmt.Fprintf(w, "        %s %s\n", f.Name, f.Type)
		}
	}
	return nil
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema [path]",
		Short: "Compile and validate a CUE schema",
		Long: `Compile the models and links declared in CUE and check them for naming
and endpoint errors. All errors are reported, not just the first.

The path defaults to schema.path from the config.

Exit codes:
  0 - Schema is valid
  1 - Schema has validation errors
  2 - Schema could not be loaded`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Settings().Schema.Path
			if len(args) == 1 {
				path = args[0]
			}
			return runSchema(opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled schema JSON to file")

	return cmd
}

func runSchema(opts *SchemaOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, loadErrors := compiler.LoadSchema(path)
	if len(loadErrors) > 0 {
		var loadErr *compiler.LoadError
		code, message := compiler.ErrCodeGeneric, loadErrors[0].Error()
		if errors.As(loadErrors[0], &loadErr) {
			code, message = loadErr.Code, loadErr.Message
		}
		details := make([]string, len(loadErrors))
		for i, err := range loadErrors {
			details[i] = err.Error()
		}
		if err := formatter.Error(code, message, details); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("failed to load schema: %s", message))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)

	if verrs := compiler.Validate(loaded.Schema, nil); len(verrs) > 0 {
		if err := formatter.Error(verrs[0].Code, fmt.Sprintf("schema has %d validation error(s)", len(verrs)), verrs); err != nil {
			return err
		}
		if opts.Format != "json" {
			w := formatter.Writer
			for _, v := range verrs {
				fmt.Fprintf(w, "  %s\n", v.Error())
			}
		}
		return NewExitError(ExitFailure, "schema validation failed")
	}

	result := SchemaResult{Path: path, FileCount: loaded.FileCount, Types: viewTypes(loaded.Schema)}
	if opts.Output != "" {
		data, err := json.MarshalIndent(result.Types, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to marshal schema", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}
	return formatter.Success(result)
}

func viewTypes(s *compiler.Schema) []TypeView {
	types := s.Types()
	out := make([]TypeView, 0, len(types))
	for _, t := range types {
		v := TypeView{Name: t.Name, Kind: "model", Fields: []FieldView{}}
		if t.IsLink {
			v.Kind, v.From, v.To = "link", t.From, t.To
		}
		for _, name := range t.FieldNames() {
			v.Fields = append(v.Fields, FieldView{Name: name, Type: t.Fields[name].String()})
		}
		out = append(out, v)
	}
	return out
}
