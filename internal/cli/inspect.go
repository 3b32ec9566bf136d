package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/ast"
)

// InspectResult describes a decoded command.
type InspectResult struct {
	Kind        string `json:"kind"`
	Bytes       int    `json:"bytes"`
	Fingerprint string `json:"fingerprint"`
	Tree        string `json:"tree"`
}

// RenderText implements TextRenderer.
func (r InspectResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "kind:        %s\n", r.Kind)
	fmt.Fprintf(w, "bytes:       %d\n", r.Bytes)
	fmt.Fprintf(w, "fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintln(w)
	_, err := io.WriteString(w, r.Tree)
	return err
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <command>",
		Short: "Decode a base64 AST command",
		Long: `Decode a command in the base64 wire form and print its node tree and
fingerprint. Use - to read the command from stdin.

Save and Delete commands carry model bodies, so the configured schema is
loaded to decode them.

Examples:
  linkgraph plan Person --where Age:gt:30 --format json | jq -r .data.command | linkgraph inspect -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, command string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if command == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		command = strings.TrimSpace(string(data))
	}

	reg, _, err := loadRegistry(opts.Settings().Schema.Path)
	if err != nil {
		return err
	}
	codec := ast.NewCodec(reg)

	n, err := codec.Parse(command)
	if err != nil {
		if ferr := formatter.Error(ErrCodeDecode, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "failed to decode command", err)
	}
	data, err := codec.Encode(n)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode command", err)
	}
	fp, err := codec.Fingerprint(n)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fingerprint command", err)
	}

	return formatter.Success(InspectResult{
		Kind:        n.Kind().String(),
		Bytes:       len(data),
		Fingerprint: fp,
		Tree:        ast.Dump(n),
	})
}
