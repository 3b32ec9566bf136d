package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/store"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Database string // overrides database.path
	Since    int64  // only records written after this sequence number
	Type     string // only records of this type
	Types    bool   // print per-type counts instead of records
}

// RecordView is one stored record.
type RecordView struct {
	Seq     int64           `json:"seq"`
	Key     string          `json:"key"`
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	OrgUnit string          `json:"org_unit,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// DumpResult holds exported records or type counts.
type DumpResult struct {
	Records []RecordView      `json:"records,omitempty"`
	Types   []store.TypeCount `json:"types,omitempty"`
	MaxSeq  int64             `json:"max_seq"`
}

// RenderText implements TextRenderer.
func (r DumpResult) RenderText(w io.Writer) error {
	if r.Types != nil {
		for _, t := range r.Types {
			kind := "model"
			if t.IsLink {
				kind = "link"
			}
			fmt.Fprintf(w, "%-5s %-20s %d\n", kind, t.Type, t.Count)
		}
		return nil
	}
	if len(r.Records) == 0 {
		fmt.Fprintln(w, "No records.")
		return nil
	}
	for _, rec := range r.Records {
		fmt.Fprintf(w, "[%d] %s", rec.Seq, rec.Key)
		if rec.From != "" {
			fmt.Fprintf(w, " (%s -> %s)", rec.From, rec.To)
		}
		fmt.Fprintf(w, " %s\n", rec.Body)
	}
	return nil
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Export stored records in write order",
		Long: `Export stored records in the order they were last written. Every write
advances a store-wide sequence number, so --since N prints only what
changed after a previous dump reported max_seq N.

The schema is not needed; bodies are printed as stored.

Examples:
  linkgraph dump --db ./graph.db
  linkgraph dump --db ./graph.db --since 42 --format json
  linkgraph dump --types`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to database.path)")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only records written after this sequence number")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only records of this type")
	cmd.Flags().BoolVar(&opts.Types, "types", false, "print record counts per type")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	path := opts.Database
	if path == "" {
		path = opts.Settings().Database.Path
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	if opts.Since < 0 {
		return NewExitError(ExitCommandError, "--since must be non-negative")
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	maxSeq, err := st.MaxSeq(ctx)
	if err != nil {
		return storeFailure(formatter, err)
	}
	result := DumpResult{MaxSeq: maxSeq}

	if opts.Types {
		if result.Types, err = st.Types(ctx); err != nil {
			return storeFailure(formatter, err)
		}
		return formatter.Success(result)
	}

	records, err := st.Since(ctx, opts.Since)
	if err != nil {
		return storeFailure(formatter, err)
	}
	result.Records = []RecordView{}
	for _, rec := range records {
		if opts.Type != "" && rec.Type != opts.Type {
			continue
		}
		result.Records = append(result.Records, RecordView{
			Seq:     rec.Seq,
			Key:     rec.Key,
			Type:    rec.Type,
			From:    rec.FromKey,
			To:      rec.ToKey,
			OrgUnit: rec.OrgUnit,
			Body:    rec.Body,
		})
	}
	formatter.VerboseLog("Exported %d of %d record(s) after seq %d", len(result.Records), len(records), opts.Since)
	return formatter.Success(result)
}

func storeFailure(f *OutputFormatter, err error) error {
	if ferr := f.Error(ErrCodeStore, err.Error(), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, "store read failed", err)
}
