package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/config"
)

// newTestOptions returns options over a fresh database file and the
// testdata schema.
func newTestOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "graph.db")
	cfg.Schema.Path = filepath.Join("testdata", "schema.cue")
	cfg.Log.Level = "error"
	return &RootOptions{Format: format, settings: &cfg}
}

// execute runs a command built by newCmd and returns its stdout.
func execute(t *testing.T, opts *RootOptions, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newCmd(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// mustExecute runs a command that must succeed.
func mustExecute(t *testing.T, opts *RootOptions, newCmd func(*RootOptions) *cobra.Command, args ...string) string {
	t.Helper()
	out, err := execute(t, opts, newCmd, args...)
	require.NoError(t, err, out)
	return out
}

// decodeData unmarshals the data member of a JSON response.
func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	return resp.Data
}

// putPerson inserts a Person and returns its key.
func putPerson(t *testing.T, opts *RootOptions, name string, age int) string {
	t.Helper()
	out := mustExecute(t, opts, NewPutCommand, "Person", "--set", "Name="+name, "--set", "Age="+itoa(age))
	res := decodeData[ListResult](t, out)
	require.Len(t, res.Models, 1)
	return res.Models[0].Key
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func keys(models []ModelView) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.Key
	}
	return out
}
