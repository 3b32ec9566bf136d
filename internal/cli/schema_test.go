package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/compiler"
)

func TestSchemaCommandText(t *testing.T) {
	opts := newTestOptions(t, "text")
	out := mustExecute(t, opts, NewSchemaCommand, "testdata/schema.cue")

	assert.Contains(t, out, "✓ testdata/schema.cue: 2 type(s) in 1 file(s)")
	assert.Contains(t, out, "model Person")
	assert.Contains(t, out, "link  Knows (Person -> Person)")
	assert.Contains(t, out, "Age int32")
}

func TestSchemaCommandDefaultsToConfigPath(t *testing.T) {
	opts := newTestOptions(t, "text")
	out := mustExecute(t, opts, NewSchemaCommand)
	assert.Contains(t, out, "model Person")
}

func TestSchemaCommandJSON(t *testing.T) {
	opts := newTestOptions(t, "json")
	out := mustExecute(t, opts, NewSchemaCommand, "testdata/schema.cue")

	res := decodeData[SchemaResult](t, out)
	require.Len(t, res.Types, 2)
	assert.Equal(t, TypeView{
		Name:   "Person",
		Kind:   "model",
		Fields: []FieldView{{Name: "Age", Type: "int32"}, {Name: "Name", Type: "string"}},
	}, res.Types[0])
	assert.Equal(t, "link", res.Types[1].Kind)
	assert.Equal(t, "Person", res.Types[1].From)
}

func TestSchemaCommandOutputFile(t *testing.T) {
	opts := newTestOptions(t, "text")
	path := filepath.Join(t.TempDir(), "schema.json")
	mustExecute(t, opts, NewSchemaCommand, "testdata/schema.cue", "-o", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var types []TypeView
	require.NoError(t, json.Unmarshal(data, &types))
	assert.Len(t, types, 2)
}

func TestSchemaCommandValidationErrors(t *testing.T) {
	opts := newTestOptions(t, "json")
	out, err := execute(t, opts, NewSchemaCommand, "testdata/bad")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownEndpoint, resp.Error.Code)
}

func TestSchemaCommandNotFound(t *testing.T) {
	opts := newTestOptions(t, "text")
	out, err := execute(t, opts, NewSchemaCommand, "/nonexistent/schema")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
