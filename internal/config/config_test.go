package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/plan"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, plan.DefaultPolicy(), cfg.PlanPolicy())
	assert.Equal(t, BuilderGeneric, cfg.Engine.Builder)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/graph.db
engine:
  builder: remote
policy:
  name: small
  page_size: 10
  max_pages: 3
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/graph.db", cfg.Database.Path)
	assert.Equal(t, BuilderRemote, cfg.Engine.Builder)
	assert.Equal(t, plan.Policy{Name: "small", PageSize: 10, MaxPages: 3}, cfg.PlanPolicy())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, Default().Cache, cfg.Cache, "unset sections keep defaults")
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("database:\n  file: x.db\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field file not found")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	cfg.Engine.Builder = "grpc"
	cfg.Cache.Capacity = 0
	cfg.Policy.MaxPages = -1
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), `engine.builder must be generic or remote, got "grpc"`)
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name    string
		log     LogConfig
		verbose bool
		want    string
		silent  bool
	}{
		{name: "text info", log: LogConfig{Level: "info", Format: "text"}, want: "msg=hello"},
		{name: "json", log: LogConfig{Level: "info", Format: "json"}, want: `"msg":"hello"`},
		{name: "warn hides info", log: LogConfig{Level: "warn", Format: "text"}, silent: true},
		{name: "verbose", log: LogConfig{Level: "error", Format: "text"}, verbose: true, want: "level=DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Log = tt.log
			var buf bytes.Buffer
			l := cfg.Logger(&buf, tt.verbose)
			if tt.verbose {
				l.Debug("hello")
			} else {
				l.Info("hello")
			}
			if tt.silent {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
