// Package config loads linkgraph settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/roach88/linkgraph/internal/engine"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/plancache"
)

// Builder names accepted by engine.builder.
const (
	BuilderGeneric = "generic"
	BuilderRemote  = "remote"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Policy   PolicyConfig   `yaml:"policy"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // e.g. ./graph.db, or :memory:
}

type SchemaConfig struct {
	Path string `yaml:"path"` // CUE file or directory
}

type EngineConfig struct {
	Builder   string `yaml:"builder"`    // generic or remote
	MaxVisits int    `yaml:"max_visits"` // per traversal
}

type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

type PolicyConfig struct {
	Name     string `yaml:"name"`
	PageSize int    `yaml:"page_size"`
	MaxPages int    `yaml:"max_pages"` // 0 reads every page
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the settings used when no file is given.
func Default() Config {
	p := plan.DefaultPolicy()
	return Config{
		Database: DatabaseConfig{Path: "linkgraph.db"},
		Schema:   SchemaConfig{Path: "schema"},
		Engine:   EngineConfig{Builder: BuilderGeneric, MaxVisits: engine.DefaultMaxVisits},
		Cache:    CacheConfig{Capacity: plancache.DefaultCapacity},
		Policy:   PolicyConfig{Name: p.Name, PageSize: p.PageSize, MaxPages: p.MaxPages},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Database.Path == "" {
		result = multierror.Append(result, errors.New("database.path is required"))
	}
	switch c.Engine.Builder {
	case BuilderGeneric, BuilderRemote:
	default:
		result = multierror.Append(result, fmt.Errorf("engine.builder must be %s or %s, got %q", BuilderGeneric, BuilderRemote, c.Engine.Builder))
	}
	if c.Engine.MaxVisits <= 0 {
		result = multierror.Append(result, fmt.Errorf("engine.max_visits must be positive, got %d", c.Engine.MaxVisits))
	}
	if c.Cache.Capacity <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	if c.Policy.PageSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("policy.page_size must be positive, got %d", c.Policy.PageSize))
	}
	if c.Policy.MaxPages < 0 {
		result = multierror.Append(result, fmt.Errorf("policy.max_pages must not be negative, got %d", c.Policy.MaxPages))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return result.ErrorOrNil()
}

// PlanPolicy returns the configured read policy.
func (c Config) PlanPolicy() plan.Policy {
	return plan.Policy{Name: c.Policy.Name, PageSize: c.Policy.PageSize, MaxPages: c.Policy.MaxPages}
}

// Logger builds a slog.Logger writing to w. verbose forces debug level.
func (c Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}
