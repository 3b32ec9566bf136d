package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgraph/internal/compiler"
	"github.com/roach88/linkgraph/internal/config"
	"github.com/roach88/linkgraph/internal/engine"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/query"
	"github.com/roach88/linkgraph/internal/store"
	"github.com/roach88/linkgraph/internal/tracking"
)

// workspace is an open database with its schema registered.
type workspace struct {
	cfg      config.Config
	logger   *slog.Logger
	reg      *model.Registry
	store    *store.Store
	engine   *engine.Engine
	provider *query.Provider
}

// newFormatter returns the output formatter for cmd.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openWorkspace compiles the configured schema and opens the configured
// database. Failures are command errors. The caller closes the workspace.
func openWorkspace(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*workspace, error) {
	cfg := opts.Settings()
	logger := cfg.Logger(cmd.ErrOrStderr(), opts.Verbose)

	logger.Debug("loading schema", "path", cfg.Schema.Path)
	reg, types, err := loadRegistry(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng, err := engine.New(ctx, st, reg,
		engine.WithMaxVisits(cfg.Engine.MaxVisits),
		engine.WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	builder, factory := plan.Builder(plan.NewGenericBuilder()), eng.Factory()
	if cfg.Engine.Builder == config.BuilderRemote {
		builder, factory = plan.NewRemoteBuilder(reg), eng.RemoteFactory()
	}
	provider := query.NewProvider(reg, builder, factory,
		query.WithPolicy(cfg.PlanPolicy()),
		query.WithCapacity(cfg.Cache.Capacity),
		query.WithLogger(logger),
	)

	logger.Debug("workspace ready", "types", types, "builder", cfg.Engine.Builder)
	return &workspace{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		store:    st,
		engine:   eng,
		provider: provider,
	}, nil
}

// loadRegistry compiles the schema at path and registers its types. It
// returns the number of types registered.
func loadRegistry(path string) (*model.Registry, int, error) {
	loaded, errs := compiler.LoadSchema(path)
	if len(errs) > 0 {
		return nil, 0, WrapExitError(ExitCommandError, "failed to load schema", errors.Join(errs...))
	}
	if verrs := compiler.Validate(loaded.Schema, nil); len(verrs) > 0 {
		return nil, 0, WrapExitError(ExitCommandError, "invalid schema", verrs[0])
	}
	reg := model.NewRegistry()
	if err := loaded.Schema.Register(reg); err != nil {
		return nil, 0, WrapExitError(ExitCommandError, "failed to register schema", err)
	}
	return reg, len(loaded.Schema.Types()), nil
}

// repository returns a fresh tracking repository over the workspace.
func (w *workspace) repository(orgUnit string) *tracking.Repository {
	return tracking.NewRepository(w.reg, w.provider,
		tracking.WithOrgUnit(orgUnit),
		tracking.WithLogger(w.logger),
	)
}

func (w *workspace) Close() {
	if err := w.store.Close(); err != nil {
		w.logger.Error("error closing database", "error", err)
	}
}

// keyType returns the type part of key.
func keyType(key string) (string, error) {
	typeName, _, err := model.SplitKey(key)
	if err != nil {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("invalid key %q: %v", key, err))
	}
	return typeName, nil
}
