// Package query is the application-facing surface: typed collections,
// traversals and persistence calls that build expressions and run them
// through the plan cache.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/plancache"
)

// Provider executes expressions against one executor factory.
type Provider struct {
	reg     *model.Registry
	factory plan.Factory
	cache   *plancache.Cache
	policy  plan.Policy
	logger  *slog.Logger
}

type options struct {
	policy   plan.Policy
	cache    *plancache.Cache
	params   plancache.ParameterPolicy
	capacity int
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*options)

// WithPolicy sets the read policy of every plan.
func WithPolicy(p plan.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithCache shares an existing plan cache. The cache must have been
// built over the same registry.
func WithCache(c *plancache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithCapacity sets the capacity of the provider's own plan cache.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithParameterPolicy replaces the default parameter policy.
func WithParameterPolicy(p plancache.ParameterPolicy) Option {
	return func(o *options) { o.params = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewProvider returns a provider that builds plans with builder and runs
// them on executors from factory.
func NewProvider(reg *model.Registry, builder plan.Builder, factory plan.Factory, opts ...Option) *Provider {
	o := options{
		policy:   plan.DefaultPolicy(),
		capacity: plancache.DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.params == nil {
		o.params = plancache.NewDefaultPolicy(reg)
	}
	if o.cache == nil {
		o.cache = plancache.New(binder.New(reg), builder, o.params,
			plancache.WithCapacity(o.capacity),
			plancache.WithLogger(o.logger),
		)
	}
	return &Provider{
		reg:     reg,
		factory: factory,
		cache:   o.cache,
		policy:  o.policy,
		logger:  o.logger,
	}
}

// Registry returns the provider's model registry.
func (p *Provider) Registry() *model.Registry {
	return p.reg
}

// Cache returns the provider's plan cache.
func (p *Provider) Cache() *plancache.Cache {
	return p.cache
}

// Execute compiles e through the cache, invokes the plan and releases the
// executor.
func (p *Provider) Execute(ctx context.Context, e expr.Expr) (any, error) {
	compiled, args, err := p.cache.Lookup(ctx, p.policy, e)
	if err != nil {
		return nil, err
	}
	res, err := compiled.Invoke(ctx, p.factory, args)
	if err != nil {
		p.logger.Debug("query failed", "expr", expr.String(e), "error", err)
		return nil, err
	}
	defer func() {
		if err := res.Release(); err != nil {
			p.logger.Warn("release executor", "error", err)
		}
	}()
	return res.Value, nil
}

// Insert saves a new model. orgUnit is optional.
func (p *Provider) Insert(ctx context.Context, m model.Model, orgUnit string) (model.Model, error) {
	return p.save(ctx, binder.OpInsert, m, orgUnit)
}

// Update saves an existing model. orgUnit is optional.
func (p *Provider) Update(ctx context.Context, m model.Model, orgUnit string) (model.Model, error) {
	return p.save(ctx, binder.OpUpdate, m, orgUnit)
}

func (p *Provider) save(ctx context.Context, op string, m model.Model, orgUnit string) (model.Model, error) {
	args := []expr.Expr{expr.Const(m)}
	if orgUnit != "" {
		args = append(args, expr.Const(orgUnit))
	}
	v, err := p.Execute(ctx, expr.Seq(op, args...))
	if err != nil {
		return nil, err
	}
	saved, ok := v.(model.Model)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", op, v)
	}
	return saved, nil
}

// Delete removes m and returns the number of deleted models.
func (p *Provider) Delete(ctx context.Context, m model.Model) (int64, error) {
	v, err := p.Execute(ctx, expr.Seq(binder.OpDelete, expr.Const(m)))
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("delete returned %T", v)
	}
	return n, nil
}
