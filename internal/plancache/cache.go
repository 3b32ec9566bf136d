// Package plancache caches compiled plans by expression shape.
//
// Expressions are parameterized before lookup, so queries that differ only
// in their literal values share one plan. Entries are kept most recently
// used first and the least recently used entry is evicted once the cache
// is over capacity.
package plancache

import (
	"container/list"
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/linkgraph/internal/binder"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/plan"
)

// DefaultCapacity is the number of plans a cache keeps by default.
const DefaultCapacity = 100

// PackThreshold is the arity above which plan arguments are passed as a
// single slice.
const PackThreshold = 4

var meter = otel.Meter("linkgraph.plancache")

// CompiledQuery is a cached plan and the shape it was compiled for.
type CompiledQuery struct {
	Plan   *plan.Plan
	Policy plan.Policy
	Arity  int
	Packed bool
}

// Invoke runs the plan with the arguments produced by Parameterize.
func (q *CompiledQuery) Invoke(ctx context.Context, factory plan.Factory, args []any) (*plan.Result, error) {
	if q.Packed {
		return q.Plan.Invoke(ctx, factory, args)
	}
	return q.Plan.Invoke(ctx, factory, args...)
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type entry struct {
	shape    expr.Expr
	policy   plan.Policy
	compiled *CompiledQuery
}

// Cache is a bounded most-recently-used plan cache. It is safe for
// concurrent use; lookups, compilation and insertion run under one lock.
type Cache struct {
	binder   *binder.Binder
	builder  plan.Builder
	params   ParameterPolicy
	values   expr.ValueComparer
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	entries *list.List

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	metricsOnce  sync.Once
	hitCount     metric.Int64Counter
	missCount    metric.Int64Counter
	evictedCount metric.Int64Counter
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the number of plans kept. Values below one keep one.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		c.capacity = max(n, 1)
	}
}

// WithParameterPolicy replaces the parameter policy.
func WithParameterPolicy(p ParameterPolicy) Option {
	return func(c *Cache) {
		c.params = p
	}
}

// WithValueComparer replaces the comparer for constants left in a shape.
func WithValueComparer(fn expr.ValueComparer) Option {
	return func(c *Cache) {
		c.values = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New returns a cache that binds with b and builds with builder.
func New(b *binder.Binder, builder plan.Builder, params ParameterPolicy, opts ...Option) *Cache {
	c := &Cache{
		binder:   b,
		builder:  builder,
		params:   params,
		values:   equalValues,
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		entries:  list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func equalValues(a, b any) bool {
	return cmp.Equal(a, b, cmp.Exporter(func(reflect.Type) bool { return true }))
}

func (c *Cache) initMetrics() {
	c.metricsOnce.Do(func() {
		var err error
		c.hitCount, err = meter.Int64Counter("plancache_hits_total",
			metric.WithDescription("Plan cache lookups served from the cache"))
		if err != nil {
			c.logger.Warn("plan cache metric unavailable", "metric", "plancache_hits_total", "error", err)
		}
		c.missCount, err = meter.Int64Counter("plancache_misses_total",
			metric.WithDescription("Plan cache lookups that compiled a plan"))
		if err != nil {
			c.logger.Warn("plan cache metric unavailable", "metric", "plancache_misses_total", "error", err)
		}
		c.evictedCount, err = meter.Int64Counter("plancache_evictions_total",
			metric.WithDescription("Plans evicted from the cache"))
		if err != nil {
			c.logger.Warn("plan cache metric unavailable", "metric", "plancache_evictions_total", "error", err)
		}
	})
}

func add(ctx context.Context, counter metric.Int64Counter, policy plan.Policy) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", policy.Name)))
	}
}

// Lookup parameterizes e and returns the compiled plan for its shape with
// the extracted arguments. A miss binds and builds the plan and inserts it
// as most recently used. Binding and build errors are not cached.
func (c *Cache) Lookup(ctx context.Context, policy plan.Policy, e expr.Expr) (*CompiledQuery, []any, error) {
	c.initMetrics()

	shape, args, err := Parameterize(e, c.params)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.entries.Front(); el != nil; el = el.Next() {
		ent := el.Value.(*entry)
		if ent.policy == policy && expr.Equivalent(ent.shape, shape, c.values) {
			c.entries.MoveToFront(el)
			c.hits.Add(1)
			add(ctx, c.hitCount, policy)
			return ent.compiled, args, nil
		}
	}

	c.misses.Add(1)
	add(ctx, c.missCount, policy)

	node, err := c.binder.Bind(shape)
	if err != nil {
		return nil, nil, err
	}
	p, err := c.builder.Build(node, policy)
	if err != nil {
		return nil, nil, err
	}
	p.Packed = len(args) > PackThreshold
	compiled := &CompiledQuery{
		Plan:   p,
		Policy: policy,
		Arity:  len(args),
		Packed: p.Packed,
	}
	c.entries.PushFront(&entry{shape: shape, policy: policy, compiled: compiled})
	c.logger.Debug("plan compiled",
		"shape", expr.String(shape),
		"arity", compiled.Arity,
		"entries", c.entries.Len(),
	)

	for c.entries.Len() > c.capacity {
		c.entries.Remove(c.entries.Back())
		c.evictions.Add(1)
		add(ctx, c.evictedCount, policy)
	}
	return compiled, args, nil
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear drops every cached plan.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Init()
}

// Stats returns the cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
