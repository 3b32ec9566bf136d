package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/eval"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/querysql"
	"github.com/roach88/linkgraph/internal/scalar"
	"github.com/roach88/linkgraph/internal/store"
)

var tracer = otel.Tracer("linkgraph.engine")

// Engine executes AST nodes against a store.
//
// Thread-safety model:
//   - Query, Save, Delete and Traverse are safe from any goroutine; the
//     store serializes writes through its single connection.
//   - A Save is a read followed by a write and is not isolated from a
//     concurrent Save of the same key.
type Engine struct {
	store  *store.Store
	reg    *model.Registry
	sql    *querysql.SQLCompiler
	eval   *eval.Evaluator
	codec  *ast.Codec
	seq    *Seq
	keys   KeyGenerator
	now    func() time.Time
	logger *slog.Logger

	maxVisits int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithKeyGenerator sets the generator of server keys.
//
// Default: UUIDv7Generator.
func WithKeyGenerator(g KeyGenerator) EngineOption {
	return func(e *Engine) {
		e.keys = g
	}
}

// WithNow sets the wall clock used for Created and Modified.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMaxVisits sets how many walks one traversal may expand.
//
// Default: 10000 (DefaultMaxVisits). Zero disables the limit.
func WithMaxVisits(n int) EngineOption {
	return func(e *Engine) {
		e.maxVisits = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over s, decoding models through reg. The write
// sequence resumes after the highest seq in the store.
func New(ctx context.Context, s *store.Store, reg *model.Registry, opts ...EngineOption) (*Engine, error) {
	seq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:     s,
		reg:       reg,
		sql:       querysql.NewSQLCompiler(),
		eval:      eval.New(reg),
		codec:     ast.NewCodec(reg),
		seq:       ResumeSeq(seq),
		keys:      UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.Default(),
		maxVisits: DefaultMaxVisits,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Registry returns the model registry.
func (e *Engine) Registry() *model.Registry {
	return e.reg
}

// Factory returns a plan factory that hands out the engine as a
// plan.NodeExecutor.
func (e *Engine) Factory() plan.Factory {
	return plan.FactoryFunc(func(context.Context) (any, error) {
		return e, nil
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Query reads one page of a QueryRoot, Predicate or OrderBy tree.
func (e *Engine) Query(ctx context.Context, page *ast.Page) (out *model.Page[model.Model], err error) {
	ctx, span := tracer.Start(ctx, "engine.query")
	defer func() { endSpan(span, err) }()

	if page.Size <= 0 {
		return nil, fmt.Errorf("%w: page size %d", ErrCommand, page.Size)
	}
	offset, err := querysql.ParseToken(page.Token)
	if err != nil {
		return nil, err
	}

	var items []model.Model
	query, args, err := e.sql.Compile(page)
	switch {
	case err == nil:
		records, err := e.store.Select(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if items, err = e.decodeAll(records); err != nil {
			return nil, err
		}
	case errors.Is(err, querysql.ErrUnsupported):
		span.SetAttributes(attribute.Bool("engine.fallback", true))
		e.logger.Debug("query evaluated in memory", "reason", err)
		if items, err = e.scan(ctx, page, offset); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	out = &model.Page[model.Model]{Items: items}
	if len(items) > int(page.Size) {
		out.Items = items[:page.Size]
		out.Next = querysql.NextToken(offset, int(page.Size))
	}
	span.SetAttributes(attribute.Int("engine.items", len(out.Items)))
	return out, nil
}

// scan evaluates a query in memory over every model of its type and
// returns the window of Size+1 items at offset.
func (e *Engine) scan(ctx context.Context, page *ast.Page, offset int) ([]model.Model, error) {
	parts, err := querysql.Split(page)
	if err != nil {
		return nil, err
	}
	query, args, err := e.sql.Compile(parts.Root)
	if err != nil {
		return nil, err
	}
	records, err := e.store.Select(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	all, err := e.decodeAll(records)
	if err != nil {
		return nil, err
	}
	matched, err := e.eval.Filter(all, parts.Filter)
	if err != nil {
		return nil, err
	}
	if err := e.eval.Sort(matched, parts.Sorts); err != nil {
		return nil, err
	}
	if offset >= len(matched) {
		return []model.Model{}, nil
	}
	end := min(offset+int(page.Size)+1, len(matched))
	return matched[offset:end], nil
}

// Save inserts a model with a provisional key or updates a stored one,
// and returns the stored copy.
func (e *Engine) Save(ctx context.Context, n *ast.Save) (out model.Model, err error) {
	ctx, span := tracer.Start(ctx, "engine.save", trace.WithAttributes(attribute.String("model.type", n.ModelType)))
	defer func() { endSpan(span, err) }()

	if n.Model == nil {
		return nil, fmt.Errorf("%w: save %s", ast.ErrUnboundParameter, n.ModelType)
	}
	name, err := e.reg.NameOf(n.Model)
	if err != nil {
		return nil, err
	}
	if name != n.ModelType {
		return nil, fmt.Errorf("%w: save %s carries %s", ErrTypeMismatch, n.ModelType, name)
	}
	if err := model.CheckSavable(n.Model, false); err != nil {
		return nil, err
	}
	orgUnit, err := orgUnitOf(n.OrgUnit)
	if err != nil {
		return nil, err
	}

	out, err = e.reg.Clone(n.Model)
	if err != nil {
		return nil, err
	}
	base := out.Base()
	now := e.now().UTC()
	insert := base.Key == "" || model.IsProvisional(base.Key)
	if insert {
		base.Key = e.keys.Generate(name)
		base.Created = now
	} else {
		prev, err := e.load(ctx, base.Key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, base.Key)
		}
		if err != nil {
			return nil, err
		}
		if prevName, _ := e.reg.NameOf(prev); prevName != name {
			return nil, fmt.Errorf("%w: %s is stored as %s", ErrTypeMismatch, base.Key, prevName)
		}
		base.Created = prev.Base().Created
	}
	base.Modified = now
	base.IsNew, base.IsDeleted = false, false

	rec := store.Record{Key: base.Key, Type: name, OrgUnit: orgUnit}
	if l, ok := model.AsLink(out); ok {
		l.SyncRefs()
		for _, ref := range []model.Ref{l.FromRef, l.ToRef} {
			if err := e.checkEndpoint(ctx, ref); err != nil {
				return nil, fmt.Errorf("save %s: %w", base.Key, err)
			}
		}
		rec.IsLink, rec.FromKey, rec.ToKey = true, l.FromRef.Key, l.ToRef.Key
		l.From, l.To = nil, nil
	}
	if _, rec.Body, err = e.reg.Marshal(out); err != nil {
		return nil, err
	}
	rec.Seq = e.seq.Next()
	if err := e.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	e.logger.Debug("saved model", "key", base.Key, "type", name, "insert", insert)
	return out, nil
}

func (e *Engine) checkEndpoint(ctx context.Context, ref model.Ref) error {
	if ref.Key == "" || model.IsProvisional(ref.Key) {
		return fmt.Errorf("%w: %q", ErrDanglingEndpoint, ref.Key)
	}
	if _, err := e.store.Get(ctx, ref.Key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDanglingEndpoint, ref.Key)
		}
		return err
	}
	return nil
}

func orgUnitOf(n ast.Node) (string, error) {
	switch v := n.(type) {
	case nil:
		return "", nil
	case *ast.Scalar:
		if v.Value == nil {
			return "", nil
		}
		s, err := scalar.Convert(v.Value, scalar.String)
		if err != nil {
			return "", fmt.Errorf("org unit: %w", err)
		}
		return s.(string), nil
	case *ast.Parameter:
		return "", fmt.Errorf("%w: org unit $%d", ast.ErrUnboundParameter, v.Index)
	default:
		return "", fmt.Errorf("%w: org unit is %s", ErrCommand, n.Kind())
	}
}

// Delete removes a stored model and the links touching it. Models that
// were never stored delete nothing.
func (e *Engine) Delete(ctx context.Context, n *ast.Delete) (count int64, err error) {
	ctx, span := tracer.Start(ctx, "engine.delete", trace.WithAttributes(attribute.String("model.type", n.ModelType)))
	defer func() { endSpan(span, err) }()

	if n.Model == nil {
		return 0, fmt.Errorf("%w: delete %s", ast.ErrUnboundParameter, n.ModelType)
	}
	if err := model.CheckSavable(n.Model, true); err != nil {
		return 0, err
	}
	key := model.KeyOf(n.Model)
	if key == "" || model.IsProvisional(key) {
		return 0, nil
	}
	rec, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if rec.Type != n.ModelType {
		return 0, fmt.Errorf("%w: %s is stored as %s", ErrTypeMismatch, key, rec.Type)
	}
	deleted, cascaded, err := e.store.Delete(ctx, key)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("deleted model", "key", key, "cascaded_links", cascaded)
	return deleted, nil
}

func (e *Engine) load(ctx context.Context, key string) (model.Model, error) {
	rec, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.decode(rec)
}

func (e *Engine) decode(rec store.Record) (model.Model, error) {
	m, err := e.reg.Unmarshal(rec.Type, rec.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
	}
	return m, nil
}

func (e *Engine) decodeAll(records []store.Record) ([]model.Model, error) {
	out := make([]model.Model, 0, len(records))
	for _, rec := range records {
		m, err := e.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
