package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/linkgraph/internal/compiler"
	"github.com/roach88/linkgraph/internal/engine"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/query"
	"github.com/roach88/linkgraph/internal/store"
	"github.com/roach88/linkgraph/internal/testutil"
	"github.com/roach88/linkgraph/internal/tracking"
)

// Epoch is the first timestamp a scenario run records.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var comparisons = map[string]func(l, r expr.Expr) *expr.Binary{
	"eq": expr.Eq,
	"ne": expr.Ne,
	"gt": expr.Gt,
	"ge": expr.Ge,
	"lt": expr.Lt,
	"le": expr.Le,
}

// Operators returns the comparison operators a Condition accepts.
func Operators() []string {
	return []string{"eq", "ne", "gt", "ge", "lt", "le"}
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger handed to the engine, provider and repository.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Harness executes one scenario.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	reg      *model.Registry
	provider *query.Provider
	repo     *tracking.Repository
	logger   *slog.Logger

	refs map[string]model.Model
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with sequential keys and
// a fixed clock. Step and assertion failures are reported in the result;
// the error is for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	loaded, errs := compiler.LoadSchema(scenario.Schema)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema: %w", errors.Join(errs...))
	}
	if verrs := compiler.Validate(loaded.Schema, nil); len(verrs) > 0 {
		return nil, fmt.Errorf("invalid schema: %w", verrs[0])
	}
	reg := model.NewRegistry()
	if err := loaded.Schema.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		reg:    reg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		refs:   map[string]model.Model{},
	}
	for _, opt := range opts {
		opt(h)
	}

	clock := testutil.NewStepClock(Epoch, time.Second)
	h.engine, err = engine.New(ctx, st, reg,
		engine.WithKeyGenerator(&engine.SequenceGenerator{}),
		engine.WithNow(clock.Now),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	builder, factory := plan.Builder(plan.NewGenericBuilder()), h.engine.Factory()
	if scenario.Builder == "remote" {
		builder, factory = plan.NewRemoteBuilder(reg), h.engine.RemoteFactory()
	}
	h.provider = query.NewProvider(reg, builder, factory, query.WithLogger(h.logger))
	h.repo = tracking.NewRepository(reg, h.provider,
		tracking.WithOrgUnit(scenario.OrgUnit),
		tracking.WithLogger(h.logger),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		if !h.executeStep(ctx, i, step, result) {
			break
		}
	}
	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step and checks its expect clause. It returns false
// when the run cannot continue.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) bool {
	verb := step.Verbs()[0]
	detail, got, err := h.perform(ctx, verb, step)

	var want string
	if step.Expect != nil {
		want = step.Expect.Error
	}
	switch {
	case err != nil && want != "" && strings.Contains(err.Error(), want):
		result.AddTrace(verb, fmt.Sprintf("error %q", want))
		return true
	case err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", index, verb, err))
		return false
	case want != "":
		result.AddTrace(verb, detail)
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q", index, verb, want))
		return true
	}

	result.AddTrace(verb, detail)
	h.logger.Debug("step completed", "step", index, "verb", verb)
	if step.Expect != nil {
		for _, msg := range h.checkExpect(step.Expect, got) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", index, verb, msg))
		}
	}
	return true
}

// perform runs a step and returns its trace detail and, for reads, the
// rendered results.
func (h *Harness) perform(ctx context.Context, verb string, step Step) (string, []string, error) {
	switch verb {
	case StepInsert:
		return h.insert(step)
	case StepLink:
		return h.link(step)
	case StepUpdate:
		m, err := h.resolve(step.Update)
		if err != nil {
			return "", nil, err
		}
		if err := SetFields(m, step.Fields); err != nil {
			return "", nil, err
		}
		if _, err := h.repo.Attach(m, tracking.ShouldSave); err != nil {
			return "", nil, err
		}
		return strings.TrimSpace(step.Update + " " + formatFields(step.Fields)), nil, nil
	case StepDelete:
		m, err := h.resolve(step.Delete)
		if err != nil {
			return "", nil, err
		}
		return step.Delete, nil, h.repo.MarkDeleted(m)
	case StepSave:
		if err := h.repo.SaveChanges(ctx); err != nil {
			return "", nil, err
		}
		return h.bindings(), nil, nil
	case StepRevert:
		return "ok", nil, h.repo.Revert()
	case StepQuery:
		return h.query(ctx, step)
	case StepTraverse:
		return h.traverse(ctx, step)
	}
	return "", nil, fmt.Errorf("unknown step %q", verb)
}

func (h *Harness) insert(step Step) (string, []string, error) {
	m, err := h.reg.Create(step.Insert)
	if err != nil {
		return "", nil, err
	}
	if err := SetFields(m, step.Fields); err != nil {
		return "", nil, err
	}
	if _, err := h.repo.Attach(m, tracking.ShouldSave); err != nil {
		return "", nil, err
	}
	h.bind(step.As, m)
	return strings.TrimSpace(step.Insert + " " + alias(step.As)), nil, nil
}

func (h *Harness) link(step Step) (string, []string, error) {
	m, err := h.reg.Create(step.Link)
	if err != nil {
		return "", nil, err
	}
	l, ok := m.(model.LinkModel)
	if !ok {
		return "", nil, fmt.Errorf("%s is not a link type", step.Link)
	}
	from, err := h.resolve(step.From)
	if err != nil {
		return "", nil, err
	}
	to, err := h.resolve(step.To)
	if err != nil {
		return "", nil, err
	}
	l.LinkBase().From, l.LinkBase().To = from, to
	if err := SetFields(m, step.Fields); err != nil {
		return "", nil, err
	}
	if _, err := h.repo.AttachLink(l, tracking.ShouldSave); err != nil {
		return "", nil, err
	}
	h.bind(step.As, m)
	return strings.TrimSpace(fmt.Sprintf("%s %s->%s %s", step.Link, step.From, step.To, alias(step.As))), nil, nil
}

func (h *Harness) query(ctx context.Context, step Step) (string, []string, error) {
	set, err := query.Models(h.provider, step.Query)
	if err != nil {
		return "", nil, err
	}
	if len(step.Where) > 0 {
		set = set.Where(Where(step.Where))
	}
	for i, field := range step.OrderBy {
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		switch {
		case i == 0 && desc:
			set = set.OrderByDescending(field)
		case i == 0:
			set = set.OrderBy(field)
		case desc:
			set = set.ThenByDescending(field)
		default:
			set = set.ThenBy(field)
		}
	}
	items, err := tracking.List(ctx, h.repo, set)
	if err != nil {
		return "", nil, err
	}
	keys := make([]string, len(items))
	for i, m := range items {
		keys[i] = model.KeyOf(m)
	}
	return fmt.Sprintf("%s -> [%s]", step.Query, strings.Join(keys, " ")), keys, nil
}

func (h *Harness) traverse(ctx context.Context, step Step) (string, []string, error) {
	key := h.key(step.Traverse)
	rootType, _, err := model.SplitKey(key)
	if err != nil {
		return "", nil, err
	}
	t := h.provider.Traverse(rootType, key)
	for _, hop := range step.Hops {
		var filter []query.Predicate
		if len(hop.Where) > 0 {
			filter = append(filter, Where(hop.Where))
		}
		if hop.Out != "" {
			t = t.Out(hop.Out, hop.Node, filter...)
		} else {
			t = t.In(hop.In, hop.Node, filter...)
		}
		if len(hop.Edge) > 0 {
			t = t.WhereEdge(Where(hop.Edge))
		}
	}
	paths, err := tracking.Traverse(ctx, h.repo, t)
	if err != nil {
		return "", nil, err
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = DescribePath(p)
	}
	return fmt.Sprintf("%s -> [%s]", key, strings.Join(out, " | ")), out, nil
}

func (h *Harness) checkExpect(want *Expect, got []string) []string {
	var msgs []string
	if want.Keys != nil {
		keys := make([]string, len(want.Keys))
		for i, ref := range want.Keys {
			keys[i] = h.key(ref)
		}
		if diff := cmp.Diff(keys, got); diff != "" {
			msgs = append(msgs, fmt.Sprintf("keys mismatch (-want +got):\n%s", diff))
		}
	}
	if want.Count != nil && *want.Count != len(got) {
		msgs = append(msgs, fmt.Sprintf("expected %d results, got %d", *want.Count, len(got)))
	}
	if want.Paths != nil {
		if diff := cmp.Diff(want.Paths, got); diff != "" {
			msgs = append(msgs, fmt.Sprintf("paths mismatch (-want +got):\n%s", diff))
		}
	}
	return msgs
}

func (h *Harness) bind(ref string, m model.Model) {
	if ref != "" {
		h.refs[ref] = m
	}
}

// resolve returns the model bound to ref.
func (h *Harness) resolve(ref string) (model.Model, error) {
	m, ok := h.refs[ref]
	if !ok {
		return nil, fmt.Errorf("unknown ref %q", ref)
	}
	return m, nil
}

// key returns the current key of the model bound to ref, or ref itself.
func (h *Harness) key(ref string) string {
	if m, ok := h.refs[ref]; ok {
		return model.KeyOf(m)
	}
	return ref
}

// bindings renders every ref with its current key, sorted by ref. Refs
// still holding provisional keys render as "(new)".
func (h *Harness) bindings() string {
	refs := make([]string, 0, len(h.refs))
	for ref := range h.refs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for i, ref := range refs {
		key := h.key(ref)
		if model.IsProvisional(key) {
			key = "(new)"
		}
		refs[i] = ref + "=" + key
	}
	return strings.Join(refs, " ")
}

func alias(ref string) string {
	if ref == "" {
		return ""
	}
	return "as " + ref
}

type fieldSetter interface {
	SetField(path string, value any) error
}

// SetFields assigns fields in name order through the model's SetField.
func SetFields(m model.Model, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fs, ok := m.(fieldSetter)
	if !ok {
		return fmt.Errorf("%T has no settable fields", m)
	}
	for _, name := range sortedKeys(fields) {
		if err := fs.SetField(name, fields[name]); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

func formatFields(fields map[string]any) string {
	parts := make([]string, 0, len(fields))
	for _, name := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, fields[name]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Where joins conditions with AND.
func Where(conds []Condition) query.Predicate {
	return func(x *expr.Param) expr.Expr {
		var body expr.Expr
		for _, c := range conds {
			term := comparisons[c.Op](expr.Prop(x, c.Field), expr.Const(c.Value))
			if body == nil {
				body = term
				continue
			}
			body = expr.And(body, term)
		}
		return body
	}
}

// DescribePath renders a path as "root -edge-> node -edge-> node".
func DescribePath(p *model.Path) string {
	s := model.KeyOf(p.Root)
	for i, n := range p.Nodes {
		if i < len(p.Edges) {
			s += " -" + model.KeyOf(p.Edges[i]) + "->"
		} else {
			s += " ->"
		}
		s += " " + model.KeyOf(n)
	}
	return s
}
