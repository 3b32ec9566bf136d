package tracking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/linkgraph/internal/model"
)

// Remote persists models. *query.Provider implements it.
type Remote interface {
	Insert(ctx context.Context, m model.Model, orgUnit string) (model.Model, error)
	Update(ctx context.Context, m model.Model, orgUnit string) (model.Model, error)
	Delete(ctx context.Context, m model.Model) (int64, error)
}

// Repository is a unit of work: the root view of a manager or a work
// context.
type Repository struct {
	mgr     *Manager
	remote  Remote
	orgUnit string
	logger  *slog.Logger

	// scope lists the context key of this repository and of its parent
	// contexts, innermost first. The root repository has no scope.
	scope []string
}

// Option configures a Repository.
type Option func(*Repository)

// WithOrgUnit sets the organizational unit sent with every save.
func WithOrgUnit(unit string) Option {
	return func(r *Repository) { r.orgUnit = unit }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// NewRepository returns a root repository over a new manager.
func NewRepository(reg *model.Registry, remote Remote, opts ...Option) *Repository {
	r := &Repository{remote: remote, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.mgr = newManager(reg, r.logger)
	return r
}

// Manager returns the shared manager.
func (r *Repository) Manager() *Manager {
	return r.mgr
}

// Registry returns the model registry.
func (r *Repository) Registry() *model.Registry {
	return r.mgr.reg
}

// CreateWorkContext returns a child repository sharing the manager. The
// child sees only the models attached through it or its own children.
func (r *Repository) CreateWorkContext() *Repository {
	child := *r
	child.scope = append([]string{r.mgr.newContextKey()}, r.scope...)
	return &child
}

// visible reports whether t belongs to this repository's view.
func (r *Repository) visible(t *TrackedModel) bool {
	return len(r.scope) == 0 || t.InContext(r.scope[0])
}

func (r *Repository) tag(t *TrackedModel) {
	for _, key := range r.scope {
		t.contexts[key] = struct{}{}
	}
}

// Attach tracks m with the requested state and returns its tracking
// record. Attaching a key that is already tracked merges the requested
// state into the existing record; a clean existing record also takes m's
// data, which is then diffed against the committed snapshot. Links attach
// their endpoints first and are re-pointed at the tracked endpoint
// instances. New models must carry a provisional key: the server assigns
// the canonical one on insert.
func (r *Repository) Attach(m model.Model, state State) (*TrackedModel, error) {
	return r.attach(m, state, false)
}

// attach tracks m. With refresh set, m is a copy the server just returned
// and replaces the committed snapshot of a clean record.
func (r *Repository) attach(m model.Model, state State, refresh bool) (*TrackedModel, error) {
	key := model.KeyOf(m)
	if key == "" {
		return nil, fmt.Errorf("attach: model without key")
	}
	if l, ok := model.AsLink(m); ok {
		if err := r.attachEndpoints(l, refresh); err != nil {
			return nil, err
		}
	}

	if t, ok := r.mgr.lookup(key); ok {
		if t.Model != m && t.CalculateState() == IsUnchanged && !m.Base().IsDeleted {
			if err := r.refreshData(t, m, refresh); err != nil {
				return nil, err
			}
		}
		t.requested = merge(t.requested, state)
		r.tag(t)
		t.CalculateState()
		return t, nil
	}

	if m.Base().IsNew && !model.IsProvisional(key) {
		return nil, fmt.Errorf("%w: %s", ErrClientKey, key)
	}
	name, err := r.mgr.reg.NameOf(m)
	if err != nil {
		return nil, err
	}
	t, err := newTracked(r.mgr.reg, m, name, state)
	if err != nil {
		return nil, err
	}
	r.tag(t)
	r.mgr.add(t)
	return t, nil
}

// refreshData copies m onto the tracked instance. Server copies become the
// committed state; local copies stay pending until saved.
func (r *Repository) refreshData(t *TrackedModel, m model.Model, committed bool) error {
	if committed {
		if err := t.Commit(m); err != nil {
			return err
		}
	} else if err := r.mgr.reg.CopyInto(t.Model, m); err != nil {
		return err
	}
	r.repointEndpoints(t)
	return nil
}

func (r *Repository) attachEndpoints(l *model.Link, refresh bool) error {
	for _, end := range []*model.Model{&l.From, &l.To} {
		if model.KeyOf(*end) == "" {
			continue
		}
		t, err := r.attach(*end, Unknown, refresh)
		if err != nil {
			return err
		}
		*end = t.Model
	}
	return nil
}

// repointEndpoints resolves the live endpoints of a tracked link from its
// refs after the link's data was replaced.
func (r *Repository) repointEndpoints(t *TrackedModel) {
	l, ok := model.AsLink(t.Model)
	if !ok {
		return
	}
	resolve := func(live model.Model, ref model.Ref) model.Model {
		if ref.Key == "" || model.KeyOf(live) == ref.Key {
			return live
		}
		if e, ok := r.mgr.lookup(ref.Key); ok {
			return e.Model
		}
		return nil
	}
	l.From = resolve(l.From, l.FromRef)
	l.To = resolve(l.To, l.ToRef)
}

// AttachLink tracks a link and its endpoints.
func (r *Repository) AttachLink(l model.LinkModel, state State) (*TrackedModel, error) {
	return r.Attach(l, state)
}

// AttachPath tracks the root, then the nodes, then the edges of p, and
// replaces them in p with the tracked instances.
func (r *Repository) AttachPath(p *model.Path) error {
	return r.attachPath(p, false)
}

func (r *Repository) attachPath(p *model.Path, refresh bool) error {
	if p.Root != nil {
		t, err := r.attach(p.Root, Unknown, refresh)
		if err != nil {
			return err
		}
		p.Root = t.Model
	}
	for i, n := range p.Nodes {
		t, err := r.attach(n, Unknown, refresh)
		if err != nil {
			return err
		}
		p.Nodes[i] = t.Model
	}
	for i, e := range p.Edges {
		t, err := r.attach(e, Unknown, refresh)
		if err != nil {
			return err
		}
		if l, ok := t.Model.(model.LinkModel); ok {
			p.Edges[i] = l
		}
	}
	return nil
}

// Detach stops tracking m.
func (r *Repository) Detach(m model.Model) error {
	t, err := r.tracked(m)
	if err != nil {
		return err
	}
	r.mgr.remove(t)
	return nil
}

func (r *Repository) tracked(m model.Model) (*TrackedModel, error) {
	t, ok := r.Get(model.KeyOf(m))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, model.KeyOf(m))
	}
	return t, nil
}

// Get returns the tracking record of key when it is visible here.
func (r *Repository) Get(key string) (*TrackedModel, bool) {
	t, ok := r.mgr.lookup(key)
	if !ok || !r.visible(t) {
		return nil, false
	}
	return t, true
}

// Entries returns the visible records in attachment order.
func (r *Repository) Entries() []*TrackedModel {
	var out []*TrackedModel
	for _, t := range r.mgr.order {
		if r.visible(t) {
			out = append(out, t)
		}
	}
	return out
}

// MarkDeleted flags m for deletion, attaching it when needed.
func (r *Repository) MarkDeleted(m model.Model) error {
	if m.Base().IsDeleted {
		return fmt.Errorf("%w: %s", ErrAlreadyDeleted, m.Base().Key)
	}
	t, err := r.Attach(m, ShouldDelete)
	if err != nil {
		return err
	}
	model.MarkDeleted(t.Model)
	t.CalculateState()
	return nil
}

// CalculateStates recomputes the state of every visible record.
func (r *Repository) CalculateStates() {
	for _, t := range r.Entries() {
		t.CalculateState()
	}
}

// Revert restores every visible record to its committed snapshot. Records
// that were never committed are detached.
func (r *Repository) Revert() error {
	var result *multierror.Error
	for _, t := range r.Entries() {
		restored, err := t.Revert()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("revert %s: %w", t.Key(), err))
			continue
		}
		if !restored {
			r.mgr.remove(t)
		}
	}
	for _, t := range r.Entries() {
		r.repointEndpoints(t)
		t.CalculateState()
	}
	return result.ErrorOrNil()
}
