package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/plan"
	"github.com/roach88/linkgraph/internal/query"
)

type person struct {
	model.Entity
	Name string
}

type knows struct {
	model.Link
	Note string
}

var errDangling = errors.New("dangling endpoint")

// fakeRemote assigns sequential keys and records every call.
type fakeRemote struct {
	reg    *model.Registry
	next   int
	calls  []string
	failOn string
}

func label(m model.Model) string {
	switch m := m.(type) {
	case *person:
		return m.Name
	case *knows:
		return m.Note
	}
	return model.KeyOf(m)
}

func (f *fakeRemote) store(op string, m model.Model) (model.Model, error) {
	f.calls = append(f.calls, op+" "+label(m))
	if label(m) == f.failOn {
		return nil, fmt.Errorf("remote rejected %s", label(m))
	}
	if l, ok := model.AsLink(m); ok {
		if model.IsProvisional(l.FromKey()) || model.IsProvisional(l.ToKey()) {
			return nil, errDangling
		}
	}
	out, err := f.reg.Clone(m)
	if err != nil {
		return nil, err
	}
	if model.IsProvisional(out.Base().Key) {
		typ, _, _ := model.SplitKey(out.Base().Key)
		f.next++
		out.Base().Key = fmt.Sprintf("%s/%d", typ, f.next)
	}
	out.Base().IsNew = false
	return out, nil
}

func (f *fakeRemote) Insert(_ context.Context, m model.Model, _ string) (model.Model, error) {
	return f.store("insert", m)
}

func (f *fakeRemote) Update(_ context.Context, m model.Model, _ string) (model.Model, error) {
	return f.store("update", m)
}

func (f *fakeRemote) Delete(_ context.Context, m model.Model) (int64, error) {
	f.calls = append(f.calls, "delete "+label(m))
	if label(m) == f.failOn {
		return 0, fmt.Errorf("remote rejected %s", label(m))
	}
	return 1, nil
}

func setup(t *testing.T) (*Repository, *fakeRemote) {
	t.Helper()
	reg := model.NewRegistry()
	require.NoError(t, reg.Register("Person", &person{}))
	require.NoError(t, reg.Register("Knows", &knows{}))
	remote := &fakeRemote{reg: reg}
	return NewRepository(reg, remote), remote
}

func newPerson(name string) *person {
	return &person{Entity: model.Entity{Key: model.NewKey("Person"), IsNew: true}, Name: name}
}

func storedPerson(key, name string) *person {
	return &person{Entity: model.Entity{Key: key}, Name: name}
}

func newLink(note string, from, to model.Model) *knows {
	return &knows{Link: model.Link{Entity: model.Entity{Key: model.NewKey("Knows"), IsNew: true}, From: from, To: to}, Note: note}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ShouldSave", ShouldSave.String())
	assert.Equal(t, "IsNotTracked", IsNotTracked.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestAttachMergesIntoOneRecord(t *testing.T) {
	repo, _ := setup(t)
	ada := storedPerson("Person/1", "Ada")

	first, err := repo.Attach(ada, Unknown)
	require.NoError(t, err)
	assert.Equal(t, IsUnchanged, first.State())

	second, err := repo.Attach(ada, ShouldSave)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, ShouldSave, second.State())
	assert.Len(t, repo.Entries(), 1)

	// a passive re-attach does not clear the pending save
	third, err := repo.Attach(storedPerson("Person/1", "Ada"), IsUnchanged)
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, ShouldSave, third.State())
}

func TestAttachRefreshesCleanRecords(t *testing.T) {
	repo, remote := setup(t)
	ada := storedPerson("Person/1", "Ada")
	_, err := repo.Attach(ada, Unknown)
	require.NoError(t, err)

	tm, err := repo.Attach(storedPerson("Person/1", "Ada"), Unknown)
	require.NoError(t, err)
	assert.Same(t, ada, tm.Model)
	assert.Equal(t, IsUnchanged, tm.State())

	tm, err = repo.Attach(storedPerson("Person/1", "Ada Lovelace"), Unknown)
	require.NoError(t, err)
	assert.Same(t, ada, tm.Model)
	assert.Equal(t, "Ada Lovelace", ada.Name)
	assert.Equal(t, ShouldSave, tm.State(), "a local copy does not replace the committed snapshot")

	require.NoError(t, repo.SaveChanges(context.Background()))
	assert.Equal(t, []string{"update Ada Lovelace"}, remote.calls)
	assert.Equal(t, IsUnchanged, tm.State())
}

func TestAttachRejectsClientKeysOnNewModels(t *testing.T) {
	repo, remote := setup(t)
	ada := &person{Entity: model.Entity{Key: "Person/ada", IsNew: true}, Name: "Ada"}

	_, err := repo.Attach(ada, ShouldSave)
	assert.ErrorIs(t, err, ErrClientKey)
	assert.Zero(t, repo.Manager().Len())

	edge := newLink("A->B", ada, newPerson("Bob"))
	_, err = repo.AttachLink(edge, ShouldSave)
	assert.ErrorIs(t, err, ErrClientKey)

	require.NoError(t, repo.SaveChanges(context.Background()))
	assert.Empty(t, remote.calls)
}

func TestAttachLinkAndPath(t *testing.T) {
	repo, _ := setup(t)
	a := storedPerson("Person/1", "Ada")
	b := storedPerson("Person/2", "Bob")
	_, err := repo.Attach(a, Unknown)
	require.NoError(t, err)

	edge := &knows{Link: model.Link{Entity: model.Entity{Key: "Knows/3"}, From: storedPerson("Person/1", "Ada"), To: b}}
	p := &model.Path{Root: storedPerson("Person/1", "Ada"), Nodes: []model.Model{b}, Edges: []model.LinkModel{edge}}
	require.NoError(t, repo.AttachPath(p))

	assert.Same(t, a, p.Root)
	assert.Same(t, a, edge.From)
	var keys []string
	for _, e := range repo.Entries() {
		keys = append(keys, e.Key())
	}
	assert.Equal(t, []string{"Person/1", "Person/2", "Knows/3"}, keys)
}

func TestSaveChangesInsertsNodesBeforeLinks(t *testing.T) {
	repo, remote := setup(t)
	a, b := newPerson("A"), newPerson("B")
	link := newLink("A->B", a, b)

	_, err := repo.AttachLink(link, Unknown)
	require.NoError(t, err)
	require.NoError(t, repo.SaveChanges(context.Background()))

	assert.Equal(t, []string{"insert A", "insert B", "insert A->B"}, remote.calls)
	assert.Equal(t, "Person/1", a.Key)
	assert.Equal(t, "Person/2", b.Key)
	assert.Equal(t, "Knows/3", link.Key)
	assert.Equal(t, model.Ref{Type: "Person", Key: "Person/1"}, link.FromRef)
	for _, e := range repo.Entries() {
		assert.Equal(t, IsUnchanged, e.State(), e.Key())
		assert.False(t, e.Model.Base().IsNew)
	}
	tm, ok := repo.Get("Knows/3")
	require.True(t, ok)
	assert.Same(t, link, tm.Model)

	require.NoError(t, repo.SaveChanges(context.Background()))
	assert.Len(t, remote.calls, 3)
}

func TestSaveChangesResolvesCircularLinks(t *testing.T) {
	repo, remote := setup(t)
	a, b := newPerson("A"), newPerson("B")

	_, err := repo.Attach(newLink("A->B", a, b), Unknown)
	require.NoError(t, err)
	_, err = repo.Attach(newLink("B->A", b, a), Unknown)
	require.NoError(t, err)
	require.NoError(t, repo.SaveChanges(context.Background()))

	assert.Equal(t, []string{"insert A", "insert B", "insert A->B", "insert B->A"}, remote.calls)
}

func TestSaveChangesUpdatesChangedModels(t *testing.T) {
	repo, remote := setup(t)
	ada := storedPerson("Person/1", "Ada")
	bob := storedPerson("Person/2", "Bob")
	for _, m := range []model.Model{ada, bob} {
		_, err := repo.Attach(m, Unknown)
		require.NoError(t, err)
	}

	ada.Name = "Ada L."
	require.NoError(t, repo.SaveChanges(context.Background()))
	assert.Equal(t, []string{"update Ada L."}, remote.calls)

	tm, _ := repo.Get("Person/1")
	assert.Equal(t, IsUnchanged, tm.State())
}

func TestSaveChangesDeletesBeforeSaves(t *testing.T) {
	repo, remote := setup(t)
	ada := storedPerson("Person/1", "Ada")
	bob := storedPerson("Person/2", "Bob")
	edge := &knows{Link: model.Link{Entity: model.Entity{Key: "Knows/3"}, From: ada, To: bob}, Note: "A->B"}
	_, err := repo.Attach(ada, Unknown)
	require.NoError(t, err)
	_, err = repo.Attach(edge, Unknown)
	require.NoError(t, err)

	ada.Name = "Ada L."
	require.NoError(t, repo.MarkDeleted(bob))
	require.NoError(t, repo.SaveChanges(context.Background()))

	assert.Equal(t, []string{"delete Bob", "update Ada L."}, remote.calls)
	_, ok := repo.Get("Person/2")
	assert.False(t, ok)
	_, ok = repo.Get("Knows/3")
	assert.False(t, ok, "links of a deleted node are dropped")
}

func TestSaveChangesRejectsDeletedEndpoints(t *testing.T) {
	repo, remote := setup(t)
	ada := storedPerson("Person/1", "Ada")
	bob := storedPerson("Person/2", "Bob")
	edge := &knows{Link: model.Link{Entity: model.Entity{Key: "Knows/3"}, From: ada, To: bob}, Note: "A->B"}
	_, err := repo.Attach(edge, Unknown)
	require.NoError(t, err)

	edge.Note = "changed"
	require.NoError(t, repo.MarkDeleted(bob))
	err = repo.SaveChanges(context.Background())
	assert.ErrorIs(t, err, model.ErrDeletedEndpoint)
	assert.Empty(t, remote.calls)

	require.NoError(t, repo.Revert())
	assert.False(t, bob.IsDeleted)

	require.NoError(t, repo.MarkDeleted(edge))
	require.NoError(t, repo.MarkDeleted(bob))
	err = repo.SaveChanges(context.Background())
	assert.ErrorIs(t, err, model.ErrDeletedEndpoint)
	assert.Empty(t, remote.calls)
}

func TestSaveChangesDropsUnsentDeletes(t *testing.T) {
	repo, remote := setup(t)
	ghost := newPerson("Ghost")
	_, err := repo.Attach(ghost, Unknown)
	require.NoError(t, err)
	require.NoError(t, repo.MarkDeleted(ghost))

	require.NoError(t, repo.SaveChanges(context.Background()))
	assert.Empty(t, remote.calls)
	assert.Empty(t, repo.Entries())

	assert.ErrorIs(t, repo.MarkDeleted(ghost), ErrAlreadyDeleted)
}

func TestSaveChangesLeavesFailedModelsPending(t *testing.T) {
	repo, remote := setup(t)
	a, b := newPerson("A"), newPerson("B")
	for _, m := range []model.Model{a, b} {
		_, err := repo.Attach(m, Unknown)
		require.NoError(t, err)
	}
	provisional := b.Key

	remote.failOn = "B"
	err := repo.SaveChanges(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote rejected B")

	tmA, ok := repo.Get("Person/1")
	require.True(t, ok)
	assert.Equal(t, IsUnchanged, tmA.State())
	tmB, ok := repo.Get(provisional)
	require.True(t, ok)
	assert.True(t, b.IsNew)
	assert.Equal(t, ShouldSave, tmB.State())
	assert.True(t, repo.Manager().Enabled())

	remote.failOn = ""
	require.NoError(t, repo.SaveChanges(context.Background()))
	assert.Equal(t, "Person/2", b.Key)
}

func TestSaveChangesStallsOnUnsavableLink(t *testing.T) {
	repo, remote := setup(t)
	a := storedPerson("Person/1", "Ada")
	orphan := &knows{Link: model.Link{
		Entity: model.Entity{Key: model.NewKey("Knows"), IsNew: true},
		From:   a,
		ToRef:  model.Ref{Type: "Person", Key: model.NewKey("Person")},
	}, Note: "orphan"}
	_, err := repo.Attach(orphan, Unknown)
	require.NoError(t, err)

	err = repo.SaveChanges(context.Background())
	assert.ErrorIs(t, err, ErrSaveStalled)
	assert.Empty(t, remote.calls)
}

func TestWorkContextsScopeVisibility(t *testing.T) {
	repo, remote := setup(t)
	outer := newPerson("Outer")
	_, err := repo.Attach(outer, Unknown)
	require.NoError(t, err)

	child := repo.CreateWorkContext()
	inner := newPerson("Inner")
	_, err = child.Attach(inner, Unknown)
	require.NoError(t, err)
	grandchild := child.CreateWorkContext()
	deep := newPerson("Deep")
	_, err = grandchild.Attach(deep, Unknown)
	require.NoError(t, err)

	assert.Len(t, repo.Entries(), 3)
	assert.Len(t, child.Entries(), 2)
	assert.Len(t, grandchild.Entries(), 1)
	_, ok := child.Get(outer.Key)
	assert.False(t, ok)
	assert.ErrorIs(t, child.Detach(outer), ErrNotTracked)

	require.NoError(t, grandchild.SaveChanges(context.Background()))
	assert.Equal(t, []string{"insert Deep"}, remote.calls)

	require.NoError(t, child.SaveChanges(context.Background()))
	assert.Equal(t, []string{"insert Deep", "insert Inner"}, remote.calls)

	// one record per key across every view
	tm, ok := repo.Get(inner.Key)
	require.True(t, ok)
	assert.Equal(t, IsUnchanged, tm.State())
	assert.Equal(t, 3, repo.Manager().Len())
}

func TestRevert(t *testing.T) {
	repo, _ := setup(t)
	ada := storedPerson("Person/1", "Ada")
	fresh := newPerson("Fresh")
	for _, m := range []model.Model{ada, fresh} {
		_, err := repo.Attach(m, Unknown)
		require.NoError(t, err)
	}

	ada.Name = "Changed"
	require.NoError(t, repo.Revert())
	assert.Equal(t, "Ada", ada.Name)
	assert.Len(t, repo.Entries(), 1)
	tm, _ := repo.Get("Person/1")
	assert.Equal(t, IsUnchanged, tm.State())
}

// memory serves a fixed set of models, returning fresh copies.
type memory struct {
	reg    *model.Registry
	models []model.Model
}

func (m *memory) Query(context.Context, *ast.Page) (*model.Page[model.Model], error) {
	page := &model.Page[model.Model]{}
	for _, x := range m.models {
		c, err := m.reg.Clone(x)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, c)
	}
	return page, nil
}

func (m *memory) Save(context.Context, *ast.Save) (model.Model, error) { return nil, nil }
func (m *memory) Delete(context.Context, *ast.Delete) (int64, error) { return 0, nil }
func (m *memory) Traverse(context.Context, *ast.Returns) ([]*model.Path, error) { return nil, nil }

func TestListAttachesResults(t *testing.T) {
	repo, _ := setup(t)
	mem := &memory{reg: repo.Registry(), models: []model.Model{storedPerson("Person/1", "Ada")}}
	provider := query.NewProvider(repo.Registry(), plan.NewGenericBuilder(), plan.FactoryFunc(func(context.Context) (any, error) {
		return mem, nil
	}))
	people, err := query.From[*person](provider)
	require.NoError(t, err)
	set := people.Where(func(x *expr.Param) expr.Expr {
		return expr.Ne(expr.Prop(x, "Name"), expr.Const(""))
	})

	first, err := List(context.Background(), repo, set)
	require.NoError(t, err)
	second, err := List(context.Background(), repo, set)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, 1, repo.Manager().Len())

	mem.models[0].(*person).Name = "Ada Lovelace"
	refreshed, err := List(context.Background(), repo, set)
	require.NoError(t, err)
	assert.Same(t, first[0], refreshed[0])
	assert.Equal(t, "Ada Lovelace", first[0].Name)
	tm, ok := repo.Get("Person/1")
	require.True(t, ok)
	assert.Equal(t, IsUnchanged, tm.State(), "query results are the committed state")

	repo.Manager().SetEnabled(false)
	third, err := List(context.Background(), repo, set)
	require.NoError(t, err)
	assert.NotSame(t, first[0], third[0])
}
