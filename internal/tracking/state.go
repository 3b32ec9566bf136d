package tracking

import (
	"bytes"
	"fmt"

	"github.com/roach88/linkgraph/internal/model"
)

// State is the tracking state of one model.
type State int

const (
	Unknown State = iota
	IsUnchanged
	ShouldSave
	ShouldDelete
	IsNotTracked
)

var stateNames = [...]string{"Unknown", "IsUnchanged", "ShouldSave", "ShouldDelete", "IsNotTracked"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// merge combines a requested state with the one already recorded.
// Deletion outranks saving, which outranks the passive states.
func merge(current, requested State) State {
	rank := func(s State) int {
		switch s {
		case ShouldDelete:
			return 3
		case ShouldSave:
			return 2
		case IsUnchanged:
			return 1
		}
		return 0
	}
	if rank(requested) > rank(current) {
		return requested
	}
	return current
}

// TrackedModel is the single tracking record of one model key.
type TrackedModel struct {
	Model model.Model
	Type  string

	state     State
	requested State
	contexts  map[string]struct{}
	snapshot  []byte

	reg *model.Registry
}

func newTracked(reg *model.Registry, m model.Model, typeName string, requested State) (*TrackedModel, error) {
	t := &TrackedModel{
		Model:     m,
		Type:      typeName,
		requested: requested,
		contexts:  map[string]struct{}{},
		reg:       reg,
	}
	if !m.Base().IsNew && !model.IsProvisional(m.Base().Key) {
		if err := t.takeSnapshot(); err != nil {
			return nil, err
		}
	}
	t.CalculateState()
	return t, nil
}

// Key returns the model's current key.
func (t *TrackedModel) Key() string {
	return t.Model.Base().Key
}

// State returns the state computed by the last CalculateState.
func (t *TrackedModel) State() State {
	return t.state
}

// Requested returns the explicitly requested state.
func (t *TrackedModel) Requested() State {
	return t.requested
}

// InContext reports whether the model was touched by the work context.
func (t *TrackedModel) InContext(key string) bool {
	_, ok := t.contexts[key]
	return ok
}

// Committed reports whether the model has a committed snapshot.
func (t *TrackedModel) Committed() bool {
	return t.snapshot != nil
}

func (t *TrackedModel) takeSnapshot() error {
	_, data, err := t.reg.Marshal(t.Model)
	if err != nil {
		return err
	}
	t.snapshot = data
	return nil
}

// CalculateState derives the state from the request, the model flags and
// a diff against the committed snapshot.
func (t *TrackedModel) CalculateState() State {
	switch {
	case t.state == IsNotTracked:
	case t.requested == ShouldDelete || t.Model.Base().IsDeleted:
		t.state = ShouldDelete
	case t.Model.Base().IsNew || t.snapshot == nil || t.requested == ShouldSave:
		t.state = ShouldSave
	default:
		t.state = IsUnchanged
		if _, data, err := t.reg.Marshal(t.Model); err != nil || !bytes.Equal(data, t.snapshot) {
			t.state = ShouldSave
		}
	}
	return t.state
}

// Commit records a successful save. The server's copy of the model, when
// given, is copied onto the tracked instance first.
func (t *TrackedModel) Commit(result model.Model) error {
	if result != nil && result != t.Model {
		if err := t.reg.CopyInto(t.Model, result); err != nil {
			return err
		}
	}
	t.Model.Base().IsNew = false
	t.Model.Base().IsDeleted = false
	if err := t.takeSnapshot(); err != nil {
		return err
	}
	t.requested = Unknown
	t.state = IsUnchanged
	return nil
}

// Revert restores the committed snapshot and clears pending requests. A
// model without a snapshot has nothing to return to and is reported as
// not reverted.
func (t *TrackedModel) Revert() (bool, error) {
	t.requested = Unknown
	t.Model.Base().IsDeleted = false
	if t.snapshot == nil {
		return false, nil
	}
	restored, err := t.reg.Unmarshal(t.Type, t.snapshot)
	if err != nil {
		return false, err
	}
	if err := t.reg.CopyInto(t.Model, restored); err != nil {
		return false, err
	}
	t.Model.Base().IsNew = false
	t.state = IsUnchanged
	return true, nil
}
