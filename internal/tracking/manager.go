// Package tracking is the unit of work over graph models.
//
// A Manager owns the single table of tracked models, keyed by model key.
// Repositories are views over a manager: the root repository sees every
// tracked model, and each work context sees only the models it touched.
// A manager and its repositories are not safe for concurrent use; callers
// serialize access.
package tracking

import (
	"fmt"
	"log/slog"

	"github.com/roach88/linkgraph/internal/model"
)

// Manager holds the tracked-model table shared by a root repository and
// its work contexts.
type Manager struct {
	reg     *model.Registry
	logger  *slog.Logger
	entries map[string]*TrackedModel
	order   []*TrackedModel
	enabled bool
	nextCtx int
}

func newManager(reg *model.Registry, logger *slog.Logger) *Manager {
	return &Manager{
		reg:     reg,
		logger:  logger,
		entries: map[string]*TrackedModel{},
		enabled: true,
	}
}

// Enabled reports whether query results are attached automatically.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// SetEnabled turns automatic attachment on or off and returns the
// previous setting.
func (m *Manager) SetEnabled(on bool) bool {
	prev := m.enabled
	m.enabled = on
	return prev
}

// Len returns the number of tracked models.
func (m *Manager) Len() int {
	return len(m.entries)
}

func (m *Manager) lookup(key string) (*TrackedModel, bool) {
	t, ok := m.entries[key]
	return t, ok
}

func (m *Manager) add(t *TrackedModel) {
	m.entries[t.Key()] = t
	m.order = append(m.order, t)
}

func (m *Manager) remove(t *TrackedModel) {
	t.state = IsNotTracked
	for key, e := range m.entries {
		if e == t {
			delete(m.entries, key)
		}
	}
	for i, e := range m.order {
		if e == t {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// rekey moves t under its current key after the server assigned one.
func (m *Manager) rekey(oldKey string, t *TrackedModel) error {
	newKey := t.Key()
	if oldKey == newKey {
		return nil
	}
	if other, ok := m.entries[newKey]; ok && other != t {
		return fmt.Errorf("%w: %s", ErrKeyConflict, newKey)
	}
	delete(m.entries, oldKey)
	m.entries[newKey] = t
	m.logger.Debug("rekeyed tracked model", "from", oldKey, "to", newKey)
	return nil
}

func (m *Manager) newContextKey() string {
	m.nextCtx++
	return fmt.Sprintf("wc-%d", m.nextCtx)
}
