package engine

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// KeyGenerator assigns server keys to inserted models.
// Implemented by UUIDv7Generator (production), SequenceGenerator and
// FixedGenerator (tests).
type KeyGenerator interface {
	Generate(typeName string) string
}

// UUIDv7Generator generates time-sortable keys of the form
// "<Type>/<uuidv7>".
//
// UUIDv7 embeds a timestamp in the most significant bits, so keys of one
// type sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new key for typeName.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate(typeName string) string {
	return typeName + "/" + uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined local keys for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	locals []string
	idx    int
}

// NewFixedGenerator creates a generator that uses the local parts in order.
//
// Example:
//
//	gen := NewFixedGenerator("1", "2")
//	gen.Generate("Person") // "Person/1"
//	gen.Generate("Knows")  // "Knows/2"
//	gen.Generate("Person") // panic: all keys exhausted
func NewFixedGenerator(locals ...string) *FixedGenerator {
	return &FixedGenerator{locals: locals}
}

// Generate returns the next predetermined key.
//
// Panics if all keys have been consumed, which catches tests that insert
// more models than they expect.
func (g *FixedGenerator) Generate(typeName string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.locals) {
		panic("FixedGenerator: all keys exhausted")
	}
	local := g.locals[g.idx]
	g.idx++
	return typeName + "/" + local
}

// SequenceGenerator numbers keys 1, 2, 3, ... across all types, so runs
// that insert in the same order produce the same keys.
type SequenceGenerator struct {
	n atomic.Int64
}

// Generate returns typeName followed by the next number.
func (g *SequenceGenerator) Generate(typeName string) string {
	return typeName + "/" + strconv.FormatInt(g.n.Add(1), 10)
}
