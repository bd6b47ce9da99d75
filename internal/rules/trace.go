package rules

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TraceGenerator mints the id that ties together the log lines of one
// evaluation request.
type TraceGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-sortable UUIDv7 trace ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string. Panics if the system random source
// fails, which is unrecoverable anyway.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns pre-set ids in order, for deterministic tests.
type FixedGenerator struct {
	mu     sync.Mutex
	ids    []string
	cursor int
}

// NewFixedGenerator creates a generator that hands out ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. Panics when the list is exhausted.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cursor >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator: exhausted after %d ids", len(g.ids)))
	}
	id := g.ids[g.cursor]
	g.cursor++
	return id
}
