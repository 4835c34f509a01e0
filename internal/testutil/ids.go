package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator returns UUID-shaped ids that count up from 1:
// "00000000-0000-7000-8000-000000000001", "...0002" and so on.
//
// The same scenario with a fresh SequenceGenerator produces byte-identical
// documents, which keeps golden snapshots stable.
//
// Thread-safety: SequenceGenerator is safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu sync.Mutex
	n  int64
}

// NewSequenceGenerator creates a generator whose first id ends in 1.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012x", g.n)
}

// Count returns how many ids have been generated.
func (g *SequenceGenerator) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
