package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates prefix-0001, prefix-0002, ...
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario produces byte-identical event logs.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. If prefix is empty, "evt" is
// used.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "evt"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate implements cart.IDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
