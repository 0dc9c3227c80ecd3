package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces session tokens. Implemented by UUIDv7Generator
// (production) and FixedTokenGenerator (tests and golden scenarios).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session tokens, so journaled
// sessions list in creation order.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7 string. Panics if the system
// entropy source fails, which is not a condition worth recovering from.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedTokenGenerator returns predetermined tokens in order, enabling
// deterministic session identity for golden-trace comparison.
//
// Generate panics once the supply is exhausted: a test asking for more
// sessions than it declared is misconfigured and should fail fast.
type FixedTokenGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokenGenerator creates a generator yielding tokens in the given
// order.
func NewFixedTokenGenerator(tokens ...string) *FixedTokenGenerator {
	return &FixedTokenGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("dispatch: FixedTokenGenerator exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
