package testutil

// FixedSessionGenerator returns the same session token every time.
//
// The same scenario run with the same generator and a DeterministicClock
// produces byte-identical store contents and traces.
//
// Unlike engine.FixedGenerator, which hands out tokens in sequence and panics
// when they run out, this generator never runs out.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	token string
}

// NewFixedSessionGenerator creates a generator for token. An empty token
// becomes "test-session".
func NewFixedSessionGenerator(token string) *FixedSessionGenerator {
	if token == "" {
		token = "test-session"
	}
	return &FixedSessionGenerator{token: token}
}

// Generate returns the fixed token. Implements engine.SessionGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.token
}
