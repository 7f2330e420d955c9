package testutil

// FixedSessionGenerator generates the same session token every time.
//
// This keeps recorded transition logs and golden traces byte-identical
// between runs.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	token string
}

// NewFixedSessionGenerator creates a new fixed session token generator.
// If token is empty, Generate() returns "test-session-default".
func NewFixedSessionGenerator(token string) *FixedSessionGenerator {
	if token == "" {
		token = "test-session-default"
	}
	return &FixedSessionGenerator{token: token}
}

// Generate returns the fixed session token.
func (g *FixedSessionGenerator) Generate() string {
	return g.token
}
