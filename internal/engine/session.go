package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SessionTokenGenerator generates the token that tags one viewing session's
// transitions. Implemented by UUIDv7Generator (production) and
// FixedGenerator (tests).
type SessionTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session tokens, so sessions
// in the transition log sort by start time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined session tokens for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed, to catch a test that starts more
// sessions than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// sessionSeq numbers a session's transitions. The log is ordered by seq,
// not wall time, which keeps replayed traces identical. A resumed session
// picks up after the last seq it recorded.
//
// The event loop stamps; State may read last from any goroutine.
type sessionSeq struct {
	last atomic.Int64
}

func newSessionSeq(after int64) *sessionSeq {
	s := &sessionSeq{}
	s.last.Store(after)
	return s
}

// stamp returns the seq of the transition being recorded.
func (s *sessionSeq) stamp() int64 {
	return s.last.Add(1)
}

func (s *sessionSeq) current() int64 {
	return s.last.Load()
}
