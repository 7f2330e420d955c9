package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_TimeOrdered(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Less(t, a, b)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("s1", "s2")
	assert.Equal(t, "s1", g.Generate())
	assert.Equal(t, "s2", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestSessionSeq_ContinuesAfterResume(t *testing.T) {
	s := newSessionSeq(10)
	assert.Equal(t, int64(10), s.current())
	assert.Equal(t, int64(11), s.stamp())
	assert.Equal(t, int64(12), s.stamp())
	assert.Equal(t, int64(12), s.current())
}
