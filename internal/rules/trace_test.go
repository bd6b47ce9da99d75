package rules

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "v7 ids sort by creation time")
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("one", "two")
	assert.Equal(t, "one", g.Generate())
	assert.Equal(t, "two", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestPredicateError(t *testing.T) {
	err := predicateErrorf(ErrCodeInvalidParams, "MIN_CONTENT_LENGTH", "missing %q", "threshold")

	assert.Equal(t, `[INVALID_PARAMS] MIN_CONTENT_LENGTH: missing "threshold"`, err.Error())
	assert.True(t, IsInvalidParams(err))
	assert.False(t, IsUnknownPredicate(err))
	assert.False(t, IsPredicateError(nil))
}
