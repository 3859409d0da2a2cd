package shortcode

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGenerator_NextWithoutPool(t *testing.T) {
	g := NewGenerator(DefaultLength, 0, zap.NewNop().Sugar())

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code, err := g.Next()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		assert.Regexp(t, urlSafe, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestGenerator_CustomLength(t *testing.T) {
	g := NewGenerator(12, 0, zap.NewNop().Sugar())
	code, err := g.Next()
	require.NoError(t, err)
	assert.Len(t, code, 12)
	assert.Equal(t, 12, g.Length())

	assert.Equal(t, DefaultLength, NewGenerator(0, 0, zap.NewNop().Sugar()).Length())
}

func TestGenerator_PoolFillsAndDrains(t *testing.T) {
	g := NewGenerator(DefaultLength, 50, zap.NewNop().Sugar())
	g.Start()
	defer g.Stop()

	require.Eventually(t, func() bool {
		return len(g.codeChan) == 50
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 60; i++ {
		code, err := g.Next()
		require.NoError(t, err)
		assert.Regexp(t, urlSafe, code)
	}
}

func TestGenerator_StopIsIdempotent(t *testing.T) {
	g := NewGenerator(DefaultLength, 10, zap.NewNop().Sugar())
	g.Start()
	g.Stop()
	assert.NotPanics(t, g.Stop)
}

func TestAlphabetIsURLSafe(t *testing.T) {
	assert.Regexp(t, urlSafe, Alphabet)
	assert.Len(t, Alphabet, 64)
}
