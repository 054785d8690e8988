package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func int64p(v int64) *int64 { return &v }

func TestCanonicalizeChunkingPrefersCanonicalFields(t *testing.T) {
	chunk, total := CanonicalizeChunking(10, 100, LegacyAliases{
		ChunkBytes: int64p(5),
		TotalBytes: int64p(50),
	})
	assert.Equal(t, int64(10), chunk)
	assert.Equal(t, int64(100), total)
}

func TestCanonicalizeChunkingFallsBackToLegacyFields(t *testing.T) {
	chunk, total := CanonicalizeChunking(0, 0, LegacyAliases{
		ChunkBytes: int64p(5),
		TotalBytes: int64p(50),
	})
	assert.Equal(t, int64(5), chunk)
	assert.Equal(t, int64(50), total)
}

func TestCanonicalizeChunkingLeavesZeroWhenNeitherIsSet(t *testing.T) {
	chunk, total := CanonicalizeChunking(0, 0, LegacyAliases{})
	assert.Equal(t, int64(0), chunk)
	assert.Equal(t, int64(0), total)
}

func TestSegPath(t *testing.T) {
	assert.Equal(t, "", segPath(nil))
	assert.Equal(t, "/a/b", segPath([]string{"a", "b"}))
}
