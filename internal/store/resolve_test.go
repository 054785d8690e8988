package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegPath(t *testing.T) {
	assert.Equal(t, "/", segPath(nil))
	assert.Equal(t, "/a", segPath([]string{"a"}))
	assert.Equal(t, "/a/b/c", segPath([]string{"a", "b", "c"}))
}

func TestAncestorPaths(t *testing.T) {
	assert.Nil(t, ancestorPaths(nil))
	assert.Empty(t, ancestorPaths([]string{"a"}))
	assert.Equal(t, []string{"/a"}, ancestorPaths([]string{"a", "b"}))
	assert.Equal(t, []string{"/a", "/a/b"}, ancestorPaths([]string{"a", "b", "c"}))
}
