package cos

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSetIntersects(t *testing.T) {
	a := NewStringSet("alice", "bob")
	b := NewStringSet("carol", "bob")
	assert.True(t, a.Intersects(b))

	c := NewStringSet("carol", "dave")
	assert.False(t, a.Intersects(c))

	assert.False(t, NewStringSet().Intersects(a))
}

func TestStringSetAddDeleteSlice(t *testing.T) {
	ss := NewStringSet("a")
	ss.Add("b")
	assert.True(t, ss.Contains("b"))
	ss.Delete("a")
	assert.False(t, ss.Contains("a"))
	assert.Equal(t, []string{"b"}, ss.Slice())
}

func TestCksumHashMatchesStandardDigests(t *testing.T) {
	h := NewCksumHash()
	r := TeeHash(strings.NewReader("hello world"), h)
	_, err := io.Copy(io.Discard, r)
	assert.NoError(t, err)

	assert.Equal(t, int64(len("hello world")), h.Size())
	assert.NotEmpty(t, h.MD5Base64())
	assert.NotEmpty(t, h.SHA256Base64())
	assert.Len(t, h.MD5Hex(), 32)
}

func TestGenVersionIDAndJobIDAreUniqueAndNonEmpty(t *testing.T) {
	v1, v2 := GenVersionID(), GenVersionID()
	assert.NotEmpty(t, v1)
	assert.NotEqual(t, v1, v2)

	j1, j2 := GenJobID(), GenJobID()
	assert.NotEmpty(t, j1)
	assert.NotEqual(t, j1, j2)
}

func TestHashPrefixIsDeterministicAndTruncates(t *testing.T) {
	p1 := HashPrefix("some/object/name", 4)
	p2 := HashPrefix("some/object/name", 4)
	assert.Equal(t, p1, p2)
	assert.Len(t, p1, 4)

	full := HashPrefix("some/object/name", 99)
	assert.Len(t, full, 16)
}
