package urlpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegments(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		segments []string
		version  string
		sub      string
		sel1     string
		sel2     string
	}{
		{name: "root", raw: "/", segments: nil},
		{name: "single", raw: "/foo", segments: []string{"foo"}},
		{name: "nested", raw: "/a/b/c", segments: []string{"a", "b", "c"}},
		{name: "versioned", raw: "/a/b:123", segments: []string{"a", "b"}, version: "123"},
		{name: "metadata", raw: "/a/b;metadata/content-type", segments: []string{"a", "b"}, sub: SubMetadata, sel1: "content-type"},
		{name: "acl", raw: "/a;acl/owner/role1", segments: []string{"a"}, sub: SubACL, sel1: "owner", sel2: "role1"},
		{name: "upload", raw: "/a/b;upload", segments: []string{"a", "b"}, sub: SubUpload},
		{name: "percent-encoded", raw: "/a%2Fb", segments: []string{"a/b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw, "")
			require.NoError(t, err)
			assert.Equal(t, tc.segments, p.Segments)
			assert.Equal(t, tc.version, p.Version)
			assert.Equal(t, tc.sub, p.Sub)
			assert.Equal(t, tc.sel1, p.SubSel1)
			assert.Equal(t, tc.sel2, p.SubSel2)
		})
	}
}

func TestParseRejectsIllegalSegments(t *testing.T) {
	cases := []string{
		"/a/./b",
		"/a/../b",
		"/a//b",
		"/a;bogus",
		"/a:",
		"/a;",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw, "")
			assert.Error(t, err)
		})
	}
}

func TestParseCustomCharClass(t *testing.T) {
	_, err := Parse("/foo_bar", "A-Za-z0-9_")
	assert.NoError(t, err)

	_, err = Parse("/foo.bar", "A-Za-z0-9_")
	assert.Error(t, err)
}

func TestJoinRoundTrip(t *testing.T) {
	segments := []string{"a b", "c/d"}
	path := Join("/hatrac", segments, "7")
	p, err := Parse(path[len("/hatrac"):], "")
	require.NoError(t, err)
	assert.Equal(t, segments, p.Segments)
	assert.Equal(t, "7", p.Version)
}

func TestJoinSub(t *testing.T) {
	base := Join("/hatrac", []string{"a"}, "")
	full := JoinSub(base, SubACL, "owner", "role one")
	p, err := Parse(full[len("/hatrac"):], "")
	require.NoError(t, err)
	assert.Equal(t, SubACL, p.Sub)
	assert.Equal(t, "owner", p.SubSel1)
	assert.Equal(t, "role one", p.SubSel2)
}
