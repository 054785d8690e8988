package svc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

func TestNewRequestParsesPathAndRoles(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/a/b", nil)
	r.Header.Set("Remote-User-Groups", "alice, bob ,")
	req, err := newRequest(r, "/a/b", &cmn.Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, req.parsed.Segments)
	assert.Equal(t, []string{"alice", "bob"}, req.roles)
}

func TestRolesFromRequestEmptyHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/a", nil)
	assert.Nil(t, rolesFromRequest(r))
}

func TestIsMutating(t *testing.T) {
	cases := []struct {
		method   string
		isMutate bool
	}{
		{http.MethodGet, false},
		{http.MethodHead, false},
		{http.MethodOptions, false},
		{http.MethodPut, true},
		{http.MethodPost, true},
		{http.MethodDelete, true},
	}
	for _, tc := range cases {
		req := &request{http: httptest.NewRequest(tc.method, "/a", nil)}
		assert.Equal(t, tc.isMutate, req.isMutating(), tc.method)
	}
}

func TestIfMatch(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/a", nil)
	v, star := ifMatch(r)
	assert.Nil(t, v)
	assert.False(t, star)

	r.Header.Set("If-Match", "*")
	v, star = ifMatch(r)
	assert.Nil(t, v)
	assert.True(t, star)

	r.Header.Set("If-Match", `"abc"`)
	v, star = ifMatch(r)
	require.NotNil(t, v)
	assert.Equal(t, `"abc"`, *v)
	assert.False(t, star)
}

func TestIfNoneMatchHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/a", nil)
	assert.False(t, ifNoneMatchStar(r))
	assert.Equal(t, "", ifNoneMatchValue(r))

	r.Header.Set("If-None-Match", "*")
	assert.True(t, ifNoneMatchStar(r))
	assert.Equal(t, "*", ifNoneMatchValue(r))
}

func TestRequireSegments(t *testing.T) {
	empty := &request{parsed: &urlpath.Parsed{}}
	assert.Error(t, requireSegments(empty))
}
