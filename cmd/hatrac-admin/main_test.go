package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

func TestPathSegmentsParsesOperatorPath(t *testing.T) {
	segs, err := pathSegments("/a/b/c", &cmn.Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, segs)
}

func TestPathSegmentsRejectsIllegalPath(t *testing.T) {
	_, err := pathSegments("/a/../b", &cmn.Config{})
	assert.Error(t, err)
}

func TestVerifyRemoteHashSkippedWhenNoDeclaredDigest(t *testing.T) {
	err := verifyRemoteHash(context.Background(), "http://example.invalid/x", &model.Version{})
	assert.NoError(t, err)
}

func TestVerifyRemoteHashMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	ver := &model.Version{ContentSHA256: "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="}
	err := verifyRemoteHash(context.Background(), srv.URL, ver)
	assert.NoError(t, err)
}

func TestVerifyRemoteHashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("different content"))
	}))
	defer srv.Close()

	ver := &model.Version{ContentSHA256: "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="}
	err := verifyRemoteHash(context.Background(), srv.URL, ver)
	assert.Error(t, err)
}

func TestVerifyRemoteHashNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ver := &model.Version{ContentSHA256: "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="}
	err := verifyRemoteHash(context.Background(), srv.URL, ver)
	assert.Error(t, err)
}
