package overlaybackend

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/fsbackend"
)

func TestGetStreamReadsThroughToSecondaryOnMiss(t *testing.T) {
	ctx := context.Background()
	primary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	secondary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)

	content := []byte("only on secondary")
	_, err = secondary.CreateFromStream(ctx, "/a/obj", "v1", bytes.NewReader(content), int64(len(content)), backend.Metadata{})
	require.NoError(t, err)

	ov := New(primary, secondary)
	rc, size, _, err := ov.GetStream(ctx, "/a/obj", "v1", nil)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(len(content)), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGetStreamPrefersPrimary(t *testing.T) {
	ctx := context.Background()
	primary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	secondary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)

	_, err = primary.CreateFromStream(ctx, "/a/obj", "v1", bytes.NewReader([]byte("on primary")), 10, backend.Metadata{})
	require.NoError(t, err)
	_, err = secondary.CreateFromStream(ctx, "/a/obj", "v1", bytes.NewReader([]byte("on secondary")), 12, backend.Metadata{})
	require.NoError(t, err)

	ov := New(primary, secondary)
	rc, _, _, err := ov.GetStream(ctx, "/a/obj", "v1", nil)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "on primary", string(got))
}

func TestGetStreamMissingEverywhere(t *testing.T) {
	ctx := context.Background()
	primary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	secondary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)

	ov := New(primary, secondary)
	_, _, _, err = ov.GetStream(ctx, "/a/obj", "v1", nil)
	assert.Error(t, err)
}

func TestPresignedGetWithNoSecondary(t *testing.T) {
	ctx := context.Background()
	primary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)

	ov := New(primary, nil)
	url, ok, err := ov.PresignedGet(ctx, "/a/obj", "v1", 0)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, url)
}

func TestPresignedGetSecondaryWithoutPresignerSupport(t *testing.T) {
	ctx := context.Background()
	primary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	secondary, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)

	ov := New(primary, secondary)
	_, ok, err := ov.PresignedGet(ctx, "/a/obj", "v1", 0)
	assert.NoError(t, err)
	assert.False(t, ok)
}
