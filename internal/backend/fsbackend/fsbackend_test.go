package fsbackend

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/backend"
)

func TestCreateGetAndDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("hello hatrac")
	receipt, err := b.CreateFromStream(ctx, "/a/obj", "v1", bytes.NewReader(content), int64(len(content)), backend.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), receipt.Size)
	assert.NotEmpty(t, receipt.ContentMD5)
	assert.NotEmpty(t, receipt.ContentSHA256)

	rc, size, _, err := b.GetStream(ctx, "/a/obj", "v1", nil)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(len(content)), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, b.Delete(ctx, "/a/obj", "v1"))
	_, _, _, err = b.GetStream(ctx, "/a/obj", "v1", nil)
	assert.Error(t, err)
}

func TestGetStreamHonorsRange(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("0123456789")
	_, err = b.CreateFromStream(ctx, "/a/obj", "v1", bytes.NewReader(content), int64(len(content)), backend.Metadata{})
	require.NoError(t, err)

	rc, size, _, err := b.GetStream(ctx, "/a/obj", "v1", &backend.Range{Start: 2, End: 5})
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(4), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), got)
}

func TestGetStreamRangeUnsatisfiable(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("0123456789")
	_, err = b.CreateFromStream(ctx, "/a/obj", "v1", bytes.NewReader(content), int64(len(content)), backend.Metadata{})
	require.NoError(t, err)

	_, _, _, err = b.GetStream(ctx, "/a/obj", "v1", &backend.Range{Start: 20, End: 30})
	assert.Error(t, err)
}

func TestChunkedUploadLifecycle(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	handle, err := b.CreateUpload(ctx, "/a/big", 10, backend.Metadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	r1, err := b.UploadChunk(ctx, "/a/big", handle, 0, 5, 5, bytes.NewReader([]byte("abcde")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), r1.Size)

	r2, err := b.UploadChunk(ctx, "/a/big", handle, 1, 5, 5, bytes.NewReader([]byte("fghij")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), r2.Size)

	receipt, err := b.FinalizeUpload(ctx, "/a/big", handle, []backend.ChunkReceipt{r1, r2}, backend.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), receipt.Size)

	require.NoError(t, b.PublishUpload("/a/big", handle, "v1"))

	rc, size, _, err := b.GetStream(ctx, "/a/big", "v1", nil)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(10), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefghij"), got)
}

func TestCancelUploadRemovesTempFile(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	handle, err := b.CreateUpload(ctx, "/a/obj", 5, backend.Metadata{})
	require.NoError(t, err)
	require.NoError(t, b.CancelUpload(ctx, "/a/obj", handle))

	_, err = os.Stat(b.uploadPath("/a/obj", handle))
	assert.True(t, os.IsNotExist(err))
}
