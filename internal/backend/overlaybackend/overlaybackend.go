// Package overlaybackend implements the "overlay" storage_backend
// (§4.3, §6 StorageBackend "filesystem|amazons3|overlay"): a primary
// backend (always filesystem in practice) serving reads and writes,
// falling through to a secondary backend for GETs the primary does not
// have — e.g. content migrated onto S3 but not yet re-synced locally.
// Grounded on the teacher's mirror/ package, which layers a local copy
// in front of a remote one and reads through to the remote only on a
// local miss.
package overlaybackend

import (
	"context"
	"io"
	"time"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

type Backend struct {
	primary   backend.Backend
	secondary backend.Backend
}

func New(primary, secondary backend.Backend) *Backend {
	return &Backend{primary: primary, secondary: secondary}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) CreateFromStream(ctx context.Context, name, version string, r io.Reader, size int64, md backend.Metadata) (backend.Receipt, error) {
	return b.primary.CreateFromStream(ctx, name, version, r, size, md)
}

// GetStream reads through to the primary first, falling back to the
// secondary on a "not found" — a local miss for content that only
// exists on the secondary (§4.3 overlay composition).
func (b *Backend) GetStream(ctx context.Context, name, version string, rng *backend.Range) (io.ReadCloser, int64, backend.Metadata, error) {
	rc, size, md, err := b.primary.GetStream(ctx, name, version, rng)
	if err == nil {
		return rc, size, md, nil
	}
	if herr.As(err).Kind != herr.KindNotFound || b.secondary == nil {
		return nil, 0, backend.Metadata{}, err
	}
	glog.V(glog.SmoduleBackend).Infof("overlay: %s version %s missing on primary, reading through to secondary", name, version)
	return b.secondary.GetStream(ctx, name, version, rng)
}

func (b *Backend) Delete(ctx context.Context, name, version string) error {
	err := b.primary.Delete(ctx, name, version)
	if b.secondary != nil {
		if serr := b.secondary.Delete(ctx, name, version); serr != nil && herr.As(serr).Kind != herr.KindNotFound {
			glog.Warningf("overlay: secondary delete failed for %s version %s: %v", name, version, serr)
		}
	}
	return err
}

func (b *Backend) CreateUpload(ctx context.Context, name string, size int64, md backend.Metadata) (string, error) {
	return b.primary.CreateUpload(ctx, name, size, md)
}

func (b *Backend) UploadChunk(ctx context.Context, name, handle string, position, chunkLength, size int64, r io.Reader) (backend.ChunkReceipt, error) {
	return b.primary.UploadChunk(ctx, name, handle, position, chunkLength, size, r)
}

func (b *Backend) FinalizeUpload(ctx context.Context, name, handle string, chunkAux []backend.ChunkReceipt, md backend.Metadata) (backend.Receipt, error) {
	return b.primary.FinalizeUpload(ctx, name, handle, chunkAux, md)
}

func (b *Backend) CancelUpload(ctx context.Context, name, handle string) error {
	return b.primary.CancelUpload(ctx, name, handle)
}

func (b *Backend) Address(ctx context.Context, name, version string) (string, error) {
	return b.primary.Address(ctx, name, version)
}

// PresignedGet delegates to the secondary backend when it supports
// presigning (e.g. a versioned S3 secondary) and the content is not on
// the local primary; otherwise reports no presigned URL.
func (b *Backend) PresignedGet(ctx context.Context, name, version string, ttl time.Duration) (string, bool, error) {
	if b.secondary == nil {
		return "", false, nil
	}
	if rc, _, _, err := b.primary.GetStream(ctx, name, version, nil); err == nil {
		rc.Close()
		return "", false, nil
	}
	if p, ok := b.secondary.(backend.Presigner); ok {
		return p.PresignedGet(ctx, name, version, ttl)
	}
	return "", false, nil
}
