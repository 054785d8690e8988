// Package upload coordinates the chunked-upload state machine (§4.4)
// across the metadata directory (internal/store) and a storage
// backend (internal/backend): every backend call that is not safely
// retryable happens outside a database transaction, with the
// transactional compare-and-set bracketing it, so a transaction retry
// never re-issues a non-idempotent backend side effect (§5, §9).
//
// Grounded on the teacher's downloader/ package, which similarly
// coordinates a multi-step, resumable transfer against cluster state
// without holding a lock across the slow I/O.
package upload

import (
	"context"
	"io"

	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn/cos"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/metrics"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
)

// Coordinator wires a metadata Store to a storage Backend for every
// operation that spans both (§4.2 create_upload/record_chunk/
// finalize_upload/cancel_upload).
type Coordinator struct {
	Store   *store.Store
	Backend backend.Backend
}

func New(s *store.Store, b backend.Backend) *Coordinator {
	return &Coordinator{Store: s, Backend: b}
}

// LegacyAliases canonicalizes the source's legacy JSON field names
// (§9c) onto Hatrac's canonical UploadMetadata fields; both spellings
// are accepted on input, only the canonical one is ever stored.
type LegacyAliases struct {
	ChunkBytes *int64 `json:"chunk_bytes,omitempty"`
	TotalBytes *int64 `json:"total_bytes,omitempty"`
	ContentMD5 string `json:"content_md5,omitempty"`
}

// CanonicalizeChunking resolves chunk-length/content-length from either
// the canonical or legacy field names, preferring canonical when both
// are present.
func CanonicalizeChunking(chunkLength, contentLength int64, legacy LegacyAliases) (int64, int64) {
	if chunkLength <= 0 && legacy.ChunkBytes != nil {
		chunkLength = *legacy.ChunkBytes
	}
	if contentLength <= 0 && legacy.TotalBytes != nil {
		contentLength = *legacy.TotalBytes
	}
	return chunkLength, contentLength
}

// CreateJob implements the POST-to-create step (§4.4): it reserves
// backend state first (CreateUpload has no prior transactional record
// to make idempotent), then persists the UploadJob row referencing that
// reservation.
func (c *Coordinator) CreateJob(ctx context.Context, segments []string, chunkLength, contentLength int64, md model.UploadMetadata, ownerRoles []string) (*model.UploadJob, error) {
	if chunkLength <= 0 {
		return nil, herr.BadRequest("chunk-length must be positive")
	}
	if contentLength < 0 {
		return nil, herr.BadRequest("content-length must not be negative")
	}
	full := segPath(segments)
	handle, err := c.Backend.CreateUpload(ctx, full, contentLength, backend.Metadata{
		ContentType:        md.ContentType,
		ContentMD5:         md.ContentMD5,
		ContentSHA256:      md.ContentSHA256,
		ContentDisposition: md.ContentDisposition,
	})
	if err != nil {
		return nil, err
	}
	jobKey := cos.GenJobID()
	job, err := c.Store.CreateUploadJob(ctx, segments, jobKey, chunkLength, contentLength, md, ownerRoles, handle)
	if err != nil {
		// the metadata insert failed after a successful backend reservation:
		// release it rather than leak it (§4.4 cancel semantics apply here too).
		_ = c.Backend.CancelUpload(ctx, full, handle)
		return nil, err
	}
	metrics.UploadJobsOpen.Inc()
	return job, nil
}

// PutChunk implements "PUT chunk at position p" (§4.4): validates the
// position against the job's declared geometry, writes the bytes to the
// backend, then records the resulting aux. Idempotent under
// retransmission because both the backend write (position-addressed,
// last-writer-wins) and the store update (replace-by-position) are.
func (c *Coordinator) PutChunk(ctx context.Context, segments []string, jobKey string, position int64, r io.Reader) error {
	job, err := c.Store.GetUploadJob(ctx, segments, jobKey)
	if err != nil {
		return err
	}
	if job.State != model.UploadOpen {
		return herr.Conflict("upload job %q is not open", jobKey)
	}
	n := job.NumChunks()
	if position < 0 {
		return herr.BadRequest("chunk position %d is negative", position)
	}
	if position >= n {
		return herr.Conflict("chunk position %d exceeds chunk count %d", position, n)
	}
	size := job.ChunkSize(position)
	full := segPath(segments)
	receipt, err := c.Backend.UploadChunk(ctx, full, job.BackendHandle, position, job.ChunkLength, size, r)
	if err != nil {
		return err
	}
	return c.Store.RecordChunk(ctx, segments, jobKey, position, model.ChunkAux{
		Position: int(position),
		ETag:     receipt.ETag,
		Size:     receipt.Size,
	})
}

// Finalize implements "POST to finalize" (§4.4): the open->finalizing
// compare-and-set happens first so a concurrent second finalize is
// rejected before any backend work runs (§7 "at most one new Version
// row"), then the backend assembles the object, then the Version row is
// created and the job marked finalized.
func (c *Coordinator) Finalize(ctx context.Context, segments []string, jobKey string) (*model.Object, *model.Version, error) {
	job, err := c.Store.MarkUploadFinalizing(ctx, segments, jobKey)
	if err != nil {
		return nil, nil, err
	}
	if int64(len(job.ChunkAux)) != job.NumChunks() {
		c.cancelAndCount(ctx, segments, jobKey)
		return nil, nil, herr.Conflict("upload job %q has %d of %d chunks recorded", jobKey, len(job.ChunkAux), job.NumChunks())
	}

	full := segPath(segments)
	chunkAux := make([]backend.ChunkReceipt, len(job.ChunkAux))
	for i := range job.ChunkAux {
		chunkAux[i] = backend.ChunkReceipt{ETag: job.ChunkAux[i].ETag, Size: job.ChunkAux[i].Size}
	}
	receipt, err := c.Backend.FinalizeUpload(ctx, full, job.BackendHandle, chunkAux, backend.Metadata{
		ContentType:        job.Metadata.ContentType,
		ContentMD5:         job.Metadata.ContentMD5,
		ContentSHA256:      job.Metadata.ContentSHA256,
		ContentDisposition: job.Metadata.ContentDisposition,
	})
	if err != nil {
		c.cancelAndCount(ctx, segments, jobKey)
		return nil, nil, err
	}

	if job.Metadata.ContentMD5 != "" && receipt.ContentMD5 != "" && job.Metadata.ContentMD5 != receipt.ContentMD5 {
		c.cancelAndCount(ctx, segments, jobKey)
		return nil, nil, herr.Conflict("assembled content-md5 %q does not match declared %q", receipt.ContentMD5, job.Metadata.ContentMD5)
	}
	if job.Metadata.ContentSHA256 != "" && receipt.ContentSHA256 != "" && job.Metadata.ContentSHA256 != receipt.ContentSHA256 {
		c.cancelAndCount(ctx, segments, jobKey)
		return nil, nil, herr.Conflict("assembled content-sha256 %q does not match declared %q", receipt.ContentSHA256, job.Metadata.ContentSHA256)
	}
	if receipt.Size != job.ContentLength {
		c.cancelAndCount(ctx, segments, jobKey)
		return nil, nil, herr.Conflict("assembled size %d does not match declared content-length %d", receipt.Size, job.ContentLength)
	}

	versionKey := cos.GenVersionID()
	if pub, ok := c.Backend.(interface {
		PublishUpload(name, handle, version string) error
	}); ok {
		if err := pub.PublishUpload(full, job.BackendHandle, versionKey); err != nil {
			c.cancelAndCount(ctx, segments, jobKey)
			return nil, nil, err
		}
	}

	aux := model.Aux{}
	if v, ok := receipt.Aux["url"]; ok {
		aux.URL = v
	}
	if v, ok := receipt.Aux["version"]; ok {
		aux.Version = v
	}
	attrs := store.VersionAttrs{
		Size:               receipt.Size,
		ContentType:        job.Metadata.ContentType,
		ContentMD5:         job.Metadata.ContentMD5,
		ContentSHA256:      job.Metadata.ContentSHA256,
		ContentDisposition: job.Metadata.ContentDisposition,
	}
	obj, ver, err := c.Store.FinalizeUploadJob(ctx, segments, jobKey, versionKey, attrs, aux)
	if err != nil {
		return nil, nil, err
	}
	metrics.UploadJobsOpen.Dec()
	metrics.UploadJobsFinalizedTotal.Inc()
	return obj, ver, nil
}

// cancelAndCount marks the job cancelled and updates the open/cancelled
// gauges; errors from the cancel itself are swallowed because the
// caller is already returning the original failure.
func (c *Coordinator) cancelAndCount(ctx context.Context, segments []string, jobKey string) {
	if err := c.Store.CancelUploadJob(ctx, segments, jobKey); err == nil {
		metrics.UploadJobsOpen.Dec()
		metrics.UploadJobsCancelledTotal.Inc()
	}
}

// Cancel implements cancel/DELETE and implicit cancel (§4.4): the
// backend reservation is released first so a retried metadata update
// never leaves an orphaned reservation.
func (c *Coordinator) Cancel(ctx context.Context, segments []string, jobKey string) error {
	job, err := c.Store.GetUploadJob(ctx, segments, jobKey)
	if err != nil {
		return err
	}
	full := segPath(segments)
	if err := c.Backend.CancelUpload(ctx, full, job.BackendHandle); err != nil {
		return err
	}
	if err := c.Store.CancelUploadJob(ctx, segments, jobKey); err != nil {
		return err
	}
	metrics.UploadJobsOpen.Dec()
	metrics.UploadJobsCancelledTotal.Inc()
	return nil
}

func segPath(segments []string) string {
	full := ""
	for _, s := range segments {
		full += "/" + s
	}
	return full
}
