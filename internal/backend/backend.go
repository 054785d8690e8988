// Package backend defines the storage-backend abstraction (§4.3):
// whatever persists payload bytes behind the metadata directory.
// Concrete implementations live in fsbackend, s3backend, and
// overlaybackend. Grounded on the teacher's cluster.CloudProvider
// interface (ais/cloud/aws.go, cluster/cloud.go), which plays the
// identical role of letting ais/target.go stay backend-agnostic.
package backend

import (
	"context"
	"io"
	"time"
)

// Metadata is the declared content attributes a backend may need to
// record alongside the bytes (e.g. as S3 object metadata headers).
type Metadata struct {
	ContentType        string
	ContentMD5         string
	ContentSHA256      string
	ContentDisposition string
}

// Receipt is what create_from_stream/finalize_upload hand back to the
// metadata directory: the backend-confirmed size/digests plus the Aux
// override record that addresses the bytes on a later GET (§3 Aux
// record, §4.3).
type Receipt struct {
	Size          int64
	ContentMD5    string
	ContentSHA256 string
	Aux           map[string]string // flattened onto model.Aux by the caller
}

// ChunkReceipt is one chunk's backend-specific aux (§4.4), e.g. an S3
// multipart part ETag plus its observed size.
type ChunkReceipt struct {
	ETag string
	Size int64
}

// Backend is the storage-backend contract (§4.3). name is the resolved
// object path; version is the opaque version-id minted by the metadata
// directory before the backend call (content-addressed backends may
// ignore it and report their own address via Receipt.Aux).
type Backend interface {
	// CreateFromStream writes a whole-body PUT (§4.2 create_version).
	CreateFromStream(ctx context.Context, name, version string, r io.Reader, size int64, md Metadata) (Receipt, error)

	// GetStream opens name/version for reading, honoring an optional
	// byte range (§4.7 Range handling); rng may be nil.
	GetStream(ctx context.Context, name, version string, rng *Range) (io.ReadCloser, int64, Metadata, error)

	// Delete removes the backend bytes for name/version.
	Delete(ctx context.Context, name, version string) error

	// CreateUpload reserves backend-side state for a chunked upload
	// (§4.4 "POST to create") and returns an opaque handle.
	CreateUpload(ctx context.Context, name string, size int64, md Metadata) (handle string, err error)

	// UploadChunk writes one chunk (§4.4 "PUT chunk at position p").
	// chunkLength is the job's declared chunk-length (used by
	// position-addressed backends to seek); size is this chunk's actual
	// byte count, equal to chunkLength except for the final chunk.
	UploadChunk(ctx context.Context, name, handle string, position, chunkLength, size int64, r io.Reader) (ChunkReceipt, error)

	// FinalizeUpload assembles the chunks named by chunkAux into the
	// final object (§4.4 "POST to finalize").
	FinalizeUpload(ctx context.Context, name, handle string, chunkAux []ChunkReceipt, md Metadata) (Receipt, error)

	// CancelUpload releases a backend reservation (§4.4 cancel/DELETE,
	// implicit cancel).
	CancelUpload(ctx context.Context, name, handle string) error

	// Address reports the backend's own addressing key for name/version,
	// used for diagnostics and by hatrac-admin's migration tool (§4.3
	// introspection, §9 supplemented feature).
	Address(ctx context.Context, name, version string) (string, error)
}

// Presigner is implemented by backends that can redirect large GETs
// instead of proxying bytes (§4.3 "Presigned-URL redirection is enabled
// above a configured size threshold").
type Presigner interface {
	PresignedGet(ctx context.Context, name, version string, ttl time.Duration) (string, bool, error)
}

// Range is a validated byte range request (§4.7); End is inclusive.
type Range struct {
	Start int64
	End   int64 // -1 means "to end of content"
}
