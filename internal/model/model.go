// Package model holds Hatrac's domain entities (§3): Namespace, Object,
// Version, Aux record, and UploadJob. These are plain value types shared
// between the store and handler layers, the same role cluster.Bck/LOM
// play for the teacher (cmn/bucket.go) but scoped to Hatrac's name tree
// instead of a flat bucket/object pair.
package model

import "time"

// Kind is a Name's binding (§3 invariant 1).
type Kind int

const (
	KindUndefined Kind = iota
	KindNamespace
	KindObject
	KindDeleted
)

// ACL is a named-access-list map, e.g. {"owner": [...], "read": [...]}.
// Kept as a flat map rather than per-access struct fields so it survives
// round-trips through acls_json (§6 schema) without bespoke (un)marshal
// code, mirroring how the teacher keeps BucketProps.Access as a bitmask
// blob rather than individual typed fields.
type ACL map[string][]string

func (a ACL) Clone() ACL {
	out := make(ACL, len(a))
	for k, v := range a {
		cp := make([]string, len(v))
        copy(cp, v)
		out[k] = cp
	}
	return out
}

// Aux is the per-Version override record (§3 "Aux record").
type Aux struct {
	RenameTo *RenameTarget `json:"rename_to,omitempty"`
	URL      string        `json:"url,omitempty"`
	HName    string        `json:"hname,omitempty"`
	HVersion string        `json:"hversion,omitempty"`
	Version  string        `json:"version,omitempty"` // backend-level version override (S3)
}

type RenameTarget struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (a *Aux) IsEmpty() bool {
	return a == nil || (a.RenameTo == nil && a.URL == "" && a.HName == "" && a.HVersion == "" && a.Version == "")
}

// Namespace is an internal tree node (§3 Namespace).
type Namespace struct {
	ID        int64
	ParentID  int64
	Path      string // full path, e.g. "/a/b"
	ACLs      ACL
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Object is a leaf node with an ordered set of Versions (§3 Object).
type Object struct {
	ID               int64
	NamespaceID      int64
	Path             string
	ACLs             ACL
	CurrentVersionID *int64
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// Version is an immutable content binding of an Object (§3 Version).
type Version struct {
	ID                 int64
	ObjectID           int64
	VersionKey         string // opaque, URL-safe, the "<vid>" in path:<vid>
	Size               int64
	ContentType        string
	ContentMD5         string // base64, RFC 1864 form
	ContentSHA256      string // base64
	ContentDisposition string // bare filename, no path separators
	ACLs               ACL
	Aux                Aux
	CreatedAt          time.Time
	DeletedAt          *time.Time
}

func (v *Version) IsLive() bool { return v.DeletedAt == nil }

// UploadState is the job lifecycle (§4.4).
type UploadState string

const (
	UploadOpen       UploadState = "open"
	UploadFinalizing UploadState = "finalizing"
	UploadFinalized  UploadState = "finalized"
	UploadCancelled  UploadState = "cancelled"
)

// UploadMetadata is the intended Version metadata declared at job creation
// (§3 UploadJob), canonicalized from any legacy field aliases (§9c) before
// it ever reaches this struct.
type UploadMetadata struct {
	ContentType        string `json:"content-type,omitempty"`
	ContentMD5         string `json:"content-md5,omitempty"`
	ContentSHA256      string `json:"content-sha256,omitempty"`
	ContentDisposition string `json:"content-disposition,omitempty"`
}

// ChunkAux is one chunk's backend-specific receipt (e.g. an S3 part ETag).
type ChunkAux struct {
	Position int    `json:"position"`
	ETag     string `json:"etag,omitempty"`
	Size     int64  `json:"size"`
}

// UploadJob is transient chunked-upload state (§3 UploadJob).
type UploadJob struct {
	ID            int64
	JobKey        string // opaque job-id used in the URL
	ObjectPath    string // target object name
	ObjectID      int64  // resolved target, 0 if object not yet created
	ChunkLength   int64
	ContentLength int64
	Metadata      UploadMetadata
	ChunkAux      []ChunkAux
	OwnerRoles    []string
	State         UploadState
	BackendHandle string // e.g. S3 multipart upload id
	CreatedAt     time.Time
}

// NumChunks returns the expected chunk count for an upload job (§4.4).
func (j *UploadJob) NumChunks() int64 {
	if j.ChunkLength <= 0 {
		return 0
	}
	n := j.ContentLength / j.ChunkLength
	if j.ContentLength%j.ChunkLength != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// ChunkSize returns the expected size of chunk position (§4.4: all chunks
// equal chunk-length except the last).
func (j *UploadJob) ChunkSize(position int64) int64 {
	last := j.NumChunks() - 1
	if position < last {
		return j.ChunkLength
	}
	rem := j.ContentLength % j.ChunkLength
	if rem == 0 {
		return j.ChunkLength
	}
	return rem
}
