package store

// schema is Hatrac's relational layout (§6), created by `hatrac-admin deploy`
// through Store.Migrate (internal/store/store.go). Tombstone rows (deleted_at set) are never
// physically removed, enforcing the non-reuse invariant in §3.
const schema = `
CREATE TABLE IF NOT EXISTS namespace (
	id          BIGSERIAL PRIMARY KEY,
	parent_id   BIGINT REFERENCES namespace(id),
	path        TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at  TIMESTAMPTZ,
	acls_json   JSONB NOT NULL DEFAULT '{}',
	aux_json    JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS object (
	id                  BIGSERIAL PRIMARY KEY,
	namespace_id        BIGINT NOT NULL REFERENCES namespace(id),
	path                TEXT NOT NULL UNIQUE,
	current_version_id  BIGINT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at          TIMESTAMPTZ,
	acls_json           JSONB NOT NULL DEFAULT '{}',
	aux_json            JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS version (
	id                   BIGSERIAL PRIMARY KEY,
	object_id            BIGINT NOT NULL REFERENCES object(id),
	version_key          TEXT NOT NULL,
	size                 BIGINT NOT NULL,
	content_type         TEXT NOT NULL DEFAULT 'application/octet-stream',
	content_md5          TEXT,
	content_sha256       TEXT,
	content_disposition  TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at           TIMESTAMPTZ,
	acls_json            JSONB NOT NULL DEFAULT '{}',
	aux_json             JSONB NOT NULL DEFAULT '{}',
	UNIQUE(object_id, version_key)
);

CREATE TABLE IF NOT EXISTS root_acl (
	id          INT PRIMARY KEY DEFAULT 1,
	acls_json   JSONB NOT NULL DEFAULT '{}',
	CHECK (id = 1)
);

CREATE TABLE IF NOT EXISTS upload (
	id              BIGSERIAL PRIMARY KEY,
	object_id       BIGINT NOT NULL REFERENCES object(id),
	job_key         TEXT NOT NULL UNIQUE,
	chunk_length    BIGINT NOT NULL,
	content_length  BIGINT NOT NULL,
	metadata_json   JSONB NOT NULL DEFAULT '{}',
	created_on      TIMESTAMPTZ NOT NULL DEFAULT now(),
	owner_json      JSONB NOT NULL DEFAULT '[]',
	state           TEXT NOT NULL DEFAULT 'open',
	backend_handle  TEXT,
	chunk_aux_json  JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_namespace_parent ON namespace(parent_id);
CREATE INDEX IF NOT EXISTS idx_object_namespace ON object(namespace_id);
CREATE INDEX IF NOT EXISTS idx_version_object ON version(object_id);
CREATE INDEX IF NOT EXISTS idx_upload_object ON upload(object_id) WHERE state = 'open';
`
