package store

import (
	"context"
	"database/sql"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// CreateUploadJob implements create_upload (§4.2, §4.4 "POST to create").
// backendHandle is the already-obtained backend reservation (e.g. an S3
// multipart upload id) — the backend call happens before this, in
// internal/upload, so a transaction retry here never re-issues it. The
// target object's shell row is created on first use exactly as
// CreateVersion does, so concurrent chunked and whole-body writers see
// the same Object row.
func (s *Store) CreateUploadJob(ctx context.Context, segments []string, jobKey string, chunkLength, contentLength int64, md model.UploadMetadata, ownerRoles []string, backendHandle string) (*model.UploadJob, error) {
	var out *model.UploadJob
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		var objID int64
		switch res.Kind {
		case model.KindNamespace:
			return herr.Conflict("name %q is already bound as a namespace", segPath(segments))
		case model.KindDeleted:
			return herr.Conflict("name %q was deleted and cannot be reused", segPath(segments))
		case model.KindObject:
			objID = res.Object.ID
		default:
			parentID, err := resolveParentNamespaceID(ctx, tx, segments)
			if err != nil {
				return err
			}
			full := segPath(segments)
			acl := model.ACL{}
			row := tx.QueryRowContext(ctx,
				`INSERT INTO object (namespace_id, path, acls_json) VALUES ($1, $2, $3) RETURNING id`,
				parentID, full, jsonScanner(&acl))
			if err := row.Scan(&objID); err != nil {
				return herr.Internal(err, "insert object shell for upload")
			}
		}

		job := &model.UploadJob{
			ObjectID:      objID,
			ObjectPath:    segPath(segments),
			JobKey:        jobKey,
			ChunkLength:   chunkLength,
			ContentLength: contentLength,
			Metadata:      md,
			OwnerRoles:    ownerRoles,
			State:         model.UploadOpen,
			BackendHandle: backendHandle,
		}
		row := tx.QueryRowContext(ctx,
			`INSERT INTO upload (object_id, job_key, chunk_length, content_length, metadata_json, owner_json, state, backend_handle, chunk_aux_json)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'[]')
			 RETURNING id, created_on`,
			job.ObjectID, job.JobKey, job.ChunkLength, job.ContentLength,
			jsonScanner(&job.Metadata), jsonScanner(&job.OwnerRoles), string(job.State), nullStr(job.BackendHandle))
		if err := row.Scan(&job.ID, &job.CreatedAt); err != nil {
			return herr.Internal(err, "insert upload job")
		}
		out = job
		return nil
	})
	return out, err
}

// GetUploadJob resolves an open (or any-state) job by key under segments,
// used by the Upload sub-resource handler (§4.6) and by the coordinating
// internal/upload layer.
func (s *Store) GetUploadJob(ctx context.Context, segments []string, jobKey string) (*model.UploadJob, error) {
	var out *model.UploadJob
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		job, err := getUploadJobTx(ctx, tx, res.Object.ID, jobKey, false)
		if err != nil {
			return err
		}
		out = job
		return nil
	})
	return out, err
}

// ListOpenUploads implements the Upload sub-resource collection GET
// (§4.6 "Listing returns open jobs").
func (s *Store) ListOpenUploads(ctx context.Context, segments []string) ([]*model.UploadJob, error) {
	var out []*model.UploadJob
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, job_key, chunk_length, content_length, metadata_json, created_on, owner_json, state, backend_handle, chunk_aux_json
			 FROM upload WHERE object_id = $1 AND state = 'open' ORDER BY created_on ASC`, res.Object.ID)
		if err != nil {
			return herr.Internal(err, "list open uploads")
		}
		defer rows.Close()
		for rows.Next() {
			job := &model.UploadJob{ObjectID: res.Object.ID, ObjectPath: res.Object.Path}
			var handle sql.NullString
			var state string
			if err := rows.Scan(&job.ID, &job.JobKey, &job.ChunkLength, &job.ContentLength,
				jsonScanner(&job.Metadata), &job.CreatedAt, jsonScanner(&job.OwnerRoles),
				&state, &handle, jsonScanner(&job.ChunkAux)); err != nil {
				return herr.Internal(err, "scan upload job")
			}
			job.State = model.UploadState(state)
			job.BackendHandle = handle.String
			out = append(out, job)
		}
		return nil
	})
	return out, err
}

// RecordChunk implements record_chunk (§4.2, §4.4 "PUT chunk at position
// p"): the backend chunk write must already have happened (the caller
// passes its resulting aux); this call is the idempotent bookkeeping
// step, replacing any prior aux for the same position so retransmission
// of the same chunk is harmless.
func (s *Store) RecordChunk(ctx context.Context, segments []string, jobKey string, position int64, aux model.ChunkAux) error {
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		job, err := getUploadJobTx(ctx, tx, res.Object.ID, jobKey, true)
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
		replaced := false
		for i, c := range job.ChunkAux {
			if int64(c.Position) == position {
				job.ChunkAux[i] = aux
				replaced = true
				break
			}
		}
		if !replaced {
			job.ChunkAux = append(job.ChunkAux, aux)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE upload SET chunk_aux_json = $1 WHERE id = $2`,
			jsonScanner(&job.ChunkAux), job.ID); err != nil {
			return herr.Internal(err, "record chunk aux")
		}
		return nil
	})
}

// MarkUploadFinalizing performs the open->finalizing compare-and-set
// (§4.4, §7 "two finalizations of the same upload job MUST produce at
// most one new Version row"): the coordinating internal/upload layer
// calls this before invoking the backend's finalize_upload, so a
// concurrent second finalize request is rejected here before any
// backend work happens.
func (s *Store) MarkUploadFinalizing(ctx context.Context, segments []string, jobKey string) (*model.UploadJob, error) {
	var out *model.UploadJob
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		job, err := getUploadJobTx(ctx, tx, res.Object.ID, jobKey, true)
		if err != nil {
			return err
		}
		if job.State != model.UploadOpen {
			return herr.NotFound("upload job %q is not open", jobKey)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE upload SET state = 'finalizing' WHERE id = $1`, job.ID); err != nil {
			return herr.Internal(err, "mark upload finalizing")
		}
		job.State = model.UploadFinalizing
		out = job
		return nil
	})
	return out, err
}

// FinalizeUploadJob implements finalize_upload's metadata-side effect
// (§4.2, §4.4 "creates a new Version row under the target object;
// atomically transitions job to finalized"). The backend's
// finalize_upload must already have run (producing attrs/aux) by the
// time this is called.
func (s *Store) FinalizeUploadJob(ctx context.Context, segments []string, jobKey string, versionKey string, attrs VersionAttrs, aux model.Aux) (*model.Object, *model.Version, error) {
	var outObj *model.Object
	var outVer *model.Version
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		job, err := getUploadJobTx(ctx, tx, res.Object.ID, jobKey, true)
		if err != nil {
			return err
		}
		if job.State != model.UploadFinalizing {
			return herr.NotFound("upload job %q is not finalizing", jobKey)
		}

		obj := res.Object
		var prevCurrent *model.Version
		if obj.CurrentVersionID != nil {
			prevCurrent, err = getVersionByIDTx(ctx, tx, *obj.CurrentVersionID)
			if err != nil {
				return err
			}
		}
		verACL := model.ACL{}
		if prevCurrent != nil {
			verACL = prevCurrent.ACLs.Clone()
		}
		ver := &model.Version{
			ObjectID:           obj.ID,
			VersionKey:         versionKey,
			Size:               attrs.Size,
			ContentType:        attrs.ContentType,
			ContentMD5:         attrs.ContentMD5,
			ContentSHA256:      attrs.ContentSHA256,
			ContentDisposition: attrs.ContentDisposition,
			ACLs:               verACL,
			Aux:                aux,
		}
		row := tx.QueryRowContext(ctx,
			`INSERT INTO version (object_id, version_key, size, content_type, content_md5, content_sha256,
			                       content_disposition, acls_json, aux_json)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
			ver.ObjectID, ver.VersionKey, ver.Size, ver.ContentType, nullStr(ver.ContentMD5), nullStr(ver.ContentSHA256),
			nullStr(ver.ContentDisposition), jsonScanner(&ver.ACLs), jsonScanner(&ver.Aux))
		if err := row.Scan(&ver.ID, &ver.CreatedAt); err != nil {
			return herr.Internal(err, "insert version from upload")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE object SET current_version_id = $1 WHERE id = $2`, ver.ID, obj.ID); err != nil {
			return herr.Internal(err, "advance current version")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE upload SET state = 'finalized' WHERE id = $1`, job.ID); err != nil {
			return herr.Internal(err, "mark upload finalized")
		}
		v := ver.ID
		obj.CurrentVersionID = &v
		outObj, outVer = obj, ver
		return nil
	})
	return outObj, outVer, err
}

// CancelUploadJob implements cancel_upload (§4.2, §4.4 DELETE on a job):
// the backend reservation must already have been released by the
// caller; this marks the job terminal. Cancelling from "finalizing" is
// allowed so the coordinating layer can compensate when a backend
// finalize call itself fails after the compare-and-set.
func (s *Store) CancelUploadJob(ctx context.Context, segments []string, jobKey string) error {
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		job, err := getUploadJobTx(ctx, tx, res.Object.ID, jobKey, true)
		if err != nil {
			return err
		}
		if job.State != model.UploadOpen && job.State != model.UploadFinalizing {
			return herr.NotFound("upload job %q is already terminal", jobKey)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE upload SET state = 'cancelled' WHERE id = $1`, job.ID); err != nil {
			return herr.Internal(err, "cancel upload job")
		}
		return nil
	})
}

func getUploadJobTx(ctx context.Context, tx *sql.Tx, objectID int64, jobKey string, forUpdate bool) (*model.UploadJob, error) {
	q := `SELECT id, object_id, job_key, chunk_length, content_length, metadata_json, created_on, owner_json, state, backend_handle, chunk_aux_json
	      FROM upload WHERE object_id = $1 AND job_key = $2`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	job := &model.UploadJob{}
	var handle sql.NullString
	var state string
	row := tx.QueryRowContext(ctx, q, objectID, jobKey)
	err := row.Scan(&job.ID, &job.ObjectID, &job.JobKey, &job.ChunkLength, &job.ContentLength,
		jsonScanner(&job.Metadata), &job.CreatedAt, jsonScanner(&job.OwnerRoles),
		&state, &handle, jsonScanner(&job.ChunkAux))
	if err == sql.ErrNoRows {
		return nil, herr.NotFound("upload job %q does not exist", jobKey)
	}
	if err != nil {
		return nil, herr.Internal(err, "scan upload job")
	}
	job.State = model.UploadState(state)
	job.BackendHandle = handle.String
	return job, nil
}
