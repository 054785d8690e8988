package store

import (
	"context"
	"database/sql"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// VersionAttrs are the declared, backend-confirmed attributes of a new
// Version (§3 Version), excluding the opaque id and ACL/Aux which are
// handled separately.
type VersionAttrs struct {
	Size               int64
	ContentType        string
	ContentMD5         string
	ContentSHA256      string
	ContentDisposition string
}

// CreateVersion implements create_version (§4.2) plus the Object-level
// bookkeeping PUT-on-object requires (§4.6 Object handler): creating the
// Object row on first write, copying ACL defaults from the previous
// current Version, and advancing the current-version pointer.
//
// versionKey and the backend write it addresses must already have
// happened by the time this is called (§5/§9: backend I/O is a
// pre-transaction reservation so that DB-transaction retry never
// re-executes a non-idempotent backend call).
func (s *Store) CreateVersion(ctx context.Context, segments []string, versionKey string, attrs VersionAttrs, aux model.Aux, ifMatch *string, ifNoneMatchStar bool) (*model.Object, *model.Version, error) {
	var (
		outObj *model.Object
		outVer *model.Version
	)
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		switch res.Kind {
		case model.KindNamespace:
			return herr.Conflict("name %q is already bound as a namespace", segPath(segments))
		case model.KindDeleted:
			return herr.Conflict("name %q was deleted and cannot be reused", segPath(segments))
		}

		var obj *model.Object
		var prevCurrent *model.Version
		if res.Kind == model.KindObject {
			obj = res.Object
			if err := evalObjectPrecondition(ctx, tx, obj, ifMatch, ifNoneMatchStar); err != nil {
				return err
			}
			if obj.CurrentVersionID != nil {
				prevCurrent, err = getVersionByIDTx(ctx, tx, *obj.CurrentVersionID)
				if err != nil {
					return err
				}
			}
		} else {
			if ifMatch != nil {
				return herr.PreconditionFailed("If-Match on nonexistent object")
			}
			parentID, err := resolveParentNamespaceID(ctx, tx, segments)
			if err != nil {
				return err
			}
			full := segPath(segments)
			obj = &model.Object{NamespaceID: parentID, Path: full, ACLs: model.ACL{}}
			row := tx.QueryRowContext(ctx,
				`INSERT INTO object (namespace_id, path, acls_json) VALUES ($1, $2, $3) RETURNING id, created_at`,
				parentID, full, jsonScanner(&obj.ACLs))
			if err := row.Scan(&obj.ID, &obj.CreatedAt); err != nil {
				return herr.Internal(err, "insert object")
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
			return herr.Internal(err, "insert version")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE object SET current_version_id = $1 WHERE id = $2`, ver.ID, obj.ID); err != nil {
			return herr.Internal(err, "advance current version")
		}
		v := ver.ID
		obj.CurrentVersionID = &v
		outObj, outVer = obj, ver
		return nil
	})
	return outObj, outVer, err
}

func evalObjectPrecondition(ctx context.Context, tx *sql.Tx, obj *model.Object, ifMatch *string, ifNoneMatchStar bool) error {
	if ifNoneMatchStar && obj.CurrentVersionID != nil {
		return herr.PreconditionFailed("If-None-Match: * but object already exists")
	}
	if ifMatch == nil {
		return nil
	}
	if obj.CurrentVersionID == nil {
		return herr.PreconditionFailed("If-Match on object with no current version")
	}
	cur, err := getVersionByIDTx(ctx, tx, *obj.CurrentVersionID)
	if err != nil {
		return err
	}
	if ETag(cur.VersionKey) != *ifMatch {
		return herr.PreconditionFailed("If-Match %q does not match current ETag", *ifMatch)
	}
	return nil
}

func resolveParentNamespaceID(ctx context.Context, tx *sql.Tx, segments []string) (int64, error) {
	if len(segments) < 2 {
		return 0, herr.BadRequest("object path must have a parent namespace")
	}
	parentSegs := segments[:len(segments)-1]
	full := segPath(parentSegs)
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM namespace WHERE path = $1 AND deleted_at IS NULL`, full).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, herr.NotFound("parent namespace %q does not exist", full)
	}
	if err != nil {
		return 0, herr.Internal(err, "resolve parent namespace")
	}
	return id, nil
}

func getVersionByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Version, error) {
	var v model.Version
	var md5, sha256, disp sql.NullString
	var deletedAt sql.NullTime
	row := tx.QueryRowContext(ctx,
		`SELECT id, object_id, version_key, size, content_type, content_md5, content_sha256,
		        content_disposition, created_at, deleted_at, acls_json, aux_json
		 FROM version WHERE id = $1`, id)
	err := row.Scan(&v.ID, &v.ObjectID, &v.VersionKey, &v.Size, &v.ContentType, &md5, &sha256, &disp,
		&v.CreatedAt, &deletedAt, jsonScanner(&v.ACLs), jsonScanner(&v.Aux))
	if err == sql.ErrNoRows {
		return nil, herr.NotFound("version id %d does not exist", id)
	}
	if err != nil {
		return nil, herr.Internal(err, "scan version")
	}
	v.ContentMD5, v.ContentSHA256, v.ContentDisposition = md5.String, sha256.String, disp.String
	if deletedAt.Valid {
		t := deletedAt.Time
		v.DeletedAt = &t
	}
	return &v, nil
}

// GetVersionByKey looks up a specific Version of the Object at segments
// by its opaque version-id (§4.6 Version handler).
func (s *Store) GetVersionByKey(ctx context.Context, segments []string, versionKey string) (*model.Object, *model.Version, error) {
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
		var v model.Version
		var md5, sha256, disp sql.NullString
		var deletedAt sql.NullTime
		row := tx.QueryRowContext(ctx,
			`SELECT id, object_id, version_key, size, content_type, content_md5, content_sha256,
			        content_disposition, created_at, deleted_at, acls_json, aux_json
			 FROM version WHERE object_id = $1 AND version_key = $2`, res.Object.ID, versionKey)
		err = row.Scan(&v.ID, &v.ObjectID, &v.VersionKey, &v.Size, &v.ContentType, &md5, &sha256, &disp,
			&v.CreatedAt, &deletedAt, jsonScanner(&v.ACLs), jsonScanner(&v.Aux))
		if err == sql.ErrNoRows {
			return herr.NotFound("version %q does not exist", versionKey)
		}
		if err != nil {
			return herr.Internal(err, "scan version")
		}
		v.ContentMD5, v.ContentSHA256, v.ContentDisposition = md5.String, sha256.String, disp.String
		if deletedAt.Valid {
			t := deletedAt.Time
			v.DeletedAt = &t
		}
		outObj, outVer = res.Object, &v
		return nil
	})
	return outObj, outVer, err
}

// GetCurrentVersion resolves the Object's current live Version, or a
// KindConflict-flavored error if the Object exists but has no current
// version (§3 invariant 6).
func (s *Store) GetCurrentVersion(ctx context.Context, segments []string) (*model.Object, *model.Version, error) {
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
		outObj = res.Object
		if res.Object.CurrentVersionID == nil {
			return herr.Conflict("object %q has no current version", segPath(segments))
		}
		v, err := getVersionByIDTx(ctx, tx, *res.Object.CurrentVersionID)
		if err != nil {
			return err
		}
		outVer = v
		return nil
	})
	return outObj, outVer, err
}

// EnumerateVersions implements enumerate_versions (§4.2), oldest first.
func (s *Store) EnumerateVersions(ctx context.Context, segments []string) ([]*model.Version, error) {
	var out []*model.Version
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, object_id, version_key, size, content_type, content_md5, content_sha256,
			        content_disposition, created_at, deleted_at, acls_json, aux_json
			 FROM version WHERE object_id = $1 ORDER BY created_at ASC`, res.Object.ID)
		if err != nil {
			return herr.Internal(err, "enumerate versions")
		}
		defer rows.Close()
		for rows.Next() {
			var v model.Version
			var md5, sha256, disp sql.NullString
			var deletedAt sql.NullTime
			if err := rows.Scan(&v.ID, &v.ObjectID, &v.VersionKey, &v.Size, &v.ContentType, &md5, &sha256, &disp,
				&v.CreatedAt, &deletedAt, jsonScanner(&v.ACLs), jsonScanner(&v.Aux)); err != nil {
				return herr.Internal(err, "scan version")
			}
			v.ContentMD5, v.ContentSHA256, v.ContentDisposition = md5.String, sha256.String, disp.String
			if deletedAt.Valid {
				t := deletedAt.Time
				v.DeletedAt = &t
			}
			out = append(out, &v)
		}
		return nil
	})
	return out, err
}

// DeleteVersion removes a single Version (§4.6 Version handler DELETE).
// If it was the Object's current version, the most recently created
// remaining live Version becomes current; if none remain, the Object's
// current pointer is cleared (§3 invariant 6, §8 scenario). Returns the
// now-tombstoned Version so the caller can reclaim its backing storage
// once the transaction commits (§3 invariant 4, §4.3).
func (s *Store) DeleteVersion(ctx context.Context, segments []string, versionKey string) (*model.Version, error) {
	var deleted *model.Version
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		if res.Kind != model.KindObject {
			return herr.NotFound("object %q does not exist", segPath(segments))
		}
		var v model.Version
		var md5, sha256, disp sql.NullString
		row := tx.QueryRowContext(ctx,
			`SELECT id, object_id, version_key, size, content_type, content_md5, content_sha256,
			        content_disposition, created_at, acls_json, aux_json
			 FROM version WHERE object_id = $1 AND version_key = $2 AND deleted_at IS NULL`,
			res.Object.ID, versionKey)
		err = row.Scan(&v.ID, &v.ObjectID, &v.VersionKey, &v.Size, &v.ContentType, &md5, &sha256, &disp,
			&v.CreatedAt, jsonScanner(&v.ACLs), jsonScanner(&v.Aux))
		if err == sql.ErrNoRows {
			return herr.NotFound("version %q does not exist", versionKey)
		}
		if err != nil {
			return herr.Internal(err, "resolve version for delete")
		}
		v.ContentMD5, v.ContentSHA256, v.ContentDisposition = md5.String, sha256.String, disp.String
		if _, err := tx.ExecContext(ctx, `UPDATE version SET deleted_at = now() WHERE id = $1`, v.ID); err != nil {
			return herr.Internal(err, "delete version")
		}
		wasCurrent := res.Object.CurrentVersionID != nil && *res.Object.CurrentVersionID == v.ID
		if wasCurrent {
			var nextID sql.NullInt64
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM version WHERE object_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 1`,
				res.Object.ID).Scan(&nextID)
			if err != nil && err != sql.ErrNoRows {
				return herr.Internal(err, "find next current version")
			}
			if nextID.Valid {
				_, err = tx.ExecContext(ctx, `UPDATE object SET current_version_id = $1 WHERE id = $2`, nextID.Int64, res.Object.ID)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE object SET current_version_id = NULL WHERE id = $1`, res.Object.ID)
			}
			if err != nil {
				return herr.Internal(err, "update current version after delete")
			}
		}
		deleted = &v
		return nil
	})
	return deleted, err
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
