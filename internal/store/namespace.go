package store

import (
	"context"
	"database/sql"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// CreateNamespace implements the PUT-namespace operation (§4.6). When
// parents is true, missing ancestors are auto-created as namespaces
// (§4.6 "optional parents=true auto-creates missing ancestors"); when
// false, every ancestor must already be a live namespace.
func (s *Store) CreateNamespace(ctx context.Context, segments []string, acls model.ACL, parents bool) (*model.Namespace, error) {
	var out *model.Namespace
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		parentID, err := ensureAncestors(ctx, tx, segments[:len(segments)-1], parents)
		if err != nil {
			return err
		}
		full := segPath(segments)
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		switch res.Kind {
		case model.KindNamespace:
			return herr.Conflict("namespace %q already exists", full)
		case model.KindObject:
			return herr.Conflict("name %q is already bound as an object", full)
		case model.KindDeleted:
			// Monotonic non-reuse (§3 invariant 1): Hatrac's chosen policy
			// is that restoration of a deleted name is NOT supported
			// (documented in DESIGN.md, §9 Open Question a).
			return herr.Conflict("name %q was deleted and cannot be reused", full)
		}
		if acls == nil {
			acls = model.ACL{}
		}
		ns := &model.Namespace{ParentID: parentID, Path: full, ACLs: acls}
		row := tx.QueryRowContext(ctx,
			`INSERT INTO namespace (parent_id, path, acls_json) VALUES ($1, $2, $3)
			 RETURNING id, created_at`, parentID, full, jsonScanner(&ns.ACLs))
		if err := row.Scan(&ns.ID, &ns.CreatedAt); err != nil {
			return herr.Internal(err, "insert namespace")
		}
		out = ns
		return nil
	})
	return out, err
}

// ensureAncestors resolves (and, if parents is set, creates) every
// ancestor namespace of segments, returning the immediate parent's id
// (0 meaning root).
func ensureAncestors(ctx context.Context, tx *sql.Tx, ancestorSegs []string, parents bool) (int64, error) {
	var parentID int64
	for i := range ancestorSegs {
		seg := ancestorSegs[:i+1]
		full := segPath(seg)
		var id int64
		var deletedAt sql.NullTime
		row := tx.QueryRowContext(ctx, `SELECT id, deleted_at FROM namespace WHERE path = $1`, full)
		err := row.Scan(&id, &deletedAt)
		switch {
		case err == nil:
			if deletedAt.Valid {
				return 0, herr.Conflict("ancestor namespace %q was deleted and cannot be reused", full)
			}
			parentID = id
			continue
		case err != sql.ErrNoRows:
			return 0, herr.Internal(err, "resolve ancestor namespace")
		}
		// undefined
		var objCount int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM object WHERE path = $1`, full).Scan(&objCount); err != nil {
			return 0, herr.Internal(err, "check ancestor collision")
		}
		if objCount > 0 {
			return 0, herr.Conflict("ancestor %q is bound as an object", full)
		}
		if !parents {
			return 0, herr.NotFound("ancestor namespace %q does not exist", full)
		}
		row = tx.QueryRowContext(ctx,
			`INSERT INTO namespace (parent_id, path, acls_json) VALUES ($1, $2, '{}') RETURNING id`,
			nullableParent(parentID), full)
		if err := row.Scan(&id); err != nil {
			return 0, herr.Internal(err, "auto-create ancestor namespace")
		}
		parentID = id
	}
	return parentID, nil
}

func nullableParent(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

// EnumerateChildren lists the direct child namespaces and objects of a
// namespace (§4.6 "GET lists direct children"), live rows only.
func (s *Store) EnumerateChildren(ctx context.Context, segments []string) ([]string, error) {
	full := segPath(segments)
	if len(segments) == 0 {
		full = ""
	}
	var out []string
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		nsID, err := namespaceIDForChildren(ctx, tx, segments)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT path FROM namespace WHERE parent_id = $1 AND deleted_at IS NULL
			 UNION ALL
			 SELECT path FROM object WHERE namespace_id = $1 AND deleted_at IS NULL`, nsID)
		if err != nil {
			return herr.Internal(err, "enumerate children")
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return herr.Internal(err, "scan child")
			}
			out = append(out, p)
		}
		_ = full
		return nil
	})
	return out, err
}

func namespaceIDForChildren(ctx context.Context, tx *sql.Tx, segments []string) (interface{}, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	full := segPath(segments)
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM namespace WHERE path = $1 AND deleted_at IS NULL`, full).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, herr.NotFound("namespace %q does not exist", full)
	}
	if err != nil {
		return nil, herr.Internal(err, "resolve namespace for enumeration")
	}
	return id, nil
}

// DeleteName implements DELETE for both namespaces and objects (§3
// Lifecycles, §4.6). Namespaces must be empty unless bulk-delete is
// enabled (not implemented — spec.md recommends against it). Deleting an
// object cascades to its versions and implicitly cancels its open
// upload jobs (§4.4 "Implicit cancel"). Returns the Versions that were
// live on a deleted Object, so the caller can reclaim their backing
// storage once the transaction that tombstoned them has committed (§3
// invariant 4, §4.3); a deleted Namespace never carries Versions of its
// own.
func (s *Store) DeleteName(ctx context.Context, segments []string) ([]*model.Version, error) {
	var deleted []*model.Version
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		switch res.Kind {
		case model.KindUndefined, model.KindDeleted:
			return herr.NotFound("name %q does not exist", segPath(segments))
		case model.KindNamespace:
			return deleteNamespaceTx(ctx, tx, res.Namespace)
		case model.KindObject:
			versions, err := deleteObjectTx(ctx, tx, res.Object)
			if err != nil {
				return err
			}
			deleted = versions
			return nil
		}
		return nil
	})
	return deleted, err
}

func deleteNamespaceTx(ctx context.Context, tx *sql.Tx, ns *model.Namespace) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM namespace WHERE parent_id = $1 AND deleted_at IS NULL)
		       + (SELECT count(*) FROM object WHERE namespace_id = $1 AND deleted_at IS NULL)`,
		ns.ID).Scan(&count)
	if err != nil {
		return herr.Internal(err, "check namespace emptiness")
	}
	if count > 0 {
		return herr.Conflict("namespace %q is not empty", ns.Path)
	}
	_, err = tx.ExecContext(ctx, `UPDATE namespace SET deleted_at = now() WHERE id = $1`, ns.ID)
	if err != nil {
		return herr.Internal(err, "delete namespace")
	}
	return nil
}

func deleteObjectTx(ctx context.Context, tx *sql.Tx, obj *model.Object) ([]*model.Version, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, object_id, version_key, size, content_type, content_md5, content_sha256,
		        content_disposition, created_at, deleted_at, acls_json, aux_json
		 FROM version WHERE object_id = $1 AND deleted_at IS NULL`, obj.ID)
	if err != nil {
		return nil, herr.Internal(err, "enumerate live versions for delete")
	}
	var live []*model.Version
	for rows.Next() {
		var v model.Version
		var md5, sha256, disp sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&v.ID, &v.ObjectID, &v.VersionKey, &v.Size, &v.ContentType, &md5, &sha256, &disp,
			&v.CreatedAt, &deletedAt, jsonScanner(&v.ACLs), jsonScanner(&v.Aux)); err != nil {
			rows.Close()
			return nil, herr.Internal(err, "scan version for delete")
		}
		v.ContentMD5, v.ContentSHA256, v.ContentDisposition = md5.String, sha256.String, disp.String
		live = append(live, &v)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `UPDATE version SET deleted_at = now() WHERE object_id = $1 AND deleted_at IS NULL`, obj.ID); err != nil {
		return nil, herr.Internal(err, "delete versions")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE upload SET state = 'cancelled' WHERE object_id = $1 AND state = 'open'`, obj.ID); err != nil {
		return nil, herr.Internal(err, "implicit-cancel open uploads")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE object SET deleted_at = now(), current_version_id = NULL WHERE id = $1`, obj.ID); err != nil {
		return nil, herr.Internal(err, "delete object")
	}
	return live, nil
}
