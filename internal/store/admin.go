package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// rootACLTx reads the singleton root ACL row, returning an empty ACL if
// the row has not been bootstrapped yet (before `hatrac-admin deploy` has
// ever run).
func rootACLTx(ctx context.Context, tx *sql.Tx) (model.ACL, error) {
	var acl model.ACL
	row := tx.QueryRowContext(ctx, `SELECT acls_json FROM root_acl WHERE id = 1`)
	if err := row.Scan(jsonScanner(&acl)); err != nil {
		if err == sql.ErrNoRows {
			return model.ACL{}, nil
		}
		return nil, herr.Internal(err, "read root acl")
	}
	if acl == nil {
		acl = model.ACL{}
	}
	return acl, nil
}

// GetRootACL returns the service root's ACL (§4.5 ancestor chain origin).
func (s *Store) GetRootACL(ctx context.Context) (model.ACL, error) {
	var acl model.ACL
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		a, err := rootACLTx(ctx, tx)
		acl = a
		return err
	})
	return acl, err
}

// SetRootACL replaces the service root's ACL wholesale. Used by
// `hatrac-admin deploy` to grant the deploying role owner/subtree-owner
// on the whole tree, and by any later re-bootstrap.
func (s *Store) SetRootACL(ctx context.Context, acl model.ACL) error {
	if acl == nil {
		acl = model.ACL{}
	}
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO root_acl (id, acls_json) VALUES (1, $1)
			 ON CONFLICT (id) DO UPDATE SET acls_json = EXCLUDED.acls_json`,
			jsonScanner(&acl))
		if err != nil {
			return herr.Internal(err, "set root acl")
		}
		return nil
	})
}

// SetVersionAux overwrites a version's aux record (§3 Version, §9c
// "a migration tool ... optionally rewrites aux.url"). Used by
// `hatrac-admin migrate` after a link or transfer completes; ordinary
// HTTP handlers never call this directly since aux is not part of the
// public ;metadata contract.
func (s *Store) SetVersionAux(ctx context.Context, segments []string, versionKey string, aux model.Aux) error {
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		verID, _, err := resolveVersionForWrite(ctx, tx, segments, versionKey)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET aux_json = $1 WHERE id = $2`, jsonScanner(&aux), verID); err != nil {
			return herr.Internal(err, "update version aux")
		}
		return nil
	})
}

// ListStaleUploads is the backing query for `hatrac-admin reap-uploads`
// (§6 Admin CLI, §9 "background GC of stale upload jobs" is a Non-goal
// for the live service but remains operator tooling): every open upload
// job older than cutoff, across every object, with enough of the parent
// object's path to address it for cancellation.
func (s *Store) ListStaleUploads(ctx context.Context, cutoff time.Time) ([]*model.UploadJob, error) {
	var out []*model.UploadJob
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT u.id, u.job_key, u.chunk_length, u.content_length, u.metadata_json,
			        u.created_on, u.owner_json, u.state, u.backend_handle, u.chunk_aux_json,
			        o.id, o.path
			 FROM upload u JOIN object o ON o.id = u.object_id
			 WHERE u.state = 'open' AND u.created_on < $1
			 ORDER BY u.created_on ASC`, cutoff)
		if err != nil {
			return herr.Internal(err, "list stale uploads")
		}
		defer rows.Close()
		for rows.Next() {
			job := &model.UploadJob{}
			var handle sql.NullString
			var state string
			if err := rows.Scan(&job.ID, &job.JobKey, &job.ChunkLength, &job.ContentLength,
				jsonScanner(&job.Metadata), &job.CreatedAt, jsonScanner(&job.OwnerRoles),
				&state, &handle, jsonScanner(&job.ChunkAux),
				&job.ObjectID, &job.ObjectPath); err != nil {
				return herr.Internal(err, "scan stale upload job")
			}
			job.State = model.UploadState(state)
			job.BackendHandle = handle.String
			out = append(out, job)
		}
		return nil
	})
	return out, err
}
