package store

import (
	"context"
	"database/sql"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

// metadataFields are the only fields addressable via ;metadata/<field>
// (§4.6 Metadata sub-resource handler).
var metadataFields = map[string]bool{
	"content-type":        true,
	"content-disposition": true,
	"content-md5":         true,
	"content-sha256":      true,
}

var immutableMetadataFields = map[string]bool{
	"content-md5":    true,
	"content-sha256": true,
}

// SetMetadataField implements the Metadata sub-resource PUT (§4.6):
// content-type and content-disposition are always rewritable;
// content-md5/content-sha256 are immutable once set (§3 invariant 5) —
// a conflicting rewrite is rejected with 409, a repeat of the same value
// is accepted (idempotent).
func (s *Store) SetMetadataField(ctx context.Context, segments []string, versionKey string, field, value string) error {
	if !metadataFields[field] {
		return herr.BadRequest("unknown metadata field %q", field)
	}
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		verID, currentFields, err := resolveVersionForWrite(ctx, tx, segments, versionKey)
		if err != nil {
			return err
		}
		if immutableMetadataFields[field] {
			current := currentFields[field]
			if current != "" && current != value {
				return herr.Conflict("%s is immutable once set (was %q, got %q)", field, current, value)
			}
		}
		col := metadataColumn(field)
		q := `UPDATE version SET ` + col + ` = $1 WHERE id = $2`
		if _, err := tx.ExecContext(ctx, q, value, verID); err != nil {
			return herr.Internal(err, "update metadata field")
		}
		return nil
	})
}

// DeleteMetadataField clears a mutable field (§4.6 "DELETE removes a
// field"); immutable fields cannot be cleared once set.
func (s *Store) DeleteMetadataField(ctx context.Context, segments []string, versionKey string, field string) error {
	if !metadataFields[field] {
		return herr.BadRequest("unknown metadata field %q", field)
	}
	if immutableMetadataFields[field] {
		return herr.Conflict("%s is immutable and cannot be removed", field)
	}
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		verID, _, err := resolveVersionForWrite(ctx, tx, segments, versionKey)
		if err != nil {
			return err
		}
		col := metadataColumn(field)
		q := `UPDATE version SET ` + col + ` = NULL WHERE id = $1`
		if _, err := tx.ExecContext(ctx, q, verID); err != nil {
			return herr.Internal(err, "clear metadata field")
		}
		return nil
	})
}

func metadataColumn(field string) string {
	switch field {
	case "content-type":
		return "content_type"
	case "content-disposition":
		return "content_disposition"
	case "content-md5":
		return "content_md5"
	case "content-sha256":
		return "content_sha256"
	}
	return ""
}

// resolveVersionForWrite resolves the target version id (current, if
// versionKey is empty), locking the row for the duration of the
// transaction, and returns its current field values keyed the same way
// as the ;metadata/<field> URL token so immutability checks can look
// up the field they care about directly.
func resolveVersionForWrite(ctx context.Context, tx *sql.Tx, segments []string, versionKey string) (int64, map[string]string, error) {
	res, err := resolveTx(ctx, tx, segments)
	if err != nil {
		return 0, nil, err
	}
	if res.Object == nil {
		return 0, nil, herr.NotFound("object %q does not exist", segPath(segments))
	}

	var id int64
	var md5, sha256, ctype, disp sql.NullString
	if versionKey == "" {
		if res.Object.CurrentVersionID == nil {
			return 0, nil, herr.Conflict("object has no current version")
		}
		id = *res.Object.CurrentVersionID
		row := tx.QueryRowContext(ctx,
			`SELECT content_md5, content_sha256, content_type, content_disposition FROM version WHERE id = $1 FOR UPDATE`, id)
		err = row.Scan(&md5, &sha256, &ctype, &disp)
	} else {
		row := tx.QueryRowContext(ctx,
			`SELECT id, content_md5, content_sha256, content_type, content_disposition FROM version
			 WHERE object_id = $1 AND version_key = $2 FOR UPDATE`, res.Object.ID, versionKey)
		err = row.Scan(&id, &md5, &sha256, &ctype, &disp)
	}
	if err == sql.ErrNoRows {
		return 0, nil, herr.NotFound("version does not exist")
	}
	if err != nil {
		return 0, nil, herr.Internal(err, "resolve version for metadata write")
	}

	fields := map[string]string{
		"content-md5":         md5.String,
		"content-sha256":      sha256.String,
		"content-type":        ctype.String,
		"content-disposition": disp.String,
	}
	return id, fields, nil
}
