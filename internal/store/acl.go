package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// Target names a row whose acls_json column is being read or written:
// a namespace, an object, or a version. The three share an identical
// ACL sub-resource contract (§4.6), so one generic implementation
// serves all three instead of one per kind.
type Target struct {
	Table string // "namespace" | "object" | "version"
	ID    int64
}

func (t Target) valid() bool {
	switch t.Table {
	case "namespace", "object", "version":
		return true
	default:
		return false
	}
}

// GetACLs returns the full ACL map for target (§4.6 "GET returns the
// collection (;acl)").
func (s *Store) GetACLs(ctx context.Context, t Target) (model.ACL, error) {
	if !t.valid() {
		return nil, herr.Internal(fmt.Errorf("bad target table %q", t.Table), "internal error")
	}
	var acl model.ACL
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		q := fmt.Sprintf(`SELECT acls_json FROM %s WHERE id = $1`, t.Table)
		row := tx.QueryRowContext(ctx, q, t.ID)
		if err := row.Scan(jsonScanner(&acl)); err != nil {
			if err == sql.ErrNoRows {
				return herr.NotFound("resource not found")
			}
			return herr.Internal(err, "read acl")
		}
		if acl == nil {
			acl = model.ACL{}
		}
		return nil
	})
	return acl, err
}

// SetACLList replaces one named access list (§4.6 "PUT with JSON body
// replaces a list"). Replacing the "owner" list with an empty list is
// rejected per §4.5 "PUT on an ACL that would leave no authorized owner
// is rejected (400)" — Hatrac's interpretation is that this applies literally to the resource's own owner
// list, independent of ancestor subtree-owner grants.
func (s *Store) SetACLList(ctx context.Context, t Target, access string, entries []string) error {
	if !t.valid() {
		return herr.Internal(fmt.Errorf("bad target table %q", t.Table), "internal error")
	}
	if access == "owner" && len(entries) == 0 {
		return herr.BadRequest("cannot set an empty owner ACL")
	}
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var acl model.ACL
		q := fmt.Sprintf(`SELECT acls_json FROM %s WHERE id = $1 FOR UPDATE`, t.Table)
		if err := tx.QueryRowContext(ctx, q, t.ID).Scan(jsonScanner(&acl)); err != nil {
			if err == sql.ErrNoRows {
				return herr.NotFound("resource not found")
			}
			return herr.Internal(err, "read acl for update")
		}
		if acl == nil {
			acl = model.ACL{}
		}
		if len(entries) == 0 {
			delete(acl, access)
		} else {
			acl[access] = entries
		}
		uq := fmt.Sprintf(`UPDATE %s SET acls_json = $1 WHERE id = $2`, t.Table)
		if _, err := tx.ExecContext(ctx, uq, jsonScanner(&acl), t.ID); err != nil {
			return herr.Internal(err, "write acl")
		}
		return nil
	})
}

// AddACLEntry inserts a single entry into access's list without
// replacing the rest (§4.6 "PUT with no body on an entry inserts that
// entry").
func (s *Store) AddACLEntry(ctx context.Context, t Target, access, entry string) error {
	return s.mutateACLEntry(ctx, t, access, entry, true)
}

// RemoveACLEntry removes a single entry (§4.6 ACL DELETE on an entry).
func (s *Store) RemoveACLEntry(ctx context.Context, t Target, access, entry string) error {
	return s.mutateACLEntry(ctx, t, access, entry, false)
}

func (s *Store) mutateACLEntry(ctx context.Context, t Target, access, entry string, add bool) error {
	if !t.valid() {
		return herr.Internal(fmt.Errorf("bad target table %q", t.Table), "internal error")
	}
	return s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var acl model.ACL
		q := fmt.Sprintf(`SELECT acls_json FROM %s WHERE id = $1 FOR UPDATE`, t.Table)
		if err := tx.QueryRowContext(ctx, q, t.ID).Scan(jsonScanner(&acl)); err != nil {
			if err == sql.ErrNoRows {
				return herr.NotFound("resource not found")
			}
			return herr.Internal(err, "read acl for update")
		}
		if acl == nil {
			acl = model.ACL{}
		}
		list := acl[access]
		if add {
			found := false
			for _, e := range list {
				if e == entry {
					found = true
					break
				}
			}
			if !found {
				list = append(list, entry)
			}
			acl[access] = list
		} else {
			out := list[:0]
			for _, e := range list {
				if e != entry {
					out = append(out, e)
				}
			}
			if access == "owner" && len(out) == 0 {
				return herr.BadRequest("cannot remove the last owner entry")
			}
			if len(out) == 0 {
				delete(acl, access)
			} else {
				acl[access] = out
			}
		}
		uq := fmt.Sprintf(`UPDATE %s SET acls_json = $1 WHERE id = $2`, t.Table)
		if _, err := tx.ExecContext(ctx, uq, jsonScanner(&acl), t.ID); err != nil {
			return herr.Internal(err, "write acl")
		}
		return nil
	})
}

// DeleteACLList clears a named list entirely (§4.6 "DELETE clears a
// list").
func (s *Store) DeleteACLList(ctx context.Context, t Target, access string) error {
	if access == "owner" {
		return herr.BadRequest("cannot clear the owner ACL")
	}
	return s.SetACLList(ctx, t, access, nil)
}
