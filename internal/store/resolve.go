package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// Resolution is what resolve(path) (§4.2) returns: the binding kind, the
// matched row (if any), and the chain of live ancestor namespaces from
// root to immediate parent — needed by the authorization engine for
// subtree-* and owner inheritance (§4.5).
type Resolution struct {
	Kind      model.Kind
	Namespace *model.Namespace
	Object    *model.Object
	Ancestors []*model.Namespace // root-to-parent, live only
}

// segPath joins segments[:n] into a canonical full path, e.g. ["a","b"] -> "/a/b".
func segPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

func ancestorPaths(segments []string) []string {
	if len(segments) == 0 {
		return nil
	}
	out := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		out = append(out, segPath(segments[:i]))
	}
	return out
}

// Resolve walks segments from root (§4.2 "Name resolution walks segments
// from root; each segment lookup uses the parent's identifier to enforce
// tree integrity"). The root (empty segments) always resolves as an
// (undefined) namespace-kind name representing the service root.
func (s *Store) Resolve(ctx context.Context, segments []string) (*Resolution, error) {
	var res *Resolution
	err := s.withRetryTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := resolveTx(ctx, tx, segments)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

func resolveTx(ctx context.Context, tx *sql.Tx, segments []string) (*Resolution, error) {
	res := &Resolution{Kind: model.KindUndefined}
	if len(segments) == 0 {
		res.Kind = model.KindNamespace
		return res, nil
	}

	// The root namespace has no row of its own (no path can name it), but
	// its ACL still participates in inheritance (§4.5 "subtree-owner at
	// any ancestor") for every top-level name, so it is always the first
	// entry of the ancestor chain.
	rootACL, err := rootACLTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	res.Ancestors = append(res.Ancestors, &model.Namespace{Path: "", ACLs: rootACL})

	anc := ancestorPaths(segments)
	if len(anc) > 0 {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, parent_id, path, created_at, deleted_at, acls_json
			 FROM namespace WHERE path = ANY($1) AND deleted_at IS NULL`,
			pq.Array(anc))
		if err != nil {
			return nil, herr.Internal(err, "resolve ancestors")
		}
		byPath := map[string]*model.Namespace{}
		for rows.Next() {
			ns, err := scanNamespace(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			byPath[ns.Path] = ns
		}
		rows.Close()
		for _, p := range anc {
			ns, ok := byPath[p]
			if !ok {
				// an ancestor is undefined or deleted: the full name cannot
				// be defined either (tree integrity, §4.2).
				return res, nil
			}
			res.Ancestors = append(res.Ancestors, ns)
		}
	}

	full := segPath(segments)

	var ns model.Namespace
	var deletedAt sql.NullTime
	row := tx.QueryRowContext(ctx,
		`SELECT id, parent_id, path, created_at, deleted_at, acls_json FROM namespace WHERE path = $1`, full)
	err = row.Scan(&ns.ID, &ns.ParentID, &ns.Path, &ns.CreatedAt, &deletedAt, jsonScanner(&ns.ACLs))
	switch {
	case err == nil:
		if deletedAt.Valid {
			t := deletedAt.Time
			ns.DeletedAt = &t
			res.Kind = model.KindDeleted
		} else {
			res.Kind = model.KindNamespace
		}
		res.Namespace = &ns
		return res, nil
	case err != sql.ErrNoRows:
		return nil, herr.Internal(err, "resolve namespace")
	}

	var obj model.Object
	var objDeletedAt sql.NullTime
	var curVer sql.NullInt64
	row = tx.QueryRowContext(ctx,
		`SELECT id, namespace_id, path, current_version_id, created_at, deleted_at, acls_json FROM object WHERE path = $1`, full)
	err = row.Scan(&obj.ID, &obj.NamespaceID, &obj.Path, &curVer, &obj.CreatedAt, &objDeletedAt, jsonScanner(&obj.ACLs))
	switch {
	case err == nil:
		if curVer.Valid {
			v := curVer.Int64
			obj.CurrentVersionID = &v
		}
		if objDeletedAt.Valid {
			t := objDeletedAt.Time
			obj.DeletedAt = &t
			res.Kind = model.KindDeleted
		} else {
			res.Kind = model.KindObject
		}
		res.Object = &obj
		return res, nil
	case err != sql.ErrNoRows:
		return nil, herr.Internal(err, "resolve object")
	}

	return res, nil
}

func scanNamespace(rows *sql.Rows) (*model.Namespace, error) {
	var ns model.Namespace
	var deletedAt sql.NullTime
	if err := rows.Scan(&ns.ID, &ns.ParentID, &ns.Path, &ns.CreatedAt, &deletedAt, jsonScanner(&ns.ACLs)); err != nil {
		return nil, herr.Internal(err, "scan namespace")
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		ns.DeletedAt = &t
	}
	return &ns, nil
}
