package svc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
)

// handleACL implements the ACL sub-resource (§4.6): GET the collection,
// a named list, or a single entry's membership; PUT replaces a list (or
// inserts a single entry when a body-less request names one); DELETE
// clears a list or removes one entry. If-Match/If-None-Match headers are
// not evaluated on this sub-resource, and no ETag is returned for it.
func handleACL(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()
	res, err := s.Store.Resolve(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}

	target, chain, err := aclTarget(ctx, s, req, res)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}

	access := req.parsed.SubSel1
	entry := req.parsed.SubSel2

	switch req.http.Method {
	case http.MethodGet, http.MethodHead:
		if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		acl, err := s.Store.GetACLs(ctx, target)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		handleACLRead(w, req, acl, access, entry)
	case http.MethodPut:
		if err := s.Authz.Check(authz.ActionManageACLs, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		if access == "" {
			writeErr(w, req.http, herr.BadRequest("PUT requires an access-name selector"))
			return
		}
		if entry != "" {
			if err := s.Store.AddACLEntry(ctx, target, access, entry); err != nil {
				writeErr(w, req.http, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var entries []string
		body, _ := io.ReadAll(io.LimitReader(req.http.Body, 1<<20))
		if len(body) > 0 {
			if err := json.Unmarshal(body, &entries); err != nil {
				writeErr(w, req.http, herr.BadRequest("ACL body must be a JSON array of role names: %v", err))
				return
			}
		}
		if err := s.Store.SetACLList(ctx, target, access, entries); err != nil {
			writeErr(w, req.http, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.Authz.Check(authz.ActionManageACLs, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		if access == "" {
			writeErr(w, req.http, herr.BadRequest("DELETE requires an access-name selector"))
			return
		}
		var delErr error
		if entry != "" {
			delErr = s.Store.RemoveACLEntry(ctx, target, access, entry)
		} else {
			delErr = s.Store.DeleteACLList(ctx, target, access)
		}
		if delErr != nil {
			writeErr(w, req.http, delErr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, DELETE")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported on ;acl", req.http.Method))
	}
}

// aclTarget resolves which row's acls_json the request addresses
// (namespace, object, or a specific/current version) and builds the
// authorization chain rooted at that row's ancestors.
func aclTarget(ctx context.Context, s *Server, req *request, res *store.Resolution) (store.Target, authz.Chain, error) {
	// A ":<version>" qualifier on the path addresses that version's own
	// ACL; otherwise ;acl targets the namespace/object row named by the
	// path literally (unlike ;metadata, which defaults to the current
	// version when no qualifier is present).
	if res.Kind == model.KindObject && req.parsed.Version != "" {
		obj, ver, err := s.Store.GetVersionByKey(ctx, req.parsed.Segments, req.parsed.Version)
		if err != nil {
			return store.Target{}, authz.Chain{}, err
		}
		return store.Target{Table: "version", ID: ver.ID}, versionChain(res, obj, ver), nil
	}

	switch res.Kind {
	case model.KindNamespace:
		return store.Target{Table: "namespace", ID: res.Namespace.ID}, chainFromResolution(res, res.Namespace.ACLs), nil
	case model.KindObject:
		return store.Target{Table: "object", ID: res.Object.ID}, chainFromResolution(res, res.Object.ACLs), nil
	default:
		return store.Target{}, authz.Chain{}, herr.NotFound("name does not exist")
	}
}

func handleACLRead(w http.ResponseWriter, req *request, acl model.ACL, access, entry string) {
	switch {
	case access == "":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(acl)
	case entry == "":
		list := acl[access]
		if list == nil {
			list = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(list)
	default:
		found := false
		for _, e := range acl[access] {
			if e == entry {
				found = true
				break
			}
		}
		if !found {
			writeErrPlain(w, http.StatusNotFound, "entry not present in ACL")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeErrPlain(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	io.WriteString(w, msg)
}
