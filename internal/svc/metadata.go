package svc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
)

// handleMetadata implements the Metadata sub-resource (§4.6): GET/HEAD
// the whole collection or a single field as plain text; PUT/DELETE a
// single field, wired straight to store.SetMetadataField /
// DeleteMetadataField which enforce immutability of the digest fields.
func handleMetadata(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()
	res, err := s.Store.Resolve(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	if res.Kind != model.KindObject {
		writeErr(w, req.http, herr.NotFound("object does not exist"))
		return
	}

	_, ver, err := resolveMetadataVersion(s, req, res)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	chain := chainFromResolution(res, res.Object.ACLs)

	field := req.parsed.SubSel1

	switch req.http.Method {
	case http.MethodGet, http.MethodHead:
		if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		if field == "" {
			writeMetadataCollection(w, ver)
			return
		}
		v, ok := metadataFieldValue(ver, field)
		if !ok {
			writeErr(w, req.http, herr.NotFound("unknown metadata field %q", field))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if req.http.Method == http.MethodGet {
			io.WriteString(w, v)
		}
	case http.MethodPut:
		if err := s.Authz.Check(authz.ActionManageMeta, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		if field == "" {
			writeErr(w, req.http, herr.BadRequest("PUT requires a metadata field selector"))
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.http.Body, 1<<20))
		if err != nil {
			writeErr(w, req.http, herr.Internal(err, "read request body"))
			return
		}
		if err := s.Store.SetMetadataField(ctx, req.parsed.Segments, versionKeySelector(req), field, string(body)); err != nil {
			writeErr(w, req.http, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.Authz.Check(authz.ActionManageMeta, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		if field == "" {
			writeErr(w, req.http, herr.BadRequest("DELETE requires a metadata field selector"))
			return
		}
		if err := s.Store.DeleteMetadataField(ctx, req.parsed.Segments, versionKeySelector(req), field); err != nil {
			writeErr(w, req.http, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, DELETE")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported on ;metadata", req.http.Method))
	}
}

// versionKeySelector reports which version the metadata write targets:
// the path's ":<version>" qualifier if present, else "" for "current".
func versionKeySelector(req *request) string {
	return req.parsed.Version
}

func resolveMetadataVersion(s *Server, req *request, res *store.Resolution) (*model.Object, *model.Version, error) {
	ctx := req.http.Context()
	if req.parsed.Version != "" {
		return s.Store.GetVersionByKey(ctx, req.parsed.Segments, req.parsed.Version)
	}
	return s.Store.GetCurrentVersion(ctx, req.parsed.Segments)
}

func metadataFieldValue(ver *model.Version, field string) (string, bool) {
	switch field {
	case "content-type":
		return ver.ContentType, true
	case "content-disposition":
		return ver.ContentDisposition, true
	case "content-md5":
		return ver.ContentMD5, true
	case "content-sha256":
		return ver.ContentSHA256, true
	default:
		return "", false
	}
}

func writeMetadataCollection(w http.ResponseWriter, ver *model.Version) {
	m := map[string]string{}
	for _, f := range []string{"content-type", "content-disposition", "content-md5", "content-sha256"} {
		if v, _ := metadataFieldValue(ver, f); v != "" {
			m[f] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(m)
}
