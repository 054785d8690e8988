package svc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn/cos"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

const namespaceContentType = "application/x-hatrac-namespace"

func chainFromResolution(res *store.Resolution, own model.ACL) authz.Chain {
	c := authz.Chain{Own: own}
	for _, anc := range res.Ancestors {
		c.Ancestors = append(c.Ancestors, anc.ACLs)
	}
	return c
}

// handleNamespaceOrObject implements the Namespace and Object handlers
// (§4.6): disambiguated by the resolved kind and, for PUT, the
// "disambiguation rule" that an existing object path always PUTs
// content even under a namespace content-type.
func handleNamespaceOrObject(s *Server, w http.ResponseWriter, req *request) {
	if err := requireSegments(req); err != nil {
		writeErr(w, req.http, err)
		return
	}
	switch req.http.Method {
	case http.MethodGet, http.MethodHead:
		handleNamespaceOrObjectRead(s, w, req)
	case http.MethodPut:
		handleNamespaceOrObjectPut(s, w, req)
	case http.MethodDelete:
		handleDelete(s, w, req)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, DELETE")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported here", req.http.Method))
	}
}

func handleNamespaceOrObjectRead(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()
	res, err := s.Store.Resolve(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	switch res.Kind {
	case model.KindNamespace:
		chain := chainFromResolution(res, res.Namespace.ACLs)
		if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		children, err := s.Store.EnumerateChildren(ctx, req.parsed.Segments)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		writeChildList(w, req, children)
	case model.KindObject:
		chain := chainFromResolution(res, res.Object.ACLs)
		if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		serveObjectCurrent(s, w, req, res.Object)
	case model.KindDeleted:
		writeErr(w, req.http, herr.Gone("name %q was deleted", urlpath.Join("", req.parsed.Segments, "")))
	default:
		writeErr(w, req.http, herr.NotFound("name does not exist"))
	}
}

func writeChildList(w http.ResponseWriter, req *request, children []string) {
	accept := req.http.Header.Get("Accept")
	if strings.Contains(accept, "uri-list") {
		w.Header().Set("Content-Type", "text/uri-list")
		w.WriteHeader(http.StatusOK)
		for _, c := range children {
			io.WriteString(w, c+"\n")
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(children)
}

func handleNamespaceOrObjectPut(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()
	res, err := s.Store.Resolve(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}

	// Disambiguation rule (§4.6): an existing object path always PUTs
	// content even if the request carries the namespace content-type.
	ct := req.http.Header.Get("Content-Type")
	wantsNamespace := strings.HasPrefix(ct, namespaceContentType)
	if wantsNamespace && res.Kind != model.KindObject {
		putNamespace(s, w, req, res)
		return
	}
	putObject(s, w, req, res)
}

func putNamespace(s *Server, w http.ResponseWriter, req *request, res *store.Resolution) {
	ctx := req.http.Context()
	parentChain := authz.Chain{}
	for _, anc := range res.Ancestors {
		parentChain.Ancestors = append(parentChain.Ancestors, anc.ACLs)
	}
	if err := s.Authz.Check(authz.ActionCreate, parentChain, req.roles); err != nil {
		writeErr(w, req.http, err)
		return
	}
	if res.Kind == model.KindNamespace {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, "namespace already exists")
		return
	}
	parents := req.http.URL.Query().Get("parents") == "true"
	owner := model.ACL{"owner": req.roles}
	ns, err := s.Store.CreateNamespace(ctx, req.parsed.Segments, owner, parents)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	loc := urlpath.Join(req.cfg.ServicePrefix, req.parsed.Segments, "")
	w.Header().Set("Location", loc)
	w.WriteHeader(http.StatusCreated)
	_ = ns
}

func putObject(s *Server, w http.ResponseWriter, req *request, res *store.Resolution) {
	ctx := req.http.Context()
	var chain authz.Chain
	action := authz.ActionCreate
	if res.Kind == model.KindObject {
		chain = chainFromResolution(res, res.Object.ACLs)
		action = authz.ActionUpdate
	} else {
		for _, anc := range res.Ancestors {
			chain.Ancestors = append(chain.Ancestors, anc.ACLs)
		}
	}
	if err := s.Authz.Check(action, chain, req.roles); err != nil {
		writeErr(w, req.http, err)
		return
	}

	im, imStar := ifMatch(req.http)
	inmStar := ifNoneMatchStar(req.http)
	if imStar {
		// If-Match: * means "any current representation must exist";
		// evalObjectPrecondition in the store layer treats a non-nil
		// im pointer as an exact ETag to match, so resolve it here.
		if res.Kind != model.KindObject || res.Object.CurrentVersionID == nil {
			writeErr(w, req.http, herr.PreconditionFailed("If-Match: * but no current version exists"))
			return
		}
		im = nil
	}

	disp, err := validateContentDisposition(req.http.Header.Get("Content-Disposition"))
	if err != nil {
		writeErr(w, req.http, err)
		return
	}

	cl := req.http.ContentLength
	if cl > req.cfg.MaxRequestPayload {
		writeErr(w, req.http, herr.PayloadTooLarge("request body exceeds max_request_payload_size"))
		return
	}

	full := urlpath.Join("", req.parsed.Segments, "")
	h := cos.NewCksumHash()
	body := io.Reader(req.http.Body)
	if req.cfg.MaxRequestPayload > 0 {
		body = io.LimitReader(body, req.cfg.MaxRequestPayload+1)
	}
	tee := cos.TeeHash(body, h)

	versionKey := cos.GenVersionID()
	md := backend.Metadata{
		ContentType:        req.http.Header.Get("Content-Type"),
		ContentDisposition: disp,
	}
	receipt, err := s.Backend.CreateFromStream(ctx, full, versionKey, tee, cl, md)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	if receipt.Size > req.cfg.MaxRequestPayload {
		writeErr(w, req.http, herr.PayloadTooLarge("request body exceeds max_request_payload_size"))
		return
	}

	declaredMD5 := req.http.Header.Get("Content-MD5")
	if declaredMD5 != "" && declaredMD5 != h.MD5Base64() {
		writeErr(w, req.http, herr.Conflict("Content-MD5 %q does not match computed digest %q", declaredMD5, h.MD5Base64()))
		return
	}
	declaredSHA256 := req.http.Header.Get("Content-SHA256")
	if declaredSHA256 != "" && declaredSHA256 != h.SHA256Base64() {
		writeErr(w, req.http, herr.Conflict("Content-SHA256 %q does not match computed digest %q", declaredSHA256, h.SHA256Base64()))
		return
	}

	attrs := store.VersionAttrs{
		Size:               receipt.Size,
		ContentType:        req.http.Header.Get("Content-Type"),
		ContentMD5:         h.MD5Base64(),
		ContentSHA256:      h.SHA256Base64(),
		ContentDisposition: disp,
	}
	aux := model.Aux{}
	if v, ok := receipt.Aux["url"]; ok {
		aux.URL = v
	}
	if v, ok := receipt.Aux["version"]; ok {
		aux.Version = v
	}

	_, ver, err := s.Store.CreateVersion(ctx, req.parsed.Segments, versionKey, attrs, aux, im, inmStar)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	loc := urlpath.Join(req.cfg.ServicePrefix, req.parsed.Segments, ver.VersionKey)
	w.Header().Set("Location", loc)
	w.Header().Set("ETag", store.ETag(ver.VersionKey))
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, loc)
}

// validateContentDisposition enforces §4.6: "must be filename*=UTF-8''
// with percent-encoded basename, no / or \".
func validateContentDisposition(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	const marker = "filename*=UTF-8''"
	if !strings.HasPrefix(v, marker) {
		return "", herr.BadRequest("Content-Disposition must use filename*=UTF-8''<name>")
	}
	enc := v[len(marker):]
	name, err := urlpathUnescape(enc)
	if err != nil {
		return "", herr.BadRequest("Content-Disposition filename is not valid percent-encoding: %v", err)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", herr.BadRequest("Content-Disposition filename must not contain path separators")
	}
	return name, nil
}

func handleDelete(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()
	res, err := s.Store.Resolve(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	var chain authz.Chain
	switch res.Kind {
	case model.KindNamespace:
		chain = chainFromResolution(res, res.Namespace.ACLs)
	case model.KindObject:
		chain = chainFromResolution(res, res.Object.ACLs)
	default:
		writeErr(w, req.http, herr.NotFound("name does not exist"))
		return
	}
	if err := s.Authz.Check(authz.ActionDelete, chain, req.roles); err != nil {
		writeErr(w, req.http, err)
		return
	}
	deleted, err := s.Store.DeleteName(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	for _, ver := range deleted {
		purgeVersion(ctx, s, req.parsed.Segments, ver)
	}
	w.WriteHeader(http.StatusNoContent)
}

func serveObjectCurrent(s *Server, w http.ResponseWriter, req *request, obj *model.Object) {
	ctx := req.http.Context()
	_, ver, err := s.Store.GetCurrentVersion(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	serveVersion(s, w, req, ver)
}

// urlpathUnescape decodes Content-Disposition's filename* percent
// encoding (§4.6), the same single-octet scheme as the URL grammar's
// segment encoding (§4.1).
func urlpathUnescape(s string) (string, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if i+2 >= len(s) {
				return "", herr.BadRequest("truncated percent-encoding")
			}
			n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", err
			}
			out = append(out, byte(n))
			i += 2
		} else {
			out = append(out, s[i])
		}
	}
	return string(out), nil
}
