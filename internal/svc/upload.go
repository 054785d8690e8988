package svc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
	"github.com/informatics-isi-edu/hatrac/internal/upload"
	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

// uploadCreateRequest is the POST ;upload body (§4.4 "POST to create"),
// accepting both the canonical field names and the source's legacy
// aliases (§9c), canonicalized via upload.CanonicalizeChunking.
type uploadCreateRequest struct {
	ChunkLength        int64  `json:"chunk-length,omitempty"`
	ContentLength      int64  `json:"content-length,omitempty"`
	ContentType        string `json:"content-type,omitempty"`
	ContentMD5         string `json:"content-md5,omitempty"`
	ContentSHA256      string `json:"content-sha256,omitempty"`
	ContentDisposition string `json:"content-disposition,omitempty"`
	upload.LegacyAliases
}

// handleUpload implements the Upload sub-resource (§4.4, §4.6): POST
// with no job-id creates a job or, with a job-id and ";finalize"-less
// POST body, is routed by whether SubSel1 names a job; PUT to a
// job/chunk-number writes a chunk; POST to a bare job-id finalizes;
// DELETE cancels; GET lists open jobs under the target name.
func handleUpload(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()
	jobKey := req.parsed.SubSel1
	chunkSel := req.parsed.SubSel2

	if jobKey == "" {
		handleUploadCollection(s, w, req)
		return
	}

	res, err := s.Store.Resolve(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}

	chain := parentChainForUpload(res)

	switch req.http.Method {
	case http.MethodPut:
		if chunkSel == "" {
			writeErr(w, req.http, herr.BadRequest("PUT requires a chunk position"))
			return
		}
		if err := s.Authz.Check(authz.ActionUpdate, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		position, perr := strconv.ParseInt(chunkSel, 10, 64)
		if perr != nil {
			writeErr(w, req.http, herr.BadRequest("chunk position %q is not an integer", chunkSel))
			return
		}
		if err := s.Upload.PutChunk(ctx, req.parsed.Segments, jobKey, position, req.http.Body); err != nil {
			writeErr(w, req.http, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		if err := s.Authz.Check(authz.ActionUpdate, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		_, ver, err := s.Upload.Finalize(ctx, req.parsed.Segments, jobKey)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		loc := urlpath.Join(req.cfg.ServicePrefix, req.parsed.Segments, ver.VersionKey)
		w.Header().Set("Location", loc)
		w.Header().Set("ETag", store.ETag(ver.VersionKey))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, loc)
	case http.MethodDelete:
		if err := s.Authz.Check(authz.ActionUpdate, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		if err := s.Upload.Cancel(ctx, req.parsed.Segments, jobKey); err != nil {
			writeErr(w, req.http, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet, http.MethodHead:
		if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		job, err := s.Store.GetUploadJob(ctx, req.parsed.Segments, jobKey)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(uploadJobView(job))
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, POST, DELETE")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported on a job", req.http.Method))
	}
}

// handleUploadCollection implements POST ;upload (create a job) and GET
// ;upload (list open jobs under this name), per §4.4.
func handleUploadCollection(s *Server, w http.ResponseWriter, req *request) {
	ctx := req.http.Context()

	switch req.http.Method {
	case http.MethodGet, http.MethodHead:
		res, err := s.Store.Resolve(ctx, req.parsed.Segments)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		if err := s.Authz.Check(authz.ActionRead, parentChainForUpload(res), req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		jobs, err := s.Store.ListOpenUploads(ctx, req.parsed.Segments)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		accept := req.http.Header.Get("Accept")
		if strings.Contains(accept, "uri-list") {
			w.Header().Set("Content-Type", "text/uri-list")
			w.WriteHeader(http.StatusOK)
			for _, j := range jobs {
				io.WriteString(w, urlpath.JoinSub(urlpath.Join(req.cfg.ServicePrefix, req.parsed.Segments, ""), urlpath.SubUpload, j.JobKey, "")+"\n")
			}
			return
		}
		views := make([]uploadJobJSON, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, uploadJobView(j))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(views)
	case http.MethodPost:
		res, err := s.Store.Resolve(ctx, req.parsed.Segments)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		action := authz.ActionUpdate
		chain := parentChainForUpload(res)
		if res.Kind != model.KindObject {
			action = authz.ActionCreate
		}
		if err := s.Authz.Check(action, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}

		var body uploadCreateRequest
		if req.http.ContentLength != 0 {
			if err := json.NewDecoder(req.http.Body).Decode(&body); err != nil {
				writeErr(w, req.http, herr.BadRequest("invalid upload creation body: %v", err))
				return
			}
		}
		chunkLength, contentLength := upload.CanonicalizeChunking(body.ChunkLength, body.ContentLength, body.LegacyAliases)
		md := model.UploadMetadata{
			ContentType:        body.ContentType,
			ContentMD5:         firstNonEmpty(body.ContentMD5, body.LegacyAliases.ContentMD5),
			ContentSHA256:      body.ContentSHA256,
			ContentDisposition: body.ContentDisposition,
		}
		job, err := s.Upload.CreateJob(ctx, req.parsed.Segments, chunkLength, contentLength, md, req.roles)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		loc := urlpath.JoinSub(urlpath.Join(req.cfg.ServicePrefix, req.parsed.Segments, ""), urlpath.SubUpload, job.JobKey, "")
		w.Header().Set("Location", loc)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, loc)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported on ;upload", req.http.Method))
	}
}

// parentChainForUpload builds the authorization chain an upload job
// acts under: the target object's own ACL when it already exists (a job
// against an existing object behaves like an Update), otherwise just the
// ancestor namespaces' ACLs (a job against a not-yet-created object
// behaves like a Create), mirroring putObject's action selection.
func parentChainForUpload(res *store.Resolution) authz.Chain {
	if res.Kind == model.KindObject {
		return chainFromResolution(res, res.Object.ACLs)
	}
	var c authz.Chain
	for _, anc := range res.Ancestors {
		c.Ancestors = append(c.Ancestors, anc.ACLs)
	}
	return c
}

type uploadJobJSON struct {
	JobKey        string              `json:"job-id"`
	ChunkLength   int64               `json:"chunk-length"`
	ContentLength int64               `json:"content-length"`
	State         model.UploadState   `json:"state"`
	ChunksPresent []model.ChunkAux    `json:"chunks,omitempty"`
	Metadata      model.UploadMetadata `json:"metadata"`
}

func uploadJobView(j *model.UploadJob) uploadJobJSON {
	return uploadJobJSON{
		JobKey:        j.JobKey,
		ChunkLength:   j.ChunkLength,
		ContentLength: j.ContentLength,
		State:         j.State,
		ChunksPresent: j.ChunkAux,
		Metadata:      j.Metadata,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
