package svc

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

// defaultPresignedURLExpiration applies when a bucket config leaves
// presigned_url_expiration_secs unset (§6).
const defaultPresignedURLExpiration = 15 * time.Minute

// presignBucketFor finds the longest configured prefix of name, mirroring
// s3backend's own routing so the presign decision (threshold, ttl) uses
// the same bucket config the backend would route the GET to.
func presignBucketFor(s3cfg cmn.S3Config, name string) (cmn.S3BucketConfig, bool) {
	var best cmn.S3BucketConfig
	var bestLen = -1
	for prefix, bc := range s3cfg.Buckets {
		if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
			best, bestLen = bc, len(prefix)
		}
	}
	return best, bestLen >= 0
}

// handleVersion implements the Version handler (§4.6): GET/HEAD stream
// a specific version honoring aux overrides; DELETE removes the single
// version.
func handleVersion(s *Server, w http.ResponseWriter, req *request) {
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
	switch req.http.Method {
	case http.MethodGet, http.MethodHead:
		obj, ver, err := s.Store.GetVersionByKey(ctx, req.parsed.Segments, req.parsed.Version)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		chain := versionChain(res, obj, ver)
		if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		serveVersion(s, w, req, ver)
	case http.MethodDelete:
		chain := chainFromResolution(res, res.Object.ACLs)
		if err := s.Authz.Check(authz.ActionDelete, chain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		deleted, err := s.Store.DeleteVersion(ctx, req.parsed.Segments, req.parsed.Version)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		purgeVersion(ctx, s, req.parsed.Segments, deleted)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, HEAD, DELETE")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported on a version", req.http.Method))
	}
}

func versionChain(res *store.Resolution, obj *model.Object, ver *model.Version) authz.Chain {
	c := authz.Chain{Own: ver.ACLs}
	c.Ancestors = append(c.Ancestors, obj.ACLs)
	for _, anc := range res.Ancestors {
		c.Ancestors = append(c.Ancestors, anc.ACLs)
	}
	return c
}

// serveVersion streams a Version's content, resolving the Aux override
// priority (§3 Aux record: rename_to > url > hname/hversion > version)
// and honoring Range requests (§4.6 Object/Version handler, §4.7).
func serveVersion(s *Server, w http.ResponseWriter, req *request, ver *model.Version) {
	ctx := req.http.Context()

	if ver.Aux.RenameTo != nil {
		target := ver.Aux.RenameTo
		targetSegments := strings.Split(strings.TrimPrefix(target.Name, "/"), "/")
		w.Header().Set("Content-Location", urlpath.Join(req.cfg.ServicePrefix, targetSegments, target.Version))
		targetRes, err := s.Store.Resolve(ctx, targetSegments)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		if targetRes.Kind != model.KindObject {
			writeErr(w, req.http, herr.NotFound("rename_to target object does not exist"))
			return
		}
		tobj, tver, err := s.Store.GetVersionByKey(ctx, targetSegments, target.Version)
		if err != nil {
			writeErr(w, req.http, err)
			return
		}
		// §4.6 "(and authorize against the target)": a source version's
		// ACL may be looser than the target it points to, so the target's
		// own chain must grant read independently before its content is
		// ever streamed through the source's address.
		targetChain := versionChain(targetRes, tobj, tver)
		if err := s.Authz.Check(authz.ActionRead, targetChain, req.roles); err != nil {
			writeErr(w, req.http, err)
			return
		}
		serveVersion(s, w, req, tver)
		return
	}

	if ver.Aux.URL != "" {
		http.Redirect(w, req.http, ver.Aux.URL, http.StatusFound)
		return
	}

	if etag := ifNoneMatchValue(req.http); etag != "" && etag == store.ETag(ver.VersionKey) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	full := segJoin(req.parsed.Segments)
	backendName, backendVersion := backendAddress(full, ver)

	rng, rngErr := parseRange(req.http.Header.Get("Range"), ver.Size)
	if rngErr != nil {
		if rngErr == errMultiRange {
			writeErr(w, req.http, herr.NotImplemented("multi-range requests are not supported"))
			return
		}
		if rngErr == errRangeUnsatisfiable {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(ver.Size, 10))
			writeErr(w, req.http, herr.RangeNotSatisfiable("requested range not satisfiable"))
			return
		}
		// syntactically invalid Range -> full content 200 (§4.6).
		rng = nil
	}

	if pres, ok := s.Backend.(backend.Presigner); ok && rng == nil {
		if bc, ok2 := presignBucketFor(req.cfg.S3, backendName); ok2 && ver.Size >= bc.PresignedURLThreshold {
			ttl := time.Duration(bc.PresignedURLExpirationSec) * time.Second
			if ttl <= 0 {
				ttl = defaultPresignedURLExpiration
			}
			if url, ok3, err := pres.PresignedGet(ctx, backendName, backendVersion, ttl); err == nil && ok3 {
				http.Redirect(w, req.http, url, http.StatusFound)
				return
			}
		}
	}

	rc, size, _, err := s.Backend.GetStream(ctx, backendName, backendVersion, rng)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentTypeOr(ver.ContentType))
	w.Header().Set("ETag", store.ETag(ver.VersionKey))
	w.Header().Set("Accept-Ranges", "bytes")
	if ver.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+ver.ContentDisposition)
	}
	if rng != nil {
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(rng.Start, 10)+"-"+strconv.FormatInt(rng.Start+size-1, 10)+"/"+strconv.FormatInt(ver.Size, 10))
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
	}
	if req.http.Method == http.MethodHead {
		return
	}
	io.Copy(w, rc)
}

// backendAddress resolves the (name, version) pair a Version is stored
// under, honoring the Aux hname/hversion/version overrides (§3 Aux
// record priority) ahead of the name's own path and version-id.
func backendAddress(full string, ver *model.Version) (string, string) {
	name, version := full, ver.VersionKey
	if ver.Aux.HName != "" {
		name = ver.Aux.HName
	}
	if ver.Aux.HVersion != "" {
		version = ver.Aux.HVersion
	} else if ver.Aux.Version != "" {
		version = ver.Aux.Version
	}
	return name, version
}

// purgeVersion reclaims a tombstoned Version's backing storage (§3
// invariant 4, §4.3: "deleting a version... must reclaim its backing
// bytes"). A version whose Aux names a rename_to target never owned its
// own storage, so there is nothing here to reclaim. Backend errors are
// logged rather than failing the request: the DB tombstone already
// committed and is authoritative.
func purgeVersion(ctx context.Context, s *Server, segments []string, ver *model.Version) {
	if ver == nil || ver.Aux.RenameTo != nil {
		return
	}
	full := segJoin(segments)
	name, version := backendAddress(full, ver)
	if err := s.Backend.Delete(ctx, name, version); err != nil {
		glog.Warningf("purge backend storage for %s version %s failed: %v", name, version, err)
	}
}

func contentTypeOr(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func segJoin(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// handleVersionsList implements the ;versions subresource (§4.1, §4.2
// enumerate_versions).
func handleVersionsList(s *Server, w http.ResponseWriter, req *request) {
	if req.http.Method != http.MethodGet && req.http.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeErr(w, req.http, herr.NotImplemented("method %s not supported on ;versions", req.http.Method))
		return
	}
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
	chain := chainFromResolution(res, res.Object.ACLs)
	if err := s.Authz.Check(authz.ActionRead, chain, req.roles); err != nil {
		writeErr(w, req.http, err)
		return
	}
	versions, err := s.Store.EnumerateVersions(ctx, req.parsed.Segments)
	if err != nil {
		writeErr(w, req.http, err)
		return
	}
	keys := make([]string, 0, len(versions))
	for _, v := range versions {
		if v.IsLive() {
			keys = append(keys, urlpath.Join(req.cfg.ServicePrefix, req.parsed.Segments, v.VersionKey))
		}
	}
	writeChildList(w, req, keys)
}
