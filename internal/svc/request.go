package svc

import (
	"net/http"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

// request bundles the parsed URL grammar with the bits every handler
// needs from the raw *http.Request, so resource-kind handlers take one
// argument instead of threading r, parsed, roles separately.
type request struct {
	http   *http.Request
	parsed *urlpath.Parsed
	roles  []string
	cfg    *cmn.Config
}

func newRequest(r *http.Request, raw string, cfg *cmn.Config) (*request, error) {
	parsed, err := urlpath.Parse(raw, cfg.AllowedURLCharClass)
	if err != nil {
		return nil, err
	}
	return &request{
		http:   r,
		parsed: parsed,
		roles:  rolesFromRequest(r),
		cfg:    cfg,
	}, nil
}

func (req *request) isMutating() bool {
	switch req.http.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// rolesFromRequest derives the caller's role set from upstream
// authentication (§4.5 "derive the effective role set from the
// authenticated client"). Hatrac delegates actual credential
// verification to a fronting authenticator (matching the source's
// deployment model of sitting behind webauthn/Apache); it trusts a
// already-validated role list forwarded in a request header, the same
// boundary the teacher's authn package sits behind its own reverse
// proxy at (authn/utils.go Token, consumed after JWT verification
// upstream of the handler).
func rolesFromRequest(r *http.Request) []string {
	hdr := r.Header.Get("Remote-User-Groups")
	if hdr == "" {
		return nil
	}
	parts := strings.Split(hdr, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

func ifMatch(r *http.Request) (*string, bool) {
	v := r.Header.Get("If-Match")
	if v == "" {
		return nil, false
	}
	if v == "*" {
		return nil, true
	}
	return &v, false
}

func ifNoneMatchStar(r *http.Request) bool {
	return r.Header.Get("If-None-Match") == "*"
}

func ifNoneMatchValue(r *http.Request) string {
	return r.Header.Get("If-None-Match")
}

func requireSegments(req *request) error {
	if len(req.parsed.Segments) == 0 {
		return herr.BadRequest("path must name a namespace or object")
	}
	return nil
}
