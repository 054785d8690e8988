// Package svc is Hatrac's HTTP front end (§4.6): one dispatcher per
// request that resolves the URL grammar, evaluates authorization and
// preconditions, and delegates to the metadata/backend layers. Grounded
// on the teacher's ais/proxy.go and ais/target.go httprunner pattern —
// a single ServeHTTP entry point, method-switch sub-handlers, and a
// writeErr boundary that is the only place an error becomes a status
// code.
package svc

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/metrics"
	"github.com/informatics-isi-edu/hatrac/internal/store"
	"github.com/informatics-isi-edu/hatrac/internal/upload"
)

// Server is Hatrac's HTTP front end, wired once at startup from
// cmd/hatrac (§6 configuration, §4.6 handlers).
type Server struct {
	Store   *store.Store
	Backend backend.Backend
	Upload  *upload.Coordinator
	Authz   *authz.Engine

	httpSrv *http.Server
}

func New(s *store.Store, b backend.Backend, authzEngine *authz.Engine) *Server {
	return &Server{
		Store:   s,
		Backend: b,
		Upload:  upload.New(s, b),
		Authz:   authzEngine,
	}
}

// ListenAndServe starts the HTTP listener on cfg.ListenAddr (§6), the
// same direct net/http.Server construction the teacher uses in
// ais/htrun.go rather than a third-party router — Hatrac's own routing
// need (URL grammar below one prefix) does not benefit from a
// multiplexer library, so this is one of the few places the corpus's
// "reach for a library" rule does not apply (documented in DESIGN.md).
func (s *Server) ListenAndServe() error {
	cfg := cmn.GCO.Get()
	mux := http.NewServeMux()
	mux.Handle(normalizedPrefix(cfg.ServicePrefix), s)
	mux.Handle("/metrics", metrics.Handler())
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
	glog.Infof("hatrac: listening on %s (prefix %s)", cfg.ListenAddr, cfg.ServicePrefix)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func normalizedPrefix(p string) string {
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// ServeHTTP is the single dispatch entry point (§4.6 "Handlers are
// organized by resource kind, each enforcing: method/kind compatibility
// ... content negotiation, precondition evaluation, authorization,
// validation, metadata-store action, storage action, response
// composition").
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := cmn.GCO.Get()
	started := time.Now()
	glog.V(glog.SmoduleSvc).Infof("%s %s", r.Method, r.URL.Path)

	sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	raw := strings.TrimPrefix(r.URL.Path, strings.TrimSuffix(cfg.ServicePrefix, "/"))
	req, err := newRequest(r, raw, cfg)
	if err != nil {
		writeErr(sw, r, err)
		recordRequestMetrics(r, sw, "unknown", started)
		return
	}

	if cfg.ReadOnly && req.isMutating() {
		writeErr(sw, r, herr.Forbidden("service is read-only"))
		recordRequestMetrics(r, sw, resourceKind(req), started)
		return
	}

	dispatch(s, sw, req)
	recordRequestMetrics(r, sw, resourceKind(req), started)
	glog.V(glog.SmoduleSvc).Infof("%s %s done in %s", r.Method, r.URL.Path, time.Since(started))
}

// statusRecorder captures the status code dispatch wrote, for metrics
// labeling, without otherwise altering ResponseWriter behavior.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sw *statusRecorder) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func resourceKind(req *request) string {
	switch {
	case req.parsed.Sub != "":
		return req.parsed.Sub
	case req.parsed.Version != "":
		return "version"
	default:
		return "name"
	}
}

func recordRequestMetrics(r *http.Request, sw *statusRecorder, kind string, started time.Time) {
	statusClass := strconv.Itoa(sw.status/100*100) + "xx"
	metrics.RequestsTotal.WithLabelValues(r.Method, kind, statusClass).Inc()
	metrics.RequestDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
