// Hatrac server entrypoint (§6): its one input is the configuration file
// path, given by -config (default /etc/hatrac/config.json). Grounded on the teacher's cmd/aisnodeprofile/main.go shape:
// flag.Parse, a run() returning an exit code, glog.Flush deferred, and a
// signal-driven graceful shutdown matching ais.Run's SCM_SIGTERM handling
// in ais/earlystart.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/fsbackend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/overlaybackend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/s3backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/store"
	"github.com/informatics-isi-edu/hatrac/internal/svc"
)

var configPath = flag.String("config", "/etc/hatrac/config.json", "path to the Hatrac configuration document")

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg, err := cmn.Load(*configPath)
	if err != nil {
		glog.Errorf("hatrac: %v", err)
		return 1
	}
	cmn.GCO.Put(cfg)

	st, err := store.Open(cfg.DatabaseDSN, cfg.DatabaseMaxRetries)
	if err != nil {
		glog.Errorf("hatrac: %v", err)
		return 1
	}
	defer st.Close()

	be, err := newBackend(cfg)
	if err != nil {
		glog.Errorf("hatrac: %v", err)
		return 1
	}

	engine := authz.New(cfg.FirewallACLs)
	server := svc.New(st, be, engine)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			glog.Errorf("hatrac: server exited: %v", err)
			return 1
		}
	case sig := <-sigCh:
		glog.Infof("hatrac: received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			glog.Errorf("hatrac: shutdown: %v", err)
			return 1
		}
	}
	return 0
}

// newBackend selects and constructs the configured storage backend
// (§4.3, §6 "storage_backend"). The overlay backend composes a
// filesystem primary with an S3 secondary, matching the source's
// "overlay" deployment mode for migrating between backends without a
// service outage.
func newBackend(cfg *cmn.Config) (backend.Backend, error) {
	switch cfg.StorageBackend {
	case "filesystem":
		return fsbackend.New(cfg.StoragePath)
	case "amazons3":
		return s3backend.New(cfg.S3)
	case "overlay":
		primary, err := fsbackend.New(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		secondary, err := s3backend.New(cfg.S3)
		if err != nil {
			return nil, err
		}
		return overlaybackend.New(primary, secondary), nil
	default:
		return nil, fmt.Errorf("unknown storage_backend %q", cfg.StorageBackend)
	}
}
