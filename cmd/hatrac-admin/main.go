// hatrac-admin is the operator-facing counterpart to cmd/hatrac (§6 "Admin
// CLI"): `deploy` bootstraps the schema and grants root ACLs, `migrate`
// rewrites a version's aux record between a link (content lives on a
// remote Hatrac) and a transfer (content pulled back into local storage),
// and `reap-uploads` lists or cancels stale chunked-upload jobs.
//
// Grounded on cuemby-warren's cmd/warren (root cobra.Command + one
// sub-command tree per noun, PersistentFlags for the shared --config/
// --manager style option) rather than the teacher, whose cmd/cli and
// cmd/aisnodeprofile both use flag/getopt-style parsing with no
// subcommand nesting this deep.
package main

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/fsbackend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/overlaybackend"
	"github.com/informatics-isi-edu/hatrac/internal/backend/s3backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hatrac-admin: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hatrac-admin",
	Short: "Administer a Hatrac deployment's schema, root ACLs, and upload jobs",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/hatrac/config.json", "path to the Hatrac configuration document")
	rootCmd.AddCommand(deployCmd, migrateCmd, reapUploadsCmd)
}

// openStore loads the configuration and connects to its database, the
// setup every subcommand needs; it does not apply the schema (deploy
// calls Migrate itself).
func openStore() (*cmn.Config, *store.Store, error) {
	cfg, err := cmn.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.DatabaseDSN, cfg.DatabaseMaxRetries)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, st, nil
}

func openBackend(cfg *cmn.Config) (backend.Backend, error) {
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

// deployCmd implements "deploy <admin-role>" (§6 Admin CLI "deploy
// <admin-role> initializes schema and root ACLs"): idempotent schema
// creation followed by granting admin-role owner and subtree-owner on the
// service root, so it can create, read, and manage anything beneath it.
var deployCmd = &cobra.Command{
	Use:   "deploy <admin-role>",
	Short: "Initialize the schema and grant an administrator role root ACLs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminRole := args[0]
		ctx := context.Background()

		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}

		acl := model.ACL{
			"owner":         []string{adminRole},
			"subtree-owner": []string{adminRole},
		}
		if err := st.SetRootACL(ctx, acl); err != nil {
			return fmt.Errorf("set root acl: %w", err)
		}

		fmt.Printf("schema deployed, root owner/subtree-owner granted to %q\n", adminRole)
		return nil
	},
}

// migrateCmd groups the link/transfer aux-rewriting tool (§6 "A migration
// tool traverses versions and optionally rewrites aux.url to point at a
// remote Hatrac (link) or pulls content back into local storage
// (transfer), deleting the link on success; hashes are verified against
// declared metadata before replacement").
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Link a version to a remote Hatrac, or transfer it back to local storage",
}

var migrateLinkCmd = &cobra.Command{
	Use:   "link <path> <version> <remote-url>",
	Short: "Point a version's aux record at content hosted on a remote Hatrac",
	Long: `link verifies that the bytes at remote-url hash to the version's
declared content-md5/content-sha256, then rewrites the version's aux
record so future reads redirect there instead of serving local bytes.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, versionKey, remoteURL := args[0], args[1], args[2]
		ctx := context.Background()

		cfg, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		segments, err := pathSegments(path, cfg)
		if err != nil {
			return err
		}
		_, ver, err := st.GetVersionByKey(ctx, segments, versionKey)
		if err != nil {
			return fmt.Errorf("resolve version: %w", err)
		}

		if err := verifyRemoteHash(ctx, remoteURL, ver); err != nil {
			return fmt.Errorf("hash verification failed, aux not rewritten: %w", err)
		}

		aux := ver.Aux
		aux.URL = remoteURL
		if err := st.SetVersionAux(ctx, segments, versionKey, aux); err != nil {
			return fmt.Errorf("rewrite aux: %w", err)
		}
		fmt.Printf("linked %s:%s -> %s\n", path, versionKey, remoteURL)
		return nil
	},
}

var migrateTransferCmd = &cobra.Command{
	Use:   "transfer <path> <version>",
	Short: "Pull a linked version's content back into local storage",
	Long: `transfer fetches the content currently addressed by aux.url and
stores it through the configured backend while hashing it; only if the
bytes match the version's declared content-md5/content-sha256 does it
then clear aux.url so subsequent reads are served locally again.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, versionKey := args[0], args[1]
		ctx := context.Background()

		cfg, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		be, err := openBackend(cfg)
		if err != nil {
			return err
		}

		segments, err := pathSegments(path, cfg)
		if err != nil {
			return err
		}
		_, ver, err := st.GetVersionByKey(ctx, segments, versionKey)
		if err != nil {
			return fmt.Errorf("resolve version: %w", err)
		}
		if ver.Aux.URL == "" {
			return fmt.Errorf("version %s:%s is not linked (aux.url empty)", path, versionKey)
		}

		resp, err := http.Get(ver.Aux.URL)
		if err != nil {
			return fmt.Errorf("fetch linked content: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch linked content: remote returned %s", resp.Status)
		}

		md5h, h := md5.New(), sha256.New()
		body := io.TeeReader(resp.Body, io.MultiWriter(md5h, h))
		full := urlpath.Join("", segments, "")
		_, err = be.CreateFromStream(ctx, full, versionKey, body, resp.ContentLength, backend.Metadata{
			ContentType:        ver.ContentType,
			ContentDisposition: ver.ContentDisposition,
		})
		if err != nil {
			return fmt.Errorf("store transferred content: %w", err)
		}

		if ver.ContentMD5 != "" {
			got := base64.StdEncoding.EncodeToString(md5h.Sum(nil))
			if got != ver.ContentMD5 {
				return fmt.Errorf("transferred content hash %q does not match declared content-md5 %q; local copy left in place for inspection", got, ver.ContentMD5)
			}
		}
		if ver.ContentSHA256 != "" {
			got := base64.StdEncoding.EncodeToString(h.Sum(nil))
			if got != ver.ContentSHA256 {
				return fmt.Errorf("transferred content hash %q does not match declared content-sha256 %q; local copy left in place for inspection", got, ver.ContentSHA256)
			}
		}

		aux := ver.Aux
		aux.URL = ""
		if err := st.SetVersionAux(ctx, segments, versionKey, aux); err != nil {
			return fmt.Errorf("clear aux.url: %w", err)
		}
		fmt.Printf("transferred %s:%s back to local storage\n", path, versionKey)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateLinkCmd, migrateTransferCmd)
}

// verifyRemoteHash fetches remoteURL and checks its MD5 and SHA-256
// against whichever of the version's digests are declared, before a link
// rewrite is allowed to proceed (§6 "hashes are verified against declared
// metadata before replacement").
func verifyRemoteHash(ctx context.Context, remoteURL string, ver *model.Version) error {
	if ver.ContentMD5 == "" && ver.ContentSHA256 == "" {
		// nothing declared to verify against; accept on faith, matching
		// the same "only immutable once set" rule metadata uses (§3
		// invariant 5 — an unset digest imposes no constraint).
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote returned %s", resp.Status)
	}
	md5h, h := md5.New(), sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5h, h), resp.Body); err != nil {
		return err
	}
	if got := base64.StdEncoding.EncodeToString(md5h.Sum(nil)); ver.ContentMD5 != "" && got != ver.ContentMD5 {
		return fmt.Errorf("remote content-md5 %q does not match declared %q", got, ver.ContentMD5)
	}
	got := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if ver.ContentSHA256 != "" && got != ver.ContentSHA256 {
		return fmt.Errorf("remote content-sha256 %q does not match declared %q", got, ver.ContentSHA256)
	}
	return nil
}

// reapUploadsCmd implements the upload job reaper utility (§9 supplemented
// feature: background GC is a non-goal for the live service, but the
// admin CLI still needs a way to clean up abandoned jobs).
var reapUploadsCmd = &cobra.Command{
	Use:   "reap-uploads",
	Short: "List, and optionally cancel, chunked upload jobs older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		ctx := context.Background()

		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cutoff := time.Now().Add(-olderThan)
		jobs, err := st.ListStaleUploads(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("list stale uploads: %w", err)
		}
		if len(jobs) == 0 {
			fmt.Println("no stale upload jobs found")
			return nil
		}
		for _, job := range jobs {
			fmt.Printf("%s job=%s created=%s chunks=%d/%d\n",
				job.ObjectPath, job.JobKey, job.CreatedAt.Format(time.RFC3339),
				len(job.ChunkAux), job.NumChunks())
			if dryRun {
				continue
			}
			segments := strings.Split(strings.TrimPrefix(job.ObjectPath, "/"), "/")
			if err := st.CancelUploadJob(ctx, segments, job.JobKey); err != nil {
				glog.Warningf("hatrac-admin: cancel %s/%s: %v", job.ObjectPath, job.JobKey, err)
				continue
			}
			fmt.Printf("  cancelled\n")
		}
		return nil
	},
}

func init() {
	reapUploadsCmd.Flags().Duration("older-than", 24*time.Hour, "cancel jobs created more than this duration ago")
	reapUploadsCmd.Flags().Bool("dry-run", false, "list stale jobs without cancelling them")
}

// pathSegments parses a plain operator-supplied path (already decoded,
// unlike an HTTP request's raw percent-encoded form) into the segment
// list the store package expects.
func pathSegments(path string, cfg *cmn.Config) ([]string, error) {
	parsed, err := urlpath.Parse(path, cfg.AllowedURLCharClass)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	return parsed.Segments, nil
}

