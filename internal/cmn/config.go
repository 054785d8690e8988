// Package cmn holds Hatrac's ambient, cross-cutting pieces: the service
// configuration document (§6) and its global, read-only owner. Grounded
// on the teacher's cmn/config.go GCO (Global Config Owner) pattern:
// config is loaded once, validated, and thereafter read through an
// atomic pointer so concurrent request handlers never observe a partial
// update (§9 "Ambient runtime state" — "no reloadable singletons").
package cmn

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
)

// FirewallACLs is the service-wide ACL set from §6/§4.5 item 1. Each
// field is either a role list or the single-element wildcard ["*"].
type FirewallACLs struct {
	Create        []string `json:"create"`
	Delete        []string `json:"delete"`
	ManageACLs    []string `json:"manage_acls"`
	ManageMeta    []string `json:"manage_metadata"`
}

// Allows reports whether any of roles (plus the implicit anonymous set)
// satisfies this firewall ACL.
func (f FirewallACLs) allows(list []string, roles []string) bool {
	for _, r := range list {
		if r == "*" {
			return true
		}
		for _, have := range roles {
			if have == r {
				return true
			}
		}
	}
	return false
}

func (f FirewallACLs) AllowsCreate(roles []string) bool     { return f.allows(f.Create, roles) }
func (f FirewallACLs) AllowsDelete(roles []string) bool     { return f.allows(f.Delete, roles) }
func (f FirewallACLs) AllowsManageACLs(roles []string) bool { return f.allows(f.ManageACLs, roles) }
func (f FirewallACLs) AllowsManageMeta(roles []string) bool { return f.allows(f.ManageMeta, roles) }

// S3BucketConfig is one entry of s3_config.buckets (§6).
type S3BucketConfig struct {
	BucketName                string `json:"bucket_name"`
	BucketPathPrefix          string `json:"bucket_path_prefix"`
	HatracS3Method            string `json:"hatrac_s3_method"` // "pref/**/hname" | "pref/**/hname:hver"
	UnquoteObjectKeys         bool   `json:"unquote_object_keys"`
	PresignedURLThreshold     int64  `json:"presigned_url_threshold"`
	PresignedURLExpirationSec int    `json:"presigned_url_expiration_secs"`
	Region                    string `json:"region"`
	Endpoint                  string `json:"endpoint,omitempty"`
	VersionedBucket           bool   `json:"versioned_bucket"`
}

type S3Config struct {
	DefaultSession string                    `json:"default_session"`
	Buckets        map[string]S3BucketConfig `json:"buckets"` // keyed by prefix
	LegacyMapping  map[string]string         `json:"legacy_mapping,omitempty"`
}

// ErrorTemplates maps status-code → content-type → template body (§4.8).
type ErrorTemplates map[string]map[string]string

// Config is the immutable, validated JSON document described in §6.
type Config struct {
	ServicePrefix       string         `json:"service_prefix"`
	DatabaseDSN         string         `json:"database_dsn"`
	DatabaseMaxRetries  int            `json:"database_max_retries"`
	AllowedURLCharClass string         `json:"allowed_url_char_class"`
	MaxRequestPayload   int64          `json:"max_request_payload_size"`
	FirewallACLs        FirewallACLs   `json:"firewall_acls"`
	ReadOnly            bool           `json:"read_only"`
	StorageBackend      string         `json:"storage_backend"` // filesystem|amazons3|overlay
	StoragePath         string         `json:"storage_path"`
	S3                  S3Config       `json:"s3_config"`
	ErrorTemplates      ErrorTemplates `json:"error_templates"`
	ListenAddr          string         `json:"listen_addr"`
}

const (
	defaultMaxPayload      = 128 << 20 // 128 MiB, per §6
	defaultDatabaseRetries = 5
	defaultCharClass       = `-._~A-Za-z0-9`
)

// Validate checks the invariants the rest of the service assumes hold,
// mirroring the shape of the teacher's Config.Validate (cmn/config.go):
// a flat list of field-level checks, no partial application allowed.
func (c *Config) Validate() error {
	if c.ServicePrefix == "" {
		return fmt.Errorf("invalid config: service_prefix must be non-empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("invalid config: database_dsn must be non-empty")
	}
	switch c.StorageBackend {
	case "filesystem":
		if c.StoragePath == "" {
			return fmt.Errorf("invalid config: storage_path required for filesystem backend")
		}
	case "amazons3":
		if len(c.S3.Buckets) == 0 {
			return fmt.Errorf("invalid config: s3_config.buckets required for amazons3 backend")
		}
	case "overlay":
		if c.StoragePath == "" {
			return fmt.Errorf("invalid config: storage_path required for overlay backend (primary)")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage_backend %q", c.StorageBackend)
	}
	if c.MaxRequestPayload <= 0 {
		c.MaxRequestPayload = defaultMaxPayload
	}
	if c.DatabaseMaxRetries <= 0 {
		c.DatabaseMaxRetries = defaultDatabaseRetries
	}
	if c.AllowedURLCharClass == "" {
		c.AllowedURLCharClass = defaultCharClass
	}
	if c.ReadOnly {
		c.FirewallACLs = FirewallACLs{}
	}
	return nil
}

// Load reads, parses, and validates the configuration document (§6).
// json-iterator is used for parsing, matching the teacher's use of
// jsoniter throughout cmn/config.go for faster unmarshal of the (large,
// frequently re-read at startup) config document.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := jsoniter.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// globalConfigOwner (GCO) is Hatrac's equivalent of the teacher's GCO:
// a package-level, concurrency-safe holder for the one immutable Config
// snapshot in effect for the process lifetime.
type globalConfigOwner struct {
	p atomic.Pointer[Config]
}

// GCO is the process-wide config owner; handlers call GCO.Get() rather
// than receiving *Config through a constructor, matching the teacher.
var GCO = &globalConfigOwner{}

func (gco *globalConfigOwner) Get() *Config { return gco.p.Load() }
func (gco *globalConfigOwner) Put(c *Config) { gco.p.Store(c) }

// MustMarshalJSON is a small helper used by handlers rendering listings
// and ACL collections (§4.6); kept here rather than per-handler so every
// JSON body in the service goes through one encoder configuration.
func MustMarshalJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
