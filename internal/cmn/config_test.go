package cmn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServicePrefix:  "/hatrac",
		DatabaseDSN:    "postgres://localhost/hatrac",
		StorageBackend: "filesystem",
		StoragePath:    "/var/hatrac",
	}
}

func TestValidateRequiresServicePrefix(t *testing.T) {
	c := validConfig()
	c.ServicePrefix = ""
	assert.Error(t, c.Validate())
}

func TestValidateRequiresDatabaseDSN(t *testing.T) {
	c := validConfig()
	c.DatabaseDSN = ""
	assert.Error(t, c.Validate())
}

func TestValidateFilesystemBackendRequiresStoragePath(t *testing.T) {
	c := validConfig()
	c.StoragePath = ""
	assert.Error(t, c.Validate())
}

func TestValidateAmazonS3BackendRequiresBuckets(t *testing.T) {
	c := validConfig()
	c.StorageBackend = "amazons3"
	c.StoragePath = ""
	assert.Error(t, c.Validate())

	c.S3.Buckets = map[string]S3BucketConfig{"/": {BucketName: "b"}}
	assert.NoError(t, c.Validate())
}

func TestValidateOverlayBackendRequiresStoragePath(t *testing.T) {
	c := validConfig()
	c.StorageBackend = "overlay"
	c.StoragePath = ""
	assert.Error(t, c.Validate())
}

func TestValidateUnknownBackend(t *testing.T) {
	c := validConfig()
	c.StorageBackend = "nonsense"
	assert.Error(t, c.Validate())
}

func TestValidateAppliesDefaults(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, int64(defaultMaxPayload), c.MaxRequestPayload)
	assert.Equal(t, defaultDatabaseRetries, c.DatabaseMaxRetries)
	assert.Equal(t, defaultCharClass, c.AllowedURLCharClass)
}

func TestValidateReadOnlyClearsFirewallACLs(t *testing.T) {
	c := validConfig()
	c.ReadOnly = true
	c.FirewallACLs = FirewallACLs{Create: []string{"*"}}
	require.NoError(t, c.Validate())
	assert.Equal(t, FirewallACLs{}, c.FirewallACLs)
}

func TestFirewallACLsAllowsWildcardAndExplicitRole(t *testing.T) {
	fw := FirewallACLs{Create: []string{"admin"}}
	assert.True(t, fw.AllowsCreate([]string{"admin"}))
	assert.False(t, fw.AllowsCreate([]string{"guest"}))

	wildcard := FirewallACLs{Create: []string{"*"}}
	assert.True(t, wildcard.AllowsCreate([]string{"anyone"}))
}
