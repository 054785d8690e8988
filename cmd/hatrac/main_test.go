package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
)

func TestNewBackendFilesystem(t *testing.T) {
	cfg := &cmn.Config{StorageBackend: "filesystem", StoragePath: t.TempDir()}
	be, err := newBackend(cfg)
	require.NoError(t, err)
	assert.NotNil(t, be)
}

func TestNewBackendOverlay(t *testing.T) {
	cfg := &cmn.Config{
		StorageBackend: "overlay",
		StoragePath:    t.TempDir(),
		S3:             cmn.S3Config{Buckets: map[string]cmn.S3BucketConfig{"/": {BucketName: "b"}}},
	}
	be, err := newBackend(cfg)
	require.NoError(t, err)
	assert.NotNil(t, be)
}

func TestNewBackendUnknown(t *testing.T) {
	cfg := &cmn.Config{StorageBackend: "nonsense"}
	_, err := newBackend(cfg)
	assert.Error(t, err)
}
