package svc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
)

func TestPresignBucketForLongestPrefixWins(t *testing.T) {
	s3cfg := cmn.S3Config{
		Buckets: map[string]cmn.S3BucketConfig{
			"/a":   {PresignedURLThreshold: 100},
			"/a/b": {PresignedURLThreshold: 5},
		},
	}
	bc, ok := presignBucketFor(s3cfg, "/a/b/obj")
	assert.True(t, ok)
	assert.Equal(t, int64(5), bc.PresignedURLThreshold)
}

func TestPresignBucketForNoMatch(t *testing.T) {
	s3cfg := cmn.S3Config{Buckets: map[string]cmn.S3BucketConfig{"/other": {}}}
	_, ok := presignBucketFor(s3cfg, "/a/obj")
	assert.False(t, ok)
}

func TestPresignBucketForEmptyConfig(t *testing.T) {
	_, ok := presignBucketFor(cmn.S3Config{}, "/a/obj")
	assert.False(t, ok)
}
