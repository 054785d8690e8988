package s3backend

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

func testRoute(cfg cmn.S3BucketConfig, prefix string) bucketRoute {
	return bucketRoute{prefix: prefix, cfg: cfg}
}

func TestObjectKeyDefaultScheme(t *testing.T) {
	r := testRoute(cmn.S3BucketConfig{BucketPathPrefix: "pref"}, "/a")
	key := objectKey(r, "/a/b/c", "v1")
	assert.Equal(t, "pref/b/c", key)
}

func TestObjectKeyWithVersionSuffix(t *testing.T) {
	r := testRoute(cmn.S3BucketConfig{BucketPathPrefix: "pref", HatracS3Method: "pref/**/hname:hver"}, "/a")
	key := objectKey(r, "/a/b/c", "v1")
	assert.Equal(t, "pref/b/c:v1", key)
}

func TestObjectKeyUnquote(t *testing.T) {
	r := testRoute(cmn.S3BucketConfig{BucketPathPrefix: "pref", UnquoteObjectKeys: true}, "/a")
	key := objectKey(r, "/a/b%2Fc", "v1")
	assert.Equal(t, "pref/b/c", key)
}

func TestRouteLongestPrefixWins(t *testing.T) {
	b := &Backend{routes: []bucketRoute{
		{prefix: "/a", cfg: cmn.S3BucketConfig{BucketName: "short"}},
		{prefix: "/a/b", cfg: cmn.S3BucketConfig{BucketName: "long"}},
	}}
	r, err := b.route("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "long", r.cfg.BucketName)
}

func TestRouteNoMatchIsInternalError(t *testing.T) {
	b := &Backend{routes: []bucketRoute{{prefix: "/z", cfg: cmn.S3BucketConfig{BucketName: "z"}}}}
	_, err := b.route("/a/b")
	require.Error(t, err)
	var he *herr.Error
	assert.True(t, errors.As(err, &he))
}

func TestClassifyErrNil(t *testing.T) {
	assert.NoError(t, classifyErr(nil))
}

func TestClassifyErrNoSuchKeyMapsToNotFound(t *testing.T) {
	aerr := awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	reqErr := awserr.NewRequestFailure(aerr, 404, "req-1")
	err := classifyErr(reqErr)
	require.Error(t, err)
	var he *herr.Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, herr.KindNotFound, he.Kind)
}

func TestClassifyErrOtherRequestFailureMapsToInternal(t *testing.T) {
	aerr := awserr.New("AccessDenied", "denied", nil)
	reqErr := awserr.NewRequestFailure(aerr, 403, "req-2")
	err := classifyErr(reqErr)
	require.Error(t, err)
	var he *herr.Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, herr.KindInternal, he.Kind)
}

func TestClassifyErrGenericErrorMapsToInternal(t *testing.T) {
	err := classifyErr(errors.New("boom"))
	require.Error(t, err)
	var he *herr.Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, herr.KindInternal, he.Kind)
}
