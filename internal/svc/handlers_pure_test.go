package svc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/authz"
	"github.com/informatics-isi-edu/hatrac/internal/model"
	"github.com/informatics-isi-edu/hatrac/internal/store"
)

func TestMetadataFieldValue(t *testing.T) {
	ver := &model.Version{
		ContentType:        "text/plain",
		ContentDisposition: "report.csv",
		ContentMD5:         "md5value",
		ContentSHA256:      "sha256value",
	}

	v, ok := metadataFieldValue(ver, "content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)

	v, ok = metadataFieldValue(ver, "content-sha256")
	assert.True(t, ok)
	assert.Equal(t, "sha256value", v)

	_, ok = metadataFieldValue(ver, "bogus-field")
	assert.False(t, ok)
}

func TestValidateContentDispositionEmptyIsAllowed(t *testing.T) {
	name, err := validateContentDisposition("")
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestValidateContentDispositionValid(t *testing.T) {
	name, err := validateContentDisposition("filename*=UTF-8''report.csv")
	require.NoError(t, err)
	assert.Equal(t, "report.csv", name)
}

func TestValidateContentDispositionRejectsMissingMarker(t *testing.T) {
	_, err := validateContentDisposition("report.csv")
	assert.Error(t, err)
}

func TestValidateContentDispositionRejectsPathSeparators(t *testing.T) {
	_, err := validateContentDisposition("filename*=UTF-8''a%2Fb")
	assert.Error(t, err)
}

func TestChainFromResolution(t *testing.T) {
	res := &store.Resolution{
		Ancestors: []*model.Namespace{
			{ACLs: model.ACL{"subtree-owner": {"root-admin"}}},
			{ACLs: model.ACL{"subtree-update": {"alice"}}},
		},
	}
	own := model.ACL{"owner": {"bob"}}
	chain := chainFromResolution(res, own)
	assert.Equal(t, own, chain.Own)
	require.Len(t, chain.Ancestors, 2)
	assert.Equal(t, []string{"root-admin"}, chain.Ancestors[0]["subtree-owner"])
}

func TestParentChainForUploadExistingObjectUsesOwnACL(t *testing.T) {
	res := &store.Resolution{
		Kind:   model.KindObject,
		Object: &model.Object{ACLs: model.ACL{"owner": {"carol"}}},
		Ancestors: []*model.Namespace{
			{ACLs: model.ACL{"subtree-owner": {"root-admin"}}},
		},
	}
	chain := parentChainForUpload(res)
	assert.Equal(t, model.ACL{"owner": {"carol"}}, chain.Own)
}

func TestParentChainForUploadUndefinedUsesAncestorsOnly(t *testing.T) {
	res := &store.Resolution{
		Kind: model.KindUndefined,
		Ancestors: []*model.Namespace{
			{ACLs: model.ACL{"subtree-owner": {"root-admin"}}},
		},
	}
	chain := parentChainForUpload(res)
	assert.Nil(t, chain.Own)
	require.Len(t, chain.Ancestors, 1)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

var _ = authz.Chain{}
