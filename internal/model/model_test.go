package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestACLClone(t *testing.T) {
	orig := ACL{"owner": {"alice"}}
	clone := orig.Clone()
	clone["owner"][0] = "bob"
	assert.Equal(t, "alice", orig["owner"][0])
}

func TestAuxIsEmpty(t *testing.T) {
	var nilAux *Aux
	assert.True(t, nilAux.IsEmpty())

	empty := &Aux{}
	assert.True(t, empty.IsEmpty())

	withURL := &Aux{URL: "https://example.com/x"}
	assert.False(t, withURL.IsEmpty())

	withRename := &Aux{RenameTo: &RenameTarget{Name: "/a/b"}}
	assert.False(t, withRename.IsEmpty())
}

func TestVersionIsLive(t *testing.T) {
	v := &Version{}
	assert.True(t, v.IsLive())
	now := v.CreatedAt
	v.DeletedAt = &now
	assert.False(t, v.IsLive())
}

func TestUploadJobNumChunksAndChunkSize(t *testing.T) {
	cases := []struct {
		name          string
		chunkLength   int64
		contentLength int64
		wantNumChunks int64
		lastChunkSize int64
	}{
		{"even split", 10, 100, 10, 10},
		{"remainder", 10, 95, 10, 5},
		{"single chunk smaller than chunk length", 10, 3, 1, 3},
		{"zero-length content still reserves one chunk", 10, 0, 1, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := &UploadJob{ChunkLength: tc.chunkLength, ContentLength: tc.contentLength}
			assert.Equal(t, tc.wantNumChunks, j.NumChunks())
			assert.Equal(t, tc.lastChunkSize, j.ChunkSize(j.NumChunks()-1))
			if j.NumChunks() > 1 {
				assert.Equal(t, tc.chunkLength, j.ChunkSize(0))
			}
		})
	}
}

func TestUploadJobNumChunksZeroChunkLength(t *testing.T) {
	j := &UploadJob{ChunkLength: 0, ContentLength: 100}
	assert.Equal(t, int64(0), j.NumChunks())
}
