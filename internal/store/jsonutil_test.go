package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/model"
)

func TestJSONColumnValueAndScanRoundTrip(t *testing.T) {
	acl := model.ACL{"owner": {"alice", "bob"}}
	col := jsonScanner(&acl)

	val, err := col.Value()
	require.NoError(t, err)

	var decoded model.ACL
	decodedCol := jsonScanner(&decoded)
	require.NoError(t, decodedCol.Scan(val))
	assert.Equal(t, acl, decoded)
}

func TestJSONColumnScanNilAndEmptyAreNoop(t *testing.T) {
	var acl model.ACL
	col := jsonScanner(&acl)

	assert.NoError(t, col.Scan(nil))
	assert.NoError(t, col.Scan([]byte{}))
	assert.NoError(t, col.Scan(""))
	assert.Nil(t, acl)
}

func TestJSONColumnScanAcceptsStringAndBytes(t *testing.T) {
	var a model.ACL
	require.NoError(t, jsonScanner(&a).Scan(`{"owner":["alice"]}`))
	assert.Equal(t, model.ACL{"owner": {"alice"}}, a)

	var b model.ACL
	require.NoError(t, jsonScanner(&b).Scan([]byte(`{"owner":["bob"]}`)))
	assert.Equal(t, model.ACL{"owner": {"bob"}}, b)
}

func TestJSONColumnScanRejectsUnsupportedType(t *testing.T) {
	var a model.ACL
	err := jsonScanner(&a).Scan(42)
	assert.Error(t, err)
}
