package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestETagQuotesToken(t *testing.T) {
	assert.Equal(t, `"abc123"`, ETag("abc123"))
	assert.Equal(t, `""`, ETag(""))
}
