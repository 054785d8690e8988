package svc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/informatics-isi-edu/hatrac/internal/backend"
)

func TestParseRangeEmptyHeaderMeansFullEntity(t *testing.T) {
	r, err := parseRange("", 100)
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestParseRangeSimpleForm(t *testing.T) {
	r, err := parseRange("bytes=0-99", 200)
	assert.NoError(t, err)
	assert.Equal(t, &backend.Range{Start: 0, End: 99}, r)
}

func TestParseRangeOpenEndedClampsToSize(t *testing.T) {
	r, err := parseRange("bytes=50-", 100)
	assert.NoError(t, err)
	assert.Equal(t, &backend.Range{Start: 50, End: 99}, r)
}

func TestParseRangeSuffixForm(t *testing.T) {
	r, err := parseRange("bytes=-10", 100)
	assert.NoError(t, err)
	assert.Equal(t, &backend.Range{Start: 90, End: 99}, r)
}

func TestParseRangeSuffixLargerThanSizeServesWholeEntity(t *testing.T) {
	r, err := parseRange("bytes=-1000", 100)
	assert.NoError(t, err)
	assert.Equal(t, &backend.Range{Start: 0, End: 99}, r)
}

func TestParseRangeEndBeyondSizeClamps(t *testing.T) {
	r, err := parseRange("bytes=0-999", 100)
	assert.NoError(t, err)
	assert.Equal(t, &backend.Range{Start: 0, End: 99}, r)
}

func TestParseRangeMultiRangeUnsupported(t *testing.T) {
	_, err := parseRange("bytes=0-10,20-30", 100)
	assert.ErrorIs(t, err, errMultiRange)
}

func TestParseRangeUnsatisfiableStartBeyondSize(t *testing.T) {
	_, err := parseRange("bytes=500-600", 100)
	assert.ErrorIs(t, err, errRangeUnsatisfiable)
}

func TestParseRangeUnsatisfiableZeroSuffix(t *testing.T) {
	_, err := parseRange("bytes=-0", 100)
	assert.ErrorIs(t, err, errRangeUnsatisfiable)
}

func TestParseRangeMalformedFallsBackToFullEntity(t *testing.T) {
	_, err := parseRange("bytes=abc-def", 100)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errMultiRange)
	assert.NotErrorIs(t, err, errRangeUnsatisfiable)
}

func TestParseRangeUnrecognizedUnit(t *testing.T) {
	_, err := parseRange("items=0-1", 100)
	assert.Error(t, err)
}
