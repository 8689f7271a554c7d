package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRangeEmptySelectsAll(t *testing.T) {
	pages, err := ParsePageRange("", 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, pages)
}

func TestParsePageRangeMixed(t *testing.T) {
	pages, err := ParsePageRange("1,3,5-7", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5, 6, 7}, pages)
}

func TestParsePageRangeDeduplicatesAndSorts(t *testing.T) {
	pages, err := ParsePageRange("7,1-3,2,3", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 7}, pages)
}

func TestParsePageRangeOpenEnds(t *testing.T) {
	pages, err := ParsePageRange("8-", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9, 10}, pages)

	pages, err = ParsePageRange("-2", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages)
}

func TestParsePageRangeOutOfBounds(t *testing.T) {
	_, err := ParsePageRange("5", 4)
	assert.Error(t, err)

	_, err = ParsePageRange("0", 4)
	assert.Error(t, err)

	_, err = ParsePageRange("3-2", 4)
	assert.Error(t, err)
}

func TestParsePageRangeRejectsJunk(t *testing.T) {
	_, err := ParsePageRange("abc", 4)
	assert.Error(t, err)

	_, err = ParsePageRange("1,x-3", 4)
	assert.Error(t, err)
}
