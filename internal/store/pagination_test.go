package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := DecodeCursor(EncodeCursor(Cursor{At: at, ID: 77}))
	require.NoError(t, err)
	assert.True(t, got.At.Equal(at))
	assert.Equal(t, int64(77), got.ID)
}

func TestDecodeEmptyCursorStartsAfterNow(t *testing.T) {
	got, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, got.At.After(time.Now()))
	assert.Equal(t, int64(1<<63-1), got.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestNewOffsetPage(t *testing.T) {
	p := newOffsetPage([]int{1, 2}, 41, 3, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(41), p.Total)

	p = newOffsetPage(nil, 0, 1, 20)
	assert.Equal(t, 0, p.TotalPages)
}

func TestTrimPage(t *testing.T) {
	rows, more := trimPage([]int{1, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, more)

	rows, more = trimPage([]int{1, 2}, 2)
	assert.Len(t, rows, 2)
	assert.False(t, more)
}
