package bitpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesolver/types"
)

func TestBitsFor(t *testing.T) {
	assert.Equal(t, 1, BitsFor(0))
	assert.Equal(t, 1, BitsFor(2))
	assert.Equal(t, 2, BitsFor(3))
	assert.Equal(t, 5, BitsFor(25))
	assert.Equal(t, 8, BitsFor(256))
}

func TestLayoutLimits(t *testing.T) {
	_, err := NewLayout(200, 57)
	assert.ErrorIs(t, err, ErrTooWide)
	_, err = NewLayout(3, 0)
	assert.ErrorIs(t, err, ErrFieldWidth)
}

func TestPutGetAcrossWords(t *testing.T) {
	// Field 1 straddles the first word boundary.
	l, err := NewLayout(60, 10, 64, 5)
	require.NoError(t, err)
	assert.Equal(t, 139, l.Bits())
	assert.Equal(t, Field{Offset: 60, Width: 10}, l.Field(1))

	var fp types.Fingerprint
	l.Put(&fp, 0, 0xABCDEF)
	l.Put(&fp, 1, 0x3FF)
	l.Put(&fp, 2, 0xFFFF0000FFFF0000)
	l.Put(&fp, 3, 0x1F|0x20) // high bit dropped

	assert.Equal(t, uint64(0xABCDEF), l.Get(fp, 0))
	assert.Equal(t, uint64(0x3FF), l.Get(fp, 1))
	assert.Equal(t, uint64(0xFFFF0000FFFF0000), l.Get(fp, 2))
	assert.Equal(t, uint64(0x1F), l.Get(fp, 3))

	l.Put(&fp, 1, 0x155)
	assert.Equal(t, uint64(0x155), l.Get(fp, 1))
	assert.Equal(t, uint64(0xABCDEF), l.Get(fp, 0))
	assert.Equal(t, uint64(0xFFFF0000FFFF0000), l.Get(fp, 2))
}

func TestBitmapField(t *testing.T) {
	l, err := NewLayout(5, 200)
	require.NoError(t, err)
	var fp types.Fingerprint
	for _, n := range []int{0, 58, 59, 63, 64, 199} {
		l.SetBit(&fp, 1, n, true)
	}
	assert.True(t, l.Bit(fp, 1, 59))
	assert.True(t, l.Bit(fp, 1, 199))
	assert.False(t, l.Bit(fp, 1, 60))
	assert.Zero(t, l.Get(fp, 0))

	l.SetBit(&fp, 1, 59, false)
	assert.False(t, l.Bit(fp, 1, 59))
}
