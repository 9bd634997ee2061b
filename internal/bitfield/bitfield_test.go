package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBytes(t *testing.T) {
	v, err := NewBytes([]byte{0x0f}, 8)
	require.NoError(t, err)
	assert.Equal(t, "0f", v.Hex())

	_, err = NewBytes([]byte{0x0f}, 7)
	assert.Error(t, err, "spare bit is set")

	v, err = NewBytes([]byte{0x0e}, 7)
	require.NoError(t, err)
	assert.Equal(t, "0e", v.Hex())

	_, err = NewBytes([]byte{0x0f}, 9)
	assert.Error(t, err, "not enough bytes")
}

func TestSetClearTest(t *testing.T) {
	v := New(10)
	assert.Equal(t, "0000", v.Hex())

	v.Set(0)
	assert.Equal(t, "8000", v.Hex())

	v.Set(9)
	assert.Equal(t, "8040", v.Hex())
	assert.Equal(t, uint32(2), v.Count())

	assert.Panics(t, func() { v.Set(10) })

	v.Clear(0)
	assert.Equal(t, "0040", v.Hex())
	assert.False(t, v.Test(2))
	assert.True(t, v.Test(9))
	assert.False(t, v.All())

	for i := uint32(0); i < 10; i++ {
		v.Set(i)
	}
	assert.True(t, v.All())

	v.ClearAll()
	assert.Equal(t, uint32(0), v.Count())
}

func TestCopy(t *testing.T) {
	v := New(9)
	v.Set(8)
	v2 := v.Copy()
	v.Clear(8)
	assert.True(t, v2.Test(8))
	assert.False(t, v.Test(8))
}
