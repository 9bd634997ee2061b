// Package bitfield provides a set of bits that represents the pieces a client has.
package bitfield

import (
	"encoding/hex"
	"errors"
	"math/bits"
)

// Bitfield is a fixed-length vector of bits. Bit 0 is the most significant
// bit of the first byte, matching the encoding of the wire bitfield message.
type Bitfield struct {
	b      []byte
	length uint32
}

// New creates a new Bitfield of length bits.
func New(length uint32) *Bitfield {
	return &Bitfield{
		b:      make([]byte, (length+7)/8),
		length: length,
	}
}

// NewBytes returns a new Bitfield value from b.
// Bytes in b are not copied. Unused bits in last byte must be zero.
func NewBytes(b []byte, length uint32) (*Bitfield, error) {
	div, mod := length/8, length%8
	lastByteIncomplete := mod != 0
	requiredBytes := div
	if lastByteIncomplete {
		requiredBytes++
	}
	if uint32(len(b)) != requiredBytes {
		return nil, errors.New("invalid bitfield length")
	}
	if lastByteIncomplete && b[len(b)-1]&(0xff>>mod) != 0 {
		return nil, errors.New("invalid bitfield: spare bits are set")
	}
	return &Bitfield{b: b, length: length}, nil
}

// Bytes returns the underlying bytes. Modifying the returned slice modifies the Bitfield.
func (b *Bitfield) Bytes() []byte { return b.b }

// Copy returns a new Bitfield with a copy of the underlying bytes.
func (b *Bitfield) Copy() *Bitfield {
	b2 := New(b.length)
	copy(b2.b, b.b)
	return b2
}

// Len returns the number of bits as given to New.
func (b *Bitfield) Len() uint32 { return b.length }

// Hex returns bytes as a hex string.
func (b *Bitfield) Hex() string { return hex.EncodeToString(b.b) }

// Set bit i. 0 is the most significant bit. Panics if i >= b.Len().
func (b *Bitfield) Set(i uint32) {
	b.checkIndex(i)
	b.b[i/8] |= 1 << (7 - i%8)
}

// SetTo sets bit i to value. Panics if i >= b.Len().
func (b *Bitfield) SetTo(i uint32, value bool) {
	if value {
		b.Set(i)
		return
	}
	b.Clear(i)
}

// Clear bit i. 0 is the most significant bit. Panics if i >= b.Len().
func (b *Bitfield) Clear(i uint32) {
	b.checkIndex(i)
	b.b[i/8] &^= 1 << (7 - i%8)
}

// ClearAll clears all bits.
func (b *Bitfield) ClearAll() {
	for i := range b.b {
		b.b[i] = 0
	}
}

// Test bit i. 0 is the most significant bit. Panics if i >= b.Len().
func (b *Bitfield) Test(i uint32) bool {
	b.checkIndex(i)
	return b.b[i/8]&(1<<(7-i%8)) != 0
}

// Count returns the number of set bits.
func (b *Bitfield) Count() uint32 {
	var total int
	for _, v := range b.b {
		total += bits.OnesCount8(v)
	}
	return uint32(total)
}

// All returns true if all bits are set.
func (b *Bitfield) All() bool {
	return b.Count() == b.length
}

func (b *Bitfield) checkIndex(i uint32) {
	if i >= b.length {
		panic("bitfield index out of bound")
	}
}
