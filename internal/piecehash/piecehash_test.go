package piecehash

import (
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatDigests(t *testing.T) {
	data := []byte("hello piece")

	want1 := sha1.Sum(data)
	assert.Equal(t, want1[:], SHA1.Sum(data))
	assert.Equal(t, 20, SHA1.Size())

	want256 := sha256.Sum256(data)
	assert.Equal(t, want256[:], SHA256.Sum(data))
	assert.Equal(t, 32, SHA256.Size())
}

func TestMerkleSingleLeaf(t *testing.T) {
	// A piece up to one leaf long hashes to the digest of the padded leaf.
	data := []byte("short")
	leaf := make([]byte, LeafSize)
	copy(leaf, data)
	want := sha256.Sum256(leaf)
	assert.Equal(t, want[:], MerkleV2.Sum(data))
}

func TestMerkleTwoLeaves(t *testing.T) {
	data := make([]byte, 2*LeafSize)
	for i := range data {
		data[i] = byte(i)
	}
	l0 := sha256.Sum256(data[:LeafSize])
	l1 := sha256.Sum256(data[LeafSize:])
	var pair [2 * sha256.Size]byte
	copy(pair[:sha256.Size], l0[:])
	copy(pair[sha256.Size:], l1[:])
	want := sha256.Sum256(pair[:])
	assert.Equal(t, want[:], MerkleV2.Sum(data))
}

func TestMerklePadsToPowerOfTwo(t *testing.T) {
	// Three leaves must verify the same as four leaves with a zero-filled tail.
	data := make([]byte, 3*LeafSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	padded := make([]byte, 4*LeafSize)
	copy(padded, data)
	assert.Equal(t, MerkleV2.Sum(padded), MerkleV2.Sum(data))
}
