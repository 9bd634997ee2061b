// Package piecehash selects the digest used for piece verification.
// The algorithm is chosen once per torrent at load time.
package piecehash

import (
	"crypto/sha256"
	"hash"

	"github.com/multiformats/go-multihash"
)

// LeafSize is the block size used as merkle tree leaf length.
const LeafSize = 16 * 1024

// Algorithm is the tagged hash variant used to verify pieces of a torrent.
type Algorithm int

const (
	// SHA1 is the digest of the v1 protocol.
	SHA1 Algorithm = iota
	// SHA256 is a flat SHA-256 digest over the piece.
	SHA256
	// MerkleV2 is the v2 piece-layer digest: the root of a SHA-256
	// merkle tree built over 16 KiB leaves, zero-padded to a full tree.
	MerkleV2
)

func (a Algorithm) String() string {
	switch a {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case MerkleV2:
		return "merkle-v2"
	default:
		panic("unhandled piece hash algorithm")
	}
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	switch a {
	case SHA1:
		return 20
	default:
		return 32
	}
}

// Sum returns the digest of data.
func (a Algorithm) Sum(data []byte) []byte {
	switch a {
	case SHA1, SHA256:
		h := a.newHash()
		_, _ = h.Write(data)
		return h.Sum(nil)
	case MerkleV2:
		return merkleRoot(data)
	default:
		panic("unhandled piece hash algorithm")
	}
}

// newHash returns a hash.Hash from the multihash registry.
func (a Algorithm) newHash() hash.Hash {
	var code uint64
	switch a {
	case SHA1:
		code = multihash.SHA1
	case SHA256:
		code = multihash.SHA2_256
	default:
		panic("algorithm has no flat hash")
	}
	h, err := multihash.GetHasher(code)
	if err != nil {
		panic(err)
	}
	return h
}

// merkleRoot hashes 16 KiB leaves with SHA-256 and folds them pairwise
// up to a single root. The leaf count is padded to the next power of
// two with zero-filled leaves.
func merkleRoot(data []byte) []byte {
	numLeaves := (len(data) + LeafSize - 1) / LeafSize
	if numLeaves == 0 {
		numLeaves = 1
	}
	full := 1
	for full < numLeaves {
		full *= 2
	}
	layer := make([][sha256.Size]byte, full)
	var zero [LeafSize]byte
	for i := 0; i < full; i++ {
		begin := i * LeafSize
		switch {
		case begin >= len(data):
			layer[i] = sha256.Sum256(zero[:])
		case begin+LeafSize > len(data):
			leaf := make([]byte, LeafSize)
			copy(leaf, data[begin:])
			layer[i] = sha256.Sum256(leaf)
		default:
			layer[i] = sha256.Sum256(data[begin : begin+LeafSize])
		}
	}
	for len(layer) > 1 {
		next := make([][sha256.Size]byte, len(layer)/2)
		for i := range next {
			var pair [2 * sha256.Size]byte
			copy(pair[:sha256.Size], layer[2*i][:])
			copy(pair[sha256.Size:], layer[2*i+1][:])
			next[i] = sha256.Sum256(pair[:])
		}
		layer = next
	}
	root := make([]byte, sha256.Size)
	copy(root, layer[0][:])
	return root
}
