package torrent

import (
	"errors"

	"github.com/tidetorrent/tide/internal/piecehash"
	"github.com/tidetorrent/tide/resumer"
	"github.com/tidetorrent/tide/storage"
)

// HashAlgorithm used to verify downloaded pieces.
type HashAlgorithm int

const (
	// HashSHA1 is the BitTorrent v1 piece hash.
	HashSHA1 HashAlgorithm = iota
	// HashSHA256 hashes the whole piece with SHA-256.
	HashSHA256
	// HashMerkleV2 is the BitTorrent v2 piece root, the merkle root of
	// the 16 KiB leaf hashes of the piece.
	HashMerkleV2
)

func (a HashAlgorithm) algorithm() piecehash.Algorithm {
	switch a {
	case HashSHA256:
		return piecehash.SHA256
	case HashMerkleV2:
		return piecehash.MerkleV2
	default:
		return piecehash.SHA1
	}
}

// FileSpec describes a single file of the download.
type FileSpec struct {
	// Path of the file relative to the storage root.
	Path string
	// Length of the file in bytes.
	Length int64
}

// Spec describes the content of a download.
// Parsing torrent metadata is out of scope of this package; the caller
// supplies the piece hashes and the file layout from wherever it
// obtained them.
type Spec struct {
	InfoHash [20]byte
	// Display name, used in logs.
	Name string
	// Length of a piece in bytes. The last piece may be shorter.
	PieceLength uint32
	// Expected digest per piece.
	Hashes [][]byte
	// Algorithm that produced the digests in Hashes.
	Hash HashAlgorithm
	// Files of the download, in piece mapping order.
	Files []FileSpec
	// Storage the files are written to.
	Storage storage.Storage
	// Optional resumer that saves the bitfield and transfer counters.
	Resumer resumer.Resumer
	// Optional bitfield marking the pieces already downloaded.
	Bitfield []byte
	// Peer listen port. A random port is picked if zero.
	Port int
}

func (s *Spec) validate() error {
	if s.PieceLength == 0 {
		return errors.New("zero piece length")
	}
	if len(s.Hashes) == 0 {
		return errors.New("torrent has zero pieces")
	}
	if len(s.Files) == 0 {
		return errors.New("torrent has no files")
	}
	if s.Storage == nil {
		return errors.New("no storage")
	}
	hashSize := s.Hash.algorithm().Size()
	for _, h := range s.Hashes {
		if len(h) != hashSize {
			return errors.New("piece hash length does not match the hash algorithm")
		}
	}
	var total int64
	for _, f := range s.Files {
		if f.Length < 0 {
			return errors.New("negative file length")
		}
		total += f.Length
	}
	if total == 0 {
		return errors.New("torrent has zero length")
	}
	pieces := (total + int64(s.PieceLength) - 1) / int64(s.PieceLength)
	if pieces != int64(len(s.Hashes)) {
		return errors.New("number of piece hashes does not match the total length")
	}
	return nil
}

func (s *Spec) totalLength() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Length
	}
	return total
}
