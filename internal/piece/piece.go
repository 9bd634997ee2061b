// Package piece provides the Piece model and block calculation over pieces.
package piece

import (
	"bytes"

	"github.com/tidetorrent/tide/internal/filesection"
	"github.com/tidetorrent/tide/internal/piecehash"
)

// BlockSize is the size of a block, the unit requested from peers.
const BlockSize = 16 * 1024

// Piece of a torrent.
type Piece struct {
	Index   uint32 // index in torrent
	Length  uint32 // always equal to the piece length in the descriptor, except the last piece
	Data    filesection.Piece
	Hash    []byte // expected digest of the piece content
	Done    bool   // piece is downloaded and hash checked
	Writing bool   // piece is being written to disk
}

// File is an opened file of the torrent together with its length.
type File struct {
	Data   filesection.ReadWriterAt
	Length int64
}

// NewPieces returns a slice of Pieces by mapping files onto fixed-length pieces.
func NewPieces(pieceLength uint32, hashes [][]byte, files []File) []Piece {
	var total int64
	for _, f := range files {
		total += f.Length
	}
	var (
		fileIndex  int
		fileLength = files[0].Length
		fileOffset int64
		remaining  = total
	)
	fileLeft := func() int64 { return fileLength - fileOffset }
	nextFile := func() {
		fileIndex++
		fileLength = files[fileIndex].Length
		fileOffset = 0
	}

	pieces := make([]Piece, len(hashes))
	for i := range pieces {
		p := Piece{
			Index: uint32(i),
			Hash:  hashes[i],
		}
		left := int64(pieceLength)
		if remaining < left {
			left = remaining
		}
		for left > 0 {
			if fileLeft() == 0 {
				nextFile()
			}
			n := fileLeft()
			if left < n {
				n = left
			}
			p.Data = append(p.Data, filesection.FileSection{
				File:   files[fileIndex].Data,
				Offset: fileOffset,
				Length: n,
			})
			p.Length += uint32(n)
			fileOffset += n
			remaining -= n
			left -= n
		}
		pieces[i] = p
	}
	return pieces
}

// Block is a part of a Piece that is requested from peers.
type Block struct {
	Index  uint32 // index in piece
	Begin  uint32 // offset in piece
	Length uint32
}

// NumBlocks returns the number of blocks in the piece.
func (p *Piece) NumBlocks() int {
	div, mod := p.Length/BlockSize, p.Length%BlockSize
	if mod != 0 {
		return int(div) + 1
	}
	return int(div)
}

// CalculateBlocks returns the blocks of the piece in consecutive order.
func (p *Piece) CalculateBlocks() []Block {
	blocks := make([]Block, p.NumBlocks())
	for i := range blocks {
		begin := uint32(i) * BlockSize
		length := uint32(BlockSize)
		if begin+length > p.Length {
			length = p.Length - begin
		}
		blocks[i] = Block{
			Index:  uint32(i),
			Begin:  begin,
			Length: length,
		}
	}
	return blocks
}

// FindBlock returns the block at begin with the given length.
func (p *Piece) FindBlock(begin, length uint32) (b Block, ok bool) {
	idx, mod := begin/BlockSize, begin%BlockSize
	if mod != 0 {
		return
	}
	if int(idx) >= p.NumBlocks() {
		return
	}
	want := uint32(BlockSize)
	if begin+want > p.Length {
		want = p.Length - begin
	}
	if length != want {
		return
	}
	return Block{Index: idx, Begin: begin, Length: length}, true
}

// VerifyHash returns true if the digest of data matches the expected hash of the piece.
func (p *Piece) VerifyHash(data []byte, a piecehash.Algorithm) bool {
	if uint32(len(data)) != p.Length {
		return false
	}
	return bytes.Equal(a.Sum(data), p.Hash)
}
