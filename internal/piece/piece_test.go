package piece

import (
	"testing"

	"github.com/tidetorrent/tide/internal/piecehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopFile struct{}

func (nopFile) ReadAt(p []byte, off int64) (int, error)  { return len(p), nil }
func (nopFile) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }

func TestNewPieces(t *testing.T) {
	// 2 files of 5+8 bytes, piece length 4 -> pieces of 4,4,4,1.
	files := []File{
		{Data: nopFile{}, Length: 5},
		{Data: nopFile{}, Length: 8},
	}
	hashes := make([][]byte, 4)
	pieces := NewPieces(4, hashes, files)
	require.Len(t, pieces, 4)

	assert.Equal(t, uint32(4), pieces[0].Length)
	assert.Len(t, pieces[0].Data, 1)

	// second piece spans the file boundary
	assert.Equal(t, uint32(4), pieces[1].Length)
	assert.Len(t, pieces[1].Data, 2)
	assert.Equal(t, int64(1), pieces[1].Data[0].Length)
	assert.Equal(t, int64(3), pieces[1].Data[1].Length)

	// last piece is short
	assert.Equal(t, uint32(1), pieces[3].Length)
}

func TestBlocks(t *testing.T) {
	p := Piece{Index: 1, Length: 2*BlockSize + 42}
	blocks := p.CalculateBlocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, Block{Index: 0, Begin: 0, Length: BlockSize}, blocks[0])
	assert.Equal(t, Block{Index: 2, Begin: 2 * BlockSize, Length: 42}, blocks[2])

	b, ok := p.FindBlock(BlockSize, BlockSize)
	require.True(t, ok)
	assert.Equal(t, blocks[1], b)

	_, ok = p.FindBlock(BlockSize+1, BlockSize)
	assert.False(t, ok, "unaligned begin")

	_, ok = p.FindBlock(2*BlockSize, BlockSize)
	assert.False(t, ok, "wrong length for last block")

	_, ok = p.FindBlock(3*BlockSize, 42)
	assert.False(t, ok, "block out of range")
}

func TestVerifyHash(t *testing.T) {
	data := []byte("some piece content")
	p := Piece{Length: uint32(len(data)), Hash: piecehash.SHA1.Sum(data)}
	assert.True(t, p.VerifyHash(data, piecehash.SHA1))
	assert.False(t, p.VerifyHash(append([]byte{0}, data[1:]...), piecehash.SHA1))
	assert.False(t, p.VerifyHash(data[1:], piecehash.SHA1))
}
