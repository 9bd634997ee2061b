package piecedownloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidetorrent/tide/internal/bufferpool"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/piece"
)

type Message = peerprotocol.RequestMessage

const blockSize = piece.BlockSize

type TestPeer struct {
	requested []Message
	canceled  []Message
}

func (p *TestPeer) RequestPiece(index, begin, length uint32) {
	p.requested = append(p.requested, Message{Index: index, Begin: begin, Length: length})
}

func (p *TestPeer) CancelPiece(index, begin, length uint32) {
	p.canceled = append(p.canceled, Message{Index: index, Begin: begin, Length: length})
}

func TestPieceDownloader(t *testing.T) {
	bp := bufferpool.New(6 * blockSize)
	buf := bp.Get(4*blockSize + 21)
	pi := &piece.Piece{
		Index:  1,
		Length: 4*blockSize + 21,
	}
	pe := &TestPeer{}
	d := New(pi, pe, buf)
	assert.Equal(t, 5, len(d.remaining))
	assert.Equal(t, 0, len(d.pending))
	assert.Equal(t, 0, len(d.done))
	assert.False(t, d.Done())

	d.RequestBlocks(2)
	assert.Equal(t, 3, len(d.remaining))
	assert.Equal(t, 2, len(d.pending))
	assert.Equal(t, []Message{
		{Index: 1, Begin: 0 * blockSize, Length: blockSize},
		{Index: 1, Begin: 1 * blockSize, Length: blockSize},
	}, pe.requested)

	// Queue is full, no new requests.
	d.RequestBlocks(2)
	assert.Equal(t, 3, len(d.remaining))
	assert.Equal(t, 2, len(d.pending))
	assert.Equal(t, 2, len(pe.requested))

	assert.Nil(t, d.GotBlock(0, make([]byte, blockSize)))
	assert.Equal(t, 1, len(d.pending))
	assert.Equal(t, 1, len(d.done))

	// Duplicate block
	assert.Equal(t, ErrBlockDuplicate, d.GotBlock(0, make([]byte, blockSize)))

	// Block at a bad boundary
	assert.Equal(t, ErrBlockInvalid, d.GotBlock(42, make([]byte, blockSize)))

	// Not requested yet
	assert.Equal(t, ErrBlockNotRequested, d.GotBlock(3*blockSize, make([]byte, blockSize)))
	assert.Equal(t, 2, len(d.done))

	d.RequestBlocks(2)
	assert.Nil(t, d.GotBlock(1*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(2*blockSize, make([]byte, blockSize)))

	// Choke returns pending requests to the remaining list.
	d.RequestBlocks(2)
	assert.Equal(t, 2, len(d.pending))
	d.Choked()
	assert.Equal(t, 0, len(d.pending))
	assert.Equal(t, 2, len(d.remaining))

	d.RequestBlocks(99)
	assert.Nil(t, d.GotBlock(4*blockSize, make([]byte, 21)))
	assert.Equal(t, 0, len(d.remaining))
	assert.Equal(t, 0, len(d.pending))
	assert.Equal(t, 5, len(d.done))
	assert.True(t, d.Done())
}

func TestCancelPending(t *testing.T) {
	bp := bufferpool.New(2 * blockSize)
	buf := bp.Get(2 * blockSize)
	pi := &piece.Piece{Index: 3, Length: 2 * blockSize}
	pe := &TestPeer{}
	d := New(pi, pe, buf)
	d.RequestBlocks(1)
	d.CancelPending()
	assert.Equal(t, []Message{{Index: 3, Begin: 0, Length: blockSize}}, pe.canceled)
}
