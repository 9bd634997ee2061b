package peerwriter

import (
	"encoding/binary"
	"io"

	"github.com/tidetorrent/tide/internal/peerprotocol"
)

// Piece is a queued piece message. The block data is read from Data
// only when the message reaches the front of the write queue.
type Piece struct {
	Data io.ReaderAt
	peerprotocol.RequestMessage
}

func (p Piece) ID() peerprotocol.MessageID { return peerprotocol.Piece }

func (p Piece) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8+p.Length)
	binary.BigEndian.PutUint32(b[0:4], p.Index)
	binary.BigEndian.PutUint32(b[4:8], p.Begin)
	_, err := p.Data.ReadAt(b[8:], int64(p.Begin))
	return b, err
}
