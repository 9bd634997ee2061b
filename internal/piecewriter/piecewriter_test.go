package piecewriter

import (
	"errors"
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidetorrent/tide/internal/bufferpool"
	"github.com/tidetorrent/tide/internal/filesection"
	"github.com/tidetorrent/tide/internal/piece"
	"github.com/tidetorrent/tide/internal/piecehash"
	"github.com/tidetorrent/tide/internal/semaphore"
)

type countingWriter struct {
	calls int
	data  []byte
	err   error
}

func (w *countingWriter) WriteAt(p []byte, off int64) (int, error) {
	w.calls++
	if w.err != nil {
		return 0, w.err
	}
	copy(w.data[off:], p)
	return len(p), nil
}

func (w *countingWriter) ReadAt(p []byte, off int64) (int, error) {
	copy(p, w.data[off:])
	return len(p), nil
}

func newPiece(fs filesection.ReadWriterAt, length uint32, data []byte) *piece.Piece {
	return &piece.Piece{
		Index:  0,
		Length: length,
		Hash:   piecehash.SHA1.Sum(data),
		Data: filesection.Piece{
			{File: fs, Offset: 0, Length: int64(length)},
		},
	}
}

func run(w *PieceWriter, maxRetries uint64) *PieceWriter {
	resultC := make(chan *PieceWriter, 1)
	closeC := make(chan struct{})
	sem := semaphore.New(1)
	w.Run(piecehash.SHA1, resultC, closeC, maxRetries, metrics.NilMeter{}, metrics.NilMeter{}, sem)
	return <-resultC
}

func TestWriteBatchesBlocks(t *testing.T) {
	data := []byte("0123456789abcdef")
	cw := &countingWriter{data: make([]byte, len(data))}
	pi := newPiece(cw, uint32(len(data)), data)

	bp := bufferpool.New(len(data))
	buf := bp.Get(len(data))
	// Stage the piece content as two block arrivals.
	copy(buf.Data[0:8], data[0:8])
	copy(buf.Data[8:], data[8:])

	w := run(New(pi, nil, buf), 0)
	require.NoError(t, w.Error)
	assert.True(t, w.HashOK)
	// All staged blocks hit the disk in a single write call.
	assert.Equal(t, 1, cw.calls)
	assert.Equal(t, data, cw.data)
}

func TestHashMismatch(t *testing.T) {
	data := []byte("0123456789abcdef")
	cw := &countingWriter{data: make([]byte, len(data))}
	pi := newPiece(cw, uint32(len(data)), data)

	bp := bufferpool.New(len(data))
	buf := bp.Get(len(data))
	copy(buf.Data, data)
	buf.Data[3] ^= 0xff

	w := run(New(pi, nil, buf), 0)
	assert.False(t, w.HashOK)
	// Corrupt data must never be written.
	assert.Equal(t, 0, cw.calls)
}

func TestWriteError(t *testing.T) {
	data := []byte("0123456789abcdef")
	cw := &countingWriter{data: make([]byte, len(data)), err: errors.New("disk gone")}
	pi := newPiece(cw, uint32(len(data)), data)

	bp := bufferpool.New(len(data))
	buf := bp.Get(len(data))
	copy(buf.Data, data)

	w := run(New(pi, nil, buf), 0)
	assert.True(t, w.HashOK)
	assert.Error(t, w.Error)
	assert.Equal(t, 1, cw.calls)
}
