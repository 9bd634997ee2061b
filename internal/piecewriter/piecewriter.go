// Package piecewriter verifies a downloaded piece and writes it to
// disk as a single batched write.
package piecewriter

import (
	"github.com/cenkalti/backoff/v3"
	"github.com/rcrowley/go-metrics"
	"github.com/tidetorrent/tide/internal/bufferpool"
	"github.com/tidetorrent/tide/internal/piece"
	"github.com/tidetorrent/tide/internal/piecehash"
	"github.com/tidetorrent/tide/internal/semaphore"
)

// PieceWriter writes the data in the buffer to disk.
// When the write keeps failing after retries the error is fatal for
// the torrent.
type PieceWriter struct {
	Piece  *piece.Piece
	Source any
	Buffer bufferpool.Buffer

	HashOK bool
	Error  error
}

// New returns a new PieceWriter for a given piece.
func New(p *piece.Piece, source any, buf bufferpool.Buffer) *PieceWriter {
	return &PieceWriter{
		Piece:  p,
		Source: source,
		Buffer: buf,
	}
}

// Run checks the hash, then writes the data in the buffer to the disk.
// The semaphore bounds the number of parallel writes. Transient write
// errors are retried with exponential backoff up to maxWriteRetries.
func (w *PieceWriter) Run(algo piecehash.Algorithm, resultC chan *PieceWriter, closeC chan struct{}, maxWriteRetries uint64, writesPerSecond, writeBytesPerSecond metrics.Meter, sem *semaphore.Semaphore) {
	w.HashOK = w.Piece.VerifyHash(w.Buffer.Data, algo)
	if w.HashOK {
		writesPerSecond.Mark(1)
		writeBytesPerSecond.Mark(int64(len(w.Buffer.Data)))
		sem.Wait()
		w.Error = w.write(maxWriteRetries)
		sem.Signal()
	}
	select {
	case resultC <- w:
	case <-closeC:
	}
}

func (w *PieceWriter) write(maxRetries uint64) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	return backoff.Retry(func() error {
		_, err := w.Piece.Data.Write(w.Buffer.Data)
		return err
	}, bo)
}
