// Package verifier checks the pieces already on disk against their
// expected hashes and builds the bitfield of verified pieces.
package verifier

import (
	"github.com/tidetorrent/tide/internal/bitfield"
	"github.com/tidetorrent/tide/internal/piece"
	"github.com/tidetorrent/tide/internal/piecehash"
)

// Verifier verifies the pieces on disk.
type Verifier struct {
	Bitfield *bitfield.Bitfield
	Error    error

	closeC chan struct{}
	doneC  chan struct{}
}

// Progress information about the verification.
type Progress struct {
	Checked uint32
}

// New returns a new Verifier.
func New() *Verifier {
	return &Verifier{
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close the verifier and wait until its goroutine returns.
func (v *Verifier) Close() {
	close(v.closeC)
	<-v.doneC
}

// Run and verify all pieces. The result is sent to resultC with
// Bitfield set to the verified pieces, or Error set on read failure.
func (v *Verifier) Run(pieces []piece.Piece, algo piecehash.Algorithm, progressC chan Progress, resultC chan *Verifier) {
	defer close(v.doneC)

	defer func() {
		select {
		case resultC <- v:
		case <-v.closeC:
		}
	}()

	v.Bitfield = bitfield.New(uint32(len(pieces)))
	if len(pieces) == 0 {
		return
	}
	buf := make([]byte, pieces[0].Length)
	for i := range pieces {
		p := &pieces[i]
		buf = buf[:p.Length]
		_, v.Error = p.Data.ReadAt(buf, 0)
		if v.Error != nil {
			return
		}
		if p.VerifyHash(buf, algo) {
			v.Bitfield.Set(p.Index)
		}
		select {
		case progressC <- Progress{Checked: p.Index + 1}:
		case <-v.closeC:
			return
		}
	}
}
