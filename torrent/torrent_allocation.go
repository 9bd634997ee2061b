package torrent

import (
	"fmt"

	"github.com/tidetorrent/tide/internal/allocator"
	"github.com/tidetorrent/tide/internal/bitfield"
	"github.com/tidetorrent/tide/internal/piece"
	"github.com/tidetorrent/tide/internal/piecepicker"
)

func (t *Torrent) handleAllocationDone(al *allocator.Allocator) {
	if t.allocator != al {
		panic("invalid allocator")
	}
	t.allocator = nil

	if al.Error != nil {
		t.stop(fmt.Errorf("file allocation error: %s", al.Error))
		return
	}

	if t.files != nil {
		panic("files exist")
	}
	t.files = al.Files

	if t.pieces != nil {
		panic("pieces exists")
	}
	files := make([]piece.File, len(t.files))
	for i := range t.files {
		files[i] = piece.File{Data: t.files[i].Storage, Length: t.fileSpecs[i].Length}
	}
	pieces := piece.NewPieces(t.pieceLength, t.hashes, files)
	if len(pieces) == 0 {
		t.stop(fmt.Errorf("torrent has zero pieces"))
		return
	}
	t.pieces = pieces

	if t.piecePicker != nil {
		panic("piece picker exists")
	}
	t.piecePicker = piecepicker.New(t.pieces, t.pickerMode(), t.config.EndgameMaxDuplicateDownloads, t.config.EndgameThreshold)
	for i, pri := range t.priorities {
		t.piecePicker.SetPriority(i, pri.priority())
	}

	// Register pieces announced by peers that connected before
	// allocation finished.
	for pe := range t.peers {
		for i := uint32(0); i < pe.Bitfield.Len(); i++ {
			if pe.Bitfield.Test(i) {
				t.piecePicker.HandleHave(pe, i)
			}
		}
	}

	// If we already have a bitfield from the resume db, skip
	// verification and start downloading.
	if t.bitfield != nil && !al.HasMissing && !t.config.VerifyOnStartup {
		for i := uint32(0); i < t.bitfield.Len(); i++ {
			t.pieces[i].Done = t.bitfield.Test(i)
		}
		t.checkCompletion()
		t.startAcceptor()
		t.startPieceDownloaders()
		return
	}

	// No need to verify files if they didn't exist when we created them.
	if !al.HasExisting {
		t.mBitfield.Lock()
		t.bitfield = bitfield.New(t.numPieces)
		t.mBitfield.Unlock()
		t.startAcceptor()
		t.startPieceDownloaders()
		return
	}

	// Some files exist on the disk, verify pieces to construct a
	// correct bitfield.
	t.startVerifier()
}

func (t *Torrent) pickerMode() piecepicker.Mode {
	switch t.config.SelectionMode {
	case SelectSequential:
		return piecepicker.Sequential
	case SelectRoundRobin:
		return piecepicker.RoundRobin
	default:
		return piecepicker.RarestFirst
	}
}
