package torrent

import (
	"time"

	"github.com/tidetorrent/tide/internal/handshake"
)

func (t *Torrent) writeBitfield() error {
	if t.resume == nil {
		return nil
	}
	err := t.resume.WriteBitfield(t.bitfield.Bytes())
	if err != nil {
		t.log.Errorf("cannot write bitfield to resume db: %s", err)
	}
	return err
}

func (t *Torrent) checkCompletion() bool {
	if t.completed {
		return true
	}
	if !t.bitfield.All() {
		return false
	}
	t.completed = true
	close(t.completeC)
	for h := range t.outgoingHandshakers {
		h.Close()
	}
	t.outgoingHandshakers = make(map[*handshake.Outgoing]struct{})
	for pe := range t.peers {
		if !pe.PeerInterested {
			t.closePeer(pe)
		}
	}
	t.addrList.Reset()
	for _, pd := range t.pieceDownloaders {
		t.closePieceDownloader(pd)
		pd.CancelPending()
	}
	t.piecePicker = nil
	t.updateSeedDuration(time.Now())
	return true
}
