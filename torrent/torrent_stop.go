package torrent

import (
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/tidetorrent/tide/internal/handshake"
	"github.com/tidetorrent/tide/resumer"
)

func (t *Torrent) stop(err error) {
	if t.status() == Stopped {
		return
	}

	t.log.Info("stopping torrent")
	t.lastError = err
	if err != nil && err != errClosed {
		t.log.Error(err)
	}

	t.stopAcceptor()
	t.stopPeers()
	t.stopPiecedownloaders()

	if t.bitfield != nil {
		_ = t.writeBitfield()
	}
	t.writeStats()

	// Closing data is necessary to cancel ongoing IO operations on files.
	t.closeData()
	// Data must be closed before closing Allocator.
	t.stopAllocator()
	// Data must be closed before closing Verifier.
	t.stopVerifier()

	t.stopOutgoingHandshakers()
	t.stopIncomingHandshakers()

	t.resetSpeeds()

	t.addrList.Reset()

	t.errC <- t.lastError
	t.errC = nil
	t.portC = nil
	if t.doVerify {
		t.doVerify = false
		t.mBitfield.Lock()
		t.bitfield = nil
		t.mBitfield.Unlock()
		t.start()
	} else {
		t.log.Info("torrent has stopped")
	}
}

func (t *Torrent) writeStats() {
	if t.resume == nil {
		return
	}
	err := t.resume.WriteStats(resumer.Stats{
		BytesDownloaded: t.bytesDownloaded.Read(),
		BytesUploaded:   t.bytesUploaded.Read(),
		BytesWasted:     t.bytesWasted.Read(),
		SeededFor:       time.Duration(t.seededFor.Read()),
	})
	if err != nil {
		t.log.Errorf("cannot write stats to resume db: %s", err)
	}
}

func (t *Torrent) stopAllocator() {
	t.log.Debugln("stopping allocator")
	if t.allocator != nil {
		t.allocator.Close()
		t.allocator = nil
	}
}

func (t *Torrent) stopVerifier() {
	t.log.Debugln("stopping verifier")
	if t.verifier != nil {
		t.verifier.Close()
		t.verifier = nil
	}
}

func (t *Torrent) resetSpeeds() {
	t.downloadSpeed.Stop()
	t.downloadSpeed = metrics.NilMeter{}
	t.uploadSpeed.Stop()
	t.uploadSpeed = metrics.NilMeter{}
}

func (t *Torrent) stopOutgoingHandshakers() {
	t.log.Debugln("stopping outgoing handshakers")
	for oh := range t.outgoingHandshakers {
		oh.Close()
	}
	t.outgoingHandshakers = make(map[*handshake.Outgoing]struct{})
}

func (t *Torrent) stopIncomingHandshakers() {
	t.log.Debugln("stopping incoming handshakers")
	for ih := range t.incomingHandshakers {
		ih.Close()
	}
	t.incomingHandshakers = make(map[*handshake.Incoming]struct{})
}

func (t *Torrent) closeData() {
	t.log.Debugln("closing open files")
	for _, f := range t.files {
		err := f.Storage.Close()
		if err != nil {
			t.log.Error(err)
		}
	}
	t.files = nil
	t.pieces = nil
	t.piecePicker = nil
	t.bytesAllocated = 0
	t.checkedPieces = 0
}

func (t *Torrent) stopAcceptor() {
	t.log.Debugln("stopping acceptor")
	if t.acceptor != nil {
		t.acceptor.Close()
	}
	t.acceptor = nil
}

func (t *Torrent) stopPeers() {
	t.log.Debugln("closing peer connections")
	for p := range t.peers {
		t.closePeer(p)
	}
}

func (t *Torrent) stopPiecedownloaders() {
	t.log.Debugln("stopping piece downloaders")
	for _, pd := range t.pieceDownloaders {
		t.closePieceDownloader(pd)
	}
}
