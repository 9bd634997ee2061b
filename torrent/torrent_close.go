package torrent

import (
	"errors"

	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/piecedownloader"
)

var errClosed = errors.New("torrent is closed")

func (t *Torrent) close() {
	// Stop if running.
	t.stop(errClosed)

	t.downloadSpeed.Stop()
	t.uploadSpeed.Stop()
	t.writesPerSecond.Stop()
	t.writeBytesPerSecond.Stop()

	t.ram.Close()
}

func (t *Torrent) closePeer(pe *peer.Peer) {
	if pe.Closed {
		return
	}
	pe.Close()
	pe.Closed = true
	if pd, ok := t.pieceDownloaders[pe]; ok {
		t.closePieceDownloader(pd)
	}
	delete(t.peers, pe)
	delete(t.incomingPeers, pe)
	delete(t.outgoingPeers, pe)
	delete(t.peersSnubbed, pe)
	delete(t.peerIDs, pe.ID)
	delete(t.connectedPeerIPs, pe.Conn.IP())
	if t.piecePicker != nil {
		t.piecePicker.HandleDisconnect(pe)
	}
	t.unchoker.HandleDisconnect(pe)
	t.dialAddresses()
}

func (t *Torrent) closePieceDownloader(pd *piecedownloader.PieceDownloader) {
	pe := pd.Peer.(*peer.Peer)
	_, open := t.pieceDownloaders[pe]
	if !open {
		return
	}
	delete(t.pieceDownloaders, pe)
	delete(t.pieceDownloadersSnubbed, pe)
	delete(t.pieceDownloadersChoked, pe)
	if t.piecePicker != nil {
		t.piecePicker.HandleCancelDownload(pe, pd.Piece.Index)
	}
	pe.Downloading = false
	t.ram.Release(int(t.pieceLength))
}
