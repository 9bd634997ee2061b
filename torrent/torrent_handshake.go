package torrent

import (
	"net"

	"github.com/tidetorrent/tide/internal/handshake"
	"github.com/tidetorrent/tide/internal/peersource"
)

func (t *Torrent) handleIncomingHandshakeDone(ih *handshake.Incoming) {
	delete(t.incomingHandshakers, ih)
	if ih.Error != nil {
		delete(t.connectedPeerIPs, ih.Conn.RemoteAddr().(*net.TCPAddr).IP.String())
		return
	}
	t.startPeer(ih.Conn, peersource.Incoming, t.incomingPeers, ih.PeerID, ih.Extensions)
}

func (t *Torrent) handleOutgoingHandshakeDone(oh *handshake.Outgoing) {
	delete(t.outgoingHandshakers, oh)
	if oh.Error != nil {
		delete(t.connectedPeerIPs, oh.Addr.IP.String())
		t.dialAddresses()
		return
	}
	t.startPeer(oh.Conn, oh.Source, t.outgoingPeers, oh.PeerID, oh.Extensions)
}
