package torrent

import (
	"net"

	"github.com/tidetorrent/tide/internal/handshake"
)

func (t *Torrent) handleNewConnection(conn net.Conn) {
	if len(t.incomingHandshakers)+len(t.incomingPeers) >= t.config.MaxPeerAccept {
		t.log.Debugln("peer limit reached, rejecting peer", conn.RemoteAddr().String())
		conn.Close()
		return
	}
	ipstr := conn.RemoteAddr().(*net.TCPAddr).IP.String()
	if _, ok := t.connectedPeerIPs[ipstr]; ok {
		t.log.Debugln("received duplicate connection from same IP: ", ipstr)
		conn.Close()
		return
	}
	if _, ok := t.bannedPeerIPs[ipstr]; ok {
		t.log.Debugln("connection attempt from banned IP: ", ipstr)
		conn.Close()
		return
	}
	h := handshake.NewIncoming(conn)
	t.incomingHandshakers[h] = struct{}{}
	t.connectedPeerIPs[ipstr] = struct{}{}
	go h.Run(
		t.config.PeerHandshakeTimeout,
		t.peerID,
		t.infoHash,
		t.extensions,
		t.incomingHandshakerResultC,
	)
}
