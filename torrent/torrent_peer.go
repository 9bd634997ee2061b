package torrent

import (
	"net"

	"github.com/tidetorrent/tide/internal/bitfield"
	"github.com/tidetorrent/tide/internal/handshake"
	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/peersource"
	"github.com/tidetorrent/tide/internal/unchoker"
)

func (t *Torrent) handleNewPeers(addrs []*net.TCPAddr) {
	t.log.Debugf("received %d peer addresses", len(addrs))
	if t.status() == Stopped {
		return
	}
	if !t.completed {
		addrs = t.filterBannedIPs(addrs)
		t.addrList.Push(addrs, peersource.Manual)
		t.dialAddresses()
	}
}

func (t *Torrent) filterBannedIPs(a []*net.TCPAddr) []*net.TCPAddr {
	b := a[:0]
	for _, x := range a {
		if _, ok := t.bannedPeerIPs[x.IP.String()]; !ok {
			b = append(b, x)
		}
	}
	return b
}

func (t *Torrent) dialAddresses() {
	if t.completed {
		return
	}
	if t.status() == Stopped {
		return
	}
	peersConnected := func() int {
		return len(t.outgoingPeers) + len(t.outgoingHandshakers)
	}
	for peersConnected() < t.config.MaxPeerDial {
		addr, src := t.addrList.Pop()
		if addr == nil {
			return
		}
		ip := addr.IP.String()
		if _, ok := t.connectedPeerIPs[ip]; ok {
			continue
		}
		h := handshake.NewOutgoing(addr, src)
		t.outgoingHandshakers[h] = struct{}{}
		t.connectedPeerIPs[ip] = struct{}{}
		go h.Run(
			t.config.PeerConnectTimeout,
			t.config.PeerHandshakeTimeout,
			t.peerID,
			t.infoHash,
			t.extensions,
			t.outgoingHandshakerResultC,
		)
	}
}

func (t *Torrent) startPeer(
	conn net.Conn,
	source peersource.Source,
	peers map[*peer.Peer]struct{},
	peerID [20]byte,
	extensions [8]byte,
) {
	addr := conn.RemoteAddr().(*net.TCPAddr)
	_, ok := t.peerIDs[peerID]
	if ok {
		t.log.Debugf("peer with same id already connected. addr: %s id: %s", addr, peerID)
		conn.Close()
		t.dialAddresses()
		return
	}
	t.peerIDs[peerID] = struct{}{}

	pe := peer.New(
		conn,
		source,
		peerID,
		extensions,
		t.config.PieceReadTimeout,
		t.config.RequestTimeout,
		t.config.MinRequestsOut,
		t.config.DefaultRequestsOut,
		t.config.MaxRequestsOut,
		t.bucketDownload,
		t.bucketUpload,
	)
	t.peers[pe] = struct{}{}
	peers[pe] = struct{}{}
	pe.Bitfield = bitfield.New(t.numPieces)
	go pe.Run(t.messages, t.pieceMessagesC.SendC(), t.peerSnubbedC, t.peerDisconnectedC)
	t.sendFirstMessage(pe)
}

func (t *Torrent) sendFirstMessage(p *peer.Peer) {
	bf := t.bitfield
	if bf == nil || bf.Count() == 0 {
		return
	}
	bitfieldData := make([]byte, len(bf.Bytes()))
	copy(bitfieldData, bf.Bytes())
	msg := peerprotocol.BitfieldMessage{Data: bitfieldData}
	p.SendMessage(&msg)
}

func (t *Torrent) handlePeerSnubbed(pe *peer.Peer) {
	// Mark slow peer as snubbed to skip that peer in piece picker
	pd, ok := t.pieceDownloaders[pe]
	if !ok {
		return
	}
	// Snub timer is already stopped on choke message but may fire anyway.
	if pe.PeerChoking {
		return
	}
	pe.Snubbed = true
	t.peersSnubbed[pe] = struct{}{}
	t.pieceDownloadersSnubbed[pe] = pd
	if t.piecePicker != nil {
		t.piecePicker.HandleSnubbed(pe, pd.Piece.Index)
	}
	t.startPieceDownloaders()
}

func (t *Torrent) getPeersForUnchoker() []unchoker.Peer {
	peers := make([]unchoker.Peer, 0, len(t.peers))
	for pe := range t.peers {
		peers = append(peers, pe)
	}
	return peers
}
