package peer

import "github.com/tidetorrent/tide/internal/peerconn/peerreader"

// Message is a message received from the peer, wrapped with the peer
// so the torrent loop knows the sender.
type Message struct {
	*Peer
	Message any
}

// PieceMessage is a piece block received from the peer.
type PieceMessage struct {
	*Peer
	Piece peerreader.Piece
}
