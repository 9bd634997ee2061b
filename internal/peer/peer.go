// Package peer tracks the state of a single remote peer over the
// lifetime of its connection.
package peer

import (
	"math"
	"net"
	"time"

	"github.com/juju/ratelimit"
	"github.com/rcrowley/go-metrics"
	"github.com/tidetorrent/tide/internal/bitfield"
	"github.com/tidetorrent/tide/internal/logger"
	"github.com/tidetorrent/tide/internal/peerconn"
	"github.com/tidetorrent/tide/internal/peerconn/peerreader"
	"github.com/tidetorrent/tide/internal/peerconn/peerwriter"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/peersource"
	"github.com/tidetorrent/tide/internal/piece"
)

// Peer of a torrent. All fields except the embedded Conn are owned by
// the torrent loop goroutine.
type Peer struct {
	*peerconn.Conn

	ConnectedAt time.Time
	Source      peersource.Source
	ID          [20]byte
	Extensions  [8]byte

	ClientInterested bool
	ClientChoking    bool
	PeerInterested   bool
	PeerChoking      bool

	OptimisticUnchoked bool

	// Pieces the peer has announced with bitfield and have messages.
	Bitfield *bitfield.Bitfield

	// Set when a piece is being downloaded from this peer.
	Downloading bool

	// Set when the peer did not deliver a requested block in time.
	Snubbed bool

	// Number of piece uploads queued on the writer, bounded by the
	// torrent to keep a misbehaving peer from exhausting the queue.
	QueuedUploads int

	// Set by the torrent loop after closing the peer. Guards against
	// closing twice.
	Closed bool

	// Protocol violations counted against the peer.
	misbehavior int

	downloadSpeed metrics.Meter
	uploadSpeed   metrics.Meter

	// Bounds for the adaptive request queue length. defaultQueue is
	// used until the download speed is measured.
	minQueue     int
	defaultQueue int
	maxQueue     int

	snubTimeout time.Duration
	snubTimer   *time.Timer

	closeC chan struct{}
	doneC  chan struct{}
}

// New returns a new Peer over an already handshaked connection.
func New(conn net.Conn, source peersource.Source, id [20]byte, extensions [8]byte, pieceReadTimeout, snubTimeout time.Duration, minQueue, defaultQueue, maxQueue int, br, bw *ratelimit.Bucket) *Peer {
	var arrow string
	switch source {
	case peersource.Incoming:
		arrow = "<- "
	default:
		arrow = "-> "
	}
	l := logger.New("peer " + arrow + conn.RemoteAddr().String())
	return &Peer{
		Conn:          peerconn.New(conn, l, pieceReadTimeout, br, bw),
		ConnectedAt:   time.Now(),
		Source:        source,
		ID:            id,
		Extensions:    extensions,
		ClientChoking: true,
		PeerChoking:   true,
		downloadSpeed: metrics.NewMeter(),
		uploadSpeed:   metrics.NewMeter(),
		minQueue:      minQueue,
		defaultQueue:  defaultQueue,
		maxQueue:      maxQueue,
		snubTimeout:   snubTimeout,
		closeC:        make(chan struct{}),
		doneC:         make(chan struct{}),
	}
}

// Close the connection and wait until the peer goroutine returns.
func (p *Peer) Close() {
	close(p.closeC)
	p.Conn.Close()
	<-p.doneC
	p.downloadSpeed.Stop()
	p.uploadSpeed.Stop()
}

// Done returns a channel that is closed when the peer goroutine exits.
func (p *Peer) Done() chan struct{} {
	return p.doneC
}

// Run forwards messages from the connection to the torrent loop.
// Piece blocks go to the pieces channel which may be suspended by the
// torrent during disk backpressure, other messages go to messages.
func (p *Peer) Run(messages chan Message, pieces chan PieceMessage, snubbedC, disconnectedC chan *Peer) {
	defer close(p.doneC)
	go p.Conn.Run()

	p.snubTimer = time.NewTimer(math.MaxInt64)
	defer p.snubTimer.Stop()

	for {
		select {
		case pm, ok := <-p.Conn.Messages():
			if !ok {
				select {
				case disconnectedC <- p:
				case <-p.closeC:
				}
				return
			}
			if m, ok := pm.(peerreader.Piece); ok {
				p.downloadSpeed.Mark(int64(len(m.Buffer.Data)))
				select {
				case pieces <- PieceMessage{Peer: p, Piece: m}:
				case <-p.closeC:
					m.Buffer.Release()
					return
				}
			} else {
				if m, ok := pm.(peerwriter.BlockUploaded); ok {
					p.uploadSpeed.Mark(int64(m.Length))
				}
				select {
				case messages <- Message{Peer: p, Message: pm}:
				case <-p.closeC:
					return
				}
			}
		case <-p.snubTimer.C:
			select {
			case snubbedC <- p:
			case <-p.closeC:
				return
			}
		case <-p.closeC:
			return
		}
	}
}

// ResetSnubTimer is called after a block is requested from the peer.
// The peer is reported as snubbed if no block arrives before the
// timer fires.
func (p *Peer) ResetSnubTimer() {
	p.snubTimer.Reset(p.snubTimeout)
}

// StopSnubTimer is called when no more blocks are expected.
func (p *Peer) StopSnubTimer() {
	p.snubTimer.Stop()
}

// QueueLength returns the number of block requests to keep in flight,
// sized so that the pipe stays full for one snub timeout at the
// current download rate.
func (p *Peer) QueueLength() int {
	rate := p.downloadSpeed.Rate1()
	if rate == 0 {
		return p.defaultQueue
	}
	n := int(rate * p.snubTimeout.Seconds() / piece.BlockSize)
	if n < p.minQueue {
		n = p.minQueue
	}
	if n > p.maxQueue {
		n = p.maxQueue
	}
	return n
}

// Misbehave increases the misbehavior score of the peer by n.
// Returns true when the score crosses the limit and the peer should
// be disconnected and banned.
func (p *Peer) Misbehave(n, limit int) bool {
	p.misbehavior += n
	return p.misbehavior >= limit
}

// DownloadSpeed of the peer in bytes per second.
func (p *Peer) DownloadSpeed() int {
	return int(p.downloadSpeed.Rate1())
}

// UploadSpeed to the peer in bytes per second.
func (p *Peer) UploadSpeed() int {
	return int(p.uploadSpeed.Rate1())
}

// RequestPiece requests a block of a piece from the peer.
func (p *Peer) RequestPiece(index, begin, length uint32) {
	msg := peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length}
	p.SendMessage(msg)
}

// CancelPiece cancels a previously sent block request.
func (p *Peer) CancelPiece(index, begin, length uint32) {
	msg := peerprotocol.CancelMessage{RequestMessage: peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length}}
	p.SendMessage(msg)
}

// Choke the peer and cancel queued piece uploads.
func (p *Peer) Choke() {
	p.ClientChoking = true
	p.QueuedUploads = 0
	p.SendMessage(peerprotocol.ChokeMessage{})
}

// Unchoke the peer so it can request pieces.
func (p *Peer) Unchoke() {
	p.ClientChoking = false
	p.SendMessage(peerprotocol.UnchokeMessage{})
}

// Choking returns true if we are choking the peer.
func (p *Peer) Choking() bool {
	return p.ClientChoking
}

// Interested returns true if the peer is interested in our pieces.
func (p *Peer) Interested() bool {
	return p.PeerInterested
}

// SetOptimistic sets the optimistic unchoke status of the peer.
func (p *Peer) SetOptimistic(value bool) {
	p.OptimisticUnchoked = value
}

// Optimistic returns the optimistic unchoke status of the peer.
func (p *Peer) Optimistic() bool {
	return p.OptimisticUnchoked
}
