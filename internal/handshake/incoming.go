package handshake

import (
	"net"
	"time"

	"github.com/tidetorrent/tide/internal/logger"
)

// Incoming does the BitTorrent handshake on an accepted connection.
type Incoming struct {
	Conn       net.Conn
	PeerID     [20]byte
	Extensions [8]byte
	Error      error

	closeC chan struct{}
	doneC  chan struct{}
}

// NewIncoming returns a new Incoming handshaker for an accepted connection.
func NewIncoming(conn net.Conn) *Incoming {
	return &Incoming{
		Conn:   conn,
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close the handshaker and wait until its goroutine returns.
func (h *Incoming) Close() {
	close(h.closeC)
	<-h.doneC
}

// Run completes the handshake with the remote side.
// The result is always sent to resultC, with Error set on failure.
func (h *Incoming) Run(handshakeTimeout time.Duration, peerID, infoHash [20]byte, extensions [8]byte, resultC chan *Incoming) {
	defer close(h.doneC)
	log := logger.New("peer <- " + h.Conn.RemoteAddr().String())

	err := h.shake(handshakeTimeout, peerID, infoHash, extensions)
	if err != nil {
		log.Debugln("cannot complete incoming handshake:", err)
		h.Conn.Close()
		h.Error = err
	}
	select {
	case resultC <- h:
	case <-h.closeC:
		h.Conn.Close()
	}
}

func (h *Incoming) shake(handshakeTimeout time.Duration, peerID, infoHash [20]byte, extensions [8]byte) (err error) {
	if err = h.Conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}
	h.Extensions, _, err = read1Checked(h.Conn, infoHash)
	if err != nil {
		return
	}
	if err = Write(h.Conn, infoHash, peerID, extensions); err != nil {
		return
	}
	h.PeerID, err = Read2(h.Conn)
	if err != nil {
		return
	}
	if h.PeerID == peerID {
		return ErrOwnConnection
	}
	return h.Conn.SetDeadline(time.Time{})
}
