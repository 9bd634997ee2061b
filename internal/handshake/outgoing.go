package handshake

import (
	"net"
	"time"

	"github.com/tidetorrent/tide/internal/logger"
	"github.com/tidetorrent/tide/internal/peersource"
)

// Outgoing does the BitTorrent handshake on a connection we dialed.
type Outgoing struct {
	Addr       *net.TCPAddr
	Source     peersource.Source
	Conn       net.Conn
	PeerID     [20]byte
	Extensions [8]byte
	Error      error

	closeC chan struct{}
	doneC  chan struct{}
}

// NewOutgoing returns a new Outgoing handshaker for a TCP address.
func NewOutgoing(addr *net.TCPAddr, source peersource.Source) *Outgoing {
	return &Outgoing{
		Addr:   addr,
		Source: source,
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close the handshaker and wait until its goroutine returns.
func (h *Outgoing) Close() {
	close(h.closeC)
	<-h.doneC
}

// Run dials the address and completes the handshake.
// The result is always sent to resultC, with Error set on failure.
func (h *Outgoing) Run(dialTimeout, handshakeTimeout time.Duration, peerID, infoHash [20]byte, extensions [8]byte, resultC chan *Outgoing) {
	defer close(h.doneC)
	log := logger.New("peer -> " + h.Addr.String())

	conn, err := h.dialAndShake(dialTimeout, handshakeTimeout, peerID, infoHash, extensions)
	if err != nil {
		switch err {
		case ErrOwnConnection, ErrInvalidProtocol, ErrWrongInfoHash:
			log.Debugln("handshake failed:", err)
		default:
			log.Debugln("cannot complete outgoing handshake:", err)
		}
		h.Error = err
	} else {
		h.Conn = conn
	}
	select {
	case resultC <- h:
	case <-h.closeC:
		if conn != nil {
			conn.Close()
		}
	}
}

func (h *Outgoing) dialAndShake(dialTimeout, handshakeTimeout time.Duration, peerID, infoHash [20]byte, extensions [8]byte) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.Dial("tcp4", h.Addr.String())
	if err != nil {
		return nil, err
	}
	fail := func(err error) (net.Conn, error) {
		conn.Close()
		return nil, err
	}
	if err = conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return fail(err)
	}
	if err = Write(conn, infoHash, peerID, extensions); err != nil {
		return fail(err)
	}
	h.Extensions, _, err = read1Checked(conn, infoHash)
	if err != nil {
		return fail(err)
	}
	h.PeerID, err = Read2(conn)
	if err != nil {
		return fail(err)
	}
	if h.PeerID == peerID {
		return fail(ErrOwnConnection)
	}
	if err = conn.SetDeadline(time.Time{}); err != nil {
		return fail(err)
	}
	return conn, nil
}

func read1Checked(conn net.Conn, infoHash [20]byte) (extensions [8]byte, ih [20]byte, err error) {
	extensions, ih, err = Read1(conn)
	if err != nil {
		return
	}
	if ih != infoHash {
		err = ErrWrongInfoHash
	}
	return
}
