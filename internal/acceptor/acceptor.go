// Package acceptor accepts inbound connections and hands them
// to the torrent loop. Handshaking is done elsewhere.
package acceptor

import (
	"net"

	"github.com/tidetorrent/tide/internal/logger"
)

// Acceptor accepts connections from a listener until closed.
type Acceptor struct {
	listener net.Listener
	newConns chan net.Conn
	closeC   chan struct{}
	doneC    chan struct{}
	log      logger.Logger
}

// New returns a new Acceptor that sends accepted conns to newConns.
func New(lis net.Listener, newConns chan net.Conn, l logger.Logger) *Acceptor {
	return &Acceptor{
		listener: lis,
		newConns: newConns,
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
		log:      l,
	}
}

// Close stops the acceptor and waits until its goroutine returns.
func (a *Acceptor) Close() {
	close(a.closeC)
	a.listener.Close()
	<-a.doneC
}

// Run accepts connections in a loop. It returns when the acceptor is
// closed or the listener fails.
func (a *Acceptor) Run() {
	defer close(a.doneC)
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.closeC:
			default:
				a.log.Error(err)
			}
			return
		}
		select {
		case a.newConns <- conn:
		case <-a.closeC:
			conn.Close()
			return
		}
	}
}
