package torrent

import (
	"net"

	"github.com/tidetorrent/tide/internal/piecepicker"
)

// Priority band of a piece. Higher bands are downloaded first.
type Priority int

// Piece priorities.
const (
	// PriorityDoNotDownload excludes the piece from selection.
	PriorityDoNotDownload Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityMaximum
)

func (p Priority) priority() piecepicker.Priority {
	switch p {
	case PriorityDoNotDownload:
		return piecepicker.DoNotDownload
	case PriorityLow:
		return piecepicker.Low
	case PriorityHigh:
		return piecepicker.High
	case PriorityMaximum:
		return piecepicker.Maximum
	default:
		return piecepicker.Normal
	}
}

// Start downloading.
// After all pieces are downloaded, seeding continues until the torrent
// is stopped.
func (t *Torrent) Start() {
	select {
	case t.startCommandC <- struct{}{}:
	case <-t.closeC:
	}
}

// Stop downloading and seeding.
// Stop closes all peer connections.
func (t *Torrent) Stop() {
	select {
	case t.stopCommandC <- struct{}{}:
	case <-t.closeC:
	}
}

// Verify pieces by re-checking the files on disk.
// A running torrent is stopped first and restarted through the
// verifier.
func (t *Torrent) Verify() {
	select {
	case t.verifyCommandC <- struct{}{}:
	case <-t.closeC:
	}
}

// Close this torrent and release all resources.
// Close must be called before discarding the torrent.
func (t *Torrent) Close() {
	t.closeOnce.Do(func() { close(t.closeC) })
	<-t.doneC
}

// AddPeers adds known addresses of remote peers.
// The engine does no discovery of its own; trackers, DHT or any other
// source must feed addresses through this call.
func (t *Torrent) AddPeers(addrs []*net.TCPAddr) {
	select {
	case t.addPeersCommandC <- addrs:
	case <-t.closeC:
	}
}

// SetPiecePriority sets the priority band of the piece at index i.
func (t *Torrent) SetPiecePriority(i uint32, pri Priority) {
	select {
	case t.setPriorityCommandC <- priorityCommand{Index: i, Priority: pri}:
	case <-t.closeC:
	}
}

// NotifyComplete returns a channel that is closed once all pieces are
// downloaded and verified.
func (t *Torrent) NotifyComplete() <-chan struct{} {
	return t.completeC
}

type notifyErrorCommand struct {
	errCC chan chan error
}

// NotifyError returns a channel that an unrecoverable error is sent
// to when the torrent stops itself. NotifyError must be called after
// calling Start().
func (t *Torrent) NotifyError() <-chan error {
	cmd := notifyErrorCommand{errCC: make(chan chan error)}
	select {
	case t.notifyErrorCommandC <- cmd:
		return <-cmd.errCC
	case <-t.closeC:
		return nil
	}
}

type notifyListenCommand struct {
	portCC chan chan int
}

// NotifyListen returns a channel that the listen port is sent to once
// the torrent starts accepting peers. NotifyListen must be called
// after calling Start().
func (t *Torrent) NotifyListen() <-chan int {
	cmd := notifyListenCommand{portCC: make(chan chan int)}
	select {
	case t.notifyListenCommandC <- cmd:
		return <-cmd.portCC
	case <-t.closeC:
		return nil
	}
}

type portRequest struct {
	Response chan int
}

// Port returns the port the torrent is accepting peers on.
// Returns zero before the acceptor has started listening.
func (t *Torrent) Port() int {
	req := portRequest{Response: make(chan int, 1)}
	select {
	case t.portCommandC <- req:
		return <-req.Response
	case <-t.closeC:
		return 0
	}
}

type priorityCommand struct {
	Index    uint32
	Priority Priority
}
