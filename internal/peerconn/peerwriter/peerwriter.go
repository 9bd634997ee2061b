// Package peerwriter serializes outgoing messages to a peer connection.
// Messages are queued so that piece uploads can be cancelled before
// they hit the wire.
package peerwriter

import (
	"bytes"
	"container/list"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/juju/ratelimit"
	"github.com/tidetorrent/tide/internal/logger"
	"github.com/tidetorrent/tide/internal/peerprotocol"
)

const keepAlivePeriod = 2 * time.Minute

// PeerWriter is a goroutine that writes queued messages to the peer.
type PeerWriter struct {
	conn       net.Conn
	queueC     chan peerprotocol.Message
	cancelC    chan peerprotocol.CancelMessage
	writeQueue *list.List
	writeC     chan peerprotocol.Message
	messages   chan any
	log        logger.Logger
	bucket     *ratelimit.Bucket
	stopC      chan struct{}
	doneC      chan struct{}
}

// New returns a new PeerWriter. The bucket limits upload bandwidth
// spent on piece messages and may be nil.
func New(conn net.Conn, l logger.Logger, b *ratelimit.Bucket) *PeerWriter {
	return &PeerWriter{
		conn:       conn,
		bucket:     b,
		queueC:     make(chan peerprotocol.Message),
		cancelC:    make(chan peerprotocol.CancelMessage),
		writeQueue: list.New(),
		writeC:     make(chan peerprotocol.Message),
		messages:   make(chan any),
		log:        l,
		stopC:      make(chan struct{}),
		doneC:      make(chan struct{}),
	}
}

// Messages returns the channel that upload notifications are sent to.
func (p *PeerWriter) Messages() <-chan any {
	return p.messages
}

// SendMessage queues a message for writing.
func (p *PeerWriter) SendMessage(msg peerprotocol.Message) {
	select {
	case p.queueC <- msg:
	case <-p.doneC:
	}
}

// SendPiece queues a piece message for writing.
// Data is read when the message is at the front of the queue.
func (p *PeerWriter) SendPiece(msg peerprotocol.RequestMessage, pi io.ReaderAt) {
	m := Piece{Data: pi, RequestMessage: msg}
	select {
	case p.queueC <- m:
	case <-p.doneC:
	}
}

// CancelRequest removes a queued piece message matching the cancel.
func (p *PeerWriter) CancelRequest(msg peerprotocol.CancelMessage) {
	select {
	case p.cancelC <- msg:
	case <-p.doneC:
	}
}

// Stop the writer goroutine.
func (p *PeerWriter) Stop() {
	close(p.stopC)
}

// Done returns a channel that is closed when the writer goroutine exits.
func (p *PeerWriter) Done() chan struct{} {
	return p.doneC
}

// Run processes the message queue until the writer is stopped or the
// connection errors.
func (p *PeerWriter) Run() {
	defer close(p.doneC)

	go p.messageWriter()

	for {
		var (
			e      *list.Element
			msg    peerprotocol.Message
			writeC chan peerprotocol.Message
		)
		if p.writeQueue.Len() > 0 {
			e = p.writeQueue.Front()
			msg = e.Value.(peerprotocol.Message)
			writeC = p.writeC
		}
		select {
		case msg = <-p.queueC:
			p.queueMessage(msg)
		case writeC <- msg:
			p.writeQueue.Remove(e)
		case cm := <-p.cancelC:
			p.cancelRequest(cm)
		case <-p.stopC:
			return
		}
	}
}

func (p *PeerWriter) queueMessage(msg peerprotocol.Message) {
	if _, ok := msg.(peerprotocol.ChokeMessage); ok {
		p.cancelQueuedPieceMessages()
	}
	p.writeQueue.PushBack(msg)
}

// cancelQueuedPieceMessages drops not yet written piece messages.
// Called when we choke the peer.
func (p *PeerWriter) cancelQueuedPieceMessages() {
	var next *list.Element
	for e := p.writeQueue.Front(); e != nil; e = next {
		next = e.Next()
		if _, ok := e.Value.(Piece); ok {
			p.writeQueue.Remove(e)
		}
	}
}

func (p *PeerWriter) cancelRequest(cm peerprotocol.CancelMessage) {
	for e := p.writeQueue.Front(); e != nil; e = e.Next() {
		if pi, ok := e.Value.(Piece); ok && pi.Index == cm.Index && pi.Begin == cm.Begin && pi.Length == cm.Length {
			p.writeQueue.Remove(e)
			break
		}
	}
}

func (p *PeerWriter) messageWriter() {
	defer p.conn.Close()

	// Disable write deadline that is previously set by handshaker.
	err := p.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		p.log.Error(err)
		return
	}

	keepAliveTicker := time.NewTicker(keepAlivePeriod / 2)
	defer keepAliveTicker.Stop()

	for {
		select {
		case msg := <-p.writeC:
			payload, err := msg.MarshalBinary()
			if err != nil {
				p.log.Errorf("cannot marshal message [%v]: %s", msg.ID(), err.Error())
				return
			}
			if _, ok := msg.(Piece); ok && p.bucket != nil {
				d := p.bucket.Take(int64(len(payload)))
				select {
				case <-time.After(d):
				case <-p.stopC:
					return
				}
			}
			buf := bytes.NewBuffer(make([]byte, 0, 4+1+len(payload)))
			var header = struct {
				Length uint32
				ID     peerprotocol.MessageID
			}{
				Length: uint32(1 + len(payload)),
				ID:     msg.ID(),
			}
			_ = binary.Write(buf, binary.BigEndian, &header)
			buf.Write(payload)
			n, err := p.conn.Write(buf.Bytes())
			p.countUploadBytes(msg, n)
			if _, ok := err.(*net.OpError); ok {
				p.log.Debugf("cannot write message [%v]: %s", msg.ID(), err.Error())
				return
			}
			if err != nil {
				p.log.Errorf("cannot write message [%v]: %s", msg.ID(), err.Error())
				return
			}
		case <-keepAliveTicker.C:
			_, err := p.conn.Write([]byte{0, 0, 0, 0})
			if _, ok := err.(*net.OpError); ok {
				p.log.Debugf("cannot write keepalive message: %s", err.Error())
				return
			}
			if err != nil {
				p.log.Errorf("cannot write keepalive message: %s", err.Error())
				return
			}
		case <-p.stopC:
			return
		}
	}
}

func (p *PeerWriter) countUploadBytes(msg peerprotocol.Message, n int) {
	if _, ok := msg.(Piece); ok {
		// frame header is 4 + 1 bytes, piece header is 8 bytes
		uploaded := n - 13
		if uploaded <= 0 {
			return
		}
		select {
		case p.messages <- BlockUploaded{Length: uint32(uploaded)}:
		case <-p.stopC:
		}
	}
}
