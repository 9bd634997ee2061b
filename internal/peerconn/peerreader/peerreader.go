// Package peerreader decodes length-prefixed frames from a peer
// connection into message values.
package peerreader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/juju/ratelimit"
	"github.com/tidetorrent/tide/internal/bufferpool"
	"github.com/tidetorrent/tide/internal/logger"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/piece"
)

const (
	// MaxBlockSize is the largest block length we accept in a request.
	MaxBlockSize = 16 * 1024
	// time to wait for a message. peer must send keep-alive messages to keep connection alive.
	readTimeout = 2 * time.Minute
	// length + msgid + requestmsg
	readBufferSize = 4 + 1 + 12
)

var blockPool = bufferpool.New(piece.BlockSize)

var errStoppedWhileWaitingBucket = errors.New("peer reader stopped while waiting for bucket")

// PeerReader is a goroutine that reads messages from the remote peer
// and sends them to its messages channel.
type PeerReader struct {
	conn         net.Conn
	r            io.Reader
	log          logger.Logger
	pieceTimeout time.Duration
	bucket       *ratelimit.Bucket
	messages     chan any
	stopC        chan struct{}
	doneC        chan struct{}
}

// New returns a new PeerReader. The bucket limits download bandwidth
// and may be nil for no limit.
func New(conn net.Conn, l logger.Logger, pieceTimeout time.Duration, b *ratelimit.Bucket) *PeerReader {
	return &PeerReader{
		conn:         conn,
		r:            bufio.NewReaderSize(conn, readBufferSize),
		log:          l,
		pieceTimeout: pieceTimeout,
		bucket:       b,
		messages:     make(chan any),
		stopC:        make(chan struct{}),
		doneC:        make(chan struct{}),
	}
}

// Messages returns the channel that decoded messages are sent to.
func (p *PeerReader) Messages() <-chan any {
	return p.messages
}

// Stop the reader goroutine.
func (p *PeerReader) Stop() {
	close(p.stopC)
}

// Done returns a channel that is closed when the reader goroutine exits.
func (p *PeerReader) Done() chan struct{} {
	return p.doneC
}

// Run reads and decodes messages until the connection errors or the
// reader is stopped.
func (p *PeerReader) Run() {
	defer close(p.doneC)

	var err error
	defer func() {
		if err == nil {
			return
		} else if err == io.EOF { // peer closed the connection
			return
		} else if err == io.ErrUnexpectedEOF {
			return
		} else if err == errStoppedWhileWaitingBucket {
			return
		} else if _, ok := err.(*net.OpError); ok {
			return
		}
		select {
		case <-p.stopC: // don't log error if peer is stopped
		default:
			p.log.Error(err)
		}
	}()

	first := true
	for {
		err = p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err != nil {
			return
		}

		var length uint32
		err = binary.Read(p.r, binary.BigEndian, &length)
		if err != nil {
			return
		}

		if length == 0 { // keep-alive message
			continue
		}

		var id peerprotocol.MessageID
		err = binary.Read(p.r, binary.BigEndian, &id)
		if err != nil {
			return
		}
		length--

		var msg any

		switch id {
		case peerprotocol.Choke:
			msg = peerprotocol.ChokeMessage{}
		case peerprotocol.Unchoke:
			msg = peerprotocol.UnchokeMessage{}
		case peerprotocol.Interested:
			msg = peerprotocol.InterestedMessage{}
		case peerprotocol.NotInterested:
			msg = peerprotocol.NotInterestedMessage{}
		case peerprotocol.Have:
			var hm peerprotocol.HaveMessage
			err = binary.Read(p.r, binary.BigEndian, &hm)
			if err != nil {
				return
			}
			msg = hm
		case peerprotocol.Bitfield:
			if !first {
				err = errors.New("bitfield can only be sent after handshake")
				return
			}
			var bm peerprotocol.BitfieldMessage
			bm.Data = make([]byte, length)
			_, err = io.ReadFull(p.r, bm.Data)
			if err != nil {
				return
			}
			msg = bm
		case peerprotocol.Request:
			var rm peerprotocol.RequestMessage
			err = binary.Read(p.r, binary.BigEndian, &rm)
			if err != nil {
				return
			}
			if rm.Length > MaxBlockSize {
				err = fmt.Errorf("received a request with block size larger than allowed (%d > %d)", rm.Length, MaxBlockSize)
				return
			}
			msg = rm
		case peerprotocol.Cancel:
			var cm peerprotocol.CancelMessage
			err = binary.Read(p.r, binary.BigEndian, &cm)
			if err != nil {
				return
			}
			msg = cm
		case peerprotocol.Piece:
			var pm peerprotocol.PieceMessage
			err = binary.Read(p.r, binary.BigEndian, &pm)
			if err != nil {
				return
			}
			length -= 8
			if length > piece.BlockSize {
				err = fmt.Errorf("received a piece with block size larger than allowed (%d > %d)", length, piece.BlockSize)
				return
			}
			var buf bufferpool.Buffer
			buf, err = p.readPiece(length)
			if err != nil {
				return
			}
			msg = Piece{PieceMessage: pm, Buffer: buf}
		case peerprotocol.Extension:
			// Extension frames are decoded by an outer layer.
			buf := make([]byte, length)
			_, err = io.ReadFull(p.r, buf)
			if err != nil {
				return
			}
			var em peerprotocol.ExtensionMessage
			err = em.UnmarshalBinary(buf)
			if err != nil {
				return
			}
			msg = em
		default:
			p.log.Debugf("unhandled message type: %s", id)
			_, err = io.CopyN(io.Discard, p.r, int64(length))
			if err != nil {
				return
			}
			continue
		}
		if msg == nil {
			panic("msg unset")
		}
		// Only core message types count for the bitfield-first rule.
		if id < 9 {
			first = false
		}
		select {
		case p.messages <- msg:
		case <-p.stopC:
			return
		}
	}
}

func (p *PeerReader) readPiece(length uint32) (buf bufferpool.Buffer, err error) {
	buf = blockPool.Get(int(length))
	defer func() {
		if err != nil {
			buf.Release()
		}
	}()

	var n, m int
	for {
		if p.bucket != nil {
			d := p.bucket.Take(int64(length))
			select {
			case <-time.After(d):
			case <-p.stopC:
				err = errStoppedWhileWaitingBucket
				return
			}
		}

		err = p.conn.SetReadDeadline(time.Now().Add(p.pieceTimeout))
		if err != nil {
			return
		}
		n, err = io.ReadFull(p.r, buf.Data[m:])
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				// Peer didn't send the full block in allowed time.
				if n > 0 {
					// Some bytes received, peer appears to be slow, keep receiving the rest.
					m += n
					continue
				}
				// Disconnect if no bytes received.
				return
			}
			// Error other than timeout
			return
		}
		// Received full block.
		return
	}
}
