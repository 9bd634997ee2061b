package handshake

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidetorrent/tide/internal/peersource"
)

var (
	testInfoHash = [20]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	testOurID    = [20]byte{'o', 'u', 'r', ' ', 'p', 'e', 'e', 'r', ' ', 'i', 'd', '.', '.', '.', '.', '.', '.', '.', '.', '.'}
	testRemoteID = [20]byte{'r', 'e', 'm', 'o', 't', 'e', ' ', 'p', 'e', 'e', 'r', ' ', 'i', 'd', '.', '.', '.', '.', '.', '.'}
)

func TestIncomingHandshake(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	resultC := make(chan *Incoming, 1)
	h := NewIncoming(local)
	go h.Run(2*time.Second, testOurID, testInfoHash, [8]byte{}, resultC)

	readC := make(chan [20]byte, 1)
	go func() {
		_ = Write(remote, testInfoHash, testRemoteID, [8]byte{})
		_, _, _ = Read1(remote)
		id, _ := Read2(remote)
		readC <- id
	}()

	result := <-resultC
	require.NoError(t, result.Error)
	require.Equal(t, testRemoteID, result.PeerID)
	require.Equal(t, testOurID, <-readC)
}

func TestIncomingHandshakeWrongInfoHash(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	resultC := make(chan *Incoming, 1)
	h := NewIncoming(local)
	go h.Run(2*time.Second, testOurID, testInfoHash, [8]byte{}, resultC)

	var other [20]byte
	copy(other[:], "another info hash...")
	go func() {
		_ = Write(remote, other, testRemoteID, [8]byte{})
	}()

	result := <-resultC
	require.Equal(t, ErrWrongInfoHash, result.Error)
}

func TestIncomingHandshakeOwnConnection(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	resultC := make(chan *Incoming, 1)
	h := NewIncoming(local)
	go h.Run(2*time.Second, testOurID, testInfoHash, [8]byte{}, resultC)

	go func() {
		_ = Write(remote, testInfoHash, testOurID, [8]byte{})
		buf := make([]byte, 68)
		_, _ = io.ReadFull(remote, buf)
	}()

	result := <-resultC
	require.Equal(t, ErrOwnConnection, result.Error)
}

func TestIncomingHandshakeInvalidProtocol(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	resultC := make(chan *Incoming, 1)
	h := NewIncoming(local)
	go h.Run(2*time.Second, testOurID, testInfoHash, [8]byte{}, resultC)

	go func() {
		_, _ = remote.Write(make([]byte, 68))
	}()

	result := <-resultC
	require.Equal(t, ErrInvalidProtocol, result.Error)
}

func TestOutgoingHandshake(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	incomingC := make(chan *Incoming, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		NewIncoming(conn).Run(2*time.Second, testRemoteID, testInfoHash, [8]byte{}, incomingC)
	}()

	outgoingC := make(chan *Outgoing, 1)
	h := NewOutgoing(l.Addr().(*net.TCPAddr), peersource.Manual)
	go h.Run(2*time.Second, 2*time.Second, testOurID, testInfoHash, [8]byte{}, outgoingC)

	in := <-incomingC
	require.NoError(t, in.Error)
	require.Equal(t, testOurID, in.PeerID)

	out := <-outgoingC
	require.NoError(t, out.Error)
	require.Equal(t, testRemoteID, out.PeerID)

	out.Conn.Close()
	in.Conn.Close()
}
