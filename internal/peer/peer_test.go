package peer

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/peersource"
)

func readFrame(t *testing.T, r io.Reader) (peerprotocol.MessageID, []byte) {
	t.Helper()
	var length uint32
	err := binary.Read(r, binary.BigEndian, &length)
	require.NoError(t, err)
	var id [1]byte
	_, err = io.ReadFull(r, id[:])
	require.NoError(t, err)
	payload := make([]byte, length-1)
	_, err = io.ReadFull(r, payload)
	require.NoError(t, err)
	return peerprotocol.MessageID(id[0]), payload
}

func TestCancelPieceSendsCancelFrame(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	pe := New(local, peersource.Incoming, [20]byte{}, [8]byte{}, time.Minute, time.Minute, 1, 2, 4, nil, nil)
	messages := make(chan Message)
	pieces := make(chan PieceMessage)
	snubbedC := make(chan *Peer, 1)
	disconnectedC := make(chan *Peer, 1)
	go pe.Run(messages, pieces, snubbedC, disconnectedC)

	pe.RequestPiece(1, 0, 16384)
	pe.CancelPiece(1, 0, 16384)

	id, _ := readFrame(t, remote)
	require.Equal(t, peerprotocol.Request, id)

	id, payload := readFrame(t, remote)
	require.Equal(t, peerprotocol.Cancel, id)
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(payload[0:4]))
	require.Equal(t, uint32(0), binary.BigEndian.Uint32(payload[4:8]))
	require.Equal(t, uint32(16384), binary.BigEndian.Uint32(payload[8:12]))

	pe.Close()
}
