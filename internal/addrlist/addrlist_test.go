package addrlist

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidetorrent/tide/internal/peersource"
)

func TestAddrList(t *testing.T) {
	clientIP := net.IPv4(1, 2, 3, 4)
	al := New(2, 5000, &clientIP)

	// Push 1st addr
	al.Push([]*net.TCPAddr{newAddr("1.1.1.1")}, peersource.Manual)
	assert.Equal(t, 1, al.Len())
	assert.Equal(t, 1, len(al.peerByTime))

	// Push same addr again
	al.Push([]*net.TCPAddr{newAddr("1.1.1.1")}, peersource.Manual)
	assert.Equal(t, 1, al.Len())
	assert.Equal(t, 1, len(al.peerByTime))

	// Push 2nd addr
	al.Push([]*net.TCPAddr{newAddr("2.2.2.2")}, peersource.Manual)
	assert.Equal(t, 2, al.Len())
	assert.Equal(t, 2, len(al.peerByTime))

	// Pop an addr
	addr, src := al.Pop()
	assert.NotNil(t, addr)
	assert.Equal(t, peersource.Manual, src)
	assert.Equal(t, 1, al.Len())

	// Push 3rd addr
	al.Push([]*net.TCPAddr{newAddr("3.3.3.3")}, peersource.Manual)
	assert.Equal(t, 2, al.Len())
	assert.Equal(t, 2, len(al.peerByTime))

	// Push 4th addr, oldest entry must be dropped
	al.Push([]*net.TCPAddr{newAddr("4.4.4.4")}, peersource.Manual)
	assert.Equal(t, 2, al.Len())
	assert.Equal(t, 2, len(al.peerByTime))
	assert.Equal(t, 2, al.LenSource(peersource.Manual))
}

func TestAddrListInvalid(t *testing.T) {
	clientIP := net.IPv4(1, 2, 3, 4)
	al := New(10, 5000, &clientIP)

	// 0 port is invalid
	al.Push([]*net.TCPAddr{{IP: net.ParseIP("1.1.1.1"), Port: 0}}, peersource.Manual)
	assert.Equal(t, 0, al.Len())

	// Own address is discarded
	al.Push([]*net.TCPAddr{{IP: clientIP, Port: 5000}}, peersource.Manual)
	assert.Equal(t, 0, al.Len())
	al.Push([]*net.TCPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: 5000}}, peersource.Manual)
	assert.Equal(t, 0, al.Len())
}

func TestAddrListNoClientIP(t *testing.T) {
	al := New(10, 0, nil)

	al.Push([]*net.TCPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: 6881}}, peersource.Manual)
	assert.Equal(t, 1, al.Len())

	addr, src := al.Pop()
	assert.NotNil(t, addr)
	assert.Equal(t, peersource.Manual, src)
	assert.Equal(t, 0, al.Len())
}

func newAddr(ip string) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 1}
}
