package unchoker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPeer struct {
	choking    bool
	interested bool
	optimistic bool
	dl, ul     int
}

func (p *testPeer) Choke()                  { p.choking = true }
func (p *testPeer) Unchoke()                { p.choking = false }
func (p *testPeer) Choking() bool           { return p.choking }
func (p *testPeer) Interested() bool        { return p.interested }
func (p *testPeer) SetOptimistic(value bool) { p.optimistic = value }
func (p *testPeer) Optimistic() bool        { return p.optimistic }
func (p *testPeer) DownloadSpeed() int      { return p.dl }
func (p *testPeer) UploadSpeed() int        { return p.ul }

func TestTickUnchoke(t *testing.T) {
	u := New(2, 0)
	fast := &testPeer{choking: true, interested: true, dl: 500}
	mid := &testPeer{choking: true, interested: true, dl: 300}
	slow := &testPeer{choking: true, interested: true, dl: 100}

	u.TickUnchoke([]Peer{slow, fast, mid}, false)

	assert.False(t, fast.choking)
	assert.False(t, mid.choking)
	assert.True(t, slow.choking)

	// Previously unchoked peer must be choked when it falls behind.
	mid.dl = 50
	slow.dl = 300
	u.TickUnchoke([]Peer{slow, fast, mid}, false)
	assert.False(t, fast.choking)
	assert.True(t, mid.choking)
	assert.False(t, slow.choking)
}

func TestTickUnchokeOptimistic(t *testing.T) {
	u := New(2, 1)
	peers := []Peer{
		&testPeer{choking: true, interested: true, dl: 500},
		&testPeer{choking: true, interested: true, dl: 300},
		&testPeer{choking: true, interested: true, dl: 100},
		&testPeer{choking: true, interested: true, dl: 50},
	}

	// First round is an optimistic round.
	u.TickUnchoke(peers, false)

	var unchoked, optimistic int
	for _, pe := range peers {
		if !pe.Choking() {
			unchoked++
		}
		if pe.Optimistic() {
			optimistic++
		}
	}
	assert.Equal(t, 3, unchoked)
	assert.Equal(t, 1, optimistic)
}

func TestTickUnchokeSeeding(t *testing.T) {
	u := New(1, 0)
	taker := &testPeer{choking: true, interested: true, ul: 900, dl: 0}
	giver := &testPeer{choking: true, interested: true, ul: 100, dl: 900}

	u.TickUnchoke([]Peer{giver, taker}, true)
	assert.False(t, taker.choking)
	assert.True(t, giver.choking)
}

func TestFastUnchoke(t *testing.T) {
	u := New(1, 0)
	pe := &testPeer{choking: true, interested: true}
	u.FastUnchoke(pe)
	assert.False(t, pe.choking)

	// No free slot left
	pe2 := &testPeer{choking: true, interested: true}
	u.FastUnchoke(pe2)
	assert.True(t, pe2.choking)
}
