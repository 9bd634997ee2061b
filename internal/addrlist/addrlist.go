// Package addrlist keeps a bounded list of candidate peer addresses.
// Candidates are popped in canonical priority order (BEP 40) and the
// oldest entries are dropped when the list grows over its limit.
package addrlist

import (
	"net"
	"sort"
	"time"

	"github.com/google/btree"
	"github.com/tidetorrent/tide/internal/peerpriority"
	"github.com/tidetorrent/tide/internal/peersource"
)

// AddrList contains peer addresses that are ready to be connected.
type AddrList struct {
	peerByTime     []*peerAddr
	peerByPriority *btree.BTree

	maxItems   int
	listenPort int
	clientIP   *net.IP

	countBySource map[peersource.Source]int
}

// New returns a new empty AddrList.
func New(maxItems int, listenPort int, clientIP *net.IP) *AddrList {
	return &AddrList{
		peerByPriority: btree.New(2),
		maxItems:       maxItems,
		listenPort:     listenPort,
		clientIP:       clientIP,
		countBySource:  make(map[peersource.Source]int),
	}
}

// Reset empties the address list.
func (d *AddrList) Reset() {
	d.peerByTime = nil
	d.peerByPriority.Clear(false)
	d.countBySource = make(map[peersource.Source]int)
}

// Len returns the number of addresses in the list.
func (d *AddrList) Len() int {
	return d.peerByPriority.Len()
}

// LenSource returns the number of addresses from the given source.
func (d *AddrList) LenSource(s peersource.Source) int {
	return d.countBySource[s]
}

// Pop returns the highest priority address in the list.
func (d *AddrList) Pop() (*net.TCPAddr, peersource.Source) {
	item := d.peerByPriority.DeleteMax()
	if item == nil {
		return nil, 0
	}
	p := item.(*peerAddr)
	d.peerByTime[p.index] = nil
	d.countBySource[p.source]--
	return p.addr, p.source
}

// Push adds a new list of addresses to the list.
// Does nothing for addresses that are already in the list.
func (d *AddrList) Push(addrs []*net.TCPAddr, source peersource.Source) {
	now := time.Now()
	for _, ad := range addrs {
		// 0 port is invalid
		if ad.Port == 0 {
			continue
		}
		// Discard own client
		if ad.IP.IsLoopback() && ad.Port == d.listenPort {
			continue
		} else if d.clientIP != nil && d.clientIP.Equal(ad.IP) && ad.Port == d.listenPort {
			continue
		}
		p := &peerAddr{
			addr:      ad,
			timestamp: now,
			source:    source,
			priority:  peerpriority.Calculate(ad, d.clientAddr()),
		}
		item := d.peerByPriority.ReplaceOrInsert(p)
		if item != nil {
			prev := item.(*peerAddr)
			d.peerByTime[prev.index] = p
			p.index = prev.index
			d.countBySource[prev.source]--
		} else {
			d.peerByTime = append(d.peerByTime, p)
			p.index = len(d.peerByTime) - 1
		}
		d.countBySource[source]++
	}
	d.filterNils()
	sort.Sort(byTimestamp(d.peerByTime))

	delta := d.peerByPriority.Len() - d.maxItems
	if delta > 0 {
		d.removeExcessItems(delta)
		d.filterNils()
	}
	if len(d.peerByTime) != d.peerByPriority.Len() {
		panic("addr count mismatch")
	}
	for i, p := range d.peerByTime {
		p.index = i
	}
}

func (d *AddrList) filterNils() {
	b := d.peerByTime[:0]
	for _, x := range d.peerByTime {
		if x != nil {
			b = append(b, x)
		}
	}
	d.peerByTime = b
}

// removeExcessItems drops the oldest addresses.
func (d *AddrList) removeExcessItems(delta int) {
	for i := 0; i < delta; i++ {
		d.peerByPriority.Delete(d.peerByTime[i])
		d.countBySource[d.peerByTime[i].source]--
		d.peerByTime[i] = nil
	}
}

func (d *AddrList) clientAddr() *net.TCPAddr {
	var ip net.IP
	if d.clientIP != nil {
		ip = *d.clientIP
	}
	if ip == nil {
		ip = net.IPv4(0, 0, 0, 0)
	}
	return &net.TCPAddr{
		IP:   ip,
		Port: d.listenPort,
	}
}
