// Package piecepicker decides which piece to download from which peer.
package piecepicker

import (
	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/peerset"
	"github.com/tidetorrent/tide/internal/piece"
)

/*

These are the things to consider when selecting a piece for downloading:

  * Piece is done (hash checked and written to disk)
  * Piece is writing
  * Piece priority band
  * Peer has the piece
  * Peer is choking us
  * Piece is requested from other peers
  * Is endgame mode activated (all pieces are requested)
  * Are there stalled peers (snubbed or choked in the middle of download)

Do not forget to re-check these when making changes.

*/

// Mode selects the order in which new pieces are picked.
type Mode int

// Selection modes.
const (
	// RarestFirst picks the piece that the fewest connected peers have.
	RarestFirst Mode = iota
	// Sequential picks the piece with the lowest index.
	Sequential
	// RoundRobin cycles through the pieces to spread requests evenly.
	RoundRobin
)

// Priority of a piece. Higher priorities are always picked before
// lower ones regardless of the selection mode.
type Priority int

// Priority bands.
const (
	DoNotDownload Priority = iota
	Low
	Normal
	High
	Maximum
)

// PiecePicker keeps track of the availability of pieces among peers
// and runs the selection algorithm.
type PiecePicker struct {
	mode                 Mode
	pieces               []myPiece
	maxDuplicateDownload int
	endgameThreshold     float64
	available            uint32
	endgame              bool

	// Next index to try in round-robin mode.
	cursor uint32
}

type myPiece struct {
	*piece.Piece
	Priority  Priority
	Having    peerset.PeerSet
	Requested peerset.PeerSet
	Snubbed   peerset.PeerSet
	Choked    peerset.PeerSet
}

// RunningDownloads returns the number of downloads of the piece that
// are progressing. Snubbed and choked downloads do not count.
func (p *myPiece) RunningDownloads() int {
	return p.Requested.Len() - p.StalledDownloads()
}

// StalledDownloads returns the number of downloads of the piece whose
// peers are snubbed or choked.
func (p *myPiece) StalledDownloads() int {
	return p.Snubbed.Len() + p.Choked.Len()
}

func (p *myPiece) eligible() bool {
	return !p.Done && !p.Writing && p.Priority != DoNotDownload
}

// New returns a new PiecePicker. maxDuplicateDownload bounds how many
// peers a single piece may be requested from in endgame mode.
// endgameThreshold is the ratio of done and requested pieces over all
// pieces above which endgame mode is activated early.
func New(pieces []piece.Piece, mode Mode, maxDuplicateDownload int, endgameThreshold float64) *PiecePicker {
	ps := make([]myPiece, len(pieces))
	for i := range pieces {
		ps[i] = myPiece{Piece: &pieces[i], Priority: Normal}
	}
	return &PiecePicker{
		mode:                 mode,
		pieces:               ps,
		maxDuplicateDownload: maxDuplicateDownload,
		endgameThreshold:     endgameThreshold,
	}
}

// Available returns the number of distinct pieces available among
// connected peers.
func (p *PiecePicker) Available() uint32 {
	return p.available
}

// Endgame returns true after the covered ratio passed the threshold or
// every remaining piece has been requested at least once.
func (p *PiecePicker) Endgame() bool {
	return p.endgame
}

// RequestedPeers returns the peers that the piece is requested from.
func (p *PiecePicker) RequestedPeers(i uint32) []*peer.Peer {
	return p.pieces[i].Requested.Peers
}

// SetPriority sets the priority band of the piece.
func (p *PiecePicker) SetPriority(i uint32, pri Priority) {
	p.pieces[i].Priority = pri
}

// Priority returns the priority band of the piece.
func (p *PiecePicker) Priority(i uint32) Priority {
	return p.pieces[i].Priority
}

// HandleHave must be called to record that the peer has the piece.
func (p *PiecePicker) HandleHave(pe *peer.Peer, i uint32) {
	pe.Bitfield.Set(i)
	p.addHavingPeer(i, pe)
}

// HandleSnubbed must be called when the peer stalls in the middle of
// a download.
func (p *PiecePicker) HandleSnubbed(pe *peer.Peer, i uint32) {
	if p.pieces[i].Choked.Has(pe) {
		panic("peer snubbed while choked")
	}
	p.pieces[i].Snubbed.Add(pe)
}

// HandleChoke must be called when the peer chokes us during a download.
func (p *PiecePicker) HandleChoke(pe *peer.Peer, i uint32) {
	p.pieces[i].Snubbed.Remove(pe)
	p.pieces[i].Choked.Add(pe)
}

// HandleUnchoke must be called when the peer unchokes us during a download.
func (p *PiecePicker) HandleUnchoke(pe *peer.Peer, i uint32) {
	p.pieces[i].Choked.Remove(pe)
}

// HandleCancelDownload must be called when a piece download is
// canceled or finished at the peer.
func (p *PiecePicker) HandleCancelDownload(pe *peer.Peer, i uint32) {
	p.pieces[i].Requested.Remove(pe)
	p.pieces[i].Snubbed.Remove(pe)
	p.pieces[i].Choked.Remove(pe)
}

// HandleDisconnect must be called to remove the peer from internal
// indexes.
func (p *PiecePicker) HandleDisconnect(pe *peer.Peer) {
	for i := range p.pieces {
		p.HandleCancelDownload(pe, uint32(i))
		p.removeHavingPeer(i, pe)
	}
}

func (p *PiecePicker) addHavingPeer(i uint32, pe *peer.Peer) {
	ok := p.pieces[i].Having.Add(pe)
	if ok && p.pieces[i].Having.Len() == 1 {
		p.available++
	}
}

func (p *PiecePicker) removeHavingPeer(i int, pe *peer.Peer) {
	ok := p.pieces[i].Having.Remove(pe)
	if ok && p.pieces[i].Having.Len() == 0 {
		p.available--
	}
}

// PickFor selects the next piece to download from the peer.
// Returns nil if there is no suitable piece.
func (p *PiecePicker) PickFor(pe *peer.Peer) *piece.Piece {
	pi := p.findPiece(pe)
	if pi == nil {
		return nil
	}
	pe.Snubbed = false
	pi.Requested.Add(pe)
	if p.mode == RoundRobin {
		p.cursor = (pi.Index + 1) % uint32(len(p.pieces))
	}
	return pi.Piece
}

func (p *PiecePicker) findPiece(pe *peer.Peer) *myPiece {
	// Peer is allowed to download only one piece at a time
	if pe.Downloading {
		return nil
	}
	// Must be unchoked to request from a peer
	if pe.PeerChoking {
		return nil
	}
	// Short path for endgame mode.
	if !p.endgame && p.coveredRatio() >= p.endgameThreshold {
		p.endgame = true
	}
	if p.endgame {
		return p.pickEndgame(pe)
	}
	pi := p.pickNew(pe)
	if pi != nil {
		return pi
	}
	// Check if endgame mode is activated by the pick above
	if p.endgame {
		return p.pickEndgame(pe)
	}
	// Re-request stalled downloads
	return p.pickStalled(pe)
}

// pickNew scans for an unrequested piece the peer has. When no
// unrequested piece is left anywhere, endgame mode is activated.
func (p *PiecePicker) pickNew(pe *peer.Peer) *myPiece {
	var picked *myPiece
	var hasUnrequested bool
	for i := range p.pieces {
		mp := &p.pieces[i]
		if !mp.eligible() {
			continue
		}
		if mp.Requested.Len() > 0 {
			continue
		}
		hasUnrequested = true
		if !mp.Having.Has(pe) {
			continue
		}
		if picked == nil || p.better(mp, picked) {
			picked = mp
		}
	}
	if picked == nil && !hasUnrequested {
		p.endgame = true
	}
	return picked
}

// better returns true if a should be picked before b.
func (p *PiecePicker) better(a, b *myPiece) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch p.mode {
	case Sequential:
		return a.Index < b.Index
	case RoundRobin:
		return p.distance(a.Index) < p.distance(b.Index)
	default:
		if a.Having.Len() != b.Having.Len() {
			return a.Having.Len() < b.Having.Len()
		}
		return a.Index < b.Index
	}
}

// coveredRatio is the fraction of pieces that are either finished or
// requested from at least one peer.
func (p *PiecePicker) coveredRatio() float64 {
	var covered, total int
	for i := range p.pieces {
		mp := &p.pieces[i]
		if mp.Priority == DoNotDownload {
			continue
		}
		total++
		if mp.Done || mp.Writing || mp.Requested.Len() > 0 {
			covered++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(covered) / float64(total)
}

// distance is the cyclic distance of the index from the cursor.
func (p *PiecePicker) distance(i uint32) uint32 {
	n := uint32(len(p.pieces))
	return (i + n - p.cursor) % n
}

// pickEndgame duplicates running downloads up to maxDuplicateDownload
// so the last pieces are not held hostage by slow peers.
func (p *PiecePicker) pickEndgame(pe *peer.Peer) *myPiece {
	var picked *myPiece
	for i := range p.pieces {
		mp := &p.pieces[i]
		if !mp.eligible() {
			continue
		}
		if !mp.Having.Has(pe) {
			continue
		}
		if mp.Requested.Has(pe) {
			continue
		}
		if mp.Requested.Len() >= p.maxDuplicateDownload {
			continue
		}
		if picked == nil ||
			mp.RunningDownloads() < picked.RunningDownloads() ||
			(mp.RunningDownloads() == picked.RunningDownloads() && p.better(mp, picked)) {
			picked = mp
		}
	}
	return picked
}

// pickStalled re-requests pieces whose only downloads are stalled.
func (p *PiecePicker) pickStalled(pe *peer.Peer) *myPiece {
	var picked *myPiece
	for i := range p.pieces {
		mp := &p.pieces[i]
		if !mp.eligible() {
			continue
		}
		if mp.RunningDownloads() > 0 {
			continue
		}
		if mp.Requested.Len() == 0 || mp.Requested.Len() >= p.maxDuplicateDownload {
			continue
		}
		if !mp.Having.Has(pe) {
			continue
		}
		if mp.Requested.Has(pe) {
			continue
		}
		if picked == nil || mp.StalledDownloads() < picked.StalledDownloads() {
			picked = mp
		}
	}
	return picked
}
