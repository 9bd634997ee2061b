package torrent

import (
	"net"
	"time"

	"github.com/tidetorrent/tide/internal/peersource"
)

// Stats contains statistics about Torrent.
type Stats struct {
	// Info hash of torrent.
	InfoHash [20]byte
	// Listening port number.
	Port int
	// Status of the torrent.
	Status Status
	// Contains the error message if torrent is stopped unexpectedly.
	Error  error
	Pieces struct {
		// Number of pieces that are checked when torrent is in "Verifying" state.
		Checked uint32
		// Number of pieces that we are downloaded successfully and verified by hash check.
		Have uint32
		// Number of pieces that need to be downloaded. Some of them may be being downloaded.
		// Pieces that are being downloaded may counted as missing until they are downloaded and passed hash check.
		Missing uint32
		// Number of unique pieces available on swarm.
		// If this number is less then the number of total pieces, the download may never finish.
		Available uint32
		// Number of total pieces in torrent.
		Total uint32
	}
	Bytes struct {
		// Bytes that are downloaded and passed hash check.
		Completed int64
		// The number of bytes that is needed to complete all missing pieces.
		Incomplete int64
		// The number of total bytes of files in torrent.  Total = Completed + Incomplete
		Total int64
		// Downloaded is the number of bytes downloaded from swarm.
		// Because some pieces may be downloaded more than once, this number may be greater than completed bytes.
		Downloaded int64
		// Uploaded is the number of bytes uploaded to the swarm.
		Uploaded int64
		// Bytes downloaded due to duplicate/non-requested pieces.
		Wasted int64
		// Bytes allocated on storage.
		Allocated int64
	}
	Peers struct {
		// Number of peers that are connected, handshaked and ready to send and receive messages.
		Total int
		// Number of peers that have connected to us.
		Incoming int
		// Number of peers that we have connected to.
		Outgoing int
	}
	Handshakes struct {
		// Number of peers that are not handshaked yet.
		Total int
		// Number of incoming peers in handshake state.
		Incoming int
		// Number of outgoing peers in handshake state.
		Outgoing int
	}
	Addresses struct {
		// Total number of peer addresses that are ready to be connected.
		Total int
	}
	Downloads struct {
		// Number of active piece downloads.
		Total int
		// Number of pieces that are being downloaded normally.
		Running int
		// Number of pieces that are being downloaded too slow.
		Snubbed int
		// Number of piece downloads in choked state.
		Choked int
	}
	// Name of the torrent.
	Name string
	// Number of files.
	FileCount int
	// Length of a single piece.
	PieceLength uint32
	// Set when the selector is duplicating the last missing pieces.
	Endgame bool
	// Duration while the torrent is in Seeding status.
	SeededFor time.Duration
	// Speed is calculated as 1-minute moving average.
	Speed struct {
		// Downloaded bytes per second.
		Download int
		// Uploaded bytes per second.
		Upload int
		// Bytes written to disk per second.
		Write int
	}
	// Time remaining to complete download. nil value means infinity.
	ETA *time.Duration
}

type statsRequest struct {
	Response chan Stats
}

// Stats returns statistics about the torrent.
func (t *Torrent) Stats() Stats {
	var stats Stats
	req := statsRequest{Response: make(chan Stats, 1)}
	select {
	case t.statsCommandC <- req:
	case <-t.closeC:
	}
	select {
	case stats = <-req.Response:
	case <-t.closeC:
	}
	return stats
}

func (t *Torrent) stats() Stats {
	t.updateSeedDuration(time.Now())

	var s Stats
	s.InfoHash = t.infoHash
	s.Port = t.port
	s.Status = t.status()
	s.Error = t.lastError
	s.Addresses.Total = t.addrList.Len()
	s.Handshakes.Incoming = len(t.incomingHandshakers)
	s.Handshakes.Outgoing = len(t.outgoingHandshakers)
	s.Handshakes.Total = len(t.incomingHandshakers) + len(t.outgoingHandshakers)
	s.Peers.Total = len(t.peers)
	s.Peers.Incoming = len(t.incomingPeers)
	s.Peers.Outgoing = len(t.outgoingPeers)
	s.Downloads.Total = len(t.pieceDownloaders)
	s.Downloads.Snubbed = len(t.pieceDownloadersSnubbed)
	s.Downloads.Choked = len(t.pieceDownloadersChoked)
	s.Downloads.Running = len(t.pieceDownloaders) - len(t.pieceDownloadersChoked) - len(t.pieceDownloadersSnubbed)
	s.Pieces.Available = t.availablePieceCount()
	s.Bytes.Downloaded = t.bytesDownloaded.Read()
	s.Bytes.Uploaded = t.bytesUploaded.Read()
	s.Bytes.Wasted = t.bytesWasted.Read()
	s.SeededFor = time.Duration(t.seededFor.Read())
	s.Bytes.Allocated = t.bytesAllocated
	s.Pieces.Checked = t.checkedPieces
	s.Speed.Download = int(t.downloadSpeed.Rate1())
	s.Speed.Upload = int(t.uploadSpeed.Rate1())
	s.Speed.Write = int(t.writeBytesPerSecond.Rate1())
	s.Endgame = t.piecePicker != nil && t.piecePicker.Endgame()

	s.Bytes.Total = t.totalLength
	s.Bytes.Completed = t.bytesComplete()
	s.Bytes.Incomplete = s.Bytes.Total - s.Bytes.Completed

	s.Name = t.name
	s.FileCount = len(t.fileSpecs)
	s.PieceLength = t.pieceLength
	s.Pieces.Total = t.numPieces
	if t.bitfield != nil {
		s.Pieces.Have = t.bitfield.Count()
		s.Pieces.Missing = s.Pieces.Total - s.Pieces.Have
	}
	if s.Status == Downloading {
		bps := int64(s.Speed.Download)
		if bps != 0 {
			eta := time.Duration(s.Bytes.Incomplete/bps) * time.Second
			switch {
			case eta > 8*time.Hour:
				eta = eta.Round(time.Hour)
			case eta > 4*time.Hour:
				eta = eta.Round(30 * time.Minute)
			case eta > 2*time.Hour:
				eta = eta.Round(15 * time.Minute)
			case eta > time.Hour:
				eta = eta.Round(5 * time.Minute)
			case eta > 30*time.Minute:
				eta = eta.Round(1 * time.Minute)
			case eta > 15*time.Minute:
				eta = eta.Round(30 * time.Second)
			case eta > 5*time.Minute:
				eta = eta.Round(15 * time.Second)
			case eta > time.Minute:
				eta = eta.Round(5 * time.Second)
			}
			s.ETA = &eta
		}
	}
	return s
}

func (t *Torrent) availablePieceCount() uint32 {
	if t.piecePicker == nil {
		return 0
	}
	return t.piecePicker.Available()
}

func (t *Torrent) bytesComplete() int64 {
	if t.bitfield == nil || len(t.pieces) == 0 {
		return 0
	}
	n := int64(t.pieceLength) * int64(t.bitfield.Count())
	if t.bitfield.Test(t.bitfield.Len() - 1) {
		n -= int64(t.pieceLength)
		n += int64(t.pieces[t.bitfield.Len()-1].Length)
	}
	return n
}

// PeerSource indicates how the peer address was found.
type PeerSource int

// Sources of peer addresses.
const (
	SourceManual PeerSource = iota
	SourceDiscovery
	SourceIncoming
)

// Peer contains information about a connected peer.
type Peer struct {
	ID                  [20]byte
	Addr                net.Addr
	Source              PeerSource
	ConnectedAt         time.Time
	Downloading         bool
	ClientInterested    bool
	ClientChoking       bool
	PeerInterested      bool
	PeerChoking         bool
	OptimisticUnchoked  bool
	Snubbed             bool
	OutstandingRequests int
	DownloadSpeed       int
	UploadSpeed         int
}

type peersRequest struct {
	Response chan []Peer
}

// Peers returns the list of connected peers.
func (t *Torrent) Peers() []Peer {
	var peers []Peer
	req := peersRequest{Response: make(chan []Peer, 1)}
	select {
	case t.peersCommandC <- req:
	case <-t.closeC:
	}
	select {
	case peers = <-req.Response:
	case <-t.closeC:
	}
	return peers
}

func (t *Torrent) getPeers() []Peer {
	peers := make([]Peer, 0, len(t.peers))
	for pe := range t.peers {
		var source PeerSource
		switch pe.Source {
		case peersource.Incoming:
			source = SourceIncoming
		case peersource.Discovery:
			source = SourceDiscovery
		default:
			source = SourceManual
		}
		var outstanding int
		if pd, ok := t.pieceDownloaders[pe]; ok {
			outstanding = pd.Outstanding()
		}
		p := Peer{
			ID:                  pe.ID,
			Addr:                pe.Addr(),
			Source:              source,
			ConnectedAt:         pe.ConnectedAt,
			Downloading:         pe.Downloading,
			ClientInterested:    pe.ClientInterested,
			ClientChoking:       pe.ClientChoking,
			PeerInterested:      pe.PeerInterested,
			PeerChoking:         pe.PeerChoking,
			OptimisticUnchoked:  pe.OptimisticUnchoked,
			Snubbed:             pe.Snubbed,
			OutstandingRequests: outstanding,
			DownloadSpeed:       pe.DownloadSpeed(),
			UploadSpeed:         pe.UploadSpeed(),
		}
		peers = append(peers, p)
	}
	return peers
}
