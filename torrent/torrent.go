// Package torrent provides a BitTorrent piece acquisition engine.
// It downloads and verifies the pieces described by a Spec from peers
// whose addresses are supplied by the caller, and seeds them back.
package torrent

import (
	"crypto/rand"
	"net"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"github.com/rcrowley/go-metrics"
	"github.com/tidetorrent/tide/internal/acceptor"
	"github.com/tidetorrent/tide/internal/addrlist"
	"github.com/tidetorrent/tide/internal/allocator"
	"github.com/tidetorrent/tide/internal/bitfield"
	"github.com/tidetorrent/tide/internal/bufferpool"
	"github.com/tidetorrent/tide/internal/counter"
	"github.com/tidetorrent/tide/internal/handshake"
	"github.com/tidetorrent/tide/internal/logger"
	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/piece"
	"github.com/tidetorrent/tide/internal/piecedownloader"
	"github.com/tidetorrent/tide/internal/piecehash"
	"github.com/tidetorrent/tide/internal/piecepicker"
	"github.com/tidetorrent/tide/internal/piecewriter"
	"github.com/tidetorrent/tide/internal/resourcemanager"
	"github.com/tidetorrent/tide/internal/semaphore"
	"github.com/tidetorrent/tide/internal/suspendchan"
	"github.com/tidetorrent/tide/internal/unchoker"
	"github.com/tidetorrent/tide/internal/verifier"
	"github.com/tidetorrent/tide/resumer"
	"github.com/tidetorrent/tide/storage"
)

// http://www.bittorrent.org/beps/bep_0020.html
var peerIDPrefix = []byte("-TD0001-")

// Torrent downloads the pieces described by a Spec from remote peers
// and writes them to the storage after verification.
type Torrent struct {
	config Config

	infoHash    [20]byte
	name        string
	pieceLength uint32
	hashes      [][]byte
	hashAlgo    piecehash.Algorithm
	fileSpecs   []FileSpec
	totalLength int64
	numPieces   uint32

	storage storage.Storage
	resume  resumer.Resumer

	// Unique peer ID is generated per torrent.
	peerID [20]byte

	// Reserved bytes announced in the handshake.
	extensions [8]byte

	// Peer listen port. Set by the acceptor when zero.
	port int

	// Open files of the download, in piece mapping order.
	files []allocator.File

	// Contains state about the pieces of the torrent.
	pieces []piece.Piece

	// Selects the next piece to download from a peer.
	piecePicker *piecepicker.PiecePicker

	// Pieces we have and verified. May be nil until allocation and
	// verification are finished.
	bitfield  *bitfield.Bitfield
	mBitfield sync.RWMutex

	// Set when all pieces are downloaded and verified.
	completed bool

	// Closed when all pieces are downloaded and verified.
	completeC chan struct{}

	// Non-nil while the torrent is running. An unrecoverable error is
	// sent to this channel when the torrent stops itself.
	errC chan error

	// Error that caused the last stop.
	lastError error

	// Set when Verify is called on a running torrent. The torrent is
	// restarted through the verifier after the stop finishes.
	doVerify bool

	// Connected peers after the handshake.
	peers         map[*peer.Peer]struct{}
	incomingPeers map[*peer.Peer]struct{}
	outgoingPeers map[*peer.Peer]struct{}
	peersSnubbed  map[*peer.Peer]struct{}

	// Active piece downloads.
	pieceDownloaders        map[*peer.Peer]*piecedownloader.PieceDownloader
	pieceDownloadersSnubbed map[*peer.Peer]*piecedownloader.PieceDownloader
	pieceDownloadersChoked  map[*peer.Peer]*piecedownloader.PieceDownloader

	// All messages from peers are sent to this channel.
	messages chan peer.Message

	// Piece blocks from peers are sent to this channel. It is
	// suspended while a piece write is in flight.
	pieceMessagesC *suspendchan.Chan[peer.PieceMessage]

	// A peer is sent to this channel when it does not deliver a
	// requested block in time.
	peerSnubbedC chan *peer.Peer

	// A peer is sent to this channel when its connection closes.
	peerDisconnectedC chan *peer.Peer

	// Keeps the addresses to dial ordered by BEP 40 priority.
	addrList *addrlist.AddrList

	// Sets to suppress duplicate connections.
	peerIDs          map[[20]byte]struct{}
	connectedPeerIPs map[string]struct{}

	// IPs that sent corrupt data or misbehaved above the limit.
	bannedPeerIPs map[string]struct{}

	// Listens for incoming peer connections.
	acceptor *acceptor.Acceptor

	// New raw connections from the acceptor are sent to this channel.
	incomingConnC chan net.Conn

	// Peers in handshake state.
	incomingHandshakers map[*handshake.Incoming]struct{}
	outgoingHandshakers map[*handshake.Outgoing]struct{}

	// Handshakers send results to these channels.
	incomingHandshakerResultC chan *handshake.Incoming
	outgoingHandshakerResultC chan *handshake.Outgoing

	// Chokes and unchokes peers on periodic ticks.
	unchoker *unchoker.Unchoker

	allocator          *allocator.Allocator
	allocatorProgressC chan allocator.Progress
	allocatorResultC   chan *allocator.Allocator
	bytesAllocated     int64

	verifier          *verifier.Verifier
	verifierProgressC chan verifier.Progress
	verifierResultC   chan *verifier.Verifier
	checkedPieces     uint32

	// Piece write results are sent to this channel by piece writers.
	pieceWriterResultC chan *piecewriter.PieceWriter

	// Bounds the number of parallel piece writes.
	semWrite *semaphore.Semaphore

	// Budget of bytes in piece buffers not yet written to disk.
	ram        *resourcemanager.ResourceManager[*peer.Peer]
	ramNotifyC chan *peer.Peer

	// Pool of whole-piece staging buffers.
	piecePool *bufferpool.Pool

	// Rate limiting buckets for download/upload bandwidth. Nil when
	// unlimited.
	bucketDownload *ratelimit.Bucket
	bucketUpload   *ratelimit.Bucket

	downloadSpeed       metrics.Meter
	uploadSpeed         metrics.Meter
	writesPerSecond     metrics.Meter
	writeBytesPerSecond metrics.Meter

	bytesDownloaded counter.Counter
	bytesUploaded   counter.Counter
	bytesWasted     counter.Counter

	seededFor             counter.Counter
	seedDurationUpdatedAt time.Time

	// Commands to the run loop.
	closeC               chan struct{}
	closeOnce            sync.Once
	doneC                chan struct{}
	startCommandC        chan struct{}
	stopCommandC         chan struct{}
	verifyCommandC       chan struct{}
	statsCommandC        chan statsRequest
	peersCommandC        chan peersRequest
	portCommandC         chan portRequest
	notifyErrorCommandC  chan notifyErrorCommand
	notifyListenCommandC chan notifyListenCommand
	addPeersCommandC     chan []*net.TCPAddr
	setPriorityCommandC  chan priorityCommand

	// Port is sent to this channel when the acceptor starts listening.
	portC chan int

	// Piece priorities set before the picker exists are applied in
	// handleAllocationDone.
	priorities map[uint32]Priority

	log logger.Logger
}

// New returns a new Torrent for the given spec.
// DefaultConfig is used if cfg is nil. Call Start to begin downloading.
func New(spec *Spec, cfg *Config) (*Torrent, error) {
	return newTorrent(spec, spec.Bitfield, spec.Resumer, resumer.Stats{}, cfg)
}

// NewResume returns a new Torrent that continues from the bitfield and
// transfer counters saved in res. res is also used for saving progress
// while the torrent runs.
func NewResume(spec *Spec, res resumer.Resumer, cfg *Config) (*Torrent, error) {
	bf, err := res.ReadBitfield()
	if err != nil {
		return nil, err
	}
	stats, err := res.ReadStats()
	if err != nil {
		return nil, err
	}
	return newTorrent(spec, bf, res, stats, cfg)
}

func newTorrent(spec *Spec, bf []byte, res resumer.Resumer, stats resumer.Stats, cfg *Config) (*Torrent, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &DefaultConfig
	}
	logName := spec.Name
	if len(logName) > 20 {
		logName = logName[:20]
	}
	var b *bitfield.Bitfield
	if bf != nil {
		var err error
		b, err = bitfield.NewBytes(bf, uint32(len(spec.Hashes)))
		if err != nil {
			return nil, err
		}
	}
	t := &Torrent{
		config:                    *cfg,
		infoHash:                  spec.InfoHash,
		name:                      spec.Name,
		pieceLength:               spec.PieceLength,
		hashes:                    spec.Hashes,
		hashAlgo:                  spec.Hash.algorithm(),
		fileSpecs:                 spec.Files,
		totalLength:               spec.totalLength(),
		numPieces:                 uint32(len(spec.Hashes)),
		storage:                   spec.Storage,
		resume:                    res,
		port:                      spec.Port,
		bitfield:                  b,
		log:                       logger.New("torrent " + logName),
		completeC:                 make(chan struct{}),
		peers:                     make(map[*peer.Peer]struct{}),
		incomingPeers:             make(map[*peer.Peer]struct{}),
		outgoingPeers:             make(map[*peer.Peer]struct{}),
		peersSnubbed:              make(map[*peer.Peer]struct{}),
		pieceDownloaders:          make(map[*peer.Peer]*piecedownloader.PieceDownloader),
		pieceDownloadersSnubbed:   make(map[*peer.Peer]*piecedownloader.PieceDownloader),
		pieceDownloadersChoked:    make(map[*peer.Peer]*piecedownloader.PieceDownloader),
		messages:                  make(chan peer.Message),
		pieceMessagesC:            suspendchan.New[peer.PieceMessage](0),
		peerSnubbedC:              make(chan *peer.Peer),
		peerDisconnectedC:         make(chan *peer.Peer),
		peerIDs:                   make(map[[20]byte]struct{}),
		connectedPeerIPs:          make(map[string]struct{}),
		bannedPeerIPs:             make(map[string]struct{}),
		incomingConnC:             make(chan net.Conn),
		incomingHandshakers:       make(map[*handshake.Incoming]struct{}),
		outgoingHandshakers:       make(map[*handshake.Outgoing]struct{}),
		incomingHandshakerResultC: make(chan *handshake.Incoming),
		outgoingHandshakerResultC: make(chan *handshake.Outgoing),
		unchoker:                  unchoker.New(cfg.UnchokedPeers, cfg.OptimisticUnchokedPeers),
		allocatorProgressC:        make(chan allocator.Progress),
		allocatorResultC:          make(chan *allocator.Allocator),
		verifierProgressC:         make(chan verifier.Progress),
		verifierResultC:           make(chan *verifier.Verifier),
		pieceWriterResultC:        make(chan *piecewriter.PieceWriter),
		semWrite:                  semaphore.New(cfg.ParallelWrites),
		ram:                       resourcemanager.New[*peer.Peer](cfg.WritePendingBytesLimit),
		ramNotifyC:                make(chan *peer.Peer),
		piecePool:                 bufferpool.New(int(spec.PieceLength)),
		downloadSpeed:             metrics.NilMeter{},
		uploadSpeed:               metrics.NilMeter{},
		writesPerSecond:           metrics.NewMeter(),
		writeBytesPerSecond:       metrics.NewMeter(),
		closeC:                    make(chan struct{}),
		doneC:                     make(chan struct{}),
		startCommandC:             make(chan struct{}),
		stopCommandC:              make(chan struct{}),
		verifyCommandC:            make(chan struct{}),
		statsCommandC:             make(chan statsRequest),
		peersCommandC:             make(chan peersRequest),
		portCommandC:              make(chan portRequest),
		notifyErrorCommandC:       make(chan notifyErrorCommand),
		notifyListenCommandC:      make(chan notifyListenCommand),
		addPeersCommandC:          make(chan []*net.TCPAddr),
		setPriorityCommandC:       make(chan priorityCommand),
		priorities:                make(map[uint32]Priority),
	}
	t.bytesDownloaded.Inc(stats.BytesDownloaded)
	t.bytesUploaded.Inc(stats.BytesUploaded)
	t.bytesWasted.Inc(stats.BytesWasted)
	t.seededFor.Inc(int64(stats.SeededFor))
	if cfg.SpeedLimitDownload > 0 {
		t.bucketDownload = ratelimit.NewBucketWithRate(float64(cfg.SpeedLimitDownload), int64(cfg.SpeedLimitDownload))
	}
	if cfg.SpeedLimitUpload > 0 {
		t.bucketUpload = ratelimit.NewBucketWithRate(float64(cfg.SpeedLimitUpload), int64(cfg.SpeedLimitUpload))
	}
	t.addrList = addrlist.New(cfg.MaxPeerAddresses, t.port, nil)
	copy(t.peerID[:], peerIDPrefix)
	_, err := rand.Read(t.peerID[len(peerIDPrefix):])
	if err != nil {
		return nil, err
	}
	go t.run()
	return t, nil
}

// InfoHash of the torrent.
func (t *Torrent) InfoHash() [20]byte {
	return t.infoHash
}

// Name of the torrent, as given in the Spec.
func (t *Torrent) Name() string {
	return t.name
}

// Bitfield returns a snapshot of the pieces that are downloaded and
// verified. Returns nil before the files are allocated and checked.
func (t *Torrent) Bitfield() []byte {
	t.mBitfield.RLock()
	defer t.mBitfield.RUnlock()
	if t.bitfield == nil {
		return nil
	}
	b := make([]byte, len(t.bitfield.Bytes()))
	copy(b, t.bitfield.Bytes())
	return b
}
