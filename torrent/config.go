package torrent

import (
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// SelectionMode determines the order in which missing pieces are
// picked from peers.
type SelectionMode int

const (
	// SelectRarestFirst picks the piece that the fewest connected peers have.
	SelectRarestFirst SelectionMode = iota
	// SelectSequential picks pieces in index order.
	SelectSequential
	// SelectRoundRobin cycles through pieces to spread requests evenly.
	SelectRoundRobin
)

// Config for a Torrent.
type Config struct {
	// Max number of outgoing connections to dial.
	MaxPeerDial int `yaml:"max_peer_dial"`
	// Max number of incoming connections to accept.
	MaxPeerAccept int `yaml:"max_peer_accept"`
	// Max number of addresses to keep in the address list.
	MaxPeerAddresses int `yaml:"max_peer_addresses"`

	// Time to wait for TCP connection to open.
	PeerConnectTimeout time.Duration `yaml:"peer_connect_timeout"`
	// Time to wait for the handshake to complete.
	PeerHandshakeTimeout time.Duration `yaml:"peer_handshake_timeout"`
	// When the peer has started to send a piece block, if it does not
	// send any bytes in PieceReadTimeout, the connection is closed.
	PieceReadTimeout time.Duration `yaml:"piece_read_timeout"`
	// Time to wait for a requested block before marking the peer as snubbed.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Lower bound of the adaptive request pipeline length.
	MinRequestsOut int `yaml:"min_requests_out"`
	// Pipeline length used before the download speed of a peer is measured.
	DefaultRequestsOut int `yaml:"default_requests_out"`
	// Upper bound of the adaptive request pipeline length.
	MaxRequestsOut int `yaml:"max_requests_out"`
	// Max number of blocks allowed to be queued by a remote peer.
	// Requests beyond this number are dropped.
	MaxRequestsIn int `yaml:"max_requests_in"`

	// Number of peers to keep unchoked by upload/download rate.
	UnchokedPeers int `yaml:"unchoked_peers"`
	// Number of peers to keep unchoked regardless of their rate.
	OptimisticUnchokedPeers int `yaml:"optimistic_unchoked_peers"`

	// Order in which missing pieces are picked.
	SelectionMode SelectionMode `yaml:"selection_mode"`
	// Ratio of finished and requested pieces over all pieces above
	// which endgame mode is activated.
	EndgameThreshold float64 `yaml:"endgame_threshold"`
	// Max number of peers a single piece may be requested from in
	// endgame mode.
	EndgameMaxDuplicateDownloads int `yaml:"endgame_max_duplicate_downloads"`

	// Protocol violation score above which a peer is disconnected and
	// banned for the lifetime of the torrent.
	MaxPeerMisbehavior int `yaml:"max_peer_misbehavior"`

	// Number of piece writes that may run in parallel.
	ParallelWrites int `yaml:"parallel_writes"`
	// Number of retries for transient piece write errors.
	MaxWriteRetries int `yaml:"max_write_retries"`
	// Budget of bytes held in piece buffers that are not written to
	// disk yet. New piece downloads wait when the budget is exhausted.
	WritePendingBytesLimit int `yaml:"write_pending_bytes_limit"`

	// Download speed limit in bytes per second. Zero means unlimited.
	SpeedLimitDownload int `yaml:"speed_limit_download"`
	// Upload speed limit in bytes per second. Zero means unlimited.
	SpeedLimitUpload int `yaml:"speed_limit_upload"`

	// Re-check existing data on start instead of trusting the bitfield
	// from the resumer.
	VerifyOnStartup bool `yaml:"verify_on_startup"`
	// Interval of writing transfer counters to the resumer.
	StatsWriteInterval time.Duration `yaml:"stats_write_interval"`
}

// DefaultConfig for Torrent. Do not pass zero value Config to torrent
// functions. Copy this struct and modify instead.
var DefaultConfig = Config{
	MaxPeerDial:                  80,
	MaxPeerAccept:                20,
	MaxPeerAddresses:             2000,
	PeerConnectTimeout:           5 * time.Second,
	PeerHandshakeTimeout:         10 * time.Second,
	PieceReadTimeout:             30 * time.Second,
	RequestTimeout:               20 * time.Second,
	MinRequestsOut:               2,
	DefaultRequestsOut:           50,
	MaxRequestsOut:               250,
	MaxRequestsIn:                250,
	UnchokedPeers:                3,
	OptimisticUnchokedPeers:      1,
	SelectionMode:                SelectRarestFirst,
	EndgameThreshold:             0.95,
	EndgameMaxDuplicateDownloads: 20,
	MaxPeerMisbehavior:           10,
	ParallelWrites:               4,
	MaxWriteRetries:              4,
	WritePendingBytesLimit:       64 << 20,
	StatsWriteInterval:           30 * time.Second,
}

// LoadConfig returns the config at path applied over DefaultConfig.
// A missing file is not an error, defaults are returned.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
