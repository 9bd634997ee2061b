package peerwriter

// BlockUploaded is used to signal the torrent loop when a piece block
// is uploaded to the remote peer, so uploaded bytes can be counted.
type BlockUploaded struct {
	Length uint32
}
