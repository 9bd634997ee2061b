// Package resumer contains an interface for saving progress of a
// download so it can be resumed later without re-checking every piece.
package resumer

import "time"

// Resumer provides operations to save and load resume info for a
// download.
type Resumer interface {
	WriteBitfield([]byte) error
	ReadBitfield() ([]byte, error)
	WriteStats(Stats) error
	ReadStats() (Stats, error)
}

// Stats contains the transfer counters that survive a restart.
type Stats struct {
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
}
