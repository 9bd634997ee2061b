package torrent

// Status of a Torrent.
type Status int

const (
	// Stopped indicates that the torrent is not running.
	// No peers are connected and files are not open.
	Stopped Status = iota
	// Allocating indicates that the torrent is in the process of
	// creating/opening files on the disk.
	Allocating
	// Verifying indicates that the torrent has some files on disk and
	// it is checking the validity of pieces by comparing hashes.
	Verifying
	// Downloading the torrent's files from peers.
	Downloading
	// Seeding the torrent. All pieces are downloaded and verified.
	Seeding
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Allocating:
		return "Allocating"
	case Verifying:
		return "Verifying"
	case Downloading:
		return "Downloading"
	case Seeding:
		return "Seeding"
	default:
		return "Unknown"
	}
}

func (t *Torrent) status() Status {
	switch {
	case t.errC == nil:
		return Stopped
	case t.allocator != nil:
		return Allocating
	case t.verifier != nil:
		return Verifying
	case t.completed:
		return Seeding
	default:
		return Downloading
	}
}
