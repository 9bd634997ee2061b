// Package boltdbresumer provides a Resumer implementation that uses a
// Bolt database file as storage.
package boltdbresumer

import (
	"errors"
	"strconv"
	"time"

	"github.com/tidetorrent/tide/resumer"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned from Read when there is no saved state for
// the download.
var ErrNotFound = errors.New("no resume info found")

// Keys for the persistent storage.
var Keys = struct {
	InfoHash        []byte
	Dest            []byte
	Bitfield        []byte
	AddedAt         []byte
	BytesDownloaded []byte
	BytesUploaded   []byte
	BytesWasted     []byte
	SeededFor       []byte
}{
	InfoHash:        []byte("info_hash"),
	Dest:            []byte("dest"),
	Bitfield:        []byte("bitfield"),
	AddedAt:         []byte("added_at"),
	BytesDownloaded: []byte("bytes_downloaded"),
	BytesUploaded:   []byte("bytes_uploaded"),
	BytesWasted:     []byte("bytes_wasted"),
	SeededFor:       []byte("seeded_for"),
}

// Resumer saves and loads resume info of a download in a BoltDB bucket.
// Each download gets its own sub-bucket keyed by its ID.
type Resumer struct {
	db     *bolt.DB
	bucket []byte
	id     []byte
}

var _ resumer.Resumer = (*Resumer)(nil)

// Spec is the saved state of a single download.
type Spec struct {
	InfoHash        []byte
	Dest            string
	Bitfield        []byte
	AddedAt         time.Time
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
}

// New returns a new Resumer for the download with the given ID.
func New(db *bolt.DB, bucket []byte, id string) (*Resumer, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(bucket)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{
		db:     db,
		bucket: bucket,
		id:     []byte(id),
	}, nil
}

// Write the full spec of the download.
func (r *Resumer) Write(spec *Spec) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists(r.id)
		if err != nil {
			return err
		}
		_ = b.Put(Keys.InfoHash, spec.InfoHash)
		_ = b.Put(Keys.Dest, []byte(spec.Dest))
		_ = b.Put(Keys.Bitfield, spec.Bitfield)
		_ = b.Put(Keys.AddedAt, []byte(spec.AddedAt.Format(time.RFC3339)))
		_ = b.Put(Keys.BytesDownloaded, []byte(strconv.FormatInt(spec.BytesDownloaded, 10)))
		_ = b.Put(Keys.BytesUploaded, []byte(strconv.FormatInt(spec.BytesUploaded, 10)))
		_ = b.Put(Keys.BytesWasted, []byte(strconv.FormatInt(spec.BytesWasted, 10)))
		_ = b.Put(Keys.SeededFor, []byte(spec.SeededFor.String()))
		return nil
	})
}

// WriteBitfield writes only the bitfield of the download.
func (r *Resumer) WriteBitfield(value []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists(r.id)
		if err != nil {
			return err
		}
		return b.Put(Keys.Bitfield, value)
	})
}

// WriteStats writes only the transfer counters of the download.
func (r *Resumer) WriteStats(s resumer.Stats) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists(r.id)
		if err != nil {
			return err
		}
		_ = b.Put(Keys.BytesDownloaded, []byte(strconv.FormatInt(s.BytesDownloaded, 10)))
		_ = b.Put(Keys.BytesUploaded, []byte(strconv.FormatInt(s.BytesUploaded, 10)))
		_ = b.Put(Keys.BytesWasted, []byte(strconv.FormatInt(s.BytesWasted, 10)))
		_ = b.Put(Keys.SeededFor, []byte(s.SeededFor.String()))
		return nil
	})
}

// ReadBitfield reads only the bitfield of the download.
// Returns a nil bitfield when no bitfield has been saved yet.
func (r *Resumer) ReadBitfield() ([]byte, error) {
	var value []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(r.bucket)
		if bkt == nil {
			return nil
		}
		b := bkt.Bucket(r.id)
		if b == nil {
			return nil
		}
		saved := b.Get(Keys.Bitfield)
		if len(saved) == 0 {
			return nil
		}
		value = make([]byte, len(saved))
		copy(value, saved)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// ReadStats reads only the transfer counters of the download.
// Returns zero counters when no state has been saved yet.
func (r *Resumer) ReadStats() (s resumer.Stats, err error) {
	spec, err := r.Read()
	if err == ErrNotFound {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	s.BytesDownloaded = spec.BytesDownloaded
	s.BytesUploaded = spec.BytesUploaded
	s.BytesWasted = spec.BytesWasted
	s.SeededFor = spec.SeededFor
	return s, nil
}

// Read the saved spec of the download.
func (r *Resumer) Read() (*Spec, error) {
	var spec *Spec
	err := r.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(r.bucket)
		if bkt == nil {
			return ErrNotFound
		}
		b := bkt.Bucket(r.id)
		if b == nil {
			return ErrNotFound
		}
		spec = new(Spec)

		value := b.Get(Keys.InfoHash)
		spec.InfoHash = make([]byte, len(value))
		copy(spec.InfoHash, value)

		spec.Dest = string(b.Get(Keys.Dest))

		value = b.Get(Keys.Bitfield)
		spec.Bitfield = make([]byte, len(value))
		copy(spec.Bitfield, value)

		var err error
		value = b.Get(Keys.AddedAt)
		if len(value) > 0 {
			spec.AddedAt, err = time.Parse(time.RFC3339, string(value))
			if err != nil {
				return err
			}
		}
		value = b.Get(Keys.BytesDownloaded)
		if len(value) > 0 {
			spec.BytesDownloaded, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return err
			}
		}
		value = b.Get(Keys.BytesUploaded)
		if len(value) > 0 {
			spec.BytesUploaded, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return err
			}
		}
		value = b.Get(Keys.BytesWasted)
		if len(value) > 0 {
			spec.BytesWasted, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return err
			}
		}
		value = b.Get(Keys.SeededFor)
		if len(value) > 0 {
			spec.SeededFor, err = time.ParseDuration(string(value))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}
