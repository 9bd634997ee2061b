package boltdbresumer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidetorrent/tide/resumer"
	bolt "go.etcd.io/bbolt"
)

func TestResumer(t *testing.T) {
	dir, err := os.MkdirTemp("", "tide-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := bolt.Open(filepath.Join(dir, "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	res, err := New(db, []byte("downloads"), "1")
	require.NoError(t, err)

	// No spec written yet
	_, err = res.Read()
	require.Equal(t, ErrNotFound, err)

	spec := &Spec{
		InfoHash:        []byte("01234567890123456789"),
		Dest:            dir,
		Bitfield:        []byte{0xa0},
		AddedAt:         time.Now().Truncate(time.Second),
		BytesDownloaded: 123,
	}
	require.NoError(t, res.Write(spec))

	got, err := res.Read()
	require.NoError(t, err)
	assert.Equal(t, spec.InfoHash, got.InfoHash)
	assert.Equal(t, spec.Dest, got.Dest)
	assert.Equal(t, spec.Bitfield, got.Bitfield)
	assert.True(t, spec.AddedAt.Equal(got.AddedAt))
	assert.Equal(t, spec.BytesDownloaded, got.BytesDownloaded)

	require.NoError(t, res.WriteBitfield([]byte{0xff}))
	require.NoError(t, res.WriteStats(resumer.Stats{BytesDownloaded: 456, BytesUploaded: 7}))

	got, err = res.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, got.Bitfield)
	assert.Equal(t, int64(456), got.BytesDownloaded)
	assert.Equal(t, int64(7), got.BytesUploaded)

	bf, err := res.ReadBitfield()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, bf)

	stats, err := res.ReadStats()
	require.NoError(t, err)
	assert.Equal(t, resumer.Stats{BytesDownloaded: 456, BytesUploaded: 7}, stats)
}

func TestResumerFresh(t *testing.T) {
	dir, err := os.MkdirTemp("", "tide-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := bolt.Open(filepath.Join(dir, "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	res, err := New(db, []byte("downloads"), "1")
	require.NoError(t, err)

	// Nothing saved yet. Reads return empty state and writes create
	// the sub-bucket on demand.
	bf, err := res.ReadBitfield()
	require.NoError(t, err)
	assert.Nil(t, bf)

	stats, err := res.ReadStats()
	require.NoError(t, err)
	assert.Equal(t, resumer.Stats{}, stats)

	require.NoError(t, res.WriteBitfield([]byte{0x0f}))
	require.NoError(t, res.WriteStats(resumer.Stats{BytesDownloaded: 1}))

	bf, err = res.ReadBitfield()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0f}, bf)
}
