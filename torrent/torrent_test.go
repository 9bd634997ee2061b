package torrent

import (
	"bytes"
	"crypto/sha1"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/peersource"
	"github.com/tidetorrent/tide/storage/filestorage"
)

const testPieceLength = 1024

func testSpec(t *testing.T, data []byte) *Spec {
	return testSpecAt(t, data, t.TempDir())
}

func testSpecAt(t *testing.T, data []byte, dir string) *Spec {
	sto, err := filestorage.New(dir, filestorage.PreallocationSparse)
	require.NoError(t, err)
	var hashes [][]byte
	for i := 0; i < len(data); i += testPieceLength {
		end := i + testPieceLength
		if end > len(data) {
			end = len(data)
		}
		h := sha1.Sum(data[i:end])
		hashes = append(hashes, h[:])
	}
	return &Spec{
		InfoHash:    sha1.Sum([]byte("test torrent")),
		Name:        "test torrent",
		PieceLength: testPieceLength,
		Hashes:      hashes,
		Hash:        HashSHA1,
		Files:       []FileSpec{{Path: "data", Length: int64(len(data))}},
		Storage:     sto,
	}
}

func testData(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(42)).Read(data)
	return data
}

func waitForStatus(t *testing.T, tor *Torrent, want Status) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for tor.Stats().Status != want {
		if time.Now().After(deadline) {
			t.Fatalf("torrent did not reach status %s", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartStop(t *testing.T) {
	tor, err := New(testSpec(t, testData(4*testPieceLength)), nil)
	require.NoError(t, err)
	defer tor.Close()

	assert.Equal(t, Stopped, tor.Stats().Status)

	tor.Start()
	errC := tor.NotifyError()
	require.NotNil(t, errC)

	tor.Stop()
	waitForStatus(t, tor, Stopped)
	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("no value on error channel after stop")
	}
}

func TestVerifyExistingData(t *testing.T) {
	data := testData(4*testPieceLength + 100)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), data, 0o600))

	tor, err := New(testSpecAt(t, data, dir), nil)
	require.NoError(t, err)
	defer tor.Close()

	tor.Start()
	waitForStatus(t, tor, Seeding)

	stats := tor.Stats()
	assert.Equal(t, stats.Pieces.Total, stats.Pieces.Have)
	assert.Equal(t, int64(len(data)), stats.Bytes.Completed)

	bf := tor.Bitfield()
	require.NotNil(t, bf)
}

func TestDownloadTorrent(t *testing.T) {
	data := testData(10*testPieceLength + 512)

	seederDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seederDir, "data"), data, 0o600))
	seeder, err := New(testSpecAt(t, data, seederDir), nil)
	require.NoError(t, err)
	defer seeder.Close()
	seeder.Start()

	var port int
	select {
	case port = <-seeder.NotifyListen():
	case <-time.After(5 * time.Second):
		t.Fatal("seeder did not start listening")
	}
	require.NotZero(t, port)

	leechDir := t.TempDir()
	leecher, err := New(testSpecAt(t, data, leechDir), nil)
	require.NoError(t, err)
	defer leecher.Close()
	leecher.Start()
	leecher.AddPeers([]*net.TCPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: port}})

	select {
	case <-leecher.NotifyComplete():
	case <-time.After(30 * time.Second):
		t.Fatal("download did not finish")
	}

	got, err := os.ReadFile(filepath.Join(leechDir, "data"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	stats := leecher.Stats()
	assert.Equal(t, Seeding, stats.Status)
	assert.Equal(t, stats.Pieces.Total, stats.Pieces.Have)
	assert.GreaterOrEqual(t, stats.Bytes.Downloaded, int64(len(data)))
}

func TestExtensionMessageIgnored(t *testing.T) {
	tor, err := New(testSpec(t, testData(testPieceLength)), nil)
	require.NoError(t, err)
	defer tor.Close()

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()
	pe := peer.New(local, peersource.Incoming, [20]byte{}, [8]byte{}, time.Minute, time.Minute, 1, 2, 4, nil, nil)

	tor.messages <- peer.Message{Peer: pe, Message: peerprotocol.ExtensionMessage{ExtendedID: 1}}

	// The loop must survive the frame and keep answering queries.
	assert.Equal(t, Stopped, tor.Stats().Status)
}
