package torrent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, *c)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "max_peer_dial: 10\nrequest_timeout: 5s\nselection_mode: 1\nendgame_threshold: 0.5\n"
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c.MaxPeerDial)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
	assert.Equal(t, SelectSequential, c.SelectionMode)
	assert.Equal(t, 0.5, c.EndgameThreshold)
	// Keys not present in the file keep their defaults.
	assert.Equal(t, DefaultConfig.MaxPeerAccept, c.MaxPeerAccept)
	assert.Equal(t, DefaultConfig.UnchokedPeers, c.UnchokedPeers)
}

func TestSpecValidate(t *testing.T) {
	spec := testSpec(t, make([]byte, 2048))
	require.NoError(t, spec.validate())

	s := *spec
	s.PieceLength = 0
	assert.Error(t, s.validate())

	s = *spec
	s.Hashes = s.Hashes[:1]
	assert.Error(t, s.validate())

	s = *spec
	s.Hashes = [][]byte{{0x01}, {0x02}}
	assert.Error(t, s.validate())

	s = *spec
	s.Storage = nil
	assert.Error(t, s.validate())

	s = *spec
	s.Files = nil
	assert.Error(t, s.validate())
}
