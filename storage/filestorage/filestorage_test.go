package filestorage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSparse(t *testing.T) {
	dir := t.TempDir()
	sto, err := New(dir, PreallocationSparse)
	require.NoError(t, err)

	f, exists, err := sto.Open("sub/data.bin", 1024)
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, f.Close())

	fi, err := os.Stat(filepath.Join(dir, "sub", "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), fi.Size())

	// second open must report existing file
	f, exists, err = sto.Open("sub/data.bin", 1024)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, f.Close())
}

func TestOpenNoPreallocation(t *testing.T) {
	dir := t.TempDir()
	sto, err := New(dir, PreallocationNone)
	require.NoError(t, err)

	f, _, err := sto.Open("data.bin", 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := os.Stat(filepath.Join(dir, "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}

func TestOpenFullPreallocation(t *testing.T) {
	dir := t.TempDir()
	sto, err := New(dir, PreallocationFull)
	require.NoError(t, err)

	f, _, err := sto.Open("data.bin", 300*1024)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(filepath.Join(dir, "data.bin"))
	require.NoError(t, err)
	require.Len(t, b, 300*1024)
	for _, v := range b {
		if v != 0 {
			t.Fatal("file is not zero filled")
		}
	}
}
