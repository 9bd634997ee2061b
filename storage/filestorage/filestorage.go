// Package filestorage implements Storage interface that uses files on disk as storage.
package filestorage

import (
	"os"
	"path/filepath"

	"github.com/tidetorrent/tide/storage"
)

// Preallocation selects how file space is reserved when a file is created.
type Preallocation int

const (
	// PreallocationNone leaves files at zero length; writes extend them as needed.
	PreallocationNone Preallocation = iota
	// PreallocationSparse truncates files to their final size, leaving holes.
	PreallocationSparse
	// PreallocationFull fills files with zeros up to their final size.
	PreallocationFull
)

// FileStorage implements Storage by keeping files under a destination directory.
type FileStorage struct {
	dest     string
	prealloc Preallocation
}

var _ storage.Storage = (*FileStorage)(nil)

// New returns a new FileStorage at the destination directory.
func New(dest string, prealloc Preallocation) (*FileStorage, error) {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	return &FileStorage{dest: dest, prealloc: prealloc}, nil
}

// Dest returns the destination directory.
func (s *FileStorage) Dest() string { return s.dest }

// Open the file with the given relative path, creating it if necessary.
func (s *FileStorage) Open(name string, size int64) (f storage.File, exists bool, err error) {
	// All files are saved under dest.
	name = filepath.Join(s.dest, filepath.Clean(name))

	err = os.MkdirAll(filepath.Dir(name), os.ModeDir|0o750)
	if err != nil {
		return
	}

	var of *os.File
	defer func() {
		if err != nil && of != nil {
			_ = of.Close()
		}
	}()

	const mode = 0o640
	of, err = os.OpenFile(name, os.O_RDWR, mode) // nolint: gosec
	if os.IsNotExist(err) {
		of, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE, mode) // nolint: gosec
		if err != nil {
			return
		}
		f = of
		err = s.preallocate(of, size)
		return
	}
	if err != nil {
		return
	}
	f = of
	exists = true
	fi, err := of.Stat()
	if err != nil {
		return
	}
	if fi.Size() != size && s.prealloc != PreallocationNone {
		err = of.Truncate(size)
	}
	return
}

func (s *FileStorage) preallocate(of *os.File, size int64) error {
	switch s.prealloc {
	case PreallocationNone:
		return nil
	case PreallocationSparse:
		return of.Truncate(size)
	case PreallocationFull:
		return writeZeros(of, size)
	default:
		return nil
	}
}

func writeZeros(of *os.File, size int64) error {
	buf := make([]byte, 256*1024)
	var off int64
	for off < size {
		n := int64(len(buf))
		if size-off < n {
			n = size - off
		}
		if _, err := of.WriteAt(buf[:n], off); err != nil {
			return err
		}
		off += n
	}
	return nil
}
