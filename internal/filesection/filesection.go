// Package filesection maps a piece onto byte ranges of the torrent's files.
package filesection

import "io"

// FileSection is a continuous byte range of a file.
type FileSection struct {
	File   ReadWriterAt
	Offset int64
	Length int64
}

// ReadWriterAt combines the io.ReaderAt and io.WriterAt interfaces.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Piece is a piece of the torrent data expressed as consecutive file
// sections. When piece hashes are calculated all files are concatenated
// and split into fixed-length pieces, so a single piece may span
// multiple files.
type Piece []FileSection

// Reader returns an io.Reader over the whole piece.
// Used when verifying existing data on disk.
func (p Piece) Reader() io.Reader {
	readers := make([]io.Reader, len(p))
	for i := range p {
		readers[i] = io.NewSectionReader(p[i].File, p[i].Offset, p[i].Length)
	}
	return io.MultiReader(readers...)
}

// ReadAt reads len(b) bytes from the piece at offset off.
// Used when uploading blocks of a piece.
func (p Piece) ReadAt(b []byte, off int64) (int, error) {
	var readers []io.Reader
	var i int
	var pos int64

	// Skip sections up to the offset.
	for ; i < len(p); i++ {
		pos += p[i].Length
		if pos > off {
			break
		}
	}
	if i == len(p) {
		return 0, io.EOF
	}

	// First section may be consumed partially.
	advance := p[i].Length - (pos - off)
	readers = append(readers, io.NewSectionReader(p[i].File, p[i].Offset+advance, p[i].Length-advance))
	for i++; i < len(p); i++ {
		readers = append(readers, io.NewSectionReader(p[i].File, p[i].Offset, p[i].Length))
		pos += p[i].Length
		if pos >= off+int64(len(b)) {
			break
		}
	}

	return io.ReadFull(io.MultiReader(readers...), b)
}

// Write writes the bytes in b into the files of the piece.
// The whole piece is written in a single batch, one WriteAt call per
// file section, so len(b) must equal the total length of the sections.
func (p Piece) Write(b []byte) (n int, err error) {
	var m int
	for _, sec := range p {
		m, err = sec.File.WriteAt(b[:sec.Length], sec.Offset)
		n += m
		if err != nil {
			return
		}
		if int64(m) < sec.Length {
			return n, io.ErrShortWrite
		}
		b = b[sec.Length:]
	}
	return
}

// Length returns the total length of the sections.
func (p Piece) Length() int64 {
	var total int64
	for _, sec := range p {
		total += sec.Length
	}
	return total
}
