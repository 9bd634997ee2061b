package filesection

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

var data = []string{"asdf", "a", "", "qwerty"}

func TestPieceReadWrite(t *testing.T) {
	dir := t.TempDir()
	osFiles := make([]*os.File, len(data))
	for i, s := range data {
		filename := filepath.Join(dir, "file"+strconv.Itoa(i))
		err := os.WriteFile(filename, []byte(s), 0o600)
		if err != nil {
			t.Fatal(err)
		}
		osFiles[i], err = os.OpenFile(filename, os.O_RDWR, 0o666)
		if err != nil {
			t.Fatal(err)
		}
	}
	pf := Piece{
		{osFiles[0], 2, 2},
		{osFiles[1], 0, 1},
		{osFiles[2], 0, 0},
		{osFiles[3], 0, 2},
	}

	if pf.Length() != 5 {
		t.Errorf("length = %d", pf.Length())
	}

	// full read across section boundaries
	b := make([]byte, 5)
	n, err := pf.ReadAt(b, 0)
	if err != nil {
		t.Error(err)
	}
	if n != 5 {
		t.Errorf("n == %d", n)
	}
	if string(b) != "dfaqw" {
		t.Errorf("b = %s", string(b))
	}

	// read with offset into the middle of the first section
	b = make([]byte, 3)
	n, err = pf.ReadAt(b, 1)
	if err != nil {
		t.Error(err)
	}
	if n != 3 {
		t.Errorf("n == %d", n)
	}
	if string(b) != "faq" {
		t.Errorf("b = %s", string(b))
	}

	// batch write of the whole piece
	n, err = pf.Write([]byte("12345"))
	if err != nil {
		t.Error(err)
	}
	if n != 5 {
		t.Errorf("n == %d", n)
	}
	if content(osFiles[0]) != "as12" {
		t.Fail()
	}
	if content(osFiles[1]) != "3" {
		t.Fail()
	}
	if content(osFiles[2]) != "" {
		t.Fail()
	}
	if content(osFiles[3]) != "45erty" {
		t.Fail()
	}
}

func content(f *os.File) string {
	_, _ = f.Seek(0, io.SeekStart)
	fi, _ := f.Stat()
	b := make([]byte, fi.Size())
	_, _ = f.Read(b)
	return string(b)
}
