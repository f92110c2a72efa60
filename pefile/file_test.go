package pefile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource(t *testing.T) {
	data := []byte("0123456789abcdef")
	src, err := NewFileSource(writeTemp(t, data))
	if err != nil {
		t.Fatal(err)
	}
	if src.Size() != int64(len(data)) {
		t.Errorf("size = %d", src.Size())
	}

	p, err := src.ReadRange(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, data[4:8]) {
		t.Errorf("read = %q", p)
	}

	// reads clip at EOF instead of failing
	p, err = src.ReadRange(12, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, data[12:]) {
		t.Errorf("clipped read = %q", p)
	}
	if p, _ := src.ReadRange(100, 4); p != nil {
		t.Errorf("read past end = %q", p)
	}
	if p, _ := src.ReadRange(-1, 4); p != nil {
		t.Errorf("negative offset read = %q", p)
	}
}

func TestMmapSource(t *testing.T) {
	data := bytes.Repeat([]byte("pemap!"), 100)
	src, err := NewMmapSource(writeTemp(t, data))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.Size() != int64(len(data)) {
		t.Errorf("size = %d", src.Size())
	}
	p, err := src.ReadRange(6, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, []byte("pemap!")) {
		t.Errorf("read = %q", p)
	}
	p, err = src.ReadRange(int64(len(data))-3, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 3 {
		t.Errorf("clipped read = %d bytes", len(p))
	}
}

func TestOpenParsesFromDisk(t *testing.T) {
	path := writeTemp(t, buildPE())
	f, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.COFF.MachineName() != "x86_64" {
		t.Errorf("machine = %q", f.COFF.MachineName())
	}
	if !MatchMSDOS(f.Src) {
		t.Error("MZ magic not matched")
	}
}
