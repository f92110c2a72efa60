package pefile

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// FileSource reads a file on disk. Every ReadRange opens the file, reads,
// and closes it again, so no descriptor outlives a single query no matter
// how many times the mapped view is probed.
type FileSource struct {
	path string
	size int64
}

func NewFileSource(path string) (*FileSource, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	return &FileSource{path: path, size: stat.Size()}, nil
}

func (f *FileSource) Path() string {
	return f.path
}

func (f *FileSource) Size() int64 {
	return f.size
}

func (f *FileSource) ReadRange(off int64, n int) ([]byte, error) {
	if n <= 0 || off < 0 || off >= f.size {
		return nil, nil
	}
	if max := f.size - off; int64(n) > max {
		n = int(max)
	}
	fd, err := os.Open(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer fd.Close()
	buf := make([]byte, n)
	m, err := fd.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "read %d bytes at 0x%x", n, off)
	}
	return buf[:m], nil
}

// MmapSource maps the file once and serves reads from the mapping. Faster
// for repeated queries on large files; the caller owns Close.
type MmapSource struct {
	f *os.File
	m mmap.MMap
}

func NewMmapSource(path string) (*MmapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "mmap")
	}
	return &MmapSource{f: f, m: m}, nil
}

func (s *MmapSource) Size() int64 {
	return int64(len(s.m))
}

func (s *MmapSource) ReadRange(off int64, n int) ([]byte, error) {
	if n <= 0 || off < 0 || off >= int64(len(s.m)) {
		return nil, nil
	}
	end := off + int64(n)
	if end > int64(len(s.m)) {
		end = int64(len(s.m))
	}
	out := make([]byte, end-off)
	copy(out, s.m[off:end])
	return out, nil
}

func (s *MmapSource) Close() error {
	err := s.m.Unmap()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
