package models

// ByteSource is read-only access to the physical bytes of a file.
// ReadRange returns up to n bytes starting at off. Ranges past the end of
// the source clip to a short (possibly empty) read rather than an error;
// an error means the underlying read itself failed.
type ByteSource interface {
	Size() int64
	ReadRange(off int64, n int) ([]byte, error)
}

// Buffer is an in-memory ByteSource.
type Buffer struct {
	data []byte
}

func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Size() int64 {
	return int64(len(b.data))
}

func (b *Buffer) ReadRange(off int64, n int) ([]byte, error) {
	if n <= 0 || off < 0 || off >= int64(len(b.data)) {
		return nil, nil
	}
	end := off + int64(n)
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	out := make([]byte, end-off)
	copy(out, b.data[off:end])
	return out, nil
}
