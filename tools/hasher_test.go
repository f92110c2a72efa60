package tools

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"

	"pemap/models"
	"pemap/pefile"
)

type recordDiag struct {
	warns []string
}

func (d *recordDiag) Warnf(format string, args ...interface{}) {
	d.warns = append(d.warns, fmt.Sprintf(format, args...))
}

func (d *recordDiag) Infof(format string, args ...interface{}) {}

func TestFileHash(t *testing.T) {
	data := bytes.Repeat([]byte("abcd1234"), 5000) // crosses chunk boundaries
	src := models.NewBuffer(data)

	sum, err := FileHash(src, sha256.New())
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(data)
	if !bytes.Equal(sum, want[:]) {
		t.Errorf("file hash = %x, want %x", sum, want)
	}
}

func TestHashRange(t *testing.T) {
	data := []byte("0123456789")
	src := models.NewBuffer(data)

	sum, err := HashRange(src, sha256.New(), 2, 6)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(data[2:6])
	if !bytes.Equal(sum, want[:]) {
		t.Errorf("range hash mismatch")
	}

	if _, err := HashRange(src, sha256.New(), 6, 2); err == nil {
		t.Error("inverted range should fail")
	}

	// range past EOF digests only what exists
	sum, err = HashRange(src, sha256.New(), 8, 100)
	if err != nil {
		t.Fatal(err)
	}
	want = sha256.Sum256(data[8:])
	if !bytes.Equal(sum, want[:]) {
		t.Errorf("EOF-clipped hash mismatch")
	}
}

// minimalPE crafts a PE32 image with one real section at 0x400 and one
// all-zero (unmappable) section header.
func minimalPE() []byte {
	p := make([]byte, 0x600)
	le := binary.LittleEndian
	copy(p[0:2], "MZ")
	le.PutUint32(p[60:64], 0x40)
	copy(p[0x40:], "PE\x00\x00")
	coff := p[0x44:]
	le.PutUint16(coff[0:2], 0x014c)
	le.PutUint16(coff[2:4], 2)
	le.PutUint16(coff[16:18], 96+16*8)
	opt := p[0x58:]
	le.PutUint16(opt[0:2], 0x10b)
	le.PutUint32(opt[32:36], 0x1000) // section alignment
	le.PutUint32(opt[36:40], 0x200)  // file alignment
	le.PutUint32(opt[92:96], 16)
	sec := p[0x58+96+16*8:]
	copy(sec[0:8], ".text")
	le.PutUint32(sec[8:12], 0x100)  // virtual size
	le.PutUint32(sec[12:16], 0x1000) // virtual address
	le.PutUint32(sec[16:20], 0x200) // raw size
	le.PutUint32(sec[20:24], 0x400) // raw pointer
	// second header left all zero
	for i := 0x400; i < 0x600; i++ {
		p[i] = byte(i * 7)
	}
	return p
}

func TestSectionHash(t *testing.T) {
	image := minimalPE()
	diag := &recordDiag{}
	f, err := pefile.New(models.NewBuffer(image), diag)
	if err != nil {
		t.Fatal(err)
	}

	sum, err := SectionHash(f, 0, sha256.New(), diag)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(image[0x400:0x600])
	if !bytes.Equal(sum, want[:]) {
		t.Errorf("section hash = %x, want %x", sum, want)
	}

	// the all-zero section has nothing physical to hash
	sum, err = SectionHash(f, 1, sha256.New(), diag)
	if err != nil {
		t.Fatal(err)
	}
	if sum != nil {
		t.Errorf("empty section hash = %x, want none", sum)
	}
	if len(diag.warns) == 0 {
		t.Error("expected a diagnostic for the empty section")
	}

	if _, err := SectionHash(f, 5, sha256.New(), diag); err == nil {
		t.Error("out-of-range section index should fail")
	}
}

func TestSpamSum(t *testing.T) {
	src := models.NewBuffer(bytes.Repeat([]byte("the quick brown fox "), 600))
	ss, err := SpamSum(src)
	if err != nil {
		t.Fatal(err)
	}
	if ss == "" {
		t.Error("empty fuzzy hash")
	}
}
