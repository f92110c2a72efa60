package memmap

import (
	"bytes"
	"testing"

	"pemap/models"
)

func TestMappingTranslate(t *testing.T) {
	src := models.NewBuffer(pattern(0x1000))
	m := NewMapping(VirtRange{0x4000, 0x4800}, PhysRange{0x100, 0x900}, src)

	for _, row := range []struct {
		va, off uint64
	}{
		{0x4000, 0x100},
		{0x4001, 0x101},
		{0x47ff, 0x8ff},
	} {
		if got := m.Translate(row.va); got != row.off {
			t.Errorf("translate(%#x) = %#x, want %#x", row.va, got, row.off)
		}
	}
}

func TestMappingBytesAt(t *testing.T) {
	data := pattern(0x1000)
	src := models.NewBuffer(data)
	m := NewMapping(VirtRange{0x4000, 0x4800}, PhysRange{0x100, 0x900}, src)

	p, err := m.BytesAt(0x4010, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, data[0x110:0x120]) {
		t.Error("bytesAt read wrong physical bytes")
	}

	b, err := m.ByteAt(0x4010)
	if err != nil {
		t.Fatal(err)
	}
	if b != data[0x110] {
		t.Errorf("byteAt = %#x, want %#x", b, data[0x110])
	}
}

func TestMappingBytesAtPastEOF(t *testing.T) {
	// physical range runs past the end of a 0x500-byte file; the loader
	// zero-fills what the file can't supply
	data := pattern(0x500)
	src := models.NewBuffer(data)
	m := NewMapping(VirtRange{0x1000, 0x1800}, PhysRange{0x400, 0xc00}, src)

	p, err := m.BytesAt(0x10f0, 0x20)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 0x20 {
		t.Fatalf("len = %d, want 0x20", len(p))
	}
	if !bytes.Equal(p[:0x10], data[0x4f0:0x500]) {
		t.Error("in-file bytes mismatch")
	}
	for i := 0x10; i < 0x20; i++ {
		if p[i] != 0 {
			t.Fatalf("byte %#x past EOF not zero", i)
		}
	}

	if _, err := m.BytesAt(0x1000, -1); err == nil {
		t.Error("negative size should fail")
	}
}
