package memmap

import (
	"fmt"

	"github.com/pkg/errors"

	"pemap/models"
)

// Mapping binds one virtual range to one physical range of the backing
// source. Virt and Phys are assumed to have equal length, so a virtual
// address inside Virt always translates to a file offset inside Phys.
// A Mapping holds no open handle; the source scopes every read itself.
type Mapping struct {
	Virt VirtRange
	Phys PhysRange

	src models.ByteSource
}

func NewMapping(virt VirtRange, phys PhysRange, src models.ByteSource) Mapping {
	return Mapping{Virt: virt, Phys: phys, src: src}
}

// Translate converts va to a physical file offset. va must lie inside Virt.
func (m Mapping) Translate(va uint64) uint64 {
	return m.Phys.Start + (va - m.Virt.Start)
}

func (m Mapping) ByteAt(va uint64) (byte, error) {
	p, err := m.BytesAt(va, 1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// BytesAt reads n bytes starting at va in a single source read. Bytes past
// the end of the source are zero, matching what the loader would commit.
func (m Mapping) BytesAt(va uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Errorf("negative read size %d", n)
	}
	buf := make([]byte, n)
	p, err := m.src.ReadRange(int64(m.Translate(va)), n)
	if err != nil {
		return nil, errors.Wrapf(err, "read %d bytes at va 0x%x", n, va)
	}
	copy(buf, p)
	return buf, nil
}

func (m Mapping) String() string {
	return fmt.Sprintf("0x%x-0x%x -> 0x%x-0x%x",
		m.Virt.Start, m.Virt.End, m.Phys.Start, m.Phys.End)
}
