// Package tools holds the downstream consumers of the parsed PE: hashing and
// string extraction for forensic reports.
package tools

import (
	"hash"
	"math"

	"github.com/michielbuddingh/spamsum"
	"github.com/pkg/errors"

	"pemap/models"
	"pemap/pefile"
)

const hashChunk = 16384

// HashRange digests the physical byte range [from, until) in fixed chunks.
func HashRange(src models.ByteSource, h hash.Hash, from, until int64) ([]byte, error) {
	if until < from {
		return nil, errors.Errorf("hash range 0x%x:0x%x inverted", from, until)
	}
	for off := from; off < until; off += hashChunk {
		n := hashChunk
		if rest := until - off; rest < hashChunk {
			n = int(rest)
		}
		p, err := src.ReadRange(off, n)
		if err != nil {
			return nil, errors.Wrapf(err, "hash read at 0x%x", off)
		}
		h.Write(p)
		if len(p) < n {
			// source ended early, nothing more to digest
			break
		}
	}
	return h.Sum(nil), nil
}

// FileHash digests the whole file.
func FileHash(src models.ByteSource, h hash.Hash) ([]byte, error) {
	return HashRange(src, h, 0, src.Size())
}

// SectionHash digests the raw bytes the loader would commit for one section:
// aligned pointer to raw up to the clipped read size. A section with no
// physical bytes hashes to nothing, with a diagnostic.
func SectionHash(f *pefile.File, index int, h hash.Hash, diag models.Diag) ([]byte, error) {
	if diag == nil {
		diag = models.NopDiag
	}
	t := f.Sections
	if t == nil || index < 0 || index >= len(t.Headers) {
		return nil, errors.Errorf("no section %d", index)
	}
	hdr := t.Headers[index]
	start := t.AlignedPointerToRaw(hdr)
	size := t.ReadSize(hdr)
	if size == 0 {
		diag.Warnf("section %d (%q) has no physical bytes to hash", index, hdr.Name)
		return nil, nil
	}
	return HashRange(f.Src, h, int64(start), int64(start+size))
}

// SpamSum computes the fuzzy hash of the whole file, for clustering samples
// that differ only in patched regions.
func SpamSum(src models.ByteSource) (string, error) {
	size := src.Size()
	if size > math.MaxInt32 {
		return "", errors.Errorf("file too large for fuzzy hash: %d bytes", size)
	}
	p, err := src.ReadRange(0, int(size))
	if err != nil {
		return "", errors.Wrap(err, "fuzzy hash read")
	}
	return spamsum.HashBytes(p).String(), nil
}
