package tools

import (
	"bytes"

	"pemap/memmap"
)

const stringsChunk = 4096

// FoundString is one printable run located in the virtual image.
type FoundString struct {
	VA   uint64
	Text string
}

func printable(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}

// ExtractStrings walks the whole virtual image in fixed chunks and collects
// printable ASCII runs of at least minLen bytes. Scanning the mapped view
// instead of the raw file means strings split across section boundaries or
// hidden by overlapping sections show up the way they would in memory, while
// zero-filled holes contribute nothing.
func ExtractStrings(mm *memmap.MemMap, minLen int) ([]FoundString, error) {
	if minLen < 1 {
		minLen = 4
	}
	var found []FoundString
	var run []byte
	var runStart uint64

	total := mm.Len()
	for off := uint64(0); off < total; off += stringsChunk {
		end := off + stringsChunk
		if end > total {
			end = total
		}
		buf, err := mm.Slice(off, end)
		if err != nil {
			return nil, err
		}
		for i, b := range buf {
			if printable(b) {
				if len(run) == 0 {
					runStart = off + uint64(i)
				}
				run = append(run, b)
				continue
			}
			if len(run) >= minLen {
				found = append(found, FoundString{VA: runStart, Text: string(run)})
			}
			run = run[:0]
		}
	}
	if len(run) >= minLen {
		found = append(found, FoundString{VA: runStart, Text: string(run)})
	}
	return found, nil
}

// FindPattern locates the first occurrence of pattern at or after the given
// virtual address, using the chunked byte scan for the leading byte so memory
// stays bounded on huge declared address spaces.
func FindPattern(mm *memmap.MemMap, pattern []byte, from uint64) (uint64, bool, error) {
	if len(pattern) == 0 {
		return from, true, nil
	}
	pos := from
	for {
		idx, ok, err := mm.IndexOf(pattern[0], pos)
		if err != nil || !ok {
			return 0, false, err
		}
		buf, err := mm.Slice(idx, idx+uint64(len(pattern)))
		if err != nil {
			return 0, false, err
		}
		if bytes.Equal(buf, pattern) {
			return idx, true, nil
		}
		pos = idx + 1
	}
}
