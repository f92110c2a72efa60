package main

import (
	"bytes"
	"testing"
)

func TestParsePattern(t *testing.T) {
	for _, row := range []struct {
		in   string
		want []byte
	}{
		{"4d5a", []byte{0x4d, 0x5a}},
		{"0x4d5a90", []byte{0x4d, 0x5a, 0x90}},
	} {
		got, err := parsePattern(row.in)
		if err != nil {
			t.Errorf("parsePattern(%q): %v", row.in, err)
			continue
		}
		if !bytes.Equal(got, row.want) {
			t.Errorf("parsePattern(%q) = % x, want % x", row.in, got, row.want)
		}
	}
}

func TestParsePatternRejectsBadInput(t *testing.T) {
	for _, in := range []string{"4d5", "0x4", "zz", ""} {
		if _, err := parsePattern(in); err == nil {
			t.Errorf("parsePattern(%q) should fail", in)
		}
	}
}
