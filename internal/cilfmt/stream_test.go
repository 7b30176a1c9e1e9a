package cilfmt

import (
	"errors"
	"testing"
)

func TestReadCompressed_SingleByte(t *testing.T) {
	tests := []struct {
		in   byte
		want uint32
	}{
		{0x00, 0},
		{0x03, 3},
		{0x7F, 0x7F},
	}
	for _, tt := range tests {
		s := NewStream([]byte{tt.in})
		got, err := s.ReadCompressed()
		if err != nil {
			t.Errorf("ReadCompressed(%#x): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadCompressed(%#x) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReadCompressed_MultiByte(t *testing.T) {
	// Worked examples from ECMA-335 II.23.2.
	tests := []struct {
		in   []byte
		want uint32
	}{
		{[]byte{0x80, 0x80}, 0x80},
		{[]byte{0xAE, 0x57}, 0x2E57},
		{[]byte{0xBF, 0xFF}, 0x3FFF},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 0x4000},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF},
	}
	for _, tt := range tests {
		s := NewStream(tt.in)
		got, err := s.ReadCompressed()
		if err != nil {
			t.Errorf("ReadCompressed(%v): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadCompressed(%v) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestReadCompressed_Malformed(t *testing.T) {
	// Leading 111xxxxx is not a valid encoding.
	s := NewStream([]byte{0xE0, 0x00, 0x00, 0x00})
	if _, err := s.ReadCompressed(); !errors.Is(err, ErrMalformedBlob) {
		t.Errorf("expected ErrMalformedBlob, got %v", err)
	}
}

func TestReadCompressed_Truncated(t *testing.T) {
	tests := [][]byte{
		{},
		{0x80},
		{0xC0},
		{0xC0, 0x00},
		{0xC0, 0x00, 0x00},
	}
	for _, in := range tests {
		s := NewStream(in)
		if _, err := s.ReadCompressed(); !errors.Is(err, ErrStreamEOF) {
			t.Errorf("ReadCompressed(%v): expected EOF, got %v", in, err)
		}
	}
}

func TestCompressedSize(t *testing.T) {
	tests := []struct {
		b0   byte
		want int
	}{
		{0x00, 1},
		{0x7F, 1},
		{0x80, 2},
		{0xBF, 2},
		{0xC0, 4},
		{0xDF, 4},
		{0xE0, 0},
		{0xFF, 0},
	}
	for _, tt := range tests {
		if got := CompressedSize(tt.b0); got != tt.want {
			t.Errorf("CompressedSize(%#x) = %d, want %d", tt.b0, got, tt.want)
		}
	}
}

func TestReadIndex(t *testing.T) {
	s := NewStream([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12})
	narrow, err := s.ReadIndex(false)
	if err != nil || narrow != 0x1234 {
		t.Errorf("ReadIndex(narrow) = %#x, %v; want 0x1234", narrow, err)
	}
	wide, err := s.ReadIndex(true)
	if err != nil || wide != 0x12345678 {
		t.Errorf("ReadIndex(wide) = %#x, %v; want 0x12345678", wide, err)
	}
}

func TestAlign(t *testing.T) {
	s := NewStream(make([]byte, 16))
	s.SetPosition(1)
	s.Align(4)
	if s.Position() != 4 {
		t.Errorf("Align(4) from 1 = %d, want 4", s.Position())
	}
	s.Align(4)
	if s.Position() != 4 {
		t.Errorf("Align(4) from 4 = %d, want 4", s.Position())
	}
}

func TestReadCString(t *testing.T) {
	s := NewStream([]byte{'a', 'b', 0, 'c'})
	str, err := s.ReadCString()
	if err != nil || str != "ab" {
		t.Errorf("ReadCString = %q, %v; want %q", str, err, "ab")
	}
	if s.Position() != 3 {
		t.Errorf("position after ReadCString = %d, want 3", s.Position())
	}
	if _, err := s.ReadCString(); err == nil {
		t.Error("expected error for unterminated string")
	}
}
