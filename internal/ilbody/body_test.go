package ilbody

import (
	"encoding/binary"
	"errors"
	"testing"
)

func tinyBody(code ...byte) []byte {
	return append([]byte{byte(len(code))<<2 | 0x02}, code...)
}

func fatBody(flags uint16, localSig uint32, code []byte) []byte {
	out := make([]byte, 12, 12+len(code))
	binary.LittleEndian.PutUint16(out[0:], flags)
	binary.LittleEndian.PutUint16(out[2:], 8)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(code)))
	binary.LittleEndian.PutUint32(out[8:], localSig)
	return append(out, code...)
}

func TestReadBody_Tiny(t *testing.T) {
	data := tinyBody(0x00, 0x00, 0x2A) // nop nop ret
	b, err := ReadBody(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.Fat {
		t.Error("tiny body marked fat")
	}
	if b.HeaderSize != 1 || b.CodeSize != 3 || b.TotalSize != 4 {
		t.Errorf("header %d code %d total %d, want 1/3/4", b.HeaderSize, b.CodeSize, b.TotalSize)
	}
	if got := b.Code(data); len(got) != 3 || got[2] != 0x2A {
		t.Errorf("Code = %x", got)
	}
}

func TestReadBody_Fat(t *testing.T) {
	code := []byte{0x00, 0x2A}
	data := fatBody(0x3013, 0x11000001, code) // fat, InitLocals
	b, err := ReadBody(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Fat || !b.InitLocals {
		t.Errorf("Fat=%v InitLocals=%v, want true/true", b.Fat, b.InitLocals)
	}
	if b.HeaderSize != 12 || b.CodeSize != 2 || b.TotalSize != 14 {
		t.Errorf("header %d code %d total %d, want 12/2/14", b.HeaderSize, b.CodeSize, b.TotalSize)
	}
	if b.LocalVarSigTok != 0x11000001 {
		t.Errorf("LocalVarSigTok = %#x", b.LocalVarSigTok)
	}
}

func TestReadBody_FatWithEHSection(t *testing.T) {
	// Fat body with MoreSects and one small EH section (one clause).
	code := []byte{0x00, 0x00, 0x00, 0x2A}
	body := fatBody(0x3003|0x08, 0, code)
	// Code ends 4-aligned at 16; small section: kind=EHTable,
	// size=4+12=16, then 2 reserved bytes and one 12-byte clause.
	sect := make([]byte, 16)
	sect[0] = sectKindEHTable
	sect[1] = 16
	data := append(body, sect...)

	b, err := ReadBody(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.TotalSize != 32 {
		t.Errorf("TotalSize = %d, want 32 (12 header + 4 code + 16 EH)", b.TotalSize)
	}
}

func TestReadBody_Malformed(t *testing.T) {
	if _, err := ReadBody([]byte{0x01}, 0); !errors.Is(err, ErrBadHeader) {
		t.Errorf("expected ErrBadHeader, got %v", err)
	}
	if _, err := ReadBody(nil, 0); !errors.Is(err, ErrTruncatedBody) {
		t.Errorf("expected ErrTruncatedBody, got %v", err)
	}
	// Tiny header claiming more code than exists.
	if _, err := ReadBody([]byte{30<<2 | 0x02, 0x00}, 0); !errors.Is(err, ErrTruncatedBody) {
		t.Errorf("expected ErrTruncatedBody, got %v", err)
	}
	// Fat header with truncated EH section.
	data := fatBody(0x3003|0x08, 0, []byte{0x2A, 0x00, 0x00, 0x00})
	if _, err := ReadBody(data, 0); !errors.Is(err, ErrTruncatedBody) {
		t.Errorf("expected ErrTruncatedBody for missing section, got %v", err)
	}
}
