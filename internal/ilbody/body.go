// Package ilbody reads IL method bodies and scans their code for
// metadata token operands.
package ilbody

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncatedBody = errors.New("ilbody: body extends past end of image")
	ErrBadHeader     = errors.New("ilbody: unrecognized body header")
)

// Method body header format bits (ECMA-335 II.25.4).
const (
	formatMask = 0x03
	formatTiny = 0x02
	formatFat  = 0x03

	fatFlagMoreSects  = 0x08
	fatFlagInitLocals = 0x10

	sectKindEHTable   = 0x01
	sectFlagFatFormat = 0x40
	sectFlagMoreSects = 0x80
)

// Body describes one IL method body's footprint within the image.
type Body struct {
	Offset         uint32 // file offset of the header byte
	HeaderSize     uint32
	CodeSize       uint32
	Fat            bool
	InitLocals     bool
	LocalVarSigTok uint32
	// TotalSize spans the header byte through the 4-byte-aligned end of
	// the last exception handler section. This is the range the trimmer
	// zeroes or counts.
	TotalSize uint32
}

// CodeOffset returns the file offset of the first code byte.
func (b *Body) CodeOffset() uint32 { return b.Offset + b.HeaderSize }

// Code returns the IL code bytes within data, or nil when out of range.
func (b *Body) Code(data []byte) []byte {
	start := int(b.CodeOffset())
	end := start + int(b.CodeSize)
	if start > len(data) || end > len(data) {
		return nil
	}
	return data[start:end]
}

// ReadBody parses the tiny or fat header at offset and computes the
// body's total footprint including exception handler sections.
func ReadBody(data []byte, offset uint32) (*Body, error) {
	if int(offset) >= len(data) {
		return nil, ErrTruncatedBody
	}
	b := &Body{Offset: offset}
	first := data[offset]

	switch first & formatMask {
	case formatTiny:
		b.HeaderSize = 1
		b.CodeSize = uint32(first >> 2)
		b.TotalSize = b.HeaderSize + b.CodeSize
		if int(offset)+int(b.TotalSize) > len(data) {
			return nil, ErrTruncatedBody
		}
		return b, nil

	case formatFat:
		if int(offset)+12 > len(data) {
			return nil, ErrTruncatedBody
		}
		b.Fat = true
		flags := binary.LittleEndian.Uint16(data[offset:])
		b.HeaderSize = 4 * uint32(flags>>12)
		if b.HeaderSize < 12 {
			return nil, fmt.Errorf("%w: fat header size %d", ErrBadHeader, b.HeaderSize)
		}
		b.InitLocals = flags&fatFlagInitLocals != 0
		b.CodeSize = binary.LittleEndian.Uint32(data[offset+4:])
		b.LocalVarSigTok = binary.LittleEndian.Uint32(data[offset+8:])

		end := offset + b.HeaderSize + b.CodeSize
		if int(end) > len(data) {
			return nil, ErrTruncatedBody
		}
		if flags&fatFlagMoreSects != 0 {
			sectEnd, err := walkSections(data, alignUp4(end))
			if err != nil {
				return nil, err
			}
			end = sectEnd
		}
		b.TotalSize = end - offset
		return b, nil
	}
	return nil, fmt.Errorf("%w: first byte %#x", ErrBadHeader, first)
}

// walkSections follows the MoreSects chain of method data sections and
// returns the aligned file offset past the last one.
func walkSections(data []byte, pos uint32) (uint32, error) {
	for {
		if int(pos)+4 > len(data) {
			return 0, ErrTruncatedBody
		}
		kind := data[pos]
		var size uint32
		if kind&sectFlagFatFormat != 0 {
			// Fat section: 24-bit DataSize includes the 4-byte header.
			size = uint32(data[pos+1]) | uint32(data[pos+2])<<8 | uint32(data[pos+3])<<16
		} else {
			// Small section: 8-bit DataSize includes the 4-byte header.
			size = uint32(data[pos+1])
		}
		if size < 4 {
			return 0, fmt.Errorf("%w: section size %d", ErrBadHeader, size)
		}
		end := pos + size
		if int(end) > len(data) {
			return 0, ErrTruncatedBody
		}
		pos = alignUp4(end)
		if kind&sectFlagMoreSects == 0 {
			return pos, nil
		}
	}
}

func alignUp4(v uint32) uint32 {
	return (v + 3) &^ 3
}
