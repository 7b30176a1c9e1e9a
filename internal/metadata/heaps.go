package metadata

import (
	"ciltrim/internal/cilfmt"
)

// Heap is one metadata heap. Data aliases the image buffer under edit,
// so heap reads observe trimmed bytes.
type Heap struct {
	Offset uint32 // file offset of the heap within the image
	Data   []byte
}

// Valid reports whether the heap is present.
func (h Heap) Valid() bool { return len(h.Data) > 0 }

// Size returns the heap size in bytes.
func (h Heap) Size() uint32 { return uint32(len(h.Data)) }

// String reads the NUL-terminated UTF-8 string at a #Strings offset.
// Offset 0 is the canonical empty string. Out-of-range offsets yield "".
func (h Heap) String(off uint32) string {
	if off >= uint32(len(h.Data)) {
		return ""
	}
	end := off
	for end < uint32(len(h.Data)) && h.Data[end] != 0 {
		end++
	}
	return string(h.Data[off:end])
}

// ForEachString walks the #Strings heap as a NUL-separated sequence
// starting at offset 1. length excludes the terminator.
func (h Heap) ForEachString(fn func(off, length uint32)) {
	pos := uint32(1)
	for pos < uint32(len(h.Data)) {
		end := pos
		for end < uint32(len(h.Data)) && h.Data[end] != 0 {
			end++
		}
		fn(pos, end-pos)
		pos = end + 1
	}
}

// BlobEntry decodes the compressed length prefix of a #Blob or #US
// entry. Returns the prefix size and the data length.
func (h Heap) BlobEntry(off uint32) (hdr, n int, err error) {
	if off >= uint32(len(h.Data)) {
		return 0, 0, cilfmt.ErrStreamEOF
	}
	s := cilfmt.NewStreamAt(h.Data, int(off))
	length, err := s.ReadCompressed()
	if err != nil {
		return 0, 0, err
	}
	hdr = s.Position() - int(off)
	if int(off)+hdr+int(length) > len(h.Data) {
		return hdr, 0, cilfmt.ErrStreamEOF
	}
	return hdr, int(length), nil
}

// BlobData returns the data bytes of a #Blob entry, or nil on error.
// The slice aliases the buffer under edit.
func (h Heap) BlobData(off uint32) []byte {
	hdr, n, err := h.BlobEntry(off)
	if err != nil {
		return nil
	}
	start := int(off) + hdr
	return h.Data[start : start+n]
}

// ForEachBlob walks a length-prefixed heap (#Blob or #US) starting at
// offset 1. Entries with malformed length prefixes end the walk; the
// caller sees only well-formed entries.
func (h Heap) ForEachBlob(fn func(off uint32, hdr, n int)) {
	pos := uint32(1)
	for pos < uint32(len(h.Data)) {
		hdr, n, err := h.BlobEntry(pos)
		if err != nil {
			return
		}
		fn(pos, hdr, n)
		pos += uint32(hdr + n)
	}
}
