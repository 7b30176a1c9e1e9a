// Package pefile loads PE/COFF images carrying a CLI header and metadata root.
package pefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"ciltrim/internal/cilfmt"
)

var (
	ErrNotPE       = errors.New("pefile: not a PE file")
	ErrNoCLIHeader = errors.New("pefile: no CLI header")
	ErrNoMetadata  = errors.New("pefile: no metadata root")
	ErrBadStream   = errors.New("pefile: bad stream header")
	ErrNoSection   = errors.New("pefile: no section covers RVA")
)

// Optional header magic values.
const (
	magicPE32     = 0x10B
	magicPE32Plus = 0x20B
)

// metadataSignature is the 4-byte "BSJB" magic at the metadata root.
const metadataSignature = 0x424A5342

// cliHeaderDirectory is the data directory slot holding the CLI header.
const cliHeaderDirectory = 14

// Section describes one entry of the PE section table.
type Section struct {
	Name           string `json:"name"`
	VirtualAddress uint32 `json:"virtual_address"`
	VirtualSize    uint32 `json:"virtual_size"`
	RawOffset      uint32 `json:"raw_offset"`
	RawSize        uint32 `json:"raw_size"`
}

// CLIHeader holds the fields of the IMAGE_COR20_HEADER the trimmer needs.
type CLIHeader struct {
	Size            uint32 `json:"size"`
	MajorRuntime    uint16 `json:"major_runtime"`
	MinorRuntime    uint16 `json:"minor_runtime"`
	MetadataRVA     uint32 `json:"metadata_rva"`
	MetadataSize    uint32 `json:"metadata_size"`
	Flags           uint32 `json:"flags"`
	EntryPointToken uint32 `json:"entry_point_token"`
}

// StreamHeader describes one metadata stream, with its offset resolved
// to an absolute file offset.
type StreamHeader struct {
	Name   string `json:"name"`
	Offset uint32 `json:"offset"` // file offset
	Size   uint32 `json:"size"`
}

// File is a loaded CLI image. It owns a private clone of the input
// bytes; the trim engine mutates the clone, never the caller's buffer.
type File struct {
	data []byte

	PE32Plus    bool           `json:"pe32_plus"`
	Sections    []Section      `json:"sections"`
	CLI         CLIHeader      `json:"cli"`
	MetadataOff uint32         `json:"metadata_offset"` // file offset of the BSJB root
	Version     string         `json:"version"`         // metadata version string
	Streams     []StreamHeader `json:"streams"`
}

// Open reads and parses an image from disk.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pefile: open: %w", err)
	}
	return Parse(data)
}

// Parse validates and parses a PE/COFF image with an embedded CLI header.
// The input slice is cloned; the caller's bytes are never mutated.
func Parse(data []byte) (*File, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	f := &File{data: buf}

	s := cilfmt.NewStream(buf)

	// DOS header: "MZ" then e_lfanew at 0x3C.
	if len(buf) < 0x40 || buf[0] != 'M' || buf[1] != 'Z' {
		return nil, fmt.Errorf("%w: missing MZ signature", ErrNotPE)
	}
	peOff := binary.LittleEndian.Uint32(buf[0x3C:])
	s.SetPosition(int(peOff))

	sig, err := s.ReadUint32()
	if err != nil || sig != 0x00004550 { // "PE\0\0"
		return nil, fmt.Errorf("%w: missing PE signature", ErrNotPE)
	}

	// COFF file header.
	if err := s.Skip(2); err != nil { // Machine
		return nil, fmt.Errorf("%w: truncated COFF header", ErrNotPE)
	}
	numSections, err := s.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated COFF header", ErrNotPE)
	}
	if err := s.Skip(12); err != nil { // TimeDateStamp, PointerToSymbolTable, NumberOfSymbols
		return nil, fmt.Errorf("%w: truncated COFF header", ErrNotPE)
	}
	optSize, err := s.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated COFF header", ErrNotPE)
	}
	if err := s.Skip(2); err != nil { // Characteristics
		return nil, fmt.Errorf("%w: truncated COFF header", ErrNotPE)
	}

	optStart := s.Position()
	magic, err := s.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated optional header", ErrNotPE)
	}
	var dirOff int
	switch magic {
	case magicPE32:
		dirOff = optStart + 96
	case magicPE32Plus:
		f.PE32Plus = true
		dirOff = optStart + 112
	default:
		return nil, fmt.Errorf("%w: optional header magic %#x", ErrNotPE, magic)
	}

	// CLI header data directory.
	s.SetPosition(dirOff + cliHeaderDirectory*8)
	cliRVA, err := s.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: data directory truncated", ErrNoCLIHeader)
	}
	cliSize, err := s.ReadUint32()
	if err != nil || cliRVA == 0 || cliSize == 0 {
		return nil, ErrNoCLIHeader
	}

	// Section table follows the optional header.
	s.SetPosition(optStart + int(optSize))
	for i := 0; i < int(numSections); i++ {
		raw, err := s.ReadBytes(40)
		if err != nil {
			return nil, fmt.Errorf("%w: section table truncated", ErrNotPE)
		}
		name := raw[:8]
		end := 0
		for end < 8 && name[end] != 0 {
			end++
		}
		f.Sections = append(f.Sections, Section{
			Name:           string(name[:end]),
			VirtualSize:    binary.LittleEndian.Uint32(raw[8:]),
			VirtualAddress: binary.LittleEndian.Uint32(raw[12:]),
			RawSize:        binary.LittleEndian.Uint32(raw[16:]),
			RawOffset:      binary.LittleEndian.Uint32(raw[20:]),
		})
	}

	if err := f.parseCLIHeader(cliRVA); err != nil {
		return nil, err
	}
	if err := f.parseMetadataRoot(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) parseCLIHeader(rva uint32) error {
	off, err := f.RVAToOffset(rva)
	if err != nil {
		return fmt.Errorf("%w: header RVA %#x: %v", ErrNoCLIHeader, rva, err)
	}
	s := cilfmt.NewStreamAt(f.data, int(off))

	var h CLIHeader
	if h.Size, err = s.ReadUint32(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	if h.MajorRuntime, err = s.ReadUint16(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	if h.MinorRuntime, err = s.ReadUint16(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	if h.MetadataRVA, err = s.ReadUint32(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	if h.MetadataSize, err = s.ReadUint32(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	if h.Flags, err = s.ReadUint32(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	if h.EntryPointToken, err = s.ReadUint32(); err != nil {
		return fmt.Errorf("%w: truncated", ErrNoCLIHeader)
	}
	f.CLI = h
	return nil
}

func (f *File) parseMetadataRoot() error {
	off, err := f.RVAToOffset(f.CLI.MetadataRVA)
	if err != nil {
		return fmt.Errorf("%w: metadata RVA %#x: %v", ErrNoMetadata, f.CLI.MetadataRVA, err)
	}
	f.MetadataOff = off
	s := cilfmt.NewStreamAt(f.data, int(off))

	sig, err := s.ReadUint32()
	if err != nil || sig != metadataSignature {
		return fmt.Errorf("%w: missing BSJB signature", ErrNoMetadata)
	}
	if err := s.Skip(8); err != nil { // MajorVersion, MinorVersion, Reserved
		return fmt.Errorf("%w: truncated root", ErrNoMetadata)
	}
	verLen, err := s.ReadUint32()
	if err != nil {
		return fmt.Errorf("%w: truncated root", ErrNoMetadata)
	}
	// Version string is length-prefixed, null-padded to 4-byte alignment;
	// the stored length already includes the padding.
	verRaw, err := s.ReadBytes(int(verLen))
	if err != nil {
		return fmt.Errorf("%w: truncated version string", ErrNoMetadata)
	}
	end := 0
	for end < len(verRaw) && verRaw[end] != 0 {
		end++
	}
	f.Version = string(verRaw[:end])

	if err := s.Skip(2); err != nil { // Flags
		return fmt.Errorf("%w: truncated root", ErrNoMetadata)
	}
	nStreams, err := s.ReadUint16()
	if err != nil {
		return fmt.Errorf("%w: truncated root", ErrNoMetadata)
	}

	for i := 0; i < int(nStreams); i++ {
		relOff, err := s.ReadUint32()
		if err != nil {
			return fmt.Errorf("%w: stream %d truncated", ErrBadStream, i)
		}
		size, err := s.ReadUint32()
		if err != nil {
			return fmt.Errorf("%w: stream %d truncated", ErrBadStream, i)
		}
		name, err := s.ReadCString()
		if err != nil {
			return fmt.Errorf("%w: stream %d name: %v", ErrBadStream, i, err)
		}
		// Names are null-padded to the next 4-byte boundary relative to
		// the root.
		s.SetPosition(alignUp(s.Position()-int(off), 4) + int(off))
		switch name {
		case "#~", "#-", "#Strings", "#US", "#GUID", "#Blob":
		default:
			return fmt.Errorf("%w: unrecognised stream %q", ErrBadStream, name)
		}
		f.Streams = append(f.Streams, StreamHeader{
			Name:   name,
			Offset: off + relOff,
			Size:   size,
		})
	}
	if f.TablesStream() == nil {
		return fmt.Errorf("%w: no tables stream", ErrNoMetadata)
	}
	return nil
}

func alignUp(v, align int) int {
	rem := v % align
	if rem != 0 {
		v += align - rem
	}
	return v
}

// Bytes returns the image buffer under edit. Its length never changes.
func (f *File) Bytes() []byte { return f.data }

// Size returns the image size in bytes.
func (f *File) Size() int { return len(f.data) }

// RVAToOffset resolves a relative virtual address to a file offset
// through the section table.
func (f *File) RVAToOffset(rva uint32) (uint32, error) {
	for _, sec := range f.Sections {
		if rva >= sec.VirtualAddress && rva < sec.VirtualAddress+sec.VirtualSize {
			return sec.RawOffset + (rva - sec.VirtualAddress), nil
		}
	}
	return 0, fmt.Errorf("%w: RVA %#x", ErrNoSection, rva)
}

// Stream returns the header for a named metadata stream, or nil.
func (f *File) Stream(name string) *StreamHeader {
	for i := range f.Streams {
		if f.Streams[i].Name == name {
			return &f.Streams[i]
		}
	}
	return nil
}

// TablesStream returns the "#~" stream, falling back to "#-", or nil.
func (f *File) TablesStream() *StreamHeader {
	if sh := f.Stream("#~"); sh != nil {
		return sh
	}
	return f.Stream("#-")
}

// StreamBytes returns the byte range of a stream within the image buffer.
// The slice aliases the buffer under edit.
func (f *File) StreamBytes(sh *StreamHeader) []byte {
	if sh == nil {
		return nil
	}
	start := int(sh.Offset)
	end := start + int(sh.Size)
	if start > len(f.data) {
		return nil
	}
	if end > len(f.data) {
		end = len(f.data)
	}
	return f.data[start:end]
}
