// Package testimage assembles minimal CLI images for tests: a PE32
// wrapper around a metadata root with #~, #Strings, #US, #GUID and
// #Blob streams, plus IL method bodies.
package testimage

import (
	"bytes"
	"encoding/binary"

	"ciltrim/internal/metadata"
)

// Fixed geometry of the generated image.
const (
	peHeaderOff = 0x80
	sectionRVA  = 0x2000
	sectionOff  = 0x200
	bodyBase    = 0x48 // first body, right after the CLI header
)

// Method describes one method of a synthetic type.
type Method struct {
	Name   string
	Body   []byte   // raw IL; nil means RVA 0
	Sig    []byte   // method signature blob; nil means void()
	Params []string // parameter names

	// Fat emits a fat body header (with InitLocals when LocalSig is
	// set) instead of a tiny one.
	Fat      bool
	LocalSig uint32 // LocalVarSigTok for fat bodies
}

// Field describes one field of a synthetic type.
type Field struct {
	Name string
	Sig  []byte // field signature blob; nil means FIELD I4
}

// Type describes one synthetic TypeDef.
type Type struct {
	Namespace string
	Name      string
	Extends   uint32 // raw TypeDefOrRef coded value
	Methods   []Method
	Fields    []Field
}

// TypeRef describes one synthetic TypeRef row.
type TypeRef struct {
	Namespace string
	Name      string
}

// MemberRef describes one synthetic MemberRef row.
type MemberRef struct {
	Class uint32 // raw MemberRefParent coded value
	Name  string
	Sig   []byte
}

// Constant attaches a constant blob to a 1-based Field row.
type Constant struct {
	FieldRow uint32
	Value    []byte
}

// CustomAttribute describes one synthetic CustomAttribute row.
type CustomAttribute struct {
	Parent uint32 // raw HasCustomAttribute coded value
	Type   uint32 // raw CustomAttributeType coded value
	Value  []byte
}

// InterfaceImpl describes one synthetic InterfaceImpl row.
type InterfaceImpl struct {
	Class     uint32 // 1-based TypeDef row
	Interface uint32 // raw TypeDefOrRef coded value
}

// NestedClass describes one synthetic NestedClass row.
type NestedClass struct {
	Nested    uint32 // 1-based TypeDef row
	Enclosing uint32 // 1-based TypeDef row
}

// MethodSpec describes one synthetic MethodSpec row.
type MethodSpec struct {
	Method uint32 // raw MethodDefOrRef coded value
	Blob   []byte
}

// Builder accumulates the synthetic image description.
type Builder struct {
	Types            []Type
	TypeRefs         []TypeRef
	MemberRefs       []MemberRef
	Constants        []Constant
	CustomAttributes []CustomAttribute
	InterfaceImpls   []InterfaceImpl
	NestedClasses    []NestedClass
	TypeSpecs        [][]byte // signature blobs
	MethodSpecs      []MethodSpec
	StandAloneSigs   [][]byte
	USStrings        []string

	strings strHeap
	blob    blobHeap
	us      blobHeap
}

// TinyBody wraps IL code in a tiny method body header.
func TinyBody(code ...byte) []byte {
	return append([]byte{byte(len(code))<<2 | 0x02}, code...)
}

// FatBody wraps IL code in a 12-byte fat header. localSig becomes the
// LocalVarSigTok; a non-zero value also sets InitLocals.
func FatBody(localSig uint32, code ...byte) []byte {
	flags := uint16(0x3003) // fat, 3-dword header
	if localSig != 0 {
		flags |= 0x10 // InitLocals
	}
	out := make([]byte, 12, 12+len(code))
	binary.LittleEndian.PutUint16(out[0:], flags)
	binary.LittleEndian.PutUint16(out[2:], 8) // MaxStack
	binary.LittleEndian.PutUint32(out[4:], uint32(len(code)))
	binary.LittleEndian.PutUint32(out[8:], localSig)
	return append(out, code...)
}

// VoidSig is a default static void() method signature blob.
func VoidSig() []byte { return []byte{0x00, 0x00, 0x01} }

// FieldSigI4 is a FIELD int32 signature blob.
func FieldSigI4() []byte { return []byte{0x06, 0x08} }

// MethodSigWithClassParam is a static void(T) signature where T is the
// given compressed TypeDefOrRef coded value (CLASS element).
func MethodSigWithClassParam(coded byte) []byte {
	return []byte{0x00, 0x01, 0x01, 0x12, coded}
}

type strHeap struct {
	buf bytes.Buffer
	idx map[string]uint32
}

func (h *strHeap) add(s string) uint32 {
	if s == "" {
		return 0
	}
	if h.idx == nil {
		h.idx = make(map[string]uint32)
		h.buf.WriteByte(0) // offset 0: empty string
	}
	if off, ok := h.idx[s]; ok {
		return off
	}
	off := uint32(h.buf.Len())
	h.idx[s] = off
	h.buf.WriteString(s)
	h.buf.WriteByte(0)
	return off
}

func (h *strHeap) bytes() []byte {
	if h.idx == nil {
		return []byte{0}
	}
	return h.buf.Bytes()
}

type blobHeap struct {
	buf bytes.Buffer
}

func (h *blobHeap) add(data []byte) uint32 {
	if h.buf.Len() == 0 {
		h.buf.WriteByte(0) // offset 0: empty blob
	}
	if data == nil {
		return 0
	}
	off := uint32(h.buf.Len())
	if len(data) > 0x7F {
		panic("testimage: blob too large for 1-byte length prefix")
	}
	h.buf.WriteByte(byte(len(data)))
	h.buf.Write(data)
	return off
}

func (h *blobHeap) bytes() []byte {
	if h.buf.Len() == 0 {
		return []byte{0}
	}
	return h.buf.Bytes()
}

// USOffset returns the #US heap offset of the i-th added user string,
// assuming 1-byte length prefixes throughout.
func (b *Builder) USOffset(i int) uint32 {
	off := uint32(1)
	for j := 0; j < i; j++ {
		off += 1 + uint32(len(b.USStrings[j]))*2 + 1
	}
	return off
}

// Build assembles the image bytes.
func (b *Builder) Build() []byte {
	// Method bodies first: their RVAs go into MethodDef rows.
	var bodies bytes.Buffer
	bodyRVAs := make(map[int]map[int]uint32) // type idx -> method idx -> RVA
	for ti, t := range b.Types {
		bodyRVAs[ti] = make(map[int]uint32)
		for mi, m := range t.Methods {
			if m.Body == nil {
				continue
			}
			for bodies.Len()%4 != 0 {
				bodies.WriteByte(0)
			}
			bodyRVAs[ti][mi] = sectionRVA + bodyBase + uint32(bodies.Len())
			bodies.Write(m.Body)
		}
	}

	// User strings: UTF-16LE, trailing flag byte, 1-byte length prefix.
	for _, s := range b.USStrings {
		payload := make([]byte, 0, len(s)*2+1)
		for _, r := range s {
			payload = append(payload, byte(r), byte(uint16(r)>>8))
		}
		payload = append(payload, 0)
		b.us.add(payload)
	}

	tables := b.buildTables(bodyRVAs)

	root := buildRoot(tables, b.strings.bytes(), b.us.bytes(),
		make([]byte, 16), b.blob.bytes())

	// Section payload: CLI header, bodies, metadata root.
	metaOff := bodyBase + uint32(bodies.Len())
	metaOff = (metaOff + 15) &^ 15
	sect := make([]byte, int(metaOff)+len(root))
	writeCLIHeader(sect, sectionRVA+metaOff, uint32(len(root)))
	copy(sect[bodyBase:], bodies.Bytes())
	copy(sect[metaOff:], root)

	return wrapPE(sect)
}

// buildTables serialises the #~ stream. All indices are narrow; heaps
// and tables stay small enough by construction.
func (b *Builder) buildTables(bodyRVAs map[int]map[int]uint32) []byte {
	type row []uint32
	rows := make(map[int][]row)
	widths := make(map[int][]int) // byte width per column

	colWidths := func(id int) []int {
		cols := metadata.Schema(id)
		w := make([]int, len(cols))
		for i, c := range cols {
			if c.Kind == metadata.ColUint32 {
				w[i] = 4
			} else {
				w[i] = 2
			}
		}
		return w
	}
	addRow := func(id int, r row) {
		if widths[id] == nil {
			widths[id] = colWidths(id)
		}
		rows[id] = append(rows[id], r)
	}

	// Module.
	addRow(metadata.TableModule, row{0, b.strings.add("test.dll"), 1, 0, 0})

	for _, tr := range b.TypeRefs {
		addRow(metadata.TableTypeRef, row{0, b.strings.add(tr.Name), b.strings.add(tr.Namespace)})
	}

	fieldList := uint32(1)
	methodList := uint32(1)
	paramList := uint32(1)
	for ti, t := range b.Types {
		addRow(metadata.TableTypeDef, row{
			0, b.strings.add(t.Name), b.strings.add(t.Namespace), t.Extends,
			fieldList, methodList,
		})
		for _, f := range t.Fields {
			sig := f.Sig
			if sig == nil {
				sig = FieldSigI4()
			}
			addRow(metadata.TableField, row{0, b.strings.add(f.Name), b.blob.add(sig)})
			fieldList++
		}
		for mi, m := range t.Methods {
			sig := m.Sig
			if sig == nil {
				sig = VoidSig()
			}
			addRow(metadata.TableMethodDef, row{
				bodyRVAs[ti][mi], 0, 0, b.strings.add(m.Name), b.blob.add(sig), paramList,
			})
			methodList++
			for seq, p := range m.Params {
				addRow(metadata.TableParam, row{0, uint32(seq + 1), b.strings.add(p)})
				paramList++
			}
		}
	}

	for _, impl := range b.InterfaceImpls {
		addRow(metadata.TableInterfaceImpl, row{impl.Class, impl.Interface})
	}
	for _, mr := range b.MemberRefs {
		addRow(metadata.TableMemberRef, row{mr.Class, b.strings.add(mr.Name), b.blob.add(mr.Sig)})
	}
	for _, c := range b.Constants {
		coded, _ := metadata.EncodeCoded(metadata.CodedHasConstant,
			metadata.NewToken(metadata.TableField, c.FieldRow))
		addRow(metadata.TableConstant, row{0x08, coded, b.blob.add(c.Value)})
	}
	for _, ca := range b.CustomAttributes {
		addRow(metadata.TableCustomAttribute, row{ca.Parent, ca.Type, b.blob.add(ca.Value)})
	}
	for _, s := range b.StandAloneSigs {
		addRow(metadata.TableStandAloneSig, row{b.blob.add(s)})
	}
	for _, s := range b.TypeSpecs {
		addRow(metadata.TableTypeSpec, row{b.blob.add(s)})
	}
	addRow(metadata.TableAssembly, row{
		0x8004, 1, 0, 0, 0, 0, 0, b.strings.add("test"), 0,
	})
	for _, nc := range b.NestedClasses {
		addRow(metadata.TableNestedClass, row{nc.Nested, nc.Enclosing})
	}
	for _, ms := range b.MethodSpecs {
		addRow(metadata.TableMethodSpec, row{ms.Method, b.blob.add(ms.Blob)})
	}

	var valid uint64
	for id := 0; id < metadata.NumTables; id++ {
		if len(rows[id]) > 0 {
			valid |= 1 << uint(id)
		}
	}

	var out bytes.Buffer
	w32 := func(v uint32) { binary.Write(&out, binary.LittleEndian, v) }
	w32(0)              // Reserved
	out.WriteByte(2)    // MajorVersion
	out.WriteByte(0)    // MinorVersion
	out.WriteByte(0)    // HeapSizes: all narrow
	out.WriteByte(1)    // Reserved
	binary.Write(&out, binary.LittleEndian, valid)
	binary.Write(&out, binary.LittleEndian, uint64(0)) // Sorted
	for id := 0; id < metadata.NumTables; id++ {
		if len(rows[id]) > 0 {
			w32(uint32(len(rows[id])))
		}
	}
	for id := 0; id < metadata.NumTables; id++ {
		for _, r := range rows[id] {
			for ci, v := range r {
				if widths[id][ci] == 4 {
					binary.Write(&out, binary.LittleEndian, v)
				} else {
					binary.Write(&out, binary.LittleEndian, uint16(v))
				}
			}
		}
	}
	return out.Bytes()
}

// buildRoot serialises the BSJB metadata root and its streams.
func buildRoot(tables, strs, us, guid, blob []byte) []byte {
	version := []byte("v4.0.30319\x00\x00") // padded to 4
	type stream struct {
		name string
		data []byte
	}
	streams := []stream{
		{"#~", tables},
		{"#Strings", strs},
		{"#US", us},
		{"#GUID", guid},
		{"#Blob", blob},
	}

	headerSize := 16 + len(version) + 4
	for _, s := range streams {
		headerSize += 8 + pad4(len(s.name)+1)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(0x424A5342))
	binary.Write(&out, binary.LittleEndian, uint16(1))
	binary.Write(&out, binary.LittleEndian, uint16(1))
	binary.Write(&out, binary.LittleEndian, uint32(0))
	binary.Write(&out, binary.LittleEndian, uint32(len(version)))
	out.Write(version)
	binary.Write(&out, binary.LittleEndian, uint16(0))
	binary.Write(&out, binary.LittleEndian, uint16(len(streams)))

	off := headerSize
	for _, s := range streams {
		binary.Write(&out, binary.LittleEndian, uint32(off))
		binary.Write(&out, binary.LittleEndian, uint32(len(s.data)))
		name := append([]byte(s.name), 0)
		for len(name)%4 != 0 {
			name = append(name, 0)
		}
		out.Write(name)
		off += len(s.data)
	}
	for _, s := range streams {
		out.Write(s.data)
	}
	return out.Bytes()
}

// writeCLIHeader fills the IMAGE_COR20_HEADER at the section start.
func writeCLIHeader(sect []byte, metaRVA, metaSize uint32) {
	binary.LittleEndian.PutUint32(sect[0:], 72) // cb
	binary.LittleEndian.PutUint16(sect[4:], 2)  // MajorRuntimeVersion
	binary.LittleEndian.PutUint16(sect[6:], 5)  // MinorRuntimeVersion
	binary.LittleEndian.PutUint32(sect[8:], metaRVA)
	binary.LittleEndian.PutUint32(sect[12:], metaSize)
	binary.LittleEndian.PutUint32(sect[16:], 0x01) // Flags: ILONLY
}

// wrapPE wraps the section payload in a one-section PE32 image.
func wrapPE(sect []byte) []byte {
	const optSize = 224 // PE32: 96 + 16 directories
	img := make([]byte, sectionOff+len(sect))

	// DOS header.
	img[0] = 'M'
	img[1] = 'Z'
	binary.LittleEndian.PutUint32(img[0x3C:], peHeaderOff)

	// PE signature + COFF header.
	copy(img[peHeaderOff:], []byte{'P', 'E', 0, 0})
	coff := peHeaderOff + 4
	binary.LittleEndian.PutUint16(img[coff:], 0x14C)   // Machine: i386
	binary.LittleEndian.PutUint16(img[coff+2:], 1)     // NumberOfSections
	binary.LittleEndian.PutUint16(img[coff+16:], optSize)
	binary.LittleEndian.PutUint16(img[coff+18:], 0x2102)

	// Optional header.
	opt := coff + 20
	binary.LittleEndian.PutUint16(img[opt:], 0x10B) // PE32
	binary.LittleEndian.PutUint32(img[opt+92:], 16) // NumberOfRvaAndSizes
	dir14 := opt + 96 + 14*8
	binary.LittleEndian.PutUint32(img[dir14:], sectionRVA) // CLI header RVA
	binary.LittleEndian.PutUint32(img[dir14+4:], 72)

	// Section table: one .text section holding everything.
	st := opt + optSize
	copy(img[st:], ".text")
	binary.LittleEndian.PutUint32(img[st+8:], uint32(len(sect)))  // VirtualSize
	binary.LittleEndian.PutUint32(img[st+12:], sectionRVA)        // VirtualAddress
	binary.LittleEndian.PutUint32(img[st+16:], uint32(len(sect))) // SizeOfRawData
	binary.LittleEndian.PutUint32(img[st+20:], sectionOff)        // PointerToRawData

	copy(img[sectionOff:], sect)
	return img
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
