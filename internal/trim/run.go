package trim

import (
	"fmt"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/ilbody"
	"ciltrim/internal/invoke"
	"ciltrim/internal/metadata"
	"ciltrim/internal/pefile"
)

// Level selects the trim granularity.
type Level int

const (
	LevelClass  Level = iota // S0: whole unreferenced types
	LevelMethod              // S1: S0 plus unreferenced methods of kept types
)

func (l Level) String() string {
	if l == LevelMethod {
		return "s1"
	}
	return "s0"
}

// Stats holds the per-run byte accounting.
type Stats struct {
	MethodBodies uint64 `json:"method_bodies"`
	Signatures   uint64 `json:"signatures"`
	RowPayloads  uint64 `json:"row_payloads"`
	Strings      uint64 `json:"strings"`
	Blobs        uint64 `json:"blobs"`
	UserStrings  uint64 `json:"user_strings"`

	TypesKept      int `json:"types_kept"`
	TypesTrimmed   int `json:"types_trimmed"`
	MethodsKept    int `json:"methods_kept"`
	MethodsTrimmed int `json:"methods_trimmed"`

	Cleared   uint64 `json:"cleared"`   // total bytes zeroed
	Remaining uint64 `json:"remaining"` // bytes measured by counting walkers
}

// Report is the result summary of one trim run.
type Report struct {
	Level     string        `json:"level"`
	Deep      bool          `json:"deep"`
	ImageSize int           `json:"image_size"`
	Stats     Stats         `json:"stats"`
	Diags     []cilfmt.Diag `json:"diagnostics,omitempty"`
}

// Edge is one reference edge recorded during deep marking, for graph
// export.
type Edge struct {
	From metadata.Token
	To   metadata.Token
}

// Run owns all mutable state of one trim invocation: the image clone,
// parsed metadata, invoked sets, editor, and accounting. A second run
// starts from a fresh Run with zeroed counters.
type Run struct {
	File *pefile.File
	Meta *metadata.Meta
	Set  *invoke.MethodSet
	Opts cilfmt.Options

	Types  invoke.TypeSet // invoked TypeDef rows, 0-based
	Editor *Editor
	Stats  Stats
	Diags  cilfmt.Diags

	// CountOnly runs every walker with the counting capability; the
	// image is left untouched.
	CountOnly bool

	// CaptureEdges records reference edges during deep marking.
	CaptureEdges bool
	Edges        []Edge

	methodKept map[uint32]bool // 0-based MethodDef rows preserved by this run
}

// NewRun parses the image and derives the invoked sets.
func NewRun(image []byte, set *invoke.MethodSet, opts cilfmt.Options) (*Run, error) {
	f, err := pefile.Parse(image)
	if err != nil {
		return nil, err
	}
	md, err := metadata.Parse(f, opts)
	if err != nil {
		return nil, err
	}
	r := &Run{
		File:   f,
		Meta:   md,
		Set:    set,
		Opts:   opts,
		Editor: NewEditor(f.Bytes()),
	}
	for _, d := range md.Diags {
		r.Diags.Add(d.Offset, d.Kind, d.Msg)
	}
	types, diags := invoke.ResolveTypes(md, set)
	for _, d := range diags {
		r.Diags.Add(d.Offset, d.Kind, d.Msg)
	}
	r.Types = types
	return r, nil
}

// TrimClassLevel runs S0 (plus string trim, plus the deep closure when
// requested) and returns the trimmed image.
func TrimClassLevel(image []byte, set *invoke.MethodSet, deep bool, opts cilfmt.Options) ([]byte, *Report, error) {
	return trimImage(image, set, LevelClass, deep, opts)
}

// TrimMethodLevel runs S1 (plus string trim, plus the deep closure when
// requested) and returns the trimmed image.
func TrimMethodLevel(image []byte, set *invoke.MethodSet, deep bool, opts cilfmt.Options) ([]byte, *Report, error) {
	return trimImage(image, set, LevelMethod, deep, opts)
}

func trimImage(image []byte, set *invoke.MethodSet, level Level, deep bool, opts cilfmt.Options) ([]byte, *Report, error) {
	r, err := NewRun(image, set, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Execute(level, deep); err != nil {
		return nil, nil, err
	}
	return r.File.Bytes(), r.Report(level, deep), nil
}

// Execute runs the selected trim level, the string heap trimmer, and
// optionally the deep closure, in the fixed driver order.
func (r *Run) Execute(level Level, deep bool) error {
	r.computeMethodKept(level)

	switch level {
	case LevelClass:
		r.classLevel()
	case LevelMethod:
		r.methodLevel()
	default:
		return fmt.Errorf("trim: unknown level %d", level)
	}
	r.trimStrings()
	if deep {
		r.deep()
	}
	r.Stats.Cleared = r.Editor.Cleared
	r.Stats.Remaining = r.Editor.Counted
	return nil
}

// Report summarises the run.
func (r *Run) Report(level Level, deep bool) *Report {
	return &Report{
		Level:     level.String(),
		Deep:      deep,
		ImageSize: r.File.Size(),
		Stats:     r.Stats,
		Diags:     r.Diags.Items(),
	}
}

// typeKept reports whether a 0-based TypeDef row survives this run.
func (r *Run) typeKept(row0 uint32) bool {
	return row0 == 0 || r.Types[row0]
}

// computeMethodKept fixes the preserved-method predicate before any
// byte is touched.
func (r *Run) computeMethodKept(level Level) {
	md := r.Meta
	r.methodKept = make(map[uint32]bool)
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		if !r.typeKept(t) {
			continue
		}
		start, end := md.MethodRange(t)
		for mi := start; mi < end; mi++ {
			if level == LevelClass {
				r.methodKept[mi] = true
				continue
			}
			name := md.Strings.String(md.MethodDef(mi).Name)
			owner := md.TypeDefName(t)
			if r.Set.Contains(owner + "." + invoke.CanonicalMethodName(name)) {
				r.methodKept[mi] = true
			}
		}
	}
}

// zeroFn returns the mutating capability, or the counting one in
// count-only mode.
func (r *Run) zeroFn() RangeFn {
	if r.CountOnly {
		return r.Editor.Count
	}
	return r.Editor.Zero
}

// classLevel is the S0 trimmer: every type outside the invoked set has
// all owned payload cleared.
func (r *Run) classLevel() {
	md := r.Meta
	for t := uint32(1); t < md.NumRows(metadata.TableTypeDef); t++ {
		if r.typeKept(t) {
			r.Stats.TypesKept++
			continue
		}
		r.Stats.TypesTrimmed++
		r.walkType(t, r.zeroFn())
	}
}

// methodLevel is the S1 trimmer: S0 first, then per-method trimming on
// the preserved types.
func (r *Run) methodLevel() {
	md := r.Meta
	r.classLevel()
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		if !r.typeKept(t) {
			continue
		}
		start, end := md.MethodRange(t)
		for mi := start; mi < end; mi++ {
			if r.methodKept[mi] {
				r.Stats.MethodsKept++
				r.walkMethod(mi, r.Editor.Count)
				continue
			}
			r.Stats.MethodsTrimmed++
			r.walkMethod(mi, r.zeroFn())
		}
	}
}

// walkType visits all payload owned by a type, in the fixed order:
// methods, fields, properties, events, then the TypeDef row payload.
// Property and event row payloads are deliberately not walked; their
// name offsets are always preserved by the string trimmer.
func (r *Run) walkType(t uint32, fn RangeFn) {
	md := r.Meta

	mStart, mEnd := md.MethodRange(t)
	for mi := mStart; mi < mEnd; mi++ {
		r.Stats.MethodsTrimmed++
		r.walkMethod(mi, fn)
	}

	fStart, fEnd := md.FieldRange(t)
	for fi := fStart; fi < fEnd; fi++ {
		r.walkField(fi, fn)
	}

	// TypeDef row payload: Flags through Extends. FieldList and
	// MethodList stay so row-range traversal by geometry keeps working.
	off, width := md.Layout.ColSpan(metadata.TableTypeDef, t, 0, 3)
	fn(off, width)
	r.Stats.RowPayloads += uint64(width)
}

// walkMethod visits one method's body, signature blob, Param rows, and
// MethodDef row payload (excluding ParamList).
func (r *Run) walkMethod(mi uint32, fn RangeFn) {
	md := r.Meta
	row := md.MethodDef(mi)

	if row.RVA != 0 {
		off, err := r.File.RVAToOffset(row.RVA)
		if err != nil {
			r.Diags.Addf(uint64(row.RVA), cilfmt.DiagOutOfRange, "method %d body RVA: %v", mi+1, err)
		} else {
			body, err := ilbody.ReadBody(r.File.Bytes(), off)
			if err != nil {
				r.Diags.Addf(uint64(off), cilfmt.DiagMalformedIL, "method %d body: %v", mi+1, err)
			} else {
				fn(body.Offset, body.TotalSize)
				r.Stats.MethodBodies += uint64(body.TotalSize)
			}
		}
	}

	r.walkBlob(row.Signature, fn)

	pStart, pEnd := md.ParamRange(mi)
	for pi := pStart; pi < pEnd; pi++ {
		off, width := md.Layout.ColSpan(metadata.TableParam, pi, 0, 2)
		fn(off, width)
		r.Stats.RowPayloads += uint64(width)
	}

	// MethodDef row payload: RVA through Signature; ParamList stays.
	off, width := md.Layout.ColSpan(metadata.TableMethodDef, mi, 0, 4)
	fn(off, width)
	r.Stats.RowPayloads += uint64(width)
}

// walkField visits one field's row payload and signature blob. The
// FieldRVA initial-data blob is left alone: its size cannot be
// determined without interpreting class layout.
func (r *Run) walkField(fi uint32, fn RangeFn) {
	md := r.Meta
	row := md.Field(fi)
	r.walkBlob(row.Signature, fn)
	off, width := md.Layout.ColSpan(metadata.TableField, fi, 0, 2)
	fn(off, width)
	r.Stats.RowPayloads += uint64(width)
}

// walkBlob visits the data bytes of a #Blob entry, keeping the
// compressed length prefix so the heap stays walkable.
func (r *Run) walkBlob(blobOff uint32, fn RangeFn) {
	if blobOff == 0 || !r.Meta.Blob.Valid() {
		return
	}
	hdr, n, err := r.Meta.Blob.BlobEntry(blobOff)
	if err != nil {
		r.Diags.Addf(uint64(blobOff), cilfmt.DiagMalformedBlob, "blob entry: %v", err)
		return
	}
	fn(r.Meta.Blob.Offset+blobOff+uint32(hdr), uint32(n))
	r.Stats.Signatures += uint64(n)
}
