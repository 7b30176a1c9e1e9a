// Package trim implements the reachability-driven zeroing engine:
// class-level (S0) and method-level (S1) trimming, string heap
// trimming, and the deep reference closure.
package trim

// RangeFn is the byte-range capability threaded through every walker.
// Two implementations exist: one zeroes, one only counts. A walker has
// no say in which it gets, so the same traversal serves both passes.
type RangeFn func(offset, length uint32)

// Editor mutates the image buffer and tracks cumulative totals. All
// counters are per-run; two runs never share an Editor.
type Editor struct {
	data []byte

	// Cleared is the number of bytes zeroed through Zero.
	Cleared uint64
	// Counted is the number of bytes measured through Count.
	Counted uint64
}

// NewEditor wraps the image buffer under edit.
func NewEditor(data []byte) *Editor {
	return &Editor{data: data}
}

// Zero overwrites [offset, offset+length) with zero bytes, clamping to
// the buffer end. The only primitive by which the image is mutated.
func (e *Editor) Zero(offset, length uint32) {
	n := e.clamp(offset, length)
	for i := uint32(0); i < n; i++ {
		e.data[offset+i] = 0
	}
	e.Cleared += uint64(n)
}

// Count measures [offset, offset+length) without writing.
func (e *Editor) Count(offset, length uint32) {
	e.Counted += uint64(e.clamp(offset, length))
}

func (e *Editor) clamp(offset, length uint32) uint32 {
	if uint64(offset) >= uint64(len(e.data)) {
		return 0
	}
	if uint64(offset)+uint64(length) > uint64(len(e.data)) {
		return uint32(len(e.data)) - offset
	}
	return length
}
