package metadata

// HeapSizes flag bits from the tables-stream header.
const (
	heapWideStrings = 0x01
	heapWideGUID    = 0x02
	heapWideBlob    = 0x04
)

// tablesHeaderSize is the fixed part of the #~ header before the
// per-table row counts.
const tablesHeaderSize = 24

// Layout captures the index widths and byte geometry of the tables
// stream. All widths are evaluated once at load and never recomputed;
// row counts are invariant under trimming.
type Layout struct {
	TablesOffset uint32 // file offset of the #~ / #- stream
	DataOffset   uint32 // file offset of the first row byte
	HeapSizes    byte
	Valid        uint64
	Rows         [NumTables]uint32

	rowSize   [NumTables]uint32
	rowStart  [NumTables]uint32 // offset of table data relative to DataOffset
	colOffset [NumTables][]uint32
	colWidth  [NumTables][]uint32
}

// WideStrings reports 4-byte #Strings indices.
func (l *Layout) WideStrings() bool { return l.HeapSizes&heapWideStrings != 0 }

// WideGUID reports 4-byte #GUID indices.
func (l *Layout) WideGUID() bool { return l.HeapSizes&heapWideGUID != 0 }

// WideBlob reports 4-byte #Blob indices.
func (l *Layout) WideBlob() bool { return l.HeapSizes&heapWideBlob != 0 }

// TableWide reports whether indices into a table take 4 bytes.
func (l *Layout) TableWide(id int) bool { return l.Rows[id] >= 1<<16 }

// CodedWide reports whether a coded index kind takes 4 bytes.
func (l *Layout) CodedWide(kind int) bool { return codedWide(kind, &l.Rows) }

// ColumnWidth returns the byte width of a column under this layout.
func (l *Layout) ColumnWidth(c Column) uint32 {
	switch c.Kind {
	case ColUint16:
		return 2
	case ColUint32:
		return 4
	case ColString:
		if l.WideStrings() {
			return 4
		}
		return 2
	case ColGUID:
		if l.WideGUID() {
			return 4
		}
		return 2
	case ColBlob:
		if l.WideBlob() {
			return 4
		}
		return 2
	case ColTable:
		if l.TableWide(c.Arg) {
			return 4
		}
		return 2
	case ColCoded:
		if l.CodedWide(c.Arg) {
			return 4
		}
		return 2
	}
	return 0
}

// compute derives row sizes, per-column offsets, and table start offsets.
func (l *Layout) compute() {
	var cum uint32
	for id := 0; id < NumTables; id++ {
		cols := schemas[id]
		if cols == nil {
			continue
		}
		l.colOffset[id] = make([]uint32, len(cols))
		l.colWidth[id] = make([]uint32, len(cols))
		var size uint32
		for ci, c := range cols {
			w := l.ColumnWidth(c)
			l.colOffset[id][ci] = size
			l.colWidth[id][ci] = w
			size += w
		}
		l.rowSize[id] = size
		l.rowStart[id] = cum
		cum += size * l.Rows[id]
	}
}

// RowSize returns the byte size of one row of a table.
func (l *Layout) RowSize(id int) uint32 { return l.rowSize[id] }

// RowOffset returns the file offset of a 0-based row of a table.
func (l *Layout) RowOffset(id int, row0 uint32) uint32 {
	return l.DataOffset + l.rowStart[id] + l.rowSize[id]*row0
}

// ColOffset returns the file offset of a column within a 0-based row.
func (l *Layout) ColOffset(id int, row0 uint32, col int) uint32 {
	return l.RowOffset(id, row0) + l.colOffset[id][col]
}

// ColWidth returns the byte width of a column of a table.
func (l *Layout) ColWidth(id, col int) uint32 { return l.colWidth[id][col] }

// ColSpan returns the file offset and total width of columns
// [first, last] within a 0-based row.
func (l *Layout) ColSpan(id int, row0 uint32, first, last int) (uint32, uint32) {
	off := l.ColOffset(id, row0, first)
	width := l.colOffset[id][last] + l.colWidth[id][last] - l.colOffset[id][first]
	return off, width
}
