package metadata

import (
	"fmt"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/pefile"
)

// Meta aggregates the parsed tables stream and heaps for one image.
// Row values are read-only copies taken at load; the trim engine edits
// the image buffer, never these records.
type Meta struct {
	Layout  Layout
	Tables  [NumTables][][]uint32 // column values, one slice per row
	Strings Heap
	US      Heap
	Blob    Heap
	GUID    Heap
	Diags   []cilfmt.Diag
}

// Parse reads the tables stream and heap directories of a loaded image.
func Parse(f *pefile.File, opts cilfmt.Options) (*Meta, error) {
	md := &Meta{}
	var diags cilfmt.Diags

	for _, pair := range []struct {
		name string
		heap *Heap
	}{
		{"#Strings", &md.Strings},
		{"#US", &md.US},
		{"#Blob", &md.Blob},
		{"#GUID", &md.GUID},
	} {
		if sh := f.Stream(pair.name); sh != nil {
			pair.heap.Offset = sh.Offset
			pair.heap.Data = f.StreamBytes(sh)
		}
	}

	ts := f.TablesStream()
	if ts == nil {
		return nil, fmt.Errorf("metadata: %w", pefile.ErrNoMetadata)
	}
	md.Layout.TablesOffset = ts.Offset

	s := cilfmt.NewStreamAt(f.Bytes(), int(ts.Offset))
	if err := s.Skip(6); err != nil { // Reserved, MajorVersion, MinorVersion
		return nil, fmt.Errorf("metadata: tables header: %w", err)
	}
	heapSizes, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("metadata: tables header: %w", err)
	}
	md.Layout.HeapSizes = heapSizes
	if err := s.Skip(1); err != nil { // Reserved
		return nil, fmt.Errorf("metadata: tables header: %w", err)
	}
	valid, err := s.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("metadata: tables header: %w", err)
	}
	md.Layout.Valid = valid
	if err := s.Skip(8); err != nil { // Sorted
		return nil, fmt.Errorf("metadata: tables header: %w", err)
	}

	for id := 0; id < NumTables; id++ {
		if valid&(1<<uint(id)) == 0 {
			continue
		}
		n, err := s.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("metadata: row count for %s: %w", TableName(id), err)
		}
		md.Layout.Rows[id] = n
		if schemas[id] == nil && n > 0 {
			return nil, fmt.Errorf("metadata: unknown table %#x present", id)
		}
	}

	md.Layout.DataOffset = uint32(s.Position())
	md.Layout.compute()

	for id := 0; id < NumTables; id++ {
		n := md.Layout.Rows[id]
		if n == 0 {
			continue
		}
		cols := schemas[id]
		rows := make([][]uint32, n)
		for r := uint32(0); r < n; r++ {
			row := make([]uint32, len(cols))
			for ci, c := range cols {
				var v uint32
				var err error
				switch md.Layout.ColumnWidth(c) {
				case 2:
					var v16 uint16
					v16, err = s.ReadUint16()
					v = uint32(v16)
				case 4:
					v, err = s.ReadUint32()
				}
				if err != nil {
					if opts.Mode == cilfmt.ModeStrict {
						return nil, fmt.Errorf("metadata: %s row %d: %w", TableName(id), r+1, err)
					}
					diags.Addf(uint64(md.Layout.RowOffset(id, r)), cilfmt.DiagTruncated,
						"%s row %d truncated", TableName(id), r+1)
					md.Diags = diags.Items()
					md.Tables[id] = rows[:r]
					return md, nil
				}
				row[ci] = v
			}
			rows[r] = row
		}
		md.Tables[id] = rows
	}

	md.Diags = diags.Items()
	return md, nil
}

// NumRows returns the row count of a table.
func (m *Meta) NumRows(id int) uint32 { return m.Layout.Rows[id] }

// Row returns the raw column values of a 0-based row, or nil when out
// of range.
func (m *Meta) Row(id int, row0 uint32) []uint32 {
	if row0 >= uint32(len(m.Tables[id])) {
		return nil
	}
	return m.Tables[id][row0]
}
