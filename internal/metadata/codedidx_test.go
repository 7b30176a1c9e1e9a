package metadata

import "testing"

func TestDecodeCoded(t *testing.T) {
	tests := []struct {
		kind  int
		v     uint32
		table int
		row   uint32
	}{
		{CodedTypeDefOrRef, 1<<2 | 0, TableTypeDef, 1},
		{CodedTypeDefOrRef, 7<<2 | 1, TableTypeRef, 7},
		{CodedTypeDefOrRef, 3<<2 | 2, TableTypeSpec, 3},
		{CodedHasConstant, 5<<2 | 0, TableField, 5},
		{CodedHasCustomAttribute, 2<<5 | 0, TableMethodDef, 2},
		{CodedHasCustomAttribute, 4<<5 | 3, TableTypeDef, 4},
		{CodedMemberRefParent, 9<<3 | 1, TableTypeRef, 9},
		{CodedMethodDefOrRef, 6<<1 | 1, TableMemberRef, 6},
		{CodedCustomAttributeType, 8<<3 | 2, TableMethodDef, 8},
		{CodedResolutionScope, 1<<2 | 2, TableAssemblyRef, 1},
	}
	for _, tt := range tests {
		tok, ok := DecodeCoded(tt.kind, tt.v)
		if !ok {
			t.Errorf("DecodeCoded(%d, %#x) failed", tt.kind, tt.v)
			continue
		}
		if tok.Table() != tt.table || tok.Row() != tt.row {
			t.Errorf("DecodeCoded(%d, %#x) = %s, want %s[%d]",
				tt.kind, tt.v, tok, TableName(tt.table), tt.row)
		}
	}
}

func TestDecodeCoded_UnassignedTag(t *testing.T) {
	// CustomAttributeType tags 0, 1, and 4 have no table.
	for _, tag := range []uint32{0, 1, 4} {
		if _, ok := DecodeCoded(CodedCustomAttributeType, 3<<3|tag); ok {
			t.Errorf("tag %d should not decode", tag)
		}
	}
}

func TestEncodeCoded_RoundTrip(t *testing.T) {
	for kind := 0; kind < numCodedKinds; kind++ {
		for tag, table := range codedSpecs[kind].tables {
			if table == tableAbsent {
				continue
			}
			tok := NewToken(table, 42)
			v, ok := EncodeCoded(kind, tok)
			if !ok {
				t.Errorf("kind %d: encode %s failed", kind, tok)
				continue
			}
			if wantV := uint32(42)<<codedSpecs[kind].bits | uint32(tag); v != wantV {
				t.Errorf("kind %d tag %d: encoded %#x, want %#x", kind, tag, v, wantV)
			}
			back, ok := DecodeCoded(kind, v)
			if !ok || back != tok {
				t.Errorf("kind %d: round trip %s -> %#x -> %s", kind, tok, v, back)
			}
		}
	}
}

func TestCodedWide(t *testing.T) {
	var rows [NumTables]uint32

	// HasCustomAttribute has 5 tag bits: wide at 2^11 rows.
	rows[TableMethodDef] = 1<<11 - 1
	if codedWide(CodedHasCustomAttribute, &rows) {
		t.Error("HasCustomAttribute should be narrow below 2^11 rows")
	}
	rows[TableMethodDef] = 1 << 11
	if !codedWide(CodedHasCustomAttribute, &rows) {
		t.Error("HasCustomAttribute should be wide at 2^11 rows")
	}

	// TypeDefOrRef has 2 tag bits: wide at 2^14 rows.
	rows = [NumTables]uint32{}
	rows[TableTypeDef] = 1<<14 - 1
	if codedWide(CodedTypeDefOrRef, &rows) {
		t.Error("TypeDefOrRef should be narrow below 2^14 rows")
	}
	rows[TableTypeSpec] = 1 << 14
	if !codedWide(CodedTypeDefOrRef, &rows) {
		t.Error("TypeDefOrRef should be wide at 2^14 rows")
	}
}

func TestTokenHelpers(t *testing.T) {
	tok := NewToken(TableMethodDef, 7)
	if tok.Table() != TableMethodDef || tok.Row() != 7 || tok.IsNil() {
		t.Errorf("token %#x: table %d row %d", uint32(tok), tok.Table(), tok.Row())
	}
	if !NewToken(TableTypeDef, 0).IsNil() {
		t.Error("row 0 should be nil")
	}

	bt := BlobToken(0x123)
	if !bt.IsBlobToken() || bt.IsUSToken() || bt.Row() != 0x123 {
		t.Errorf("BlobToken(0x123) = %#x", uint32(bt))
	}
	ut := USToken(0x10)
	if !ut.IsUSToken() || ut.IsBlobToken() || ut.Row() != 0x10 {
		t.Errorf("USToken(0x10) = %#x", uint32(ut))
	}
}
