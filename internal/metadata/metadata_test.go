package metadata_test

import (
	"encoding/binary"
	"testing"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/metadata"
	"ciltrim/internal/pefile"
	"ciltrim/internal/testimage"
)

func buildSample(t *testing.T) (*pefile.File, *metadata.Meta) {
	t.Helper()
	b := &testimage.Builder{
		Types: []testimage.Type{
			{Name: "<Module>"},
			{Namespace: "App", Name: "Alpha", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A), Params: []string{"count"}},
				{Name: "Stop", Body: testimage.TinyBody(0x00, 0x2A)},
			}, Fields: []testimage.Field{
				{Name: "state"},
			}},
			{Namespace: "App", Name: "Beta", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A)},
			}},
		},
		TypeRefs: []testimage.TypeRef{
			{Namespace: "System", Name: "Object"},
		},
	}
	img := b.Build()

	f, err := pefile.Parse(img)
	if err != nil {
		t.Fatal(err)
	}
	md, err := metadata.Parse(f, cilfmt.Options{Mode: cilfmt.ModeStrict})
	if err != nil {
		t.Fatal(err)
	}
	return f, md
}

func TestParse_RowCounts(t *testing.T) {
	_, md := buildSample(t)

	tests := []struct {
		table int
		want  uint32
	}{
		{metadata.TableModule, 1},
		{metadata.TableTypeRef, 1},
		{metadata.TableTypeDef, 3},
		{metadata.TableField, 1},
		{metadata.TableMethodDef, 3},
		{metadata.TableParam, 1},
		{metadata.TableAssembly, 1},
		{metadata.TableMemberRef, 0},
	}
	for _, tt := range tests {
		if got := md.NumRows(tt.table); got != tt.want {
			t.Errorf("NumRows(%s) = %d, want %d", metadata.TableName(tt.table), got, tt.want)
		}
	}
}

func TestParse_TypeNames(t *testing.T) {
	_, md := buildSample(t)

	wants := []string{"<Module>", "App.Alpha", "App.Beta"}
	for i, want := range wants {
		if got := md.TypeDefName(uint32(i)); got != want {
			t.Errorf("TypeDefName(%d) = %q, want %q", i, got, want)
		}
	}
	if got := md.TypeRefName(0); got != "System.Object" {
		t.Errorf("TypeRefName(0) = %q, want System.Object", got)
	}
}

func TestParse_MemberRanges(t *testing.T) {
	_, md := buildSample(t)

	// <Module> owns nothing; Alpha owns methods 0-1 and field 0;
	// Beta owns method 2.
	if s, e := md.MethodRange(0); s != 0 || e != 0 {
		t.Errorf("MethodRange(<Module>) = [%d,%d), want empty", s, e)
	}
	if s, e := md.MethodRange(1); s != 0 || e != 2 {
		t.Errorf("MethodRange(Alpha) = [%d,%d), want [0,2)", s, e)
	}
	if s, e := md.MethodRange(2); s != 2 || e != 3 {
		t.Errorf("MethodRange(Beta) = [%d,%d), want [2,3)", s, e)
	}
	if s, e := md.FieldRange(1); s != 0 || e != 1 {
		t.Errorf("FieldRange(Alpha) = [%d,%d), want [0,1)", s, e)
	}
	if s, e := md.ParamRange(0); s != 0 || e != 1 {
		t.Errorf("ParamRange(Alpha.Run) = [%d,%d), want [0,1)", s, e)
	}

	if owner, ok := md.MethodOwner(2); !ok || owner != 2 {
		t.Errorf("MethodOwner(2) = %d,%v, want 2,true", owner, ok)
	}
	if owner, ok := md.FieldOwner(0); !ok || owner != 1 {
		t.Errorf("FieldOwner(0) = %d,%v, want 1,true", owner, ok)
	}
}

// TestGeometry_RowOffset cross-checks the computed row geometry against
// the wire: re-reading each column at its computed offset must yield
// the parsed value.
func TestGeometry_RowOffset(t *testing.T) {
	f, md := buildSample(t)
	data := f.Bytes()

	for _, table := range []int{
		metadata.TableModule, metadata.TableTypeRef, metadata.TableTypeDef,
		metadata.TableField, metadata.TableMethodDef, metadata.TableParam,
		metadata.TableAssembly,
	} {
		cols := metadata.Schema(table)
		for row0 := uint32(0); row0 < md.NumRows(table); row0++ {
			parsed := md.Row(table, row0)
			for ci := range cols {
				off := md.Layout.ColOffset(table, row0, ci)
				var got uint32
				switch md.Layout.ColWidth(table, ci) {
				case 2:
					got = uint32(binary.LittleEndian.Uint16(data[off:]))
				case 4:
					got = binary.LittleEndian.Uint32(data[off:])
				}
				if got != parsed[ci] {
					t.Errorf("%s[%d].%s: wire %#x at 0x%x, parsed %#x",
						metadata.TableName(table), row0+1, cols[ci].Name, got, off, parsed[ci])
				}
			}
		}
	}
}

func TestHeap_Strings(t *testing.T) {
	_, md := buildSample(t)

	if got := md.Strings.String(0); got != "" {
		t.Errorf("String(0) = %q, want empty", got)
	}
	row := md.TypeDef(1)
	if got := md.Strings.String(row.Name); got != "Alpha" {
		t.Errorf("String(TypeDef[2].Name) = %q, want Alpha", got)
	}

	found := false
	md.Strings.ForEachString(func(off, length uint32) {
		if md.Strings.String(off) == "Beta" && length == 4 {
			found = true
		}
	})
	if !found {
		t.Error("ForEachString did not visit Beta")
	}
}

func TestHeap_Blob(t *testing.T) {
	_, md := buildSample(t)

	sig := md.MethodDef(0).Signature
	hdr, n, err := md.Blob.BlobEntry(sig)
	if err != nil {
		t.Fatal(err)
	}
	if hdr != 1 || n != 3 {
		t.Errorf("BlobEntry(sig) = hdr %d, n %d; want 1, 3", hdr, n)
	}
	data := md.Blob.BlobData(sig)
	if len(data) != 3 || data[0] != 0x00 || data[2] != 0x01 {
		t.Errorf("BlobData(sig) = %x, want default void() signature", data)
	}

	count := 0
	md.Blob.ForEachBlob(func(off uint32, hdr, n int) { count++ })
	if count == 0 {
		t.Error("ForEachBlob visited nothing")
	}
}
