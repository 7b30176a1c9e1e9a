package pefile_test

import (
	"errors"
	"testing"

	"ciltrim/internal/pefile"
	"ciltrim/internal/testimage"
)

func sampleImage() []byte {
	b := &testimage.Builder{
		Types: []testimage.Type{
			{Name: "<Module>"},
			{Namespace: "App", Name: "Alpha", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A)},
			}},
		},
	}
	return b.Build()
}

func TestParse_ValidImage(t *testing.T) {
	img := sampleImage()
	f, err := pefile.Parse(img)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.Sections) != 1 || f.Sections[0].Name != ".text" {
		t.Errorf("sections = %+v", f.Sections)
	}
	if f.CLI.MetadataRVA == 0 || f.CLI.MetadataSize == 0 {
		t.Errorf("CLI header = %+v", f.CLI)
	}
	if f.Version != "v4.0.30319" {
		t.Errorf("version = %q", f.Version)
	}

	for _, name := range []string{"#~", "#Strings", "#US", "#GUID", "#Blob"} {
		if f.Stream(name) == nil {
			t.Errorf("missing stream %s", name)
		}
	}
	if f.TablesStream() == nil || f.TablesStream().Name != "#~" {
		t.Error("TablesStream did not resolve #~")
	}
}

func TestParse_ClonesInput(t *testing.T) {
	img := sampleImage()
	f, err := pefile.Parse(img)
	if err != nil {
		t.Fatal(err)
	}
	f.Bytes()[0] = 0xFF
	if img[0] == 0xFF {
		t.Error("Parse aliased the caller's buffer")
	}
}

func TestRVAToOffset(t *testing.T) {
	f, err := pefile.Parse(sampleImage())
	if err != nil {
		t.Fatal(err)
	}
	sec := f.Sections[0]

	off, err := f.RVAToOffset(sec.VirtualAddress + 8)
	if err != nil {
		t.Fatal(err)
	}
	if off != sec.RawOffset+8 {
		t.Errorf("offset = %#x, want %#x", off, sec.RawOffset+8)
	}

	if _, err := f.RVAToOffset(0xFFFF0000); !errors.Is(err, pefile.ErrNoSection) {
		t.Errorf("expected ErrNoSection, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, pefile.ErrNotPE},
		{"no MZ", make([]byte, 0x200), pefile.ErrNotPE},
		{"MZ only", append([]byte{'M', 'Z'}, make([]byte, 0x200)...), pefile.ErrNotPE},
	}
	for _, tt := range tests {
		if _, err := pefile.Parse(tt.data); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}

	// Corrupting the BSJB signature must fail with ErrNoMetadata.
	img := sampleImage()
	f, err := pefile.Parse(img)
	if err != nil {
		t.Fatal(err)
	}
	off, err := f.RVAToOffset(f.CLI.MetadataRVA)
	if err != nil {
		t.Fatal(err)
	}
	img[off] = 0
	if _, err := pefile.Parse(img); !errors.Is(err, pefile.ErrNoMetadata) {
		t.Errorf("corrupted root: got %v, want ErrNoMetadata", err)
	}
}
