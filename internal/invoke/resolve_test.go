package invoke_test

import (
	"testing"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/invoke"
	"ciltrim/internal/metadata"
	"ciltrim/internal/pefile"
	"ciltrim/internal/testimage"
)

func parseImage(t *testing.T, b *testimage.Builder) *metadata.Meta {
	t.Helper()
	f, err := pefile.Parse(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	md, err := metadata.Parse(f, cilfmt.Options{Mode: cilfmt.ModeStrict})
	if err != nil {
		t.Fatal(err)
	}
	return md
}

func TestResolveTypes_NameMatch(t *testing.T) {
	md := parseImage(t, &testimage.Builder{
		Types: []testimage.Type{
			{Name: "<Module>"},
			{Namespace: "App", Name: "Alpha", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A)},
			}},
			{Namespace: "App", Name: "Beta", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A)},
			}},
		},
	})

	types, diags := invoke.ResolveTypes(md, invoke.NewMethodSet([]string{"App.Alpha.Run"}))
	if len(diags) != 0 {
		t.Fatalf("diags: %v", diags)
	}
	if !types[0] {
		t.Error("<Module> row must always be invoked")
	}
	if !types[1] {
		t.Error("Alpha must be invoked by name")
	}
	if types[2] {
		t.Error("Beta must not be invoked")
	}
}

func TestResolveTypes_SignatureExpansion(t *testing.T) {
	// Alpha.Run has signature void(Beta); Beta is TypeDef row 3, so the
	// compressed TypeDefOrRef coded value is 3<<2|0.
	md := parseImage(t, &testimage.Builder{
		Types: []testimage.Type{
			{Name: "<Module>"},
			{Namespace: "App", Name: "Alpha", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A),
					Sig: testimage.MethodSigWithClassParam(3 << 2)},
			}},
			{Namespace: "App", Name: "Beta"},
		},
	})

	types, _ := invoke.ResolveTypes(md, invoke.NewMethodSet([]string{"App.Alpha.Run"}))
	if !types[2] {
		t.Error("Beta is referenced by Alpha.Run's signature and must be invoked")
	}
}

func TestResolveTypes_SignatureTypeRef(t *testing.T) {
	// The parameter type resolves through TypeRef[1] = App.Gamma, which
	// also exists as a TypeDef; the name joins the set.
	md := parseImage(t, &testimage.Builder{
		Types: []testimage.Type{
			{Name: "<Module>"},
			{Namespace: "App", Name: "Alpha", Methods: []testimage.Method{
				{Name: "Run", Body: testimage.TinyBody(0x2A),
					Sig: testimage.MethodSigWithClassParam(1<<2 | 1)},
			}},
			{Namespace: "App", Name: "Gamma"},
		},
		TypeRefs: []testimage.TypeRef{
			{Namespace: "App", Name: "Gamma"},
		},
	})

	types, _ := invoke.ResolveTypes(md, invoke.NewMethodSet([]string{"App.Alpha.Run"}))
	if !types[2] {
		t.Error("Gamma must be invoked through the TypeRef name")
	}
}

func TestResolveTypes_CompilerSynthesised(t *testing.T) {
	md := parseImage(t, &testimage.Builder{
		Types: []testimage.Type{
			{Name: "<Module>"},
			{Name: "<PrivateImplementationDetails>"},
			{Name: "__StaticArrayInitTypeSize=16"},
			{Namespace: "App", Name: "Unused"},
		},
		NestedClasses: []testimage.NestedClass{
			{Nested: 3, Enclosing: 2},
		},
	})

	types, _ := invoke.ResolveTypes(md, invoke.NewMethodSet(nil))
	if !types[1] {
		t.Error("<PrivateImplementationDetails> must be invoked")
	}
	if !types[2] {
		t.Error("__StaticArrayInitTypeSize= and nested children must be invoked")
	}
	if types[3] {
		t.Error("App.Unused must not be invoked")
	}
}
