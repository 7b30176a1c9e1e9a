package sig

import (
	"errors"
	"testing"

	"ciltrim/internal/metadata"
)

func TestParseFieldSig(t *testing.T) {
	typ, err := ParseFieldSig([]byte{0x06, ElemI4})
	if err != nil {
		t.Fatal(err)
	}
	if typ.Elem != ElemI4 {
		t.Errorf("Elem = %#x, want I4", typ.Elem)
	}

	if _, err := ParseFieldSig([]byte{0x00, ElemI4}); err == nil {
		t.Error("expected error for non-FIELD calling convention")
	}
	if _, err := ParseFieldSig(nil); err == nil {
		t.Error("expected error for empty blob")
	}
}

func TestParseMethodSig_Simple(t *testing.T) {
	// static void(int32, string)
	ms, err := ParseMethodSig([]byte{0x00, 0x02, ElemVoid, ElemI4, ElemString})
	if err != nil {
		t.Fatal(err)
	}
	if ms.Return.Elem != ElemVoid {
		t.Errorf("return = %#x, want VOID", ms.Return.Elem)
	}
	if len(ms.Params) != 2 || ms.Params[0].Elem != ElemI4 || ms.Params[1].Elem != ElemString {
		t.Errorf("params = %+v", ms.Params)
	}
	if ms.Sentinel != -1 {
		t.Errorf("sentinel = %d, want -1", ms.Sentinel)
	}
}

func TestParseMethodSig_ClassToken(t *testing.T) {
	// instance void(class TypeRef[2])
	coded := byte(2<<2 | 1)
	ms, err := ParseMethodSig([]byte{0x20, 0x01, ElemVoid, ElemClass, coded})
	if err != nil {
		t.Fatal(err)
	}
	p := ms.Params[0]
	if p.Elem != ElemClass {
		t.Fatalf("param elem = %#x, want CLASS", p.Elem)
	}
	if p.Token.Table() != metadata.TableTypeRef || p.Token.Row() != 2 {
		t.Errorf("param token = %s, want TypeRef[2]", p.Token)
	}
}

func TestParseMethodSig_Generic(t *testing.T) {
	// generic <1> static !!0 (valuetype TypeDef[3])
	ms, err := ParseMethodSig([]byte{0x10, 0x01, 0x01, ElemMVar, 0x00, ElemValueType, 3 << 2})
	if err != nil {
		t.Fatal(err)
	}
	if ms.GenericCount != 1 {
		t.Errorf("generic count = %d, want 1", ms.GenericCount)
	}
	if ms.Return.Elem != ElemMVar || ms.Return.Num != 0 {
		t.Errorf("return = %+v, want MVAR 0", ms.Return)
	}
	if tok := ms.Params[0].Token; tok.Table() != metadata.TableTypeDef || tok.Row() != 3 {
		t.Errorf("param token = %s, want TypeDef[3]", tok)
	}
}

func TestParseType_GenericInst(t *testing.T) {
	// class List`1<int32>: GENERICINST CLASS TypeRef[1] 1 I4
	ms, err := ParseMethodSig([]byte{
		0x00, 0x01, ElemVoid,
		ElemGenericInst, ElemClass, 1<<2 | 1, 0x01, ElemI4,
	})
	if err != nil {
		t.Fatal(err)
	}
	p := ms.Params[0]
	if p.Elem != ElemGenericInst {
		t.Fatalf("elem = %#x, want GENERICINST", p.Elem)
	}
	if p.Inner == nil || p.Inner.Elem != ElemClass {
		t.Fatalf("inner = %+v, want CLASS", p.Inner)
	}
	if len(p.Args) != 1 || p.Args[0].Elem != ElemI4 {
		t.Errorf("args = %+v, want [I4]", p.Args)
	}
}

func TestParseType_ArrayShape(t *testing.T) {
	// rank-2 int32 array with sizes {4,5} and lower bounds {1}
	ms, err := ParseMethodSig([]byte{
		0x00, 0x01, ElemVoid,
		ElemArray, ElemI4, 0x02, 0x02, 0x04, 0x05, 0x01, 0x01,
	})
	if err != nil {
		t.Fatal(err)
	}
	p := ms.Params[0]
	if p.Rank != 2 {
		t.Errorf("rank = %d, want 2", p.Rank)
	}
	if len(p.Sizes) != 2 || p.Sizes[0] != 4 || p.Sizes[1] != 5 {
		t.Errorf("sizes = %v", p.Sizes)
	}
	if len(p.LoBounds) != 1 || p.LoBounds[0] != 1 {
		t.Errorf("bounds = %v", p.LoBounds)
	}
	if p.Inner.Elem != ElemI4 {
		t.Errorf("element = %#x, want I4", p.Inner.Elem)
	}
}

func TestParseType_CustomMods(t *testing.T) {
	// modreq(TypeRef[1]) int32
	typ, err := ParseFieldSig([]byte{0x06, ElemCModReqd, 1<<2 | 1, ElemI4})
	if err != nil {
		t.Fatal(err)
	}
	if typ.Elem != ElemI4 {
		t.Errorf("elem = %#x, want I4", typ.Elem)
	}
	if len(typ.Mods) != 1 || typ.Mods[0].Table() != metadata.TableTypeRef {
		t.Errorf("mods = %v", typ.Mods)
	}
}

func TestParseLocalVarSig(t *testing.T) {
	locals, err := ParseLocalVarSig([]byte{0x07, 0x02, ElemI4, ElemPinned, ElemString})
	if err != nil {
		t.Fatal(err)
	}
	if len(locals) != 2 {
		t.Fatalf("locals = %d, want 2", len(locals))
	}
	if locals[1].Elem != ElemPinned || locals[1].Inner.Elem != ElemString {
		t.Errorf("local 1 = %+v, want pinned string", locals[1])
	}
}

func TestWalk_VisitsNestedTokens(t *testing.T) {
	// szarray of valuetype TypeDef[5] nested under byref
	ms, err := ParseMethodSig([]byte{
		0x00, 0x01, ElemVoid,
		ElemByRef, ElemSZArray, ElemValueType, 5 << 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	var tokens []metadata.Token
	ms.Walk(func(ty *Type) {
		if ty.Elem == ElemValueType || ty.Elem == ElemClass {
			tokens = append(tokens, ty.Token)
		}
	})
	if len(tokens) != 1 || tokens[0].Row() != 5 {
		t.Errorf("tokens = %v, want [TypeDef[5]]", tokens)
	}
}

func TestParseType_TooDeep(t *testing.T) {
	blob := []byte{0x06}
	for i := 0; i < 2*maxDepth; i++ {
		blob = append(blob, ElemSZArray)
	}
	blob = append(blob, ElemI4)
	if _, err := ParseFieldSig(blob); !errors.Is(err, ErrTooDeep) {
		t.Errorf("expected ErrTooDeep, got %v", err)
	}
}

func TestParseMethodSig_Malformed(t *testing.T) {
	tests := [][]byte{
		{0x00},                            // missing param count
		{0x00, 0x01, ElemVoid},            // missing param
		{0x00, 0x01, ElemVoid, ElemClass}, // missing type token
		{0x00, 0x01, ElemVoid, 0x17},      // unknown element
	}
	for _, blob := range tests {
		if _, err := ParseMethodSig(blob); err == nil {
			t.Errorf("ParseMethodSig(%x): expected error", blob)
		}
	}
}
