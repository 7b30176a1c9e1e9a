package invoke

import (
	"strings"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/metadata"
	"ciltrim/internal/sig"
)

// Compiler-synthesised types that hold literal blobs referenced by IL.
// They are always treated as invoked.
const (
	privateImplPrefix = "<PrivateImplementationDetails>"
	staticArrayPrefix = "__StaticArrayInitTypeSize="
)

// TypeSet is the set of invoked TypeDef rows, 0-based.
type TypeSet map[uint32]bool

// ResolveTypes derives the invoked-type set from the invoked-method
// set: name matches, signature expansion, the <Module> pseudo-type,
// and compiler-synthesised literal holders.
func ResolveTypes(md *metadata.Meta, set *MethodSet) (TypeSet, []cilfmt.Diag) {
	var diags cilfmt.Diags
	types := make(TypeSet)

	// Type names named directly by the invoked methods.
	typeNames := make(map[string]bool)
	for _, name := range set.Names() {
		if tn, ok := ownerTypeName(name); ok {
			typeNames[tn] = true
		}
	}

	// Signature expansion: every type a signature of an invoked method
	// mentions joins the set, TypeRefs by name, TypeDefs by row.
	for _, ref := range invokedMethods(md, set) {
		row := md.MethodDef(ref)
		blob := md.Blob.BlobData(row.Signature)
		if blob == nil {
			diags.Addf(uint64(row.Signature), cilfmt.DiagMalformedBlob,
				"method %d signature blob unreadable", ref+1)
			continue
		}
		ms, err := sig.ParseMethodSig(blob)
		if err != nil {
			diags.Addf(uint64(row.Signature), cilfmt.DiagMalformedBlob,
				"method %d signature: %v", ref+1, err)
			continue
		}
		ms.Walk(func(t *sig.Type) {
			if t.Elem != sig.ElemValueType && t.Elem != sig.ElemClass {
				return
			}
			switch t.Token.Table() {
			case metadata.TableTypeDef:
				if !t.Token.IsNil() {
					types[t.Token.Row()-1] = true
				}
			case metadata.TableTypeRef:
				if !t.Token.IsNil() && t.Token.Row() <= md.NumRows(metadata.TableTypeRef) {
					typeNames[strings.ToLower(md.TypeRefName(t.Token.Row()-1))] = true
				} else {
					diags.Addf(uint64(t.Token), cilfmt.DiagUnresolved,
						"TypeRef %d out of range", t.Token.Row())
				}
			}
		})
	}

	// Name-driven matching over all TypeDef rows, plus the always-kept
	// compiler-synthesised types.
	for r := uint32(0); r < md.NumRows(metadata.TableTypeDef); r++ {
		row := md.TypeDef(r)
		name := md.Strings.String(row.Name)
		if typeNames[strings.ToLower(md.TypeDefName(r))] ||
			strings.HasPrefix(name, privateImplPrefix) ||
			strings.HasPrefix(name, staticArrayPrefix) {
			types[r] = true
		}
	}

	// Types nested inside <PrivateImplementationDetails> holders.
	for r := uint32(0); r < md.NumRows(metadata.TableNestedClass); r++ {
		nc := md.NestedClass(r)
		if nc.NestedClass == 0 || nc.EnclosingClass == 0 {
			continue
		}
		encl := md.TypeDef(nc.EnclosingClass - 1)
		if strings.HasPrefix(md.Strings.String(encl.Name), privateImplPrefix) {
			types[nc.NestedClass-1] = true
		}
	}

	// Row 0 is the <Module> pseudo-type, always invoked.
	if md.NumRows(metadata.TableTypeDef) > 0 {
		types[0] = true
	}
	return types, diags.Items()
}

// invokedMethods returns the 0-based MethodDef rows whose qualified
// names are in the set.
func invokedMethods(md *metadata.Meta, set *MethodSet) []uint32 {
	var rows []uint32
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		start, end := md.MethodRange(t)
		owner := strings.ToLower(md.TypeDefName(t))
		for mi := start; mi < end; mi++ {
			name := md.Strings.String(md.MethodDef(mi).Name)
			if set.Contains(owner + "." + CanonicalMethodName(name)) {
				rows = append(rows, mi)
			}
		}
	}
	return rows
}

// ownerTypeName splits a fully-qualified method name at its last dot
// and normalises a trailing generic parameter list to the metadata
// backtick-arity form.
func ownerTypeName(fullName string) (string, bool) {
	i := strings.LastIndex(fullName, ".")
	if i <= 0 {
		return "", false
	}
	return strings.ToLower(NormalizeGenericName(fullName[:i])), true
}

// NormalizeGenericName converts a source-form generic suffix
// ("Name<T,U>") to the metadata arity form ("Name`2").
func NormalizeGenericName(name string) string {
	open := strings.Index(name, "<")
	if open < 0 || !strings.HasSuffix(name, ">") {
		return name
	}
	params := name[open+1 : len(name)-1]
	arity := 1
	depth := 0
	for _, r := range params {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				arity++
			}
		}
	}
	return name[:open] + "`" + itoa(arity)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
