package trim

import (
	"ciltrim/internal/cilfmt"
	"ciltrim/internal/ilbody"
	"ciltrim/internal/metadata"
)

// auxTables are the tables swept after the deep closure: any row whose
// token is not in the used set has its payload cleared. Row slots stay
// in place; row counts are invariant.
var auxTables = []int{
	metadata.TableTypeRef,
	metadata.TableMemberRef,
	metadata.TableConstant,
	metadata.TableCustomAttribute,
	metadata.TableStandAloneSig,
	metadata.TableTypeSpec,
	metadata.TableMethodSpec,
	metadata.TableInterfaceImpl,
}

// deep runs the transitive reference closure over the already-trimmed
// image and clears every auxiliary row, #Blob entry, and #US entry
// outside it.
func (r *Run) deep() {
	used := make(map[metadata.Token]bool)

	mark := func(from, to metadata.Token) bool {
		if to.IsNil() {
			return false
		}
		if r.CaptureEdges && !from.IsNil() {
			r.Edges = append(r.Edges, Edge{From: from, To: to})
		}
		if used[to] {
			return false
		}
		used[to] = true
		return true
	}

	r.seedTypes(used, mark)
	r.seedMethods(used, mark)
	r.seedFields(used, mark)
	r.closeOver(used, mark)
	r.sweepCustomAttributes(used, mark)
	r.sweepRows(used)
	r.sweepBlob(used)
	r.sweepUserStrings(used)
}

// seedTypes marks every preserved TypeDef row, its Extends target, and
// the InterfaceImpl rows (with their interfaces) attached to it.
func (r *Run) seedTypes(used map[metadata.Token]bool, mark func(from, to metadata.Token) bool) {
	md := r.Meta
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		if !r.typeKept(t) {
			continue
		}
		self := metadata.NewToken(metadata.TableTypeDef, t+1)
		used[self] = true
		row := md.TypeDef(t)
		if tok, ok := metadata.DecodeCoded(metadata.CodedTypeDefOrRef, row.Extends); ok {
			mark(self, tok)
		}
	}
	for i := uint32(0); i < md.NumRows(metadata.TableInterfaceImpl); i++ {
		impl := md.InterfaceImpl(i)
		if impl.Class == 0 || !r.typeKept(impl.Class-1) {
			continue
		}
		self := metadata.NewToken(metadata.TableTypeDef, impl.Class)
		mark(self, metadata.NewToken(metadata.TableInterfaceImpl, i+1))
		if tok, ok := metadata.DecodeCoded(metadata.CodedTypeDefOrRef, impl.Interface); ok {
			mark(self, tok)
		}
	}
}

// seedMethods marks every preserved MethodDef row, its signature blob,
// every token its IL body references, and the local variable signature
// of fat bodies that initialise locals.
func (r *Run) seedMethods(used map[metadata.Token]bool, mark func(from, to metadata.Token) bool) {
	md := r.Meta
	for mi := uint32(0); mi < md.NumRows(metadata.TableMethodDef); mi++ {
		if !r.methodKept[mi] {
			continue
		}
		self := metadata.NewToken(metadata.TableMethodDef, mi+1)
		used[self] = true
		row := md.MethodDef(mi)
		if row.Signature != 0 {
			mark(self, metadata.BlobToken(row.Signature))
		}
		if row.RVA == 0 {
			continue
		}
		off, err := r.File.RVAToOffset(row.RVA)
		if err != nil {
			r.Diags.Addf(uint64(row.RVA), cilfmt.DiagOutOfRange, "method %d body RVA: %v", mi+1, err)
			continue
		}
		body, err := ilbody.ReadBody(r.File.Bytes(), off)
		if err != nil {
			r.Diags.Addf(uint64(off), cilfmt.DiagMalformedIL, "method %d body: %v", mi+1, err)
			continue
		}
		if body.Fat && body.InitLocals && body.LocalVarSigTok != 0 {
			mark(self, metadata.Token(body.LocalVarSigTok))
		}
		refs, diags := ilbody.ScanTokens(body.Code(r.File.Bytes()), r.Opts)
		for _, d := range diags {
			r.Diags.Add(uint64(body.CodeOffset())+d.Offset, d.Kind, d.Msg)
		}
		for _, ref := range refs {
			if ref.IsString() {
				mark(self, metadata.USToken(ref.Value&0xFFFFFF))
				continue
			}
			mark(self, metadata.Token(ref.Value))
		}
	}
}

// seedFields marks every field of a preserved type, its signature
// blob, and the Constant row attached to it.
func (r *Run) seedFields(used map[metadata.Token]bool, mark func(from, to metadata.Token) bool) {
	md := r.Meta
	kept := make(map[uint32]bool)
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		if !r.typeKept(t) {
			continue
		}
		fStart, fEnd := md.FieldRange(t)
		for fi := fStart; fi < fEnd; fi++ {
			kept[fi] = true
			self := metadata.NewToken(metadata.TableField, fi+1)
			used[self] = true
			if s := md.Field(fi).Signature; s != 0 {
				mark(self, metadata.BlobToken(s))
			}
		}
	}
	for ci := uint32(0); ci < md.NumRows(metadata.TableConstant); ci++ {
		row := md.Constant(ci)
		parent, ok := metadata.DecodeCoded(metadata.CodedHasConstant, row.Parent)
		if !ok || parent.Table() != metadata.TableField || parent.IsNil() {
			continue
		}
		if !kept[parent.Row()-1] {
			continue
		}
		self := metadata.NewToken(metadata.TableConstant, ci+1)
		mark(parent, self)
		if row.Value != 0 {
			mark(self, metadata.BlobToken(row.Value))
		}
	}
}

// closeOver repeats the auxiliary-table expansion until no new token
// is added, bounded by the pass cap.
func (r *Run) closeOver(used map[metadata.Token]bool, mark func(from, to metadata.Token) bool) {
	md := r.Meta
	maxPasses := r.Opts.EffectiveMaxPasses()
	for pass := 0; pass < maxPasses; pass++ {
		added := false

		for i := uint32(0); i < md.NumRows(metadata.TableMemberRef); i++ {
			self := metadata.NewToken(metadata.TableMemberRef, i+1)
			if !used[self] {
				continue
			}
			row := md.MemberRef(i)
			if tok, ok := metadata.DecodeCoded(metadata.CodedMemberRefParent, row.Class); ok {
				added = mark(self, tok) || added
			}
			if row.Signature != 0 {
				added = mark(self, metadata.BlobToken(row.Signature)) || added
			}
		}

		for i := uint32(0); i < md.NumRows(metadata.TableTypeSpec); i++ {
			self := metadata.NewToken(metadata.TableTypeSpec, i+1)
			if !used[self] {
				continue
			}
			if s := md.Row(metadata.TableTypeSpec, i)[0]; s != 0 {
				added = mark(self, metadata.BlobToken(s)) || added
			}
		}

		for i := uint32(0); i < md.NumRows(metadata.TableMethodSpec); i++ {
			self := metadata.NewToken(metadata.TableMethodSpec, i+1)
			if !used[self] {
				continue
			}
			row := md.MethodSpec(i)
			if tok, ok := metadata.DecodeCoded(metadata.CodedMethodDefOrRef, row.Method); ok {
				added = mark(self, tok) || added
			}
			if row.Instantiation != 0 {
				added = mark(self, metadata.BlobToken(row.Instantiation)) || added
			}
		}

		if !added {
			return
		}
	}
	r.Diags.Addf(0, cilfmt.DiagInvalid, "deep closure did not converge in %d passes", maxPasses)
}

// sweepCustomAttributes marks attributes whose parent survived the
// closure, together with their constructor and value blob.
func (r *Run) sweepCustomAttributes(used map[metadata.Token]bool, mark func(from, to metadata.Token) bool) {
	md := r.Meta
	for i := uint32(0); i < md.NumRows(metadata.TableCustomAttribute); i++ {
		row := md.CustomAttribute(i)
		parent, ok := metadata.DecodeCoded(metadata.CodedHasCustomAttribute, row.Parent)
		if !ok || !used[parent] {
			continue
		}
		self := metadata.NewToken(metadata.TableCustomAttribute, i+1)
		mark(parent, self)
		if tok, ok := metadata.DecodeCoded(metadata.CodedCustomAttributeType, row.Type); ok {
			mark(self, tok)
		}
		if row.Value != 0 {
			mark(self, metadata.BlobToken(row.Value))
		}
	}
}

// sweepRows clears the payload of every auxiliary-table row outside
// the used set.
func (r *Run) sweepRows(used map[metadata.Token]bool) {
	md := r.Meta
	fn := r.zeroFn()
	for _, id := range auxTables {
		cols := metadata.Schema(id)
		last := len(cols) - 1
		for row0 := uint32(0); row0 < md.NumRows(id); row0++ {
			if used[metadata.NewToken(id, row0+1)] {
				continue
			}
			off, width := md.Layout.ColSpan(id, row0, 0, last)
			fn(off, width)
			r.Stats.RowPayloads += uint64(width)
		}
	}
}

// sweepBlob clears the data bytes of every #Blob entry outside the
// used set, preserving compressed length prefixes.
func (r *Run) sweepBlob(used map[metadata.Token]bool) {
	md := r.Meta
	if !md.Blob.Valid() {
		return
	}
	fn := r.zeroFn()
	md.Blob.ForEachBlob(func(off uint32, hdr, n int) {
		if n == 0 || used[metadata.BlobToken(off)] {
			return
		}
		fn(md.Blob.Offset+off+uint32(hdr), uint32(n))
		r.Stats.Blobs += uint64(n)
	})
}

// sweepUserStrings clears the character bytes of every #US entry not
// referenced by an ldstr of a preserved body.
func (r *Run) sweepUserStrings(used map[metadata.Token]bool) {
	md := r.Meta
	if !md.US.Valid() {
		return
	}
	fn := r.zeroFn()
	md.US.ForEachBlob(func(off uint32, hdr, n int) {
		if n == 0 || used[metadata.USToken(off)] {
			return
		}
		fn(md.US.Offset+off+uint32(hdr), uint32(n))
		r.Stats.UserStrings += uint64(n)
	})
}
