package trim

import (
	"ciltrim/internal/metadata"
)

// conditionalStringTables are the tables whose string references only
// survive when the owning row is preserved. Every other table's string
// columns are always preserved.
var conditionalStringTables = map[int]bool{
	metadata.TableTypeDef:   true,
	metadata.TableMethodDef: true,
	metadata.TableField:     true,
	metadata.TableParam:     true,
}

// trimStrings zeroes the character bytes of every #Strings entry not
// referenced by a preserved row. NUL terminators are kept, which is
// more than strictly required but conservative: the heap remains
// walkable as a string sequence.
func (r *Run) trimStrings() {
	md := r.Meta
	if !md.Strings.Valid() {
		return
	}

	keep := make(map[uint32]bool)
	keep[0] = true

	// String columns of always-preserved tables.
	for id := 0; id < metadata.NumTables; id++ {
		if conditionalStringTables[id] {
			continue
		}
		cols := metadata.Schema(id)
		for ci, c := range cols {
			if c.Kind != metadata.ColString {
				continue
			}
			for _, row := range md.Tables[id] {
				keep[row[ci]] = true
			}
		}
	}

	// Preserved TypeDef rows keep their name and namespace.
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		if !r.typeKept(t) {
			continue
		}
		row := md.TypeDef(t)
		keep[row.Name] = true
		keep[row.Namespace] = true
	}

	// Preserved methods keep their name and their params' names.
	for mi := uint32(0); mi < md.NumRows(metadata.TableMethodDef); mi++ {
		if !r.methodKept[mi] {
			continue
		}
		keep[md.MethodDef(mi).Name] = true
		pStart, pEnd := md.ParamRange(mi)
		for pi := pStart; pi < pEnd; pi++ {
			if row := md.Row(metadata.TableParam, pi); row != nil {
				keep[row[2]] = true
			}
		}
	}

	// Fields of preserved types keep their names.
	for t := uint32(0); t < md.NumRows(metadata.TableTypeDef); t++ {
		if !r.typeKept(t) {
			continue
		}
		fStart, fEnd := md.FieldRange(t)
		for fi := fStart; fi < fEnd; fi++ {
			keep[md.Field(fi).Name] = true
		}
	}

	fn := r.zeroFn()
	md.Strings.ForEachString(func(off, length uint32) {
		if keep[off] || length == 0 {
			return
		}
		fn(md.Strings.Offset+off, length)
		r.Stats.Strings += uint64(length)
	})
}
