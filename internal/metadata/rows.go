package metadata

// Typed views over the raw column values. Heap columns hold heap
// offsets; coded columns hold the packed wire value.

// TypeDefRow is one TypeDef record.
type TypeDefRow struct {
	Flags      uint32
	Name       uint32 // #Strings
	Namespace  uint32 // #Strings
	Extends    uint32 // TypeDefOrRef coded
	FieldList  uint32 // 1-based Field index
	MethodList uint32 // 1-based MethodDef index
}

// MethodDefRow is one MethodDef record.
type MethodDefRow struct {
	RVA       uint32
	ImplFlags uint32
	Flags     uint32
	Name      uint32 // #Strings
	Signature uint32 // #Blob
	ParamList uint32 // 1-based Param index
}

// FieldRow is one Field record.
type FieldRow struct {
	Flags     uint32
	Name      uint32 // #Strings
	Signature uint32 // #Blob
}

// TypeRefRow is one TypeRef record.
type TypeRefRow struct {
	ResolutionScope uint32 // ResolutionScope coded
	Name            uint32 // #Strings
	Namespace       uint32 // #Strings
}

// MemberRefRow is one MemberRef record.
type MemberRefRow struct {
	Class     uint32 // MemberRefParent coded
	Name      uint32 // #Strings
	Signature uint32 // #Blob
}

// ConstantRow is one Constant record.
type ConstantRow struct {
	Type   uint32
	Parent uint32 // HasConstant coded
	Value  uint32 // #Blob, raw heap pointer
}

// CustomAttributeRow is one CustomAttribute record.
type CustomAttributeRow struct {
	Parent uint32 // HasCustomAttribute coded
	Type   uint32 // CustomAttributeType coded
	Value  uint32 // #Blob
}

// InterfaceImplRow is one InterfaceImpl record.
type InterfaceImplRow struct {
	Class     uint32 // 1-based TypeDef index
	Interface uint32 // TypeDefOrRef coded
}

// NestedClassRow is one NestedClass record.
type NestedClassRow struct {
	NestedClass    uint32 // 1-based TypeDef index
	EnclosingClass uint32 // 1-based TypeDef index
}

// MethodSpecRow is one MethodSpec record.
type MethodSpecRow struct {
	Method        uint32 // MethodDefOrRef coded
	Instantiation uint32 // #Blob
}

// FieldRVARow is one FieldRVA record.
type FieldRVARow struct {
	RVA   uint32
	Field uint32 // 1-based Field index
}

// TypeDef returns the typed view of a 0-based TypeDef row.
func (m *Meta) TypeDef(row0 uint32) TypeDefRow {
	r := m.Row(TableTypeDef, row0)
	if r == nil {
		return TypeDefRow{}
	}
	return TypeDefRow{r[0], r[1], r[2], r[3], r[4], r[5]}
}

// MethodDef returns the typed view of a 0-based MethodDef row.
func (m *Meta) MethodDef(row0 uint32) MethodDefRow {
	r := m.Row(TableMethodDef, row0)
	if r == nil {
		return MethodDefRow{}
	}
	return MethodDefRow{r[0], r[1], r[2], r[3], r[4], r[5]}
}

// Field returns the typed view of a 0-based Field row.
func (m *Meta) Field(row0 uint32) FieldRow {
	r := m.Row(TableField, row0)
	if r == nil {
		return FieldRow{}
	}
	return FieldRow{r[0], r[1], r[2]}
}

// TypeRef returns the typed view of a 0-based TypeRef row.
func (m *Meta) TypeRef(row0 uint32) TypeRefRow {
	r := m.Row(TableTypeRef, row0)
	if r == nil {
		return TypeRefRow{}
	}
	return TypeRefRow{r[0], r[1], r[2]}
}

// MemberRef returns the typed view of a 0-based MemberRef row.
func (m *Meta) MemberRef(row0 uint32) MemberRefRow {
	r := m.Row(TableMemberRef, row0)
	if r == nil {
		return MemberRefRow{}
	}
	return MemberRefRow{r[0], r[1], r[2]}
}

// Constant returns the typed view of a 0-based Constant row.
func (m *Meta) Constant(row0 uint32) ConstantRow {
	r := m.Row(TableConstant, row0)
	if r == nil {
		return ConstantRow{}
	}
	return ConstantRow{r[0], r[1], r[2]}
}

// CustomAttribute returns the typed view of a 0-based CustomAttribute row.
func (m *Meta) CustomAttribute(row0 uint32) CustomAttributeRow {
	r := m.Row(TableCustomAttribute, row0)
	if r == nil {
		return CustomAttributeRow{}
	}
	return CustomAttributeRow{r[0], r[1], r[2]}
}

// InterfaceImpl returns the typed view of a 0-based InterfaceImpl row.
func (m *Meta) InterfaceImpl(row0 uint32) InterfaceImplRow {
	r := m.Row(TableInterfaceImpl, row0)
	if r == nil {
		return InterfaceImplRow{}
	}
	return InterfaceImplRow{r[0], r[1]}
}

// NestedClass returns the typed view of a 0-based NestedClass row.
func (m *Meta) NestedClass(row0 uint32) NestedClassRow {
	r := m.Row(TableNestedClass, row0)
	if r == nil {
		return NestedClassRow{}
	}
	return NestedClassRow{r[0], r[1]}
}

// MethodSpec returns the typed view of a 0-based MethodSpec row.
func (m *Meta) MethodSpec(row0 uint32) MethodSpecRow {
	r := m.Row(TableMethodSpec, row0)
	if r == nil {
		return MethodSpecRow{}
	}
	return MethodSpecRow{r[0], r[1]}
}

// FieldRVA returns the typed view of a 0-based FieldRVA row.
func (m *Meta) FieldRVA(row0 uint32) FieldRVARow {
	r := m.Row(TableFieldRVA, row0)
	if r == nil {
		return FieldRVARow{}
	}
	return FieldRVARow{r[0], r[1]}
}

// TypeDefName returns "Namespace.Name" of a 0-based TypeDef row,
// omitting the dot when the namespace is empty.
func (m *Meta) TypeDefName(row0 uint32) string {
	row := m.TypeDef(row0)
	return joinTypeName(m.Strings.String(row.Namespace), m.Strings.String(row.Name))
}

// TypeRefName returns "Namespace.Name" of a 0-based TypeRef row.
func (m *Meta) TypeRefName(row0 uint32) string {
	row := m.TypeRef(row0)
	return joinTypeName(m.Strings.String(row.Namespace), m.Strings.String(row.Name))
}

func joinTypeName(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}

// memberRange resolves the 0-based half-open row range that a 1-based
// list column spans: [list-1, nextList-1), where nextList comes from
// the following owner row or the member table length.
func (m *Meta) memberRange(ownerTable int, ownerRow0 uint32, listCol int, memberTable int) (uint32, uint32) {
	row := m.Row(ownerTable, ownerRow0)
	if row == nil || row[listCol] == 0 {
		return 0, 0
	}
	start := row[listCol] - 1
	end := m.NumRows(memberTable)
	if next := m.Row(ownerTable, ownerRow0+1); next != nil && next[listCol] != 0 {
		end = next[listCol] - 1
	}
	if start > end {
		return 0, 0
	}
	if end > m.NumRows(memberTable) {
		end = m.NumRows(memberTable)
	}
	return start, end
}

// MethodRange returns the 0-based [start, end) MethodDef rows owned by
// a TypeDef row.
func (m *Meta) MethodRange(typeRow0 uint32) (uint32, uint32) {
	return m.memberRange(TableTypeDef, typeRow0, 5, TableMethodDef)
}

// FieldRange returns the 0-based [start, end) Field rows owned by a
// TypeDef row.
func (m *Meta) FieldRange(typeRow0 uint32) (uint32, uint32) {
	return m.memberRange(TableTypeDef, typeRow0, 4, TableField)
}

// ParamRange returns the 0-based [start, end) Param rows owned by a
// MethodDef row.
func (m *Meta) ParamRange(methodRow0 uint32) (uint32, uint32) {
	return m.memberRange(TableMethodDef, methodRow0, 5, TableParam)
}

// MethodOwner returns the 0-based TypeDef row owning a 0-based
// MethodDef row, or false when no type's method range covers it.
func (m *Meta) MethodOwner(methodRow0 uint32) (uint32, bool) {
	for t := uint32(0); t < m.NumRows(TableTypeDef); t++ {
		start, end := m.MethodRange(t)
		if methodRow0 >= start && methodRow0 < end {
			return t, true
		}
	}
	return 0, false
}

// FieldOwner returns the 0-based TypeDef row owning a 0-based Field row.
func (m *Meta) FieldOwner(fieldRow0 uint32) (uint32, bool) {
	for t := uint32(0); t < m.NumRows(TableTypeDef); t++ {
		start, end := m.FieldRange(t)
		if fieldRow0 >= start && fieldRow0 < end {
			return t, true
		}
	}
	return 0, false
}
