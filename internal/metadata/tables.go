// Package metadata parses the CLI metadata tables stream and heaps and
// computes the byte geometry the trim engine edits through.
package metadata

// Metadata table identifiers (ECMA-335 II.22).
const (
	TableModule                 = 0x00
	TableTypeRef                = 0x01
	TableTypeDef                = 0x02
	TableFieldPtr               = 0x03
	TableField                  = 0x04
	TableMethodPtr              = 0x05
	TableMethodDef              = 0x06
	TableParamPtr               = 0x07
	TableParam                  = 0x08
	TableInterfaceImpl          = 0x09
	TableMemberRef              = 0x0A
	TableConstant               = 0x0B
	TableCustomAttribute        = 0x0C
	TableFieldMarshal           = 0x0D
	TableDeclSecurity           = 0x0E
	TableClassLayout            = 0x0F
	TableFieldLayout            = 0x10
	TableStandAloneSig          = 0x11
	TableEventMap               = 0x12
	TableEventPtr               = 0x13
	TableEvent                  = 0x14
	TablePropertyMap            = 0x15
	TablePropertyPtr            = 0x16
	TableProperty               = 0x17
	TableMethodSemantics        = 0x18
	TableMethodImpl             = 0x19
	TableModuleRef              = 0x1A
	TableTypeSpec               = 0x1B
	TableImplMap                = 0x1C
	TableFieldRVA               = 0x1D
	TableENCLog                 = 0x1E
	TableENCMap                 = 0x1F
	TableAssembly               = 0x20
	TableAssemblyProcessor      = 0x21
	TableAssemblyOS             = 0x22
	TableAssemblyRef            = 0x23
	TableAssemblyRefProcessor   = 0x24
	TableAssemblyRefOS          = 0x25
	TableFile                   = 0x26
	TableExportedType           = 0x27
	TableManifestResource       = 0x28
	TableNestedClass            = 0x29
	TableGenericParam           = 0x2A
	TableMethodSpec             = 0x2B
	TableGenericParamConstraint = 0x2C

	// NumTables is the number of table slots in the Valid bitvector.
	NumTables = 64
)

var tableNames = map[int]string{
	TableModule:                 "Module",
	TableTypeRef:                "TypeRef",
	TableTypeDef:                "TypeDef",
	TableFieldPtr:               "FieldPtr",
	TableField:                  "Field",
	TableMethodPtr:              "MethodPtr",
	TableMethodDef:              "MethodDef",
	TableParamPtr:               "ParamPtr",
	TableParam:                  "Param",
	TableInterfaceImpl:          "InterfaceImpl",
	TableMemberRef:              "MemberRef",
	TableConstant:               "Constant",
	TableCustomAttribute:        "CustomAttribute",
	TableFieldMarshal:           "FieldMarshal",
	TableDeclSecurity:           "DeclSecurity",
	TableClassLayout:            "ClassLayout",
	TableFieldLayout:            "FieldLayout",
	TableStandAloneSig:          "StandAloneSig",
	TableEventMap:               "EventMap",
	TableEventPtr:               "EventPtr",
	TableEvent:                  "Event",
	TablePropertyMap:            "PropertyMap",
	TablePropertyPtr:            "PropertyPtr",
	TableProperty:               "Property",
	TableMethodSemantics:        "MethodSemantics",
	TableMethodImpl:             "MethodImpl",
	TableModuleRef:              "ModuleRef",
	TableTypeSpec:               "TypeSpec",
	TableImplMap:                "ImplMap",
	TableFieldRVA:               "FieldRVA",
	TableENCLog:                 "ENCLog",
	TableENCMap:                 "ENCMap",
	TableAssembly:               "Assembly",
	TableAssemblyProcessor:      "AssemblyProcessor",
	TableAssemblyOS:             "AssemblyOS",
	TableAssemblyRef:            "AssemblyRef",
	TableAssemblyRefProcessor:   "AssemblyRefProcessor",
	TableAssemblyRefOS:          "AssemblyRefOS",
	TableFile:                   "File",
	TableExportedType:           "ExportedType",
	TableManifestResource:       "ManifestResource",
	TableNestedClass:            "NestedClass",
	TableGenericParam:           "GenericParam",
	TableMethodSpec:             "MethodSpec",
	TableGenericParamConstraint: "GenericParamConstraint",
}

// TableName returns the ECMA name of a table ID, or "Table(n)".
func TableName(id int) string {
	if n, ok := tableNames[id]; ok {
		return n
	}
	return "Table(" + itoa(id) + ")"
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ColKind describes the wire encoding of one table column.
type ColKind int

const (
	ColUint16 ColKind = iota // fixed 2 bytes
	ColUint32                // fixed 4 bytes
	ColString                // #Strings index, 2 or 4 bytes
	ColGUID                  // #GUID index, 2 or 4 bytes
	ColBlob                  // #Blob index, 2 or 4 bytes
	ColTable                 // simple table index, Arg = table ID
	ColCoded                 // coded index, Arg = CodedKind
)

// Column is one field of a table schema.
type Column struct {
	Name string
	Kind ColKind
	Arg  int
}

// schemas holds the fixed ECMA-335 II.22 column layout of every table.
// Constant's Type byte and padding byte are folded into one 2-byte column.
var schemas = [NumTables][]Column{
	TableModule: {
		{"Generation", ColUint16, 0},
		{"Name", ColString, 0},
		{"Mvid", ColGUID, 0},
		{"EncId", ColGUID, 0},
		{"EncBaseId", ColGUID, 0},
	},
	TableTypeRef: {
		{"ResolutionScope", ColCoded, CodedResolutionScope},
		{"Name", ColString, 0},
		{"Namespace", ColString, 0},
	},
	TableTypeDef: {
		{"Flags", ColUint32, 0},
		{"Name", ColString, 0},
		{"Namespace", ColString, 0},
		{"Extends", ColCoded, CodedTypeDefOrRef},
		{"FieldList", ColTable, TableField},
		{"MethodList", ColTable, TableMethodDef},
	},
	TableFieldPtr: {
		{"Field", ColTable, TableField},
	},
	TableField: {
		{"Flags", ColUint16, 0},
		{"Name", ColString, 0},
		{"Signature", ColBlob, 0},
	},
	TableMethodPtr: {
		{"Method", ColTable, TableMethodDef},
	},
	TableMethodDef: {
		{"RVA", ColUint32, 0},
		{"ImplFlags", ColUint16, 0},
		{"Flags", ColUint16, 0},
		{"Name", ColString, 0},
		{"Signature", ColBlob, 0},
		{"ParamList", ColTable, TableParam},
	},
	TableParamPtr: {
		{"Param", ColTable, TableParam},
	},
	TableParam: {
		{"Flags", ColUint16, 0},
		{"Sequence", ColUint16, 0},
		{"Name", ColString, 0},
	},
	TableInterfaceImpl: {
		{"Class", ColTable, TableTypeDef},
		{"Interface", ColCoded, CodedTypeDefOrRef},
	},
	TableMemberRef: {
		{"Class", ColCoded, CodedMemberRefParent},
		{"Name", ColString, 0},
		{"Signature", ColBlob, 0},
	},
	TableConstant: {
		{"Type", ColUint16, 0}, // value type byte + padding byte
		{"Parent", ColCoded, CodedHasConstant},
		{"Value", ColBlob, 0}, // raw heap pointer, never a coded index
	},
	TableCustomAttribute: {
		{"Parent", ColCoded, CodedHasCustomAttribute},
		{"Type", ColCoded, CodedCustomAttributeType},
		{"Value", ColBlob, 0},
	},
	TableFieldMarshal: {
		{"Parent", ColCoded, CodedHasFieldMarshal},
		{"NativeType", ColBlob, 0},
	},
	TableDeclSecurity: {
		{"Action", ColUint16, 0},
		{"Parent", ColCoded, CodedHasDeclSecurity},
		{"PermissionSet", ColBlob, 0},
	},
	TableClassLayout: {
		{"PackingSize", ColUint16, 0},
		{"ClassSize", ColUint32, 0},
		{"Parent", ColTable, TableTypeDef},
	},
	TableFieldLayout: {
		{"Offset", ColUint32, 0},
		{"Field", ColTable, TableField},
	},
	TableStandAloneSig: {
		{"Signature", ColBlob, 0},
	},
	TableEventMap: {
		{"Parent", ColTable, TableTypeDef},
		{"EventList", ColTable, TableEvent},
	},
	TableEventPtr: {
		{"Event", ColTable, TableEvent},
	},
	TableEvent: {
		{"EventFlags", ColUint16, 0},
		{"Name", ColString, 0},
		{"EventType", ColCoded, CodedTypeDefOrRef},
	},
	TablePropertyMap: {
		{"Parent", ColTable, TableTypeDef},
		{"PropertyList", ColTable, TableProperty},
	},
	TablePropertyPtr: {
		{"Property", ColTable, TableProperty},
	},
	TableProperty: {
		{"Flags", ColUint16, 0},
		{"Name", ColString, 0},
		{"Type", ColBlob, 0},
	},
	TableMethodSemantics: {
		{"Semantics", ColUint16, 0},
		{"Method", ColTable, TableMethodDef},
		{"Association", ColCoded, CodedHasSemantics},
	},
	TableMethodImpl: {
		{"Class", ColTable, TableTypeDef},
		{"MethodBody", ColCoded, CodedMethodDefOrRef},
		{"MethodDeclaration", ColCoded, CodedMethodDefOrRef},
	},
	TableModuleRef: {
		{"Name", ColString, 0},
	},
	TableTypeSpec: {
		{"Signature", ColBlob, 0},
	},
	TableImplMap: {
		{"MappingFlags", ColUint16, 0},
		{"MemberForwarded", ColCoded, CodedMemberForwarded},
		{"ImportName", ColString, 0},
		{"ImportScope", ColTable, TableModuleRef},
	},
	TableFieldRVA: {
		{"RVA", ColUint32, 0},
		{"Field", ColTable, TableField},
	},
	TableENCLog: {
		{"Token", ColUint32, 0},
		{"FuncCode", ColUint32, 0},
	},
	TableENCMap: {
		{"Token", ColUint32, 0},
	},
	TableAssembly: {
		{"HashAlgId", ColUint32, 0},
		{"MajorVersion", ColUint16, 0},
		{"MinorVersion", ColUint16, 0},
		{"BuildNumber", ColUint16, 0},
		{"RevisionNumber", ColUint16, 0},
		{"Flags", ColUint32, 0},
		{"PublicKey", ColBlob, 0},
		{"Name", ColString, 0},
		{"Culture", ColString, 0},
	},
	TableAssemblyProcessor: {
		{"Processor", ColUint32, 0},
	},
	TableAssemblyOS: {
		{"OSPlatformId", ColUint32, 0},
		{"OSMajorVersion", ColUint32, 0},
		{"OSMinorVersion", ColUint32, 0},
	},
	TableAssemblyRef: {
		{"MajorVersion", ColUint16, 0},
		{"MinorVersion", ColUint16, 0},
		{"BuildNumber", ColUint16, 0},
		{"RevisionNumber", ColUint16, 0},
		{"Flags", ColUint32, 0},
		{"PublicKeyOrToken", ColBlob, 0},
		{"Name", ColString, 0},
		{"Culture", ColString, 0},
		{"HashValue", ColBlob, 0},
	},
	TableAssemblyRefProcessor: {
		{"Processor", ColUint32, 0},
		{"AssemblyRef", ColTable, TableAssemblyRef},
	},
	TableAssemblyRefOS: {
		{"OSPlatformId", ColUint32, 0},
		{"OSMajorVersion", ColUint32, 0},
		{"OSMinorVersion", ColUint32, 0},
		{"AssemblyRef", ColTable, TableAssemblyRef},
	},
	TableFile: {
		{"Flags", ColUint32, 0},
		{"Name", ColString, 0},
		{"HashValue", ColBlob, 0},
	},
	TableExportedType: {
		{"Flags", ColUint32, 0},
		{"TypeDefId", ColUint32, 0},
		{"TypeName", ColString, 0},
		{"TypeNamespace", ColString, 0},
		{"Implementation", ColCoded, CodedImplementation},
	},
	TableManifestResource: {
		{"Offset", ColUint32, 0},
		{"Flags", ColUint32, 0},
		{"Name", ColString, 0},
		{"Implementation", ColCoded, CodedImplementation},
	},
	TableNestedClass: {
		{"NestedClass", ColTable, TableTypeDef},
		{"EnclosingClass", ColTable, TableTypeDef},
	},
	TableGenericParam: {
		{"Number", ColUint16, 0},
		{"Flags", ColUint16, 0},
		{"Owner", ColCoded, CodedTypeOrMethodDef},
		{"Name", ColString, 0},
	},
	TableMethodSpec: {
		{"Method", ColCoded, CodedMethodDefOrRef},
		{"Instantiation", ColBlob, 0},
	},
	TableGenericParamConstraint: {
		{"Owner", ColTable, TableGenericParam},
		{"Constraint", ColCoded, CodedTypeDefOrRef},
	},
}

// Schema returns the column layout of a table, or nil for unknown IDs.
func Schema(id int) []Column {
	if id < 0 || id >= NumTables {
		return nil
	}
	return schemas[id]
}
