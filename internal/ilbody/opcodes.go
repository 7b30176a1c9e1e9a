package ilbody

// OperandKind classifies an opcode's operand shape.
type OperandKind int

const (
	OpInvalid OperandKind = iota // undefined opcode
	OpNone
	OpInline8  // 1-byte operand
	OpInline16 // 2-byte operand
	OpInline32 // 4-byte operand
	OpInline64 // 8-byte operand
	OpToken    // 4-byte metadata token
	OpSwitch   // 4-byte count, then N 4-byte branch targets
)

// prefixByte introduces the two-byte opcode space.
const prefixByte = 0xFE

// OpLdstr is the load-string opcode; its token operand is a #US offset
// tagged 0x70, not a table token.
const OpLdstr = 0x72

var oneByte [256]OperandKind
var twoByte [256]OperandKind

func fill(table *[256]OperandKind, kind OperandKind, ops ...int) {
	for _, op := range ops {
		table[op] = kind
	}
}

func fillRange(table *[256]OperandKind, kind OperandKind, lo, hi int) {
	for op := lo; op <= hi; op++ {
		table[op] = kind
	}
}

func init() {
	// One-byte opcodes (ECMA-335 III).
	fillRange(&oneByte, OpNone, 0x00, 0x0D) // nop..stloc.3
	fill(&oneByte, OpInline8, 0x0E, 0x0F, 0x10, 0x11, 0x12, 0x13) // ldarg.s..stloc.s
	fillRange(&oneByte, OpNone, 0x14, 0x1E) // ldnull, ldc.i4.m1..ldc.i4.8
	fill(&oneByte, OpInline8, 0x1F)         // ldc.i4.s
	fill(&oneByte, OpInline32, 0x20)        // ldc.i4
	fill(&oneByte, OpInline64, 0x21)        // ldc.i8
	fill(&oneByte, OpInline32, 0x22)        // ldc.r4
	fill(&oneByte, OpInline64, 0x23)        // ldc.r8
	fill(&oneByte, OpNone, 0x25, 0x26)      // dup, pop
	fill(&oneByte, OpToken, 0x27, 0x28, 0x29) // jmp, call, calli
	fill(&oneByte, OpNone, 0x2A)            // ret
	fillRange(&oneByte, OpInline8, 0x2B, 0x37) // br.s..blt.un.s
	fillRange(&oneByte, OpInline32, 0x38, 0x44) // br..blt.un
	fill(&oneByte, OpSwitch, 0x45)
	fillRange(&oneByte, OpNone, 0x46, 0x6E) // ldind..conv.u8
	fill(&oneByte, OpToken, 0x6F)           // callvirt
	fill(&oneByte, OpToken, 0x70, 0x71)     // cpobj, ldobj
	fill(&oneByte, OpToken, OpLdstr)        // ldstr
	fill(&oneByte, OpToken, 0x73, 0x74, 0x75) // newobj, castclass, isinst
	fill(&oneByte, OpNone, 0x76)            // conv.r.un
	fill(&oneByte, OpToken, 0x79)           // unbox
	fill(&oneByte, OpNone, 0x7A)            // throw
	fillRange(&oneByte, OpToken, 0x7B, 0x81) // ldfld..stsfld, stobj
	fillRange(&oneByte, OpNone, 0x82, 0x8B) // conv.ovf.*.un
	fill(&oneByte, OpToken, 0x8C)           // box
	fill(&oneByte, OpToken, 0x8D)           // newarr
	fill(&oneByte, OpNone, 0x8E)            // ldlen
	fill(&oneByte, OpToken, 0x8F)           // ldelema
	fillRange(&oneByte, OpNone, 0x90, 0xA2) // ldelem.*, stelem.*
	fill(&oneByte, OpToken, 0xA3, 0xA4, 0xA5) // ldelem, stelem, unbox.any
	fillRange(&oneByte, OpNone, 0xB3, 0xBA) // conv.ovf.*
	fill(&oneByte, OpToken, 0xC2)           // refanyval
	fill(&oneByte, OpNone, 0xC3)            // ckfinite
	fill(&oneByte, OpToken, 0xC6)           // mkrefany
	fill(&oneByte, OpToken, 0xD0)           // ldtoken
	fillRange(&oneByte, OpNone, 0xD1, 0xDC) // conv.*, add.ovf..sub.ovf.un, endfinally
	fill(&oneByte, OpInline32, 0xDD)        // leave
	fill(&oneByte, OpInline8, 0xDE)         // leave.s
	fill(&oneByte, OpNone, 0xDF, 0xE0)      // stind.i, conv.u

	// Two-byte opcodes (0xFE xx).
	fillRange(&twoByte, OpNone, 0x00, 0x05) // arglist, ceq..clt.un
	fill(&twoByte, OpToken, 0x06, 0x07)     // ldftn, ldvirtftn
	fillRange(&twoByte, OpInline16, 0x09, 0x0E) // ldarg..stloc
	fill(&twoByte, OpNone, 0x0F)            // localloc
	fill(&twoByte, OpNone, 0x11)            // endfilter
	fill(&twoByte, OpInline8, 0x12)         // unaligned.
	fill(&twoByte, OpNone, 0x13, 0x14)      // volatile., tail.
	fill(&twoByte, OpToken, 0x15, 0x16)     // initobj, constrained.
	fill(&twoByte, OpNone, 0x17, 0x18)      // cpblk, initblk
	fill(&twoByte, OpInline8, 0x19)         // no.
	fill(&twoByte, OpNone, 0x1A)            // rethrow
	fill(&twoByte, OpToken, 0x1C)           // sizeof
	fill(&twoByte, OpNone, 0x1D, 0x1E)      // refanytype, readonly.
}

// operandSize returns the fixed byte size of an operand kind, or -1
// for shapes without a fixed size.
func operandSize(k OperandKind) int {
	switch k {
	case OpNone:
		return 0
	case OpInline8:
		return 1
	case OpInline16:
		return 2
	case OpInline32, OpToken:
		return 4
	case OpInline64:
		return 8
	}
	return -1
}
