package ilbody

import (
	"encoding/binary"

	"ciltrim/internal/cilfmt"
)

// TokenRef is one 4-byte token operand found in an IL code stream.
type TokenRef struct {
	CodeOffset int    // offset of the instruction within the code bytes
	Opcode     uint16 // one-byte value, or 0xFE00|second for prefixed
	Value      uint32
}

// IsString reports whether the token is an ldstr #US reference.
func (t TokenRef) IsString() bool { return t.Value>>24 == 0x70 }

// ScanTokens linearly scans IL code and collects every token operand.
//
// Malformed input never loops: every iteration advances the position by
// at least one byte, unknown opcodes are skipped with a diagnostic, and
// a step cap bounds the walk.
func ScanTokens(code []byte, opts cilfmt.Options) ([]TokenRef, []cilfmt.Diag) {
	var refs []TokenRef
	var diags cilfmt.Diags

	maxSteps := opts.EffectiveMaxSteps()
	pos := 0
	for steps := 0; pos < len(code); steps++ {
		if steps >= maxSteps {
			diags.Addf(uint64(pos), cilfmt.DiagMalformedIL, "step cap %d reached", maxSteps)
			break
		}
		prev := pos

		op := uint16(code[pos])
		kind := oneByte[op]
		opSize := 1
		if op == prefixByte {
			if pos+1 >= len(code) {
				diags.Add(uint64(pos), cilfmt.DiagMalformedIL, "truncated two-byte opcode")
				break
			}
			op = 0xFE00 | uint16(code[pos+1])
			kind = twoByte[op&0xFF]
			opSize = 2
		}

		if kind == OpInvalid {
			diags.Addf(uint64(pos), cilfmt.DiagMalformedIL, "unknown opcode %#x", op)
			pos++
			continue
		}

		if kind == OpSwitch {
			if pos+opSize+4 > len(code) {
				diags.Add(uint64(pos), cilfmt.DiagMalformedIL, "truncated switch")
				break
			}
			n := binary.LittleEndian.Uint32(code[pos+opSize:])
			next := pos + opSize + 4 + int(n)*4
			if next > len(code) || next < pos {
				diags.Addf(uint64(pos), cilfmt.DiagMalformedIL, "switch with %d targets overruns code", n)
				break
			}
			pos = next
		} else {
			size := operandSize(kind)
			if pos+opSize+size > len(code) {
				diags.Addf(uint64(pos), cilfmt.DiagMalformedIL, "truncated operand for opcode %#x", op)
				break
			}
			if kind == OpToken {
				refs = append(refs, TokenRef{
					CodeOffset: pos,
					Opcode:     op,
					Value:      binary.LittleEndian.Uint32(code[pos+opSize:]),
				})
			}
			pos += opSize + size
		}

		// Forward-progress safety net.
		if pos <= prev {
			pos = prev + 1
		}
	}
	return refs, diags.Items()
}
