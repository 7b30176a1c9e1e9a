// Package sig parses #Blob signatures into lazy recursive type trees.
package sig

import (
	"errors"
	"fmt"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/metadata"
)

// ELEMENT_TYPE constants (ECMA-335 II.23.1.16).
const (
	ElemEnd         = 0x00
	ElemVoid        = 0x01
	ElemBoolean     = 0x02
	ElemChar        = 0x03
	ElemI1          = 0x04
	ElemU1          = 0x05
	ElemI2          = 0x06
	ElemU2          = 0x07
	ElemI4          = 0x08
	ElemU4          = 0x09
	ElemI8          = 0x0A
	ElemU8          = 0x0B
	ElemR4          = 0x0C
	ElemR8          = 0x0D
	ElemString      = 0x0E
	ElemPtr         = 0x0F
	ElemByRef       = 0x10
	ElemValueType   = 0x11
	ElemClass       = 0x12
	ElemVar         = 0x13
	ElemArray       = 0x14
	ElemGenericInst = 0x15
	ElemTypedByRef  = 0x16
	ElemI           = 0x18
	ElemU           = 0x19
	ElemFnPtr       = 0x1B
	ElemObject      = 0x1C
	ElemSZArray     = 0x1D
	ElemMVar        = 0x1E
	ElemCModReqd    = 0x1F
	ElemCModOpt     = 0x20
	ElemInternal    = 0x21
	ElemModifier    = 0x40
	ElemSentinel    = 0x41
	ElemPinned      = 0x45
)

// Calling convention bits (ECMA-335 II.23.2.1/.3).
const (
	CallConvMask        = 0x0F
	CallConvDefault     = 0x00
	CallConvVarArg      = 0x05
	CallConvField       = 0x06
	CallConvLocal       = 0x07
	CallConvProperty    = 0x08
	CallConvGenericInst = 0x0A

	CallConvGeneric      = 0x10
	CallConvHasThis      = 0x20
	CallConvExplicitThis = 0x40
)

var (
	ErrBadSignature = errors.New("sig: malformed signature")
	ErrTooDeep      = errors.New("sig: signature nesting too deep")
)

// maxDepth bounds recursion on malformed blobs.
const maxDepth = 64

// Type is one node of a signature type tree.
//
// Token is set for VALUETYPE and CLASS; Mods collects custom modifier
// tokens; Num for VAR/MVAR; Rank/Sizes/LoBounds for ARRAY. Inner carries the element
// type of PTR, BYREF, SZARRAY, PINNED, ARRAY, and the generic
// definition of GENERICINST; Args carries GENERICINST arguments.
type Type struct {
	Elem     byte
	Token    metadata.Token
	Num      uint32
	Rank     uint32
	Sizes    []uint32
	LoBounds []uint32
	Mods     []metadata.Token
	Inner    *Type
	Args     []*Type
}

// Walk visits t and every nested type node in order.
func (t *Type) Walk(fn func(*Type)) {
	if t == nil {
		return
	}
	fn(t)
	t.Inner.Walk(fn)
	for _, a := range t.Args {
		a.Walk(fn)
	}
}

// MethodSig is a parsed method or property signature.
type MethodSig struct {
	CallConv     byte
	GenericCount uint32
	Return       *Type
	Params       []*Type
	// Sentinel is the vararg boundary index into Params, or -1.
	Sentinel int
}

// Walk visits the return type and every parameter type.
func (s *MethodSig) Walk(fn func(*Type)) {
	s.Return.Walk(fn)
	for _, p := range s.Params {
		p.Walk(fn)
	}
}

// DecodeTypeDefOrRef unpacks the compressed TypeDefOrRef coded index
// used inside signatures (ECMA-335 II.23.2.8).
func DecodeTypeDefOrRef(v uint32) (metadata.Token, bool) {
	row := v >> 2
	switch v & 3 {
	case 0:
		return metadata.NewToken(metadata.TableTypeDef, row), true
	case 1:
		return metadata.NewToken(metadata.TableTypeRef, row), true
	case 2:
		return metadata.NewToken(metadata.TableTypeSpec, row), true
	}
	return 0, false
}

// ParseFieldSig parses a field signature blob (FIELD byte then type).
// The input is the blob data, without the heap length prefix.
func ParseFieldSig(blob []byte) (*Type, error) {
	s := cilfmt.NewStream(blob)
	cc, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty field signature", ErrBadSignature)
	}
	if cc&CallConvMask != CallConvField {
		return nil, fmt.Errorf("%w: calling convention %#x is not FIELD", ErrBadSignature, cc)
	}
	return parseType(s, 0)
}

// ParseMethodSig parses a MethodDef/MemberRef method signature blob.
func ParseMethodSig(blob []byte) (*MethodSig, error) {
	s := cilfmt.NewStream(blob)
	cc, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty method signature", ErrBadSignature)
	}
	sig := &MethodSig{CallConv: cc, Sentinel: -1}
	if cc&CallConvGeneric != 0 {
		if sig.GenericCount, err = s.ReadCompressed(); err != nil {
			return nil, fmt.Errorf("%w: generic count: %v", ErrBadSignature, err)
		}
	}
	count, err := s.ReadCompressed()
	if err != nil {
		return nil, fmt.Errorf("%w: param count: %v", ErrBadSignature, err)
	}
	if sig.Return, err = parseType(s, 0); err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		b, err := s.PeekByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated params", ErrBadSignature)
		}
		if b == ElemSentinel {
			s.ReadByte()
			sig.Sentinel = len(sig.Params)
		}
		p, err := parseType(s, 0)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

// ParseLocalVarSig parses a StandAloneSig local variable signature.
func ParseLocalVarSig(blob []byte) ([]*Type, error) {
	s := cilfmt.NewStream(blob)
	cc, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty locals signature", ErrBadSignature)
	}
	if cc&CallConvMask != CallConvLocal {
		return nil, fmt.Errorf("%w: calling convention %#x is not LOCAL_SIG", ErrBadSignature, cc)
	}
	count, err := s.ReadCompressed()
	if err != nil {
		return nil, fmt.Errorf("%w: locals count: %v", ErrBadSignature, err)
	}
	locals := make([]*Type, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := parseType(s, 0)
		if err != nil {
			return nil, err
		}
		locals = append(locals, t)
	}
	return locals, nil
}

// ParsePropertySig parses a Property type signature.
func ParsePropertySig(blob []byte) (*MethodSig, error) {
	s := cilfmt.NewStream(blob)
	cc, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty property signature", ErrBadSignature)
	}
	if cc&CallConvMask != CallConvProperty {
		return nil, fmt.Errorf("%w: calling convention %#x is not PROPERTY", ErrBadSignature, cc)
	}
	sig := &MethodSig{CallConv: cc, Sentinel: -1}
	count, err := s.ReadCompressed()
	if err != nil {
		return nil, fmt.Errorf("%w: param count: %v", ErrBadSignature, err)
	}
	if sig.Return, err = parseType(s, 0); err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		p, err := parseType(s, 0)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

func parseType(s *cilfmt.Stream, depth int) (*Type, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	t := &Type{}

	// Leading custom modifiers.
	for {
		b, err := s.PeekByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated type", ErrBadSignature)
		}
		if b != ElemCModReqd && b != ElemCModOpt {
			break
		}
		s.ReadByte()
		v, err := s.ReadCompressed()
		if err != nil {
			return nil, fmt.Errorf("%w: custom modifier: %v", ErrBadSignature, err)
		}
		if tok, ok := DecodeTypeDefOrRef(v); ok {
			t.Mods = append(t.Mods, tok)
		}
	}

	elem, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated type", ErrBadSignature)
	}
	t.Elem = elem

	switch elem {
	case ElemVoid, ElemBoolean, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2,
		ElemI4, ElemU4, ElemI8, ElemU8, ElemR4, ElemR8, ElemString,
		ElemObject, ElemI, ElemU, ElemTypedByRef, ElemSentinel:
		// no payload

	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned:
		if t.Inner, err = parseType(s, depth+1); err != nil {
			return nil, err
		}

	case ElemValueType, ElemClass:
		v, err := s.ReadCompressed()
		if err != nil {
			return nil, fmt.Errorf("%w: type token: %v", ErrBadSignature, err)
		}
		tok, ok := DecodeTypeDefOrRef(v)
		if !ok {
			return nil, fmt.Errorf("%w: bad TypeDefOrRef tag in %#x", ErrBadSignature, v)
		}
		t.Token = tok

	case ElemVar, ElemMVar:
		if t.Num, err = s.ReadCompressed(); err != nil {
			return nil, fmt.Errorf("%w: generic parameter number: %v", ErrBadSignature, err)
		}

	case ElemArray:
		if t.Inner, err = parseType(s, depth+1); err != nil {
			return nil, err
		}
		if t.Rank, err = s.ReadCompressed(); err != nil {
			return nil, fmt.Errorf("%w: array rank: %v", ErrBadSignature, err)
		}
		numSizes, err := s.ReadCompressed()
		if err != nil {
			return nil, fmt.Errorf("%w: array sizes: %v", ErrBadSignature, err)
		}
		for i := uint32(0); i < numSizes; i++ {
			v, err := s.ReadCompressed()
			if err != nil {
				return nil, fmt.Errorf("%w: array size %d: %v", ErrBadSignature, i, err)
			}
			t.Sizes = append(t.Sizes, v)
		}
		numLo, err := s.ReadCompressed()
		if err != nil {
			return nil, fmt.Errorf("%w: array bounds: %v", ErrBadSignature, err)
		}
		for i := uint32(0); i < numLo; i++ {
			v, err := s.ReadCompressed()
			if err != nil {
				return nil, fmt.Errorf("%w: array bound %d: %v", ErrBadSignature, i, err)
			}
			t.LoBounds = append(t.LoBounds, v)
		}

	case ElemGenericInst:
		if t.Inner, err = parseType(s, depth+1); err != nil {
			return nil, err
		}
		argc, err := s.ReadCompressed()
		if err != nil {
			return nil, fmt.Errorf("%w: generic argument count: %v", ErrBadSignature, err)
		}
		for i := uint32(0); i < argc; i++ {
			a, err := parseType(s, depth+1)
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, a)
		}

	case ElemFnPtr:
		// Presence is recorded; the nested method signature is skipped
		// by consuming it as an untracked sub-signature.
		if err := skipFnPtr(s, depth+1); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unknown element type %#x", ErrBadSignature, elem)
	}
	return t, nil
}

// skipFnPtr consumes a nested FNPTR method signature without building
// a tree for it.
func skipFnPtr(s *cilfmt.Stream, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	cc, err := s.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: truncated fnptr", ErrBadSignature)
	}
	if cc&CallConvGeneric != 0 {
		if _, err := s.ReadCompressed(); err != nil {
			return fmt.Errorf("%w: fnptr generic count: %v", ErrBadSignature, err)
		}
	}
	count, err := s.ReadCompressed()
	if err != nil {
		return fmt.Errorf("%w: fnptr param count: %v", ErrBadSignature, err)
	}
	if _, err := parseType(s, depth); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		b, err := s.PeekByte()
		if err != nil {
			return fmt.Errorf("%w: truncated fnptr params", ErrBadSignature)
		}
		if b == ElemSentinel {
			s.ReadByte()
		}
		if _, err := parseType(s, depth); err != nil {
			return err
		}
	}
	return nil
}
