package decoder

import (
	"bytes"

	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/wasm"
)

// memoryLoadStoreOps maps a raw opcode byte to its internal Opcode for all
// load/store instructions, which share the (align, offset) memarg encoding.
var memoryLoadStoreOps = map[byte]wasm.Opcode{
	0x28: wasm.OpI32Load, 0x29: wasm.OpI64Load, 0x2a: wasm.OpF32Load, 0x2b: wasm.OpF64Load,
	0x2c: wasm.OpI32Load8S, 0x2d: wasm.OpI32Load8U, 0x2e: wasm.OpI32Load16S, 0x2f: wasm.OpI32Load16U,
	0x30: wasm.OpI64Load8S, 0x31: wasm.OpI64Load8U, 0x32: wasm.OpI64Load16S, 0x33: wasm.OpI64Load16U,
	0x34: wasm.OpI64Load32S, 0x35: wasm.OpI64Load32U,
	0x36: wasm.OpI32Store, 0x37: wasm.OpI64Store, 0x38: wasm.OpF32Store, 0x39: wasm.OpF64Store,
	0x3a: wasm.OpI32Store8, 0x3b: wasm.OpI32Store16, 0x3c: wasm.OpI64Store8, 0x3d: wasm.OpI64Store16, 0x3e: wasm.OpI64Store32,
}

// simpleNumericOps maps a raw opcode byte to its internal Opcode for every
// zero-operand numeric instruction: comparisons, arithmetic, and
// conversions.
var simpleNumericOps = map[byte]wasm.Opcode{
	0x45: wasm.OpI32Eqz, 0x46: wasm.OpI32Eq, 0x47: wasm.OpI32Ne,
	0x48: wasm.OpI32LtS, 0x49: wasm.OpI32LtU, 0x4a: wasm.OpI32GtS, 0x4b: wasm.OpI32GtU,
	0x4c: wasm.OpI32LeS, 0x4d: wasm.OpI32LeU, 0x4e: wasm.OpI32GeS, 0x4f: wasm.OpI32GeU,
	0x50: wasm.OpI64Eqz, 0x51: wasm.OpI64Eq, 0x52: wasm.OpI64Ne,
	0x53: wasm.OpI64LtS, 0x54: wasm.OpI64LtU, 0x55: wasm.OpI64GtS, 0x56: wasm.OpI64GtU,
	0x57: wasm.OpI64LeS, 0x58: wasm.OpI64LeU, 0x59: wasm.OpI64GeS, 0x5a: wasm.OpI64GeU,
	0x5b: wasm.OpF32Eq, 0x5c: wasm.OpF32Ne, 0x5d: wasm.OpF32Lt, 0x5e: wasm.OpF32Gt, 0x5f: wasm.OpF32Le, 0x60: wasm.OpF32Ge,
	0x61: wasm.OpF64Eq, 0x62: wasm.OpF64Ne, 0x63: wasm.OpF64Lt, 0x64: wasm.OpF64Gt, 0x65: wasm.OpF64Le, 0x66: wasm.OpF64Ge,

	0x67: wasm.OpI32Clz, 0x68: wasm.OpI32Ctz, 0x69: wasm.OpI32Popcnt,
	0x6a: wasm.OpI32Add, 0x6b: wasm.OpI32Sub, 0x6c: wasm.OpI32Mul,
	0x6d: wasm.OpI32DivS, 0x6e: wasm.OpI32DivU, 0x6f: wasm.OpI32RemS, 0x70: wasm.OpI32RemU,
	0x71: wasm.OpI32And, 0x72: wasm.OpI32Or, 0x73: wasm.OpI32Xor,
	0x74: wasm.OpI32Shl, 0x75: wasm.OpI32ShrS, 0x76: wasm.OpI32ShrU, 0x77: wasm.OpI32Rotl, 0x78: wasm.OpI32Rotr,

	0x79: wasm.OpI64Clz, 0x7a: wasm.OpI64Ctz, 0x7b: wasm.OpI64Popcnt,
	0x7c: wasm.OpI64Add, 0x7d: wasm.OpI64Sub, 0x7e: wasm.OpI64Mul,
	0x7f: wasm.OpI64DivS, 0x80: wasm.OpI64DivU, 0x81: wasm.OpI64RemS, 0x82: wasm.OpI64RemU,
	0x83: wasm.OpI64And, 0x84: wasm.OpI64Or, 0x85: wasm.OpI64Xor,
	0x86: wasm.OpI64Shl, 0x87: wasm.OpI64ShrS, 0x88: wasm.OpI64ShrU, 0x89: wasm.OpI64Rotl, 0x8a: wasm.OpI64Rotr,

	0x8b: wasm.OpF32Abs, 0x8c: wasm.OpF32Neg, 0x8d: wasm.OpF32Ceil, 0x8e: wasm.OpF32Floor,
	0x8f: wasm.OpF32Trunc, 0x90: wasm.OpF32Nearest, 0x91: wasm.OpF32Sqrt,
	0x92: wasm.OpF32Add, 0x93: wasm.OpF32Sub, 0x94: wasm.OpF32Mul, 0x95: wasm.OpF32Div,
	0x96: wasm.OpF32Min, 0x97: wasm.OpF32Max, 0x98: wasm.OpF32Copysign,

	0x99: wasm.OpF64Abs, 0x9a: wasm.OpF64Neg, 0x9b: wasm.OpF64Ceil, 0x9c: wasm.OpF64Floor,
	0x9d: wasm.OpF64Trunc, 0x9e: wasm.OpF64Nearest, 0x9f: wasm.OpF64Sqrt,
	0xa0: wasm.OpF64Add, 0xa1: wasm.OpF64Sub, 0xa2: wasm.OpF64Mul, 0xa3: wasm.OpF64Div,
	0xa4: wasm.OpF64Min, 0xa5: wasm.OpF64Max, 0xa6: wasm.OpF64Copysign,

	0xa7: wasm.OpI32WrapI64,
	0xa8: wasm.OpI32TruncF32S, 0xa9: wasm.OpI32TruncF32U, 0xaa: wasm.OpI32TruncF64S, 0xab: wasm.OpI32TruncF64U,
	0xac: wasm.OpI64ExtendI32S, 0xad: wasm.OpI64ExtendI32U,
	0xae: wasm.OpI64TruncF32S, 0xaf: wasm.OpI64TruncF32U, 0xb0: wasm.OpI64TruncF64S, 0xb1: wasm.OpI64TruncF64U,
	0xb2: wasm.OpF32ConvertI32S, 0xb3: wasm.OpF32ConvertI32U, 0xb4: wasm.OpF32ConvertI64S, 0xb5: wasm.OpF32ConvertI64U,
	0xb6: wasm.OpF32DemoteF64,
	0xb7: wasm.OpF64ConvertI32S, 0xb8: wasm.OpF64ConvertI32U, 0xb9: wasm.OpF64ConvertI64S, 0xba: wasm.OpF64ConvertI64U,
	0xbb: wasm.OpF64PromoteF32,
	0xbc: wasm.OpI32ReinterpretF32, 0xbd: wasm.OpI64ReinterpretF64, 0xbe: wasm.OpF32ReinterpretI32, 0xbf: wasm.OpF64ReinterpretI64,

	0xc0: wasm.OpI32Extend8S, 0xc1: wasm.OpI32Extend16S,
	0xc2: wasm.OpI64Extend8S, 0xc3: wasm.OpI64Extend16S, 0xc4: wasm.OpI64Extend32S,
}

func decodeNumericOrMemoryInstruction(b byte, r *bytes.Reader) (wasm.Instruction, error) {
	if op, ok := memoryLoadStoreOps[b]; ok {
		align, offset, err := decodeMemArg(r)
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Op: op, MemArgAlign: align, MemArgOffset: offset}, nil
	}
	switch b {
	case 0x3f, 0x40:
		if _, err := r.ReadByte(); err != nil { // reserved memory-index byte, always 0
			return wasm.Instruction{}, wrapEOF(err)
		}
		op := wasm.OpMemorySize
		if b == 0x40 {
			op = wasm.OpMemoryGrow
		}
		return wasm.Instruction{Op: op}, nil
	case byteOpI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpI32Const, I32: v}, nil
	case byteOpI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpI64Const, I64: v}, nil
	case byteOpF32Const:
		v, err := readF32(r)
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Op: wasm.OpF32Const, F32: v}, nil
	case byteOpF64Const:
		v, err := readF64(r)
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Op: wasm.OpF64Const, F64: v}, nil
	}
	if op, ok := simpleNumericOps[b]; ok {
		return wasm.Instruction{Op: op}, nil
	}
	return wasm.Instruction{}, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "unsupported opcode"}
}

// decodeMiscInstruction decodes the 0xFC-prefixed instruction family:
// saturating truncation (sub-opcodes 0-7) and bulk memory/table operations
// (sub-opcodes 8-17), per spec §4.5.
func decodeMiscInstruction(r *bytes.Reader) (wasm.Instruction, error) {
	sub, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wasm.Instruction{}, wrapEOF(err)
	}
	switch sub {
	case 0:
		return wasm.Instruction{Op: wasm.OpI32TruncSatF32S}, nil
	case 1:
		return wasm.Instruction{Op: wasm.OpI32TruncSatF32U}, nil
	case 2:
		return wasm.Instruction{Op: wasm.OpI32TruncSatF64S}, nil
	case 3:
		return wasm.Instruction{Op: wasm.OpI32TruncSatF64U}, nil
	case 4:
		return wasm.Instruction{Op: wasm.OpI64TruncSatF32S}, nil
	case 5:
		return wasm.Instruction{Op: wasm.OpI64TruncSatF32U}, nil
	case 6:
		return wasm.Instruction{Op: wasm.OpI64TruncSatF64S}, nil
	case 7:
		return wasm.Instruction{Op: wasm.OpI64TruncSatF64U}, nil
	case 8: // memory.init
		dataIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		if _, err := r.ReadByte(); err != nil { // memory index, always 0
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpMemoryInit, FuncIndex: dataIdx}, nil
	case 9: // data.drop
		dataIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpDataDrop, FuncIndex: dataIdx}, nil
	case 10: // memory.copy
		if _, err := r.ReadByte(); err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		if _, err := r.ReadByte(); err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpMemoryCopy}, nil
	case 11: // memory.fill
		if _, err := r.ReadByte(); err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpMemoryFill}, nil
	case 12: // table.init
		elemIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		tblIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpTableInit, FuncIndex: elemIdx, TableIndex: tblIdx}, nil
	case 13: // elem.drop
		elemIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpElemDrop, FuncIndex: elemIdx}, nil
	case 14: // table.copy
		dst, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		src, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpTableCopy, TableIndex: dst, FuncIndex: src}, nil
	case 15: // table.grow
		tblIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpTableGrow, TableIndex: tblIdx}, nil
	case 16: // table.size
		tblIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpTableSize, TableIndex: tblIdx}, nil
	case 17: // table.fill
		tblIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, wrapEOF(err)
		}
		return wasm.Instruction{Op: wasm.OpTableFill, TableIndex: tblIdx}, nil
	default:
		return wasm.Instruction{}, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "unsupported 0xfc sub-opcode (SIMD or other post-MVP feature)"}
	}
}
