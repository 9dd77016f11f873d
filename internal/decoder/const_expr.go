package decoder

import (
	"bytes"

	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/wasm"
)

const (
	byteOpI32Const  = 0x41
	byteOpI64Const  = 0x42
	byteOpF32Const  = 0x43
	byteOpF64Const  = 0x44
	byteOpGlobalGet = 0x23
	byteOpRefNull   = 0xd0
	byteOpRefFunc   = 0xd2
	byteOpEnd       = 0x0b
)

// decodeConstantExpression decodes the restricted instruction subset
// allowed for global initializers and segment offsets (spec §3), ending at
// the terminating `end` opcode.
func decodeConstantExpression(r *bytes.Reader) (wasm.ConstantExpression, error) {
	op, err := r.ReadByte()
	if err != nil {
		return wasm.ConstantExpression{}, wrapEOF(err)
	}
	var ce wasm.ConstantExpression
	switch op {
	case byteOpI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return ce, wrapEOF(err)
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpI32Const, I32: v}
	case byteOpI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return ce, wrapEOF(err)
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpI64Const, I64: v}
	case byteOpF32Const:
		v, err := readF32(r)
		if err != nil {
			return ce, err
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpF32Const, F32: v}
	case byteOpF64Const:
		v, err := readF64(r)
		if err != nil {
			return ce, err
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpF64Const, F64: v}
	case byteOpGlobalGet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return ce, wrapEOF(err)
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpGlobalGet, GlobalIndex: idx}
	case byteOpRefNull:
		if _, err := r.ReadByte(); err != nil { // reftype byte
			return ce, wrapEOF(err)
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpRefNull}
	case byteOpRefFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return ce, wrapEOF(err)
		}
		ce = wasm.ConstantExpression{Opcode: wasm.OpRefFunc, FuncIndex: idx}
	default:
		return ce, &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "opcode not allowed in constant expression"}
	}
	end, err := r.ReadByte()
	if err != nil {
		return ce, wrapEOF(err)
	}
	if end != byteOpEnd {
		return ce, &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "constant expression must have exactly one instruction"}
	}
	return ce, nil
}
