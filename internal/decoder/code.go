package decoder

import (
	"bytes"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/wasm"
)

func (d *decoderState) decodeCodeSection(r *bytes.Reader, opts Options) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	d.codeBodies = make([][]byte, count)
	for i := uint32(0); i < count; i++ {
		bodySize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapEOF(err)
		}
		body := make([]byte, bodySize)
		if _, err := r.Read(body); err != nil {
			return wrapEOF(err)
		}
		d.codeBodies[i] = body

		if int(i) >= len(d.m.Functions) {
			return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "code section exceeds function count"}
		}
		fn := d.m.Functions[i]
		br := bytes.NewReader(body)

		locals, err := decodeLocalsDeclaration(br)
		if err != nil {
			return err
		}
		fn.LocalTypes = locals

		instrs, err := decodeInstructions(br, fn, len(fn.Type.Params)+len(locals))
		if err != nil {
			return err
		}
		if opts.EnablePeephole {
			instrs = fusePeepholes(instrs)
		}
		fn.Body = instrs
	}
	return nil
}

// decodeLocalsDeclaration decodes the run-length compressed locals list:
// a LEB128 count of (run-length, type) groups.
func decodeLocalsDeclaration(r *bytes.Reader) ([]api.ValueType, error) {
	groups, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapEOF(err)
	}
	var out []api.ValueType
	for i := uint32(0); i < groups; i++ {
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, wrapEOF(err)
		}
		t, err := r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		if !isValueType(t) || t == api.ValueTypeFuncref {
			return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "unsupported local type"}
		}
		for j := uint32(0); j < n; j++ {
			out = append(out, t)
		}
	}
	return out, nil
}

// decodeInstructions decodes a function body's instruction stream into the
// internal tagged form, resolving every block/if/loop's matching End offset
// and every if's Else offset in the same pass via a depth stack, per
// spec §4.1.
func decodeInstructions(r *bytes.Reader, fn *wasm.Function, localCount int) ([]wasm.Instruction, error) {
	var out []wasm.Instruction
	type openBlock struct{ index int }
	var blockStack []openBlock
	_ = localCount

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		switch b {
		case 0x00:
			out = append(out, wasm.Instruction{Op: wasm.OpUnreachable})
		case 0x01:
			out = append(out, wasm.Instruction{Op: wasm.OpNop})
		case 0x02, 0x03, 0x04:
			bt, err := resolveBlockType(r)
			if err != nil {
				return nil, err
			}
			var op wasm.Opcode
			switch b {
			case 0x02:
				op = wasm.OpBlock
			case 0x03:
				op = wasm.OpLoop
			case 0x04:
				op = wasm.OpIf
			}
			idx := len(out)
			out = append(out, wasm.Instruction{Op: op, Block: &wasm.BlockInfo{Type: bt}})
			blockStack = append(blockStack, openBlock{index: idx})
		case 0x05: // else
			if len(blockStack) == 0 {
				return nil, &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "else without matching if"}
			}
			top := blockStack[len(blockStack)-1]
			if out[top.index].Op != wasm.OpIf {
				return nil, &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "else without matching if"}
			}
			out[top.index].Block.HasElse = true
			out[top.index].Block.ElseOffset = uint32(len(out))
			out = append(out, wasm.Instruction{Op: wasm.OpElse, Block: &wasm.BlockInfo{Type: out[top.index].Block.Type}})
		case 0x0b: // end
			if len(blockStack) == 0 {
				// function-level end
				out = append(out, wasm.Instruction{Op: wasm.OpEnd})
				return out, nil
			}
			top := blockStack[len(blockStack)-1]
			blockStack = blockStack[:len(blockStack)-1]
			endIdx := uint32(len(out))
			out[top.index].Block.EndOffset = endIdx
			out = append(out, wasm.Instruction{Op: wasm.OpEnd})
		case 0x0c, 0x0d:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			op := wasm.OpBr
			if b == 0x0d {
				op = wasm.OpBrIf
			}
			out = append(out, wasm.Instruction{Op: op, LocalIndex: idx})
		case 0x0e:
			n, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			targets := make([]uint32, n+1)
			for i := range targets {
				v, _, err := leb128.DecodeUint32(r)
				if err != nil {
					return nil, wrapEOF(err)
				}
				targets[i] = v
			}
			out = append(out, wasm.Instruction{Op: wasm.OpBrTable, BrTargets: targets})
		case 0x0f:
			out = append(out, wasm.Instruction{Op: wasm.OpReturn})
		case 0x10:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			out = append(out, wasm.Instruction{Op: wasm.OpCall, FuncIndex: idx})
		case 0x11:
			typeIdx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			tblIdx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			out = append(out, wasm.Instruction{Op: wasm.OpCallIndirect, TypeIndex: typeIdx, TableIndex: tblIdx})
		case 0x1a:
			out = append(out, wasm.Instruction{Op: wasm.OpDrop})
		case 0x1b, 0x1c:
			out = append(out, wasm.Instruction{Op: wasm.OpSelect})
			if b == 0x1c { // typed select: value type vector follows
				if _, err := decodeValueTypes(r); err != nil {
					return nil, err
				}
			}
		case 0x20, 0x21, 0x22:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			op := map[byte]wasm.Opcode{0x20: wasm.OpLocalGet, 0x21: wasm.OpLocalSet, 0x22: wasm.OpLocalTee}[b]
			out = append(out, wasm.Instruction{Op: op, LocalIndex: idx})
		case 0x23, 0x24:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			op := wasm.OpGlobalGet
			if b == 0x24 {
				op = wasm.OpGlobalSet
			}
			out = append(out, wasm.Instruction{Op: op, GlobalIndex: idx})
		case 0x25, 0x26:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, wrapEOF(err)
			}
			op := wasm.OpTableGet
			if b == 0x26 {
				op = wasm.OpTableSet
			}
			out = append(out, wasm.Instruction{Op: op, TableIndex: idx})
		case 0xfc:
			instr, err := decodeMiscInstruction(r)
			if err != nil {
				return nil, err
			}
			out = append(out, instr)
		default:
			instr, err := decodeNumericOrMemoryInstruction(b, r)
			if err != nil {
				return nil, err
			}
			out = append(out, instr)
		}
	}
}

func resolveBlockType(r *bytes.Reader) (*wasm.FunctionType, error) {
	peek, err := r.ReadByte()
	if err != nil {
		return nil, wrapEOF(err)
	}
	if peek == 0x40 {
		return &wasm.FunctionType{}, nil
	}
	if isValueType(peek) {
		return &wasm.FunctionType{Results: []api.ValueType{peek}}, nil
	}
	if err := r.UnreadByte(); err != nil {
		return nil, err
	}
	idx, _, err := leb128.DecodeInt64(r)
	if err != nil {
		return nil, wrapEOF(err)
	}
	if idx < 0 {
		return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "multi-value block type"}
	}
	// A block type given by type index is always rejected: the module's type
	// section is not threaded through here, and such block types are what
	// toolchains emit for multi-value blocks, which are out of MVP scope
	// (spec §1 Non-goals exclude full post-MVP). Reject explicitly rather
	// than silently truncating results.
	return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "block type by type index"}
}

func decodeMemArg(r *bytes.Reader) (align, offset uint32, err error) {
	align, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return 0, 0, wrapEOF(err)
	}
	offset, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return 0, 0, wrapEOF(err)
	}
	return align, offset, nil
}
