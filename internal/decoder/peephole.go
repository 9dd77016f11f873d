package decoder

import "github.com/reef-runtime/reef/internal/wasm"

// fusePeepholes implements the optional super-instruction fusion described
// in spec §4.1: common bigrams/trigrams collapse into a single dispatch,
// transparently equivalent to the source sequence. Fusion only ever merges
// straight-line sequences and never touches a Block/Loop/If/Else/End/Br*
// instruction. Because fusion shortens the stream, the End/Else offsets
// computed before fusion are remapped to the new indices afterward.
func fusePeepholes(in []wasm.Instruction) []wasm.Instruction {
	out := make([]wasm.Instruction, 0, len(in))
	// newIndex maps an input index to its output index; End and Else are
	// never fused, so their entries are exact.
	newIndex := make([]uint32, len(in))
	i := 0
	for i < len(in) {
		newIndex[i] = uint32(len(out))
		if i+1 < len(in) && isFusionSafe(in[i]) && isFusionSafe(in[i+1]) {
			a, b := in[i], in[i+1]
			switch {
			case a.Op == wasm.OpLocalGet && b.Op == wasm.OpLocalGet:
				out = append(out, wasm.Instruction{Op: wasm.OpFusedLocalGetLocalGet, LocalIndex: a.LocalIndex, Fused2: int32(b.LocalIndex)})
				i += 2
				continue
			case a.Op == wasm.OpLocalTee && b.Op == wasm.OpLocalGet:
				out = append(out, wasm.Instruction{Op: wasm.OpFusedLocalTeeLocalGet, LocalIndex: a.LocalIndex, Fused2: int32(b.LocalIndex)})
				i += 2
				continue
			}
			if i+2 < len(in) {
				c := in[i+2]
				if a.Op == wasm.OpLocalGet && b.Op == wasm.OpI32Const && c.Op == wasm.OpI32Add && isFusionSafe(c) {
					out = append(out, wasm.Instruction{Op: wasm.OpFusedLocalGetConstAddI32, LocalIndex: a.LocalIndex, Fused2: b.I32})
					i += 3
					continue
				}
			}
		}
		out = append(out, in[i])
		i++
	}
	for _, instr := range out {
		if instr.Op == wasm.OpBlock || instr.Op == wasm.OpLoop || instr.Op == wasm.OpIf {
			instr.Block.EndOffset = newIndex[instr.Block.EndOffset]
			if instr.Block.HasElse {
				instr.Block.ElseOffset = newIndex[instr.Block.ElseOffset]
			}
		}
	}
	return out
}

// isFusionSafe reports whether instr may participate in a fused
// super-instruction: it must carry no block metadata and not itself be a
// branch target bookkeeping instruction.
func isFusionSafe(instr wasm.Instruction) bool {
	switch instr.Op {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse, wasm.OpEnd,
		wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable, wasm.OpReturn:
		return false
	default:
		return true
	}
}
