package interpreter

import (
	"errors"
	"fmt"

	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/store"
	"github.com/reef-runtime/reef/internal/wasm"
)

// internalPanic tags a panic raised through fail (an unimplemented opcode,
// an out-of-range branch target, a failed frame construction) so Run's
// recover can turn it into an Errored result, following the teacher's
// callStackCeiling panic/recover convention. Any other panic, including a
// Go runtime error from a value-stack underflow or an out-of-range index,
// is not recovered and propagates out of Run.
type internalPanic struct{ err error }

func fail(format string, args ...any) {
	panic(internalPanic{err: fmt.Errorf(format, args...)})
}

// Run dispatches at most maxCycles instructions, per spec §4.6. A host
// import call and an instruction dispatch each count as one cycle.
func (h *ExecHandle) Run(maxCycles uint64) (result RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			ip, ok := r.(internalPanic)
			if !ok {
				panic(r)
			}
			result, err = Errored, ip.err
		}
	}()

	for cycles := uint64(0); cycles < maxCycles; cycles++ {
		if len(h.CallStack) == 0 {
			return Done, nil
		}
		frame := h.currentFrame()
		if int(frame.IP) >= len(frame.Body) {
			if done := h.doReturn(); done {
				return Done, nil
			}
			continue
		}
		instr := frame.Body[frame.IP]
		paused, err := h.step(instr, frame)
		if err != nil {
			var trap *wasm.TrapError
			if errors.As(err, &trap) {
				return Errored, trap
			}
			return Errored, err
		}
		if paused {
			return Incomplete, nil
		}
	}
	return Incomplete, nil
}

// step executes one instruction, advancing frame.IP (or replacing the
// current frame wholesale for calls/returns/branches). It returns
// paused=true when a host call requested PauseExecution.
func (h *ExecHandle) step(instr wasm.Instruction, frame *callFrame) (paused bool, err error) {
	switch instr.Op {
	case wasm.OpUnreachable:
		return false, &wasm.TrapError{Kind: wasm.TrapUnreachable}
	case wasm.OpNop:
		frame.IP++
	case wasm.OpBlock, wasm.OpLoop:
		h.enterBlock(instr, frame, blockKindOf(instr.Op))
		frame.IP++
	case wasm.OpIf:
		cond := h.popValue()
		bodyStart := frame.IP + 1
		if cond != 0 {
			h.enterBlock(instr, frame, wasm.BlockKindIf)
			frame.IP = bodyStart
		} else if instr.Block.HasElse {
			h.enterBlock(instr, frame, wasm.BlockKindElse)
			frame.IP = instr.Block.ElseOffset + 1
		} else {
			frame.IP = instr.Block.EndOffset + 1
		}
	case wasm.OpElse:
		// Reached by falling off the end of the taken "then" branch: skip to
		// past End, exiting the if/else block like a forward Br 0 would.
		bf := h.BlockStack[len(h.BlockStack)-1]
		h.exitBlock(bf)
		frame.IP = bf.EndOffset + 1
	case wasm.OpEnd:
		if len(h.BlockStack) == frame.BlockStackBase {
			// The function body's own End: return to the caller.
			h.doReturn()
			break
		}
		bf := h.BlockStack[len(h.BlockStack)-1]
		h.exitBlock(bf)
		frame.IP++
	case wasm.OpBr:
		h.branch(frame, instr.LocalIndex)
	case wasm.OpBrIf:
		cond := h.popValue()
		if cond != 0 {
			h.branch(frame, instr.LocalIndex)
		} else {
			frame.IP++
		}
	case wasm.OpBrTable:
		i := uint32(h.popValue())
		targets := instr.BrTargets
		if int(i) < len(targets)-1 {
			h.branch(frame, targets[i])
		} else {
			h.branch(frame, targets[len(targets)-1])
		}
	case wasm.OpReturn:
		h.doReturn()
	case wasm.OpCall:
		return h.call(instr.FuncIndex)
	case wasm.OpCallIndirect:
		return h.callIndirect(instr)
	case wasm.OpDrop:
		h.popValue()
		frame.IP++
	case wasm.OpSelect:
		cond := h.popValue()
		b := h.popValue()
		a := h.popValue()
		if cond != 0 {
			h.pushValue(a)
		} else {
			h.pushValue(b)
		}
		frame.IP++
	case wasm.OpLocalGet:
		h.pushValue(frame.Locals[instr.LocalIndex])
		frame.IP++
	case wasm.OpLocalSet:
		frame.Locals[instr.LocalIndex] = h.popValue()
		frame.IP++
	case wasm.OpLocalTee:
		frame.Locals[instr.LocalIndex] = h.ValueStack[len(h.ValueStack)-1]
		frame.IP++
	case wasm.OpGlobalGet:
		h.pushValue(h.Inst.Store.Globals[instr.GlobalIndex].Value)
		frame.IP++
	case wasm.OpGlobalSet:
		g := h.Inst.Store.Globals[instr.GlobalIndex]
		g.Value = h.popValue()
		frame.IP++
	case wasm.OpFusedLocalGetLocalGet:
		h.pushValue(frame.Locals[instr.LocalIndex])
		h.pushValue(frame.Locals[instr.Fused2])
		frame.IP++
	case wasm.OpFusedLocalTeeLocalGet:
		v := h.ValueStack[len(h.ValueStack)-1]
		frame.Locals[instr.LocalIndex] = v
		h.pushValue(frame.Locals[instr.Fused2])
		frame.IP++
	case wasm.OpFusedLocalGetConstAddI32:
		h.pushValue(uint64(uint32(int32(frame.Locals[instr.LocalIndex]) + instr.Fused2)))
		frame.IP++
	default:
		if err := h.execNumeric(instr); err != nil {
			return false, err
		}
		frame.IP++
	}
	return false, nil
}

func blockKindOf(op wasm.Opcode) wasm.BlockKind {
	if op == wasm.OpLoop {
		return wasm.BlockKindLoop
	}
	return wasm.BlockKindBlock
}

func (h *ExecHandle) enterBlock(instr wasm.Instruction, frame *callFrame, kind wasm.BlockKind) {
	bt := instr.Block.Type
	h.BlockStack = append(h.BlockStack, blockFrame{
		Kind:           kind,
		BodyStart:      uint32(frame.IP) + 1,
		EndOffset:      instr.Block.EndOffset,
		ValueStackBase: len(h.ValueStack) - len(bt.Params),
		ParamCount:     len(bt.Params),
		ResultCount:    len(bt.Results),
	})
}

// exitBlock pops bf (already the top of BlockStack) and truncates the
// value stack to entry depth + results, per spec §3's block-exit invariant.
func (h *ExecHandle) exitBlock(bf blockFrame) {
	h.BlockStack = h.BlockStack[:len(h.BlockStack)-1]
	h.truncateKeeping(bf.ValueStackBase, bf.ResultCount)
}

// truncateKeeping moves the top keep values down to start depth, discarding
// everything between.
func (h *ExecHandle) truncateKeeping(base, keep int) {
	top := h.ValueStack[len(h.ValueStack)-keep:]
	moved := make([]uint64, keep)
	copy(moved, top)
	h.ValueStack = append(h.ValueStack[:base], moved...)
}

// branch implements Br k (spec §4.4): k counts enclosing block frames of
// the current call frame, innermost first.
func (h *ExecHandle) branch(frame *callFrame, k uint32) {
	absIdx := len(h.BlockStack) - 1 - int(k)
	if absIdx < frame.BlockStackBase {
		fail("interpreter: branch target out of range")
	}
	bf := h.BlockStack[absIdx]
	if bf.Kind == wasm.BlockKindLoop {
		h.truncateKeeping(bf.ValueStackBase, bf.ParamCount)
		h.BlockStack = h.BlockStack[:absIdx+1]
		frame.IP = bf.BodyStart
		return
	}
	h.truncateKeeping(bf.ValueStackBase, bf.ResultCount)
	h.BlockStack = h.BlockStack[:absIdx]
	frame.IP = bf.EndOffset + 1
}

// doReturn pops the current call frame. It reports whether the call stack
// is now empty (the whole execution is Done).
func (h *ExecHandle) doReturn() bool {
	frame := h.currentFrame()
	results := h.popValues(frame.ResultCount)
	h.BlockStack = h.BlockStack[:frame.BlockStackBase]
	h.CallStack = h.CallStack[:len(h.CallStack)-1]
	h.ValueStack = append(h.ValueStack, results...)
	return len(h.CallStack) == 0
}

func (h *ExecHandle) call(funcIndex uint32) (paused bool, err error) {
	addr := &h.Inst.Funcs[funcIndex]
	if addr.IsHost {
		return h.callHost(addr.HostFunc)
	}
	return h.callWasm(funcIndex, addr.WasmFunc)
}

func (h *ExecHandle) callWasm(funcIndex uint32, fn *wasm.Function) (bool, error) {
	if len(h.CallStack) >= callStackCeiling {
		return false, &wasm.TrapError{Kind: wasm.TrapCallStackOverflow}
	}
	h.currentFrame().IP++
	args := h.popValues(len(fn.Type.Params))
	frame, err := h.newCallFrame(funcIndex, fn, args)
	if err != nil {
		fail("interpreter: %s", err)
	}
	h.CallStack = append(h.CallStack, frame)
	return false, nil
}

func (h *ExecHandle) callHost(hf *linker.HostFunc) (bool, error) {
	args := h.popValues(len(hf.Type.Params))
	ctx := hostCallContext{mem: h.Inst.Memory0()}
	results, err := hf.Call(ctx, args)
	if err != nil {
		if errors.Is(err, linker.ErrPauseExecution) {
			// Leave IP at the call instruction and put the arguments
			// back: resumption re-enters the same host call with the
			// same operands (spec §4.6/§9).
			h.ValueStack = append(h.ValueStack, args...)
			return true, nil
		}
		return false, err
	}
	h.currentFrame().IP++
	for _, r := range results {
		h.pushValue(r)
	}
	return false, nil
}

func (h *ExecHandle) callIndirect(instr wasm.Instruction) (bool, error) {
	i := uint32(h.popValue())
	tbl := h.Inst.Store.Tables[instr.TableIndex]
	if int(i) >= len(tbl.Elements) {
		return false, &wasm.TrapError{Kind: wasm.TrapUndefinedElement}
	}
	el := tbl.Elements[i]
	if !el.Initialized {
		return false, &wasm.TrapError{Kind: wasm.TrapUninitializedElement}
	}
	expected := h.Inst.Module.Types[instr.TypeIndex]
	actual, err := h.Inst.Module.TypeOfFunction(el.FuncIndex)
	if err != nil {
		return false, &wasm.TrapError{Kind: wasm.TrapUndefinedElement}
	}
	if !expected.EqualsSignature(actual) {
		return false, wasm.NewIndirectCallTypeMismatchError(expected, actual)
	}
	paused, err := h.call(el.FuncIndex)
	if paused {
		// Put the table index back too, so the re-entered call_indirect
		// resolves the same element.
		h.pushValue(uint64(i))
	}
	return paused, err
}

// hostCallContext implements linker.HostCallContext, exposing only the
// instance's memory to a host function (spec §9: never a raw pointer).
type hostCallContext struct {
	mem *store.Memory
}

func (c hostCallContext) Memory() *store.Memory { return c.mem }
