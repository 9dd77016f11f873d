// Package interpreter is the stack machine at the core of Reef: it
// dispatches one decoded instruction at a time against a call stack, block
// stack, and value stack, bounded by a cycle budget (spec §4.4–§4.6). It is
// grounded directly on the teacher's internal/engine/interpreter, generalized
// from wazero's compile-once moduleEngine/callEngine split into a single
// ExecHandle that owns its stacks and can be snapshotted between Run calls.
package interpreter

import (
	"fmt"

	"github.com/reef-runtime/reef/internal/instance"
	"github.com/reef-runtime/reef/internal/wasm"
)

// callStackCeiling is the fixed call-frame capacity; exceeding it traps with
// CallStackOverflow (spec §3).
const callStackCeiling = 1024

// RunResult is the outcome of one ExecHandle.Run call.
type RunResult int

const (
	// Done means the call stack emptied; the entry function's return values
	// are left on ValueStack.
	Done RunResult = iota
	// Incomplete means the cycle budget was exhausted or execution paused
	// (e.g. reef.sleep); the handle remains coherent and Run may be called
	// again.
	Incomplete
	// Errored means a trap or other fatal error ended the job; the handle
	// must be discarded.
	Errored
)

func (r RunResult) String() string {
	switch r {
	case Done:
		return "done"
	case Incomplete:
		return "incomplete"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// blockFrame is one entry of the block stack (spec §3).
type blockFrame struct {
	Kind wasm.BlockKind
	// BodyStart is the instruction index right after the Block/Loop/If
	// opcode itself; a branch to a Loop frame jumps here.
	BodyStart uint32
	// EndOffset is the matching End instruction's index; a branch to a
	// Block/If/Else frame jumps to EndOffset+1.
	EndOffset uint32
	// ValueStackBase is the value-stack depth at block entry minus the
	// block's param count, i.e. the depth below its params (spec §3
	// invariant).
	ValueStackBase int
	ParamCount     int
	ResultCount    int
}

// callFrame is one entry of the call stack (spec §3).
type callFrame struct {
	FuncIndex      uint32
	Body           []wasm.Instruction
	IP             uint32
	BlockStackBase int
	ResultCount    int
	Locals         []uint64
}

// ExecHandle owns one execution's stacks and a reference to its instance. It
// is created once per job and is serializable between Run calls via
// internal/snapshot.
type ExecHandle struct {
	Inst       *instance.Instance
	ValueStack []uint64
	BlockStack []blockFrame
	CallStack  []callFrame
}

// NewExecHandle instantiates an execution of inst's export named entry
// (declared as `() -> ()` per spec §4.8, but args/results are threaded
// through generically so tests can target arbitrary exports).
func NewExecHandle(inst *instance.Instance, entry string, args []uint64) (*ExecHandle, error) {
	addr, err := inst.ExportedFunc(entry)
	if err != nil {
		return nil, err
	}
	if addr.IsHost {
		return nil, fmt.Errorf("interpreter: export %q is a host function, not callable as an entry point", entry)
	}
	h := &ExecHandle{Inst: inst}
	frame, err := h.newCallFrame(addr.Index, addr.WasmFunc, args)
	if err != nil {
		return nil, err
	}
	h.CallStack = append(h.CallStack, frame)
	return h, nil
}

func (h *ExecHandle) newCallFrame(funcIndex uint32, fn *wasm.Function, args []uint64) (callFrame, error) {
	if len(args) != len(fn.Type.Params) {
		return callFrame{}, fmt.Errorf("interpreter: want %d args, have %d", len(fn.Type.Params), len(args))
	}
	locals := make([]uint64, len(fn.Type.Params)+len(fn.LocalTypes))
	copy(locals, args)
	return callFrame{
		FuncIndex:      funcIndex,
		Body:           fn.Body,
		BlockStackBase: len(h.BlockStack),
		ResultCount:    len(fn.Type.Results),
		Locals:         locals,
	}, nil
}

func (h *ExecHandle) currentFrame() *callFrame {
	return &h.CallStack[len(h.CallStack)-1]
}

func (h *ExecHandle) pushValue(v uint64)   { h.ValueStack = append(h.ValueStack, v) }
func (h *ExecHandle) popValue() uint64 {
	top := len(h.ValueStack) - 1
	v := h.ValueStack[top]
	h.ValueStack = h.ValueStack[:top]
	return v
}
func (h *ExecHandle) popValues(n int) []uint64 {
	if n == 0 {
		return nil
	}
	base := len(h.ValueStack) - n
	vs := append([]uint64(nil), h.ValueStack[base:]...)
	h.ValueStack = h.ValueStack[:base]
	return vs
}
