package interpreter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/decoder"
	"github.com/reef-runtime/reef/internal/instance"
	"github.com/reef-runtime/reef/internal/interpreter"
	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/wasm"
)

func nameBytes(s string) []byte {
	return append(leb128.EncodeUint32(uint32(len(s))), []byte(s)...)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	out = append(out, body...)
	return out
}

// buildAddModule builds a module with a one-page memory (Snapshot and
// Restore work on memory 0) exporting reef_main, which takes no params,
// declares one i32 local, and runs the given body.
func buildAddModule(body []byte) []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	typeSec := []byte{0x01, 0x60, 0x00, 0x00}
	b = append(b, section(1, typeSec)...)

	funcSec := append([]byte{0x01}, leb128.EncodeUint32(0)...)
	b = append(b, section(3, funcSec)...)

	memSec := []byte{0x01, 0x00, 0x01}
	b = append(b, section(5, memSec)...)

	var expSec []byte
	expSec = append(expSec, 0x01)
	expSec = append(expSec, nameBytes("reef_main")...)
	expSec = append(expSec, 0x00, 0x00)
	b = append(b, section(7, expSec)...)

	// one local group: 1 local of type i32
	fullBody := []byte{0x01, 0x01, 0x7f}
	fullBody = append(fullBody, body...)
	fullBody = append(fullBody, 0x0b)
	codeSec := append([]byte{0x01}, leb128.EncodeUint32(uint32(len(fullBody)))...)
	codeSec = append(codeSec, fullBody...)
	b = append(b, section(10, codeSec)...)

	return b
}

func mustInstantiate(t *testing.T, bin []byte) *instance.Instance {
	t.Helper()
	m, err := decoder.Parse(bin, decoder.Options{})
	require.NoError(t, err)
	inst, err := instance.Instantiate(m, linker.NewImports())
	require.NoError(t, err)
	return inst
}

func TestRun_ArithmeticAndLocals(t *testing.T) {
	// local.set 0 (i32.add (i32.const 2) (i32.const 3)); local.get 0; drop
	body := []byte{
		0x41, 0x02, // i32.const 2
		0x41, 0x03, // i32.const 3
		0x6a,       // i32.add
		0x21, 0x00, // local.set 0
		0x20, 0x00, // local.get 0
		0x1a, // drop
	}
	inst := mustInstantiate(t, buildAddModule(body))
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(1000)
	require.NoError(t, err)
	require.Equal(t, interpreter.Done, res)
}

func TestRun_Unreachable_Traps(t *testing.T) {
	body := []byte{0x00} // unreachable
	inst := mustInstantiate(t, buildAddModule(body))
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(1000)
	require.Equal(t, interpreter.Errored, res)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapUnreachable, trap.Kind)
}

func TestRun_DivideByZero_Traps(t *testing.T) {
	body := []byte{
		0x41, 0x01, // i32.const 1
		0x41, 0x00, // i32.const 0
		0x6d,       // i32.div_s
		0x1a,       // drop
	}
	inst := mustInstantiate(t, buildAddModule(body))
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(1000)
	require.Equal(t, interpreter.Errored, res)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapDivideByZero, trap.Kind)
}

func TestRun_LoopBranch_CountsToTen(t *testing.T) {
	// local 0 = counter. loop: local.get 0; i32.const 1; i32.add;
	// local.tee 0; i32.const 10; i32.ne; br_if 0
	body := []byte{
		0x03, 0x40, // loop (void)
		0x20, 0x00, // local.get 0
		0x41, 0x01, // i32.const 1
		0x6a,       // i32.add
		0x22, 0x00, // local.tee 0
		0x41, 0x0a, // i32.const 10
		0x47,       // i32.ne
		0x0d, 0x00, // br_if 0
		0x0b, // end (loop)
	}
	inst := mustInstantiate(t, buildAddModule(body))
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(10000)
	require.NoError(t, err)
	require.Equal(t, interpreter.Done, res)
}

func TestRun_BudgetExhaustion_ReturnsIncomplete(t *testing.T) {
	body := []byte{
		0x03, 0x40, // loop (void)
		0x41, 0x00, // i32.const 0
		0x0d, 0x00, // br_if 0 (never taken — infinite no-op loop via br unconditional would also work)
		0x0c, 0x00, // br 0 (unconditional back-edge: true infinite loop)
		0x0b,
	}
	inst := mustInstantiate(t, buildAddModule(body))
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(50)
	require.NoError(t, err)
	require.Equal(t, interpreter.Incomplete, res)
}

func TestRun_CallIndirect_TypeMismatchTraps(t *testing.T) {
	// Build a module with two func types, a table of size 1 holding function
	// 1 (type 1), and reef_main calling call_indirect against type 0.
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	// type 0: () -> (), type 1: () -> (i32)
	typeSec := []byte{0x02, 0x60, 0x00, 0x00, 0x60, 0x00, 0x01, 0x7f}
	b = append(b, section(1, typeSec)...)

	// function section: func0 type0 (reef_main), func1 type1 (callee)
	funcSec := append([]byte{0x02}, leb128.EncodeUint32(0)...)
	funcSec = append(funcSec, leb128.EncodeUint32(1)...)
	b = append(b, section(3, funcSec)...)

	// table section: funcref, min=1, max=1
	tableSec := []byte{0x01, 0x70, 0x01, 0x01, 0x01}
	b = append(b, section(4, tableSec)...)

	var expSec []byte
	expSec = append(expSec, 0x01)
	expSec = append(expSec, nameBytes("reef_main")...)
	expSec = append(expSec, 0x00, 0x00)
	b = append(b, section(7, expSec)...)

	// element section: active, table 0, offset 0, func index 1
	elemSec := []byte{0x01, 0x00, 0x41, 0x00, 0x0b, 0x01, 0x01}
	b = append(b, section(9, elemSec)...)

	// code: func0 body = i32.const 0; call_indirect (type 0, table 0)
	body0 := []byte{0x00, 0x41, 0x00, 0x11, 0x00, 0x00, 0x0b}
	// func1 body = i32.const 5; end
	body1 := []byte{0x00, 0x41, 0x05, 0x0b}
	codeSec := []byte{0x02}
	codeSec = append(codeSec, leb128.EncodeUint32(uint32(len(body0)))...)
	codeSec = append(codeSec, body0...)
	codeSec = append(codeSec, leb128.EncodeUint32(uint32(len(body1)))...)
	codeSec = append(codeSec, body1...)
	b = append(b, section(10, codeSec)...)

	inst := mustInstantiate(t, b)
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(1000)
	require.Equal(t, interpreter.Errored, res)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapIndirectCallTypeMismatch, trap.Kind)
}

func TestSnapshot_RoundTripsThroughRestore(t *testing.T) {
	body := []byte{
		0x03, 0x40, // loop
		0x20, 0x00,
		0x41, 0x01,
		0x6a,
		0x22, 0x00,
		0x41, 0x0a,
		0x47,
		0x0d, 0x00,
		0x0b,
	}
	bin := buildAddModule(body)
	inst := mustInstantiate(t, bin)
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)

	res, err := h.Run(3) // not enough cycles to finish the loop
	require.NoError(t, err)
	require.Equal(t, interpreter.Incomplete, res)

	data, err := h.Snapshot([]byte("stash"), false)
	require.NoError(t, err)

	inst2 := mustInstantiate(t, bin)
	h2, extra, err := interpreter.Restore(inst2, data)
	require.NoError(t, err)
	require.Equal(t, []byte("stash"), extra)

	res, err = h2.Run(10000)
	require.NoError(t, err)
	require.Equal(t, interpreter.Done, res)
}
