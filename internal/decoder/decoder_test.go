package decoder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/wasm"
)

// buildModule assembles a minimal binary with one memory and one () -> ()
// function, exported as "reef_main", whose body is the given bytes followed
// by `end`.
func buildModule(t *testing.T, body []byte) []byte {
	t.Helper()
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	// type section: one type, () -> ()
	typeSec := []byte{0x01, functionTypeForm, 0x00, 0x00}
	b = append(b, section(1, typeSec)...)

	// function section: one function, type 0
	funcSec := append([]byte{0x01}, leb128.EncodeUint32(0)...)
	b = append(b, section(3, funcSec)...)

	// memory section: one memory, min=1 page, no max
	memSec := []byte{0x01, 0x00, 0x01}
	b = append(b, section(5, memSec)...)

	// export section: "memory" -> mem 0, "reef_main" -> func 0
	var expSec []byte
	expSec = append(expSec, 0x02) // 2 exports
	expSec = append(expSec, nameBytes("memory")...)
	expSec = append(expSec, 0x02, 0x00) // kind memory, index 0
	expSec = append(expSec, nameBytes("reef_main")...)
	expSec = append(expSec, 0x00, 0x00) // kind func, index 0
	b = append(b, section(7, expSec)...)

	// code section: one function body
	fullBody := append([]byte{0x00}, body...) // 0 local groups
	fullBody = append(fullBody, 0x0b)          // end
	codeSec := append([]byte{0x01}, leb128.EncodeUint32(uint32(len(fullBody)))...)
	codeSec = append(codeSec, fullBody...)
	b = append(b, section(10, codeSec)...)

	return b
}

func nameBytes(s string) []byte {
	return append(leb128.EncodeUint32(uint32(len(s))), []byte(s)...)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	out = append(out, body...)
	return out
}

func TestParse_HelloWorldSkeleton(t *testing.T) {
	bin := buildModule(t, nil)
	m, err := Parse(bin, Options{})
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)
	require.Len(t, m.Memories, 1)
	require.Equal(t, uint32(1), m.Memories[0].Min)
	require.Nil(t, m.Memories[0].Max)
	require.Len(t, m.Exports, 2)
}

func TestParse_RejectsBadMagic(t *testing.T) {
	bin := []byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}
	_, err := Parse(bin, Options{})
	require.Error(t, err)
	var pe *wasm.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestDecodeInstructions_BlockOffsets(t *testing.T) {
	// (block (result) (br 0)) end
	body := []byte{
		0x02, 0x40, // block void
		0x0c, 0x00, // br 0
		0x0b, // end (block)
	}
	m, err := Parse(buildModule(t, body), Options{})
	require.NoError(t, err)
	instrs := m.Functions[0].Body
	require.Equal(t, wasm.OpBlock, instrs[0].Op)
	require.NotNil(t, instrs[0].Block)
	// instrs: [0]=block [1]=br [2]=end(block) [3]=end(function)
	require.Equal(t, uint32(2), instrs[0].Block.EndOffset)
}

func TestDecodeInstructions_IfElseOffsets(t *testing.T) {
	// i32.const 1; if (else) end
	body := []byte{
		byteOpI32Const, 0x01,
		0x04, 0x40, // if void
		0x05, // else
		0x0b, // end (if)
	}
	m, err := Parse(buildModule(t, body), Options{})
	require.NoError(t, err)
	instrs := m.Functions[0].Body
	// [0]=i32.const [1]=if [2]=else [3]=end(if) [4]=end(func)
	require.Equal(t, wasm.OpIf, instrs[1].Op)
	require.True(t, instrs[1].Block.HasElse)
	require.Equal(t, uint32(2), instrs[1].Block.ElseOffset)
	require.Equal(t, uint32(3), instrs[1].Block.EndOffset)
}

func TestPeepholeFusesLocalGetLocalGet(t *testing.T) {
	body := []byte{0x20, 0x00, 0x20, 0x00, 0x6a} // local.get 0; local.get 0; i32.add
	m, err := Parse(buildModule(t, body), Options{EnablePeephole: true})
	require.NoError(t, err)
	instrs := m.Functions[0].Body
	require.Equal(t, wasm.OpFusedLocalGetLocalGet, instrs[0].Op)
	require.Equal(t, uint32(0), instrs[0].LocalIndex)
	require.Equal(t, int32(0), instrs[0].Fused2)
	require.Equal(t, wasm.OpI32Add, instrs[1].Op)
}
