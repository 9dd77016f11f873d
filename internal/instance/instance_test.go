package instance_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/decoder"
	"github.com/reef-runtime/reef/internal/instance"
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

// buildModule assembles a binary with one memory, one i32 global initialized
// to 7, a data segment writing "hi" at offset 0, and a function body
// exported as reef_main.
func buildModule(body []byte) []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	typeSec := []byte{0x01, 0x60, 0x00, 0x00}
	b = append(b, section(1, typeSec)...)

	funcSec := append([]byte{0x01}, leb128.EncodeUint32(0)...)
	b = append(b, section(3, funcSec)...)

	memSec := []byte{0x01, 0x00, 0x01}
	b = append(b, section(5, memSec)...)

	// global section: one i32 immutable global, init = i32.const 7
	globalSec := []byte{0x01, 0x7f, 0x00, 0x41, 0x07, 0x0b}
	b = append(b, section(6, globalSec)...)

	var expSec []byte
	expSec = append(expSec, 0x02)
	expSec = append(expSec, nameBytes("memory")...)
	expSec = append(expSec, 0x02, 0x00)
	expSec = append(expSec, nameBytes("reef_main")...)
	expSec = append(expSec, 0x00, 0x00)
	b = append(b, section(7, expSec)...)

	fullBody := append([]byte{0x00}, body...)
	fullBody = append(fullBody, 0x0b)
	codeSec := append([]byte{0x01}, leb128.EncodeUint32(uint32(len(fullBody)))...)
	codeSec = append(codeSec, fullBody...)
	b = append(b, section(10, codeSec)...)

	// data section: one active segment, memory 0, offset 0, bytes "hi"
	dataSec := []byte{0x01, 0x00, 0x41, 0x00, 0x0b, 0x02, 'h', 'i'}
	b = append(b, section(11, dataSec)...)

	return b
}

func TestInstantiate_InstallsMemoryGlobalsAndData(t *testing.T) {
	m, err := decoder.Parse(buildModule(nil), decoder.Options{})
	require.NoError(t, err)

	inst, err := instance.Instantiate(m, linker.NewImports())
	require.NoError(t, err)

	require.Len(t, inst.Store.Memories, 1)
	require.Len(t, inst.Store.Globals, 1)
	require.Equal(t, uint64(7), inst.Store.Globals[0].Value)

	got, err := inst.Memory0().ReadBytes(0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), got)

	addr, err := inst.ExportedFunc("reef_main")
	require.NoError(t, err)
	require.False(t, addr.IsHost)
}

func TestInstantiate_UnknownImportFails(t *testing.T) {
	bin := buildModule(nil)
	// Add an unresolved function import "env.missing" to the decoded
	// module before instantiating it.
	m, err := decoder.Parse(bin, decoder.Options{})
	require.NoError(t, err)
	m.Imports = append(m.Imports, &wasm.Import{
		Module: "env", Name: "missing", Type: 0x00, FuncTypeIndex: 0,
	})

	_, err = instance.Instantiate(m, linker.NewImports())
	require.Error(t, err)
	var le *wasm.LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, wasm.LinkErrorUnknownImport, le.Kind)
}

func TestExportedFunc_NotFound(t *testing.T) {
	m, err := decoder.Parse(buildModule(nil), decoder.Options{})
	require.NoError(t, err)
	inst, err := instance.Instantiate(m, linker.NewImports())
	require.NoError(t, err)

	_, err = inst.ExportedFunc("nope")
	require.Error(t, err)
}
