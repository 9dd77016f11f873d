package linker_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/store"
	"github.com/reef-runtime/reef/internal/wasm"
)

func u32(v uint32) *uint32 { return &v }

func TestResolve_UnknownImport(t *testing.T) {
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{}},
		Imports: []*wasm.Import{
			{Module: "env", Name: "missing", Type: api.ExternTypeFunc, FuncTypeIndex: 0},
		},
	}
	_, err := linker.Resolve(m, linker.NewImports())
	require.Error(t, err)
	var le *wasm.LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, wasm.LinkErrorUnknownImport, le.Kind)
}

func TestResolve_FuncSignatureMismatch(t *testing.T) {
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}}},
		Imports: []*wasm.Import{
			{Module: "env", Name: "f", Type: api.ExternTypeFunc, FuncTypeIndex: 0},
		},
	}
	imports := linker.NewImports()
	imports.AddFunc("env", "f", &linker.HostFunc{Type: &wasm.FunctionType{}})

	_, err := linker.Resolve(m, imports)
	require.Error(t, err)
	var le *wasm.LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, wasm.LinkErrorIncompatibleImportType, le.Kind)
}

func TestResolve_FuncSignatureMatch(t *testing.T) {
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		Imports: []*wasm.Import{
			{Module: "env", Name: "f", Type: api.ExternTypeFunc, FuncTypeIndex: 0},
		},
	}
	imports := linker.NewImports()
	hf := &linker.HostFunc{Type: &wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}}
	imports.AddFunc("env", "f", hf)

	resolved, err := linker.Resolve(m, imports)
	require.NoError(t, err)
	require.Equal(t, []*linker.HostFunc{hf}, resolved.Funcs)
}

func TestResolve_MemoryTooSmall(t *testing.T) {
	m := &wasm.Module{
		Imports: []*wasm.Import{
			{Module: "env", Name: "mem", Type: api.ExternTypeMemory, Memory: &wasm.MemoryType{Min: 2}},
		},
	}
	imports := linker.NewImports()
	small := store.NewMemory(&wasm.MemoryType{Min: 1})
	imports.AddMemory("env", "mem", small, nil)

	_, err := linker.Resolve(m, imports)
	require.Error(t, err)
	var le *wasm.LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, wasm.LinkErrorIncompatibleImportType, le.Kind)
}

func TestResolve_MemorySizeOverrideSatisfiesMin(t *testing.T) {
	m := &wasm.Module{
		Imports: []*wasm.Import{
			{Module: "env", Name: "mem", Type: api.ExternTypeMemory, Memory: &wasm.MemoryType{Min: 5}},
		},
	}
	imports := linker.NewImports()
	mem := store.NewMemory(&wasm.MemoryType{Min: 1})
	imports.AddMemory("env", "mem", mem, u32(5))

	resolved, err := linker.Resolve(m, imports)
	require.NoError(t, err)
	require.Len(t, resolved.Memories, 1)
}

func TestResolve_GlobalMutabilityMismatch(t *testing.T) {
	m := &wasm.Module{
		Imports: []*wasm.Import{
			{Module: "env", Name: "g", Type: api.ExternTypeGlobal, Global: &wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: true}},
		},
	}
	imports := linker.NewImports()
	imports.AddGlobal("env", "g", &store.Global{Type: &wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false}, Value: 7})

	_, err := linker.Resolve(m, imports)
	require.Error(t, err)
	var le *wasm.LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, wasm.LinkErrorIncompatibleImportType, le.Kind)
}

func TestResolve_GlobalMatch(t *testing.T) {
	m := &wasm.Module{
		Imports: []*wasm.Import{
			{Module: "env", Name: "g", Type: api.ExternTypeGlobal, Global: &wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false}},
		},
	}
	imports := linker.NewImports()
	g := &store.Global{Type: &wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false}, Value: 42}
	imports.AddGlobal("env", "g", g)

	resolved, err := linker.Resolve(m, imports)
	require.NoError(t, err)
	require.Equal(t, []*store.Global{g}, resolved.Globals)
}

func TestResolve_TableTooSmall(t *testing.T) {
	m := &wasm.Module{
		Imports: []*wasm.Import{
			{Module: "env", Name: "t", Type: api.ExternTypeTable, Table: &wasm.TableType{ElemType: api.ValueTypeFuncref, Min: 10}},
		},
	}
	imports := linker.NewImports()
	small := store.NewTable(&wasm.TableType{ElemType: api.ValueTypeFuncref, Min: 1})
	imports.AddTable("env", "t", small)

	_, err := linker.Resolve(m, imports)
	require.Error(t, err)
}
