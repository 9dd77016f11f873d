// Package instance binds a decoded module to a store: it resolves imports
// via internal/linker, installs the module's own functions/tables/
// memories/globals, evaluates global initializers, and applies element and
// data segments (spec §4.2). The result is an Instance ready to have
// internal/interpreter create an ExecHandle against one of its exported
// functions.
package instance

import (
	"fmt"

	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/store"
	"github.com/reef-runtime/reef/internal/wasm"
)

// FuncAddr is a resolved function address: either a Wasm function (by
// module-wide index) or a host function, per spec §9's tagged variant
// {Wasm, Host}.
type FuncAddr struct {
	Index    uint32
	IsHost   bool
	HostFunc *linker.HostFunc
	WasmFunc *wasm.Function
}

// Instance is a module bound to a store.
type Instance struct {
	Module  *wasm.Module
	Store   *store.Store
	Funcs   []FuncAddr // module-wide function index namespace, imports first
	Exports map[string]*wasm.Export
}

// Memory0 returns the instance's sole memory (Reef's MVP subset allows at
// most one), or nil if the module declares none.
func (i *Instance) Memory0() *store.Memory {
	if len(i.Store.Memories) == 0 {
		return nil
	}
	return i.Store.Memories[0]
}

// ExportedFunc looks up an exported function by name.
func (i *Instance) ExportedFunc(name string) (*FuncAddr, error) {
	exp, ok := i.Exports[name]
	if !ok || exp.Type != 0x00 {
		return nil, fmt.Errorf("instance: no exported function %q", name)
	}
	return &i.Funcs[exp.Index], nil
}

// Instantiate resolves m's imports against hostImports, installs the
// module's own functions/tables/memories/globals into a fresh store,
// evaluates global initializers, and applies element and data segments, in
// the order spec §4.2 mandates. A trap during element/data initialization
// fails instantiation.
func Instantiate(m *wasm.Module, hostImports *linker.Imports) (*Instance, error) {
	resolved, err := linker.Resolve(m, hostImports)
	if err != nil {
		return nil, err
	}
	return build(m, resolved)
}

func build(m *wasm.Module, resolved *linker.Resolved) (*Instance, error) {
	st := store.New()

	inst := &Instance{Module: m, Store: st, Exports: map[string]*wasm.Export{}}
	for _, e := range m.Exports {
		inst.Exports[e.Name] = e
	}

	// Functions: imported host funcs first, then own Wasm funcs, matching
	// the module-wide function index namespace.
	for _, hf := range resolved.Funcs {
		inst.Funcs = append(inst.Funcs, FuncAddr{Index: uint32(len(inst.Funcs)), IsHost: true, HostFunc: hf})
	}
	for _, fn := range m.Functions {
		inst.Funcs = append(inst.Funcs, FuncAddr{Index: uint32(len(inst.Funcs)), WasmFunc: fn})
	}

	// Tables: imported first, then own.
	st.Tables = append(st.Tables, resolved.Tables...)
	for _, tt := range m.Tables {
		st.Tables = append(st.Tables, store.NewTable(tt))
	}

	// Memories: imported first, then own. 64-bit memories are rejected by
	// the decoder already (spec §4.2 "own memories (reject 64-bit)"); the
	// MVP subset only ever has 32-bit limits to begin with.
	for _, mi := range resolved.Memories {
		st.Memories = append(st.Memories, mi.Memory)
	}
	for _, mt := range m.Memories {
		st.Memories = append(st.Memories, store.NewMemory(mt))
	}

	// Globals: imported first, then own, evaluated in declaration order so
	// later globals may reference earlier ones (spec §4.2).
	for _, g := range resolved.Globals {
		st.Globals = append(st.Globals, g)
	}
	for _, g := range m.Globals {
		raw, err := wasm.EvaluateRaw(st, g.Init)
		if err != nil {
			return nil, fmt.Errorf("instance: evaluating global initializer: %w", err)
		}
		st.Globals = append(st.Globals, &store.Global{Type: g.Type, Value: raw})
	}

	if err := applyElementSegments(inst, m); err != nil {
		return nil, err
	}
	if err := applyDataSegments(inst, m, st); err != nil {
		return nil, err
	}
	return inst, nil
}

func applyElementSegments(inst *Instance, m *wasm.Module) error {
	for _, seg := range m.Elements {
		ei := &store.ElementInstance{Kind: seg.Kind, Funcs: append([]uint32(nil), seg.Init...)}
		inst.Store.Elements = append(inst.Store.Elements, ei)
		if seg.Kind != wasm.ElementSegmentKindActive {
			continue // Passive and Declared produce no side effects here.
		}
		offset, err := wasm.EvaluateI32(inst.Store, seg.Offset)
		if err != nil {
			return err
		}
		if int(seg.TableIndex) >= len(inst.Store.Tables) {
			return &wasm.TrapError{Kind: wasm.TrapTableOutOfBounds}
		}
		tbl := inst.Store.Tables[seg.TableIndex]
		for i, fi := range seg.Init {
			idx := uint32(offset) + uint32(i)
			if int(idx) >= len(tbl.Elements) {
				return &wasm.TrapError{Kind: wasm.TrapTableOutOfBounds}
			}
			tbl.Elements[idx] = store.TableElement{Initialized: true, FuncIndex: fi}
		}
	}
	return nil
}

func applyDataSegments(inst *Instance, m *wasm.Module, st *store.Store) error {
	for _, seg := range m.Data {
		di := &store.DataInstance{Bytes: append([]byte(nil), seg.Init...)}
		st.Datas = append(st.Datas, di)
		if seg.Kind != wasm.DataSegmentKindActive {
			continue
		}
		offset, err := wasm.EvaluateI32(st, seg.Offset)
		if err != nil {
			return err
		}
		if int(seg.MemoryIndex) >= len(st.Memories) {
			return &wasm.TrapError{Kind: wasm.TrapMemoryOutOfBounds}
		}
		mem := st.Memories[seg.MemoryIndex]
		if err := mem.WriteBytes(uint32(offset), seg.Init); err != nil {
			return err
		}
	}
	return nil
}
