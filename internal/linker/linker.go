// Package linker resolves a module's imports against a host-supplied
// import set, type-checking each one before it is installed into a store
// (spec §4.2). It does not itself mutate a store; internal/instance calls
// Resolve and then installs the result.
package linker

import (
	"errors"
	"fmt"

	"github.com/reef-runtime/reef/internal/store"
	"github.com/reef-runtime/reef/internal/wasm"
)

// ErrPauseExecution is the sentinel a HostFunc returns to suspend execution
// rather than fail it (spec §4.6/§9, used by reef.sleep). The interpreter
// does not advance the instruction pointer past a call that returns it, so
// the next Run re-enters the same host call.
var ErrPauseExecution = errors.New("linker: pause execution")

// HostFunc is a host-implemented import: a typed Go callable installed in
// place of a Wasm function body. Per spec §9 "host imports with closures",
// the callable only ever sees the context abstraction, never a raw
// pointer into memory.
type HostFunc struct {
	Type *wasm.FunctionType
	Call func(ctx HostCallContext, args []uint64) ([]uint64, error)
}

// HostCallContext exposes the current instance's memory to a HostFunc
// without leaking store internals.
type HostCallContext interface {
	Memory() *store.Memory
}

// MemoryImport is a host-supplied memory, optionally carrying a size
// override used on snapshot restore: the saved page count, which may
// exceed the module's declared initial size (spec §4.2).
type MemoryImport struct {
	Memory       *store.Memory
	SizeOverride *uint32
}

// key identifies an import by its two-part name.
type key struct{ module, name string }

// Imports is the host-supplied set of values a module's imports are
// resolved against, keyed by (module, name).
type Imports struct {
	Funcs    map[key]*HostFunc
	Tables   map[key]*store.Table
	Memories map[key]*MemoryImport
	Globals  map[key]*store.Global
}

// NewImports returns an empty import set ready for host registration.
func NewImports() *Imports {
	return &Imports{
		Funcs:    map[key]*HostFunc{},
		Tables:   map[key]*store.Table{},
		Memories: map[key]*MemoryImport{},
		Globals:  map[key]*store.Global{},
	}
}

// AddFunc registers a host function import.
func (im *Imports) AddFunc(module, name string, f *HostFunc) {
	im.Funcs[key{module, name}] = f
}

// AddMemory registers a host memory import, optionally with a snapshot-
// restore size override.
func (im *Imports) AddMemory(module, name string, m *store.Memory, sizeOverride *uint32) {
	im.Memories[key{module, name}] = &MemoryImport{Memory: m, SizeOverride: sizeOverride}
}

// AddTable registers a host table import.
func (im *Imports) AddTable(module, name string, t *store.Table) {
	im.Tables[key{module, name}] = t
}

// AddGlobal registers a host global import.
func (im *Imports) AddGlobal(module, name string, g *store.Global) {
	im.Globals[key{module, name}] = g
}

// Resolved is the outcome of resolving one module's import declarations
// against a host Imports set, in declaration order.
type Resolved struct {
	Funcs    []*HostFunc
	Tables   []*store.Table
	Memories []*MemoryImport
	Globals  []*store.Global
}

// Resolve looks up each of m's imports in order and type-checks it against
// the declared import type, per spec §4.2. An absent import is
// UnknownImport; a present but incompatible one is IncompatibleImportType.
func Resolve(m *wasm.Module, imports *Imports) (*Resolved, error) {
	r := &Resolved{}
	for _, imp := range m.Imports {
		k := key{imp.Module, imp.Name}
		switch imp.Type {
		case 0x00:
			hf, ok := imports.Funcs[k]
			if !ok {
				return nil, unknownImport(imp)
			}
			declared := m.Types[imp.FuncTypeIndex]
			if !declared.EqualsSignature(hf.Type) {
				return nil, incompatibleImport(imp, fmt.Sprintf("function signature mismatch: want %s, have %s", declared, hf.Type))
			}
			r.Funcs = append(r.Funcs, hf)
		case 0x01:
			tbl, ok := imports.Tables[k]
			if !ok {
				return nil, unknownImport(imp)
			}
			if err := checkTableCompat(imp.Table, tbl); err != nil {
				return nil, incompatibleImport(imp, err.Error())
			}
			r.Tables = append(r.Tables, tbl)
		case 0x02:
			mem, ok := imports.Memories[k]
			if !ok {
				return nil, unknownImport(imp)
			}
			if err := checkMemoryCompat(imp.Memory, mem); err != nil {
				return nil, incompatibleImport(imp, err.Error())
			}
			r.Memories = append(r.Memories, mem)
		case 0x03:
			g, ok := imports.Globals[k]
			if !ok {
				return nil, unknownImport(imp)
			}
			if g.Type.ValType != imp.Global.ValType || g.Type.Mutable != imp.Global.Mutable {
				return nil, incompatibleImport(imp, "global type mismatch")
			}
			r.Globals = append(r.Globals, g)
		}
	}
	return r, nil
}

func unknownImport(imp *wasm.Import) error {
	return &wasm.LinkError{Kind: wasm.LinkErrorUnknownImport, ModuleName: imp.Module, FieldName: imp.Name}
}

func incompatibleImport(imp *wasm.Import, detail string) error {
	return &wasm.LinkError{Kind: wasm.LinkErrorIncompatibleImportType, ModuleName: imp.Module, FieldName: imp.Name, Detail: detail}
}

func checkTableCompat(declared *wasm.TableType, actual *store.Table) error {
	if declared.ElemType != actual.Type.ElemType {
		return fmt.Errorf("element type mismatch")
	}
	actualInitial := uint32(len(actual.Elements))
	if actualInitial < declared.Min {
		return fmt.Errorf("imported table too small: have %d, need >= %d", actualInitial, declared.Min)
	}
	return checkMaxCompat(declared.Max, actual.Type.Max)
}

func checkMemoryCompat(declared *wasm.MemoryType, actual *MemoryImport) error {
	actualInitial := actual.Memory.Pages
	if actual.SizeOverride != nil {
		actualInitial = *actual.SizeOverride
	}
	if actualInitial < declared.Min {
		return fmt.Errorf("imported memory too small: have %d pages, need >= %d", actualInitial, declared.Min)
	}
	return checkMaxCompat(declared.Max, actual.Memory.Type.Max)
}

func checkMaxCompat(declaredMax, actualMax *uint32) error {
	if declaredMax == nil {
		if actualMax != nil {
			return fmt.Errorf("imported value declares a max but the module does not")
		}
		return nil
	}
	if actualMax == nil {
		return fmt.Errorf("module declares a max but the imported value does not")
	}
	if *actualMax > *declaredMax {
		return fmt.Errorf("imported max %d exceeds declared max %d", *actualMax, *declaredMax)
	}
	return nil
}
