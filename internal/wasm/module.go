// Package wasm holds the immutable, decoded representation of a WebAssembly
// module: the data model shared by the decoder, linker, instance, and
// interpreter packages. Nothing here mutates after internal/decoder returns
// it; runtime state lives in internal/store instead.
package wasm

import (
	"fmt"
	"strings"

	"github.com/reef-runtime/reef/api"
)

// FunctionType is a function signature: ordered parameter and result value
// types.
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// String renders the signature the way wazero's text format does, e.g.
// "i32i64_i32".
func (t *FunctionType) String() string {
	ps := valueTypesString(t.Params)
	rs := valueTypesString(t.Results)
	return ps + "_" + rs
}

func valueTypesString(vs []api.ValueType) string {
	if len(vs) == 0 {
		return "null"
	}
	var sb strings.Builder
	for _, v := range vs {
		sb.WriteString(api.ValueTypeName(v))
	}
	return sb.String()
}

// EqualsSignature reports whether t and other accept and return exactly the
// same value types. Used by call_indirect to check the table element's
// function type against the call site's declared type.
func (t *FunctionType) EqualsSignature(other *FunctionType) bool {
	if len(t.Params) != len(other.Params) || len(t.Results) != len(other.Results) {
		return false
	}
	for i, p := range t.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range t.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// TableType describes a table section entry: element type and size limits.
type TableType struct {
	ElemType api.ValueType // always api.ValueTypeFuncref in the MVP
	Min      uint32
	Max      *uint32
}

// MemoryType describes a memory section entry: page-unit limits. Reef only
// supports 32-bit memories (one page = 65536 bytes).
type MemoryType struct {
	Min uint32
	Max *uint32 // nil means "no declared max"
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// Global is a module-level global: its type plus the constant expression
// that initializes it.
type Global struct {
	Type *GlobalType
	Init ConstantExpression
}

// ElementSegmentKind distinguishes how an element segment is consumed at
// instantiation time.
type ElementSegmentKind byte

const (
	ElementSegmentKindActive ElementSegmentKind = iota
	ElementSegmentKindPassive
	ElementSegmentKindDeclared
)

// ElementSegment is an element section entry. Active segments carry the
// target table index and an offset constant expression; Passive and
// Declared segments only ever populate table.init / ref.func and have no
// side effect at instantiation.
type ElementSegment struct {
	Kind       ElementSegmentKind
	TableIndex uint32
	Offset     ConstantExpression
	// Init is the sequence of function indices that populate the segment.
	// The decoder only accepts the function-index encodings; element
	// segments given as constant expressions are rejected.
	Init []uint32
}

// DataSegmentKind distinguishes how a data segment is consumed at
// instantiation time.
type DataSegmentKind byte

const (
	DataSegmentKindActive DataSegmentKind = iota
	DataSegmentKindPassive
)

// DataSegment is a data section entry.
type DataSegment struct {
	Kind        DataSegmentKind
	MemoryIndex uint32
	Offset      ConstantExpression
	Init        []byte
}

// Import describes one import section entry: the two-part name it is
// looked up by, and the type of extern it expects.
type Import struct {
	Module, Name string
	Type         api.ExternType
	// Exactly one of the following is populated, selected by Type.
	FuncTypeIndex uint32
	Table         *TableType
	Memory        *MemoryType
	Global        *GlobalType
}

// Export describes one export section entry.
type Export struct {
	Name  string
	Type  api.ExternType
	Index uint32
}

// Function is a function section + code section entry merged together:
// its declared signature, its locals, and its decoded instruction stream.
type Function struct {
	TypeIndex uint32
	Type      *FunctionType
	// LocalTypes are the additional locals declared by the function body,
	// in declaration order, after the parameters.
	LocalTypes []api.ValueType
	Body       []Instruction
}

// Module is the immutable, decoded form of a Wasm binary. All
// cross-references inside it (type indices, function indices, table
// indices...) are plain uint32 indices into these slices, never pointers,
// so a Module can be shared read-only across many Store/Instance pairs.
type Module struct {
	Types     []*FunctionType
	Imports   []*Import
	Functions []*Function // index namespace starts after imported funcs
	Tables    []*TableType
	Memories  []*MemoryType
	Globals   []*Global
	Exports   []*Export
	Elements  []*ElementSegment
	Data      []*DataSegment
	StartFunc *uint32

	// ImportedFunctionCount, ImportedTableCount, ImportedMemoryCount, and
	// ImportedGlobalCount record how many of each index namespace's entries
	// came from imports, so that Functions[i] corresponds to function index
	// ImportedFunctionCount+i, etc.
	ImportedFunctionCount uint32
	ImportedTableCount    uint32
	ImportedMemoryCount   uint32
	ImportedGlobalCount   uint32
}

// TypeOfFunction returns the declared signature of the function at the
// given module-wide function index, counting imports first.
func (m *Module) TypeOfFunction(index uint32) (*FunctionType, error) {
	if index < m.ImportedFunctionCount {
		var i uint32
		for _, imp := range m.Imports {
			if imp.Type != api.ExternTypeFunc {
				continue
			}
			if i == index {
				return m.Types[imp.FuncTypeIndex], nil
			}
			i++
		}
		return nil, fmt.Errorf("wasm: function index %d out of range", index)
	}
	local := index - m.ImportedFunctionCount
	if int(local) >= len(m.Functions) {
		return nil, fmt.Errorf("wasm: function index %d out of range", index)
	}
	return m.Functions[local].Type, nil
}
