package decoder

import (
	"fmt"

	"github.com/reef-runtime/reef/internal/wasm"
)

// validateModule performs the structural cross-checks spec §4.1 requires
// beyond what each section decoder already validated locally: export/start
// indices in range, constant expressions restricted to the allowed subset,
// and at most one table/memory (Reef's MVP subset).
func validateModule(m *wasm.Module) error {
	if len(m.Tables)+countImportKind(m, 0x01) > 1 {
		return &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "more than one table"}
	}
	if len(m.Memories)+countImportKind(m, 0x02) > 1 {
		return &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "more than one memory"}
	}

	totalFuncs := m.ImportedFunctionCount + uint32(len(m.Functions))
	totalTables := m.ImportedTableCount + uint32(len(m.Tables))
	totalMemories := m.ImportedMemoryCount + uint32(len(m.Memories))
	totalGlobals := m.ImportedGlobalCount + uint32(len(m.Globals))

	if m.StartFunc != nil {
		if *m.StartFunc >= totalFuncs {
			return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "start function index out of range"}
		}
		ft, err := m.TypeOfFunction(*m.StartFunc)
		if err != nil {
			return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: err.Error()}
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "start function must be () -> ()"}
		}
	}

	for _, exp := range m.Exports {
		var max uint32
		switch exp.Type {
		case 0x00:
			max = totalFuncs
		case 0x01:
			max = totalTables
		case 0x02:
			max = totalMemories
		case 0x03:
			max = totalGlobals
		}
		if exp.Index >= max {
			return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: fmt.Sprintf("export %q index out of range", exp.Name)}
		}
	}

	for _, g := range m.Globals {
		if err := g.Init.Validate(); err != nil {
			return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: err.Error()}
		}
	}
	for _, seg := range m.Elements {
		if seg.Kind == wasm.ElementSegmentKindActive {
			if seg.TableIndex >= totalTables {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "element segment table index out of range"}
			}
			if err := seg.Offset.Validate(); err != nil {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: err.Error()}
			}
		}
		for _, fi := range seg.Init {
			if fi >= totalFuncs {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "element segment function index out of range"}
			}
		}
	}
	for _, seg := range m.Data {
		if seg.Kind == wasm.DataSegmentKindActive {
			if seg.MemoryIndex >= totalMemories {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "data segment memory index out of range"}
			}
			if err := seg.Offset.Validate(); err != nil {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: err.Error()}
			}
		}
	}

	for _, fn := range m.Functions {
		if err := validateFunctionBody(m, fn); err != nil {
			return err
		}
	}
	return nil
}

func countImportKind(m *wasm.Module, kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Type == kind {
			n++
		}
	}
	return n
}

// validateFunctionBody performs a lightweight structural check: branch
// targets within a function must resolve to an enclosing block, and
// call/call_indirect/global references must be in range. Full operand-type
// checking is performed implicitly by the interpreter's static dispatch
// (each opcode handler assumes the types the decoder's grammar guarantees);
// this pass only rejects structurally impossible programs before they ever
// reach execution.
func validateFunctionBody(m *wasm.Module, fn *wasm.Function) error {
	depth := 0
	for _, instr := range fn.Body {
		switch instr.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			if depth > 0 {
				depth--
			}
		case wasm.OpBr, wasm.OpBrIf:
			if int(instr.LocalIndex) > depth {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "branch target out of range"}
			}
		case wasm.OpBrTable:
			for _, t := range instr.BrTargets {
				if int(t) > depth {
					return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "br_table target out of range"}
				}
			}
		case wasm.OpCall:
			totalFuncs := m.ImportedFunctionCount + uint32(len(m.Functions))
			if instr.FuncIndex >= totalFuncs {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "call function index out of range"}
			}
		case wasm.OpCallIndirect:
			if int(instr.TypeIndex) >= len(m.Types) {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "call_indirect type index out of range"}
			}
		case wasm.OpGlobalSet:
			totalGlobals := m.ImportedGlobalCount + uint32(len(m.Globals))
			if instr.GlobalIndex >= totalGlobals {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "global.set index out of range"}
			}
			if !globalMutable(m, instr.GlobalIndex) {
				return &wasm.ParseError{Kind: wasm.ParseErrorValidation, Detail: "global.set on immutable global"}
			}
		}
	}
	return nil
}

func globalMutable(m *wasm.Module, index uint32) bool {
	if index < m.ImportedGlobalCount {
		var i uint32
		for _, imp := range m.Imports {
			if imp.Type != 0x03 {
				continue
			}
			if i == index {
				return imp.Global.Mutable
			}
			i++
		}
		return false
	}
	local := index - m.ImportedGlobalCount
	if int(local) >= len(m.Globals) {
		return false
	}
	return m.Globals[local].Type.Mutable
}
