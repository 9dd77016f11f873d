package store

import "github.com/reef-runtime/reef/internal/wasm"

// Global is one global instance: its type and current raw 64-bit value.
type Global struct {
	Type  *wasm.GlobalType
	Value uint64
}

// ElementInstance is the runtime form of an element segment of any kind:
// its resolved function indices, or nil after elem.drop.
type ElementInstance struct {
	Kind  wasm.ElementSegmentKind
	Funcs []uint32 // nil once dropped
}

// DataInstance is the runtime form of a data segment: its bytes, or nil
// after data.drop (spec §3 "None after data.drop").
type DataInstance struct {
	Bytes []byte // nil once dropped
}

// Store holds all mutable runtime instances for one instantiated module:
// memories, tables, globals, and data/element instances. Every
// cross-reference the interpreter makes is a 32-bit index into one of
// these slices (spec §9).
type Store struct {
	Memories []*Memory
	Tables   []*Table
	Globals  []*Global
	Datas    []*DataInstance
	Elements []*ElementInstance
}

// New allocates empty runtime state; the linker and instance packages
// populate it during instantiation.
func New() *Store {
	return &Store{}
}

// GlobalValue implements wasm.ConstantExpressionContext, letting a global
// initializer reference an already-installed global (spec §4.2: globals
// are installed in declaration order).
func (s *Store) GlobalValue(index uint32) uint64 {
	if int(index) >= len(s.Globals) {
		return 0
	}
	return s.Globals[index].Value
}
