package store

import "github.com/reef-runtime/reef/internal/wasm"

// TableElement is one slot of a table: either Uninitialized or an
// Initialized reference to a function index, per spec §3.
type TableElement struct {
	Initialized bool
	FuncIndex   uint32
}

// Table is one table instance.
type Table struct {
	Type     *wasm.TableType
	Elements []TableElement
}

// NewTable allocates a table of all-Uninitialized elements at its type's
// declared initial size.
func NewTable(t *wasm.TableType) *Table {
	return &Table{Type: t, Elements: make([]TableElement, t.Min)}
}

// Grow implements table.grow: appends delta Uninitialized elements if the
// new size is within the declared max, returning the pre-grow size or
// GrowFailed.
func (t *Table) Grow(delta uint32) int32 {
	newSize := uint64(len(t.Elements)) + uint64(delta)
	if t.Type.Max != nil && newSize > uint64(*t.Type.Max) {
		return GrowFailed
	}
	prev := len(t.Elements)
	grown := make([]TableElement, newSize)
	copy(grown, t.Elements)
	t.Elements = grown
	return int32(prev)
}

// Get returns the element at index, or a TableOutOfBounds trap.
func (t *Table) Get(index uint32) (TableElement, error) {
	if int(index) >= len(t.Elements) {
		return TableElement{}, &wasm.TrapError{Kind: wasm.TrapTableOutOfBounds}
	}
	return t.Elements[index], nil
}

// Set installs funcIndex at index, growing the table (up to its declared
// max) if index is beyond the current size, per spec §4.5 "lazy growth on
// set allowed up to declared max, else TableOutOfBounds".
func (t *Table) Set(index uint32, funcIndex uint32) error {
	if int(index) >= len(t.Elements) {
		if t.Type.Max != nil && uint64(index) >= uint64(*t.Type.Max) {
			return &wasm.TrapError{Kind: wasm.TrapTableOutOfBounds}
		}
		grown := make([]TableElement, index+1)
		copy(grown, t.Elements)
		t.Elements = grown
	}
	t.Elements[index] = TableElement{Initialized: true, FuncIndex: funcIndex}
	return nil
}
