// Package store holds the mutable runtime state of an instantiated module:
// memories, tables, globals, and data/element instances (spec §3). A Store
// is created fresh at instantiation or rebuilt from a deserialized snapshot
// (internal/snapshot); the interpreter only ever touches state through this
// package's indices, never through pointers, so a Store is trivially
// movable between hosts (spec §9 "arena + index").
package store

import (
	"encoding/binary"

	"github.com/reef-runtime/reef/internal/wasm"
)

// PageSize is the fixed Wasm linear memory page size in bytes.
const PageSize = 65536

// MaxPages is the absolute cap on memory size regardless of a module's
// declared max: 65536 pages = 4 GiB, the largest a 32-bit memory can
// address.
const MaxPages = 65536

// GrowFailed is the sentinel return value of Memory.Grow on failure.
const GrowFailed = -1

// IgnoredRegion is the carve-out inside a memory excluded from snapshots
// (spec §4.3): the host sets it immediately after reef.dataset_write
// materializes the dataset into memory.
type IgnoredRegion struct {
	Offset uint32
	Length uint32
}

// Empty reports whether the region carves out zero bytes.
func (r IgnoredRegion) Empty() bool { return r.Length == 0 }

// Memory is one linear memory instance.
type Memory struct {
	Type    *wasm.MemoryType
	Bytes   []byte
	Pages   uint32
	Ignored IgnoredRegion
}

// NewMemory allocates a zero-initialized memory at its type's declared
// initial page count.
func NewMemory(t *wasm.MemoryType) *Memory {
	return &Memory{
		Type:  t,
		Bytes: make([]byte, uint64(t.Min)*PageSize),
		Pages: t.Min,
	}
}

// Grow implements memory.grow: zero-extends the buffer if the new size is
// within the declared max (or MaxPages, if no max is declared), returning
// the pre-grow page count, or GrowFailed leaving memory untouched.
func (m *Memory) Grow(delta uint32) int32 {
	newPages := uint64(m.Pages) + uint64(delta)
	limit := uint64(MaxPages)
	if m.Type.Max != nil && uint64(*m.Type.Max) < limit {
		limit = uint64(*m.Type.Max)
	}
	if newPages > limit {
		return GrowFailed
	}
	prev := m.Pages
	newBytes := make([]byte, newPages*PageSize)
	copy(newBytes, m.Bytes)
	m.Bytes = newBytes
	m.Pages = uint32(newPages)
	return int32(prev)
}

// checkBounds returns a MemoryOutOfBounds trap if [offset, offset+length)
// is not entirely within the current memory, per spec §4.3/§4.5.
func (m *Memory) checkBounds(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.Bytes)) {
		return wasm.NewMemoryOutOfBoundsError(offset, length, uint32(len(m.Bytes)))
	}
	return nil
}

// ReadBytes reads length bytes at offset, bounds-checked.
func (m *Memory) ReadBytes(offset, length uint32) ([]byte, error) {
	if err := m.checkBounds(offset, length); err != nil {
		return nil, err
	}
	return m.Bytes[offset : offset+length], nil
}

// WriteBytes writes data at offset, bounds-checked.
func (m *Memory) WriteBytes(offset uint32, data []byte) error {
	if err := m.checkBounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.Bytes[offset:], data)
	return nil
}

// ReadUint32LE reads a little-endian uint32 at offset, bounds-checked.
func (m *Memory) ReadUint32LE(offset uint32) (uint32, error) {
	if err := m.checkBounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.Bytes[offset:]), nil
}

// WriteUint32LE writes a little-endian uint32 at offset, bounds-checked.
func (m *Memory) WriteUint32LE(offset, v uint32) error {
	if err := m.checkBounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.Bytes[offset:], v)
	return nil
}

// ReadUint64LE reads a little-endian uint64 at offset, bounds-checked.
func (m *Memory) ReadUint64LE(offset uint32) (uint64, error) {
	if err := m.checkBounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.Bytes[offset:]), nil
}

// WriteUint64LE writes a little-endian uint64 at offset, bounds-checked.
func (m *Memory) WriteUint64LE(offset uint32, v uint64) error {
	if err := m.checkBounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.Bytes[offset:], v)
	return nil
}

// SetIgnoredRegion records the dataset carve-out. Called by the
// reef.dataset_write host import immediately after materializing the
// dataset into memory (spec §4.3).
func (m *Memory) SetIgnoredRegion(offset, length uint32) {
	m.Ignored = IgnoredRegion{Offset: offset, Length: length}
}

// SnapshotParts splits the memory's bytes into the two contiguous runs
// outside the ignored region, per the §4.7 serialization layout: bytes
// before the region and bytes after it. Either may be empty.
func (m *Memory) SnapshotParts() (before, after []byte) {
	if m.Ignored.Empty() {
		return m.Bytes, nil
	}
	start := m.Ignored.Offset
	end := m.Ignored.Offset + m.Ignored.Length
	return m.Bytes[:start], m.Bytes[end:]
}
