package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/store"
	"github.com/reef-runtime/reef/internal/wasm"
)

func u32(v uint32) *uint32 { return &v }

func TestMemory_GrowWithinMax(t *testing.T) {
	m := store.NewMemory(&wasm.MemoryType{Min: 1, Max: u32(2)})
	require.Equal(t, uint32(1), m.Pages)

	prev := m.Grow(1)
	require.Equal(t, int32(1), prev)
	require.Equal(t, uint32(2), m.Pages)
	require.Len(t, m.Bytes, 2*store.PageSize)
}

func TestMemory_GrowBeyondMaxFails(t *testing.T) {
	m := store.NewMemory(&wasm.MemoryType{Min: 1, Max: u32(1)})
	require.Equal(t, int32(store.GrowFailed), m.Grow(1))
	require.Equal(t, uint32(1), m.Pages)
}

func TestMemory_ReadWriteBoundsChecked(t *testing.T) {
	m := store.NewMemory(&wasm.MemoryType{Min: 1})
	require.NoError(t, m.WriteBytes(0, []byte("hi")))
	b, err := m.ReadBytes(0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), b)

	_, err = m.ReadBytes(store.PageSize-1, 2)
	require.Error(t, err)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapMemoryOutOfBounds, trap.Kind)
}

func TestMemory_SnapshotPartsExcludesIgnoredRegion(t *testing.T) {
	m := store.NewMemory(&wasm.MemoryType{Min: 1})
	require.NoError(t, m.WriteBytes(10, []byte("dataset-bytes")))
	m.SetIgnoredRegion(10, 13)

	before, after := m.SnapshotParts()
	require.Len(t, before, 10)
	require.Len(t, after, store.PageSize-23)
	require.Equal(t, len(before)+len(after), store.PageSize-13)
}

func TestMemory_SnapshotPartsNoIgnoredRegion(t *testing.T) {
	m := store.NewMemory(&wasm.MemoryType{Min: 1})
	before, after := m.SnapshotParts()
	require.Len(t, before, store.PageSize)
	require.Nil(t, after)
}

func TestTable_SetGrowsLazilyUpToMax(t *testing.T) {
	tbl := store.NewTable(&wasm.TableType{Min: 1, Max: u32(4)})
	require.NoError(t, tbl.Set(3, 7))
	elem, err := tbl.Get(3)
	require.NoError(t, err)
	require.True(t, elem.Initialized)
	require.Equal(t, uint32(7), elem.FuncIndex)
}

func TestTable_SetBeyondMaxTraps(t *testing.T) {
	tbl := store.NewTable(&wasm.TableType{Min: 1, Max: u32(2)})
	err := tbl.Set(5, 1)
	require.Error(t, err)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapTableOutOfBounds, trap.Kind)
}

func TestTable_GetOutOfBoundsTraps(t *testing.T) {
	tbl := store.NewTable(&wasm.TableType{Min: 1})
	_, err := tbl.Get(5)
	require.Error(t, err)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapTableOutOfBounds, trap.Kind)
}
