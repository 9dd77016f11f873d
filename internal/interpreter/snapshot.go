package interpreter

import (
	"fmt"

	"github.com/reef-runtime/reef/internal/instance"
	"github.com/reef-runtime/reef/internal/snapshot"
	"github.com/reef-runtime/reef/internal/store"
	"github.com/reef-runtime/reef/internal/wasm"
)

// Snapshot serializes h per §4.7. extraData is an opaque host blob (e.g. the
// declared result type tag and any partial result bytes) round-tripped
// verbatim. Snapshots are only ever taken between Run calls, never mid-
// instruction, so this never races the interpreter (spec §5 "Ordering").
func (h *ExecHandle) Snapshot(extraData []byte, gzipWrap bool) ([]byte, error) {
	mem := h.Inst.Memory0()
	if mem == nil {
		return nil, fmt.Errorf("interpreter: snapshot: instance has no memory 0")
	}
	before, after := mem.SnapshotParts()
	s := &snapshot.State{
		CallStack:  make([]snapshot.CallFrame, len(h.CallStack)),
		ValueStack: append([]uint64(nil), h.ValueStack...),
		BlockStack: make([]snapshot.BlockFrame, len(h.BlockStack)),
		Memory: snapshot.Memory{
			HasMax:        mem.Type.Max != nil,
			PageCount:     mem.Pages,
			IgnoredOffset: mem.Ignored.Offset,
			IgnoredLength: mem.Ignored.Length,
			BytesBefore:   append([]byte(nil), before...),
			BytesAfter:    append([]byte(nil), after...),
		},
		Globals:   make([]uint64, len(h.Inst.Store.Globals)),
		ExtraData: extraData,
	}
	if mem.Type.Max != nil {
		s.Memory.MaxPages = *mem.Type.Max
	}
	for i, f := range h.CallStack {
		s.CallStack[i] = snapshot.CallFrame{
			FuncIndex:      f.FuncIndex,
			IP:             f.IP,
			BlockStackBase: uint32(f.BlockStackBase),
			ResultCount:    uint32(f.ResultCount),
			Locals:         append([]uint64(nil), f.Locals...),
		}
	}
	for i, f := range h.BlockStack {
		s.BlockStack[i] = snapshot.BlockFrame{
			Kind:           byte(f.Kind),
			BodyStart:      f.BodyStart,
			EndOffset:      f.EndOffset,
			ValueStackBase: uint32(f.ValueStackBase),
			ParamCount:     uint32(f.ParamCount),
			ResultCount:    uint32(f.ResultCount),
		}
	}
	for i, g := range h.Inst.Store.Globals {
		s.Globals[i] = g.Value
	}
	return snapshot.Encode(s, gzipWrap)
}

// Restore rebuilds an ExecHandle against inst from data produced by
// Snapshot. The ignored byte region is left zeroed; the caller must invoke
// the host's dataset_write import to rematerialize it (§4.7). It returns
// the extra_data blob round-tripped from the original Snapshot call.
//
// inst must already be instantiated against the same module the snapshot
// was taken from: Restore only overwrites instance-level mutable state
// (memory 0, globals) and builds fresh stacks, following §4.2's "an
// Instance is created either fresh or from a snapshot" lifecycle.
func Restore(inst *instance.Instance, data []byte) (h *ExecHandle, extraData []byte, err error) {
	s, err := snapshot.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	mem := inst.Memory0()
	if mem == nil {
		return nil, nil, fmt.Errorf("interpreter: restore: instance has no memory 0")
	}
	if err := restoreMemory(mem, s.Memory); err != nil {
		return nil, nil, err
	}
	if len(s.Globals) != len(inst.Store.Globals) {
		return nil, nil, fmt.Errorf("interpreter: restore: global count mismatch: snapshot has %d, module has %d", len(s.Globals), len(inst.Store.Globals))
	}
	for i, v := range s.Globals {
		inst.Store.Globals[i].Value = v
	}

	h = &ExecHandle{Inst: inst}
	h.ValueStack = append([]uint64(nil), s.ValueStack...)
	h.BlockStack = make([]blockFrame, len(s.BlockStack))
	for i, f := range s.BlockStack {
		h.BlockStack[i] = blockFrame{
			Kind:           wasm.BlockKind(f.Kind),
			BodyStart:      f.BodyStart,
			EndOffset:      f.EndOffset,
			ValueStackBase: int(f.ValueStackBase),
			ParamCount:     int(f.ParamCount),
			ResultCount:    int(f.ResultCount),
		}
	}
	h.CallStack = make([]callFrame, len(s.CallStack))
	for i, f := range s.CallStack {
		fn, err := funcAt(inst, f.FuncIndex)
		if err != nil {
			return nil, nil, err
		}
		h.CallStack[i] = callFrame{
			FuncIndex:      f.FuncIndex,
			Body:           fn.Body,
			IP:             f.IP,
			BlockStackBase: int(f.BlockStackBase),
			ResultCount:    int(f.ResultCount),
			Locals:         append([]uint64(nil), f.Locals...),
		}
	}
	return h, s.ExtraData, nil
}

func funcAt(inst *instance.Instance, index uint32) (*wasm.Function, error) {
	if int(index) >= len(inst.Funcs) || inst.Funcs[index].IsHost {
		return nil, fmt.Errorf("interpreter: restore: function index %d is not a callable Wasm function", index)
	}
	return inst.Funcs[index].WasmFunc, nil
}

func restoreMemory(mem *store.Memory, m snapshot.Memory) error {
	mem.Bytes = make([]byte, uint64(m.PageCount)*store.PageSize)
	mem.Pages = m.PageCount
	start := m.IgnoredOffset
	end := m.IgnoredOffset + m.IgnoredLength
	if uint64(end) > uint64(len(mem.Bytes)) {
		return fmt.Errorf("interpreter: restore: ignored region [%d,%d) exceeds restored memory of %d bytes", start, end, len(mem.Bytes))
	}
	copy(mem.Bytes[:start], m.BytesBefore)
	copy(mem.Bytes[end:], m.BytesAfter)
	mem.SetIgnoredRegion(m.IgnoredOffset, m.IgnoredLength)
	return nil
}
