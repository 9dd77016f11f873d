// Package hostabi implements the six reef.* host imports a user module
// links against (spec §4.8): log, progress, sleep, dataset_len,
// dataset_write, and result. It is grounded on the teacher's host-module
// pattern (internal/wasm/bench and the wasi_snapshot_preview1 package build
// a "module name -> host functions" table against a shared context), but
// here a Host struct, not a captured closure table, carries the per-job
// state so one instance can be reused across a snapshot/restore cycle.
package hostabi

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/wasm"
)

// ModuleName is the import module name user code links reef.* functions
// against.
const ModuleName = "reef"

// Sink receives a job's observable events in strict program order (spec §5
// "Ordering"): log lines, progress reports, and the final result
// declaration. A scheduler implements this to forward events to the
// manager.
type Sink interface {
	Log(line string)
	Progress(fraction float32) error
	Result(resultType api.ResultType, data []byte)
}

// Host is the per-job host-import state bound under ModuleName. Register
// installs its methods into a linker.Imports set; Memory() is supplied
// per-call by the interpreter via linker.HostCallContext, never stored here,
// so a Host survives a snapshot/restore cycle unchanged.
type Host struct {
	log     *logrus.Entry
	sink    Sink
	dataset []byte

	sleeping   bool
	sleepUntil time.Time
}

// New returns a Host ready to be registered against one job's instance.
func New(log *logrus.Entry, sink Sink, dataset []byte) *Host {
	return &Host{log: log, sink: sink, dataset: dataset}
}

// Register installs all six reef.* imports into imports.
func (h *Host) Register(imports *linker.Imports) {
	imports.AddFunc(ModuleName, "log", &linker.HostFunc{
		Type: &wasm.FunctionType{Params: []byte{api.ValueTypeI32, api.ValueTypeI32}},
		Call: h.log_,
	})
	imports.AddFunc(ModuleName, "progress", &linker.HostFunc{
		Type: &wasm.FunctionType{Params: []byte{api.ValueTypeF32}},
		Call: h.progress,
	})
	imports.AddFunc(ModuleName, "sleep", &linker.HostFunc{
		Type: &wasm.FunctionType{Params: []byte{api.ValueTypeF32}},
		Call: h.sleep,
	})
	imports.AddFunc(ModuleName, "dataset_len", &linker.HostFunc{
		Type: &wasm.FunctionType{Results: []byte{api.ValueTypeI32}},
		Call: h.datasetLen,
	})
	imports.AddFunc(ModuleName, "dataset_write", &linker.HostFunc{
		Type: &wasm.FunctionType{Params: []byte{api.ValueTypeI32}},
		Call: h.datasetWrite,
	})
	imports.AddFunc(ModuleName, "result", &linker.HostFunc{
		Type: &wasm.FunctionType{Params: []byte{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}},
		Call: h.result,
	})
}

func (h *Host) log_(ctx linker.HostCallContext, args []uint64) ([]uint64, error) {
	ptr, length := uint32(args[0]), uint32(args[1])
	b, err := ctx.Memory().ReadBytes(ptr, length)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("hostabi: reef.log: invalid UTF-8 at [%d, %d)", ptr, ptr+length)
	}
	line := string(b)
	if h.log != nil {
		h.log.Info(line)
	}
	if h.sink != nil {
		h.sink.Log(line)
	}
	return nil, nil
}

func (h *Host) progress(_ linker.HostCallContext, args []uint64) ([]uint64, error) {
	fraction := api.DecodeF32(args[0])
	if fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("hostabi: reef.progress: fraction %f outside [0.0, 1.0]", fraction)
	}
	if h.sink != nil {
		if err := h.sink.Progress(fraction); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// sleep requests a wall-clock pause. The call returns PauseExecution on
// every re-entry until the deadline has passed, at which point it returns
// normally and execution resumes (spec §4.8/§9).
func (h *Host) sleep(_ linker.HostCallContext, args []uint64) ([]uint64, error) {
	seconds := api.DecodeF32(args[0])
	if !h.sleeping {
		h.sleeping = true
		h.sleepUntil = time.Now().Add(time.Duration(seconds * float32(time.Second)))
	}
	if time.Now().Before(h.sleepUntil) {
		return nil, linker.ErrPauseExecution
	}
	h.sleeping = false
	return nil, nil
}

// ExtraData serializes the host-side state that must round-trip across a
// snapshot/restore cycle (spec §4.7/§9 extra_data blob): currently just an
// in-progress reef.sleep deadline. It is expressed as a remaining duration,
// not an absolute deadline, so a handle migrated to a worker with a
// different wall clock still sleeps no earlier than the original deadline.
func (h *Host) ExtraData() []byte {
	if !h.sleeping {
		return []byte{0}
	}
	remaining := time.Until(h.sleepUntil)
	if remaining < 0 {
		remaining = 0
	}
	buf := make([]byte, 9)
	buf[0] = 1
	binary.LittleEndian.PutUint64(buf[1:], uint64(remaining))
	return buf
}

// RestoreExtraData reinstalls host-side state from a blob produced by
// ExtraData, re-anchoring any in-progress sleep deadline to now. Callers
// restoring an ExecHandle must invoke this with the extra_data returned
// alongside it before resuming Run.
func (h *Host) RestoreExtraData(data []byte) error {
	if len(data) == 0 || data[0] == 0 {
		h.sleeping = false
		return nil
	}
	if len(data) != 9 {
		return fmt.Errorf("hostabi: restore extra data: want 9 bytes, have %d", len(data))
	}
	h.sleeping = true
	h.sleepUntil = time.Now().Add(time.Duration(binary.LittleEndian.Uint64(data[1:])))
	return nil
}

func (h *Host) datasetLen(_ linker.HostCallContext, _ []uint64) ([]uint64, error) {
	return []uint64{uint64(uint32(len(h.dataset)))}, nil
}

// datasetWrite copies the dataset into memory 0 at ptr and marks
// [ptr, ptr+len) as the ignored byte region (spec §4.3/§4.8). The host may
// free its own copy after this call; Host retains it for a future
// re-materialization after snapshot restore.
func (h *Host) datasetWrite(ctx linker.HostCallContext, args []uint64) ([]uint64, error) {
	ptr := uint32(args[0])
	mem := ctx.Memory()
	if err := mem.WriteBytes(ptr, h.dataset); err != nil {
		return nil, err
	}
	mem.SetIgnoredRegion(ptr, uint32(len(h.dataset)))
	return nil, nil
}

func (h *Host) result(ctx linker.HostCallContext, args []uint64) ([]uint64, error) {
	typeTag, ptr, length := api.ResultType(args[0]), uint32(args[1]), uint32(args[2])
	b, err := ctx.Memory().ReadBytes(ptr, length)
	if err != nil {
		return nil, err
	}
	if h.sink != nil {
		h.sink.Result(typeTag, append([]byte(nil), b...))
	}
	return nil, nil
}
