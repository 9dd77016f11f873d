package hostabi_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/decoder"
	"github.com/reef-runtime/reef/internal/hostabi"
	"github.com/reef-runtime/reef/internal/instance"
	"github.com/reef-runtime/reef/internal/interpreter"
	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/linker"
)

type recordingSink struct {
	lines      []string
	progresses []float32
	resultType api.ResultType
	resultData []byte
}

func (s *recordingSink) Log(line string)                 { s.lines = append(s.lines, line) }
func (s *recordingSink) Progress(f float32) error         { s.progresses = append(s.progresses, f); return nil }
func (s *recordingSink) Result(rt api.ResultType, b []byte) { s.resultType = rt; s.resultData = b }

func nameBytes(s string) []byte {
	return append(leb128.EncodeUint32(uint32(len(s))), []byte(s)...)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	out = append(out, body...)
	return out
}

// buildDatasetModule imports reef.dataset_len/dataset_write/log and has
// reef_main call dataset_len, dataset_write at ptr 0, then log the first 5
// bytes at ptr 0.
func buildDatasetModule() []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	// types: 0:()->(i32) [dataset_len], 1:(i32)->() [dataset_write], 2:(i32,i32)->() [log], 3:()->() [reef_main]
	typeSec := []byte{0x04,
		0x60, 0x00, 0x01, 0x7f,
		0x60, 0x01, 0x7f, 0x00,
		0x60, 0x02, 0x7f, 0x7f, 0x00,
		0x60, 0x00, 0x00,
	}
	b = append(b, section(1, typeSec)...)

	// imports: reef.dataset_len type0, reef.dataset_write type1, reef.log type2
	var impSec []byte
	impSec = append(impSec, 0x03)
	impSec = append(impSec, nameBytes("reef")...)
	impSec = append(impSec, nameBytes("dataset_len")...)
	impSec = append(impSec, 0x00, 0x00)
	impSec = append(impSec, nameBytes("reef")...)
	impSec = append(impSec, nameBytes("dataset_write")...)
	impSec = append(impSec, 0x00, 0x01)
	impSec = append(impSec, nameBytes("reef")...)
	impSec = append(impSec, nameBytes("log")...)
	impSec = append(impSec, 0x00, 0x02)
	b = append(b, section(2, impSec)...)

	// function section: func index 3 (after 3 imports) has type 3 (reef_main)
	funcSec := append([]byte{0x01}, leb128.EncodeUint32(3)...)
	b = append(b, section(3, funcSec)...)

	memSec := []byte{0x01, 0x00, 0x01}
	b = append(b, section(5, memSec)...)

	var expSec []byte
	expSec = append(expSec, 0x02)
	expSec = append(expSec, nameBytes("memory")...)
	expSec = append(expSec, 0x02, 0x00)
	expSec = append(expSec, nameBytes("reef_main")...)
	expSec = append(expSec, 0x00, 0x03) // func index 3
	b = append(b, section(7, expSec)...)

	// reef_main body:
	// call 0 (dataset_len); drop
	// i32.const 0; call 1 (dataset_write)
	// i32.const 0; i32.const 5; call 2 (log)
	body := []byte{0x00,
		0x10, 0x00, 0x1a,
		0x41, 0x00, 0x10, 0x01,
		0x41, 0x00, 0x41, 0x05, 0x10, 0x02,
		0x0b,
	}
	codeSec := append([]byte{0x01}, leb128.EncodeUint32(uint32(len(body)))...)
	codeSec = append(codeSec, body...)
	b = append(b, section(10, codeSec)...)

	return b
}

func TestHostImports_DatasetRoundTripThroughLog(t *testing.T) {
	m, err := decoder.Parse(buildDatasetModule(), decoder.Options{})
	require.NoError(t, err)

	sink := &recordingSink{}
	host := hostabi.New(logrus.NewEntry(logrus.New()), sink, []byte("ABCDE12345"))
	imports := linker.NewImports()
	host.Register(imports)

	inst, err := instance.Instantiate(m, imports)
	require.NoError(t, err)

	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	res, err := h.Run(1000)
	require.NoError(t, err)
	require.Equal(t, interpreter.Done, res)

	require.Equal(t, []string{"ABCDE"}, sink.lines)
}

// TestSnapshotRestore_NonZeroEntryFuncIndex exercises the spec §8 round-trip
// invariant against buildDatasetModule, where reef_main is function index 3
// (after the three imported reef.* functions), not 0.
func TestSnapshotRestore_NonZeroEntryFuncIndex(t *testing.T) {
	m, err := decoder.Parse(buildDatasetModule(), decoder.Options{})
	require.NoError(t, err)

	sink := &recordingSink{}
	host := hostabi.New(nil, sink, []byte("ABCDE12345"))
	imports := linker.NewImports()
	host.Register(imports)

	inst, err := instance.Instantiate(m, imports)
	require.NoError(t, err)

	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)

	// Stop after the first instruction so the call stack still holds the
	// reef_main frame (func index 3) when snapshotted.
	res, err := h.Run(1)
	require.NoError(t, err)
	require.Equal(t, interpreter.Incomplete, res)

	data, err := h.Snapshot(nil, true)
	require.NoError(t, err)

	// Restore against a fresh instance, as migration to another worker
	// would: the host's dataset must be supplied again.
	sink2 := &recordingSink{}
	host2 := hostabi.New(nil, sink2, []byte("ABCDE12345"))
	imports2 := linker.NewImports()
	host2.Register(imports2)
	inst2, err := instance.Instantiate(m, imports2)
	require.NoError(t, err)

	restored, extra, err := interpreter.Restore(inst2, data)
	require.NoError(t, err)
	require.Nil(t, extra)

	res, err = restored.Run(1000)
	require.NoError(t, err)
	require.Equal(t, interpreter.Done, res)
	require.Equal(t, []string{"ABCDE"}, sink2.lines)
}

// buildSleepImportModule declares a single import, reef.sleep, and nothing
// else: enough for instance.Instantiate to resolve it into inst.Funcs[0]
// without needing any of the module's own functions.
func buildSleepImportModule() []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	typeSec := []byte{0x01, 0x60, 0x01, 0x7d, 0x00} // (f32) -> ()
	b = append(b, section(1, typeSec)...)

	var impSec []byte
	impSec = append(impSec, 0x01)
	impSec = append(impSec, nameBytes("reef")...)
	impSec = append(impSec, nameBytes("sleep")...)
	impSec = append(impSec, 0x00, 0x00)
	b = append(b, section(2, impSec)...)

	return b
}

// TestHost_ExtraDataRoundTripsSleepDeadline simulates migrating a paused
// reef.sleep to a fresh Host, as a move to a different worker would: the
// in-progress sleep must survive the round trip, so the restored Host
// still pauses.
func TestHost_ExtraDataRoundTripsSleepDeadline(t *testing.T) {
	m, err := decoder.Parse(buildSleepImportModule(), decoder.Options{})
	require.NoError(t, err)

	host := hostabi.New(nil, &recordingSink{}, nil)
	imports := linker.NewImports()
	host.Register(imports)

	inst, err := instance.Instantiate(m, imports)
	require.NoError(t, err)

	sleepImport := inst.Funcs[0].HostFunc
	// Long enough that the deadline is still ahead after the restore below.
	_, err = sleepImport.Call(nil, []uint64{uint64(api.EncodeF32(10))})
	require.ErrorIs(t, err, linker.ErrPauseExecution)

	data := host.ExtraData()
	require.Equal(t, byte(1), data[0])

	host2 := hostabi.New(nil, &recordingSink{}, nil)
	require.NoError(t, host2.RestoreExtraData(data))

	imports2 := linker.NewImports()
	host2.Register(imports2)
	inst2, err := instance.Instantiate(m, imports2)
	require.NoError(t, err)

	// Still sleeping: the remaining duration carried in the extra data has
	// not elapsed yet.
	_, err = inst2.Funcs[0].HostFunc.Call(nil, []uint64{uint64(api.EncodeF32(10))})
	require.ErrorIs(t, err, linker.ErrPauseExecution)
}
