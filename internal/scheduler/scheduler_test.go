package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/decoder"
	"github.com/reef-runtime/reef/internal/instance"
	"github.com/reef-runtime/reef/internal/interpreter"
	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/scheduler"
)

func nameBytes(s string) []byte {
	return append(leb128.EncodeUint32(uint32(len(s))), []byte(s)...)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	out = append(out, body...)
	return out
}

// buildLoopModule builds reef_main looping forever via an unconditional
// back-edge, so a scheduler.Job run against it never reaches Done on its
// own — only Abort/SaveState end it. It declares a one-page memory, since
// snapshotting works on memory 0.
func buildLoopModule() []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)
	typeSec := []byte{0x01, 0x60, 0x00, 0x00}
	b = append(b, section(1, typeSec)...)
	funcSec := append([]byte{0x01}, leb128.EncodeUint32(0)...)
	b = append(b, section(3, funcSec)...)
	memSec := []byte{0x01, 0x00, 0x01}
	b = append(b, section(5, memSec)...)
	var expSec []byte
	expSec = append(expSec, 0x01)
	expSec = append(expSec, nameBytes("reef_main")...)
	expSec = append(expSec, 0x00, 0x00)
	b = append(b, section(7, expSec)...)
	body := []byte{0x00,
		0x03, 0x40, // loop
		0x0c, 0x00, // br 0
		0x0b, // end loop
	}
	codeSec := append([]byte{0x01}, leb128.EncodeUint32(uint32(len(body)))...)
	codeSec = append(codeSec, body...)
	b = append(b, section(10, codeSec)...)
	return b
}

func newJob(t *testing.T, id string, budget uint64) *scheduler.Job {
	t.Helper()
	m, err := decoder.Parse(buildLoopModule(), decoder.Options{})
	require.NoError(t, err)
	inst, err := instance.Instantiate(m, linker.NewImports())
	require.NoError(t, err)
	h, err := interpreter.NewExecHandle(inst, "reef_main", nil)
	require.NoError(t, err)
	return scheduler.NewJob(id, h, budget)
}

func TestJobRun_AbortStopsLoop(t *testing.T) {
	j := newJob(t, "job-1", 10)
	j.SetSignal(scheduler.Abort)
	outcome, data, err := j.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, scheduler.OutcomeAborted, outcome)
	require.Nil(t, data)
}

func TestJobRun_SaveStateSnapshotsBetweenSlices(t *testing.T) {
	j := newJob(t, "job-2", 10)
	j.SetSignal(scheduler.SaveState)

	snapshotFn := func(h *interpreter.ExecHandle) ([]byte, error) {
		return h.Snapshot(nil, false)
	}
	outcome, data, err := j.Run(context.Background(), snapshotFn)
	require.NoError(t, err)
	require.Equal(t, scheduler.OutcomePaused, outcome)
	require.NotEmpty(t, data)
}

func TestJobRun_ContextCancelAborts(t *testing.T) {
	j := newJob(t, "job-3", 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, _, err := j.Run(ctx, nil)
	require.Error(t, err)
	require.Equal(t, scheduler.OutcomeAborted, outcome)
}

func TestPool_RunAllAbortsEveryJob(t *testing.T) {
	pool := scheduler.NewPool(2)
	jobs := []*scheduler.Job{
		newJob(t, "a", 5),
		newJob(t, "b", 5),
		newJob(t, "c", 5),
	}
	for _, j := range jobs {
		j.SetSignal(scheduler.Abort)
	}
	err := pool.RunAll(context.Background(), jobs, func(ctx context.Context, j *scheduler.Job) error {
		outcome, _, err := j.Run(ctx, nil)
		require.Equal(t, scheduler.OutcomeAborted, outcome)
		return err
	})
	require.NoError(t, err)
}
