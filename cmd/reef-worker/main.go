// Command reef-worker registers with a manager over the node-registration
// socket (spec §6), then runs jobs it is assigned against the Wasm
// interpreter core, reporting progress and results back over the same
// socket.
//
// Grounded on the teacher pack's grafana-k6 cmd/root.go: a single cobra
// root command with a flag set, log setup done once at
// startup, Execute() as the sole package entry point called from main.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/decoder"
	"github.com/reef-runtime/reef/internal/hostabi"
	"github.com/reef-runtime/reef/internal/instance"
	"github.com/reef-runtime/reef/internal/interpreter"
	"github.com/reef-runtime/reef/internal/linker"
	"github.com/reef-runtime/reef/internal/rlog"
	"github.com/reef-runtime/reef/internal/scheduler"
	"github.com/reef-runtime/reef/internal/workerproto"
)

type workerFlags struct {
	managerURL  string
	workerIndex int
	logLevel    string
	logJSON     bool
	slots       int
}

func newRootCmd() *cobra.Command {
	flags := &workerFlags{}

	root := &cobra.Command{
		Use:   "reef-worker",
		Short: "Run a Reef worker node",
		Long: `reef-worker connects to a Reef manager, accepts compiled Wasm jobs,
and executes them against the Reef interpreter core, pausing and resuming
jobs as instructed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), flags)
		},
	}

	fs := pflag.NewFlagSet("reef-worker", pflag.ExitOnError)
	fs.StringVar(&flags.managerURL, "manager-url", "http://127.0.0.1:8080", "manager base URL (http:// or https://); the registration socket is dialed at the equivalent ws(s):// URL")
	fs.IntVar(&flags.workerIndex, "worker-index", 0, "this worker's slot index, assigned by the manager's deployment config")
	fs.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&flags.logJSON, "log-json", false, "emit logs as JSON instead of text")
	fs.IntVar(&flags.slots, "slots", 4, "number of jobs this worker runs concurrently")
	root.Flags().SortFlags = false
	root.Flags().AddFlagSet(fs)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorker(ctx context.Context, flags *workerFlags) error {
	logger, err := rlog.New(flags.logLevel, flags.logJSON)
	if err != nil {
		return err
	}

	header := make(http.Header)
	header.Set("X-Reef-Worker-Index", fmt.Sprint(flags.workerIndex))

	conn, err := workerproto.Dial(ctx, toWebSocketURL(flags.managerURL), header)
	if err != nil {
		return fmt.Errorf("reef-worker: %w", err)
	}
	defer conn.Close()
	logger.WithField("manager_url", flags.managerURL).Info("connected to manager")

	runner := &jobRunner{
		managerURL: flags.managerURL,
		conn:       conn,
		logger:     logger,
		slots:      make(chan struct{}, flags.slots),
		jobs:       make(map[string]context.CancelFunc),
	}
	return runner.loop(ctx)
}

// jobRunner dispatches StartJob/AbortJob messages from the manager onto
// worker-slot-bounded goroutines (spec §5: "one scheduler thread per
// worker slot") and reports StateSync/Result back.
type jobRunner struct {
	managerURL string
	conn       *workerproto.Conn
	logger     *logrus.Logger
	slots      chan struct{}
	jobs       map[string]context.CancelFunc
}

func (r *jobRunner) loop(ctx context.Context) error {
	for {
		kind, payload, err := r.conn.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reef-worker: recv: %w", err)
		}

		switch kind {
		case workerproto.KindStartJob:
			job := payload.(*workerproto.StartJob)
			jobCtx, cancel := context.WithCancel(ctx)
			r.jobs[job.JobID] = cancel
			r.logger.WithField("job_id", job.JobID).Info("job assigned")
			go func() {
				r.slots <- struct{}{}
				defer func() { <-r.slots }()
				r.runJob(jobCtx, job)
			}()
		case workerproto.KindAbortJob:
			abort := payload.(*workerproto.AbortJob)
			if cancel, ok := r.jobs[abort.JobID]; ok {
				cancel()
				delete(r.jobs, abort.JobID)
			}
		}
	}
}

// sink forwards reef.* host-import events to StateSync/Result messages.
type sink struct {
	jobID       string
	workerIndex int
	conn        *workerproto.Conn
	logs        []workerproto.LogEntry
}

func (s *sink) Log(line string) {
	s.logs = append(s.logs, workerproto.LogEntry{Kind: workerproto.LogKindInfo, Content: line})
}

func (s *sink) Progress(fraction float32) error {
	return s.conn.SendStateSync(&workerproto.StateSync{
		WorkerIndex: s.workerIndex,
		JobID:       s.jobID,
		Progress:    fraction,
		Logs:        s.drainLogs(),
	})
}

func (s *sink) Result(resultType api.ResultType, data []byte) {
	_ = s.conn.SendResult(&workerproto.Result{
		WorkerIndex: s.workerIndex,
		JobID:       s.jobID,
		Success:     true,
		ContentType: resultType,
		Contents:    data,
	})
}

func (s *sink) drainLogs() []workerproto.LogEntry {
	logs := s.logs
	s.logs = nil
	return logs
}

func (r *jobRunner) runJob(ctx context.Context, job *workerproto.StartJob) {
	dataset, err := fetchDataset(ctx, r.managerURL, job.DatasetID)
	if err != nil {
		r.reportFailure(job, err)
		return
	}

	mod, err := decoder.Parse(job.Program, decoder.Options{})
	if err != nil {
		r.reportFailure(job, err)
		return
	}

	s := &sink{jobID: job.JobID, workerIndex: job.WorkerIndex, conn: r.conn}
	host := hostabi.New(nil, s, dataset)
	imports := linker.NewImports()
	host.Register(imports)

	inst, err := instance.Instantiate(mod, imports)
	if err != nil {
		r.reportFailure(job, err)
		return
	}

	var handle *interpreter.ExecHandle
	if len(job.InterpreterState) > 0 {
		var extraData []byte
		handle, extraData, err = interpreter.Restore(inst, job.InterpreterState)
		if err == nil {
			err = host.RestoreExtraData(extraData)
		}
	} else {
		handle, err = interpreter.NewExecHandle(inst, "reef_main", nil)
	}
	if err != nil {
		r.reportFailure(job, err)
		return
	}

	schedJob := scheduler.NewJob(job.JobID, handle, scheduler.CycleBudget)
	outcome, snapshot, err := schedJob.Run(ctx, func(h *interpreter.ExecHandle) ([]byte, error) {
		return h.Snapshot(host.ExtraData(), true)
	})
	if err != nil {
		r.reportFailure(job, err)
		return
	}

	switch outcome {
	case scheduler.OutcomePaused:
		_ = r.conn.SendStateSync(&workerproto.StateSync{
			WorkerIndex:      job.WorkerIndex,
			JobID:            job.JobID,
			InterpreterState: snapshot,
			Logs:             s.drainLogs(),
		})
	case scheduler.OutcomeDone:
		_ = r.conn.SendResult(&workerproto.Result{
			WorkerIndex: job.WorkerIndex,
			JobID:       job.JobID,
			Success:     true,
		})
	case scheduler.OutcomeAborted:
		// Aborted jobs report nothing further; the manager already knows.
	case scheduler.OutcomeErrored:
		r.reportFailure(job, fmt.Errorf("job %s: interpreter error", job.JobID))
	}
}

func (r *jobRunner) reportFailure(job *workerproto.StartJob, err error) {
	_ = r.conn.SendResult(&workerproto.Result{
		WorkerIndex: job.WorkerIndex,
		JobID:       job.JobID,
		Success:     false,
		ContentType: api.ResultTypePlainString,
		Contents:    []byte(err.Error()),
	})
}

// toWebSocketURL swaps an http(s) base URL's scheme for the matching
// ws(s) one (workerproto.Dial always speaks WebSocket).
func toWebSocketURL(managerURL string) string {
	switch {
	case strings.HasPrefix(managerURL, "https://"):
		return "wss://" + strings.TrimPrefix(managerURL, "https://")
	case strings.HasPrefix(managerURL, "http://"):
		return "ws://" + strings.TrimPrefix(managerURL, "http://")
	default:
		return managerURL
	}
}

// fetchDataset retrieves dataset bytes ahead of instantiation (spec §6
// "Dataset fetch").
func fetchDataset(ctx context.Context, managerURL, datasetID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, managerURL+"/api/dataset/"+datasetID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reef-worker: fetch dataset %s: %w", datasetID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reef-worker: fetch dataset %s: status %d", datasetID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
