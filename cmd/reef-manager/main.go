// Command reef-manager is a minimal standalone manager: it accepts worker
// registrations at /api/node/connect, serves dataset bytes at
// /api/dataset/{id}, can send StartJob messages to registered workers
// (broker.Dispatch), and logs the StateSync/Result messages they send
// back. The broker/
// scheduling policy that decides which worker gets which job is out of
// scope for the core (spec §1); this binary exists so the registration
// socket and dataset endpoint named in §6 have a real, runnable home.
//
// Grounded on the teacher pack's grafana-k6 cmd/root.go for the cobra
// wiring, and its websocket server tests (tests/ws/server.go) for the
// http.ServeMux + websocket.Upgrader shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reef-runtime/reef/internal/rlog"
	"github.com/reef-runtime/reef/internal/workerproto"
)

type managerFlags struct {
	listenAddr string
	logLevel   string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	flags := &managerFlags{}

	root := &cobra.Command{
		Use:   "reef-manager",
		Short: "Run a Reef manager node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManager(cmd.Context(), flags)
		},
	}

	fs := pflag.NewFlagSet("reef-manager", pflag.ExitOnError)
	fs.StringVar(&flags.listenAddr, "listen", ":8080", "HTTP/WebSocket listen address")
	fs.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&flags.logJSON, "log-json", false, "emit logs as JSON instead of text")
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

func runManager(ctx context.Context, flags *managerFlags) error {
	logger, err := rlog.New(flags.logLevel, flags.logJSON)
	if err != nil {
		return err
	}

	b := newBroker(logger)

	mux := http.NewServeMux()
	mux.HandleFunc(workerproto.ConnectPath, b.handleConnect)
	mux.HandleFunc("/api/dataset/", b.handleDataset)

	srv := &http.Server{Addr: flags.listenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.WithField("listen", flags.listenAddr).Info("manager listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("reef-manager: %w", err)
	}
	return nil
}

// broker holds one *workerproto.Conn per registered worker and the
// in-memory datasets it can serve; it has no scheduling policy of its
// own, only registration bookkeeping and message relay.
type broker struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	workers map[int]*workerproto.Conn

	datasetsMu sync.Mutex
	datasets   map[string][]byte
}

func newBroker(logger *logrus.Logger) *broker {
	return &broker{
		logger:   logger,
		workers:  make(map[int]*workerproto.Conn),
		datasets: make(map[string][]byte),
	}
}

// handleConnect upgrades the request, keys the resulting Conn by the
// X-Reef-Worker-Index header reef-worker sets, and drains StateSync/
// Result messages from it until the socket closes.
func (b *broker) handleConnect(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn := workerproto.NewConn(ws)

	var workerIndex int
	fmt.Sscanf(r.Header.Get("X-Reef-Worker-Index"), "%d", &workerIndex)

	b.mu.Lock()
	b.workers[workerIndex] = conn
	b.mu.Unlock()
	b.logger.WithField("worker_index", workerIndex).Info("worker registered")

	defer func() {
		b.mu.Lock()
		delete(b.workers, workerIndex)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		kind, payload, err := conn.Recv()
		if err != nil {
			return
		}
		switch kind {
		case workerproto.KindStateSync:
			s := payload.(*workerproto.StateSync)
			b.logger.WithField("job_id", s.JobID).WithField("progress", s.Progress).Debug("state sync")
		case workerproto.KindResult:
			res := payload.(*workerproto.Result)
			b.logger.WithField("job_id", res.JobID).WithField("success", res.Success).Info("job result")
		}
	}
}

// Dispatch sends start to the worker registered at workerIndex, if any
// (exported for an eventual scheduler to call; the core ships no
// scheduling policy of its own).
func (b *broker) Dispatch(workerIndex int, start *workerproto.StartJob) error {
	b.mu.Lock()
	conn, ok := b.workers[workerIndex]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("reef-manager: no worker registered at index %d", workerIndex)
	}
	return conn.SendStartJob(start)
}

func (b *broker) handleDataset(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/dataset/")
	b.datasetsMu.Lock()
	data, ok := b.datasets[id]
	b.datasetsMu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}
