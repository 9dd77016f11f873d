package workerproto_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/workerproto"
)

func startServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(workerproto.ConnectPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		handle(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestDial_SendStartJob_WorkerReceives(t *testing.T) {
	startJob := &workerproto.StartJob{
		WorkerIndex: 2,
		JobID:       "job-42",
		DatasetID:   "ds-1",
		Program:     []byte{0x00, 0x61, 0x73, 0x6d},
	}

	url := startServer(t, func(conn *websocket.Conn) {
		var env workerproto.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		require.Equal(t, workerproto.KindStateSync, env.Kind)

		require.NoError(t, conn.WriteJSON(mustEnvelope(t, workerproto.KindStartJob, startJob)))
	})

	conn, err := workerproto.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SendStateSync(&workerproto.StateSync{
		WorkerIndex: 2,
		JobID:       "job-42",
		Progress:    0.5,
		Logs:        []workerproto.LogEntry{{Kind: workerproto.LogKindInfo, Content: "hello"}},
	}))

	kind, payload, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, workerproto.KindStartJob, kind)
	got, ok := payload.(*workerproto.StartJob)
	require.True(t, ok)
	require.Equal(t, startJob.JobID, got.JobID)
	require.Equal(t, startJob.Program, got.Program)
}

func TestDial_SendResult_WorkerReceivesAbort(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn) {
		var env workerproto.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		require.Equal(t, workerproto.KindResult, env.Kind)

		require.NoError(t, conn.WriteJSON(mustEnvelope(t, workerproto.KindAbortJob, &workerproto.AbortJob{JobID: "job-7"})))
	})

	conn, err := workerproto.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SendResult(&workerproto.Result{
		WorkerIndex: 0,
		JobID:       "job-7",
		Success:     true,
		ContentType: api.ResultTypePlainString,
		Contents:    []byte("done"),
	}))

	kind, payload, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, workerproto.KindAbortJob, kind)
	got, ok := payload.(*workerproto.AbortJob)
	require.True(t, ok)
	require.Equal(t, "job-7", got.JobID)
}

func mustEnvelope(t *testing.T, kind workerproto.MessageKind, payload any) *workerproto.Envelope {
	t.Helper()
	env, err := workerproto.NewEnvelope(kind, payload)
	require.NoError(t, err)
	return env
}
