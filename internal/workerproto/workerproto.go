// Package workerproto implements the worker side of the manager wire
// protocol (spec §6): the four JSON message shapes that cross the
// node-registration socket, and the gorilla/websocket connection that
// carries them. The core only produces/consumes these payloads; framing
// and the manager's own dispatch are out of scope.
//
// Grounded on the teacher pack's grafana-k6 cloudapi log-tailing client
// (cloudapi/logs.go): dial with websocket.DefaultDialer, read in a loop,
// and close the connection from a goroutine watching ctx.Done(). That
// client tails a one-directional JSON stream; Conn here is bidirectional
// and typed by MessageKind instead of a single payload shape.
package workerproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reef-runtime/reef/api"
)

// ConnectPath is the worker registration endpoint (spec §6 "Node
// registration").
const ConnectPath = "/api/node/connect"

// LogKind distinguishes a StateSync log entry's origin.
type LogKind string

const (
	LogKindInfo  LogKind = "info"
	LogKindError LogKind = "error"
)

// LogEntry is one element of StateSync.Logs.
type LogEntry struct {
	Kind    LogKind `json:"kind"`
	Content string  `json:"content"`
}

// MessageKind tags the envelope's payload so a single socket can multiplex
// all four message shapes.
type MessageKind string

const (
	KindStateSync MessageKind = "state_sync"
	KindResult    MessageKind = "result"
	KindStartJob  MessageKind = "start_job"
	KindAbortJob  MessageKind = "abort_job"
)

// Envelope wraps one message on the wire; Payload holds the kind-specific
// JSON object, decoded by the caller once Kind is known.
type Envelope struct {
	Kind    MessageKind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// StateSync is sent worker → manager between run slices: the job's
// progress, its serialized interpreter state (spec §4.7), and any log
// lines accumulated since the last sync.
type StateSync struct {
	WorkerIndex      int        `json:"worker_index"`
	JobID            string     `json:"job_id"`
	Progress         float32    `json:"progress"`
	InterpreterState []byte     `json:"interpreter_state"`
	Logs             []LogEntry `json:"logs"`
}

// Result is sent worker → manager once a job finishes, successfully or
// not. ContentType mirrors api.ResultType; Success false means the job
// trapped or failed to link/parse, and Contents carries the plain-text
// failure payload (spec §7 "Propagation policy").
type Result struct {
	WorkerIndex int            `json:"worker_index"`
	JobID       string         `json:"job_id"`
	Success     bool           `json:"success"`
	ContentType api.ResultType `json:"content_type"`
	Contents    []byte         `json:"contents"`
}

// StartJob is sent manager → worker to assign (or resume) a job.
// InterpreterState is empty for a fresh start, non-empty to resume from a
// snapshot (spec §6).
type StartJob struct {
	WorkerIndex      int     `json:"worker_index"`
	JobID            string  `json:"job_id"`
	DatasetID        string  `json:"dataset_id"`
	Progress         float32 `json:"progress"`
	Program          []byte  `json:"program"`
	InterpreterState []byte  `json:"interpreter_state"`
}

// AbortJob is sent manager → worker to cancel a running job.
type AbortJob struct {
	JobID string `json:"job_id"`
}

// NewEnvelope builds an Envelope wrapping payload under kind. Exposed so a
// manager-side peer (outside this package, e.g. a test harness standing in
// for the manager) can construct wire-compatible envelopes without
// reaching into Conn's internals.
func NewEnvelope(kind MessageKind, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("workerproto: encode %s: %w", kind, err)
	}
	return &Envelope{Kind: kind, Payload: raw}, nil
}

// Conn is a registered worker's socket to the manager. It is a thin
// typed wrapper around *websocket.Conn; callers write with the Send*
// helpers and read with Recv, switching on the returned kind.
type Conn struct {
	ws *websocket.Conn
}

// NewConn wraps an already-established *websocket.Conn, letting the
// manager side of the handshake (websocket.Upgrader.Upgrade) produce a
// Conn the same way Dial does for the worker side.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Dial performs the node-registration handshake at managerURL+ConnectPath
// and returns a Conn ready for use. The handshake itself is a plain
// WebSocket upgrade; no further negotiation happens before the socket is
// handed back (spec §6: "after handshake the socket is set non-blocking").
func Dial(ctx context.Context, managerURL string, header http.Header) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, managerURL+ConnectPath, header)
	if err != nil {
		return nil, fmt.Errorf("workerproto: dial: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// Close sends a normal-closure control frame and closes the underlying
// socket, the same shutdown sequence as the teacher pack's log-tailing
// client.
func (c *Conn) Close() error {
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// SendStateSync writes a StateSync message.
func (c *Conn) SendStateSync(s *StateSync) error { return c.send(KindStateSync, s) }

// SendResult writes a Result message.
func (c *Conn) SendResult(r *Result) error { return c.send(KindResult, r) }

// SendStartJob writes a StartJob message (manager-side use; kept here so
// a single codec serves both ends of the socket).
func (c *Conn) SendStartJob(s *StartJob) error { return c.send(KindStartJob, s) }

// SendAbortJob writes an AbortJob message (manager-side use).
func (c *Conn) SendAbortJob(a *AbortJob) error { return c.send(KindAbortJob, a) }

func (c *Conn) send(kind MessageKind, payload any) error {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

// Recv reads the next envelope and decodes its payload into the concrete
// type matching kind: *StartJob, *AbortJob, *StateSync, or *Result. The
// caller type-switches on kind to know which.
func (c *Conn) Recv() (kind MessageKind, payload any, err error) {
	var env Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return "", nil, fmt.Errorf("workerproto: recv: %w", err)
	}
	switch env.Kind {
	case KindStateSync:
		var s StateSync
		err = json.Unmarshal(env.Payload, &s)
		payload = &s
	case KindResult:
		var r Result
		err = json.Unmarshal(env.Payload, &r)
		payload = &r
	case KindStartJob:
		var s StartJob
		err = json.Unmarshal(env.Payload, &s)
		payload = &s
	case KindAbortJob:
		var a AbortJob
		err = json.Unmarshal(env.Payload, &a)
		payload = &a
	default:
		return "", nil, fmt.Errorf("workerproto: unknown message kind %q", env.Kind)
	}
	if err != nil {
		return "", nil, fmt.Errorf("workerproto: decode %s: %w", env.Kind, err)
	}
	return env.Kind, payload, nil
}
