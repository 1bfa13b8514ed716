package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/scambustest"
)

// scriptedSession runs the read loop over a fixed event stream and
// records everything delivered to the handlers.
type scriptedSession struct {
	session  *StreamSession
	messages []scambus.Message
	errs     []error
	states   []ConnectionState
	meta     *StreamMeta
}

func runScript(t *testing.T, script string) *scriptedSession {
	t.Helper()
	rec := &scriptedSession{}
	rec.session = &StreamSession{
		handlers: StreamHandlers{
			OnConnected: func(meta StreamMeta) { rec.meta = &meta },
			OnMessage:   func(msg scambus.Message) { rec.messages = append(rec.messages, msg) },
			OnError:     func(err error) { rec.errs = append(rec.errs, err) },
			OnStateChange: func(state ConnectionState) {
				rec.states = append(rec.states, state)
			},
		},
		dataType:   scambus.DataTypeIdentifier,
		cancel:     func() {},
		body:       io.NopCloser(strings.NewReader(script)),
		done:       make(chan struct{}),
		state:      StateConnecting,
		lastCursor: scambus.CursorBeginning,
	}
	rec.session.readLoop(slog.Default())
	return rec
}

const replayScript = `event: connected
data: {"stream":"key-1","id":"conn-1"}

: heartbeat

event: batch
data: [{"identifier_id":"a","type":"phone","confidence":0.5,"cursor":"1-0","details":{}},{"identifier_id":"b","type":"phone","confidence":0.6,"cursor":"2-0","details":{}}]

: heartbeat

event: message
data: {"identifier_id":"c","type":"phone","confidence":0.7,"cursor":"3-0","details":{}}

`

func TestReadLoopDeliversInOrder(t *testing.T) {
	rec := runScript(t, replayScript)

	if rec.meta == nil || rec.meta.Stream != "key-1" {
		t.Fatalf("connected event not delivered: %+v", rec.meta)
	}
	if len(rec.errs) != 0 {
		t.Fatalf("unexpected errors: %v", rec.errs)
	}
	if len(rec.messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(rec.messages))
	}
	for i, want := range []string{"1-0", "2-0", "3-0"} {
		if rec.messages[i].Cursor() != want {
			t.Fatalf("message %d has cursor %q, want %q", i, rec.messages[i].Cursor(), want)
		}
	}
	if rec.session.LastCursor() != "3-0" {
		t.Fatalf("last cursor is %q, want 3-0", rec.session.LastCursor())
	}
}

func TestReadLoopStateTransitions(t *testing.T) {
	rec := runScript(t, replayScript)

	want := []ConnectionState{StateReplaying, StateLive, StateDisconnected}
	if len(rec.states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, rec.states)
		}
	}
	if rec.session.State() != StateDisconnected {
		t.Fatalf("session should end disconnected, got %v", rec.session.State())
	}
}

func TestReadLoopErrorEventKeepsStreamOpen(t *testing.T) {
	script := `event: connected
data: {"stream":"key-1","id":"conn-1"}

event: error
data: {"error":"stream momentarily unavailable"}

event: message
data: {"identifier_id":"a","type":"phone","confidence":0.5,"cursor":"1-0","details":{}}

`
	rec := runScript(t, script)

	if len(rec.errs) != 1 {
		t.Fatalf("expected 1 error event, got %v", rec.errs)
	}
	if !strings.Contains(rec.errs[0].Error(), "momentarily unavailable") {
		t.Fatalf("unexpected error %v", rec.errs[0])
	}
	if len(rec.messages) != 1 {
		t.Fatalf("delivery should continue after an error event, got %d messages", len(rec.messages))
	}
}

func TestReadLoopMalformedMessageDoesNotAbort(t *testing.T) {
	script := `event: connected
data: {"stream":"key-1","id":"conn-1"}

event: batch
data: [{"identifier_id":"a","confidence":0.5,"cursor":"1-0"},{"identifier_id":"b","type":"phone","confidence":0.6,"cursor":"2-0"}]

`
	rec := runScript(t, script)

	if len(rec.errs) != 1 {
		t.Fatalf("expected 1 decode error, got %v", rec.errs)
	}
	if !errors.Is(rec.errs[0], scambus.ErrMalformedMessage) {
		t.Fatalf("expected MalformedMessageError, got %v", rec.errs[0])
	}
	if len(rec.messages) != 1 || rec.messages[0].Cursor() != "2-0" {
		t.Fatalf("healthy message should still be delivered: %+v", rec.messages)
	}
	// The malformed message must not advance the cursor.
	if rec.session.LastCursor() != "2-0" {
		t.Fatalf("last cursor is %q, want 2-0", rec.session.LastCursor())
	}
}

func waitMessage(t *testing.T, ch <-chan scambus.Message) scambus.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
		return nil
	}
}

func TestOpenStreamReplayAndLive(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(nil),
		scambustest.Identifier(nil),
	})

	c := newTestClient(t, server)
	messages := make(chan scambus.Message, 16)
	connected := make(chan StreamMeta, 1)

	session, err := c.OpenStream(context.Background(), "key-1", StreamOptions{
		Cursor:   scambus.CursorBeginning,
		DataType: scambus.DataTypeIdentifier,
	}, StreamHandlers{
		OnConnected: func(meta StreamMeta) { connected <- meta },
		OnMessage:   func(msg scambus.Message) { messages <- msg },
	})
	if err != nil {
		t.Fatalf("open stream failed: %v", err)
	}
	defer session.Close()

	select {
	case meta := <-connected:
		if meta.Stream != "key-1" {
			t.Fatalf("unexpected stream name %q", meta.Stream)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for connected event")
	}

	m1 := waitMessage(t, messages)
	m2 := waitMessage(t, messages)
	if m1.Cursor() >= m2.Cursor() {
		t.Fatalf("replay out of order: %q then %q", m1.Cursor(), m2.Cursor())
	}
	if session.LastCursor() != m2.Cursor() {
		t.Fatalf("last cursor %q should track the latest delivery %q", session.LastCursor(), m2.Cursor())
	}

	// A message appended after connect arrives over the same session.
	server.Append("key-1", scambustest.Identifier(nil))
	m3 := waitMessage(t, messages)
	if m3.Cursor() <= m2.Cursor() {
		t.Fatalf("live message cursor %q should follow %q", m3.Cursor(), m2.Cursor())
	}
	if session.State() != StateLive {
		t.Fatalf("expected live state, got %v", session.State())
	}
}

func TestOpenStreamLiveOnlyDeliversAppends(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(nil),
	})

	c := newTestClient(t, server)
	messages := make(chan scambus.Message, 16)
	connected := make(chan StreamMeta, 1)

	session, err := c.OpenStream(context.Background(), "key-1", StreamOptions{
		Cursor:   scambus.CursorLive,
		DataType: scambus.DataTypeIdentifier,
	}, StreamHandlers{
		OnConnected: func(meta StreamMeta) { connected <- meta },
		OnMessage:   func(msg scambus.Message) { messages <- msg },
	})
	if err != nil {
		t.Fatalf("open stream failed: %v", err)
	}
	defer session.Close()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for connected event")
	}

	appended := scambustest.Identifier(nil)
	server.Append("key-1", appended)

	m := waitMessage(t, messages)
	ident, ok := m.(scambus.IdentifierMessage)
	if !ok || ident.IdentifierID != appended["identifier_id"] {
		t.Fatalf("expected the appended message, got %+v", m)
	}
	if session.State() != StateLive {
		t.Fatalf("expected live state, got %v", session.State())
	}
	// The message already in the stream at connect time is not replayed.
	select {
	case extra := <-messages:
		t.Fatalf("live-only session replayed history: %q", extra.Cursor())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOpenStreamResumeFromLastCursor(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(nil),
		scambustest.Identifier(nil),
	})

	c := newTestClient(t, server)
	messages := make(chan scambus.Message, 16)

	session, err := c.OpenStream(context.Background(), "key-1", StreamOptions{
		Cursor:   scambus.CursorBeginning,
		DataType: scambus.DataTypeIdentifier,
	}, StreamHandlers{
		OnMessage: func(msg scambus.Message) { messages <- msg },
	})
	if err != nil {
		t.Fatalf("open stream failed: %v", err)
	}

	waitMessage(t, messages)
	waitMessage(t, messages)
	resumeCursor := session.LastCursor()
	if err := session.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish after close")
	}
	if session.Err() != nil {
		t.Fatalf("clean close should leave no error, got %v", session.Err())
	}

	server.Append("key-1", scambustest.Identifier(nil))

	resumed, err := c.OpenStream(context.Background(), "key-1", StreamOptions{
		Cursor:   resumeCursor,
		DataType: scambus.DataTypeIdentifier,
	}, StreamHandlers{
		OnMessage: func(msg scambus.Message) { messages <- msg },
	})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	defer resumed.Close()

	m := waitMessage(t, messages)
	if m.Cursor() <= resumeCursor {
		t.Fatalf("resumed delivery %q must be after %q", m.Cursor(), resumeCursor)
	}
	select {
	case extra := <-messages:
		t.Fatalf("unexpected duplicate delivery %q", extra.Cursor())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOpenStreamUnauthorized(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", nil)

	wrong, err := New(Config{APIURL: server.URL(), APIKeyID: "test-id", APIKeySecret: "bad"})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	_, err = wrong.OpenStream(context.Background(), "key-1", StreamOptions{}, StreamHandlers{})
	if !errors.Is(err, scambus.ErrAuthentication) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}
