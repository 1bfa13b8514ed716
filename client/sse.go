package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/scambus/scambus-go"
)

// ConnectionState is the SSE session state. The session moves
// Disconnected -> Connecting -> Replaying -> Live and back to
// Disconnected on close or transport failure.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateReplaying
	StateLive
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReplaying:
		return "replaying"
	case StateLive:
		return "live"
	default:
		return "disconnected"
	}
}

// StreamMeta is the metadata carried by the connected event, delivered
// to the caller before any data.
type StreamMeta struct {
	Stream string `json:"stream"`
	ID     string `json:"id"`
}

// StreamHandlers are the caller-supplied callbacks for an SSE session.
// All handlers are invoked sequentially from a single goroutine, so
// delivery order is preserved and no handler runs concurrently with
// another for the same session.
type StreamHandlers struct {
	// OnConnected fires once per connection, before any message.
	OnConnected func(StreamMeta)

	// OnMessage receives every delivered message, replayed and live.
	OnMessage func(scambus.Message)

	// OnError receives server error events and per-message decode
	// failures. The connection stays open; only a transport failure
	// ends the session.
	OnError func(error)

	// OnStateChange, when set, observes FSM transitions.
	OnStateChange func(ConnectionState)
}

// StreamOptions controls an SSE session.
type StreamOptions struct {
	// Cursor is the starting position: "0" for full replay, "$" for
	// live-only (the default), or a position token for resumption.
	Cursor string

	IncludeTest bool

	// DataType, when known, picks the message variant directly.
	DataType scambus.DataType
}

// StreamSession is one live SSE connection. Close may be called from any
// goroutine; it cancels the read loop and releases the connection. After
// Done is closed, Err reports why the session ended (nil for a clean
// caller-initiated close or server end-of-stream).
type StreamSession struct {
	handlers StreamHandlers
	dataType scambus.DataType

	cancel context.CancelFunc
	body   io.ReadCloser
	done   chan struct{}

	mu         sync.Mutex
	state      ConnectionState
	lastCursor string
	err        error
}

// OpenStream opens a long-lived SSE connection to a stream's consumption
// endpoint and starts delivering events to the handlers. The returned
// session must be closed by the caller unless the context ends first.
//
// The client does not reconnect by itself: on an unexpected disconnect,
// reopen with LastCursor() as the starting cursor. The seam guarantees
// no gap but allows at-most-one duplicate, so message processing should
// be idempotent by cursor or id.
func (c *Client) OpenStream(ctx context.Context, consumerKey string, opts StreamOptions, handlers StreamHandlers) (*StreamSession, error) {
	ctx, span := tracer.Start(ctx, "Client.OpenStream")
	defer span.End()

	cursor := opts.Cursor
	if cursor == "" {
		cursor = scambus.CursorLive
	}

	query := url.Values{}
	query.Set("cursor", cursor)
	if opts.IncludeTest {
		query.Set("include_test", "true")
	}

	ctx, cancel := context.WithCancel(ctx)
	u := c.baseURL + "/consume/" + consumerKey + "/stream?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	session := &StreamSession{
		handlers:   handlers,
		dataType:   opts.DataType,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      StateConnecting,
		lastCursor: cursor,
	}
	if handlers.OnStateChange != nil {
		handlers.OnStateChange(StateConnecting)
	}

	resp, err := c.streaming.Do(req)
	if err != nil {
		cancel()
		session.setState(StateDisconnected)
		return nil, errors.Wrap(err, "failed to open stream")
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp)
		resp.Body.Close()
		cancel()
		session.setState(StateDisconnected)
		return nil, apiErr
	}

	session.body = resp.Body
	go session.readLoop(c.logger)
	return session, nil
}

// LastCursor is the cursor of the last delivered message, or the
// starting cursor when nothing has been delivered yet. Reconnect with
// this value to resume without a gap.
func (s *StreamSession) LastCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCursor
}

// State reports the current FSM state.
func (s *StreamSession) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the read loop has exited and all resources are
// released.
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

// Err reports the transport error that ended the session, if any. Only
// valid after Done is closed.
func (s *StreamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the session. Safe to call from outside the read loop
// and more than once; no partial-message state survives it.
func (s *StreamSession) Close() error {
	s.cancel()
	err := s.body.Close()
	<-s.done
	return err
}

func (s *StreamSession) setState(state ConnectionState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed && s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(state)
	}
}

func (s *StreamSession) trackCursor(cursor string) {
	if cursor == "" {
		return
	}
	s.mu.Lock()
	s.lastCursor = cursor
	s.mu.Unlock()
}

func (s *StreamSession) emitError(err error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

// readLoop parses the event stream and dispatches events sequentially.
// Lines starting with ':' are keepalive comments (~15s cadence) and are
// consumed here without reaching the caller.
func (s *StreamSession) readLoop(logger *slog.Logger) {
	defer func() {
		s.body.Close()
		s.setState(StateDisconnected)
		close(s.done)
	}()

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	eventName := ""
	var data strings.Builder

	flush := func() {
		if data.Len() == 0 && eventName == "" {
			return
		}
		s.dispatch(eventName, data.String())
		eventName = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil && !isClosedConn(err) {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		logger.Debug(
			"stream read loop ended",
			slog.String("error", err.Error()),
			slog.String("module", "sse"),
		)
	}
}

func (s *StreamSession) dispatch(eventName, data string) {
	switch eventName {
	case "connected":
		var meta StreamMeta
		if err := json.Unmarshal([]byte(data), &meta); err != nil {
			s.emitError(errors.Wrap(err, "failed to parse connected event"))
			return
		}
		s.setState(StateReplaying)
		if s.handlers.OnConnected != nil {
			s.handlers.OnConnected(meta)
		}
	case "batch":
		// Historical replay: an ordered array of messages, delivered in
		// array order. Only seen while replaying.
		var raws []map[string]any
		if err := json.Unmarshal([]byte(data), &raws); err != nil {
			s.emitError(errors.Wrap(err, "failed to parse batch event"))
			return
		}
		for _, raw := range raws {
			s.deliver(raw)
		}
	case "message", "":
		// The first live message ends replay.
		s.setState(StateLive)
		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			s.emitError(errors.Wrap(err, "failed to parse message event"))
			return
		}
		s.deliver(raw)
	case "error":
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil || payload.Error == "" {
			s.emitError(fmt.Errorf("stream error: %s", data))
			return
		}
		s.emitError(fmt.Errorf("stream error: %s", payload.Error))
	}
}

func (s *StreamSession) deliver(raw map[string]any) {
	msg, err := scambus.DecodeMessage(raw, s.dataType)
	if err != nil {
		s.emitError(err)
		return
	}
	s.trackCursor(msg.Cursor())
	if s.handlers.OnMessage != nil {
		s.handlers.OnMessage(msg)
	}
}

func isClosedConn(err error) bool {
	if err == nil {
		return false
	}
	for _, s := range []string{
		"use of closed network connection",
		"read on closed response body",
		"context canceled",
	} {
		if strings.Contains(err.Error(), s) {
			return true
		}
	}
	return false
}
