package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/scambus/scambus-go"
)

const (
	wsPingInterval      = 30 * time.Second
	wsWriteWait         = 10 * time.Second
	maxReconnectDelay   = 60 * time.Second
	reconnectJitterFrac = 0.25
)

// WSMessage is the wire envelope of every websocket frame.
type WSMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// WSHandler receives the payload of a matched frame. For "stream:"
// channels the payload is a decoded scambus.Message when possible,
// otherwise a map[string]any. Wildcard ("*") handlers always receive
// the full WSMessage.
type WSHandler func(payload any)

// WSClient receives real-time notifications and stream updates over a
// websocket connection. Unlike the rest of the library it reconnects
// internally, with exponential backoff and jitter, because a
// notification feed has no cursor to resume from — delivery is
// best-effort by design.
type WSClient struct {
	wsURL     string
	header    http.Header
	dialer    *websocket.Dialer
	logger    *slog.Logger
	dataTypes map[string]scambus.DataType

	maxReconnectAttempts int
	reconnectDelay       time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[string][]*wsRegistration
	nextID   int
}

type wsRegistration struct {
	id      int
	handler WSHandler
}

// WSConfig configures a WSClient.
type WSConfig struct {
	Config

	// MaxReconnectAttempts bounds consecutive failed reconnects before
	// Listen gives up. Zero means the default of 10.
	MaxReconnectAttempts int

	// ReconnectDelay is the initial backoff; it doubles per attempt up
	// to a minute, plus jitter. Zero means one second.
	ReconnectDelay time.Duration
}

// NewWSClient builds a websocket client from the same credentials as the
// HTTP client. The API URL is converted to its ws(s) form and the /ws
// endpoint appended.
func NewWSClient(conf WSConfig) (*WSClient, error) {
	if conf.APIURL == "" {
		return nil, scambus.ValidationError{APIError: scambus.APIError{Message: "api url is required"}}
	}
	if (conf.APIKeyID == "" || conf.APIKeySecret == "") && conf.APIToken == "" {
		return nil, scambus.ValidationError{APIError: scambus.APIError{
			Message: "either api key id/secret or api token must be provided",
		}}
	}

	wsURL := strings.TrimRight(conf.APIURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL += "/ws"

	header := http.Header{}
	if conf.APIKeyID != "" {
		header.Set("X-API-Key", conf.APIKeyID+":"+conf.APIKeySecret)
	} else {
		header.Set("Authorization", "Bearer "+conf.APIToken)
	}
	userAgent := conf.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	header.Set("User-Agent", userAgent)

	logger := conf.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxAttempts := conf.MaxReconnectAttempts
	if maxAttempts == 0 {
		maxAttempts = 10
	}
	delay := conf.ReconnectDelay
	if delay == 0 {
		delay = time.Second
	}

	return &WSClient{
		wsURL:                wsURL,
		header:               header,
		dialer:               websocket.DefaultDialer,
		logger:               logger,
		dataTypes:            map[string]scambus.DataType{},
		maxReconnectAttempts: maxAttempts,
		reconnectDelay:       delay,
		handlers:             map[string]map[string][]*wsRegistration{},
	}, nil
}

// On registers a handler for a channel/event pair. Event "*" matches
// every event on the channel. The returned function unsubscribes.
func (w *WSClient) On(channel, event string, handler WSHandler) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handlers[channel] == nil {
		w.handlers[channel] = map[string][]*wsRegistration{}
	}
	w.nextID++
	reg := &wsRegistration{id: w.nextID, handler: handler}
	w.handlers[channel][event] = append(w.handlers[channel][event], reg)

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		regs := w.handlers[channel][event]
		for i, r := range regs {
			if r.id == reg.id {
				w.handlers[channel][event] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
		if len(w.handlers[channel][event]) == 0 {
			delete(w.handlers[channel], event)
		}
		if len(w.handlers[channel]) == 0 {
			delete(w.handlers, channel)
		}
	}
}

// SetStreamDataType records the data type of a stream channel so its
// payloads decode without per-message discrimination.
func (w *WSClient) SetStreamDataType(consumerKey string, dataType scambus.DataType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dataTypes["stream:"+consumerKey] = dataType
}

// Listen connects and dispatches frames until the context ends or the
// reconnect budget is exhausted. Handler invocation is sequential.
func (w *WSClient) Listen(ctx context.Context) error {
	attempts := 0
	for {
		err := w.runConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// clean server close
			return nil
		}

		attempts++
		if attempts > w.maxReconnectAttempts {
			return errors.Wrap(err, "websocket reconnect attempts exhausted")
		}

		delay := w.backoffDelay(attempts)

		w.logger.Info(
			"websocket reconnecting",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempts),
			slog.String("delay", delay.String()),
			slog.String("module", "ws"),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoffDelay doubles the configured delay per attempt up to a minute,
// plus jitter. The shift is clamped so large attempt counts cannot
// overflow into a zero or negative delay.
func (w *WSClient) backoffDelay(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := w.reconnectDelay * (1 << shift)
	if delay <= 0 || delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay + time.Duration(rand.Float64()*reconnectJitterFrac*float64(delay))
}

// Close shuts the current connection, ending a Listen in progress.
func (w *WSClient) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (w *WSClient) runConnection(ctx context.Context) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.wsURL, w.header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			apiErr := decodeAPIError(resp)
			resp.Body.Close()
			return apiErr
		}
		return errors.Wrap(err, "websocket dial failed")
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		conn.Close()
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	// Pings keep intermediaries from dropping the idle connection.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			}
		}
	}()

	for {
		var msg WSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			wsErr, ok := err.(*websocket.CloseError)
			if ok && (wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch msg.Type {
		case "heartbeat":
			// keepalive, not delivered
		case "connected":
			w.logger.Debug(
				"websocket connection confirmed",
				slog.String("module", "ws"),
			)
		default:
			w.dispatch(msg)
		}
	}
}

func (w *WSClient) dispatch(msg WSMessage) {
	w.mu.Lock()
	var eventRegs, wildcardRegs []*wsRegistration
	for _, channel := range []string{msg.Channel, "*"} {
		channelHandlers := w.handlers[channel]
		eventRegs = append(eventRegs, channelHandlers[msg.Event]...)
		wildcardRegs = append(wildcardRegs, channelHandlers["*"]...)
		if msg.Channel == "*" {
			break
		}
	}
	dataType := w.dataTypes[msg.Channel]
	w.mu.Unlock()

	if len(eventRegs) > 0 {
		payload := w.decodePayload(msg, dataType)
		for _, reg := range eventRegs {
			reg.handler(payload)
		}
	}
	for _, reg := range wildcardRegs {
		reg.handler(msg)
	}
}

// decodePayload types stream-channel payloads through the message
// decoder; anything else, or anything that fails to decode, passes
// through as a raw map.
func (w *WSClient) decodePayload(msg WSMessage, dataType scambus.DataType) any {
	var raw map[string]any
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		return msg.Data
	}
	if !strings.HasPrefix(msg.Channel, "stream:") {
		return raw
	}

	decoded, err := scambus.DecodeMessage(raw, dataType)
	if err != nil {
		w.logger.Debug(
			"failed to decode stream payload",
			slog.String("error", err.Error()),
			slog.String("channel", msg.Channel),
			slog.String("module", "ws"),
		)
		return raw
	}
	return decoded
}
