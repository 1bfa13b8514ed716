// Package scambustest provides an in-process mock of the scam-report
// streaming API for tests and local development.
package scambustest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Stream holds the messages a mock consumer key serves.
type Stream struct {
	Key      string
	DataType string
	Name     string

	messages []storedMessage
}

type storedMessage struct {
	cursor cursorToken
	raw    map[string]any
}

type cursorToken struct {
	ts  int64
	seq int64
}

func (c cursorToken) String() string {
	return fmt.Sprintf("%d-%d", c.ts, c.seq)
}

func parseCursorToken(s string) (cursorToken, bool) {
	ts, seq, ok := strings.Cut(s, "-")
	if !ok {
		return cursorToken{}, false
	}
	tsv, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return cursorToken{}, false
	}
	seqv, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return cursorToken{}, false
	}
	return cursorToken{ts: tsv, seq: seqv}, true
}

func (c cursorToken) less(other cursorToken) bool {
	if c.ts != other.ts {
		return c.ts < other.ts
	}
	return c.seq < other.seq
}

// FailureMode injects an error response on the next matching request.
type FailureMode struct {
	Status         int
	EarliestCursor string
	RetryAfter     string
	Remaining      int
}

// RecoverCall records the parameters of a recovery request.
type RecoverCall struct {
	StreamID         string
	IgnoreCheckpoint bool
	ClearStream      *bool
}

// BackfillCall records the parameters of a backfill request.
type BackfillCall struct {
	StreamID string
	FromDate string
}

// Server is a mock scam-report API. Register streams with AddStream,
// then point a client at URL().
type Server struct {
	mu sync.Mutex

	keyID     string
	keySecret string
	token     string

	streams map[string]*Stream
	failure map[string]*FailureMode

	recoverCalls  []RecoverCall
	backfillCalls []BackfillCall
	requestCount  map[string]int

	recoveryLogs []map[string]any
	rebuilding   map[string]bool
	wsConns      []*wsConn

	clock int64

	httpServer *httptest.Server
	echoServer *echo.Echo
}

// NewHandler builds a mock API accepting the given key pair without
// starting a listener. Mount it on an echo instance with Register.
func NewHandler(keyID, keySecret string) *Server {
	return &Server{
		keyID:        keyID,
		keySecret:    keySecret,
		streams:      make(map[string]*Stream),
		failure:      make(map[string]*FailureMode),
		requestCount: make(map[string]int),
		rebuilding:   make(map[string]bool),
		clock:        time.Now().UnixMilli(),
	}
}

// Register mounts the mock API routes on an echo instance.
func (s *Server) Register(e *echo.Echo) {
	group := e.Group("", s.authenticate)
	group.GET("/consume/:key/poll", s.handlePoll)
	group.GET("/consume/:key/info", s.handleInfo)
	group.GET("/consume/:key/stream", s.handleStream)
	group.POST("/export-streams/:id/recover", s.handleRecover)
	group.POST("/export-streams/:id/backfill-identifiers", s.handleBackfill)
	group.GET("/export-streams/:id/recovery-info", s.handleRecoveryInfo)
	group.GET("/redis/recovery/history", s.handleRecoveryHistory)
}

// New starts a mock server accepting the given API key pair. Callers
// must Close it.
func New(keyID, keySecret string) *Server {
	s := NewHandler(keyID, keySecret)

	e := echo.New()
	e.HideBanner = true
	s.Register(e)
	s.RegisterWS(e)

	s.echoServer = e
	s.httpServer = httptest.NewServer(e)
	return s
}

// URL returns the base URL clients should use.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// SetToken also accepts the given bearer token for authentication.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// AddStream registers a consumer key serving the given raw messages
// in order. Each message is assigned a monotonically increasing
// cursor; any stream_cursor already present is preserved.
func (s *Server) AddStream(key string, dataType string, messages []map[string]any) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := &Stream{
		Key:      key,
		DataType: dataType,
		Name:     key,
	}
	for _, raw := range messages {
		stream.messages = append(stream.messages, s.store(raw))
	}
	s.streams[key] = stream
	return stream
}

// Append adds messages to an existing stream, assigning fresh cursors.
func (s *Server) Append(key string, messages ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[key]
	if stream == nil {
		return
	}
	for _, raw := range messages {
		stream.messages = append(stream.messages, s.store(raw))
	}
}

func (s *Server) store(raw map[string]any) storedMessage {
	s.clock++
	token := cursorToken{ts: s.clock, seq: 0}
	stored := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		stored[k] = v
	}
	if existing, ok := stored["cursor"].(string); ok {
		if parsed, ok := parseCursorToken(existing); ok {
			token = parsed
		}
	} else {
		stored["cursor"] = token.String()
	}
	return storedMessage{cursor: token, raw: stored}
}

// FailNext makes the next n matching requests for the given consumer
// key or stream id return the configured error.
func (s *Server) FailNext(key string, mode FailureMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode.Remaining == 0 {
		mode.Remaining = 1
	}
	s.failure[key] = &mode
}

// SetRebuilding marks a stream id as rebuilding for recovery-info.
func (s *Server) SetRebuilding(streamID string, rebuilding bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilding[streamID] = rebuilding
}

// AddRecoveryLog seeds an entry returned by the recovery history
// endpoint.
func (s *Server) AddRecoveryLog(log map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoveryLogs = append(s.recoveryLogs, log)
}

// RecoverCalls returns the recovery requests received so far.
func (s *Server) RecoverCalls() []RecoverCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecoverCall(nil), s.recoverCalls...)
}

// BackfillCalls returns the backfill requests received so far.
func (s *Server) BackfillCalls() []BackfillCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BackfillCall(nil), s.backfillCalls...)
}

// RequestCount returns how many requests hit the given path.
func (s *Server) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount[path]
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.requestCount[c.Request().URL.Path]++
		keyID, keySecret, token := s.keyID, s.keySecret, s.token
		s.mu.Unlock()

		header := c.Request().Header.Get("X-API-Key")
		if header != "" {
			if header == keyID+":"+keySecret {
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
		}
		auth := c.Request().Header.Get("Authorization")
		if token != "" && auth == "Bearer "+token {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing credentials"})
	}
}

func (s *Server) takeFailure(key string) *FailureMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := s.failure[key]
	if mode == nil {
		return nil
	}
	mode.Remaining--
	if mode.Remaining <= 0 {
		delete(s.failure, key)
	}
	return mode
}

func (s *Server) writeFailure(c echo.Context, mode *FailureMode) error {
	body := echo.Map{"error": http.StatusText(mode.Status)}
	if mode.EarliestCursor != "" {
		body["earliest_cursor"] = mode.EarliestCursor
	}
	if mode.RetryAfter != "" {
		c.Response().Header().Set("Retry-After", mode.RetryAfter)
	}
	return c.JSON(mode.Status, body)
}

func (s *Server) handlePoll(c echo.Context) error {
	key := c.Param("key")
	if mode := s.takeFailure(key); mode != nil {
		return s.writeFailure(c, mode)
	}

	s.mu.Lock()
	stream := s.streams[key]
	s.mu.Unlock()
	if stream == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown consumer key"})
	}

	cursor := c.QueryParam("cursor")
	if cursor == "" {
		cursor = "0"
	}
	order := c.QueryParam("order")
	if order == "" {
		order = "asc"
	}
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = parsed
	}
	includeTest := c.QueryParam("include_test") == "true"

	s.mu.Lock()
	candidates := s.selectMessages(stream, cursor, order, includeTest)
	s.mu.Unlock()

	hasMore := len(candidates) > limit
	if hasMore {
		candidates = candidates[:limit]
	}

	nextCursor := cursor
	if len(candidates) > 0 {
		nextCursor = candidates[len(candidates)-1].cursor.String()
	} else if cursor == "$" {
		s.mu.Lock()
		if len(stream.messages) > 0 {
			nextCursor = stream.messages[len(stream.messages)-1].cursor.String()
		} else {
			nextCursor = "0"
		}
		s.mu.Unlock()
	}

	payloads := make([]map[string]any, 0, len(candidates))
	for _, m := range candidates {
		payloads = append(payloads, m.raw)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"messages":    payloads,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"data_type":   stream.DataType,
	})
}

func (s *Server) selectMessages(stream *Stream, cursor, order string, includeTest bool) []storedMessage {
	ordered := append([]storedMessage(nil), stream.messages...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].cursor.less(ordered[j].cursor)
	})

	var out []storedMessage
	for _, m := range ordered {
		if !includeTest {
			if isTest, ok := m.raw["is_test"].(bool); ok && isTest {
				continue
			}
		}
		switch cursor {
		case "0":
			out = append(out, m)
		case "$":
			// Nothing already written is after the live cursor.
		default:
			after, ok := parseCursorToken(cursor)
			if ok && after.less(m.cursor) {
				out = append(out, m)
			}
		}
	}
	if order == "desc" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (s *Server) handleInfo(c echo.Context) error {
	key := c.Param("key")
	if mode := s.takeFailure(key); mode != nil {
		return s.writeFailure(c, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.streams[key]
	if stream == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown consumer key"})
	}

	info := echo.Map{
		"name":               stream.Name,
		"data_type":          stream.DataType,
		"messages_in_stream": len(stream.messages),
		"cursors": echo.Map{
			"recommended": "0",
			"earliest":    "0",
			"latest":      "$",
		},
	}
	if len(stream.messages) > 0 {
		first := stream.messages[0].cursor
		last := stream.messages[len(stream.messages)-1].cursor
		info["first_entry"] = time.UnixMilli(first.ts).UTC().Format(time.RFC3339)
		info["last_entry"] = time.UnixMilli(last.ts).UTC().Format(time.RFC3339)
		cursors := info["cursors"].(echo.Map)
		cursors["earliest"] = first.String()
		cursors["latest"] = last.String()
		cursors["recommended"] = first.String()
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleStream(c echo.Context) error {
	key := c.Param("key")
	if mode := s.takeFailure(key); mode != nil {
		return s.writeFailure(c, mode)
	}

	s.mu.Lock()
	stream := s.streams[key]
	s.mu.Unlock()
	if stream == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown consumer key"})
	}

	cursor := c.QueryParam("cursor")
	if cursor == "" {
		cursor = "$"
	}
	includeTest := c.QueryParam("include_test") == "true"

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	writer := &sseWriter{resp: resp}
	writer.event("connected", map[string]any{
		"stream":    stream.Name,
		"id":        uuid.New().String(),
		"data_type": stream.DataType,
	})

	s.mu.Lock()
	backlog := s.selectMessages(stream, cursor, "asc", includeTest)
	s.mu.Unlock()

	if len(backlog) > 0 {
		payloads := make([]map[string]any, 0, len(backlog))
		for _, m := range backlog {
			payloads = append(payloads, m.raw)
		}
		writer.event("batch", payloads)
	}

	lastCursor := cursor
	if len(backlog) > 0 {
		lastCursor = backlog[len(backlog)-1].cursor.String()
	} else if cursor == "$" {
		// "$" means strictly after connect. Resolve it to a concrete
		// position so later appends are picked up by the live loop.
		s.mu.Lock()
		if len(stream.messages) > 0 {
			lastCursor = stream.messages[len(stream.messages)-1].cursor.String()
		} else {
			lastCursor = cursorToken{ts: s.clock}.String()
		}
		s.mu.Unlock()
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			writer.comment("heartbeat")
		case <-ticker.C:
			s.mu.Lock()
			fresh := s.selectMessages(stream, lastCursor, "asc", includeTest)
			s.mu.Unlock()
			for _, m := range fresh {
				writer.event("message", m.raw)
				lastCursor = m.cursor.String()
			}
		}
	}
}

func (s *Server) handleRecover(c echo.Context) error {
	id := c.Param("id")
	if mode := s.takeFailure(id); mode != nil {
		return s.writeFailure(c, mode)
	}

	call := RecoverCall{
		StreamID:         id,
		IgnoreCheckpoint: c.QueryParam("ignore_checkpoint") == "true",
	}
	if raw := c.QueryParam("clear_stream"); raw != "" {
		value := raw == "true"
		call.ClearStream = &value
	}

	log := map[string]any{
		"streamId":   id,
		"streamName": id,
		"startedAt":  time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.recoverCalls = append(s.recoverCalls, call)
	s.recoveryLogs = append(s.recoveryLogs, log)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, log)
}

func (s *Server) handleBackfill(c echo.Context) error {
	id := c.Param("id")
	if mode := s.takeFailure(id); mode != nil {
		return s.writeFailure(c, mode)
	}

	call := BackfillCall{
		StreamID: id,
		FromDate: c.QueryParam("fromDate"),
	}

	log := map[string]any{
		"streamId":   id,
		"streamName": id,
		"startedAt":  time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.backfillCalls = append(s.backfillCalls, call)
	s.recoveryLogs = append(s.recoveryLogs, log)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, log)
}

func (s *Server) handleRecoveryInfo(c echo.Context) error {
	id := c.Param("id")
	if mode := s.takeFailure(id); mode != nil {
		return s.writeFailure(c, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{
		"isRebuilding":             s.rebuilding[id],
		"lastConsumedJournalEntry": nil,
		"journalEntriesToReplay":   0,
	})
}

func (s *Server) handleRecoveryHistory(c echo.Context) error {
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	streamID := c.QueryParam("streamId")

	s.mu.Lock()
	defer s.mu.Unlock()

	var logs []map[string]any
	for _, log := range s.recoveryLogs {
		if streamID != "" {
			id, ok := log["streamId"].(string)
			if !ok {
				id, _ = log["stream_id"].(string)
			}
			if id != streamID {
				continue
			}
		}
		logs = append(logs, log)
	}
	if offset > len(logs) {
		offset = len(logs)
	}
	logs = logs[offset:]
	if len(logs) > limit {
		logs = logs[:limit]
	}
	if logs == nil {
		logs = []map[string]any{}
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": logs})
}
