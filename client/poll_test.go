package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/scambustest"
)

func identifierWithConfidence(confidence float64) map[string]any {
	return scambustest.Identifier(map[string]any{"confidence": confidence})
}

func TestPollPaginatesWithStrictCursorOrder(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		identifierWithConfidence(0.5),
		identifierWithConfidence(0.9),
		identifierWithConfidence(0.95),
	})

	c := newTestClient(t, server)
	ctx := context.Background()

	first, err := c.Poll(ctx, "key-1", PollOptions{
		Cursor:   scambus.CursorBeginning,
		Order:    scambus.OrderAsc,
		Limit:    2,
		DataType: scambus.DataTypeIdentifier,
	})
	if err != nil {
		t.Fatalf("first poll failed: %v", err)
	}
	if len(first.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(first.Messages))
	}
	if !first.HasMore {
		t.Fatalf("expected has_more after partial batch")
	}

	m0 := first.Messages[0].(scambus.IdentifierMessage)
	m1 := first.Messages[1].(scambus.IdentifierMessage)
	if m0.Confidence != 0.5 || m1.Confidence != 0.9 {
		t.Fatalf("unexpected delivery order: %v, %v", m0.Confidence, m1.Confidence)
	}
	if m0.Cursor() >= m1.Cursor() {
		t.Fatalf("cursors must strictly increase: %q then %q", m0.Cursor(), m1.Cursor())
	}
	if first.NextCursor != m1.Cursor() {
		t.Fatalf("next_cursor %q should equal last message cursor %q", first.NextCursor, m1.Cursor())
	}

	second, err := c.Poll(ctx, "key-1", PollOptions{
		Cursor:   first.NextCursor,
		Limit:    2,
		DataType: scambus.DataTypeIdentifier,
	})
	if err != nil {
		t.Fatalf("second poll failed: %v", err)
	}
	if len(second.Messages) != 1 {
		t.Fatalf("expected 1 remaining message, got %d", len(second.Messages))
	}
	if second.Messages[0].(scambus.IdentifierMessage).Confidence != 0.95 {
		t.Fatalf("unexpected final message: %+v", second.Messages[0])
	}
	if second.HasMore {
		t.Fatalf("drained stream must report has_more=false")
	}
}

func TestPollEmptyBatchStillReturnsCursor(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(nil),
	})

	c := newTestClient(t, server)
	first, err := c.Poll(context.Background(), "key-1", PollOptions{Cursor: scambus.CursorBeginning})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	// At the tail: no messages, but the cursor still comes back so the
	// caller can keep re-polling.
	tail, err := c.Poll(context.Background(), "key-1", PollOptions{Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("tail poll failed: %v", err)
	}
	if len(tail.Messages) != 0 {
		t.Fatalf("expected empty batch, got %d messages", len(tail.Messages))
	}
	if tail.NextCursor != first.NextCursor {
		t.Fatalf("empty batch should keep the cursor, got %q", tail.NextCursor)
	}
	if tail.HasMore {
		t.Fatalf("empty batch must report has_more=false")
	}
}

func TestPollDescendingOrder(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		identifierWithConfidence(0.1),
		identifierWithConfidence(0.2),
	})

	c := newTestClient(t, server)
	result, err := c.Poll(context.Background(), "key-1", PollOptions{
		Cursor: scambus.CursorBeginning,
		Order:  scambus.OrderDesc,
	})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result.Messages))
	}
	if result.Messages[0].Cursor() <= result.Messages[1].Cursor() {
		t.Fatalf("descending order not honored: %q then %q",
			result.Messages[0].Cursor(), result.Messages[1].Cursor())
	}
}

func TestPollExcludesTestMessagesByDefault(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(nil),
		scambustest.Identifier(map[string]any{"is_test": true}),
	})

	c := newTestClient(t, server)
	result, err := c.Poll(context.Background(), "key-1", PollOptions{Cursor: scambus.CursorBeginning})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected test message to be excluded, got %d messages", len(result.Messages))
	}

	result, err = c.Poll(context.Background(), "key-1", PollOptions{
		Cursor:      scambus.CursorBeginning,
		IncludeTest: true,
	})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected both messages with include_test, got %d", len(result.Messages))
	}
}

func TestPollCursorOutOfRange(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", nil)
	server.FailNext("key-1", scambustest.FailureMode{
		Status:         410,
		EarliestCursor: "1700000000-0",
	})

	c := newTestClient(t, server)
	_, err := c.Poll(context.Background(), "key-1", PollOptions{Cursor: "100-0"})

	var outOfRange scambus.CursorOutOfRangeError
	if !errors.As(err, &outOfRange) {
		t.Fatalf("expected CursorOutOfRangeError, got %v", err)
	}
	if outOfRange.RecoverTo() != "1700000000-0" {
		t.Fatalf("expected earliest cursor hint, got %q", outOfRange.RecoverTo())
	}
}

func TestPollRateLimited(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", nil)
	server.FailNext("key-1", scambustest.FailureMode{Status: 429})

	c := newTestClient(t, server)
	_, err := c.Poll(context.Background(), "key-1", PollOptions{})
	if !errors.Is(err, scambus.ErrRateLimited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
}

func TestPollStreamRebuilding(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", nil)
	server.FailNext("key-1", scambustest.FailureMode{Status: 503, RetryAfter: "30"})

	c := newTestClient(t, server)
	_, err := c.Poll(context.Background(), "key-1", PollOptions{})

	var rebuilding scambus.StreamRebuildingError
	if !errors.As(err, &rebuilding) {
		t.Fatalf("expected StreamRebuildingError, got %v", err)
	}
	if rebuilding.RetryAfter != 30*time.Second {
		t.Fatalf("expected Retry-After of 30s, got %v", rebuilding.RetryAfter)
	}
}

func TestPollSkipsMalformedMessagesByDefault(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(nil),
		scambustest.Identifier(map[string]any{"confidence": 3.0}),
		scambustest.Identifier(nil),
	})

	c := newTestClient(t, server)
	result, err := c.Poll(context.Background(), "key-1", PollOptions{
		Cursor:   scambus.CursorBeginning,
		DataType: scambus.DataTypeIdentifier,
	})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 healthy messages, got %d", len(result.Messages))
	}
	if len(result.DecodeErrors) != 1 || result.DecodeErrors[0].Index != 1 {
		t.Fatalf("expected decode error at index 1, got %+v", result.DecodeErrors)
	}
}

func TestPollFailFast(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("key-1", "identifier", []map[string]any{
		scambustest.Identifier(map[string]any{"confidence": -0.5}),
	})

	c := newTestClient(t, server)
	_, err := c.Poll(context.Background(), "key-1", PollOptions{
		Cursor:   scambus.CursorBeginning,
		DataType: scambus.DataTypeIdentifier,
		FailFast: true,
	})
	if !errors.Is(err, scambus.ErrMalformedMessage) {
		t.Fatalf("expected MalformedMessageError, got %v", err)
	}
}
