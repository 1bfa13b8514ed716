package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/scambustest"
)

func TestRecoverStream(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()

	c := newTestClient(t, server)
	log, err := c.RecoverStream(context.Background(), "stream-1", RecoverOptions{})
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if log.StreamID != "stream-1" || log.StartedAt.IsZero() {
		t.Fatalf("unexpected recovery log: %+v", log)
	}
	if log.Completed() {
		t.Fatalf("fresh recovery should not be completed")
	}

	calls := server.RecoverCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 recover call, got %d", len(calls))
	}
	if calls[0].IgnoreCheckpoint {
		t.Fatalf("ignore_checkpoint should default to false")
	}
	if calls[0].ClearStream != nil {
		t.Fatalf("clear_stream should be omitted by default, got %v", *calls[0].ClearStream)
	}
}

func TestRecoverStreamOptions(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()

	c := newTestClient(t, server)
	keep := false
	_, err := c.RecoverStream(context.Background(), "stream-1", RecoverOptions{
		IgnoreCheckpoint: true,
		ClearStream:      &keep,
	})
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	calls := server.RecoverCalls()
	if !calls[0].IgnoreCheckpoint {
		t.Fatalf("ignore_checkpoint not sent")
	}
	if calls[0].ClearStream == nil || *calls[0].ClearStream {
		t.Fatalf("clear_stream=false not sent: %+v", calls[0])
	}
}

func TestBackfillRejectsJournalEntryStreamBeforeAnyRequest(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.BackfillStream(context.Background(), "stream-1", scambus.DataTypeJournalEntry, nil)
	if !errors.Is(err, scambus.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if n := server.RequestCount("/export-streams/stream-1/backfill-identifiers"); n != 0 {
		t.Fatalf("rejection must happen before any network call, saw %d requests", n)
	}
}

func TestBackfillStreamByKeyUsesResolvedDataType(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.AddStream("entries", "journal_entry", nil)
	server.AddStream("phones", "identifier", nil)

	c := newTestClient(t, server)
	_, err := c.BackfillStreamByKey(context.Background(), "stream-1", "entries", nil)
	if !errors.Is(err, scambus.ErrValidation) {
		t.Fatalf("expected ValidationError for a journal entry stream, got %v", err)
	}
	if n := server.RequestCount("/export-streams/stream-1/backfill-identifiers"); n != 0 {
		t.Fatalf("rejection must happen before any backfill request, saw %d", n)
	}

	if _, err := c.BackfillStreamByKey(context.Background(), "stream-1", "phones", nil); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}
	if calls := server.BackfillCalls(); len(calls) != 1 || calls[0].StreamID != "stream-1" {
		t.Fatalf("unexpected backfill calls: %+v", calls)
	}
}

func TestBackfillStream(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()

	c := newTestClient(t, server)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.BackfillStream(context.Background(), "stream-1", scambus.DataTypeIdentifier, &from)
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	calls := server.BackfillCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 backfill call, got %d", len(calls))
	}
	if calls[0].FromDate != "2024-03-01T00:00:00Z" {
		t.Fatalf("unexpected from_date %q", calls[0].FromDate)
	}
}

func TestGetRecoveryStatus(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	// The recovery endpoints historically serve camelCase; the decoder
	// accepts either casing.
	server.AddRecoveryLog(map[string]any{
		"streamId":    "stream-1",
		"streamName":  "phones",
		"startedAt":   "2024-03-01T00:00:00Z",
		"completedAt": "2024-03-01T00:05:00Z",
		"outcome":     "success",
	})
	server.AddRecoveryLog(map[string]any{
		"stream_id":   "stream-2",
		"stream_name": "emails",
		"started_at":  "2024-03-02T00:00:00Z",
	})

	c := newTestClient(t, server)
	status, err := c.GetRecoveryStatus(context.Background(), RecoveryStatusOptions{})
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(status.Logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(status.Logs))
	}
	if !status.Logs[0].Completed() || status.Logs[0].Outcome != "success" {
		t.Fatalf("completed log not decoded: %+v", status.Logs[0])
	}
	if status.Logs[1].Completed() {
		t.Fatalf("running log should not be completed: %+v", status.Logs[1])
	}

	filtered, err := c.GetRecoveryStatus(context.Background(), RecoveryStatusOptions{StreamID: "stream-2"})
	if err != nil {
		t.Fatalf("filtered status failed: %v", err)
	}
	if len(filtered.Logs) != 1 || filtered.Logs[0].StreamID != "stream-2" {
		t.Fatalf("stream filter not honored: %+v", filtered.Logs)
	}
}

func TestGetStreamRecoveryInfo(t *testing.T) {
	server := scambustest.New("test-id", "test-secret")
	defer server.Close()
	server.SetRebuilding("stream-1", true)

	c := newTestClient(t, server)
	info, err := c.GetStreamRecoveryInfo(context.Background(), "stream-1")
	if err != nil {
		t.Fatalf("recovery info failed: %v", err)
	}
	if !info.IsRebuilding {
		t.Fatalf("expected rebuilding stream")
	}

	info, err = c.GetStreamRecoveryInfo(context.Background(), "stream-2")
	if err != nil {
		t.Fatalf("recovery info failed: %v", err)
	}
	if info.IsRebuilding {
		t.Fatalf("stream-2 should not be rebuilding")
	}
}
