package scambus

import (
	"encoding/json"
	"time"
)

// Reserved cursor values understood by every consumption endpoint. Any
// other cursor is an opaque position token of the form "<timestamp>-<seq>"
// taken from a previously delivered message or poll response.
const (
	CursorBeginning = "0"
	CursorLive      = "$"
)

// DataType identifies what kind of messages a stream carries.
type DataType string

const (
	DataTypeJournalEntry DataType = "journal_entry"
	DataTypeIdentifier   DataType = "identifier"
)

// Order is the delivery order of a polled batch.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// StreamFilter is the filter criteria attached to an export stream at
// creation time. Filters are immutable once the stream exists; recreate
// the stream to change them.
type StreamFilter struct {
	IdentifierTypes  []string `json:"identifier_types,omitempty" yaml:"identifierTypes"`
	MinConfidence    *float64 `json:"min_confidence,omitempty" yaml:"minConfidence"`
	MaxConfidence    *float64 `json:"max_confidence,omitempty" yaml:"maxConfidence"`
	CustomExpression string   `json:"custom_expression,omitempty" yaml:"customExpression"`
}

// CursorInfo is the cursor guidance block of a stream info response.
type CursorInfo struct {
	Recommended string `json:"recommended"`
	Earliest    string `json:"earliest"`
	Latest      string `json:"latest"`
}

// StreamInfo is the retention and cursor metadata served by the info
// endpoint, used to pick a sensible starting cursor before consuming.
type StreamInfo struct {
	Name             string     `json:"name"`
	DataType         DataType   `json:"data_type"`
	MessagesInStream int64      `json:"messages_in_stream"`
	FirstEntry       *time.Time `json:"first_entry,omitempty"`
	LastEntry        *time.Time `json:"last_entry,omitempty"`
	Cursors          CursorInfo `json:"cursors"`
}

// RecoveryLog is one recovery or backfill attempt on a stream. A nil
// CompletedAt means the job is still running; callers poll until it is set.
type RecoveryLog struct {
	StreamID    string     `json:"stream_id"`
	StreamName  string     `json:"stream_name"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
}

// Completed reports whether the job has finished (successfully or not).
func (l RecoveryLog) Completed() bool {
	return l.CompletedAt != nil
}

// UnmarshalJSON accepts both field casings; the recovery endpoints have
// historically served camelCase while the consume endpoints serve
// snake_case.
func (l *RecoveryLog) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.StreamID, _ = lookupString(raw, "stream_id")
	l.StreamName, _ = lookupString(raw, "stream_name")
	if t, ok := lookupTime(raw, "started_at"); ok {
		l.StartedAt = *t
	}
	l.CompletedAt, _ = lookupTime(raw, "completed_at")
	l.Outcome, _ = lookupString(raw, "outcome")
	return nil
}

// RecoveryStatus is the paginated recovery history across streams.
type RecoveryStatus struct {
	Logs []RecoveryLog `json:"logs"`
}

// StreamRecoveryInfo is the per-stream recovery state.
type StreamRecoveryInfo struct {
	IsRebuilding             bool   `json:"is_rebuilding"`
	LastConsumedJournalEntry string `json:"last_consumed_journal_entry,omitempty"`
	JournalEntriesToReplay   int64  `json:"journal_entries_to_replay"`
}

func (i *StreamRecoveryInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.IsRebuilding, _ = lookupBool(raw, "is_rebuilding")
	i.LastConsumedJournalEntry, _ = lookupString(raw, "last_consumed_journal_entry")
	if n, ok := lookupFloat(raw, "journal_entries_to_replay"); ok {
		i.JournalEntriesToReplay = int64(n)
	}
	return nil
}
