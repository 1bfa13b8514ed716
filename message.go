package scambus

import (
	"fmt"
	"time"
)

// MessageKind discriminates the two stream message variants.
type MessageKind int

const (
	KindJournalEntry MessageKind = iota
	KindIdentifier
)

// Message is one decoded stream message. Every message carries the cursor
// to resume after it; within one batch, messages are strictly ordered by
// cursor in the requested direction.
type Message interface {
	Kind() MessageKind
	Cursor() string
}

// OriginatorRef identifies the organization that reported an entry.
type OriginatorRef struct {
	ID   string
	Name string
}

// IdentifierSummary is the embedded identifier inside a journal entry
// message. Summaries are decoded tolerantly: fields missing in both
// casings are simply unset.
type IdentifierSummary struct {
	IdentifierID string
	Type         string
	DisplayValue string
	Confidence   float64
	Details      IdentifierDetails
}

// EvidenceSummary is the embedded evidence reference inside a journal
// entry message.
type EvidenceSummary struct {
	ID          string
	Type        string
	Description string
	MediaURL    *string
	CapturedAt  *time.Time
}

// AppliedTag is a tag applied to an identifier. Value is nil for
// boolean tags.
type AppliedTag struct {
	TagTitle string
	Value    *string
}

// JournalEntryRef is a causal reference to a journal entry, not a full
// entry: the triggering entry embedded in an identifier message and the
// optional related-entry list both use it.
type JournalEntryRef struct {
	ID          string
	Type        string
	Description string
	PerformedAt *time.Time
}

// JournalEntryMessage is one reported activity flowing through a
// journal_entry stream.
type JournalEntryMessage struct {
	ID           string
	Type         string
	Description  string
	Details      map[string]any
	PerformedAt  *time.Time
	Confidence   float64
	StartTime    *time.Time
	EndTime      *time.Time
	IsTest       bool
	Originator   *OriginatorRef
	Identifiers  []IdentifierSummary
	Evidence     []EvidenceSummary
	StreamCursor string
}

func (JournalEntryMessage) Kind() MessageKind { return KindJournalEntry }

func (m JournalEntryMessage) Cursor() string { return m.StreamCursor }

// IdentifierMessage is one identifier state change flowing through an
// identifier stream.
type IdentifierMessage struct {
	IdentifierID           string
	Type                   string
	DisplayValue           string
	Confidence             float64
	ModifiedAt             *time.Time
	IsTest                 bool
	OriginatorID           string
	Tags                   []AppliedTag
	Details                IdentifierDetails
	TriggeringJournalEntry *JournalEntryRef
	RelatedJournalEntries  []JournalEntryRef
	StreamCursor           string
}

func (IdentifierMessage) Kind() MessageKind { return KindIdentifier }

func (m IdentifierMessage) Cursor() string { return m.StreamCursor }

// BatchError records a decode failure at one position of a batch.
type BatchError struct {
	Index int
	Err   error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("message %d: %v", e.Index, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }

func requireString(raw map[string]any, key string) (string, error) {
	s, ok := lookupString(raw, key)
	if !ok {
		return "", MalformedMessageError{Field: key, Reason: "missing in both snake_case and camelCase"}
	}
	return s, nil
}

func requireConfidence(raw map[string]any) (float64, error) {
	c, ok := lookupFloat(raw, "confidence")
	if !ok {
		return 0, MalformedMessageError{Field: "confidence", Reason: "missing in both snake_case and camelCase"}
	}
	if c < 0.0 || c > 1.0 {
		return 0, MalformedMessageError{Field: "confidence", Reason: fmt.Sprintf("value %v outside [0, 1]", c)}
	}
	return c, nil
}

// DecodeMessage converts one raw wire message into its typed variant.
// When dataType is known it decides the variant; otherwise the presence
// of identifier_id disambiguates. Required fields (type, confidence,
// cursor) missing in both casings, or a confidence outside [0, 1], yield
// a MalformedMessageError.
func DecodeMessage(raw map[string]any, dataType DataType) (Message, error) {
	switch dataType {
	case DataTypeIdentifier:
		return decodeIdentifierMessage(raw)
	case DataTypeJournalEntry:
		return decodeJournalEntryMessage(raw)
	}
	if _, ok := lookup(raw, "identifier_id"); ok {
		return decodeIdentifierMessage(raw)
	}
	return decodeJournalEntryMessage(raw)
}

// DecodeBatch decodes each raw message independently, preserving order.
// Malformed messages are collected per index rather than aborting the
// batch, so a single bad message never blocks progress through an
// otherwise healthy stream.
func DecodeBatch(raws []map[string]any, dataType DataType) ([]Message, []BatchError) {
	messages := make([]Message, 0, len(raws))
	var errs []BatchError
	for i, raw := range raws {
		msg, err := DecodeMessage(raw, dataType)
		if err != nil {
			errs = append(errs, BatchError{Index: i, Err: err})
			continue
		}
		messages = append(messages, msg)
	}
	return messages, errs
}

func decodeJournalEntryMessage(raw map[string]any) (Message, error) {
	var msg JournalEntryMessage
	var err error

	if msg.Type, err = requireString(raw, "type"); err != nil {
		return nil, err
	}
	if msg.Confidence, err = requireConfidence(raw); err != nil {
		return nil, err
	}
	if msg.StreamCursor, err = requireString(raw, "cursor"); err != nil {
		return nil, err
	}

	msg.ID, _ = lookupString(raw, "id")
	msg.Description, _ = lookupString(raw, "description")
	msg.IsTest, _ = lookupBool(raw, "is_test")
	msg.PerformedAt, _ = lookupTime(raw, "performed_at")
	msg.StartTime, _ = lookupTime(raw, "start_time")
	msg.EndTime, _ = lookupTime(raw, "end_time")

	if details, ok := lookupMap(raw, "details"); ok {
		msg.Details = details
	}

	if orig, ok := lookupMap(raw, "originator"); ok {
		ref := OriginatorRef{}
		ref.ID, _ = lookupString(orig, "id")
		ref.Name, _ = lookupString(orig, "name")
		msg.Originator = &ref
	}

	if idents, ok := lookupSlice(raw, "identifiers"); ok {
		for _, item := range idents {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			msg.Identifiers = append(msg.Identifiers, decodeIdentifierSummary(m))
		}
	}

	if evidence, ok := lookupSlice(raw, "evidence"); ok {
		for _, item := range evidence {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			msg.Evidence = append(msg.Evidence, decodeEvidenceSummary(m))
		}
	}

	return msg, nil
}

func decodeIdentifierMessage(raw map[string]any) (Message, error) {
	var msg IdentifierMessage
	var err error

	if msg.Type, err = requireString(raw, "type"); err != nil {
		return nil, err
	}
	if msg.Confidence, err = requireConfidence(raw); err != nil {
		return nil, err
	}
	if msg.StreamCursor, err = requireString(raw, "cursor"); err != nil {
		return nil, err
	}

	msg.IdentifierID, _ = lookupString(raw, "identifier_id")
	msg.DisplayValue, _ = lookupString(raw, "display_value")
	msg.OriginatorID, _ = lookupString(raw, "originator_id")
	msg.IsTest, _ = lookupBool(raw, "is_test")
	msg.ModifiedAt, _ = lookupTime(raw, "modified_at")

	if details, ok := lookupMap(raw, "details"); ok {
		msg.Details = DecodeIdentifierDetails(msg.Type, details)
	}

	if tags, ok := lookupSlice(raw, "tags"); ok {
		for _, item := range tags {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			tag := AppliedTag{Value: optString(m, "value")}
			tag.TagTitle, _ = lookupString(m, "tag_title")
			msg.Tags = append(msg.Tags, tag)
		}
	}

	if tje, ok := lookupMap(raw, "triggering_journal_entry"); ok {
		ref := decodeJournalEntryRef(tje)
		msg.TriggeringJournalEntry = &ref
	}

	if related, ok := lookupSlice(raw, "related_journal_entries"); ok {
		for _, item := range related {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			msg.RelatedJournalEntries = append(msg.RelatedJournalEntries, decodeJournalEntryRef(m))
		}
	}

	return msg, nil
}

func decodeIdentifierSummary(raw map[string]any) IdentifierSummary {
	var s IdentifierSummary
	s.IdentifierID, _ = lookupString(raw, "identifier_id")
	if s.IdentifierID == "" {
		s.IdentifierID, _ = lookupString(raw, "id")
	}
	s.Type, _ = lookupString(raw, "type")
	s.DisplayValue, _ = lookupString(raw, "display_value")
	s.Confidence, _ = lookupFloat(raw, "confidence")
	if details, ok := lookupMap(raw, "details"); ok {
		s.Details = DecodeIdentifierDetails(s.Type, details)
	}
	return s
}

func decodeEvidenceSummary(raw map[string]any) EvidenceSummary {
	var s EvidenceSummary
	s.ID, _ = lookupString(raw, "id")
	s.Type, _ = lookupString(raw, "type")
	s.Description, _ = lookupString(raw, "description")
	s.MediaURL = optString(raw, "media_url")
	s.CapturedAt, _ = lookupTime(raw, "captured_at")
	return s
}

func decodeJournalEntryRef(raw map[string]any) JournalEntryRef {
	var ref JournalEntryRef
	ref.ID, _ = lookupString(raw, "id")
	ref.Type, _ = lookupString(raw, "type")
	ref.Description, _ = lookupString(raw, "description")
	ref.PerformedAt, _ = lookupTime(raw, "performed_at")
	return ref
}
