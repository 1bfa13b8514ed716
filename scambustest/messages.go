package scambustest

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntry builds a minimal journal entry payload for mock streams.
// The overrides map replaces or adds top-level fields.
func JournalEntry(overrides map[string]any) map[string]any {
	raw := map[string]any{
		"id":           uuid.New().String(),
		"type":         "call",
		"description":  "test journal entry",
		"performed_at": time.Now().UTC().Format(time.RFC3339),
		"confidence":   0.9,
		"is_test":      false,
		"originator":   map[string]any{"id": uuid.New().String(), "name": "mock originator"},
		"identifiers":  []any{},
		"evidence":     []any{},
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return raw
}

// Identifier builds a minimal identifier payload for mock streams.
func Identifier(overrides map[string]any) map[string]any {
	raw := map[string]any{
		"identifier_id": uuid.New().String(),
		"type":          "phone",
		"display_value": "+15555550100",
		"confidence":    0.95,
		"modified_at":   time.Now().UTC().Format(time.RFC3339),
		"is_test":       false,
		"originator_id": uuid.New().String(),
		"tags":          []any{},
		"details": map[string]any{
			"country_code": "1",
			"number":       "5555550100",
		},
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return raw
}
