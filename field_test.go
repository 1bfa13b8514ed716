package scambus

import "testing"

func TestCamelKey(t *testing.T) {
	cases := map[string]string{
		"identifier_id":            "identifierId",
		"display_value":            "displayValue",
		"triggering_journal_entry": "triggeringJournalEntry",
		"cursor":                   "cursor",
		"is_toll_free":             "isTollFree",
	}
	for snake, camel := range cases {
		if got := camelKey(snake); got != camel {
			t.Fatalf("camelKey(%q) = %q, want %q", snake, got, camel)
		}
	}
}

func TestLookupPrefersSnakeCase(t *testing.T) {
	raw := map[string]any{
		"display_value": "snake",
		"displayValue":  "camel",
	}
	v, ok := lookupString(raw, "display_value")
	if !ok || v != "snake" {
		t.Fatalf("expected snake_case to win, got %q ok=%v", v, ok)
	}
}

func TestLookupFallsBackToCamelCase(t *testing.T) {
	raw := map[string]any{"displayValue": "camel"}
	v, ok := lookupString(raw, "display_value")
	if !ok || v != "camel" {
		t.Fatalf("expected camelCase fallback, got %q ok=%v", v, ok)
	}
}

func TestLookupMissingInBothCasings(t *testing.T) {
	if _, ok := lookupString(map[string]any{}, "display_value"); ok {
		t.Fatalf("expected lookup to miss")
	}
}

func TestLookupFloatAcceptsIntegers(t *testing.T) {
	raw := map[string]any{"confidence": 1}
	v, ok := lookupFloat(raw, "confidence")
	if !ok || v != 1.0 {
		t.Fatalf("expected 1.0, got %v ok=%v", v, ok)
	}
}

func TestLookupTime(t *testing.T) {
	raw := map[string]any{"performedAt": "2024-03-01T12:00:00Z"}
	ts, ok := lookupTime(raw, "performed_at")
	if !ok || ts == nil {
		t.Fatalf("expected timestamp to parse")
	}
	if ts.Year() != 2024 || ts.Month() != 3 {
		t.Fatalf("unexpected timestamp %v", ts)
	}

	raw = map[string]any{"performed_at": "not a time"}
	if _, ok := lookupTime(raw, "performed_at"); ok {
		t.Fatalf("expected invalid timestamp to miss")
	}
}
