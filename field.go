package scambus

import (
	"strings"
	"time"
)

// The wire format has drifted between snake_case and camelCase over API
// revisions, and both are still in the wild. Every field access during
// decoding goes through lookup, which tries the canonical snake_case key
// first and falls back to its camelCase equivalent. Serialization always
// emits snake_case.

func camelKey(snake string) string {
	if !strings.Contains(snake, "_") {
		return snake
	}
	parts := strings.Split(snake, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func lookup(raw map[string]any, key string) (any, bool) {
	if v, ok := raw[key]; ok {
		return v, true
	}
	if v, ok := raw[camelKey(key)]; ok {
		return v, true
	}
	return nil, false
}

func lookupString(raw map[string]any, key string) (string, bool) {
	v, ok := lookup(raw, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func lookupFloat(raw map[string]any, key string) (float64, bool) {
	v, ok := lookup(raw, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func lookupBool(raw map[string]any, key string) (bool, bool) {
	v, ok := lookup(raw, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func lookupMap(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := lookup(raw, key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func lookupSlice(raw map[string]any, key string) ([]any, bool) {
	v, ok := lookup(raw, key)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

func lookupTime(raw map[string]any, key string) (*time.Time, bool) {
	s, ok := lookupString(raw, key)
	if !ok || s == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
