// Package outcome inspects raw tool results of unknown, heterogeneous shape.
// Tools do not agree on a schema, so classification is a series of decode
// attempts in priority order, falling through to "not a failure".
package outcome

import "strings"

// IsFailure reports whether a tool result should be treated as an error.
// It is pure and total: every input, however malformed, yields a boolean.
//
// Rules, in order:
//  1. Non-map input is a pass-through value, never a failure.
//  2. A string "error" field with non-whitespace content is a failure.
//  3. A numeric non-zero "exitCode" is a failure.
//  4. A numeric "statusCode" or "status" in [400,599] is a failure.
func IsFailure(result any) bool {
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}

	if errStr, ok := m["error"].(string); ok && strings.TrimSpace(errStr) != "" {
		return true
	}

	if code, ok := asNumber(m["exitCode"]); ok && code != 0 {
		return true
	}

	if code, ok := asNumber(m["statusCode"]); ok && code >= 400 && code <= 599 {
		return true
	}
	if code, ok := asNumber(m["status"]); ok && code >= 400 && code <= 599 {
		return true
	}

	return false
}

// asNumber widens the numeric types a JSON-decoded map can carry.
// Non-numeric values (including strings like "500") do not count.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
