// Package expressions provides sandboxed expression engines used for edge
// conditions and data transformation tools: CEL for boolean routing, Expr for
// general evaluation, and GoJQ for JSON reshaping.
package expressions

import "context"

// Engine evaluates an expression string against a data scope.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Truthy reduces an evaluation result to a routing decision. Booleans pass
// through, nil is false, empty strings and zero numbers are false, and any
// other value is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	default:
		return true
	}
}
