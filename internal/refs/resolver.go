// Package refs rewrites tool argument trees, substituting {{tool.path}}
// placeholders with values pulled from the results of prior tool calls in
// the same run. Placeholders are implicit data-flow edges between sequential
// tool calls; resolving them is an explicit tree-walk pass so it can be
// tested independently of any particular tool.
package refs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/skeinflow/skein/pkg/schema"
)

// placeholderPattern matches {{toolName.path.to.value}} and a bare
// {{toolName}} reference to a whole result.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Resolve walks the argument tree and substitutes every placeholder it can
// resolve against prior tool calls. Non-string leaves pass through
// untouched. Placeholders that reference an unknown tool or an unresolvable
// path are left verbatim so the failure stays visible to the caller instead
// of being swallowed as an empty value. The input is never mutated.
func Resolve(args map[string]any, calls []schema.ToolCall) map[string]any {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = resolveValue(v, calls)
	}
	return out
}

func resolveValue(v any, calls []schema.ToolCall) any {
	switch val := v.(type) {
	case string:
		return resolveString(val, calls)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = resolveValue(inner, calls)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = resolveValue(inner, calls)
		}
		return out
	default:
		return v
	}
}

// resolveString handles one string leaf. When the whole string is a single
// placeholder the resolved value keeps its original type; placeholders
// embedded in a longer string are stringified in place.
func resolveString(s string, calls []schema.ToolCall) any {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	// Whole-string placeholder: return the typed value.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := s[matches[0][2]:matches[0][3]]
		if val, ok := lookup(ref, calls); ok {
			return val
		}
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		ref := s[m[2]:m[3]]
		if val, ok := lookup(ref, calls); ok {
			b.WriteString(stringify(val))
		} else {
			b.WriteString(s[m[0]:m[1]]) // unresolved: keep verbatim
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// lookup resolves "toolName.path.to.value" against prior calls. Calls are
// scanned right to left so the most recent invocation of a tool wins when
// it was called more than once.
func lookup(ref string, calls []schema.ToolCall) (any, bool) {
	segments := strings.Split(ref, ".")
	toolName := segments[0]
	path := segments[1:]

	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Name != toolName {
			continue
		}
		if len(path) == 0 {
			return calls[i].Result, true
		}
		return resolvePath(calls[i].Result, path)
	}
	return nil, false
}

// resolvePath tries the full dotted path against the result, then falls
// back to successive suffix reduction down to the last single segment. So
// create_workflow.workflow.id resolves to result.id when the result has no
// nested workflow field.
func resolvePath(root any, path []string) (any, bool) {
	for start := 0; start < len(path); start++ {
		if val, ok := traverse(root, path[start:]); ok {
			return val, true
		}
	}
	return nil, false
}

func traverse(root any, path []string) (any, bool) {
	current := root
	for _, seg := range path {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// stringify renders a resolved value for embedding inside a longer string.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// HasPlaceholders checks whether an argument tree contains any {{...}}
// references, letting callers skip the resolution pass.
func HasPlaceholders(args map[string]any) bool {
	return hasPlaceholdersValue(args)
}

func hasPlaceholdersValue(v any) bool {
	switch val := v.(type) {
	case string:
		return placeholderPattern.MatchString(val)
	case map[string]any:
		for _, inner := range val {
			if hasPlaceholdersValue(inner) {
				return true
			}
		}
	case []any:
		for _, inner := range val {
			if hasPlaceholdersValue(inner) {
				return true
			}
		}
	}
	return false
}
