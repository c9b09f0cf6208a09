package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// DecisionFormatError reports an oracle reply that is not exactly one usable
// decision object.
type DecisionFormatError struct {
	Reason string
}

func (e *DecisionFormatError) Error() string {
	return "invalid decision: " + e.Reason
}

// fencedJSON matches ```json ... ``` blocks.
var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ParseDecision extracts the single decision object from a raw oracle reply.
//
// The reply may wrap the object in prose or markdown. When it holds several
// objects, a lone ```json fenced block wins; otherwise the reply is rejected.
// Keys are matched case-insensitively. Arguments may sit under "args" or next
// to "action"; both are flattened into one map, with "args" taking precedence.
func ParseDecision(raw string) (Decision, error) {
	objects := scanObjects(raw)
	var obj map[string]any
	switch len(objects) {
	case 0:
		return Decision{}, &DecisionFormatError{Reason: fmt.Sprintf("no JSON object found in response: %s", truncate(raw, 200))}
	case 1:
		obj = objects[0]
	default:
		fenced := fencedObjects(raw)
		if len(fenced) != 1 {
			return Decision{}, &DecisionFormatError{Reason: fmt.Sprintf("response contains %d JSON objects, expected exactly one", len(objects))}
		}
		obj = fenced[0]
	}

	obj = lowerKeys(obj).(map[string]any)

	name, _ := obj["action"].(string)
	name = normalizeActionName(name)
	if name == "" {
		return Decision{}, &DecisionFormatError{Reason: "AI response JSON missing 'action' key."}
	}

	args := make(map[string]any, len(obj))
	for k, v := range obj {
		if k != "action" && k != "args" {
			args[k] = v
		}
	}
	switch nested := obj["args"].(type) {
	case nil:
	case map[string]any:
		for k, v := range nested {
			args[k] = v
		}
	default:
		return Decision{}, &DecisionFormatError{Reason: fmt.Sprintf("'args' must be an object, got %T", nested)}
	}

	return Decision{Action: name, Args: args}, nil
}

// normalizeActionName trims whitespace and a trailing call suffix.
func normalizeActionName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(s), "()", ""))
}

// scanObjects returns every top-level {...} span of s that decodes as a JSON
// object. String literals are honored so braces inside them do not count.
func scanObjects(s string) []map[string]any {
	var out []map[string]any
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(s[start:i+1]), &obj); err == nil && obj != nil {
					out = append(out, obj)
				}
			}
		}
	}
	return out
}

func fencedObjects(s string) []map[string]any {
	var out []map[string]any
	for _, m := range fencedJSON.FindAllStringSubmatch(s, -1) {
		out = append(out, scanObjects(m[1])...)
	}
	return out
}

// lowerKeys lowercases map keys at every depth.
func lowerKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.ToLower(k)] = lowerKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = lowerKeys(val)
		}
		return out
	default:
		return v
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
