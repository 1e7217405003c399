package platform

import "fmt"

// toInt converts the numeric types a decoded payload may carry to int.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// parseString extracts a string from an any value.
func parseString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// parseBool extracts a bool from an any value.
func parseBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// parseMap extracts a map[string]any from an any value.
func parseMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return nil
}

// parseStrings extracts a string slice; non-string elements fail the parse.
func parseStrings(value any) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// parseInts extracts an int slice; non-integer elements fail the parse.
func parseInts(value any) ([]int, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []int:
		return v, true
	case []any:
		out := make([]int, 0, len(v))
		for _, e := range v {
			n, ok := toInt(e)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}
