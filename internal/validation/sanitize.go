package validation

import "math"

var piiKeys = map[string]struct{}{
	"user_email": {},
	"user_name":  {},
}

// Sanitize returns a deep copy of raw with identity fields removed at every
// depth and non-finite numbers replaced by null. Non-object input yields an empty object.
func Sanitize(raw any) map[string]any {
	record, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return sanitizeMap(record)
}

func sanitizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if _, pii := piiKeys[k]; pii {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sanitizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = sanitizeValue(item)
		}
		return out
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil
		}
		return t
	default:
		return v
	}
}
