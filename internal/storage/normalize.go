package storage

// NormalizeValue converts a driver value into a canonical Go value for
// result sets: []byte becomes string, narrow integer and float types widen to
// int64 and float64. Everything else passes through.
//
// Backends must not assume a particular underlying scan type; this keeps
// report and CLI output consistent across backends.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
