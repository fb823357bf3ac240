package stream

// getString extracts a string value from a map, returning empty string if not found or wrong type.
func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getFloat extracts a float value from a map, returning 0 if not found or wrong type.
// JSON numbers decode as float64.
func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

// getInt64 extracts an integer value from a map, returning 0 if not found or wrong type.
// Handles JSON numbers which are decoded as float64.
func getInt64(m map[string]any, key string) int64 {
	if v, ok := m[key].(float64); ok {
		return int64(v)
	}
	return 0
}

// getBool extracts a bool value from a map, returning false if not found or wrong type.
func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// getMap extracts a nested map from a map, returning nil if not found or wrong type.
func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// getSlice extracts a slice from a map, returning nil if not found or wrong type.
func getSlice(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}
