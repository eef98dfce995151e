package convert

// ToStringSlice converts various slice types to []string. Used by the
// pattern matcher to evaluate `in`-modifier/IN-operator conditions against
// a literal set of strings.
//
// Supported types:
//   - []string (returned as-is)
//   - []interface{} (each element must already be a string)
func ToStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			if s, ok := item.(string); ok {
				result[i] = s
			} else {
				return nil
			}
		}
		return result
	}
	return nil
}
