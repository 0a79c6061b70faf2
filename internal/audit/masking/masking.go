package masking

import "strings"

const maskToken = "****"

// MaskSecret keeps the key prefix and the last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskKeys returns a copy of input where string values under the given keys
// are masked. Blank keys are dropped.
func MaskKeys(input map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(input))
	secret := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		secret[key] = struct{}{}
	}

	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := secret[key]; ok {
			if str, isString := value.(string); isString {
				value = MaskSecret(str)
			}
		}
		out[key] = value
	}
	return out
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
