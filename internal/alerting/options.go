package alerting

import (
	"fmt"
	"time"
)

// channel options arrive from TOML (int64), YAML (int) or JSON (float64) decoding

func optString(config map[string]interface{}, key string) (string, bool) {
	v, ok := config[key].(string)
	return v, ok && v != ""
}

func optInt(config map[string]interface{}, key string) (int, bool) {
	switch v := config[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func optBool(config map[string]interface{}, key string) (bool, bool) {
	v, ok := config[key].(bool)
	return v, ok
}

// optDuration accepts a duration string ("10s") or a number of seconds
func optDuration(config map[string]interface{}, key string) (time.Duration, error) {
	if s, ok := config[key].(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	if n, ok := optInt(config, key); ok {
		return time.Duration(n) * time.Second, nil
	}
	return 0, nil
}

func optStrings(config map[string]interface{}, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

func optStringMap(config map[string]interface{}, key string) map[string]string {
	out := make(map[string]string)
	switch v := config[key].(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// optChatID accepts telegram chat ids written as strings or numbers
func optChatID(config map[string]interface{}, key string) (string, bool) {
	if s, ok := optString(config, key); ok {
		return s, true
	}
	if n, ok := config[key].(int64); ok {
		return fmt.Sprintf("%d", n), true
	}
	if n, ok := optInt(config, key); ok {
		return fmt.Sprintf("%d", n), true
	}
	return "", false
}
