package tools

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Models send numbers as float64, strings or ints depending on the provider,
// so every argument goes through cast.

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing '%s' argument", key)
	}
	s, err := cast.ToStringE(raw)
	if err != nil || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing or invalid '%s' argument", key)
	}
	return strings.TrimSpace(s), nil
}

func floatArg(args map[string]any, key string) (float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing '%s' argument", key)
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' argument: %w", key, err)
	}
	return f, nil
}

func optionalFloat(args map[string]any, key string, def float64) (float64, error) {
	if raw, ok := args[key]; !ok || raw == nil {
		return def, nil
	}
	return floatArg(args, key)
}

func intArg(args map[string]any, key string) (int, error) {
	f, err := floatArg(args, key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("invalid '%s' argument: %v is not a whole number", key, f)
	}
	return int(f), nil
}

func optionalInt(args map[string]any, key string, def int) (int, error) {
	if raw, ok := args[key]; !ok || raw == nil {
		return def, nil
	}
	return intArg(args, key)
}

func optionalBool(args map[string]any, key string, def bool) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return def, fmt.Errorf("invalid '%s' argument: %w", key, err)
	}
	return b, nil
}

func optionalString(args map[string]any, key, def string) string {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def
	}
	if s := strings.TrimSpace(cast.ToString(raw)); s != "" {
		return s
	}
	return def
}
