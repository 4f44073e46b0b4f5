package tools

import (
	"math"
	"strings"
)

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// floatArg returns nil when the argument is absent.
func floatArg(args map[string]any, key string) *float64 {
	n, ok := toFloat(args[key])
	if !ok {
		return nil
	}
	return &n
}

func intArg(args map[string]any, key string) *int {
	n, ok := toFloat(args[key])
	if !ok {
		return nil
	}
	i := int(math.Round(n))
	return &i
}
