package common

import (
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
)

// Arguments returns the request arguments as a map, empty when absent.
func Arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return make(map[string]interface{})
	}
	return args
}

// StringArg returns args[name] when it is a string, "" otherwise.
func StringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

// BoolArg returns args[name] when it is a bool, def otherwise.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// IntArg returns args[name] as an int. JSON numbers arrive as float64; a
// missing argument yields def.
func IntArg(args map[string]interface{}, name string, def int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be a whole number", name)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
}
