package config

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// maxExpansionPasses bounds nested placeholder resolution; self-referencing
// values stop expanding instead of looping.
const maxExpansionPasses = 10

// ExpandPlaceholders replaces ${a.b.c} in every string value with the value found
// at that dotted path in tree. Unknown paths expand to the empty string.
func ExpandPlaceholders(tree map[string]any) map[string]any {
	out, _ := expandValue(tree, tree).(map[string]any)
	return out
}

func expandValue(v any, root map[string]any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = expandValue(item, root)
		}
		return m
	case []any:
		l := make([]any, len(val))
		for i, item := range val {
			l[i] = expandValue(item, root)
		}
		return l
	case string:
		return expandString(val, root)
	default:
		return v
	}
}

func expandString(s string, root map[string]any) string {
	for i := 0; i < maxExpansionPasses && placeholderPattern.MatchString(s); i++ {
		s = placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
			key := placeholderPattern.FindStringSubmatch(match)[1]
			return lookup(root, key)
		})
	}
	return s
}

func lookup(root map[string]any, dotted string) string {
	var cur any = root
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[part]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
