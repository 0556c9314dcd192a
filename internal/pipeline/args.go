package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// FilterArgs turns the "<prefix>-<arg>" entries of args into a command line
// for one tool, ordered by key:
//
//	"false", "none", false, nil, []   -> omitted
//	"true", true                      -> -arg
//	list                              -> -arg "a b c"
//	anything else                     -> -arg value
func FilterArgs(args map[string]any, prefix string) []string {
	p := prefix + "-"
	keys := make([]string, 0, len(args))
	for k := range args {
		if strings.HasPrefix(k, p) && len(k) > len(p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		flag := "-" + k[len(p):]
		value, emit := argValue(args[k])
		if !emit {
			continue
		}
		out = append(out, flag)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

// argValue reports the flag value to emit, "" for a bare flag, and whether
// the flag is emitted at all.
func argValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case bool:
		return "", x
	case string:
		switch x {
		case "false", "none":
			return "", false
		case "true":
			return "", true
		}
		return x, true
	case []any:
		if len(x) == 0 {
			return "", false
		}
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, " "), true
	case []string:
		if len(x) == 0 {
			return "", false
		}
		return strings.Join(x, " "), true
	}
	return fmt.Sprint(v), true
}
