package generator

import (
	"strconv"
	"strings"
	"time"
)

// Aggregate is the read-only deal/client/vehicle/dealership data source
// consumed during generation. It is supplied by external record management;
// this core only resolves dotted paths into it.
type Aggregate map[string]any

// Resolve returns the string rendering of a dotted path, or "" when any
// segment is missing. Composite paths join several leaves of one section
// with spaces: "client.firstName+lastName".
func (a Aggregate) Resolve(path string) string {
	dot := strings.Index(path, ".")
	if dot < 0 {
		return renderValue(a[path])
	}

	section, rest := path[:dot], path[dot+1:]
	if strings.Contains(rest, "+") {
		var parts []string
		for _, leaf := range strings.Split(rest, "+") {
			if v := a.resolvePlain(section + "." + leaf); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	}
	return a.resolvePlain(path)
}

func (a Aggregate) resolvePlain(path string) string {
	var current any = map[string]any(a)
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			if agg, ok := current.(Aggregate); ok {
				node = map[string]any(agg)
			} else {
				return ""
			}
		}
		current, ok = node[segment]
		if !ok {
			return ""
		}
	}
	return renderValue(current)
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return ""
	}
}
