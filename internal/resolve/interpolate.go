package resolve

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rtconf/rtconf/internal/document"
)

// buildVars flattens the interpolation namespace. Server-side environ
// entries come first, then the client's environ bag, then the client's
// remaining top-level context keys. The client wins on collision.
func buildVars(envVars map[string]any, clientCtx map[string]any) map[string]string {
	vars := make(map[string]string, len(envVars)+len(clientCtx))
	for k, v := range envVars {
		vars[k] = formatScalar(v)
	}
	if bag, ok := clientCtx[document.KeyEnviron].(map[string]any); ok {
		for k, v := range bag {
			vars[k] = formatScalar(v)
		}
	}
	for k, v := range clientCtx {
		if k == document.KeyEnviron {
			continue
		}
		vars[k] = formatScalar(v)
	}
	return vars
}

// formatScalar renders a substitution value. Integral floats print without
// a fraction so numbers survive a JSON round trip unchanged.
func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return formatScalar(float64(t))
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// interpolate walks the resolved value and expands placeholders in every
// string, leaving other types untouched.
func interpolate(v any, vars map[string]string) any {
	switch t := v.(type) {
	case string:
		return expand(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = interpolate(val, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = interpolate(val, vars)
		}
		return out
	default:
		return v
	}
}

// expand substitutes {name} placeholders in one pass. {{ and }} escape to
// literal braces, unknown names expand to the empty string, and anything
// that is not a well-formed placeholder passes through verbatim.
func expand(s string, vars map[string]string) string {
	if !strings.ContainsAny(s, "{}") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			j := strings.IndexByte(s[i+1:], '}')
			if j < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			name := s[i+1 : i+1+j]
			if placeholderName(name) {
				b.WriteString(vars[name])
			} else {
				b.WriteString(s[i : i+j+2])
			}
			i += j + 2
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			b.WriteByte('}')
			i++
		default:
			k := strings.IndexAny(s[i:], "{}")
			if k < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(s[i : i+k])
			i += k
		}
	}
	return b.String()
}

func placeholderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return false
	}
	return true
}
