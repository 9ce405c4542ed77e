package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coerce converts a value supplied by the model or a Go caller to kind.
// Models send every value as a string; Go callers may send typed values.
func coerce(v any, kind Kind) (any, error) {
	if s, ok := v.(string); ok {
		return coerceString(s, kind)
	}

	switch kind {
	case KindAny, "":
		return v, nil
	case KindStr:
		return fmt.Sprint(v), nil
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int(n), nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindList:
		switch l := v.(type) {
		case []any:
			return l, nil
		case []string:
			out := make([]any, len(l))
			for i, s := range l {
				out[i] = s
			}
			return out, nil
		}
	case KindDict:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}

func coerceString(s string, kind Kind) (any, error) {
	switch kind {
	case KindAny, KindStr, "":
		return s, nil
	case KindInt:
		s = strings.TrimSpace(s)
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return int(f), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case KindList:
		var l []any
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			return nil, fmt.Errorf("%q is not a JSON list", s)
		}
		return l, nil
	case KindDict:
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("%q is not a JSON object", s)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown parameter type %s", kind)
}

// bind matches supplied arguments to the method's parameters. Unknown names,
// missing required parameters and failed coercions are all errors.
func bind(m *Method, supplied map[string]any) (Args, error) {
	declared := make(map[string]Param, len(m.Params))
	for _, p := range m.Params {
		declared[p.Name] = p
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("unexpected parameter %q", name)
		}
	}

	args := make(Args, len(m.Params))
	for _, p := range m.Params {
		v, ok := supplied[p.Name]
		if !ok {
			if !p.HasDefault {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			args[p.Name] = p.Default
			continue
		}
		c, err := coerce(v, p.Kind)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		args[p.Name] = c
	}
	return args, nil
}
