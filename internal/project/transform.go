package project

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/concrete-go/internal/expr"
)

// Transform maps a parent's result to the value its child receives.
type Transform func(result any) (any, error)

// Identity passes the result unchanged.
func Identity(result any) (any, error) { return result, nil }

// Field selects one top-level field of an object result.
func Field(key string) Transform {
	return func(result any) (any, error) {
		obj, ok := expr.Bind(result)["result"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result of type %T has no field %q", result, key)
		}
		v, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("result has no field %q", key)
		}
		return v, nil
	}
}

// Expression compiles a govaluate expression over the variable "result"
// and, for object results, their top-level fields.
func Expression(source string) (Transform, error) {
	e, err := expr.Compile(source)
	if err != nil {
		return nil, err
	}
	return func(result any) (any, error) {
		return e.Evaluate(expr.Bind(result))
	}, nil
}

// ParseTransform reads the transform notation of DAG files: empty or
// "identity", "field:<key>", or an expression.
func ParseTransform(src string) (Transform, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "" || src == "identity":
		return Identity, nil
	case strings.HasPrefix(src, "field:"):
		key := strings.TrimSpace(strings.TrimPrefix(src, "field:"))
		if key == "" {
			return nil, fmt.Errorf("field transform needs a key")
		}
		return Field(key), nil
	}
	return Expression(src)
}
