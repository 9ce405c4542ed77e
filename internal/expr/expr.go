// Package expr evaluates the small govaluate expressions used by DAG edge
// transforms and the Calculator tool. Only whitelisted functions are callable.
package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"
)

// FunctionRegistry holds the functions expressions may call.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]govaluate.ExpressionFunction
}

var globalFuncs = newBuiltinRegistry()

// RegisterFunction makes fn callable from every expression compiled afterwards.
func RegisterFunction(name string, fn govaluate.ExpressionFunction) {
	globalFuncs.mu.Lock()
	defer globalFuncs.mu.Unlock()
	globalFuncs.functions[name] = fn
}

// whitelist returns a snapshot of the registered functions.
func whitelist() map[string]govaluate.ExpressionFunction {
	globalFuncs.mu.RLock()
	defer globalFuncs.mu.RUnlock()
	out := make(map[string]govaluate.ExpressionFunction, len(globalFuncs.functions))
	for k, v := range globalFuncs.functions {
		out[k] = v
	}
	return out
}

// Expression is a compiled expression.
type Expression struct {
	source string
	eval   *govaluate.EvaluableExpression
}

// Compile parses source against the whitelisted functions.
func Compile(source string) (*Expression, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("expression cannot be empty")
	}
	eval, err := govaluate.NewEvaluableExpressionWithFunctions(source, whitelist())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	return &Expression{source: source, eval: eval}, nil
}

// Validate checks that source compiles.
func Validate(source string) error {
	_, err := Compile(source)
	return err
}

// String returns the expression source.
func (e *Expression) String() string { return e.source }

// Vars returns the variable names the expression references.
func (e *Expression) Vars() []string { return e.eval.Vars() }

// Evaluate runs the expression with params bound as variables.
func (e *Expression) Evaluate(params map[string]any) (any, error) {
	out, err := e.eval.Evaluate(params)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", e.source, err)
	}
	return out, nil
}

// Bind exposes value as the variable "result". When value is a JSON object
// (a map or a struct), its top-level fields are bound as variables too, so
// "summary" and "get(result, 'summary')" are equivalent.
func Bind(value any) map[string]any {
	params := map[string]any{"result": normalize(value)}
	if m, ok := params["result"].(map[string]any); ok {
		for k, v := range m {
			if _, taken := params[k]; !taken {
				params[k] = v
			}
		}
	}
	return params
}

// normalize converts structs into generic JSON values so govaluate sees
// float64, string, bool, []any and map[string]any only.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	case int:
		return float64(v.(int))
	case int64:
		return float64(v.(int64))
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func newBuiltinRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: map[string]govaluate.ExpressionFunction{
		"get": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("get expects 2 arguments, got %d", len(args))
			}
			key, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("get: key must be a string")
			}
			m, ok := normalize(args[0]).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("get: %T is not an object", args[0])
			}
			return m[key], nil
		},
		"len": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("len expects 1 argument")
			}
			switch v := normalize(args[0]).(type) {
			case string:
				return float64(len(v)), nil
			case []any:
				return float64(len(v)), nil
			case map[string]any:
				return float64(len(v)), nil
			}
			return nil, fmt.Errorf("len: unsupported type %T", args[0])
		},
		"upper": stringFunc("upper", strings.ToUpper),
		"lower": stringFunc("lower", strings.ToLower),
		"trim":  stringFunc("trim", strings.TrimSpace),
		"concat": func(args ...any) (any, error) {
			var b strings.Builder
			for _, a := range args {
				fmt.Fprint(&b, a)
			}
			return b.String(), nil
		},
		"abs":   floatFunc("abs", math.Abs),
		"sqrt":  floatFunc("sqrt", math.Sqrt),
		"floor": floatFunc("floor", math.Floor),
		"ceil":  floatFunc("ceil", math.Ceil),
		"round": floatFunc("round", math.Round),
		"pow": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("pow expects 2 arguments")
			}
			x, ok1 := args[0].(float64)
			y, ok2 := args[1].(float64)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("pow: arguments must be numbers")
			}
			return math.Pow(x, y), nil
		},
		"min": reduceFunc("min", math.Min),
		"max": reduceFunc("max", math.Max),
	}}
}

func stringFunc(name string, fn func(string) string) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument", name)
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: argument must be a string", name)
		}
		return fn(s), nil
	}
}

func floatFunc(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument", name)
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%s: argument must be a number", name)
		}
		return fn(x), nil
	}
}

func reduceFunc(name string, fn func(a, b float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s expects at least 1 argument", name)
		}
		acc, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%s: arguments must be numbers", name)
		}
		for _, a := range args[1:] {
			x, ok := a.(float64)
			if !ok {
				return nil, fmt.Errorf("%s: arguments must be numbers", name)
			}
			acc = fn(acc, x)
		}
		return acc, nil
	}
}
