package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/concrete-go/internal/expr"
)

// RegisterBuiltins adds the built-in tools to r.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []*Tool{
		NewArithmetic(),
		NewCalculator(),
		NewHTTPTool(nil),
		NewSearch(),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewArithmetic returns the Arithmetic tool.
func NewArithmetic() *Tool {
	xy := []MethodOption{WithParam("x", KindInt), WithParam("y", KindInt), WithReturns(KindInt)}
	method := func(name, doc string, fn func(x, y int) int) ToolOption {
		return WithMethod(name, func(_ context.Context, a Args) (any, error) {
			return fn(a.Int("x"), a.Int("y")), nil
		}, append(xy, WithDoc(doc))...)
	}

	return NewTool("Arithmetic",
		WithDescription("Integer arithmetic."),
		WithCategory("Math"),
		method("add", "x (int): The first number\n\ty (int): The second number\n\tReturns the sum of x and y",
			func(x, y int) int { return x + y }),
		method("subtract", "x (int): The first number\n\ty (int): The second number\n\tReturns the difference of x and y",
			func(x, y int) int { return x - y }),
		method("multiply", "x (int): The first number\n\ty (int): The second number\n\tReturns the product of x and y",
			func(x, y int) int { return x * y }),
		WithMethod("divide", func(_ context.Context, a Args) (any, error) {
			if a.Int("y") == 0 {
				return nil, errors.New("division by zero")
			}
			return float64(a.Int("x")) / float64(a.Int("y")), nil
		},
			WithParam("x", KindInt), WithParam("y", KindInt), WithReturns(KindFloat),
			WithDoc("x (int): The dividend\n\ty (int): The divisor\n\tReturns x divided by y"),
		),
	)
}

// NewCalculator returns the Calculator tool, which evaluates arithmetic expressions.
func NewCalculator() *Tool {
	return NewTool("Calculator",
		WithDescription("Evaluates a mathematical expression."),
		WithCategory("Math"),
		WithMethod("evaluate", func(_ context.Context, a Args) (any, error) {
			source := a.Str("expression")
			if len(source) > 200 {
				return nil, errors.New("expression too long (max 200 characters)")
			}
			e, err := expr.Compile(source)
			if err != nil {
				return nil, err
			}
			return e.Evaluate(nil)
		},
			WithParam("expression", KindStr),
			WithReturns(KindFloat),
			WithDoc("expression (str): An arithmetic expression such as '5 * (9 + 1)'. Functions: abs, sqrt, pow, min, max, floor, ceil, round.\n\tReturns the value of the expression"),
		),
	)
}

// NewHTTPTool returns the HTTPTool tool. A nil client gets a 30 second timeout.
func NewHTTPTool(client *http.Client) *Tool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	request := func(method string) MethodFunc {
		return func(ctx context.Context, a Args) (any, error) {
			var body io.Reader
			if b := a.Str("body"); b != "" {
				body = strings.NewReader(b)
			}
			req, err := http.NewRequestWithContext(ctx, method, a.Str("url"), body)
			if err != nil {
				return nil, err
			}
			if ct := a.Str("content_type"); ct != "" && body != nil {
				req.Header.Set("Content-Type", ct)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			content, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, err
			}
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, fmt.Errorf("failed request to %s: %s", a.Str("url"), resp.Status)
			}
			return string(content), nil
		}
	}

	return NewTool("HTTPTool",
		WithDescription("Makes HTTP requests."),
		WithCategory("Web"),
		WithMethod("get", request(http.MethodGet),
			WithParam("url", KindStr),
			WithReturns(KindStr),
			WithDoc("url (str): The URL to fetch\n\tReturns the response body. Fails on a non-2xx status"),
		),
		WithMethod("post", request(http.MethodPost),
			WithParam("url", KindStr),
			WithDefault("body", KindStr, ""),
			WithDefault("content_type", KindStr, "application/json"),
			WithReturns(KindStr),
			WithDoc("url (str): The URL to post to\n\tbody (str): The request body\n\tReturns the response body. Fails on a non-2xx status"),
		),
	)
}

// NewSearch returns the Search tool. It is an offline stand-in for a web
// search and returns deterministic snippets.
func NewSearch() *Tool {
	return NewTool("Search",
		WithDescription("Performs a web search for a given query."),
		WithCategory("Web"),
		WithMethod("search", func(_ context.Context, a Args) (any, error) {
			query := strings.TrimSpace(a.Str("query"))
			if query == "" {
				return nil, errors.New("search query cannot be empty")
			}
			if len(query) > 1000 {
				return nil, errors.New("search query too long (max 1000 characters)")
			}
			n := a.Int("limit")
			snippets := make([]string, 0, n)
			for i := 1; i <= n; i++ {
				snippets = append(snippets, fmt.Sprintf("%d. Result for %q", i, query))
			}
			return strings.Join(snippets, "\n"), nil
		},
			WithParam("query", KindStr),
			WithDefault("limit", KindInt, 3),
			WithReturns(KindStr),
			WithDoc("query (str): The search query\n\tlimit (int): How many results to return\n\tReturns search results as text"),
		),
	)
}
