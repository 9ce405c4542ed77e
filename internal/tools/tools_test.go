package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

func newTestTool() *Tool {
	return NewTool("TestTool",
		WithMethod("test", func(_ context.Context, a Args) (any, error) {
			return strings.Repeat(a.Str("idk"), a.Int("another")), nil
		},
			WithParam("idk", KindStr),
			WithDefault("another", KindInt, 5),
			WithReturns(KindStr),
			WithDoc("Repeats idk another times."),
		),
		WithMethod("bare", func(context.Context, Args) (any, error) { return nil, nil }),
		WithMethod("_helper", func(context.Context, Args) (any, error) { return "hidden", nil }),
		WithMethod("fail", func(context.Context, Args) (any, error) { return nil, errors.New("boom") }),
	)
}

func TestToolString(t *testing.T) {
	want := "Tool Name: TestTool\nTool Methods:\n" +
		"   - test(idk: str, another: int = 5) -> str\n\tRepeats idk another times.\n" +
		"   - bare()\n\tNo docstring provided\n" +
		"   - fail()\n\tNo docstring provided"
	if got := newTestTool().String(); got != want {
		t.Errorf("unexpected description:\n%s\nwant:\n%s", got, want)
	}
}

func TestInternalMethodsHidden(t *testing.T) {
	tool := newTestTool()
	if _, ok := tool.Method("_helper"); ok {
		t.Error("internal method should not be resolvable")
	}
	for _, m := range tool.Methods() {
		if m.Name == "_helper" {
			t.Error("internal method should not be listed")
		}
	}
}

func TestInvokeErrors(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newTestTool())
	ctx := context.Background()

	tests := []struct {
		name    string
		tool    string
		method  string
		params  []schema.Param
		want    any
		wantErr *concrete.ConcreteError
	}{
		{
			name:   "valid call",
			tool:   "TestTool",
			method: "test",
			params: []schema.Param{{Name: "idk", Value: "ab"}, {Name: "another", Value: "2"}},
			want:   "abab",
		},
		{
			name:   "default fills missing optional",
			tool:   "TestTool",
			method: "test",
			params: []schema.Param{{Name: "idk", Value: "x"}},
			want:   "xxxxx",
		},
		{
			name:   "model style method name",
			tool:   "TestTool",
			method: "TestTool.test()",
			params: []schema.Param{{Name: "idk", Value: "x"}, {Name: "another", Value: "1"}},
			want:   "x",
		},
		{name: "unknown tool", tool: "Nope", method: "test", wantErr: concrete.ErrToolNotFound},
		{name: "unknown method", tool: "TestTool", method: "nope", wantErr: concrete.ErrToolMethodNotFound},
		{name: "internal method", tool: "TestTool", method: "_helper", wantErr: concrete.ErrToolMethodNotFound},
		{
			name:    "mismatched parameter name",
			tool:    "TestTool",
			method:  "test",
			params:  []schema.Param{{Name: "wrong", Value: "x"}},
			wantErr: concrete.ErrToolInvocation,
		},
		{
			name:    "missing required parameter",
			tool:    "TestTool",
			method:  "test",
			params:  []schema.Param{{Name: "another", Value: "1"}},
			wantErr: concrete.ErrToolInvocation,
		},
		{
			name:    "bad type",
			tool:    "TestTool",
			method:  "test",
			params:  []schema.Param{{Name: "idk", Value: "x"}, {Name: "another", Value: "many"}},
			wantErr: concrete.ErrToolInvocation,
		},
		{name: "method error", tool: "TestTool", method: "fail", wantErr: concrete.ErrToolInvocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Invoke(ctx, tt.tool, tt.method, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %s, got %v", tt.wantErr.Code, err)
				}
				// The three kinds never match each other.
				for _, other := range []error{concrete.ErrToolNotFound, concrete.ErrToolMethodNotFound, concrete.ErrToolInvocation} {
					if other != tt.wantErr && errors.Is(err, other) {
						t.Errorf("error %v also matches %v", err, other)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDuplicateTool(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newTestTool()); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(newTestTool()); !errors.Is(err, concrete.ErrDuplicateRegistration) {
		t.Errorf("expected duplicate registration error, got %v", err)
	}
	if err := r.Register(NewTool("")); !errors.Is(err, concrete.ErrValidation) {
		t.Errorf("expected validation error for unnamed tool, got %v", err)
	}
}

func TestParseMethodName(t *testing.T) {
	tests := map[string]string{
		"add":                 "add",
		"add()":               "add",
		"Arithmetic.add":      "add",
		"Arithmetic.add()":    "add",
		" pkg.Tool.method() ": "method",
	}
	for in, want := range tests {
		if got := ParseMethodName(in); got != want {
			t.Errorf("ParseMethodName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in      any
		kind    Kind
		want    any
		wantErr bool
	}{
		{"42", KindInt, 42, false},
		{"42.0", KindInt, 42, false},
		{"4.5", KindInt, nil, true},
		{float64(7), KindInt, 7, false},
		{"2.5", KindFloat, 2.5, false},
		{3, KindFloat, 3.0, false},
		{"true", KindBool, true, false},
		{"yes", KindBool, nil, true},
		{12, KindStr, "12", false},
		{"x", KindAny, "x", false},
		{true, KindInt, nil, true},
	}
	for _, tt := range tests {
		got, err := coerce(tt.in, tt.kind)
		if (err != nil) != tt.wantErr {
			t.Errorf("coerce(%v, %s) error = %v, wantErr %v", tt.in, tt.kind, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("coerce(%v, %s) = %v (%T), want %v (%T)", tt.in, tt.kind, got, got, tt.want, tt.want)
		}
	}

	l, err := coerce(`["a", 1]`, KindList)
	if err != nil || len(l.([]any)) != 2 {
		t.Errorf("list coercion failed: %v %v", l, err)
	}
	d, err := coerce(`{"k": "v"}`, KindDict)
	if err != nil || d.(map[string]any)["k"] != "v" {
		t.Errorf("dict coercion failed: %v %v", d, err)
	}
}

func TestBuiltins(t *testing.T) {
	r := Default()
	ctx := context.Background()

	got, err := r.Invoke(ctx, "Arithmetic", "add", []schema.Param{{Name: "x", Value: "2"}, {Name: "y", Value: "3"}})
	if err != nil || got != 5 {
		t.Errorf("Arithmetic.add = %v, %v", got, err)
	}
	if _, err := r.Invoke(ctx, "Arithmetic", "divide", []schema.Param{{Name: "x", Value: "1"}, {Name: "y", Value: "0"}}); !errors.Is(err, concrete.ErrToolInvocation) {
		t.Errorf("divide by zero should be an invocation error, got %v", err)
	}

	got, err = r.InvokeArgs(ctx, "Calculator", "evaluate", map[string]any{"expression": "5 * (9 + 1)"})
	if err != nil || got != 50.0 {
		t.Errorf("Calculator.evaluate = %v, %v", got, err)
	}

	got, err = r.InvokeRequest(ctx, schema.ToolRequest{
		ToolName:       "Search",
		ToolMethod:     "search()",
		ToolParameters: []schema.Param{{Name: "query", Value: "go"}, {Name: "limit", Value: "2"}},
	})
	if err != nil || strings.Count(got.(string), "\n") != 1 {
		t.Errorf("Search.search = %q, %v", got, err)
	}

	if !strings.Contains(r.Describe(), "Tool Name: Arithmetic") {
		t.Error("Describe should include every tool")
	}
}

func TestHTTPTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(req.Method + " ok"))
	}))
	defer srv.Close()

	r := NewRegistry()
	r.MustRegister(NewHTTPTool(srv.Client()))
	ctx := context.Background()

	got, err := r.InvokeArgs(ctx, "HTTPTool", "get", map[string]any{"url": srv.URL})
	if err != nil || got != "GET ok" {
		t.Errorf("get = %v, %v", got, err)
	}
	got, err = r.InvokeArgs(ctx, "HTTPTool", "post", map[string]any{"url": srv.URL, "body": "{}"})
	if err != nil || got != "POST ok" {
		t.Errorf("post = %v, %v", got, err)
	}
	if _, err := r.InvokeArgs(ctx, "HTTPTool", "get", map[string]any{"url": srv.URL + "/missing"}); !errors.Is(err, concrete.ErrToolInvocation) {
		t.Errorf("non-2xx should be an invocation error, got %v", err)
	}
}
