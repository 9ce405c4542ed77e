package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/concrete-go"
)

type Fruit struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type renamed struct {
	Value int `json:"value"`
}

func (renamed) SchemaName() string { return "CustomName" }

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Fruit{}))
	require.NoError(t, r.Register(&renamed{}))

	typ, err := r.Lookup("fruit")
	require.NoError(t, err)
	assert.Equal(t, "Fruit", typ.Name())

	_, err = r.Lookup("FRUIT")
	assert.NoError(t, err, "lookups ignore case")

	_, err = r.Lookup("customname")
	assert.NoError(t, err)

	assert.Equal(t, []string{"customname", "fruit"}, r.Names())
}

func TestLookupMiss(t *testing.T) {
	_, err := NewRegistry().Lookup("nothing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, concrete.ErrSchemaNotRegistered))
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Fruit{}))
	err := r.Register(Fruit{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, concrete.ErrDuplicateRegistration))
}

func TestRegisterRejectsNonStructs(t *testing.T) {
	r := NewRegistry()
	assert.True(t, errors.Is(r.Register(nil), concrete.ErrValidation))
	assert.True(t, errors.Is(r.Register(42), concrete.ErrValidation))
}

func TestDefaultHasBuiltins(t *testing.T) {
	names := Default().Names()
	for _, want := range []string{
		"textanswer", "param", "toolrequest", "plannedcomponents", "summary",
		"projectfile", "projectdirectory", "nodesummary", "childnodesummary", "nodeuuid",
	} {
		assert.Contains(t, names, want)
	}
}

func TestRoundTrip(t *testing.T) {
	values := []any{
		TextAnswer{Text: "hello"},
		ToolRequest{ToolName: "Arithmetic", ToolMethod: "add", ToolParameters: []Param{{Name: "x", Value: "1"}}},
		PlannedComponents{Components: []string{"a", "b"}},
		ProjectDirectory{ProjectName: "p", Files: []ProjectFile{{FileName: "index.html", FileContents: "<html/>"}}},
		NodeSummary{NodeName: "n", OverallSummary: "o", ChildrenSummaries: []ChildNodeSummary{{NodeName: "c", Summary: "s"}}},
	}
	for _, v := range values {
		env, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, Name(v), env.Type)

		// Through a store and back.
		stored, err := json.Marshal(env)
		require.NoError(t, err)
		var loaded Envelope
		require.NoError(t, json.Unmarshal(stored, &loaded))

		got, err := Default().Unmarshal(loaded)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	_, err := Default().Unmarshal(Envelope{Type: "mystery", Content: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, concrete.ErrSchemaNotRegistered))
}

func TestJSONSchemaReflection(t *testing.T) {
	doc, err := Default().JSONSchema("ProjectDirectory")
	require.NoError(t, err)
	assert.NotContains(t, doc, "$schema")
	props := doc["properties"].(map[string]any)
	assert.Contains(t, props, "project_name")
	assert.Contains(t, props, "files")
}

func TestWithToolsWidensWithoutMutating(t *testing.T) {
	base, err := Default().JSONSchema("summary")
	require.NoError(t, err)

	widened := WithTools(base)
	props := widened["properties"].(map[string]any)
	for _, f := range append([]string{"summary"}, ToolFields...) {
		assert.Contains(t, props, f)
	}
	assert.NotContains(t, base["properties"].(map[string]any), "tool_name")
}

func TestValidate(t *testing.T) {
	r := Default()
	require.NoError(t, r.Validate("textanswer", []byte(`{"text":"hi"}`), false))
	assert.Error(t, r.Validate("textanswer", []byte(`{"text":5}`), false))
	assert.Error(t, r.Validate("textanswer", []byte(`{}`), false))
	assert.Error(t, r.Validate("textanswer", []byte(`{"text":"hi","extra":1}`), false))

	// Widened schemas accept the tool fields, and plain answers still validate.
	withTool := []byte(`{"text":"","tool_name":"Arithmetic","tool_method":"add","tool_parameters":[{"name":"x","value":"1"}]}`)
	require.NoError(t, r.Validate("textanswer", withTool, true))
	require.NoError(t, r.Validate("textanswer", []byte(`{"text":"hi"}`), true))
}

func TestDecodeReply(t *testing.T) {
	r := Default()
	raw := []byte(`{"text":"partial","tool_name":"Arithmetic","tool_method":"add","tool_parameters":[{"name":"x","value":"1"},{"name":"y","value":"2"}]}`)

	reply, err := r.DecodeReply("textanswer", raw, true)
	require.NoError(t, err)
	require.True(t, reply.IsToolRequest())
	assert.Equal(t, TextAnswer{Text: "partial"}, reply.Answer)
	assert.Equal(t, "Arithmetic.add(x=\"1\", y=\"2\")", reply.Tool.String())

	reply, err = r.DecodeReply("textanswer", raw, false)
	require.NoError(t, err)
	assert.False(t, reply.IsToolRequest(), "tool fields are ignored when tools are off")

	reply, err = r.DecodeReply("textanswer", []byte(`{"text":"done","tool_name":"","tool_method":""}`), true)
	require.NoError(t, err)
	assert.False(t, reply.IsToolRequest(), "empty tool fields are not a request")
}

func TestText(t *testing.T) {
	assert.Equal(t, "hi", Text(TextAnswer{Text: "hi"}))
	assert.Equal(t, "raw", Text("raw"))
	assert.Contains(t, Text(Summary{Summary: []string{"x"}}), "\"summary\"")
}
