package schema

import (
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ZanzyTHEbar/concrete-go"
)

var reflector = &invopop.Reflector{
	Anonymous:                 true,
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// JSONSchema reflects the JSON schema of the type registered under name.
// The document carries no $schema or $id so providers accept it as is.
func (r *Registry) JSONSchema(name string) (map[string]any, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(reflector.ReflectFromType(t))
	if err != nil {
		return nil, concrete.NewInternalError("schema", "reflected schema does not marshal", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, concrete.NewInternalError("schema", "reflected schema does not unmarshal", err)
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	return doc, nil
}

// RequestSchema is the schema sent to the provider: the reflected schema,
// widened with the tool properties when withTools is set.
func (r *Registry) RequestSchema(name string, withTools bool) (map[string]any, error) {
	doc, err := r.JSONSchema(name)
	if err != nil {
		return nil, err
	}
	if withTools {
		doc = WithTools(doc)
	}
	return doc, nil
}

// Validate checks raw against the request schema for name.
func (r *Registry) Validate(name string, raw []byte, withTools bool) error {
	compiled, err := r.compiledSchema(name, withTools)
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return concrete.NewValidationError("schema", "answer is not valid JSON", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return concrete.NewValidationError("schema", fmt.Sprintf("answer does not match schema %s", name), err)
	}
	return nil
}

func (r *Registry) compiledSchema(name string, withTools bool) (*jsonschema.Schema, error) {
	key := name
	if withTools {
		key = WidenedName(name)
	}

	r.mu.RLock()
	compiled, ok := r.compiled[key]
	r.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	doc, err := r.RequestSchema(name, withTools)
	if err != nil {
		return nil, err
	}
	compiled, err = compileDoc(key, doc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.compiled[key] = compiled
	r.mu.Unlock()
	return compiled, nil
}

func compileDoc(key string, doc map[string]any) (*jsonschema.Schema, error) {
	// Round-trip through JSON so the compiler only sees plain JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, concrete.NewInternalError("schema", "schema does not marshal", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return nil, concrete.NewInternalError("schema", "schema does not unmarshal", err)
	}

	url := key + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, schemaDoc); err != nil {
		return nil, concrete.NewInternalError("schema", "add schema resource", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, concrete.NewInternalError("schema", "compile schema", err)
	}
	return compiled, nil
}
