package script

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// insertionScriptSchemaJSON constrains the JSON an LLM must return on the
// slow path: an ordered list of operations drawn from the fixed op-kind
// enum, each anchored by line+hash. Using jsonschema here (rather than a
// hand-rolled shape check) mirrors the library's intended role across the
// retrieved example pack as the structural gate in front of untrusted,
// model-produced JSON before it is trusted and cached.
const insertionScriptSchemaJSON = `{
  "type": "object",
  "required": ["ops"],
  "properties": {
    "ops": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "anchor_line", "anchor_hash", "text"],
        "properties": {
          "kind": {"enum": ["insert_line", "replace_line", "wrap_block", "rewrite_return"]},
          "anchor_line": {"type": "integer", "minimum": 1},
          "anchor_hash": {"type": "string", "minLength": 1},
          "end_anchor_line": {"type": "integer", "minimum": 1},
          "end_anchor_hash": {"type": "string"},
          "text": {"type": "string"},
          "postlude": {"type": "string"},
          "capture_var": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("insertion_script.json", mustJSONReader(insertionScriptSchemaJSON)); err != nil {
		panic(fmt.Sprintf("script: compiling embedded insertion script schema: %v", err))
	}
	sch, err := c.Compile("insertion_script.json")
	if err != nil {
		panic(fmt.Sprintf("script: compiling embedded insertion script schema: %v", err))
	}
	compiledSchema = sch
}

func mustJSONReader(s string) *jsonReader {
	return &jsonReader{data: []byte(s)}
}

// jsonReader adapts a []byte into the io.Reader the schema compiler expects.
type jsonReader struct {
	data []byte
	pos  int
}

func (r *jsonReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// ValidateInsertionScriptJSON parses candidate JSON into a generic document
// and validates it against the Insertion Script schema, returning a decode
// error or a schema validation error as appropriate.
func ValidateInsertionScriptJSON(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("script: model output is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("script: model output failed schema validation: %w", err)
	}
	return doc, nil
}
