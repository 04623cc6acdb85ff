package bridge

import (
	"bytes"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// envelopeSchemaJSON is the wire contract for a Todoist webhook delivery.
// event_name and event_data are the only fields the bridge requires; a
// delivery missing either is rejected, not silently accepted.
const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_name", "event_data"],
  "properties": {
    "event_name": {"type": "string", "minLength": 1},
    "event_data": {"type": "object"},
    "user_id": {"type": ["integer", "string"]},
    "version": {"type": ["string", "integer"]}
  }
}`

var (
	envelopeSchemaOnce sync.Once
	envelopeSchema     *jsonschema.Schema
	envelopeSchemaErr  error
)

func compiledEnvelopeSchema() (*jsonschema.Schema, error) {
	envelopeSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
		if err != nil {
			envelopeSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("todoist-envelope.json", doc); err != nil {
			envelopeSchemaErr = err
			return
		}
		envelopeSchema, envelopeSchemaErr = compiler.Compile("todoist-envelope.json")
	})
	return envelopeSchema, envelopeSchemaErr
}

// validateEnvelopeBytes checks the raw body against the envelope schema.
// It reports both unparseable JSON and structurally invalid envelopes.
func validateEnvelopeBytes(body []byte) error {
	schema, err := compiledEnvelopeSchema()
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
