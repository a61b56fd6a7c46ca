package gateway

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const createSessionSchema = `{
  "type": "object",
  "properties": {
    "session_id": {"type": "string", "maxLength": 128},
    "user_id": {"type": "string", "maxLength": 256}
  },
  "additionalProperties": false
}`

const authorizeSchema = `{
  "type": "object",
  "properties": {
    "interaction_type": {"type": "string", "minLength": 1, "maxLength": 64}
  },
  "additionalProperties": false
}`

const extendSchema = `{
  "type": "object",
  "properties": {
    "duration": {"type": "string", "minLength": 2, "maxLength": 32}
  },
  "required": ["duration"],
  "additionalProperties": false
}`

// bodySchemas holds the compiled request schemas keyed by route name.
type bodySchemas map[string]*gojsonschema.Schema

func compileSchemas() (bodySchemas, error) {
	sources := map[string]string{
		routeCreateSession: createSessionSchema,
		routeAuthorize:     authorizeSchema,
		routeExtend:        extendSchema,
	}

	schemas := make(bodySchemas, len(sources))
	for name, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		schemas[name] = schema
	}
	return schemas, nil
}

// validate checks body against the named schema. An empty body is treated
// as an empty object.
func (s bodySchemas) validate(name string, body []byte) error {
	schema, ok := s[name]
	if !ok {
		return nil
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}
