package store

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// registrySchemaJSON is the structural gate every document passes before
// the atomic rename in Save. The history maxItems mirrors
// model.HistoryLimit.
const registrySchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ccswitch account registry",
  "type": "object",
  "required": ["schemaVersion", "lastUpdated", "sequence", "accounts", "history"],
  "additionalProperties": false,
  "properties": {
    "schemaVersion": {"const": "2.0"},
    "activeAccountNumber": {"type": "integer", "minimum": 1},
    "lastUpdated": {"type": "string", "minLength": 1},
    "sequence": {
      "type": "array",
      "items": {"type": "integer", "minimum": 1},
      "uniqueItems": true
    },
    "accounts": {
      "type": "object",
      "patternProperties": {
        "^[1-9][0-9]*$": {"$ref": "#/definitions/account"}
      },
      "additionalProperties": false
    },
    "history": {
      "type": "array",
      "maxItems": 10,
      "items": {"$ref": "#/definitions/switchEvent"}
    }
  },
  "definitions": {
    "account": {
      "type": "object",
      "required": ["email", "uuid", "added", "alias", "lastUsed", "usageCount", "healthStatus"],
      "additionalProperties": false,
      "properties": {
        "email": {"type": "string", "minLength": 3},
        "uuid": {"type": "string", "minLength": 1},
        "added": {"type": "string", "minLength": 1},
        "alias": {"type": ["string", "null"], "pattern": "^[A-Za-z0-9_-]+$"},
        "lastUsed": {"type": ["string", "null"]},
        "usageCount": {"type": "integer", "minimum": 0},
        "healthStatus": {"enum": ["unknown", "healthy", "degraded", "unhealthy"]}
      }
    },
    "switchEvent": {
      "type": "object",
      "required": ["from", "to", "timestamp"],
      "additionalProperties": false,
      "properties": {
        "from": {"type": "integer", "minimum": 0},
        "to": {"type": "integer", "minimum": 1},
        "timestamp": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func registrySchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("registry.schema.json", strings.NewReader(registrySchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("registry.schema.json")
	})
	return schema, schemaErr
}

// validateRegistryBytes checks serialized registry bytes against the
// schema without touching the typed model.
func validateRegistryBytes(data []byte) error {
	sch, err := registrySchema()
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}
	return sch.Validate(instance)
}
