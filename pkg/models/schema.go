package models

import (
	"encoding/json"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// schemaProperties splits a JSON schema object into its properties and required list.
func schemaProperties(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	return props, cast.ToStringSlice(schema["required"])
}

// geminiSchema converts a JSON schema fragment into the genai representation.
func geminiSchema(schema map[string]any) *genai.Schema {
	if len(schema) == 0 {
		return nil
	}
	out := &genai.Schema{
		Description: cast.ToString(schema["description"]),
		Enum:        cast.ToStringSlice(schema["enum"]),
	}
	switch cast.ToString(schema["type"]) {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
		if items, ok := schema["items"].(map[string]any); ok {
			out.Items = geminiSchema(items)
		}
	default:
		out.Type = genai.TypeObject
		props, required := schemaProperties(schema)
		if len(props) > 0 {
			out.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				if p, ok := raw.(map[string]any); ok {
					out.Properties[name] = geminiSchema(p)
				}
			}
		}
		out.Required = required
	}
	return out
}

// decodeArguments turns a JSON-encoded argument payload into a map.
func decodeArguments(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	args := map[string]any{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	return args, nil
}

// remarshal copies in into out through JSON, bridging SDK types that
// are shaped like our own.
func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
