package tools

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
)

// Tool is a client-handled tool: the kernel runs it when the model asks.
type Tool struct {
	Name        string
	Description string
	InputSchema anthropic.ToolInputSchemaParam
	Function    func(ctx context.Context, input json.RawMessage) (string, error)
}

// Param returns the tool as a request definition.
func (t Tool) Param() anthropic.ToolUnionParam {
	u := anthropic.ToolUnionParamOfTool(t.InputSchema, t.Name)
	u.OfTool.Description = anthropic.String(t.Description)
	return u
}

// GenerateSchema derives an input schema from the json tags of T.
func GenerateSchema[T any]() anthropic.ToolInputSchemaParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return anthropic.ToolInputSchemaParam{
		Properties: schema.Properties,
		Required:   schema.Required,
	}
}

// decode unmarshals tool input, treating an empty payload as {}.
func decode[T any](input json.RawMessage) (T, error) {
	var in T
	if len(input) == 0 || string(input) == "null" {
		return in, nil
	}
	err := json.Unmarshal(input, &in)
	return in, err
}
