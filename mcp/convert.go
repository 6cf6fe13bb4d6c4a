package mcp

import (
	"encoding/json"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"hermitcrab/tools"
)

// ConvertToolToMCP declares an executor tool to MCP clients. The schema
// goes out raw so the jsonschema reflection reaches the client as is.
func ConvertToolToMCP(t tools.Tool) (mcptypes.Tool, error) {
	schema := map[string]any{
		"type":       "object",
		"properties": t.InputSchema.Properties,
	}
	if t.InputSchema.Properties == nil {
		schema["properties"] = map[string]any{}
	}
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	for k, v := range t.InputSchema.ExtraFields {
		schema[k] = v
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return mcptypes.Tool{}, fmt.Errorf("failed to marshal schema for %s: %w", t.Name, err)
	}
	return mcptypes.NewToolWithRawSchema(t.Name, t.Description, raw), nil
}

// argumentsJSON turns the call's arguments back into the raw input the
// executor expects.
func argumentsJSON(req mcptypes.CallToolRequest) (json.RawMessage, error) {
	switch args := req.GetRawArguments().(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return args, nil
	default:
		return json.Marshal(args)
	}
}
