// Package tools defines the client-handled tools and the executor the
// tool-use loop calls.
//
// Includes:
//   - Tool: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Local tools: get_datetime, get_geolocation, web_fetch (through the relay).
//   - Memory tools: the memory file view and the pscale coordinate tools.
//   - Invariants: Execute always returns text, so every tool_use gets a tool_result.
package tools
