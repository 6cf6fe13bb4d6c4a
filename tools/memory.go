package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hermitcrab/memfs"
	"hermitcrab/pscale"
)

// MemoryToolType is the vendor-defined memory tool version
const MemoryToolType = "memory_20250818"

// MemoryTool answers the vendor memory tool from the file view.
func MemoryTool(store *memfs.Store) Tool {
	return Tool{
		Name:        "memory",
		Description: "Persistent memory files under /memories.",
		InputSchema: GenerateSchema[memfs.Command](),
		Function: func(_ context.Context, input json.RawMessage) (string, error) {
			cmd, err := decode[memfs.Command](input)
			if err != nil {
				return fmt.Sprintf("Memory error: %v", err), nil
			}
			return store.Dispatch(cmd), nil
		},
	}
}

// Recompiler swaps the running interface. Writes to S:0.2 go through it
// so a broken source never replaces a working one.
type Recompiler interface {
	Recompile(source string) (version string, err error)
}

type CoordInput struct {
	Coord string `json:"coord" jsonschema_description:"Coordinate such as S:0.12 or M:42."`
}

type PscaleWriteInput struct {
	Coord   string `json:"coord" jsonschema_description:"Coordinate to write. S:0.2 replaces the running interface."`
	Content string `json:"content" jsonschema_description:"Text to store."`
}

type PrefixInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema_description:"Coordinate prefix such as S:0.2 or M:. Empty lists everything."`
}

type LevelInput struct {
	Level *int `json:"level,omitempty" jsonschema_description:"0=raw entries, 1=level-1 summaries, 2=level-2 summaries, omit=all"`
}

type NumberInput struct {
	Number int `json:"number,omitempty" jsonschema_description:"Semantic number. Omit to read all."`
}

// PscaleTools exposes the coordinate store. changelog and recompiler may be nil.
func PscaleTools(store *pscale.Store, changelog *pscale.Log, recompiler Recompiler) []Tool {
	return []Tool{
		{
			Name:        "pscale_read",
			Description: "Read the content at an exact pscale coordinate. S:0.1 is the platform index.",
			InputSchema: GenerateSchema[CoordInput](),
			Function: func(_ context.Context, input json.RawMessage) (string, error) {
				in, err := decode[CoordInput](input)
				if err != nil {
					return "", err
				}
				content, ok, err := store.Read(in.Coord)
				if err != nil {
					return "", err
				}
				if !ok {
					return fmt.Sprintf("Error: %s not found", in.Coord), nil
				}
				return content, nil
			},
		},
		{
			Name:        "pscale_write",
			Description: "Write text at a pscale coordinate. Writing S:0.2 recompiles your interface and keeps the old one if the new source fails.",
			InputSchema: GenerateSchema[PscaleWriteInput](),
			Function: func(ctx context.Context, input json.RawMessage) (string, error) {
				in, err := decode[PscaleWriteInput](input)
				if err != nil {
					return "", err
				}
				if in.Coord == "" {
					return "Error: coord required", nil
				}

				if in.Coord == pscale.CoordInterface && recompiler != nil {
					version, err := recompiler.Recompile(in.Content)
					if err != nil {
						return "Shell write rejected: " + err.Error(), nil
					}
					note(ctx, changelog, fmt.Sprintf("Shell updated (%d chars JSX)", len(in.Content)))
					return fmt.Sprintf("Interface recompiled as %s", version), nil
				}

				if _, err := store.Write(in.Coord, in.Content); err != nil {
					return "", err
				}
				if strings.HasPrefix(in.Coord, "S:0.1") {
					note(ctx, changelog, fmt.Sprintf("%s written (%d chars)", in.Coord, len(in.Content)))
				}
				return fmt.Sprintf("Written %s (%d chars)", in.Coord, len(in.Content)), nil
			},
		},
		{
			Name:        "pscale_list",
			Description: "List pscale coordinates with a prefix, sorted.",
			InputSchema: GenerateSchema[PrefixInput](),
			Function: func(_ context.Context, input json.RawMessage) (string, error) {
				in, err := decode[PrefixInput](input)
				if err != nil {
					return "", err
				}
				coords, err := store.List(in.Prefix)
				if err != nil {
					return "", err
				}
				if len(coords) == 0 {
					return memfs.Empty, nil
				}
				return strings.Join(coords, "\n"), nil
			},
		},
		{
			Name:        "pscale_context",
			Description: "Return the summary coordinates above a memory coordinate and their content, coarse first.",
			InputSchema: GenerateSchema[CoordInput](),
			Function: func(_ context.Context, input json.RawMessage) (string, error) {
				in, err := decode[CoordInput](input)
				if err != nil {
					return "", err
				}
				content, err := store.ContextContent(in.Coord)
				if err != nil {
					return "", err
				}
				return marshal(map[string]any{
					"chain":   pscale.ContextChain(in.Coord),
					"content": content,
				})
			},
		},
		{
			Name:        "memory_next",
			Description: "Tell where the next numbered memory goes. Summary slots list the coordinates to roll up.",
			InputSchema: emptySchema,
			Function: func(context.Context, json.RawMessage) (string, error) {
				next, err := store.NextMemory()
				if err != nil {
					return "", err
				}
				return marshal(next)
			},
		},
	}
}

// LogTools exposes a compaction log as <table>_list and <table>_read.
func LogTools(log *pscale.Log, table string) []Tool {
	return []Tool{
		{
			Name:        table + "_list",
			Description: fmt.Sprintf("List %s entries using semantic number compaction. Numbers 1-9 are raw entries, 10/20/30 are level-1 summaries, 100/200 are level-2 summaries.", table),
			InputSchema: GenerateSchema[LevelInput](),
			Function: func(_ context.Context, input json.RawMessage) (string, error) {
				in, err := decode[LevelInput](input)
				if err != nil {
					return "", err
				}
				level := -1
				if in.Level != nil {
					level = *in.Level
				}
				entries, err := log.ListLevel(level)
				if err != nil {
					return "", err
				}
				return marshal(orEmpty(entries))
			},
		},
		{
			Name:        table + "_read",
			Description: fmt.Sprintf("Read a %s entry by semantic number. Omit number to read all.", table),
			InputSchema: GenerateSchema[NumberInput](),
			Function: func(_ context.Context, input json.RawMessage) (string, error) {
				in, err := decode[NumberInput](input)
				if err != nil {
					return "", err
				}
				entries, err := log.Read(in.Number)
				if err != nil {
					return "", err
				}
				return marshal(orEmpty(entries))
			},
		},
	}
}

func note(ctx context.Context, changelog *pscale.Log, text string) {
	if changelog == nil {
		return
	}
	_, _ = changelog.Write(ctx, text)
}

func orEmpty(entries []pscale.Entry) []pscale.Entry {
	if entries == nil {
		return []pscale.Entry{}
	}
	return entries
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
