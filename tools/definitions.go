package tools

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"hermitcrab/memfs"
	"hermitcrab/pscale"
)

// DefaultToolNames are the client tools offered on every call, besides
// the vendor-handled web_search and memory definitions.
var DefaultToolNames = []string{"web_fetch", "get_datetime", "get_geolocation"}

// PscaleToolNames are offered to pscale-native callers.
var PscaleToolNames = []string{
	"pscale_read", "pscale_write", "pscale_list", "pscale_context",
	"memory_next", "memory_list", "memory_read", "changelog_list", "changelog_read",
}

// Deps are the stores the default tool set runs against. Nil stores
// leave their tools out.
type Deps struct {
	Memory     *memfs.Store
	Pscale     *pscale.Store
	Memories   *pscale.Log
	Changelog  *pscale.Log
	Fetcher    *Fetcher
	Recompiler Recompiler
	Clock      func() time.Time
}

// NewDefaultExecutor registers every tool deps can back.
func NewDefaultExecutor(deps Deps) *Executor {
	e := NewExecutor(DateTimeTool(deps.Clock), GeolocationTool())
	if deps.Fetcher != nil {
		e.Register(deps.Fetcher.Tool())
	}
	if deps.Memory != nil {
		e.Register(MemoryTool(deps.Memory))
	}
	if deps.Pscale != nil {
		for _, t := range PscaleTools(deps.Pscale, deps.Changelog, deps.Recompiler) {
			e.Register(t)
		}
	}
	if deps.Memories != nil {
		for _, t := range LogTools(deps.Memories, pscale.TableMemory) {
			e.Register(t)
		}
	}
	if deps.Changelog != nil {
		for _, t := range LogTools(deps.Changelog, pscale.TableChangelog) {
			e.Register(t)
		}
	}
	return e
}

// WebSearchParam is the vendor-executed search tool.
func WebSearchParam() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{MaxUses: anthropic.Int(5)},
	}
}

// MemoryToolParam is the vendor memory tool definition. It is beta-only
// in the SDK, so it goes out as a literal.
func MemoryToolParam() map[string]string {
	return map[string]string{"type": MemoryToolType, "name": "memory"}
}

// Definitions returns the DEFAULT_TOOLS list: web_search, memory and the
// default client tools the executor has, optionally followed by extra.
func (e *Executor) Definitions(extra ...string) []any {
	defs := []any{WebSearchParam()}
	if e.Has("memory") {
		defs = append(defs, MemoryToolParam())
	}
	for _, p := range e.Params(DefaultToolNames...) {
		defs = append(defs, p)
	}
	for _, p := range e.Params(extra...) {
		defs = append(defs, p)
	}
	return defs
}

// PscaleDefinitions is Definitions plus the coordinate tools.
func (e *Executor) PscaleDefinitions() []any {
	return e.Definitions(PscaleToolNames...)
}
