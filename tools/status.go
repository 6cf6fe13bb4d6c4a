package tools

import (
	"encoding/json"
	"fmt"

	"hermitcrab/pscale"
)

var writeLabels = map[string]string{
	pscale.CoordIndex:        "index",
	pscale.CoordKernel:       "kernel",
	pscale.CoordConstitution: "constitution",
	pscale.CoordInterface:    "shell",
}

// StatusLine describes a tool call for the progress display.
func StatusLine(name string, input json.RawMessage) string {
	var in struct {
		Coord   string `json:"coord"`
		Prefix  string `json:"prefix"`
		Content string `json:"content"`
		Number  *int   `json:"number"`
		URL     string `json:"url"`
	}
	_ = json.Unmarshal(input, &in)

	switch name {
	case "pscale_list":
		return fmt.Sprintf("scanning pscale %s...", orDefault(in.Prefix, "?"))
	case "pscale_read", "pscale_context":
		return fmt.Sprintf("reading %s...", orDefault(in.Coord, "?"))
	case "pscale_write":
		label, ok := writeLabels[in.Coord]
		if !ok {
			label = orDefault(in.Coord, "?")
		}
		return fmt.Sprintf("writing %s (%d chars)", label, len(in.Content))
	case "memory_list":
		return "scanning memory..."
	case "memory_read":
		return fmt.Sprintf("reading memory #%s...", numberLabel(in.Number))
	case "changelog_list":
		return "scanning changelog..."
	case "changelog_read":
		return fmt.Sprintf("reading changelog #%s...", numberLabel(in.Number))
	case "get_datetime":
		return "checking time..."
	case "web_fetch":
		url := orDefault(in.URL, "?")
		if r := []rune(url); len(r) > 50 {
			url = string(r[:50])
		}
		return fmt.Sprintf("fetching %s...", url)
	default:
		return "tool: " + name
	}
}

func numberLabel(n *int) string {
	if n == nil {
		return "all"
	}
	return fmt.Sprint(*n)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
