package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"hermitcrab/synth"
)

var blockTags = map[string]bool{
	"div": true, "section": true, "article": true, "main": true, "header": true,
	"footer": true, "nav": true, "aside": true, "form": true, "fieldset": true,
	"p": true, "pre": true, "blockquote": true, "ul": true, "ol": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "hr": true, "textarea": true, "details": true,
	"summary": true,
}

var skippedTags = map[string]bool{"script": true, "style": true, "head": true, "svg": true}

// treeRenderer draws a rendered element tree as terminal text. Elements
// with handlers carry their interactive index so /click N can name them.
type treeRenderer struct {
	width   int
	indices map[*synth.Node]int
}

func renderTree(root *synth.Node, width int) string {
	if root == nil {
		return ""
	}
	r := treeRenderer{width: width, indices: make(map[*synth.Node]int)}
	for _, item := range root.Interactives() {
		r.indices[item.Node] = item.Index
	}
	lines := r.block(root)
	return strings.TrimRight(strings.Join(trimBlank(lines), "\n"), "\n")
}

// block renders n as a list of lines. Inline runs are gathered until the
// next block child.
func (r treeRenderer) block(n *synth.Node) []string {
	if n.IsText() {
		return []string{n.Text}
	}
	if skippedTags[n.Tag] {
		return nil
	}

	switch n.Tag {
	case "hr":
		return []string{DimStyle.Render(strings.Repeat("─", max(r.width, 1)))}
	case "br":
		return []string{""}
	case "input", "textarea", "select", "button", "img":
		return []string{r.inline(n)}
	}

	var (
		lines  []string
		inline strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(inline.String()); s != "" {
			lines = append(lines, s)
		}
		inline.Reset()
	}
	for _, c := range n.Children {
		if c.IsText() || !blockTags[c.Tag] {
			inline.WriteString(r.inline(c))
			continue
		}
		flush()
		lines = append(lines, r.block(c)...)
	}
	flush()

	return r.decorateBlock(n, lines)
}

func (r treeRenderer) decorateBlock(n *synth.Node, lines []string) []string {
	switch n.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		for i, l := range lines {
			lines[i] = HeadingStyle.Render(l)
		}
		if n.Tag == "h1" {
			lines = append(lines, "")
		}
	case "li":
		for i, l := range lines {
			if i == 0 {
				lines[i] = "• " + l
			} else {
				lines[i] = "  " + l
			}
		}
	case "pre":
		for i, l := range lines {
			lines[i] = CodeStyle.Render(l)
		}
	case "blockquote":
		for i, l := range lines {
			lines[i] = DimStyle.Render("│ ") + l
		}
	case "p", "ul", "ol", "form", "section", "table":
		lines = append(lines, "")
	}

	if idx, ok := r.indices[n]; ok && len(lines) > 0 {
		lines[0] = ButtonStyle.Render(fmt.Sprintf("[%d]", idx)) + " " + lines[0]
	}
	return lines
}

// inline renders n on a single line.
func (r treeRenderer) inline(n *synth.Node) string {
	if n.IsText() {
		return n.Text
	}
	if skippedTags[n.Tag] {
		return ""
	}

	var text strings.Builder
	for _, c := range n.Children {
		if c.IsText() || !blockTags[c.Tag] {
			text.WriteString(r.inline(c))
		} else {
			text.WriteString(strings.Join(r.block(c), " "))
		}
	}
	content := text.String()
	idx, interactive := r.indices[n]

	switch n.Tag {
	case "button":
		label := strings.TrimSpace(content)
		if label == "" {
			label = n.Prop("aria-label")
		}
		return ButtonStyle.Render(fmt.Sprintf("[%s]", indexed(idx, interactive, label)))
	case "input", "textarea":
		return r.field(n, idx, interactive)
	case "select":
		value := n.Prop("value")
		if value == "" {
			value = strings.TrimSpace(content)
		}
		return InputStyle.Render(fmt.Sprintf("[%s ▾]", indexed(idx, interactive, value)))
	case "img":
		return DimStyle.Render(fmt.Sprintf("[img %s]", n.Prop("alt")))
	case "a":
		s := LinkStyle.Render(content)
		if interactive {
			s = ButtonStyle.Render(fmt.Sprintf("[%d]", idx)) + s
		}
		return s
	case "strong", "b":
		return lipgloss.NewStyle().Bold(true).Render(content)
	case "em", "i":
		return lipgloss.NewStyle().Italic(true).Render(content)
	case "code", "kbd":
		return CodeStyle.Render(content)
	case "br":
		return " "
	}

	if interactive {
		return ButtonStyle.Render(fmt.Sprintf("[%d]", idx)) + content
	}
	return content
}

func (r treeRenderer) field(n *synth.Node, idx int, interactive bool) string {
	switch n.Prop("type") {
	case "checkbox", "radio":
		mark := " "
		if n.Prop("checked") == "true" {
			mark = "x"
		}
		return InputStyle.Render(indexed(idx, interactive, "["+mark+"]"))
	case "hidden":
		return ""
	}

	value := n.Prop("value")
	if value == "" {
		value = DimStyle.Render(n.Prop("placeholder"))
	}
	if n.Prop("type") == "password" {
		value = strings.Repeat("•", runewidth.StringWidth(n.Prop("value")))
	}
	return InputStyle.Render(fmt.Sprintf("[%s_]", indexed(idx, interactive, value)))
}

func indexed(idx int, ok bool, label string) string {
	if !ok {
		return label
	}
	if label == "" {
		return fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%d: %s", idx, label)
}

// trimBlank collapses runs of blank lines.
func trimBlank(lines []string) []string {
	out := lines[:0]
	blank := true
	for _, l := range lines {
		isBlank := strings.TrimSpace(l) == ""
		if isBlank && blank {
			continue
		}
		out = append(out, l)
		blank = isBlank
	}
	return out
}

// interactiveList is the numbered list shown under the interface.
func interactiveList(root *synth.Node, width int) string {
	if root == nil {
		return ""
	}
	items := root.Interactives()
	if len(items) == 0 {
		return DimStyle.Render("no interactive elements")
	}
	var b strings.Builder
	for _, item := range items {
		events := make([]string, 0, len(item.Node.Handlers))
		for name := range item.Node.Handlers {
			events = append(events, strings.ToLower(strings.TrimPrefix(name, "on")))
		}
		slices.Sort(events)
		suffix := strings.Join(events, ",")
		label := runewidth.Truncate(item.Label(), max(width-runewidth.StringWidth(suffix)-1, 10), "…")
		b.WriteString(label + " " + DimStyle.Render(suffix))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
