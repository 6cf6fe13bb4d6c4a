package ui

import (
	"hermitcrab/kernel"
	"hermitcrab/synth"
)

type statusMsg struct {
	status kernel.Status
}

type bootDoneMsg struct {
	result *kernel.BootResult
	err    error
}

type treeMsg struct {
	tree *synth.Node
	err  error
}

type chatReplyMsg struct {
	reply string
	err   error
}

type markdownRenderedMsg struct {
	index    int
	rendered string
}

type exportDoneMsg struct {
	path string
	err  error
}
