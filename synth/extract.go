// Package synth turns model-written React source into a running component:
// extract the code, prepare it for a module wrapper, compile JSX with
// esbuild, then instantiate and render it inside a goja runtime.
package synth

import (
	"regexp"
	"strings"
)

var (
	fencePattern     = regexp.MustCompile("```(?:jsx|react|javascript|js)?\\s*\\n([\\s\\S]*?)```")
	componentPattern = regexp.MustCompile(`((?:const|function|export)\s+\w+[\s\S]*?(?:return\s*\([\s\S]*?\);?\s*\}|=>[\s\S]*?\);?\s*))`)

	importLine       = regexp.MustCompile(`(?m)^import\s+.*?;?\s*$`)
	exportDefaultFn  = regexp.MustCompile(`export\s+default\s+function\s+(\w+)`)
	exportDefaultCls = regexp.MustCompile(`export\s+default\s+class\s+(\w+)`)
	exportDefaultID  = regexp.MustCompile(`(?m)^export\s+default\s+(\w+)\s*;?\s*$`)
	exportDefault    = regexp.MustCompile(`export\s+default\s+`)

	firstFunction = regexp.MustCompile(`(?:^|\n)\s*function\s+(\w+)`)
	firstClass    = regexp.MustCompile(`(?:^|\n)\s*class\s+(\w+)`)
	firstConst    = regexp.MustCompile(`(?:^|\n)\s*const\s+(\w+)\s*=\s*(?:\(|function|\(\s*\{|\(\s*props)`)
)

// Extract pulls component source out of a model reply: the first fenced
// block, else the first thing shaped like a component declaration.
func Extract(text string) (string, bool) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := componentPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// Prepare rewrites module syntax so the source can run inside a plain
// function wrapper that provides module and exports.
func Prepare(src string) string {
	code := importLine.ReplaceAllString(src, "")
	for _, decl := range []struct {
		pattern *regexp.Regexp
		keyword string
	}{{exportDefaultFn, "function"}, {exportDefaultCls, "class"}} {
		if m := decl.pattern.FindStringSubmatch(code); m != nil {
			code = decl.pattern.ReplaceAllString(code, decl.keyword+" ${1}")
			code += "\nmodule.exports.default = " + m[1] + ";"
		}
	}
	code = exportDefaultID.ReplaceAllString(code, "module.exports.default = ${1};")
	code = exportDefault.ReplaceAllString(code, "module.exports.default = ")

	if strings.Contains(code, "module.exports") {
		return code
	}

	name := ""
	if m := firstFunction.FindStringSubmatch(code); m != nil {
		name = m[1]
	} else if m := firstClass.FindStringSubmatch(code); m != nil {
		name = m[1]
	} else if m := firstConst.FindStringSubmatch(code); m != nil {
		name = m[1]
	}
	if name != "" {
		code += "\nmodule.exports.default = " + name + ";"
	}
	return code
}
