package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Compile transforms JSX to plain script calling React.createElement.
// Syntax newer than ES2017 is lowered for the sandbox runtime.
func Compile(src string) (string, error) {
	result := api.Transform(src, api.TransformOptions{
		Loader:      api.LoaderJSX,
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Target:      api.ES2017,
		Sourcefile:  "component.jsx",
		LogLevel:    api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", errors.New(formatMessages(result.Errors))
	}
	return string(result.Code), nil
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "; ")
}
