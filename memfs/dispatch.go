package memfs

import (
	"errors"
	"fmt"
	"strings"
)

// Command is the input of the model's memory tool.
type Command struct {
	Command    string `json:"command"`
	Path       string `json:"path,omitempty"`
	ViewRange  []int  `json:"view_range,omitempty"`
	FileText   string `json:"file_text,omitempty"`
	OldStr     string `json:"old_str,omitempty"`
	NewStr     string `json:"new_str,omitempty"`
	InsertLine int    `json:"insert_line,omitempty"`
	InsertText string `json:"insert_text,omitempty"`
	OldPath    string `json:"old_path,omitempty"`
	NewPath    string `json:"new_path,omitempty"`
}

// Dispatch runs one memory command and always answers with text.
// Failures are reported in the text, never returned.
func (s *Store) Dispatch(cmd Command) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("Memory error: %v", r)
		}
	}()

	switch cmd.Command {
	case "ls":
		return s.ls(cmd.Path)
	case "cat":
		return s.cat(cmd.Path, cmd.ViewRange)
	case "create":
		if err := s.Create(cmd.Path, cmd.FileText); err != nil {
			return describe(cmd.Path, err)
		}
		return "Created " + cmd.Path
	case "str_replace":
		if err := s.Patch(cmd.Path, cmd.OldStr, cmd.NewStr); err != nil {
			return describe(cmd.Path, err)
		}
		return "Updated " + cmd.Path
	case "insert":
		if err := s.InsertLine(cmd.Path, cmd.InsertLine, cmd.InsertText); err != nil {
			return describe(cmd.Path, err)
		}
		return fmt.Sprintf("Inserted at line %d in %s", cmd.InsertLine, cmd.Path)
	case "delete":
		if err := s.Delete(cmd.Path); err != nil {
			return describe(cmd.Path, err)
		}
		return "Deleted " + cmd.Path
	case "rename":
		if err := s.Rename(cmd.OldPath, cmd.NewPath); err != nil {
			return describe(cmd.OldPath, err)
		}
		return fmt.Sprintf("Renamed %s to %s", cmd.OldPath, cmd.NewPath)
	case "view":
		if cmd.Path == "" || cmd.Path == Root || strings.HasSuffix(cmd.Path, "/") {
			return s.ls(cmd.Path)
		}
		ok, err := s.Exists(cmd.Path)
		if err != nil {
			return describe(cmd.Path, err)
		}
		if ok {
			return s.cat(cmd.Path, cmd.ViewRange)
		}
		return s.ls(cmd.Path)
	default:
		return "Unknown memory command: " + cmd.Command
	}
}

func (s *Store) ls(path string) string {
	if path == "" {
		path = Root
	}
	paths, err := s.List(path)
	if err != nil {
		return describe(path, err)
	}
	if len(paths) == 0 {
		return Empty
	}
	return strings.Join(paths, "\n")
}

func (s *Store) cat(path string, viewRange []int) string {
	var r *LineRange
	if len(viewRange) == 2 {
		r = &LineRange{Start: viewRange[0], End: viewRange[1]}
	}
	content, err := s.Read(path, r)
	if err != nil {
		return describe(path, err)
	}
	return content
}

func describe(path string, err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("Error: %s not found", path)
	case errors.Is(err, ErrSubstringNotFound):
		return fmt.Sprintf("Error: old_str not found in %s", path)
	default:
		return "Memory error: " + err.Error()
	}
}
