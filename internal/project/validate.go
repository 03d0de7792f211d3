// Package project locates the Python files of a project and prepares the
// output tree the obfuscator writes into.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOverlap is returned when the input and output trees share a path.
var ErrOverlap = errors.New("Input and output paths must not overlap")

// ValidatePaths checks the input and output roots of a run and returns them
// as absolute, symlink-resolved paths.
func ValidatePaths(input, output string) (string, string, error) {
	in, err := resolvePath(input)
	if err != nil {
		return "", "", err
	}
	out, err := resolvePath(output)
	if err != nil {
		return "", "", err
	}

	info, err := os.Stat(in)
	if err != nil {
		return "", "", fmt.Errorf("Input path does not exist: %s", in)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("Input path must be a directory: %s", in)
	}
	if _, err := os.Stat(filepath.Join(in, ".gitignore")); err != nil {
		return "", "", fmt.Errorf("Input path must contain .gitignore: %s", in)
	}
	if entries, err := os.ReadDir(out); err == nil && len(entries) > 0 {
		return "", "", fmt.Errorf("Output path must be empty: %s", out)
	}
	if in == out || within(in, out) || within(out, in) {
		return "", "", ErrOverlap
	}
	return in, out, nil
}

// resolvePath makes p absolute and resolves symlinks in the longest prefix
// of it that exists.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("project: resolve %s: %w", p, err)
	}
	var rest []string
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// within reports whether child lies strictly below parent.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
