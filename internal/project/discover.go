package project

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/zskulcsar/code-duplication-scanner/internal/parser"
)

// skipDirs are never searched for Python sources.
var skipDirs = map[string]bool{
	".git":        true,
	"__pycache__": true,
}

// Discover returns the absolute paths of the Python files below root, in
// sorted order. Directories and files matched by m are skipped.
func Discover(root string, m *Matcher) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %s: %w", root, err)
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || m.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if parser.IsPythonFile(p) && d.Type().IsRegular() && !m.Match(rel, false) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}
