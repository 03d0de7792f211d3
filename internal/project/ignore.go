package project

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Matcher decides whether a project path is excluded by the project's
// .gitignore files. A nil Matcher matches nothing.
type Matcher struct {
	rules *ignore.GitIgnore
}

// NewMatcher compiles root-relative gitignore lines.
func NewMatcher(lines ...string) *Matcher {
	return &Matcher{rules: ignore.CompileIgnoreLines(lines...)}
}

// LoadMatcher reads every .gitignore below root, outside .git directories,
// and compiles them into one Matcher. Patterns from nested files are
// rewritten relative to root.
func LoadMatcher(root string) (*Matcher, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == ".gitignore" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: find .gitignore files: %w", err)
	}
	sort.Strings(files)

	var lines []string
	for _, f := range files {
		base, err := filepath.Rel(root, filepath.Dir(f))
		if err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
		base = filepath.ToSlash(base)
		if base == "." {
			base = ""
		}
		fileLines, err := readLines(f)
		if err != nil {
			return nil, err
		}
		for _, line := range fileLines {
			lines = append(lines, translateIgnoreLine(line, base))
		}
	}
	return NewMatcher(lines...), nil
}

// Match reports whether rel, a root-relative path, is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || m.rules == nil {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" {
		return false
	}
	if m.rules.MatchesPath(rel) {
		return true
	}
	return isDir && m.rules.MatchesPath(rel+"/")
}

// translateIgnoreLine rewrites a line of the .gitignore in directory base
// so that it matches the same paths when compiled at the project root.
// Patterns without an inner slash apply at any depth below base.
func translateIgnoreLine(line, base string) string {
	if base == "" || line == "" {
		return line
	}
	if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
		return line
	}
	negate := strings.HasPrefix(line, "!")
	pattern := strings.TrimPrefix(line, "!")
	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if strings.TrimSpace(pattern) == "" {
		return line
	}
	if !anchored && !strings.Contains(strings.TrimSuffix(pattern, "/"), "/") {
		pattern = "**/" + pattern
	}
	out := "/" + path.Join(base, pattern)
	if strings.HasSuffix(pattern, "/") {
		out += "/"
	}
	if negate {
		out = "!" + out
	}
	return out
}

func readLines(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", name, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("project: read %s: %w", name, err)
	}
	return lines, nil
}
