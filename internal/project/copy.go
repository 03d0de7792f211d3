package project

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CopySummary holds the counters of one Copy call.
type CopySummary struct {
	FilesCopied             int
	DirsCreated             int
	PathsSkippedByGitignore int
	PathsSkippedGitDir      int
	Elapsed                 time.Duration
}

// Copy mirrors the tree under in into out, breadth first with entries in
// name order. .git directories and paths matched by m are skipped; symbolic
// links are recreated with the same target rather than followed.
func Copy(ctx context.Context, in, out string, m *Matcher) (*CopySummary, error) {
	started := time.Now()
	sum := &CopySummary{}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("project: create %s: %w", out, err)
	}

	queue := []string{""}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(filepath.Join(in, rel))
		if err != nil {
			return nil, fmt.Errorf("project: read dir %s: %w", filepath.Join(in, rel), err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			childRel := filepath.Join(rel, entry.Name())
			src := filepath.Join(in, childRel)
			dst := filepath.Join(out, childRel)
			isLink := entry.Type()&os.ModeSymlink != 0
			isDir := entry.IsDir()
			if isLink {
				if info, err := os.Stat(src); err == nil {
					isDir = info.IsDir()
				}
			}

			if entry.Name() == ".git" && isDir {
				sum.PathsSkippedGitDir++
				continue
			}
			if m.Match(childRel, isDir) {
				sum.PathsSkippedByGitignore++
				continue
			}

			switch {
			case isLink:
				if err := copySymlink(src, dst); err != nil {
					return nil, err
				}
				sum.FilesCopied++
			case isDir:
				created, err := ensureDir(dst)
				if err != nil {
					return nil, err
				}
				if created {
					sum.DirsCreated++
				}
				queue = append(queue, childRel)
			default:
				if err := copyFile(src, dst); err != nil {
					return nil, err
				}
				sum.FilesCopied++
			}
		}
	}

	sum.Elapsed = time.Since(started)
	return sum, nil
}

func ensureDir(dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("project: create %s: %w", dir, err)
	}
	return true, nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("project: read link %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("project: create %s: %w", filepath.Dir(dst), err)
	}
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("project: replace %s: %w", dst, err)
		}
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("project: link %s: %w", dst, err)
	}
	return nil
}

// copyFile copies contents, permission bits and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("project: stat %s: %w", src, err)
	}
	r, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("project: open %s: %w", src, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("project: create %s: %w", filepath.Dir(dst), err)
	}
	w, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("project: create %s: %w", dst, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("project: copy %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("project: close %s: %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("project: set times on %s: %w", dst, err)
	}
	return nil
}
