package obfuscation

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/zskulcsar/code-duplication-scanner/internal/pyast"
)

// NameSet is an immutable set of identifiers. The zero value is empty.
type NameSet struct {
	m map[string]struct{}
}

// NewNameSet returns a set holding names.
func NewNameSet(names ...string) NameSet {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return NameSet{m: m}
}

func nameSetOf(m map[string]struct{}) NameSet { return NameSet{m: m} }

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s.m[name]
	return ok
}

// Len returns the number of names in the set.
func (s NameSet) Len() int { return len(s.m) }

// Sorted returns the names in byte-wise ascending order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s.m))
	for n := range s.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding the names of s and other.
func (s NameSet) Union(other NameSet) NameSet {
	m := make(map[string]struct{}, len(s.m)+len(other.m))
	for n := range s.m {
		m[n] = struct{}{}
	}
	for n := range other.m {
		m[n] = struct{}{}
	}
	return NameSet{m: m}
}

// ProjectIndex is the project-wide symbol index the rename map and the
// rewriter are computed from. It is not modified after construction.
type ProjectIndex struct {
	// RenameCandidates are identifiers declared or bound somewhere in the
	// project, without the external ones.
	RenameCandidates NameSet
	// ExternalSymbols are names bound by imports from modules outside the
	// project.
	ExternalSymbols NameSet
	// ClassNames are names bound by class statements.
	ClassNames NameSet
	// Attributes are attribute names declared on project classes.
	Attributes NameSet
	// LikelyLocalDynamicAttributes are attributes seen as the literal name
	// argument of getattr, setattr or hasattr on a plain local object.
	LikelyLocalDynamicAttributes NameSet
	// ModuleNames are the directory and file-stem segments of project
	// module paths.
	ModuleNames NameSet
	// Preserved names are never renamed and never generated.
	Preserved NameSet
}

// WithPreserved returns a copy of idx whose Preserved set also holds names.
func (idx *ProjectIndex) WithPreserved(names ...string) *ProjectIndex {
	cp := *idx
	cp.Preserved = idx.Preserved.Union(NewNameSet(names...))
	return &cp
}

// SourceFile is one parsed project file handed to IndexProject. Err carries
// a read or parse failure; such files are skipped with a Warning.
type SourceFile struct {
	Path   string
	Module *pyast.Module
	Err    error
}

// Warning reports a file IndexProject skipped.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string { return w.Path + ": " + w.Err.Error() }

// IndexProject walks every file once and unions the per-file observations
// into a ProjectIndex. Files are processed in sorted path order. Files that
// carry an error or no module are reported as warnings and skipped.
func IndexProject(root string, files []SourceFile) (*ProjectIndex, []Warning) {
	sorted := make([]SourceFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	paths := make([]string, 0, len(sorted))
	for _, f := range sorted {
		paths = append(paths, f.Path)
	}
	roots := localRootModules(root, paths)

	var (
		candidates = map[string]struct{}{}
		externals  = map[string]struct{}{}
		classes    = map[string]struct{}{}
		attrs      = map[string]struct{}{}
		observed   []dynamicAccess
		warnings   []Warning
	)
	for _, f := range sorted {
		if f.Err != nil || f.Module == nil {
			err := f.Err
			if err == nil {
				err = errNoModule
			}
			warnings = append(warnings, Warning{Path: f.Path, Err: err})
			continue
		}
		c := newCollector(roots)
		c.module(f.Module)
		merge(candidates, c.candidates)
		merge(externals, c.externals)
		merge(classes, c.classes)
		merge(attrs, c.attrs)
		observed = append(observed, c.dynamic...)
	}

	for n := range externals {
		delete(candidates, n)
	}
	likelyLocal := map[string]struct{}{}
	for _, d := range observed {
		if _, ok := attrs[d.attr]; !ok {
			continue
		}
		if _, ext := externals[d.object]; ext {
			continue
		}
		likelyLocal[d.attr] = struct{}{}
	}

	return &ProjectIndex{
		RenameCandidates:             nameSetOf(candidates),
		ExternalSymbols:              nameSetOf(externals),
		ClassNames:                   nameSetOf(classes),
		Attributes:                   nameSetOf(attrs),
		LikelyLocalDynamicAttributes: nameSetOf(likelyLocal),
		ModuleNames:                  nameSetOf(moduleNames(root, paths)),
	}, warnings
}

func merge(dst, src map[string]struct{}) {
	for n := range src {
		dst[n] = struct{}{}
	}
}

// relSegments splits path relative to root into slash-free segments, with
// the .py suffix stripped from the last one.
func relSegments(root, path string) []string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := len(parts) - 1
	parts[last] = strings.TrimSuffix(parts[last], filepath.Ext(parts[last]))
	return parts
}

// localRootModules returns the top-level module names importable from the
// project: the first path segment of every file, plus the second one under
// a src or tests directory.
func localRootModules(root string, paths []string) map[string]struct{} {
	roots := map[string]struct{}{}
	for _, p := range paths {
		parts := relSegments(root, p)
		if parts[0] != "__init__" && parts[0] != "" {
			roots[parts[0]] = struct{}{}
		}
		if len(parts) > 1 && (parts[0] == "src" || parts[0] == "tests") && parts[1] != "__init__" {
			roots[parts[1]] = struct{}{}
		}
	}
	return roots
}

func moduleNames(root string, paths []string) map[string]struct{} {
	names := map[string]struct{}{}
	for _, p := range paths {
		for _, seg := range relSegments(root, p) {
			if seg != "" && seg != "__init__" {
				names[seg] = struct{}{}
			}
		}
	}
	return names
}
