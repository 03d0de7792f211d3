// Package runtime runs policy scripts written in Risor. Scripts get
// tree-sitter host functions over Python sources (parse, parse_src,
// node_text, node_child, string_value, query), a log global, and whatever
// the caller binds for the run.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"
)

// BuiltinPrefix marks a policy reference that names an embedded script.
const BuiltinPrefix = "builtin:"

const scriptExt = ".risor"

// Runtime holds the script sources and the state shared by host functions
// across runs: parsed trees and compiled queries.
type Runtime struct {
	logger     *zap.Logger
	scriptsDir string
	fsys       fs.FS
	trees      *treeRegistry
	queries    *queryCache
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS sets the filesystem builtin scripts come from. Imports
// inside scripts resolve against it too.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) { r.fsys = fsys }
}

// WithLogger sets the logger behind the log global.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) { r.logger = l }
}

// NewRuntime returns a Runtime resolving relative script paths against
// scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		logger:     zap.NewNop(),
		scriptsDir: scriptsDir,
		trees:      newTreeRegistry(),
		queries:    newQueryCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads the script ref (see LoadScript) and executes it.
func (r *Runtime) RunScript(ctx context.Context, ref string, globals map[string]any) error {
	src, err := r.LoadScript(ref)
	if err != nil {
		return err
	}
	return r.exec(ctx, ref, src, globals)
}

// RunSource executes Risor source given inline.
func (r *Runtime) RunSource(ctx context.Context, src string, globals map[string]any) error {
	return r.exec(ctx, "<inline>", src, globals)
}

func (r *Runtime) exec(ctx context.Context, label, src string, extra map[string]any) error {
	globals := r.hostGlobals(label)
	maps.Copy(globals, extra)

	names := slices.Sorted(maps.Keys(globals))
	opts := make([]risor.Option, 0, len(names)+1)
	for _, name := range names {
		opts = append(opts, risor.WithGlobal(name, globals[name]))
	}
	if imp := r.importer(names); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, src, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

func (r *Runtime) hostGlobals(label string) map[string]any {
	return map[string]any{
		"parse":        makeParseFn(r.trees),
		"parse_src":    makeParseSrcFn(r.trees),
		"node_text":    makeNodeTextFn(r.trees),
		"node_child":   makeNodeChildFn(),
		"string_value": makeStringValueFn(r.trees),
		"query":        makeQueryFn(r.trees, r.queries),
		"log":          mustProxy(&policyLog{logger: r.logger.With(zap.String("policy", label))}),
	}
}

// importer resolves `import` statements in scripts. Modules see the same
// global names as the importing script. Nil when there is nowhere to
// import from.
func (r *Runtime) importer(globalNames []string) importer.Importer {
	switch {
	case r.fsys != nil:
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{scriptExt},
		})
	case r.scriptsDir != "":
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{scriptExt},
		})
	}
	return nil
}

// LoadScript returns the source of a script. "builtin:<name>" reads
// <name>.risor from the configured fs.FS; anything else is a path on disk,
// relative to the scripts directory unless absolute.
func (r *Runtime) LoadScript(ref string) (string, error) {
	if name, ok := strings.CutPrefix(ref, BuiltinPrefix); ok {
		if r.fsys == nil {
			return "", fmt.Errorf("runtime: no builtin scripts configured for %s", ref)
		}
		name = strings.TrimPrefix(filepath.ToSlash(name), "/")
		if !strings.HasSuffix(name, scriptExt) {
			name += scriptExt
		}
		data, err := fs.ReadFile(r.fsys, name)
		if err != nil {
			return "", fmt.Errorf("runtime: loading builtin %s: %w", name, err)
		}
		return string(data), nil
	}

	path := ref
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		path = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", path, err)
	}
	return string(data), nil
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
