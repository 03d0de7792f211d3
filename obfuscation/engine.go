package obfuscation

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/zskulcsar/code-duplication-scanner/internal/parser"
	"github.com/zskulcsar/code-duplication-scanner/internal/project"
	pyrt "github.com/zskulcsar/code-duplication-scanner/internal/runtime"
	"github.com/zskulcsar/code-duplication-scanner/internal/store"
	"github.com/zskulcsar/code-duplication-scanner/policies"
)

// Engine runs the whole pipeline over a project directory: read and parse
// every file, index, apply preservation policies, build the rename map,
// then rewrite and write the files back.
type Engine struct {
	logger     *zap.Logger
	files      *project.Files
	ledger     *store.Store
	origin     string
	workers    int
	verify     bool
	preserve   []string
	policies   []string
	scriptsDir string
	scriptsFS  fs.FS
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the Engine's logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithParallel sets how many files are rewritten concurrently. Zero or
// less means one worker per CPU.
func WithParallel(workers int) Option {
	return func(e *Engine) {
		e.workers = workers
	}
}

// WithLedger records every Transform in s.
func WithLedger(s *store.Store) Option {
	return func(e *Engine) {
		e.ledger = s
	}
}

// WithOrigin sets the input root recorded in the ledger, for runs that
// transform a copy of the project.
func WithOrigin(root string) Option {
	return func(e *Engine) {
		e.origin = root
	}
}

// WithVerify controls whether rewritten sources are parsed again before
// they are written. On by default.
func WithVerify(verify bool) Option {
	return func(e *Engine) {
		e.verify = verify
	}
}

// WithPreserve pins names so they are never renamed.
func WithPreserve(names ...string) Option {
	return func(e *Engine) {
		e.preserve = append(e.preserve, names...)
	}
}

// WithPolicies adds policy scripts run before the rename map is built.
// A reference is a path to a .risor file or "builtin:<name>".
func WithPolicies(refs ...string) Option {
	return func(e *Engine) {
		e.policies = append(e.policies, refs...)
	}
}

// WithScriptsDir sets the directory relative policy paths resolve against.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithScriptsFS replaces the embedded policy scripts "builtin:" refers to.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:    zap.NewNop(),
		files:     project.NewFiles(),
		verify:    true,
		scriptsFS: policies.FS,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan is the project-wide state a Transform rewrites files with.
type Plan struct {
	Root     string
	Files    []SourceFile
	Index    *ProjectIndex
	Map      *RenameMap
	Warnings []Warning
}

// Plan reads and parses paths, indexes them, runs the configured policies
// and builds the rename map. Unreadable or unparsable files become
// warnings; only a policy failure or cancellation is an error.
func (e *Engine) Plan(ctx context.Context, root string, paths []string) (*Plan, error) {
	files := make([]SourceFile, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files = append(files, e.loadFile(ctx, path))
	}

	idx, warnings := IndexProject(root, files)
	for _, w := range warnings {
		e.logger.Warn("skipping file in index", zap.String("path", w.Path), zap.Error(w.Err))
	}

	preserved, err := e.runPolicies(ctx, idx, files)
	if err != nil {
		return nil, err
	}
	idx = idx.WithPreserved(append(preserved, e.preserve...)...)

	rm := BuildRenameMap(idx)
	e.logger.Info("rename map built",
		zap.Int("files", len(files)),
		zap.Int("symbols", rm.Len()),
		zap.Int("external", idx.ExternalSymbols.Len()),
		zap.Int("preserved", idx.Preserved.Len()),
		zap.String("digest", fmt.Sprintf("%016x", rm.Digest())),
	)
	return &Plan{Root: root, Files: files, Index: idx, Map: rm, Warnings: warnings}, nil
}

func (e *Engine) loadFile(ctx context.Context, path string) SourceFile {
	src, err := e.files.Read(ctx, path)
	if err != nil {
		return SourceFile{Path: path, Err: err}
	}
	mod, err := parser.Parse(ctx, src)
	if err != nil {
		return SourceFile{Path: path, Err: fmt.Errorf("%w: %w", ErrParse, err)}
	}
	return SourceFile{Path: path, Module: mod}
}

func (e *Engine) runPolicies(ctx context.Context, idx *ProjectIndex, files []SourceFile) ([]string, error) {
	if len(e.policies) == 0 {
		return nil, nil
	}
	rt := pyrt.NewRuntime(e.scriptsDir, pyrt.WithRuntimeFS(e.scriptsFS), pyrt.WithLogger(e.logger))

	in := pyrt.PolicyInput{
		Candidates:      idx.RenameCandidates.Sorted(),
		Attributes:      idx.Attributes.Sorted(),
		ClassNames:      idx.ClassNames.Sorted(),
		ExternalSymbols: idx.ExternalSymbols.Sorted(),
	}
	for _, f := range files {
		if f.Module == nil {
			continue
		}
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			abs = f.Path
		}
		in.Files = append(in.Files, abs)
	}

	var preserved []string
	for _, ref := range e.policies {
		names, err := rt.RunPolicy(ctx, ref, in)
		if err != nil {
			return nil, fmt.Errorf("obfuscation: policy %s: %w", ref, err)
		}
		e.logger.Debug("policy applied", zap.String("policy", ref), zap.Strings("preserved", names))
		preserved = append(preserved, names...)
	}
	return preserved, nil
}
