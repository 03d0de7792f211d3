package obfuscation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zskulcsar/code-duplication-scanner/internal/store"
)

// Summary holds the counters of one Transform.
type Summary struct {
	FilesDiscovered        int
	FilesProcessed         int
	FilesUnchanged         int
	SymbolsDiscovered      int
	SymbolsRenamed         int
	SymbolsSkippedExternal int
	LikelyLocalRewrites    int
	DynamicNameRewrites    int
	// Digest is the rename map digest, see RenameMap.Digest.
	Digest uint64
	// RunID is the ledger run, or zero without a ledger.
	RunID   int64
	Elapsed time.Duration
}

// outcome is the Phase B result for one file.
type outcome struct {
	res *SourceResult
	err error
}

// Transform obfuscates every file in paths in place, using a three-phase
// pipeline:
//
//	Phase A (serial):   read, parse, index, policies, rename map (Plan).
//	Phase B (parallel): rewrite, print and verify each file.
//	Phase C (serial):   write changed files and ledger rows in path order.
//
// A failing file does not stop the others; all failures are returned
// together after every successful file has been written.
func (e *Engine) Transform(ctx context.Context, root string, paths []string) (*Summary, error) {
	started := time.Now()

	// ---- Phase A ----
	plan, err := e.Plan(ctx, root, paths)
	if err != nil {
		return nil, err
	}

	// ---- Phase B ----
	results, err := e.rewriteAll(ctx, plan)
	if err != nil {
		return nil, err
	}

	// ---- Phase C ----
	sum := &Summary{
		FilesDiscovered:        len(plan.Files),
		SymbolsDiscovered:      plan.Map.Len(),
		SymbolsSkippedExternal: plan.Index.ExternalSymbols.Len(),
		Digest:                 plan.Map.Digest(),
	}
	var (
		errs    []error
		records []store.FileResult
	)
	for i, f := range plan.Files {
		rel := relPath(root, f.Path)
		rec := store.FileResult{Path: rel}
		if f.Module != nil {
			rec.SourceHash = store.ContentHash(f.Module.Source)
		}

		ferr := f.Err
		if ferr == nil {
			ferr = results[i].err
		}
		if ferr == nil {
			ferr = e.commitFile(ctx, f.Path, results[i].res, sum)
		}
		if ferr != nil {
			e.logger.Warn("file failed", zap.String("path", rel), zap.Error(ferr))
			errs = append(errs, fmt.Errorf("%s: %w", rel, ferr))
			rec.Error = ferr.Error()
			records = append(records, rec)
			continue
		}

		res := results[i].res
		rec.OutputHash = store.ContentHash(res.Source)
		rec.Changed = res.Changed
		rec.SymbolsRenamed = res.SymbolsRenamed
		rec.LikelyLocalRewrites = res.LikelyLocalRewrites
		rec.DynamicNameRewrites = res.DynamicNameRewrites
		records = append(records, rec)
	}

	if e.ledger != nil {
		runID, err := e.record(started, plan, sum, records)
		if err != nil {
			errs = append(errs, err)
		}
		sum.RunID = runID
	}

	sum.Elapsed = time.Since(started)
	e.logger.Info("transform finished",
		zap.Int("processed", sum.FilesProcessed),
		zap.Int("unchanged", sum.FilesUnchanged),
		zap.Int("renamed", sum.SymbolsRenamed),
		zap.Int("errors", len(errs)),
		zap.Duration("elapsed", sum.Elapsed),
	)
	if len(errs) > 0 {
		return sum, fmt.Errorf("transform had %d error(s): %w", len(errs), errors.Join(errs...))
	}
	return sum, nil
}

// rewriteAll runs Phase B on a bounded worker pool. Results are indexed
// like plan.Files; files that failed to load get an empty outcome.
func (e *Engine) rewriteAll(ctx context.Context, plan *Plan) ([]outcome, error) {
	results := make([]outcome, len(plan.Files))

	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range plan.Files {
		if f.Module == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := rewriteModule(gctx, f.Module, plan.Map, plan.Index, e.verify)
			results[i] = outcome{res: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, ctx.Err()
}

// commitFile writes one successful result and updates the counters.
func (e *Engine) commitFile(ctx context.Context, path string, res *SourceResult, sum *Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Changed {
		if err := e.files.Write(ctx, path, res.Source); err != nil {
			return err
		}
	} else {
		sum.FilesUnchanged++
	}
	sum.FilesProcessed++
	sum.SymbolsRenamed += res.SymbolsRenamed
	sum.LikelyLocalRewrites += res.LikelyLocalRewrites
	sum.DynamicNameRewrites += res.DynamicNameRewrites
	if res.LikelyLocalRewrites > 0 {
		e.logger.Warn("applied likely-local rewrites",
			zap.String("path", path),
			zap.Int("count", res.LikelyLocalRewrites),
		)
	}
	return nil
}

func (e *Engine) record(started time.Time, plan *Plan, sum *Summary, files []store.FileResult) (int64, error) {
	origin := e.origin
	if origin == "" {
		origin = plan.Root
	}
	mappings := make([]store.Mapping, 0, plan.Map.Len())
	for _, orig := range plan.Map.Names() {
		gen, _ := plan.Map.Lookup(orig)
		mappings = append(mappings, store.Mapping{
			Original:    orig,
			Generated:   gen,
			LikelyLocal: plan.Map.IsLikelyLocal(orig),
		})
	}
	run := &store.Run{
		StartedAt:  started,
		InputRoot:  origin,
		OutputRoot: plan.Root,
		MapDigest:  fmt.Sprintf("%016x", sum.Digest),
		Files:      len(plan.Files),
		Symbols:    plan.Map.Len(),
	}
	id, err := e.ledger.CommitRun(run, mappings, files)
	if err != nil {
		return 0, fmt.Errorf("obfuscation: record run: %w", err)
	}
	return id, nil
}

// relPath returns path relative to root in slash form, or path itself
// when it is not below root.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
