package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zskulcsar/code-duplication-scanner/internal/config"
	"github.com/zskulcsar/code-duplication-scanner/internal/project"
	"github.com/zskulcsar/code-duplication-scanner/internal/store"
	"github.com/zskulcsar/code-duplication-scanner/obfuscation"
)

func (c *cli) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run --input <dir> --output <dir>",
		Short: "Copy a project and obfuscate the copy",
		Long: "Validates the paths, copies the input project into the empty output directory " +
			"(honouring .gitignore files and skipping .git), then renames identifiers in every " +
			"Python file of the copy. Progress markers and counters are printed as key=value lines.",
		Args: cobra.NoArgs,
		RunE: c.runObfuscate,
	}
	cmd.Flags().StringVar(&c.input, "input", "", "input Python project (must contain .gitignore)")
	cmd.Flags().StringVar(&c.output, "output", "", "output directory (must be empty or missing)")
	cmd.Flags().StringVar(&c.ledger, "ledger", "", "record the run in this SQLite ledger")
	cmd.Flags().BoolVar(&c.verify, "verify", true, "re-parse rewritten files before writing them")
	c.addPipelineFlags(cmd)
	return cmd
}

func (c *cli) runObfuscate(cmd *cobra.Command, args []string) error {
	if c.input == "" || c.output == "" {
		return failWith(2, "both --input and --output are required")
	}
	cfg, err := c.loadConfig(cmd, c.input)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer logger.Sync()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	marker(w, "validation", "start")
	in, out, err := project.ValidatePaths(c.input, c.output)
	if err != nil {
		logger.Warn("validation failed", zap.Error(err))
		return &exitError{code: 2, err: err}
	}
	marker(w, "validation", "done")

	matcher, err := project.LoadMatcher(in)
	if err != nil {
		logger.Warn("reading .gitignore files failed", zap.Error(err))
		return failWith(2, "Failed to read .gitignore files: %v", err)
	}

	var ledger *store.Store
	if cfg.Ledger != "" {
		ledger, err = openLedger(cfg.Ledger)
		if err != nil {
			return err
		}
		defer ledger.Close()
	}

	marker(w, "copy", "start")
	copied, err := project.Copy(ctx, in, out, matcher)
	if err != nil {
		logger.Warn("copy failed", zap.Error(err))
		return failWith(2, "Copy failed: %v", err)
	}
	marker(w, "copy", "done")
	summaryLine(w,
		kv{"files_copied", copied.FilesCopied},
		kv{"dirs_created", copied.DirsCreated},
		kv{"paths_skipped_by_gitignore", copied.PathsSkippedByGitignore},
		kv{"paths_skipped_git_dir", copied.PathsSkippedGitDir},
		kv{"elapsed_ms", copied.Elapsed.Milliseconds()},
	)

	marker(w, "transform", "start")
	started := time.Now()
	paths, err := project.Discover(out, nil)
	if err != nil {
		logger.Warn("discovering Python files failed", zap.Error(err))
		return failWith(2, "Transform failed: %v", err)
	}
	engine := obfuscation.NewEngine(c.engineOptions(cfg, logger, ledger, in)...)
	sum, err := engine.Transform(ctx, out, paths)
	if err != nil {
		logger.Warn("transform failed", zap.Error(err))
		return failWith(2, "Transform failed: %v", err)
	}
	marker(w, "transform", "done")
	summaryLine(w,
		kv{"python_files_discovered", sum.FilesDiscovered},
		kv{"python_files_processed", sum.FilesProcessed},
		kv{"python_files_unchanged", sum.FilesUnchanged},
		kv{"symbols_discovered", sum.SymbolsDiscovered},
		kv{"symbols_renamed", sum.SymbolsRenamed},
		kv{"symbols_skipped_external", sum.SymbolsSkippedExternal},
		kv{"symbols_renamed_likely_local", sum.LikelyLocalRewrites},
		kv{"dynamic_name_rewrites", sum.DynamicNameRewrites},
		kv{"elapsed_ms", time.Since(started).Milliseconds()},
	)
	if ledger != nil {
		summaryLine(w, kv{"map_digest", fmt.Sprintf("%016x", sum.Digest)}, kv{"run_id", sum.RunID})
	}
	fmt.Fprintln(w, "status=success")
	return nil
}

// engineOptions translates the configuration into engine options.
func (c *cli) engineOptions(cfg *config.Config, logger *zap.Logger, ledger *store.Store, origin string) []obfuscation.Option {
	opts := []obfuscation.Option{
		obfuscation.WithLogger(logger),
		obfuscation.WithParallel(cfg.Workers),
		obfuscation.WithVerify(cfg.Verify),
		obfuscation.WithPreserve(cfg.Preserve...),
		obfuscation.WithPolicies(cfg.Policies...),
	}
	if c.scriptsDir != "" {
		opts = append(opts, obfuscation.WithScriptsDir(c.scriptsDir))
	}
	if ledger != nil {
		opts = append(opts, obfuscation.WithLedger(ledger), obfuscation.WithOrigin(origin))
	}
	return opts
}

func openLedger(path string) (*store.Store, error) {
	s, err := store.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return s, nil
}

type kv struct {
	key   string
	value any
}

func marker(w io.Writer, phase, state string) {
	fmt.Fprintf(w, "%s:%s\n", phase, state)
}

// summaryLine prints the pairs as one space-separated key=value line.
func summaryLine(w io.Writer, pairs ...kv) {
	for i, p := range pairs {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		fmt.Fprintf(w, "%s=%v", p.key, p.value)
	}
	fmt.Fprintln(w)
}
