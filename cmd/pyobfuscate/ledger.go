package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zskulcsar/code-duplication-scanner/internal/store"
)

func (c *cli) newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded runs",
		Long:  "Reads the SQLite ledger written by run --ledger: past runs, their per-file results, and the original spelling of generated names.",
	}
	cmd.PersistentFlags().StringVar(&c.ledger, "ledger", "", "SQLite ledger path")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  c.runLedgerRuns,
	}
	show := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one run and its file results (default: the latest run)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runLedgerShow,
	}
	reveal := &cobra.Command{
		Use:   "reveal <generated-name>...",
		Short: "Print the original names behind generated identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runLedgerReveal,
	}
	reveal.Flags().Int64Var(&c.runID, "run", 0, "run to look names up in (default: the latest run)")

	cmd.AddCommand(runs, show, reveal)
	return cmd
}

// openLedgerFromConfig opens the ledger named by --ledger or the
// configuration.
func (c *cli) openLedgerFromConfig(cmd *cobra.Command) (*store.Store, string, error) {
	cfg, err := c.loadConfig(cmd, "")
	if err != nil {
		return nil, "", err
	}
	if cfg.Ledger == "" {
		return nil, "", fmt.Errorf("no ledger configured: pass --ledger or set ledger in the configuration")
	}
	s, err := openLedger(cfg.Ledger)
	if err != nil {
		return nil, "", err
	}
	return s, cfg.Format, nil
}

// pickRun returns run id, or the latest run when id is zero.
func pickRun(s *store.Store, id int64) (*store.Run, error) {
	var (
		r   *store.Run
		err error
	)
	if id == 0 {
		r, err = s.LatestRun()
	} else {
		r, err = s.RunByID(id)
	}
	if err != nil {
		return nil, err
	}
	if r == nil {
		if id == 0 {
			return nil, fmt.Errorf("ledger has no runs")
		}
		return nil, fmt.Errorf("run %d not found", id)
	}
	return r, nil
}

func (c *cli) runLedgerRuns(cmd *cobra.Command, args []string) error {
	s, format, err := c.openLedgerFromConfig(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.Runs()
	if err != nil {
		return err
	}
	out := make([]CLIRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, runToCLI(r))
	}
	return writeResult(cmd.OutOrStdout(), format, CLIResult{Command: "ledger runs", Results: out})
}

func (c *cli) runLedgerShow(cmd *cobra.Command, args []string) error {
	var id int64
	if len(args) == 1 {
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		id = v
	}

	s, format, err := c.openLedgerFromConfig(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := pickRun(s, id)
	if err != nil {
		return err
	}
	files, err := s.FileResults(r.ID)
	if err != nil {
		return err
	}
	detail := CLIRunDetail{Run: runToCLI(r), Files: make([]CLIFileResult, 0, len(files))}
	for _, f := range files {
		detail.Files = append(detail.Files, CLIFileResult{
			Path:                f.Path,
			Changed:             f.Changed,
			SymbolsRenamed:      f.SymbolsRenamed,
			LikelyLocalRewrites: f.LikelyLocalRewrites,
			DynamicNameRewrites: f.DynamicNameRewrites,
			SourceHash:          f.SourceHash,
			OutputHash:          f.OutputHash,
			Error:               f.Error,
		})
	}
	return writeResult(cmd.OutOrStdout(), format, CLIResult{Command: "ledger show", Results: detail})
}

func (c *cli) runLedgerReveal(cmd *cobra.Command, args []string) error {
	s, format, err := c.openLedgerFromConfig(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := pickRun(s, c.runID)
	if err != nil {
		return err
	}
	found, err := s.Reveal(r.ID, args...)
	if err != nil {
		return err
	}
	out := make([]CLIReveal, 0, len(args))
	for _, gen := range args {
		orig, ok := found[gen]
		out = append(out, CLIReveal{Generated: gen, Original: orig, Found: ok})
	}
	return writeResult(cmd.OutOrStdout(), format, CLIResult{Command: "ledger reveal", Results: out})
}

func runToCLI(r *store.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		StartedAt:  r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		InputRoot:  r.InputRoot,
		OutputRoot: r.OutputRoot,
		MapDigest:  r.MapDigest,
		Files:      r.Files,
		Symbols:    r.Symbols,
	}
}
