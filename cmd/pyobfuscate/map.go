package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zskulcsar/code-duplication-scanner/internal/project"
	"github.com/zskulcsar/code-duplication-scanner/obfuscation"
)

func (c *cli) newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map [path]",
		Short: "Print the rename map of a project without changing it",
		Long:  "Indexes the Python files under path (default: the current directory), applies preservation settings and policies, and prints the resulting rename map.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runMap,
	}
	c.addPipelineFlags(cmd)
	return cmd
}

func (c *cli) runMap(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectDir(args)
	if err != nil {
		return err
	}
	cfg, err := c.loadConfig(cmd, root)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	matcher, err := project.LoadMatcher(root)
	if err != nil {
		return fmt.Errorf("reading .gitignore files: %w", err)
	}
	paths, err := project.Discover(root, matcher)
	if err != nil {
		return err
	}

	engine := obfuscation.NewEngine(c.engineOptions(cfg, logger, nil, root)...)
	plan, err := engine.Plan(cmd.Context(), root, paths)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), cfg.Format, CLIResult{
		Command: "map",
		Results: mapToCLI(plan),
	})
}

// resolveProjectDir returns the absolute path of the directory to work on.
func resolveProjectDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

func mapToCLI(plan *obfuscation.Plan) CLIMap {
	m := CLIMap{
		Root:     plan.Root,
		Digest:   fmt.Sprintf("%016x", plan.Map.Digest()),
		Files:    len(plan.Files),
		External: plan.Index.ExternalSymbols.Len(),
		Entries:  make([]CLIMapEntry, 0, plan.Map.Len()),
	}
	for _, orig := range plan.Map.Names() {
		gen, _ := plan.Map.Lookup(orig)
		m.Entries = append(m.Entries, CLIMapEntry{
			Original:    orig,
			Generated:   gen,
			LikelyLocal: plan.Map.IsLikelyLocal(orig),
		})
	}
	for _, w := range plan.Warnings {
		m.Warnings = append(m.Warnings, w.Error())
	}
	return m
}
