package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/zskulcsar/code-duplication-scanner/internal/config"
)

// writeResult writes result in the requested format.
func writeResult(w io.Writer, format string, result CLIResult) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case config.FormatText, "":
		return writeResultText(w, result)
	default:
		return fmt.Errorf("invalid format %q: must be text, json or yaml", format)
	}
}

// writeResultText dispatches to the text formatter of the result type.
func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIMap:
		formatMapText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case CLIRunDetail:
		formatRunDetailText(w, v)
	case []CLIReveal:
		formatRevealText(w, v)
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// formatMapText prints the map as aligned columns followed by the digest.
func formatMapText(w io.Writer, m CLIMap) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORIGINAL\tGENERATED\tLIKELY_LOCAL")
	for _, e := range m.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", e.Original, e.Generated, e.LikelyLocal)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d symbols from %d files, %d external, digest %s\n",
		len(m.Entries), m.Files, m.External, m.Digest)
	for _, warning := range m.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tFILES\tSYMBOLS\tDIGEST\tINPUT\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.ID, r.StartedAt, r.Files, r.Symbols, r.MapDigest, r.InputRoot, r.OutputRoot)
	}
	tw.Flush()
}

func formatRunDetailText(w io.Writer, d CLIRunDetail) {
	fmt.Fprintf(w, "Run %d\n", d.Run.ID)
	fmt.Fprintln(w, "======")
	fmt.Fprintf(w, "Started: %s\n", d.Run.StartedAt)
	fmt.Fprintf(w, "Input:   %s\n", d.Run.InputRoot)
	fmt.Fprintf(w, "Output:  %s\n", d.Run.OutputRoot)
	fmt.Fprintf(w, "Digest:  %s\n", d.Run.MapDigest)
	fmt.Fprintf(w, "Files: %d, symbols: %d\n", d.Run.Files, d.Run.Symbols)
	if len(d.Files) == 0 {
		return
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tCHANGED\tRENAMED\tLIKELY_LOCAL\tDYNAMIC\tERROR")
	for _, f := range d.Files {
		errText := f.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%d\t%s\n",
			f.Path, f.Changed, f.SymbolsRenamed, f.LikelyLocalRewrites, f.DynamicNameRewrites, errText)
	}
	tw.Flush()
}

func formatRevealText(w io.Writer, reveals []CLIReveal) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GENERATED\tORIGINAL")
	for _, r := range reveals {
		orig := r.Original
		if !r.Found {
			orig = "?"
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Generated, orig)
	}
	tw.Flush()
}
