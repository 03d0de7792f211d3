package main

// CLIResult is the top-level envelope of every structured command output.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIMap is a rename map as printed by the map command.
type CLIMap struct {
	Root     string        `json:"root" yaml:"root"`
	Digest   string        `json:"digest" yaml:"digest"`
	Files    int           `json:"files" yaml:"files"`
	External int           `json:"external_symbols" yaml:"external_symbols"`
	Entries  []CLIMapEntry `json:"entries" yaml:"entries"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// CLIMapEntry is one renamed identifier.
type CLIMapEntry struct {
	Original    string `json:"original" yaml:"original"`
	Generated   string `json:"generated" yaml:"generated"`
	LikelyLocal bool   `json:"likely_local" yaml:"likely_local"`
}

// CLIRun is a ledger run.
type CLIRun struct {
	ID         int64  `json:"id" yaml:"id"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	InputRoot  string `json:"input_root" yaml:"input_root"`
	OutputRoot string `json:"output_root" yaml:"output_root"`
	MapDigest  string `json:"map_digest" yaml:"map_digest"`
	Files      int    `json:"files" yaml:"files"`
	Symbols    int    `json:"symbols" yaml:"symbols"`
}

// CLIRunDetail is a run with its per-file results.
type CLIRunDetail struct {
	Run   CLIRun          `json:"run" yaml:"run"`
	Files []CLIFileResult `json:"files" yaml:"files"`
}

// CLIFileResult is the outcome for one file of a run.
type CLIFileResult struct {
	Path                string `json:"path" yaml:"path"`
	Changed             bool   `json:"changed" yaml:"changed"`
	SymbolsRenamed      int    `json:"symbols_renamed" yaml:"symbols_renamed"`
	LikelyLocalRewrites int    `json:"likely_local_rewrites" yaml:"likely_local_rewrites"`
	DynamicNameRewrites int    `json:"dynamic_name_rewrites" yaml:"dynamic_name_rewrites"`
	SourceHash          string `json:"source_hash" yaml:"source_hash"`
	OutputHash          string `json:"output_hash,omitempty" yaml:"output_hash,omitempty"`
	Error               string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIReveal pairs a generated name with its original.
type CLIReveal struct {
	Generated string `json:"generated" yaml:"generated"`
	Original  string `json:"original,omitempty" yaml:"original,omitempty"`
	Found     bool   `json:"found" yaml:"found"`
}
