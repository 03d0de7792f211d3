package store

import "time"

// Run is one recorded obfuscation run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	InputRoot  string
	OutputRoot string
	MapDigest  string
	Files      int
	Symbols    int
}

// Mapping is one rename-map entry of a run.
type Mapping struct {
	RunID       int64
	Original    string
	Generated   string
	LikelyLocal bool
}

// FileResult is the outcome of rewriting one file. OutputHash is empty and
// Error set when the file failed.
type FileResult struct {
	RunID               int64
	Path                string
	SourceHash          string
	OutputHash          string
	Changed             bool
	SymbolsRenamed      int
	LikelyLocalRewrites int
	DynamicNameRewrites int
	Error               string
}
