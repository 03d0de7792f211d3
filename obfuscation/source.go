package obfuscation

import (
	"bytes"
	"context"
	"fmt"

	"github.com/zskulcsar/code-duplication-scanner/internal/parser"
	"github.com/zskulcsar/code-duplication-scanner/internal/pyast"
)

// SourceResult is the text-level outcome of rewriting one file.
type SourceResult struct {
	Source              []byte
	Changed             bool
	SymbolsRenamed      int
	LikelyLocalRewrites int
	DynamicNameRewrites int
}

// RewriteSource parses src, rewrites it with rm and prints the result. The
// output is parsed again before it is returned.
func RewriteSource(ctx context.Context, src []byte, rm *RenameMap, idx *ProjectIndex) (*SourceResult, error) {
	mod, err := parser.Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return rewriteModule(ctx, mod, rm, idx, true)
}

func rewriteModule(ctx context.Context, mod *pyast.Module, rm *RenameMap, idx *ProjectIndex, verify bool) (*SourceResult, error) {
	res, err := Rewrite(mod, rm, idx)
	if err != nil {
		return nil, err
	}
	out, err := pyast.Print(res.Tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrint, err)
	}
	if verify {
		if err := parser.Check(ctx, out); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVerify, err)
		}
	}
	return &SourceResult{
		Source:              out,
		Changed:             !bytes.Equal(out, mod.Source),
		SymbolsRenamed:      res.SymbolsRenamed,
		LikelyLocalRewrites: res.LikelyLocalRewrites,
		DynamicNameRewrites: res.DynamicNameRewrites,
	}, nil
}
