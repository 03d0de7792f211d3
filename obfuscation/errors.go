package obfuscation

import "errors"

var (
	// ErrParse wraps a failure to parse a source file.
	ErrParse = errors.New("obfuscation: parse failed")
	// ErrPrint wraps a failure to print a rewritten tree. It means the tree
	// was malformed, not that the input was.
	ErrPrint = errors.New("obfuscation: print failed")
	// ErrVerify wraps a rewritten file that no longer parses.
	ErrVerify = errors.New("obfuscation: rewritten source does not parse")

	errNoModule = errors.New("no parsed module")
)
