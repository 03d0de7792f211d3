package parser

import (
	"path/filepath"
	"sync"

	"github.com/smacker/go-tree-sitter/python"
)

// SourceExt is the extension of the files the obfuscator rewrites. The
// match is case-sensitive, like a "*.py" glob.
const SourceExt = ".py"

// Language returns the tree-sitter Python grammar, loaded on first use.
var Language = sync.OnceValue(python.GetLanguage)

// IsPythonFile reports whether path names a Python source file.
func IsPythonFile(path string) bool {
	return filepath.Ext(path) == SourceExt
}
