// Package pylang holds the Python naming rules the obfuscator needs:
// identifier validity, the reserved dunder pattern, keywords, the builtin
// namespace, and the deterministic short-name sequence.
package pylang

import (
	"strings"
	"unicode"
)

// keywords mirrors keyword.kwlist for CPython 3.12. Soft keywords (match,
// case, type, _) are valid identifiers and are not listed.
var keywords = newSet(
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
	"while", "with", "yield",
)

// builtins mirrors dir(builtins) for CPython 3.12.
var builtins = newSet(
	"ArithmeticError", "AssertionError", "AttributeError", "BaseException",
	"BaseExceptionGroup", "BlockingIOError", "BrokenPipeError", "BufferError",
	"BytesWarning", "ChildProcessError", "ConnectionAbortedError",
	"ConnectionError", "ConnectionRefusedError", "ConnectionResetError",
	"DeprecationWarning", "EOFError", "Ellipsis", "EncodingWarning",
	"EnvironmentError", "Exception", "ExceptionGroup", "False",
	"FileExistsError", "FileNotFoundError", "FloatingPointError",
	"FutureWarning", "GeneratorExit", "IOError", "ImportError",
	"ImportWarning", "IndentationError", "IndexError", "InterruptedError",
	"IsADirectoryError", "KeyError", "KeyboardInterrupt", "LookupError",
	"MemoryError", "ModuleNotFoundError", "NameError", "None",
	"NotADirectoryError", "NotImplemented", "NotImplementedError", "OSError",
	"OverflowError", "PendingDeprecationWarning", "PermissionError",
	"ProcessLookupError", "RecursionError", "ReferenceError",
	"ResourceWarning", "RuntimeError", "RuntimeWarning", "StopAsyncIteration",
	"StopIteration", "SyntaxError", "SyntaxWarning", "SystemError",
	"SystemExit", "TabError", "TimeoutError", "True", "TypeError",
	"UnboundLocalError", "UnicodeDecodeError", "UnicodeEncodeError",
	"UnicodeError", "UnicodeTranslateError", "UnicodeWarning", "UserWarning",
	"ValueError", "Warning", "ZeroDivisionError", "__build_class__",
	"__debug__", "__doc__", "__import__", "__loader__", "__name__",
	"__package__", "__spec__", "abs", "aiter", "all", "anext", "any",
	"ascii", "bin", "bool", "breakpoint", "bytearray", "bytes", "callable",
	"chr", "classmethod", "compile", "complex", "copyright", "credits",
	"delattr", "dict", "dir", "divmod", "enumerate", "eval", "exec", "exit",
	"filter", "float", "format", "frozenset", "getattr", "globals",
	"hasattr", "hash", "help", "hex", "id", "input", "int", "isinstance",
	"issubclass", "iter", "len", "license", "list", "locals", "map", "max",
	"memoryview", "min", "next", "object", "oct", "open", "ord", "pow",
	"print", "property", "quit", "range", "repr", "reversed", "round", "set",
	"setattr", "slice", "sorted", "staticmethod", "str", "sum", "super",
	"tuple", "type", "vars", "zip",
)

func newSet(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// IsKeyword reports whether name is a hard Python keyword.
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// IsBuiltin reports whether name is bound in the builtins module.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// IsReserved reports whether name can never be used as a generated name.
func IsReserved(name string) bool {
	return IsKeyword(name) || IsBuiltin(name)
}

// IsDunder reports whether name starts and ends with a double underscore.
// Such names are never renamed.
func IsDunder(name string) bool {
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// IsIdentifier approximates str.isidentifier: a letter or underscore
// followed by letters, digits, underscores, or combining marks.
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || unicode.In(r, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc)) {
			continue
		}
		return false
	}
	return true
}

// IsDottedName reports whether name is one or more identifiers joined by dots.
func IsDottedName(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if !IsIdentifier(part) {
			return false
		}
	}
	return true
}

// IsRenameable reports whether name may appear as a key of a rename map.
func IsRenameable(name string) bool {
	return IsIdentifier(name) && !IsDunder(name)
}
