package runtime

import (
	"context"
	"os"
	"strings"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/zskulcsar/code-duplication-scanner/internal/parser"
)

// treeRegistry remembers the source bytes behind every tree a script
// parsed. go-tree-sitter nodes do not link back to their tree, so entries
// are keyed by the root node and found again by walking Parent().
type treeRegistry struct {
	mu      sync.RWMutex
	sources map[uintptr][]byte
}

func newTreeRegistry() *treeRegistry {
	return &treeRegistry{sources: make(map[uintptr][]byte)}
}

func rootKey(node *sitter.Node) uintptr {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return uintptr(unsafe.Pointer(node))
}

func (t *treeRegistry) register(tree *sitter.Tree, src []byte) {
	t.mu.Lock()
	t.sources[rootKey(tree.RootNode())] = src
	t.mu.Unlock()
}

func (t *treeRegistry) source(node *sitter.Node) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src, ok := t.sources[rootKey(node)]
	return src, ok
}

// queryCache compiles each tree-sitter pattern once. Policies usually run
// the same pattern against every file of a project.
type queryCache struct {
	mu      sync.Mutex
	queries map[string]*sitter.Query
}

func newQueryCache() *queryCache {
	return &queryCache{queries: make(map[string]*sitter.Query)}
}

func (c *queryCache) get(pattern string) (*sitter.Query, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.queries[pattern]; ok {
		return q, nil
	}
	q, err := sitter.NewQuery([]byte(pattern), parser.Language())
	if err != nil {
		return nil, err
	}
	c.queries[pattern] = q
	return q, nil
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// nodeArg unwraps a proxied *sitter.Node. The second result is a Risor
// error object when arg is anything else.
func nodeArg(fn string, arg object.Object) (*sitter.Node, object.Object) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func stringArg(fn, what string, arg object.Object) (string, object.Object) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

func proxyOf(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// parse(path) → Tree
func makeParseFn(trees *treeRegistry) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse", 1, len(args))
		}
		path, errObj := stringArg("parse", "path", args[0])
		if errObj != nil {
			return errObj
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		return parseInto(ctx, trees, "parse", src)
	})
}

// parse_src(source) → Tree
func makeParseSrcFn(trees *treeRegistry) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_src", 1, len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		return parseInto(ctx, trees, "parse_src", []byte(src))
	})
}

func parseInto(ctx context.Context, trees *treeRegistry, fn string, src []byte) object.Object {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(parser.Language())

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	trees.register(tree, src)
	return proxyOf(fn, tree)
}

// node_text(node) → string
//
// Risor proxies cannot pass a []byte into node.Content, so the source is
// looked up on the Go side.
func makeNodeTextFn(trees *treeRegistry) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, ok := trees.source(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(node.Content(src))
	})
}

// query(pattern, node) → list of {capture: node}
func makeQueryFn(trees *treeRegistry, cache *queryCache) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		src, ok := trees.source(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}
		q, err := cache.get(pattern)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// node_child(node, field) → node or nil
//
// A missing field yields Risor nil rather than a proxied nil pointer.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOf("node_child", child)
	})
}

// string_value(node) → string or nil
//
// Only plain literals have a value: f-strings, bytes, literals with
// escapes and non-string nodes give nil.
func makeStringValueFn(trees *treeRegistry) *object.Builtin {
	return object.NewBuiltin("string_value", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("string_value", 1, len(args))
		}
		node, errObj := nodeArg("string_value", args[0])
		if errObj != nil {
			return errObj
		}
		if node.Type() != "string" {
			return object.Nil
		}
		src, ok := trees.source(node)
		if !ok {
			return object.Errorf("string_value: node does not belong to a parsed tree")
		}
		if v, ok := plainLiteral(node.Content(src)); ok {
			return object.NewString(v)
		}
		return object.Nil
	})
}

// plainLiteral strips the quotes of a literal without prefix, escapes or
// line breaks.
func plainLiteral(raw string) (string, bool) {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(raw) >= 2*len(q) && strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) {
			body := raw[len(q) : len(raw)-len(q)]
			if strings.ContainsAny(body, "\\\r\n") {
				return "", false
			}
			return body, true
		}
	}
	return "", false
}

// policyLog is the log global. Messages carry the running script's name.
type policyLog struct {
	logger *zap.Logger
}

func (l *policyLog) Info(msg string)  { l.logger.Info(msg) }
func (l *policyLog) Warn(msg string)  { l.logger.Warn(msg) }
func (l *policyLog) Error(msg string) { l.logger.Error(msg) }
