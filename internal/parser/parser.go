// Package parser turns Python source text into a pyast tree using the
// tree-sitter Python grammar.
package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/zskulcsar/code-duplication-scanner/internal/pyast"
)

// SyntaxError reports the first error or missing node tree-sitter recovered
// from. Line and Column are 1-based.
type SyntaxError struct {
	Line   int
	Column int
	Near   string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at line %d, column %d", e.Line, e.Column)
	}
	return fmt.Sprintf("syntax error at line %d, column %d near %q", e.Line, e.Column, e.Near)
}

// Parse parses src as a Python module. Source that tree-sitter can only
// parse with error recovery is rejected with a *SyntaxError.
func Parse(ctx context.Context, src []byte) (*pyast.Module, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(Language())

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parser: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root, src)
	}

	c := &converter{src: src}
	mod := &pyast.Module{Loc: c.span(root), Source: src}
	for _, child := range namedChildren(root) {
		mod.Body = append(mod.Body, c.convert(child, pyast.Load))
	}
	return mod, nil
}

// Check reports whether src parses without errors.
func Check(ctx context.Context, src []byte) error {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(Language())

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("parser: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()
	if root := tree.RootNode(); root.HasError() {
		return syntaxError(root, src)
	}
	return nil
}

func syntaxError(root *sitter.Node, src []byte) error {
	bad := firstError(root)
	if bad == nil {
		bad = root
	}
	pt := bad.StartPoint()
	near := bad.Content(src)
	if i := strings.IndexByte(near, '\n'); i >= 0 {
		near = near[:i]
	}
	if len(near) > 40 {
		near = near[:40]
	}
	return &SyntaxError{Line: int(pt.Row) + 1, Column: int(pt.Column) + 1, Near: near}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}

// namedChildren returns n's named children without comments and line
// continuations.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "comment", "line_continuation":
			continue
		}
		out = append(out, child)
	}
	return out
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func startsWithKeyword(n *sitter.Node, kw string) bool {
	return n.ChildCount() > 0 && n.Child(0).Type() == kw
}
