package pyast

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zskulcsar/code-duplication-scanner/internal/pylang"
)

// ErrMalformed is returned by Print when the tree cannot be written back
// consistently with its source.
var ErrMalformed = errors.New("pyast: malformed tree")

type edit struct {
	start, end uint32
	text       string
}

// Print renders m by applying every identifier and string-literal change
// the tree carries on top of m.Source. Comments, whitespace, and every
// construct the tree does not model are preserved byte for byte.
func Print(m *Module) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil module", ErrMalformed)
	}
	p := &printer{src: m.Source}
	Inspect(m, func(n Node) bool {
		if p.err != nil {
			return false
		}
		p.visit(n)
		return true
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.apply()
}

type printer struct {
	src   []byte
	edits []edit
	err   error
}

func (p *printer) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (p *printer) original(s Span) (string, bool) {
	if s.End < s.Start || int(s.End) > len(p.src) {
		p.fail("span [%d,%d) outside source of %d bytes", s.Start, s.End, len(p.src))
		return "", false
	}
	return string(p.src[s.Start:s.End]), true
}

func (p *printer) ident(id Ident, dotted bool) {
	if id.Loc.IsZero() {
		p.fail("identifier %q has no source position", id.Name)
		return
	}
	orig, ok := p.original(id.Loc)
	if !ok || orig == id.Name {
		return
	}
	valid := pylang.IsIdentifier(id.Name)
	if dotted {
		valid = pylang.IsDottedName(id.Name)
	}
	if !valid || pylang.IsKeyword(id.Name) {
		p.fail("invalid identifier %q", id.Name)
		return
	}
	p.edits = append(p.edits, edit{id.Loc.Start, id.Loc.End, id.Name})
}

func (p *printer) visit(n Node) {
	switch n := n.(type) {
	case *Name:
		p.ident(Ident{Name: n.Id, Loc: n.Loc}, false)
	case *FunctionDef:
		p.ident(n.Name, false)
	case *ClassDef:
		p.ident(n.Name, false)
	case *Param:
		p.ident(n.Name, false)
	case *Keyword:
		if n.Name != nil {
			p.ident(*n.Name, false)
		}
	case *Attribute:
		p.ident(n.Attr, false)
	case *Alias:
		p.alias(n)
	case *Str:
		p.str(n)
	}
}

func (p *printer) alias(a *Alias) {
	p.ident(a.Name, true)
	if a.AsName == nil {
		return
	}
	if !a.AsName.Loc.IsZero() {
		p.ident(*a.AsName, false)
		return
	}
	if !pylang.IsIdentifier(a.AsName.Name) || pylang.IsKeyword(a.AsName.Name) {
		p.fail("invalid import alias %q", a.AsName.Name)
		return
	}
	if a.Name.Loc.IsZero() {
		p.fail("alias %q has no source position", a.Name.Name)
		return
	}
	end := a.Name.Loc.End
	p.edits = append(p.edits, edit{end, end, " as " + a.AsName.Name})
}

func (p *printer) str(s *Str) {
	if !s.Simple {
		return
	}
	orig, ok := p.original(s.Loc)
	if !ok {
		return
	}
	head := len(s.Prefix) + len(s.Quote)
	if len(orig) < head+len(s.Quote) {
		p.fail("string literal %q shorter than its delimiters", orig)
		return
	}
	if orig[head:len(orig)-len(s.Quote)] == s.Value {
		return
	}
	if s.Quote == "" || strings.ContainsAny(s.Value, "\\\r\n"+s.Quote[:1]) {
		p.fail("string value %q cannot be quoted with %s", s.Value, s.Quote)
		return
	}
	p.edits = append(p.edits, edit{s.Loc.Start, s.Loc.End, s.Prefix + s.Quote + s.Value + s.Quote})
}

func (p *printer) apply() ([]byte, error) {
	sort.SliceStable(p.edits, func(i, j int) bool {
		return p.edits[i].start < p.edits[j].start
	})
	var buf bytes.Buffer
	buf.Grow(len(p.src) + 64)
	var cursor uint32
	for _, e := range p.edits {
		if e.start < cursor {
			return nil, fmt.Errorf("%w: overlapping edits at byte %d", ErrMalformed, e.start)
		}
		buf.Write(p.src[cursor:e.start])
		buf.WriteString(e.text)
		cursor = e.end
	}
	buf.Write(p.src[cursor:])
	return buf.Bytes(), nil
}
