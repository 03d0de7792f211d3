package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/zskulcsar/code-duplication-scanner/internal/pyast"
)

type converter struct {
	src []byte
}

func (c *converter) span(n *sitter.Node) pyast.Span {
	return pyast.Span{Start: n.StartByte(), End: n.EndByte()}
}

func (c *converter) ident(n *sitter.Node) pyast.Ident {
	return pyast.Ident{Name: n.Content(c.src), Loc: c.span(n)}
}

// optional converts n when present. It never returns a typed nil.
func (c *converter) optional(n *sitter.Node, ctx pyast.Ctx) pyast.Node {
	if n == nil {
		return nil
	}
	return c.convert(n, ctx)
}

func (c *converter) list(nodes []*sitter.Node, ctx pyast.Ctx) []pyast.Node {
	var out []pyast.Node
	for _, n := range nodes {
		out = append(out, c.convert(n, ctx))
	}
	return out
}

// storeContainers pass a Store context through to their elements.
var storeContainers = map[string]bool{
	"pattern_list":             true,
	"tuple_pattern":            true,
	"list_pattern":             true,
	"tuple":                    true,
	"list":                     true,
	"expression_list":          true,
	"parenthesized_expression": true,
	"list_splat_pattern":       true,
	"list_splat":               true,
	"as_pattern_target":        true,
}

func (c *converter) convert(n *sitter.Node, ctx pyast.Ctx) pyast.Node {
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &pyast.Name{Loc: c.span(n), Id: n.Content(c.src), Ctx: ctx}
	case "expression_statement":
		kids := namedChildren(n)
		if len(kids) == 1 {
			return c.convert(kids[0], pyast.Load)
		}
		return &pyast.Group{Loc: c.span(n), Kind: "tuple", Children: c.list(kids, pyast.Load)}
	case "assignment":
		return c.assignment(n)
	case "augmented_assignment":
		op := n.ChildByFieldName("operator")
		aug := &pyast.AugAssign{
			Loc:    c.span(n),
			Target: c.convert(n.ChildByFieldName("left"), pyast.Store),
			Value:  c.optional(n.ChildByFieldName("right"), pyast.Load),
		}
		if op != nil {
			aug.Op = op.Content(c.src)
		}
		return aug
	case "function_definition":
		return c.functionDef(n)
	case "class_definition":
		return c.classDef(n)
	case "decorated_definition":
		return c.decorated(n)
	case "import_statement":
		imp := &pyast.Import{Loc: c.span(n)}
		for _, child := range namedChildren(n) {
			imp.Names = append(imp.Names, c.alias(child))
		}
		return imp
	case "import_from_statement":
		return c.importFrom(n)
	case "future_import_statement":
		imp := &pyast.ImportFrom{Loc: c.span(n), Module: "__future__"}
		for _, child := range namedChildren(n) {
			imp.Names = append(imp.Names, c.alias(child))
		}
		return imp
	case "for_statement":
		return c.forStmt(n)
	case "as_pattern":
		kids := namedChildren(n)
		g := &pyast.Group{Loc: c.span(n), Kind: "as_pattern"}
		alias := n.ChildByFieldName("alias")
		for _, k := range kids {
			if sameNode(k, alias) {
				g.Children = append(g.Children, c.convert(k, pyast.Store))
				continue
			}
			g.Children = append(g.Children, c.convert(k, pyast.Load))
		}
		return g
	case "except_clause", "except_group_clause":
		return c.exceptClause(n)
	case "lambda":
		lam := &pyast.Lambda{Loc: c.span(n)}
		lam.Params = c.params(n.ChildByFieldName("parameters"))
		lam.Body = c.optional(n.ChildByFieldName("body"), pyast.Load)
		return lam
	case "call":
		return c.call(n)
	case "keyword_argument":
		return c.keyword(n)
	case "attribute":
		return &pyast.Attribute{
			Loc:   c.span(n),
			Value: c.convert(n.ChildByFieldName("object"), pyast.Load),
			Attr:  c.ident(n.ChildByFieldName("attribute")),
		}
	case "subscript":
		value := n.ChildByFieldName("value")
		sub := &pyast.Subscript{Loc: c.span(n), Value: c.convert(value, pyast.Load)}
		for _, k := range namedChildren(n) {
			if sameNode(k, value) {
				continue
			}
			sub.Index = append(sub.Index, c.convert(k, pyast.Load))
		}
		return sub
	case "string":
		return c.str(n)
	case "list_comprehension":
		return c.comprehension(n, pyast.ListComp)
	case "set_comprehension":
		return c.comprehension(n, pyast.SetComp)
	case "dictionary_comprehension":
		return c.comprehension(n, pyast.DictComp)
	case "generator_expression":
		return c.comprehension(n, pyast.GeneratorExp)
	case "named_expression":
		return &pyast.Group{Loc: c.span(n), Kind: "named_expression", Children: []pyast.Node{
			c.convert(n.ChildByFieldName("name"), pyast.Store),
			c.convert(n.ChildByFieldName("value"), pyast.Load),
		}}
	case "type":
		kids := namedChildren(n)
		if len(kids) == 1 {
			return c.convert(kids[0], pyast.Load)
		}
	}

	childCtx := pyast.Load
	if ctx == pyast.Store && storeContainers[n.Type()] {
		childCtx = pyast.Store
	}
	return &pyast.Group{Loc: c.span(n), Kind: n.Type(), Children: c.list(namedChildren(n), childCtx)}
}

func (c *converter) assignment(n *sitter.Node) pyast.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if typ := n.ChildByFieldName("type"); typ != nil {
		return &pyast.AnnAssign{
			Loc:        c.span(n),
			Target:     c.convert(left, pyast.Store),
			Annotation: c.convert(typ, pyast.Load),
			Value:      c.optional(right, pyast.Load),
		}
	}
	as := &pyast.Assign{Loc: c.span(n), Targets: []pyast.Node{c.convert(left, pyast.Store)}}
	for right != nil && right.Type() == "assignment" && right.ChildByFieldName("type") == nil {
		as.Targets = append(as.Targets, c.convert(right.ChildByFieldName("left"), pyast.Store))
		right = right.ChildByFieldName("right")
	}
	as.Value = c.optional(right, pyast.Load)
	return as
}

func (c *converter) block(n *sitter.Node) []pyast.Node {
	return c.list(namedChildren(n), pyast.Load)
}

func (c *converter) functionDef(n *sitter.Node) *pyast.FunctionDef {
	fn := &pyast.FunctionDef{
		Loc:   c.span(n),
		Name:  c.ident(n.ChildByFieldName("name")),
		Async: startsWithKeyword(n, "async"),
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		fn.TypeParams = c.list(namedChildren(tp), pyast.Load)
	}
	fn.Params = c.params(n.ChildByFieldName("parameters"))
	fn.Returns = c.optional(n.ChildByFieldName("return_type"), pyast.Load)
	fn.Body = c.block(n.ChildByFieldName("body"))
	return fn
}

func (c *converter) classDef(n *sitter.Node) *pyast.ClassDef {
	cls := &pyast.ClassDef{
		Loc:  c.span(n),
		Name: c.ident(n.ChildByFieldName("name")),
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		cls.TypeParams = c.list(namedChildren(tp), pyast.Load)
	}
	if bases := n.ChildByFieldName("superclasses"); bases != nil {
		args, kws := c.arguments(bases)
		cls.Bases = args
		for _, kw := range kws {
			cls.Bases = append(cls.Bases, kw)
		}
	}
	cls.Body = c.block(n.ChildByFieldName("body"))
	return cls
}

func (c *converter) decorated(n *sitter.Node) pyast.Node {
	var decorators []pyast.Node
	for _, k := range namedChildren(n) {
		if k.Type() == "decorator" {
			decorators = append(decorators, c.list(namedChildren(k), pyast.Load)...)
		}
	}
	def := n.ChildByFieldName("definition")
	switch d := c.convert(def, pyast.Load).(type) {
	case *pyast.FunctionDef:
		d.Decorators = decorators
		return d
	case *pyast.ClassDef:
		d.Decorators = decorators
		return d
	default:
		return &pyast.Group{Loc: c.span(n), Kind: n.Type(), Children: append(decorators, d)}
	}
}

func (c *converter) params(n *sitter.Node) []*pyast.Param {
	var out []*pyast.Param
	for _, k := range namedChildren(n) {
		if p := c.param(k); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (c *converter) param(n *sitter.Node) *pyast.Param {
	switch n.Type() {
	case "identifier":
		return &pyast.Param{Loc: c.span(n), Name: c.ident(n)}
	case "list_splat_pattern", "dictionary_splat_pattern":
		kids := namedChildren(n)
		if len(kids) == 0 || kids[0].Type() != "identifier" {
			return nil
		}
		kind := pyast.ParamVarArgs
		if n.Type() == "dictionary_splat_pattern" {
			kind = pyast.ParamKwArgs
		}
		return &pyast.Param{Loc: c.span(n), Name: c.ident(kids[0]), Kind: kind}
	case "typed_parameter":
		typ := n.ChildByFieldName("type")
		for _, k := range namedChildren(n) {
			if sameNode(k, typ) {
				continue
			}
			p := c.param(k)
			if p == nil {
				return nil
			}
			p.Loc = c.span(n)
			p.Annotation = c.optional(typ, pyast.Load)
			return p
		}
		return nil
	case "default_parameter", "typed_default_parameter":
		name := n.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			return nil
		}
		return &pyast.Param{
			Loc:        c.span(n),
			Name:       c.ident(name),
			Annotation: c.optional(n.ChildByFieldName("type"), pyast.Load),
			Default:    c.optional(n.ChildByFieldName("value"), pyast.Load),
		}
	}
	// keyword_separator, positional_separator, tuple parameters
	return nil
}

func (c *converter) alias(n *sitter.Node) *pyast.Alias {
	if n.Type() == "aliased_import" {
		as := c.ident(n.ChildByFieldName("alias"))
		return &pyast.Alias{
			Loc:    c.span(n),
			Name:   c.ident(n.ChildByFieldName("name")),
			AsName: &as,
		}
	}
	return &pyast.Alias{Loc: c.span(n), Name: c.ident(n)}
}

func (c *converter) importFrom(n *sitter.Node) *pyast.ImportFrom {
	imp := &pyast.ImportFrom{Loc: c.span(n)}
	module := n.ChildByFieldName("module_name")
	if module != nil {
		if module.Type() == "relative_import" {
			for _, k := range namedChildren(module) {
				switch k.Type() {
				case "import_prefix":
					imp.Level = strings.Count(k.Content(c.src), ".")
				case "dotted_name":
					imp.Module = k.Content(c.src)
				}
			}
		} else {
			imp.Module = module.Content(c.src)
		}
	}
	for _, k := range namedChildren(n) {
		if sameNode(k, module) {
			continue
		}
		switch k.Type() {
		case "wildcard_import":
			imp.Wildcard = true
		case "dotted_name", "aliased_import":
			imp.Names = append(imp.Names, c.alias(k))
		}
	}
	return imp
}

func (c *converter) forStmt(n *sitter.Node) *pyast.For {
	f := &pyast.For{
		Loc:    c.span(n),
		Target: c.convert(n.ChildByFieldName("left"), pyast.Store),
		Iter:   c.optional(n.ChildByFieldName("right"), pyast.Load),
		Body:   c.block(n.ChildByFieldName("body")),
		Async:  startsWithKeyword(n, "async"),
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		for _, k := range namedChildren(alt) {
			if k.Type() == "block" {
				f.Else = append(f.Else, c.block(k)...)
			}
		}
	}
	return f
}

func (c *converter) exceptClause(n *sitter.Node) pyast.Node {
	g := &pyast.Group{Loc: c.span(n), Kind: n.Type()}
	alias := n.ChildByFieldName("alias")
	var exprs int
	for _, k := range namedChildren(n) {
		switch {
		case k.Type() == "block":
			g.Children = append(g.Children, c.convert(k, pyast.Load))
		case sameNode(k, alias):
			g.Children = append(g.Children, c.convert(k, pyast.Store))
		case alias == nil && exprs == 1 && k.Type() == "identifier":
			// except E, e
			g.Children = append(g.Children, c.convert(k, pyast.Store))
		default:
			exprs++
			g.Children = append(g.Children, c.convert(k, pyast.Load))
		}
	}
	return g
}

func (c *converter) call(n *sitter.Node) *pyast.Call {
	call := &pyast.Call{Loc: c.span(n), Func: c.convert(n.ChildByFieldName("function"), pyast.Load)}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call
	}
	if args.Type() == "generator_expression" {
		call.Args = []pyast.Node{c.convert(args, pyast.Load)}
		return call
	}
	call.Args, call.Keywords = c.arguments(args)
	return call
}

func (c *converter) arguments(n *sitter.Node) ([]pyast.Node, []*pyast.Keyword) {
	var args []pyast.Node
	var kws []*pyast.Keyword
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "keyword_argument":
			kws = append(kws, c.keyword(k))
		case "dictionary_splat":
			kw := &pyast.Keyword{Loc: c.span(k)}
			if kids := namedChildren(k); len(kids) > 0 {
				kw.Value = c.convert(kids[0], pyast.Load)
			}
			kws = append(kws, kw)
		default:
			args = append(args, c.convert(k, pyast.Load))
		}
	}
	return args, kws
}

func (c *converter) keyword(n *sitter.Node) *pyast.Keyword {
	kw := &pyast.Keyword{Loc: c.span(n), Value: c.optional(n.ChildByFieldName("value"), pyast.Load)}
	if name := n.ChildByFieldName("name"); name != nil {
		id := c.ident(name)
		kw.Name = &id
	}
	return kw
}

func (c *converter) comprehension(n *sitter.Node, kind pyast.CompKind) *pyast.Comp {
	comp := &pyast.Comp{Loc: c.span(n), Kind: kind}
	body := n.ChildByFieldName("body")
	if body != nil {
		if kind == pyast.DictComp && body.Type() == "pair" {
			comp.Elt = c.optional(body.ChildByFieldName("key"), pyast.Load)
			comp.Value = c.optional(body.ChildByFieldName("value"), pyast.Load)
		} else {
			comp.Elt = c.convert(body, pyast.Load)
		}
	}
	var last *pyast.CompFor
	for _, k := range namedChildren(n) {
		if sameNode(k, body) {
			continue
		}
		switch k.Type() {
		case "for_in_clause":
			last = &pyast.CompFor{
				Loc:    c.span(k),
				Target: c.convert(k.ChildByFieldName("left"), pyast.Store),
				Iter:   c.optional(k.ChildByFieldName("right"), pyast.Load),
				Async:  startsWithKeyword(k, "async"),
			}
			comp.Generators = append(comp.Generators, last)
		case "if_clause":
			if last == nil {
				continue
			}
			last.Ifs = append(last.Ifs, c.list(namedChildren(k), pyast.Load)...)
		}
	}
	return comp
}

func (c *converter) str(n *sitter.Node) *pyast.Str {
	raw := n.Content(c.src)
	i := 0
	for i < len(raw) && strings.IndexByte("rRbBuUfFtT", raw[i]) >= 0 {
		i++
	}
	s := &pyast.Str{Loc: c.span(n), Prefix: raw[:i]}
	rest := raw[i:]
	switch {
	case strings.HasPrefix(rest, `"""`), strings.HasPrefix(rest, `'''`):
		s.Quote = rest[:3]
	case rest != "":
		s.Quote = rest[:1]
	}
	for _, k := range namedChildren(n) {
		if k.Type() == "interpolation" {
			s.Parts = append(s.Parts, c.interpolation(k)...)
		}
	}
	if len(rest) < 2*len(s.Quote) || s.Quote == "" {
		return s
	}
	content := rest[len(s.Quote) : len(rest)-len(s.Quote)]
	lower := strings.ToLower(s.Prefix)
	if len(s.Parts) == 0 && !strings.ContainsAny(lower, "bft") && !strings.Contains(content, `\`) {
		s.Simple = true
		s.Value = content
	}
	return s
}

func (c *converter) interpolation(n *sitter.Node) []pyast.Node {
	var parts []pyast.Node
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "type_conversion":
		case "format_specifier":
			for _, f := range namedChildren(k) {
				if f.Type() == "format_expression" || f.Type() == "interpolation" {
					parts = append(parts, c.interpolation(f)...)
				}
			}
		default:
			parts = append(parts, c.convert(k, pyast.Load))
		}
	}
	return parts
}
