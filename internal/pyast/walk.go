package pyast

import "fmt"

// Children returns the direct children of n in source order. Absent
// optional children are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *Module:
		add(n.Body...)
	case *FunctionDef:
		add(n.Decorators...)
		add(n.TypeParams...)
		for _, p := range n.Params {
			add(p)
		}
		add(n.Returns)
		add(n.Body...)
	case *ClassDef:
		add(n.Decorators...)
		add(n.TypeParams...)
		add(n.Bases...)
		add(n.Body...)
	case *Param:
		add(n.Annotation, n.Default)
	case *Lambda:
		for _, p := range n.Params {
			add(p)
		}
		add(n.Body)
	case *Import:
		for _, a := range n.Names {
			add(a)
		}
	case *ImportFrom:
		for _, a := range n.Names {
			add(a)
		}
	case *Alias, *Name:
	case *Assign:
		add(n.Targets...)
		add(n.Value)
	case *AnnAssign:
		add(n.Target, n.Annotation, n.Value)
	case *AugAssign:
		add(n.Target, n.Value)
	case *For:
		add(n.Target, n.Iter)
		add(n.Body...)
		add(n.Else...)
	case *Comp:
		add(n.Elt, n.Value)
		for _, g := range n.Generators {
			add(g)
		}
	case *CompFor:
		add(n.Target, n.Iter)
		add(n.Ifs...)
	case *Call:
		add(n.Func)
		add(n.Args...)
		for _, k := range n.Keywords {
			add(k)
		}
	case *Keyword:
		add(n.Value)
	case *Attribute:
		add(n.Value)
	case *Subscript:
		add(n.Value)
		add(n.Index...)
	case *Str:
		add(n.Parts...)
	case *Group:
		add(n.Children...)
	default:
		panic(fmt.Sprintf("pyast: unknown node type %T", n))
	}
	return out
}

// Inspect traverses the tree rooted at n in depth-first pre-order, calling
// f for each node. If f returns false the node's children are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Clone returns a deep copy of n. The module source buffer is shared.
func Clone[T Node](n T) T {
	return cloneNode(n).(T)
}

func cloneNode(n Node) Node {
	if n == nil {
		return nil
	}
	switch n := n.(type) {
	case *Module:
		c := *n
		c.Body = cloneList(n.Body)
		return &c
	case *FunctionDef:
		c := *n
		c.Decorators = cloneList(n.Decorators)
		c.TypeParams = cloneList(n.TypeParams)
		c.Params = cloneParams(n.Params)
		c.Returns = cloneNode(n.Returns)
		c.Body = cloneList(n.Body)
		return &c
	case *ClassDef:
		c := *n
		c.Decorators = cloneList(n.Decorators)
		c.TypeParams = cloneList(n.TypeParams)
		c.Bases = cloneList(n.Bases)
		c.Body = cloneList(n.Body)
		return &c
	case *Param:
		return cloneParam(n)
	case *Lambda:
		c := *n
		c.Params = cloneParams(n.Params)
		c.Body = cloneNode(n.Body)
		return &c
	case *Import:
		c := *n
		c.Names = cloneAliases(n.Names)
		return &c
	case *ImportFrom:
		c := *n
		c.Names = cloneAliases(n.Names)
		return &c
	case *Alias:
		return cloneAlias(n)
	case *Assign:
		c := *n
		c.Targets = cloneList(n.Targets)
		c.Value = cloneNode(n.Value)
		return &c
	case *AnnAssign:
		c := *n
		c.Target = cloneNode(n.Target)
		c.Annotation = cloneNode(n.Annotation)
		c.Value = cloneNode(n.Value)
		return &c
	case *AugAssign:
		c := *n
		c.Target = cloneNode(n.Target)
		c.Value = cloneNode(n.Value)
		return &c
	case *For:
		c := *n
		c.Target = cloneNode(n.Target)
		c.Iter = cloneNode(n.Iter)
		c.Body = cloneList(n.Body)
		c.Else = cloneList(n.Else)
		return &c
	case *Comp:
		c := *n
		c.Elt = cloneNode(n.Elt)
		c.Value = cloneNode(n.Value)
		c.Generators = make([]*CompFor, len(n.Generators))
		for i, g := range n.Generators {
			c.Generators[i] = cloneNode(g).(*CompFor)
		}
		return &c
	case *CompFor:
		c := *n
		c.Target = cloneNode(n.Target)
		c.Iter = cloneNode(n.Iter)
		c.Ifs = cloneList(n.Ifs)
		return &c
	case *Call:
		c := *n
		c.Func = cloneNode(n.Func)
		c.Args = cloneList(n.Args)
		c.Keywords = make([]*Keyword, len(n.Keywords))
		for i, k := range n.Keywords {
			c.Keywords[i] = cloneNode(k).(*Keyword)
		}
		return &c
	case *Keyword:
		c := *n
		if n.Name != nil {
			name := *n.Name
			c.Name = &name
		}
		c.Value = cloneNode(n.Value)
		return &c
	case *Attribute:
		c := *n
		c.Value = cloneNode(n.Value)
		return &c
	case *Subscript:
		c := *n
		c.Value = cloneNode(n.Value)
		c.Index = cloneList(n.Index)
		return &c
	case *Name:
		c := *n
		return &c
	case *Str:
		c := *n
		c.Parts = cloneList(n.Parts)
		return &c
	case *Group:
		c := *n
		c.Children = cloneList(n.Children)
		return &c
	default:
		panic(fmt.Sprintf("pyast: unknown node type %T", n))
	}
}

func cloneList(ns []Node) []Node {
	if ns == nil {
		return nil
	}
	out := make([]Node, len(ns))
	for i, n := range ns {
		out[i] = cloneNode(n)
	}
	return out
}

func cloneParam(p *Param) *Param {
	c := *p
	c.Annotation = cloneNode(p.Annotation)
	c.Default = cloneNode(p.Default)
	return &c
}

func cloneParams(ps []*Param) []*Param {
	if ps == nil {
		return nil
	}
	out := make([]*Param, len(ps))
	for i, p := range ps {
		out[i] = cloneParam(p)
	}
	return out
}

func cloneAlias(a *Alias) *Alias {
	c := *a
	if a.AsName != nil {
		as := *a.AsName
		c.AsName = &as
	}
	return &c
}

func cloneAliases(as []*Alias) []*Alias {
	out := make([]*Alias, len(as))
	for i, a := range as {
		out[i] = cloneAlias(a)
	}
	return out
}
