package obfuscation

import (
	"strings"

	"github.com/zskulcsar/code-duplication-scanner/internal/pyast"
	"github.com/zskulcsar/code-duplication-scanner/internal/pylang"
)

// dynamicCalls are the builtins whose second argument names an attribute.
var dynamicCalls = map[string]bool{
	"getattr": true,
	"setattr": true,
	"hasattr": true,
}

// targetGroups are the Group kinds that unpack into several binding targets.
var targetGroups = map[string]bool{
	"pattern_list":             true,
	"tuple_pattern":            true,
	"list_pattern":             true,
	"tuple":                    true,
	"list":                     true,
	"expression_list":          true,
	"parenthesized_expression": true,
	"list_splat_pattern":       true,
	"list_splat":               true,
}

type frameKind uint8

const (
	frameModule frameKind = iota
	frameClass
	frameFunction
)

type frame struct {
	kind     frameKind
	receiver string
}

// dynamicAccess is a getattr-style call seen during collection. It is
// resolved against the project-wide index once every file is collected.
type dynamicAccess struct {
	attr   string
	object string
}

// collector gathers one file's contribution to the ProjectIndex.
type collector struct {
	roots map[string]struct{}

	candidates map[string]struct{}
	externals  map[string]struct{}
	classes    map[string]struct{}
	attrs      map[string]struct{}
	dynamic    []dynamicAccess

	frames []frame
}

func newCollector(roots map[string]struct{}) *collector {
	return &collector{
		roots:      roots,
		candidates: map[string]struct{}{},
		externals:  map[string]struct{}{},
		classes:    map[string]struct{}{},
		attrs:      map[string]struct{}{},
	}
}

func (c *collector) module(m *pyast.Module) {
	c.frames = []frame{{kind: frameModule}}
	c.visitAll(m.Body)
}

func (c *collector) addCandidate(name string) {
	if pylang.IsRenameable(name) {
		c.candidates[name] = struct{}{}
	}
}

func (c *collector) addAttribute(name string) {
	if pylang.IsRenameable(name) {
		c.attrs[name] = struct{}{}
	}
}

func (c *collector) top() frame { return c.frames[len(c.frames)-1] }

func (c *collector) push(f frame) { c.frames = append(c.frames, f) }

func (c *collector) pop() { c.frames = c.frames[:len(c.frames)-1] }

// receiver returns the self-reference of the innermost enclosing method, or
// "" outside any method.
func (c *collector) receiver() string {
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if f.kind == frameClass {
			return ""
		}
		if f.kind == frameFunction && f.receiver != "" {
			return f.receiver
		}
	}
	return ""
}

func (c *collector) isLocalModule(module string) bool {
	root, _, _ := strings.Cut(module, ".")
	_, ok := c.roots[root]
	return ok
}

func (c *collector) visitAll(nodes []pyast.Node) {
	for _, n := range nodes {
		c.visit(n)
	}
}

func (c *collector) visit(n pyast.Node) {
	switch n := n.(type) {
	case *pyast.Import:
		for _, a := range n.Names {
			if !c.isLocalModule(a.Name.Name) {
				c.externals[a.Exposed()] = struct{}{}
			}
		}

	case *pyast.ImportFrom:
		local := n.Level > 0 || c.isLocalModule(n.Module)
		for _, a := range n.Names {
			if local {
				c.addCandidate(a.Exposed())
			} else {
				c.externals[a.Exposed()] = struct{}{}
			}
		}

	case *pyast.ClassDef:
		c.classes[n.Name.Name] = struct{}{}
		c.addCandidate(n.Name.Name)
		c.visitAll(n.Decorators)
		c.visitAll(n.TypeParams)
		c.visitAll(n.Bases)
		c.push(frame{kind: frameClass})
		c.visitAll(n.Body)
		c.pop()

	case *pyast.FunctionDef:
		c.addCandidate(n.Name.Name)
		inClass := c.top().kind == frameClass
		if inClass && !pylang.IsDunder(n.Name.Name) {
			c.addAttribute(n.Name.Name)
		}
		c.visitAll(n.Decorators)
		c.visitAll(n.TypeParams)
		c.params(n.Params)
		if n.Returns != nil {
			c.visit(n.Returns)
		}
		f := frame{kind: frameFunction}
		if inClass && len(n.Params) > 0 && n.Params[0].Kind == pyast.ParamPlain {
			f.receiver = n.Params[0].Name.Name
		}
		c.push(f)
		c.visitAll(n.Body)
		c.pop()

	case *pyast.Lambda:
		c.params(n.Params)
		c.push(frame{kind: frameFunction})
		if n.Body != nil {
			c.visit(n.Body)
		}
		c.pop()

	case *pyast.Name:
		if n.Ctx == pyast.Store {
			c.addCandidate(n.Id)
		}

	case *pyast.Assign:
		for _, t := range n.Targets {
			c.attributeTarget(t)
		}
		c.visitAll(pyast.Children(n))

	case *pyast.AnnAssign:
		c.attributeTarget(n.Target)
		c.visitAll(pyast.Children(n))

	case *pyast.Call:
		c.observeDynamic(n)
		c.visitAll(pyast.Children(n))

	default:
		c.visitAll(pyast.Children(n))
	}
}

func (c *collector) params(params []*pyast.Param) {
	for _, p := range params {
		c.addCandidate(p.Name.Name)
		if p.Annotation != nil {
			c.visit(p.Annotation)
		}
		if p.Default != nil {
			c.visit(p.Default)
		}
	}
}

// attributeTarget records the attribute names an assignment target declares
// on a project class.
func (c *collector) attributeTarget(t pyast.Node) {
	switch t := t.(type) {
	case *pyast.Attribute:
		obj, ok := t.Value.(*pyast.Name)
		if !ok || pylang.IsDunder(t.Attr.Name) {
			return
		}
		if obj.Id == "self" || (obj.Id != "" && obj.Id == c.receiver()) {
			c.addAttribute(t.Attr.Name)
		}
	case *pyast.Name:
		if c.top().kind == frameClass && !pylang.IsDunder(t.Id) {
			c.addAttribute(t.Id)
		}
	case *pyast.Group:
		if targetGroups[t.Kind] {
			for _, child := range t.Children {
				c.attributeTarget(child)
			}
		}
	}
}

func (c *collector) observeDynamic(call *pyast.Call) {
	fn, ok := call.Func.(*pyast.Name)
	if !ok || !dynamicCalls[fn.Id] || len(call.Args) < 2 {
		return
	}
	obj, ok := call.Args[0].(*pyast.Name)
	if !ok || obj.Id == "self" || obj.Id == c.receiver() {
		return
	}
	lit, ok := call.Args[1].(*pyast.Str)
	if !ok || !lit.Simple {
		return
	}
	c.dynamic = append(c.dynamic, dynamicAccess{attr: lit.Value, object: obj.Id})
}
