package obfuscation

import "github.com/zskulcsar/code-duplication-scanner/internal/pyast"

// passThrough builtins return an object built from the elements of their
// first argument.
var passThrough = map[string]bool{
	"enumerate": true,
	"sorted":    true,
	"list":      true,
	"tuple":     true,
	"set":       true,
	"reversed":  true,
}

func (r *rewriter) isForeign(name string) bool {
	if r.idx.ExternalSymbols.Has(name) {
		return true
	}
	_, ok := r.externalAliases[name]
	return ok
}

// isClass reports whether name is a project class under its original or
// its generated spelling.
func (r *rewriter) isClass(name string) bool {
	if r.idx.ClassNames.Has(name) {
		return true
	}
	orig, ok := r.rm.Original(name)
	return ok && r.idx.ClassNames.Has(orig)
}

func (r *rewriter) isAttribute(name string) bool {
	if r.idx.Attributes.Has(name) {
		return true
	}
	orig, ok := r.rm.Original(name)
	return ok && r.idx.Attributes.Has(orig)
}

func (r *rewriter) inMap(name string) bool {
	return r.rm.HasKey(name) || r.rm.HasValue(name)
}

// resolve infers the ownership of the object e evaluates to. It returns
// OwnershipUnknown when no rule applies.
func (r *rewriter) resolve(e pyast.Node) Ownership {
	switch e := e.(type) {
	case *pyast.Name:
		return r.nameOwnership(e.Id)
	case *pyast.Call:
		return r.callOwnership(e)
	case *pyast.Attribute:
		base := r.gate(e.Value)
		if base == OwnershipExternal {
			return OwnershipExternal
		}
		if r.isAttribute(e.Attr.Name) || r.isClass(e.Attr.Name) {
			// One hop away from a known object.
			return OwnershipLikelyLocal
		}
	case *pyast.Subscript:
		return r.resolve(e.Value)
	case *pyast.Group:
		if e.Kind == "parenthesized_expression" && len(e.Children) == 1 {
			return r.resolve(e.Children[0])
		}
	}
	return OwnershipUnknown
}

func (r *rewriter) nameOwnership(name string) Ownership {
	if o, ok := r.scopes.lookup(name); ok {
		return o
	}
	orig, ok := r.rm.Original(name)
	if !ok {
		orig = name
	}
	switch {
	case r.rm.IsLikelyLocal(name) || r.rm.IsLikelyLocal(orig):
		return OwnershipLikelyLocal
	case r.isForeign(name):
		return OwnershipExternal
	}
	switch {
	case r.isProjectModule(name):
		return OwnershipProject
	case name == "self" || name == "cls" || orig == "self" || orig == "cls":
		return OwnershipProject
	case r.isClass(name):
		return OwnershipProject
	}
	return OwnershipUnknown
}

// isProjectModule reports whether name is bound to a project module in
// this file, by a normalized plain import or a from-import of a submodule.
func (r *rewriter) isProjectModule(name string) bool {
	if _, ok := r.projectAliases[name]; ok {
		return true
	}
	_, ok := r.projectModules[name]
	return ok
}

func (r *rewriter) callOwnership(c *pyast.Call) Ownership {
	switch fn := c.Func.(type) {
	case *pyast.Name:
		switch {
		case r.isForeign(fn.Id):
			return OwnershipExternal
		case passThrough[fn.Id]:
			if len(c.Args) == 0 {
				return OwnershipUnknown
			}
			return r.resolve(c.Args[0])
		case r.isClass(fn.Id):
			return OwnershipProject
		case r.inMap(fn.Id):
			return OwnershipLikelyLocal
		}
	case *pyast.Attribute:
		if r.gate(fn.Value) == OwnershipExternal {
			return OwnershipExternal
		}
		if r.isClass(fn.Attr.Name) {
			return OwnershipProject
		}
		if r.isAttribute(fn.Attr.Name) {
			return OwnershipLikelyLocal
		}
	}
	return OwnershipUnknown
}

// gate is the ownership used to decide whether an attribute of e may be
// renamed. Unresolved plain names count as external; unresolved compound
// expressions as likely local.
func (r *rewriter) gate(e pyast.Node) Ownership {
	if o := r.resolve(e); o != OwnershipUnknown {
		return o
	}
	if _, ok := e.(*pyast.Name); ok {
		return OwnershipExternal
	}
	return OwnershipLikelyLocal
}

// annotationOwnership reads ownership off a type annotation: any project
// class named in it makes it Project, any other name External.
func (r *rewriter) annotationOwnership(ann pyast.Node) Ownership {
	if ann == nil {
		return OwnershipUnknown
	}
	var named, project bool
	pyast.Inspect(ann, func(n pyast.Node) bool {
		if name, ok := n.(*pyast.Name); ok {
			named = true
			if r.isClass(name.Id) {
				project = true
			}
		}
		return true
	})
	switch {
	case project:
		return OwnershipProject
	case named:
		return OwnershipExternal
	}
	return OwnershipUnknown
}
