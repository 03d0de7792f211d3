package obfuscation

import (
	"errors"
	"strings"

	"github.com/zskulcsar/code-duplication-scanner/internal/pyast"
	"github.com/zskulcsar/code-duplication-scanner/internal/pylang"
)

// RewriteResult is a rewritten tree and the counters of what changed.
type RewriteResult struct {
	Tree *pyast.Module
	// SymbolsRenamed counts every identifier, import alias, keyword and
	// string literal replaced.
	SymbolsRenamed int
	// LikelyLocalRewrites counts rewrites whose ownership was only
	// LikelyLocal, plus calls whose keyword names were renamed.
	LikelyLocalRewrites int
	// DynamicNameRewrites counts getattr, setattr and hasattr string
	// literals replaced.
	DynamicNameRewrites int
}

// Rewrite applies rm to a deep copy of mod. Declarations, references and
// import bindings are renamed whenever they are mapped; attribute names,
// call keywords and dynamic-attribute strings only when the object they
// belong to is not external. mod itself is left untouched.
func Rewrite(mod *pyast.Module, rm *RenameMap, idx *ProjectIndex) (*RewriteResult, error) {
	if mod == nil {
		return nil, errors.New("obfuscation: rewrite of nil module")
	}
	if rm == nil || idx == nil {
		return nil, errors.New("obfuscation: rewrite needs a rename map and an index")
	}
	tree := pyast.Clone(mod)
	r := &rewriter{
		rm:              rm,
		idx:             idx,
		importAliases:   map[string]string{},
		projectAliases:  map[string]struct{}{},
		projectModules:  map[string]struct{}{},
		externalAliases: map[string]struct{}{},
		pinned:          map[string]struct{}{},
	}
	r.planImportAliases(tree)
	r.scopes.push()
	r.visitAll(tree.Body)
	return &RewriteResult{
		Tree:                tree,
		SymbolsRenamed:      r.renamed,
		LikelyLocalRewrites: r.likelyLocal,
		DynamicNameRewrites: r.dynamic,
	}, nil
}

type rewriter struct {
	rm  *RenameMap
	idx *ProjectIndex

	scopes scopes

	// importAliases maps a plainly imported module to its generated alias.
	importAliases   map[string]string
	projectAliases  map[string]struct{}
	externalAliases map[string]struct{}
	// projectModules are the names submodules are bound to by from-imports.
	projectModules map[string]struct{}
	// pinned names are bound by dotted plain imports and must keep their
	// spelling.
	pinned map[string]struct{}

	renamed     int
	likelyLocal int
	dynamic     int
}

// planImportAliases assigns an alias to every unaliased, undotted plain
// import in the file before the walk, so uses that precede the import
// statement are rewritten as well.
func (r *rewriter) planImportAliases(mod *pyast.Module) {
	used := map[string]struct{}{}
	var imports []*pyast.Alias
	pyast.Inspect(mod, func(n pyast.Node) bool {
		switch n := n.(type) {
		case *pyast.Name:
			used[n.Id] = struct{}{}
		case *pyast.FunctionDef:
			used[n.Name.Name] = struct{}{}
		case *pyast.ClassDef:
			used[n.Name.Name] = struct{}{}
		case *pyast.Param:
			used[n.Name.Name] = struct{}{}
		case *pyast.Keyword:
			if n.Name != nil {
				used[n.Name.Name] = struct{}{}
			}
		case *pyast.Attribute:
			used[n.Attr.Name] = struct{}{}
		case *pyast.Import:
			for _, a := range n.Names {
				switch {
				case a.AsName != nil:
				case strings.Contains(a.Name.Name, "."):
					r.pinned[a.Exposed()] = struct{}{}
				default:
					imports = append(imports, a)
				}
			}
		case *pyast.Alias:
			for _, seg := range strings.Split(n.Name.Name, ".") {
				used[seg] = struct{}{}
			}
			if n.AsName != nil {
				used[n.AsName.Name] = struct{}{}
			}
		}
		return true
	})
	if len(imports) == 0 {
		return
	}

	seq := &pylang.Sequence{Persistent: true, Blocked: func(name string) bool {
		if _, ok := used[name]; ok {
			return true
		}
		return r.idx.RenameCandidates.Has(name) ||
			r.rm.HasKey(name) || r.rm.HasValue(name) ||
			r.idx.ExternalSymbols.Has(name) ||
			r.idx.Preserved.Has(name) ||
			pylang.IsReserved(name)
	}}
	for _, a := range imports {
		module := a.Name.Name
		if _, ok := r.importAliases[module]; ok {
			continue
		}
		alias := seq.Next()
		r.importAliases[module] = alias
		if r.idx.ExternalSymbols.Has(module) {
			r.externalAliases[alias] = struct{}{}
		} else {
			r.projectAliases[alias] = struct{}{}
		}
	}
}

// lookup returns the replacement for name when it differs from name.
func (r *rewriter) lookup(name string) (string, bool) {
	gen, ok := r.rm.Lookup(name)
	if !ok || gen == name {
		return "", false
	}
	return gen, true
}

func (r *rewriter) rename(id *pyast.Ident) bool {
	gen, ok := r.lookup(id.Name)
	if !ok {
		return false
	}
	id.Name = gen
	r.renamed++
	return true
}

// record binds ownership to name and to its mapped and original spellings
// in the innermost scope.
func (r *rewriter) record(name string, o Ownership) {
	if o == OwnershipUnknown {
		return
	}
	gen, _ := r.rm.Lookup(name)
	orig, _ := r.rm.Original(name)
	r.scopes.set(o, name, gen, orig)
}

// bind records o for every name a binding target introduces.
func (r *rewriter) bind(target pyast.Node, o Ownership) {
	if o == OwnershipUnknown {
		return
	}
	switch t := target.(type) {
	case *pyast.Name:
		r.record(t.Id, o)
	case *pyast.Group:
		if targetGroups[t.Kind] {
			for _, c := range t.Children {
				r.bind(c, o)
			}
		}
	}
}

func (r *rewriter) visitAll(nodes []pyast.Node) {
	for _, n := range nodes {
		r.visit(n)
	}
}

func (r *rewriter) visitOpt(n pyast.Node) {
	if n != nil {
		r.visit(n)
	}
}

func (r *rewriter) visit(n pyast.Node) {
	switch n := n.(type) {
	case *pyast.Name:
		r.name(n)
	case *pyast.Import:
		r.importStmt(n)
	case *pyast.ImportFrom:
		r.importFrom(n)
	case *pyast.FunctionDef:
		r.functionDef(n)
	case *pyast.Lambda:
		r.lambda(n)
	case *pyast.ClassDef:
		r.visitAll(n.Decorators)
		r.visitAll(n.TypeParams)
		r.visitAll(n.Bases)
		r.scopes.push()
		r.visitAll(n.Body)
		r.scopes.pop()
		r.rename(&n.Name)
	case *pyast.Assign:
		r.visitAll(n.Targets)
		r.visit(n.Value)
		o := r.resolve(n.Value)
		for _, t := range n.Targets {
			r.bind(t, o)
		}
	case *pyast.AnnAssign:
		r.visit(n.Target)
		r.visitOpt(n.Annotation)
		r.visitOpt(n.Value)
		o := OwnershipUnknown
		if n.Value != nil {
			o = r.resolve(n.Value)
		}
		if o == OwnershipUnknown {
			o = r.annotationOwnership(n.Annotation)
		}
		if name, ok := n.Target.(*pyast.Name); ok {
			r.record(name.Id, o)
		}
	case *pyast.For:
		r.bind(n.Target, r.resolve(n.Iter))
		r.visitAll(pyast.Children(n))
	case *pyast.Comp:
		for _, g := range n.Generators {
			r.bind(g.Target, r.resolve(g.Iter))
		}
		r.visitAll(pyast.Children(n))
	case *pyast.Attribute:
		r.attribute(n)
	case *pyast.Call:
		r.call(n)
	case *pyast.Keyword:
		r.visitOpt(n.Value)
	default:
		r.visitAll(pyast.Children(n))
	}
}

func (r *rewriter) name(n *pyast.Name) {
	if alias, ok := r.importAliases[n.Id]; ok {
		n.Id = alias
		r.renamed++
		return
	}
	if r.idx.ExternalSymbols.Has(n.Id) {
		return
	}
	if _, ok := r.pinned[n.Id]; ok {
		return
	}
	if gen, ok := r.lookup(n.Id); ok {
		n.Id = gen
		r.renamed++
	}
}

func (r *rewriter) importStmt(n *pyast.Import) {
	for _, a := range n.Names {
		if a.AsName == nil {
			if alias, ok := r.importAliases[a.Name.Name]; ok {
				a.AsName = &pyast.Ident{Name: alias}
				r.renamed++
			}
			continue
		}
		if !r.idx.ExternalSymbols.Has(a.AsName.Name) {
			r.rename(a.AsName)
		}
	}
}

func (r *rewriter) importFrom(n *pyast.ImportFrom) {
	for _, a := range n.Names {
		if r.idx.ExternalSymbols.Has(a.Exposed()) {
			continue
		}
		isModule := r.idx.ModuleNames.Has(a.Name.Name)
		r.importFromAlias(a, isModule)
		if isModule {
			r.projectModules[a.Exposed()] = struct{}{}
		}
	}
}

// importFromAlias renames one imported name. A submodule keeps its name and
// is bound under the generated one with an alias instead.
func (r *rewriter) importFromAlias(a *pyast.Alias, isModule bool) {
	if a.AsName == nil {
		gen, ok := r.lookup(a.Name.Name)
		if !ok {
			return
		}
		if isModule {
			a.AsName = &pyast.Ident{Name: gen}
		} else {
			a.Name.Name = gen
		}
		r.renamed++
		return
	}
	if !isModule {
		r.rename(&a.Name)
	}
	r.rename(a.AsName)
}

type paramSeed struct {
	name string
	own  Ownership
}

// paramSeeds derives each parameter's ownership from its name and its
// annotation as written, before anything in the signature is renamed.
func (r *rewriter) paramSeeds(params []*pyast.Param) []paramSeed {
	seeds := make([]paramSeed, 0, len(params))
	for _, p := range params {
		var o Ownership
		switch {
		case p.Name.Name == "self" || p.Name.Name == "cls":
			o = OwnershipProject
		case p.Annotation == nil:
			o = OwnershipLikelyLocal
		default:
			o = r.annotationOwnership(p.Annotation)
		}
		seeds = append(seeds, paramSeed{name: p.Name.Name, own: o})
	}
	return seeds
}

// signature visits annotations and defaults, which evaluate in the
// enclosing scope.
func (r *rewriter) signature(params []*pyast.Param) {
	for _, p := range params {
		r.visitOpt(p.Annotation)
		r.visitOpt(p.Default)
	}
}

func (r *rewriter) enterParams(params []*pyast.Param, seeds []paramSeed) {
	r.scopes.push()
	for _, s := range seeds {
		r.record(s.name, s.own)
	}
	for _, p := range params {
		r.rename(&p.Name)
	}
}

func (r *rewriter) functionDef(n *pyast.FunctionDef) {
	seeds := r.paramSeeds(n.Params)
	r.visitAll(n.Decorators)
	r.visitAll(n.TypeParams)
	r.signature(n.Params)
	r.visitOpt(n.Returns)

	r.enterParams(n.Params, seeds)
	r.visitAll(n.Body)
	r.scopes.pop()

	r.rename(&n.Name)
}

func (r *rewriter) lambda(n *pyast.Lambda) {
	seeds := r.paramSeeds(n.Params)
	r.signature(n.Params)
	r.enterParams(n.Params, seeds)
	r.visitOpt(n.Body)
	r.scopes.pop()
}

func (r *rewriter) attribute(n *pyast.Attribute) {
	r.visit(n.Value)
	if base, ok := n.Value.(*pyast.Name); ok && r.isProjectModule(base.Id) {
		// Module members are renamed where they are defined.
		r.rename(&n.Attr)
		return
	}
	attr := n.Attr.Name
	if !r.idx.Attributes.Has(attr) && !r.idx.ClassNames.Has(attr) {
		return
	}
	gen, ok := r.lookup(attr)
	if !ok {
		return
	}
	switch r.gate(n.Value) {
	case OwnershipExternal:
		return
	case OwnershipLikelyLocal:
		r.likelyLocal++
	}
	n.Attr.Name = gen
	r.renamed++
}

func (r *rewriter) call(n *pyast.Call) {
	r.visitAll(pyast.Children(n))

	if r.keywordsFollowCallee(n.Func) {
		changed := false
		for _, k := range n.Keywords {
			if k.Name != nil && r.rename(k.Name) {
				changed = true
			}
		}
		if changed {
			r.likelyLocal++
		}
	}

	fn, ok := n.Func.(*pyast.Name)
	if !ok || !dynamicCalls[fn.Id] || len(n.Args) < 2 {
		return
	}
	lit, ok := n.Args[1].(*pyast.Str)
	if !ok || !lit.Simple || !r.idx.Attributes.Has(lit.Value) {
		return
	}
	gen, ok := r.lookup(lit.Value)
	if !ok {
		return
	}
	switch r.gate(n.Args[0]) {
	case OwnershipExternal:
		return
	case OwnershipLikelyLocal:
		r.likelyLocal++
	}
	lit.Value = gen
	r.dynamic++
	r.renamed++
}

// keywordsFollowCallee reports whether the callee is a project function,
// class or method, whose parameters were renamed with the map.
func (r *rewriter) keywordsFollowCallee(fn pyast.Node) bool {
	switch fn := fn.(type) {
	case *pyast.Name:
		if r.isForeign(fn.Id) {
			return false
		}
		return r.isClass(fn.Id) || r.inMap(fn.Id)
	case *pyast.Attribute:
		if base, ok := fn.Value.(*pyast.Name); ok && r.isProjectModule(base.Id) {
			return r.inMap(fn.Attr.Name)
		}
		if !r.isAttribute(fn.Attr.Name) && !r.isClass(fn.Attr.Name) {
			return false
		}
		return r.gate(fn.Value) != OwnershipExternal
	}
	return false
}
