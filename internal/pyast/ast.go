// Package pyast is a closed-variant syntax tree for Python modules.
//
// The tree keeps the distinctions the obfuscator needs (declarations,
// imports, bindings, calls, attribute access, string literals) as dedicated
// node types and folds everything else into [Group]. Every node records the
// byte span it was parsed from, so [Print] can write a rewritten tree back
// out by splicing changed identifiers into the original source.
package pyast

// Span is a half-open byte range [Start, End) into Module.Source.
type Span struct {
	Start uint32
	End   uint32
}

// IsZero reports whether s carries no source position.
func (s Span) IsZero() bool { return s.Start == 0 && s.End == 0 }

// Ident is an identifier token with its source span. An Ident with a zero
// span was synthesized by a rewrite and has no original text.
type Ident struct {
	Name string
	Loc  Span
}

// Node is implemented by every tree node type in this package.
type Node interface {
	Pos() Span
	node()
}

// Ctx is the expression context of a Name.
type Ctx uint8

const (
	Load Ctx = iota
	Store
	Del
)

func (c Ctx) String() string {
	switch c {
	case Store:
		return "store"
	case Del:
		return "del"
	default:
		return "load"
	}
}

// ParamKind distinguishes plain, *args, and **kwargs parameters.
type ParamKind uint8

const (
	ParamPlain ParamKind = iota
	ParamVarArgs
	ParamKwArgs
)

// CompKind is the kind of comprehension.
type CompKind uint8

const (
	ListComp CompKind = iota
	SetComp
	DictComp
	GeneratorExp
)

// Module is the root of a parsed file.
type Module struct {
	Loc    Span
	Source []byte
	Body   []Node
}

// FunctionDef is a def or async def statement.
type FunctionDef struct {
	Loc        Span
	Name       Ident
	Decorators []Node
	TypeParams []Node
	Params     []*Param
	Returns    Node
	Body       []Node
	Async      bool
}

// ClassDef is a class statement. Bases holds positional bases and keyword
// arguments such as metaclass=.
type ClassDef struct {
	Loc        Span
	Name       Ident
	Decorators []Node
	TypeParams []Node
	Bases      []Node
	Body       []Node
}

// Param is one function or lambda parameter.
type Param struct {
	Loc        Span
	Name       Ident
	Kind       ParamKind
	Annotation Node
	Default    Node
}

// Lambda is a lambda expression.
type Lambda struct {
	Loc    Span
	Params []*Param
	Body   Node
}

// Import is `import a.b, c as d`.
type Import struct {
	Loc   Span
	Names []*Alias
}

// ImportFrom is `from <dots><module> import ...`. Level counts the leading
// dots; Module is empty for `from . import x`.
type ImportFrom struct {
	Loc      Span
	Module   string
	Level    int
	Names    []*Alias
	Wildcard bool
}

// Alias is one imported name. Name may be dotted for plain imports. AsName
// is nil when the import has no `as` clause; a rewrite may attach one with a
// zero span, which the printer emits as an inserted ` as <name>`.
type Alias struct {
	Loc    Span
	Name   Ident
	AsName *Ident
}

// Exposed returns the name the import binds in the importing scope.
func (a *Alias) Exposed() string {
	if a.AsName != nil {
		return a.AsName.Name
	}
	name := a.Name.Name
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// Assign is `t1 = t2 = value`.
type Assign struct {
	Loc     Span
	Targets []Node
	Value   Node
}

// AnnAssign is `target: annotation [= value]`.
type AnnAssign struct {
	Loc        Span
	Target     Node
	Annotation Node
	Value      Node
}

// AugAssign is `target op= value`.
type AugAssign struct {
	Loc    Span
	Target Node
	Op     string
	Value  Node
}

// For is a for or async for statement.
type For struct {
	Loc    Span
	Target Node
	Iter   Node
	Body   []Node
	Else   []Node
	Async  bool
}

// Comp is a list, set, dict comprehension or generator expression. Value is
// only set for dict comprehensions, where Elt is the key.
type Comp struct {
	Loc        Span
	Kind       CompKind
	Elt        Node
	Value      Node
	Generators []*CompFor
}

// CompFor is one `for target in iter if cond...` clause.
type CompFor struct {
	Loc    Span
	Target Node
	Iter   Node
	Ifs    []Node
	Async  bool
}

// Call is a call expression. Positional and starred arguments go to Args.
type Call struct {
	Loc      Span
	Func     Node
	Args     []Node
	Keywords []*Keyword
}

// Keyword is `name=value` in a call, or `**value` when Name is nil.
type Keyword struct {
	Loc   Span
	Name  *Ident
	Value Node
}

// Attribute is `value.attr`.
type Attribute struct {
	Loc   Span
	Value Node
	Attr  Ident
}

// Subscript is `value[index...]`.
type Subscript struct {
	Loc   Span
	Value Node
	Index []Node
}

// Name is an identifier reference or binding.
type Name struct {
	Loc Span
	Id  string
	Ctx Ctx
}

// Str is a string literal. Simple literals have no interpolation, no escape
// sequences, and no bytes prefix; their Value is the literal text between
// the quotes. Parts holds the expressions interpolated into an f-string.
type Str struct {
	Loc    Span
	Prefix string
	Quote  string
	Value  string
	Simple bool
	Parts  []Node
}

// Group is any construct without a dedicated type: compound statements,
// operators, literals, containers. Children are in source order.
type Group struct {
	Loc      Span
	Kind     string
	Children []Node
}

func (n *Module) Pos() Span      { return n.Loc }
func (n *FunctionDef) Pos() Span { return n.Loc }
func (n *ClassDef) Pos() Span    { return n.Loc }
func (n *Param) Pos() Span       { return n.Loc }
func (n *Lambda) Pos() Span      { return n.Loc }
func (n *Import) Pos() Span      { return n.Loc }
func (n *ImportFrom) Pos() Span  { return n.Loc }
func (n *Alias) Pos() Span       { return n.Loc }
func (n *Assign) Pos() Span      { return n.Loc }
func (n *AnnAssign) Pos() Span   { return n.Loc }
func (n *AugAssign) Pos() Span   { return n.Loc }
func (n *For) Pos() Span         { return n.Loc }
func (n *Comp) Pos() Span        { return n.Loc }
func (n *CompFor) Pos() Span     { return n.Loc }
func (n *Call) Pos() Span        { return n.Loc }
func (n *Keyword) Pos() Span     { return n.Loc }
func (n *Attribute) Pos() Span   { return n.Loc }
func (n *Subscript) Pos() Span   { return n.Loc }
func (n *Name) Pos() Span        { return n.Loc }
func (n *Str) Pos() Span         { return n.Loc }
func (n *Group) Pos() Span       { return n.Loc }

func (*Module) node()      {}
func (*FunctionDef) node() {}
func (*ClassDef) node()    {}
func (*Param) node()       {}
func (*Lambda) node()      {}
func (*Import) node()      {}
func (*ImportFrom) node()  {}
func (*Alias) node()       {}
func (*Assign) node()      {}
func (*AnnAssign) node()   {}
func (*AugAssign) node()   {}
func (*For) node()         {}
func (*Comp) node()        {}
func (*CompFor) node()     {}
func (*Call) node()        {}
func (*Keyword) node()     {}
func (*Attribute) node()   {}
func (*Subscript) node()   {}
func (*Name) node()        {}
func (*Str) node()         {}
func (*Group) node()       {}
