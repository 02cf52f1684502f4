package rules

// Expr is a parsed node of the rules-file expression language: a small,
// deliberately restricted subset of Nix (see SPEC_FULL.md §3 for the grammar).
type Expr interface {
	exprNode()
}

// StringLit is a string literal.
type StringLit struct{ Value string }

// NumberLit is an integer literal (only non-negative integers are needed by
// the builtins this language exposes, e.g. "randomString 32").
type NumberLit struct{ Value int64 }

// BoolLit is a boolean literal.
type BoolLit struct{ Value bool }

// NullLit is the null literal.
type NullLit struct{}

// Ident is a bare identifier reference.
type Ident struct{ Name string }

// ListLit is a list literal "[ e1 e2 ... ]".
type ListLit struct{ Elems []Expr }

// AttrBinding is one "name = expr;" pair inside an attribute set.
type AttrBinding struct {
	Name  string
	Value Expr
}

// AttrSet is an attribute-set literal "{ a = e; b = e; }".
type AttrSet struct{ Bindings []AttrBinding }

// Select is field projection "expr.name".
type Select struct {
	Target Expr
	Name   string
}

// Apply is function application "f x".
type Apply struct {
	Func Expr
	Arg  Expr
}

// Lambda is a function literal, either "ident: body" or "{a, b}: body".
type Lambda struct {
	Param    string   // set when the lambda takes a single bare identifier
	AttrArgs []string // set when the lambda destructures an attrset pattern
	Body     Expr
}

// LetIn is "let b1; b2; ... in body".
type LetIn struct {
	Bindings []AttrBinding
	Body     Expr
}

// And is the "a && b" boolean operator.
type And struct{ Left, Right Expr }

// Import is "import <path>"; path is resolved relative to the importing file.
type Import struct{ Path string }

func (*StringLit) exprNode()   {}
func (*NumberLit) exprNode()   {}
func (*BoolLit) exprNode()     {}
func (*NullLit) exprNode()     {}
func (*Ident) exprNode()       {}
func (*ListLit) exprNode()     {}
func (*AttrSet) exprNode()     {}
func (*Select) exprNode()      {}
func (*Apply) exprNode()       {}
func (*Lambda) exprNode()      {}
func (*LetIn) exprNode()       {}
func (*And) exprNode()    {}
func (*Import) exprNode() {}
