package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression nodes.

// Expr is implemented by every typed expression node.
// genValue always leaves the result in ax.
type Expr interface {
	exprNode()
	Type() *Type
	String() string
}

// Variable is a named reference resolved through the environment.
//
//	x = 1;
//	^  Variable{Name: "x"}
type Variable struct {
	Name string
	T    *Type
}

// Assign stores Value through the address of Target.
type Assign struct {
	Target Expr
	Value  Expr
	T      *Type
}

// AssignList is the comma operator: every element for effect, the last
// one for its value.
type AssignList struct {
	Exprs []Expr
	T     *Type
}

// Conditional is Cond ? Then : Else.
type Conditional struct {
	Cond Expr
	Then Expr
	Else Expr
	T    *Type
}

// Call invokes Func, a function designator or a pointer to function.
type Call struct {
	Func Expr
	Args []Expr
	T    *Type
}

// Member is Base.Field. p->f is Member{Base: &Dereference{X: p}}.
type Member struct {
	Base  Expr
	Field string
	T     *Type
}

// Reference is &X.
type Reference struct {
	X Expr
	T *Type
}

// Dereference is *X.
type Dereference struct {
	X Expr
	T *Type
}

// Cast is (T)X.
type Cast struct {
	X Expr
	T *Type
}

type IncDecOp int

const (
	PreInc IncDecOp = iota
	PreDec
	PostInc
	PostDec
)

// IncDec is ++X, --X, X++ or X--.
type IncDec struct {
	Op IncDecOp
	X  Expr
	T  *Type
}

type UnaryOp int

const (
	Negative UnaryOp = iota
	BitwiseNot
	LogicalNot
)

// Unary is -X, ~X or !X.
type Unary struct {
	Op UnaryOp
	X  Expr
	T  *Type
}

// Constant is an integer literal.
type Constant struct {
	Value int64
	T     *Type
}

// StringLiteral is a string constant "..."
type StringLiteral struct {
	Value string
	T     *Type
}

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryOpNames = [...]string{"+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>", "==", "!=", "<", "<=", ">", ">="}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// ParseBinaryOp maps an operator spelling to its BinaryOp.
func ParseBinaryOp(s string) (BinaryOp, bool) {
	for i, n := range binaryOpNames {
		if n == s {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

func (op BinaryOp) isComparison() bool { return op >= OpEq }

// Binary represents Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | Right
//	| Op
//	Left
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
	T     *Type
}

// Logical is a short-circuit && or ||.
type Logical struct {
	Or    bool
	Left  Expr
	Right Expr
	T     *Type
}

func (*Variable) exprNode()      {}
func (*Assign) exprNode()        {}
func (*AssignList) exprNode()    {}
func (*Conditional) exprNode()   {}
func (*Call) exprNode()          {}
func (*Member) exprNode()        {}
func (*Reference) exprNode()     {}
func (*Dereference) exprNode()   {}
func (*Cast) exprNode()          {}
func (*IncDec) exprNode()        {}
func (*Unary) exprNode()         {}
func (*Constant) exprNode()      {}
func (*StringLiteral) exprNode() {}
func (*Binary) exprNode()        {}
func (*Logical) exprNode()       {}

func (e *Variable) Type() *Type      { return e.T }
func (e *Assign) Type() *Type        { return e.T }
func (e *AssignList) Type() *Type    { return e.T }
func (e *Conditional) Type() *Type   { return e.T }
func (e *Call) Type() *Type          { return e.T }
func (e *Member) Type() *Type        { return e.T }
func (e *Reference) Type() *Type     { return e.T }
func (e *Dereference) Type() *Type   { return e.T }
func (e *Cast) Type() *Type          { return e.T }
func (e *IncDec) Type() *Type        { return e.T }
func (e *Unary) Type() *Type         { return e.T }
func (e *Constant) Type() *Type      { return e.T }
func (e *StringLiteral) Type() *Type { return e.T }
func (e *Binary) Type() *Type        { return e.T }
func (e *Logical) Type() *Type       { return e.T }

func (e *Variable) String() string { return e.Name }
func (e *Assign) String() string   { return fmt.Sprintf("%s = %s", e.Target, e.Value) }
func (e *AssignList) String() string {
	parts := make([]string, len(e.Exprs))
	for i, x := range e.Exprs {
		parts[i] = x.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (e *Conditional) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", e.Cond, e.Then, e.Else)
}
func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Func, strings.Join(args, ", "))
}
func (e *Member) String() string      { return fmt.Sprintf("%s.%s", e.Base, e.Field) }
func (e *Reference) String() string   { return "&" + e.X.String() }
func (e *Dereference) String() string { return "*" + e.X.String() }
func (e *Cast) String() string        { return fmt.Sprintf("(%s)%s", e.T, e.X) }
func (e *IncDec) String() string {
	switch e.Op {
	case PreInc:
		return "++" + e.X.String()
	case PreDec:
		return "--" + e.X.String()
	case PostInc:
		return e.X.String() + "++"
	default:
		return e.X.String() + "--"
	}
}
func (e *Unary) String() string {
	return [...]string{"-", "~", "!"}[e.Op] + e.X.String()
}
func (e *Constant) String() string      { return strconv.FormatInt(e.Value, 10) }
func (e *StringLiteral) String() string { return strconv.Quote(e.Value) }
func (e *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}
func (e *Logical) String() string {
	op := "&&"
	if e.Or {
		op = "||"
	}
	return fmt.Sprintf("(%s %s %s)", e.Left, op, e.Right)
}

// Statement nodes.

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
}

// ExprStmt evaluates X for its side effects.
type ExprStmt struct {
	X Expr
}

// Compound is a { ... } block with its own scope.
type Compound struct {
	Stmts []Stmt
}

// Decl declares a local; Init is optional and only allowed on scalars.
type Decl struct {
	Name string
	T    *Type
	Init Expr
}

type If struct {
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

type While struct {
	Cond Expr
	Body Stmt
}

type DoWhile struct {
	Body Stmt
	Cond Expr
}

// For has optional Init, Cond and Post.
type For struct {
	Init Expr
	Cond Expr
	Post Expr
	Body Stmt
}

type Switch struct {
	X    Expr
	Body Stmt
}

// Case marks the position of "case Value:" inside a switch body.
type Case struct {
	Value int64
}

// Default marks the position of "default:" inside a switch body.
type Default struct{}

type Break struct{}

type Continue struct{}

// Return with a nil X returns no value.
type Return struct {
	X Expr
}

type Goto struct {
	Label string
}

// Labeled marks the position of "Label:" for goto.
type Labeled struct {
	Label string
}

func (*ExprStmt) stmtNode() {}
func (*Compound) stmtNode() {}
func (*Decl) stmtNode()     {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*DoWhile) stmtNode()  {}
func (*For) stmtNode()      {}
func (*Switch) stmtNode()   {}
func (*Case) stmtNode()     {}
func (*Default) stmtNode()  {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Return) stmtNode()   {}
func (*Goto) stmtNode()     {}
func (*Labeled) stmtNode()  {}

// Top level.

// GlobalDecl is one file-scope variable. Init lists its initial words.
type GlobalDecl struct {
	Name   string
	T      *Type
	Init   []int64
	Static bool // private to the unit
}

// FuncDecl is one function definition. T must be a function type.
type FuncDecl struct {
	Name   string
	T      *Type
	Params []Param
	Body   *Compound
}

// Unit is everything Generate needs for one compilation unit. Env carries
// enums and typedefs; globals and functions are added to it.
type Unit struct {
	Env       *Env
	Globals   []GlobalDecl
	Functions []*FuncDecl
}
