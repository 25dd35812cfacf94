package compiler

import (
	"log"

	"wordcc/pkg/asm"
)

// CodeGen lowers typed expression and statement trees through a State.
type CodeGen struct {
	*State
	env    *Env
	packer ArgPacker
}

// NewCodeGen returns a generator writing to prog. packer defaults to
// PackArguments and logger may be nil.
func NewCodeGen(prog *asm.Program, env *Env, packer ArgPacker, logger *log.Logger) *CodeGen {
	if packer == nil {
		packer = ArgPackerFunc(PackArguments)
	}
	return &CodeGen{State: NewState(prog, logger), env: env, packer: packer}
}

// checkValue rejects values that do not fit the accumulator.
func checkValue(e Expr) error {
	t := e.Type()
	if t == nil {
		return invalidf("untyped expression %s", e)
	}
	switch {
	case t.IsFloat():
		return unsupportedf("floating-point value %s", e)
	case t.IsAggregate():
		return unsupportedf("aggregate value %s used by value", e)
	}
	return nil
}

func (cg *CodeGen) lookup(name string) (Entry, error) {
	ent, ok := cg.env.Find(name)
	if !ok {
		return Entry{}, invalidf("undefined variable %q", name)
	}
	return ent, nil
}

// genAddress leaves the address of e in ax.
func (cg *CodeGen) genAddress(e Expr) (asm.Reg, error) {
	switch n := e.(type) {
	case *Variable:
		ent, err := cg.lookup(n.Name)
		if err != nil {
			return asm.AX, err
		}
		switch ent.Kind {
		case Frame, Stack:
			cg.Lea(asm.AX, ent.Offset, asm.BP)
		case Global:
			cg.LeaGlobal(asm.AX, ent.Name)
		case Enum:
			return asm.AX, invalidf("enum constant %q has no address", n.Name)
		default:
			return asm.AX, invalidf("%q names a type, not a value", n.Name)
		}
		return asm.AX, nil

	case *Member:
		bt := n.Base.Type()
		if bt == nil || !bt.IsAggregate() {
			return asm.AX, invalidf("member %q of non-aggregate %s", n.Field, n.Base)
		}
		f, ok := bt.Field(n.Field)
		if !ok {
			return asm.AX, invalidf("%s has no member %q", bt, n.Field)
		}
		if _, err := cg.genAddress(n.Base); err != nil {
			return asm.AX, err
		}
		if f.Offset != 0 {
			cg.AddImm(asm.AX, int64(f.Offset))
		}
		return asm.AX, nil

	case *Dereference:
		xt := n.X.Type()
		if xt == nil || !(xt.IsPointer() || xt.IsArray()) {
			return asm.AX, invalidf("dereference of non-pointer %s", n.X)
		}
		// The pointer value is the address.
		return cg.genValue(n.X)

	case *StringLiteral:
		cg.LeaGlobal(asm.AX, cg.InternString(n.Value))
		return asm.AX, nil

	default:
		return asm.AX, invalidf("expression %s has no address", e)
	}
}

// genValue leaves the value of e in ax and returns that register.
func (cg *CodeGen) genValue(e Expr) (asm.Reg, error) {
	if _, isCall := e.(*Call); !isCall {
		if err := checkValue(e); err != nil {
			return asm.AX, err
		}
	}

	switch n := e.(type) {
	case *Variable:
		return cg.genVariable(n)

	case *Assign:
		return cg.genAssign(n.Target, n.Value)

	case *AssignList:
		if len(n.Exprs) == 0 {
			return asm.AX, invalidf("empty expression list")
		}
		for _, x := range n.Exprs {
			if _, err := cg.genValue(x); err != nil {
				return asm.AX, err
			}
		}
		return asm.AX, nil

	case *Conditional:
		return cg.genConditional(n)

	case *Call:
		return cg.genCall(n)

	case *Member:
		if n.T.IsArray() {
			return cg.genAddress(n)
		}
		if _, err := cg.genAddress(n); err != nil {
			return asm.AX, err
		}
		cg.Load(asm.AX, 0, asm.AX)
		return asm.AX, nil

	case *Reference:
		return cg.genAddress(n.X)

	case *Dereference:
		xt := n.X.Type()
		if xt == nil || !(xt.IsPointer() || xt.IsArray()) {
			return asm.AX, invalidf("dereference of non-pointer %s", n.X)
		}
		if _, err := cg.genValue(n.X); err != nil {
			return asm.AX, err
		}
		if n.T.IsArray() || n.T.Kind == Function {
			return asm.AX, nil
		}
		cg.Load(asm.AX, 0, asm.AX)
		return asm.AX, nil

	case *Cast:
		if xt := n.X.Type(); xt != nil && xt.IsFloat() {
			return asm.AX, unsupportedf("conversion from %s", xt)
		}
		// No conversion changes the representation on this machine.
		return cg.genValue(n.X)

	case *IncDec:
		return cg.genIncDec(n)

	case *Unary:
		return cg.genUnary(n)

	case *Constant:
		cg.MovImm(asm.AX, n.Value)
		return asm.AX, nil

	case *StringLiteral:
		return cg.genAddress(n)

	case *Binary:
		return cg.genBinary(n)

	case *Logical:
		return cg.genLogical(n)

	default:
		return asm.AX, invalidf("unknown expression %T", e)
	}
}

func (cg *CodeGen) genVariable(n *Variable) (asm.Reg, error) {
	ent, err := cg.lookup(n.Name)
	if err != nil {
		return asm.AX, err
	}
	switch ent.Kind {
	case Enum:
		cg.MovImm(asm.AX, ent.Value)
		return asm.AX, nil
	case Typedef:
		return asm.AX, invalidf("%q names a type, not a value", n.Name)
	}

	// Arrays and functions decay to their address.
	if ent.Type.IsArray() || ent.Type.Kind == Function {
		return cg.genAddress(n)
	}
	switch ent.Kind {
	case Frame, Stack:
		cg.Load(asm.AX, ent.Offset, asm.BP)
	default:
		cg.LoadGlobal(asm.AX, ent.Name)
	}
	return asm.AX, nil
}

func (cg *CodeGen) genAssign(target, value Expr) (asm.Reg, error) {
	tt := target.Type()
	switch {
	case tt == nil:
		return asm.AX, invalidf("untyped assignment target %s", target)
	case tt.IsFloat():
		return asm.AX, unsupportedf("floating-point assignment to %s", target)
	case tt.IsAggregate():
		return asm.AX, unsupportedf("aggregate assignment to %s", target)
	case !tt.IsScalar():
		return asm.AX, invalidf("cannot assign to %s of type %s", target, tt)
	}

	if _, err := cg.genAddress(target); err != nil {
		return asm.AX, err
	}
	saved := cg.PushLong(asm.AX)
	if _, err := cg.genValue(value); err != nil {
		return asm.AX, err
	}
	cg.PopLong(saved, asm.BX)
	cg.Store(0, asm.BX, asm.AX)
	return asm.AX, nil
}

// branchIfFalse jumps to label when cond is zero. The stack is forced
// back to its depth before cond.
func (cg *CodeGen) branchIfFalse(cond Expr, label int) error {
	depth := cg.StackSize()
	if _, err := cg.genValue(cond); err != nil {
		return err
	}
	cg.ForceStackSizeTo(depth)
	cg.Jcc(cg.falseJump(cond), label)
	return nil
}

// falseJump sets the flags for cond, already evaluated, and returns the
// jump taken when it is false. A ! only tests its operand, so a run of
// them leaves flags describing the innermost operand and each one flips
// the sense.
func (cg *CodeGen) falseJump(cond Expr) Jump {
	nots := 0
	for e := cond; ; nots++ {
		u, ok := e.(*Unary)
		if !ok || u.Op != LogicalNot {
			break
		}
		e = u.X
	}
	switch {
	case nots == 0:
		cg.Test(asm.AX, asm.AX)
		return JZ
	case nots%2 == 1:
		return JNZ
	}
	return JZ
}

func (cg *CodeGen) genConditional(n *Conditional) (asm.Reg, error) {
	elseLabel := cg.RequestLabel()
	endLabel := cg.RequestLabel()
	depth := cg.StackSize()

	if err := cg.branchIfFalse(n.Cond, elseLabel); err != nil {
		return asm.AX, err
	}
	if _, err := cg.genValue(n.Then); err != nil {
		return asm.AX, err
	}
	cg.restoreStack(depth)
	cg.Jmp(endLabel)

	cg.Label(elseLabel)
	if _, err := cg.genValue(n.Else); err != nil {
		return asm.AX, err
	}
	cg.restoreStack(depth)
	cg.Label(endLabel)
	return asm.AX, nil
}

func (cg *CodeGen) genCall(n *Call) (asm.Reg, error) {
	ft := n.Func.Type()
	if ft != nil && ft.IsPointer() {
		ft = ft.Elem
	}
	if ft == nil || ft.Kind != Function {
		return asm.AX, invalidf("called object %s is not a function", n.Func)
	}
	ret := ft.Return
	if ret == nil {
		ret = Basic(Void)
	}
	if ret.IsFloat() {
		return asm.AX, unsupportedf("call to %s returning %s", n.Func, ret)
	}

	argTypes := make([]*Type, len(n.Args))
	for i, a := range n.Args {
		if argTypes[i] = a.Type(); argTypes[i] == nil {
			return asm.AX, invalidf("untyped argument %s", a)
		}
	}
	layout, err := CallLayout(cg.packer, ret, argTypes)
	if err != nil {
		return asm.AX, err
	}
	if layout.HiddenResult {
		return asm.AX, unsupportedf("call to %s returning aggregate %s (%d words of result storage)", n.Func, ret, layout.ResultSize)
	}

	// Arguments go into a packed area right below the current depth,
	// last argument first.
	cg.ExpandStackBy(layout.Size)
	base := cg.StackSize()
	for i := len(n.Args) - 1; i >= 0; i-- {
		if _, err := cg.genValue(n.Args[i]); err != nil {
			return asm.AX, err
		}
		cg.Store(layout.Offsets[i]-base, asm.BP, asm.AX)
	}
	cg.ForceStackSizeTo(base)

	if n.Func.Type().Kind == Function {
		_, err = cg.genAddress(n.Func)
	} else {
		_, err = cg.genValue(n.Func)
	}
	if err != nil {
		return asm.AX, err
	}
	cg.restoreStack(base)
	cg.Call(asm.AX)
	cg.ShrinkStackBy(layout.Size)
	return asm.AX, nil
}

func (cg *CodeGen) genUnary(n *Unary) (asm.Reg, error) {
	if _, err := cg.genValue(n.X); err != nil {
		return asm.AX, err
	}
	switch n.Op {
	case Negative:
		cg.Neg(asm.AX)
	case BitwiseNot:
		cg.Not(asm.AX)
	case LogicalNot:
		// Only the flags are prepared; ax still holds the operand.
		cg.Test(asm.AX, asm.AX)
	default:
		return asm.AX, invalidf("unknown unary operator %d", n.Op)
	}
	return asm.AX, nil
}

func (cg *CodeGen) genLogical(n *Logical) (asm.Reg, error) {
	shortLabel := cg.RequestLabel()
	endLabel := cg.RequestLabel()
	depth := cg.StackSize()

	// && short-circuits on a false side, || on a true one.
	for _, side := range []Expr{n.Left, n.Right} {
		if _, err := cg.genValue(side); err != nil {
			return asm.AX, err
		}
		cg.restoreStack(depth)
		short := cg.falseJump(side)
		if n.Or {
			short = invert(short)
		}
		cg.Jcc(short, shortLabel)
	}
	if n.Or {
		cg.MovImm(asm.AX, 0)
	} else {
		cg.MovImm(asm.AX, 1)
	}
	cg.Jmp(endLabel)
	cg.Label(shortLabel)
	if n.Or {
		cg.MovImm(asm.AX, 1)
	} else {
		cg.MovImm(asm.AX, 0)
	}
	cg.Label(endLabel)
	return asm.AX, nil
}

func invert(j Jump) Jump {
	if j == JZ {
		return JNZ
	}
	return JZ
}
