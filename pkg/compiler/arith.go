package compiler

import "wordcc/pkg/asm"

// genIncDec: address, push it, fetch, pop the address into cx, then
// store the stepped value. Postfix forms keep the original value in ax.
func (cg *CodeGen) genIncDec(n *IncDec) (asm.Reg, error) {
	t := n.X.Type()
	switch {
	case t == nil:
		return asm.AX, invalidf("untyped operand %s", n.X)
	case t.IsFloat():
		return asm.AX, unsupportedf("floating-point %s", n)
	case !t.IsScalar():
		return asm.AX, invalidf("cannot increment or decrement %s of type %s", n.X, t)
	}
	step := int64(1)
	if t.IsPointer() {
		step = int64(t.StepSize())
	}

	if _, err := cg.genAddress(n.X); err != nil {
		return asm.AX, err
	}
	saved := cg.PushLong(asm.AX)
	cg.Load(asm.AX, 0, asm.AX)
	cg.PopLong(saved, asm.CX)

	switch n.Op {
	case PostInc:
		cg.MovRR(asm.BX, asm.AX)
		cg.AddImm(asm.BX, step)
		cg.Store(0, asm.CX, asm.BX)
	case PostDec:
		cg.MovRR(asm.BX, asm.AX)
		cg.SubImm(asm.BX, step)
		cg.Store(0, asm.CX, asm.BX)
	case PreInc:
		cg.AddImm(asm.AX, step)
		cg.Store(0, asm.CX, asm.AX)
	case PreDec:
		cg.SubImm(asm.AX, step)
		cg.Store(0, asm.CX, asm.AX)
	default:
		return asm.AX, invalidf("unknown increment operator %d", n.Op)
	}
	return asm.AX, nil
}

// scale multiplies ax by n, clobbering cx and dx.
func (cg *CodeGen) scale(n int) {
	if n <= 1 {
		return
	}
	cg.MovImm(asm.CX, int64(n))
	cg.Mul(asm.CX)
}

func isAddressLike(t *Type) bool {
	return t.IsPointer() || t.IsArray() || t.Kind == Function
}

// genBinary evaluates Left, parks it on the stack, evaluates Right into cx
// and combines the two in ax.
func (cg *CodeGen) genBinary(n *Binary) (asm.Reg, error) {
	lt, rt := n.Left.Type(), n.Right.Type()
	if lt == nil || rt == nil {
		return asm.AX, invalidf("untyped operand in %s", n)
	}
	for _, t := range []*Type{lt, rt} {
		switch {
		case t.IsFloat():
			return asm.AX, unsupportedf("floating-point operand in %s", n)
		case t.IsAggregate():
			return asm.AX, unsupportedf("aggregate operand in %s", n)
		case t.Kind == Void:
			return asm.AX, invalidf("void operand in %s", n)
		}
	}

	lptr, rptr := isAddressLike(lt), isAddressLike(rt)
	if lptr && rptr && n.Op != OpSub && !n.Op.isComparison() {
		return asm.AX, invalidf("invalid operands to %s in %s", n.Op, n)
	}
	if (lptr || rptr) && !(n.Op == OpAdd || n.Op == OpSub || n.Op.isComparison()) {
		return asm.AX, invalidf("invalid pointer operand to %s in %s", n.Op, n)
	}
	if rptr && !lptr && n.Op == OpSub {
		return asm.AX, invalidf("integer minus pointer in %s", n)
	}

	if _, err := cg.genValue(n.Left); err != nil {
		return asm.AX, err
	}
	if rptr && !lptr {
		cg.scale(rt.Decay().StepSize())
	}
	saved := cg.PushLong(asm.AX)
	if _, err := cg.genValue(n.Right); err != nil {
		return asm.AX, err
	}
	if lptr && !rptr && (n.Op == OpAdd || n.Op == OpSub) {
		cg.scale(lt.Decay().StepSize())
	}
	cg.MovRR(asm.CX, asm.AX)
	cg.PopLong(saved, asm.AX)

	unsigned := lt.IsUnsigned() || rt.IsUnsigned() || lptr || rptr
	switch n.Op {
	case OpAdd:
		cg.Add(asm.AX, asm.CX)
	case OpSub:
		cg.Sub(asm.AX, asm.CX)
		if lptr && rptr {
			if step := lt.Decay().StepSize(); step > 1 {
				cg.divSigned(step)
			}
		}
	case OpMul:
		cg.Mul(asm.CX)
	case OpDiv:
		cg.MovImm(asm.DX, 0)
		cg.Div(asm.CX)
	case OpMod:
		cg.MovImm(asm.DX, 0)
		cg.Div(asm.CX)
		cg.MovRR(asm.AX, asm.DX)
	case OpAnd:
		cg.And(asm.AX, asm.CX)
	case OpOr:
		cg.Or(asm.AX, asm.CX)
	case OpXor:
		cg.Xor(asm.AX, asm.CX)
	case OpShl:
		cg.Shl(asm.AX, asm.CX)
	case OpShr:
		if lt.IsUnsigned() {
			cg.Shr(asm.AX, asm.CX)
		} else {
			cg.Sar(asm.AX, asm.CX)
		}
	default:
		cg.Cmp(asm.AX, asm.CX)
		cg.Set(compareCond(n.Op, unsigned), asm.AX)
	}
	return asm.AX, nil
}

func compareCond(op BinaryOp, unsigned bool) Cond {
	switch op {
	case OpEq:
		return CondE
	case OpNe:
		return CondNE
	case OpLt:
		if unsigned {
			return CondB
		}
		return CondL
	case OpLe:
		if unsigned {
			return CondNA
		}
		return CondLE
	case OpGt:
		if unsigned {
			return CondA
		}
		return CondG
	default:
		if unsigned {
			return CondNB
		}
		return CondGE
	}
}

// divSigned divides the signed word in ax by step. div is unsigned, so a
// negative ax is negated around it.
func (cg *CodeGen) divSigned(step int) {
	pos, done := cg.RequestLabel(), cg.RequestLabel()
	cg.MovImm(asm.CX, int64(step))
	cg.MovImm(asm.DX, 0)
	cg.Test(asm.AX, asm.AX)
	cg.Jcc(JGE, pos)
	cg.Neg(asm.AX)
	cg.Div(asm.CX)
	cg.Neg(asm.AX)
	cg.Jmp(done)
	cg.Label(pos)
	cg.Div(asm.CX)
	cg.Label(done)
}
