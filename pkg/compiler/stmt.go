package compiler

import (
	"wordcc/pkg/asm"
)

// genStmt lowers one statement. The stack depth after a statement always
// equals the depth before it.
func (cg *CodeGen) genStmt(s Stmt) error {
	depth := cg.StackSize()
	if err := cg.genStmtInner(s); err != nil {
		return err
	}
	cg.restoreStack(depth)
	return nil
}

func (cg *CodeGen) genStmtInner(s Stmt) error {
	switch n := s.(type) {
	case *ExprStmt:
		_, err := cg.genValue(n.X)
		return err

	case *Compound:
		cg.env.EnterScope()
		defer cg.env.ExitScope()
		for _, st := range n.Stmts {
			if err := cg.genStmt(st); err != nil {
				return err
			}
		}
		return nil

	case *Decl:
		ent, err := cg.env.DeclareLocal(n.Name, n.T)
		if err != nil {
			return err
		}
		if n.Init == nil {
			return nil
		}
		cg.Comment("%s = %s", n.Name, n.Init)
		_, err = cg.genAssign(&Variable{Name: ent.Name, T: ent.Type}, n.Init)
		return err

	case *If:
		cg.Comment("if %s", n.Cond)
		elseLabel := cg.RequestLabel()
		if err := cg.branchIfFalse(n.Cond, elseLabel); err != nil {
			return err
		}
		if err := cg.genStmt(n.Then); err != nil {
			return err
		}
		if n.Else == nil {
			cg.Label(elseLabel)
			return nil
		}
		endLabel := cg.RequestLabel()
		cg.Jmp(endLabel)
		cg.Label(elseLabel)
		if err := cg.genStmt(n.Else); err != nil {
			return err
		}
		cg.Label(endLabel)
		return nil

	case *While:
		cg.Comment("while %s", n.Cond)
		startLabel := cg.RequestLabel()
		endLabel := cg.RequestLabel()
		guard := cg.EnterLoop(startLabel, endLabel)
		defer guard.Release()

		cg.Label(startLabel)
		if err := cg.branchIfFalse(n.Cond, endLabel); err != nil {
			return err
		}
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.Jmp(startLabel)
		cg.Label(endLabel)
		return nil

	case *DoWhile:
		cg.Comment("do while %s", n.Cond)
		startLabel := cg.RequestLabel()
		contLabel := cg.RequestLabel()
		endLabel := cg.RequestLabel()
		guard := cg.EnterLoop(contLabel, endLabel)
		defer guard.Release()

		cg.Label(startLabel)
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.Label(contLabel)
		if err := cg.branchIfFalse(n.Cond, endLabel); err != nil {
			return err
		}
		cg.Jmp(startLabel)
		cg.Label(endLabel)
		return nil

	case *For:
		cg.Comment("for")
		if n.Init != nil {
			if err := cg.genStmt(&ExprStmt{X: n.Init}); err != nil {
				return err
			}
		}
		startLabel := cg.RequestLabel()
		contLabel := cg.RequestLabel()
		endLabel := cg.RequestLabel()
		guard := cg.EnterLoop(contLabel, endLabel)
		defer guard.Release()

		cg.Label(startLabel)
		if n.Cond != nil {
			if err := cg.branchIfFalse(n.Cond, endLabel); err != nil {
				return err
			}
		}
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.Label(contLabel)
		if n.Post != nil {
			if err := cg.genStmt(&ExprStmt{X: n.Post}); err != nil {
				return err
			}
		}
		cg.Jmp(startLabel)
		cg.Label(endLabel)
		return nil

	case *Switch:
		return cg.genSwitch(n)

	case *Case:
		id, err := cg.CaseLabel(n.Value)
		if err != nil {
			return err
		}
		cg.Label(id)
		return nil

	case *Default:
		id, err := cg.DefaultLabel()
		if err != nil {
			return err
		}
		cg.Label(id)
		return nil

	case *Break:
		id, err := cg.BreakLabel()
		if err != nil {
			return err
		}
		cg.Jmp(id)
		return nil

	case *Continue:
		id, err := cg.ContinueLabel()
		if err != nil {
			return err
		}
		cg.Jmp(id)
		return nil

	case *Return:
		id, err := cg.ReturnLabel()
		if err != nil {
			return err
		}
		if n.X != nil {
			if _, err := cg.genValue(n.X); err != nil {
				return err
			}
		}
		cg.Jmp(id)
		return nil

	case *Goto:
		id, err := cg.GotoLabel(n.Label)
		if err != nil {
			return err
		}
		cg.Jmp(id)
		return nil

	case *Labeled:
		id, err := cg.GotoLabel(n.Label)
		if err != nil {
			return err
		}
		cg.Label(id)
		return nil

	default:
		return invalidf("unknown statement %T", s)
	}
}

func (cg *CodeGen) genSwitch(n *Switch) error {
	if t := n.X.Type(); t == nil || !t.IsInteger() {
		if t != nil && t.IsFloat() {
			return unsupportedf("switch on floating-point %s", n.X)
		}
		return invalidf("switch on non-integer %s", n.X)
	}
	cg.Comment("switch %s", n.X)

	values, hasDefault, err := switchCases(n.Body)
	if err != nil {
		return err
	}
	breakLabel := cg.RequestLabel()
	defaultLabel := NoLabel
	if hasDefault {
		defaultLabel = cg.RequestLabel()
	}
	cases := make(map[int64]int, len(values))
	for _, v := range values {
		cases[v] = cg.RequestLabel()
	}

	depth := cg.StackSize()
	if _, err := cg.genValue(n.X); err != nil {
		return err
	}
	cg.restoreStack(depth)
	for _, v := range values {
		cg.CmpImm(asm.AX, v)
		cg.Jcc(JZ, cases[v])
	}
	if hasDefault {
		cg.Jmp(defaultLabel)
	} else {
		cg.Jmp(breakLabel)
	}

	guard := cg.EnterSwitch(breakLabel, defaultLabel, cases)
	defer guard.Release()
	if err := cg.genStmt(n.Body); err != nil {
		return err
	}
	cg.Label(breakLabel)
	return nil
}

// switchCases collects the case values of one switch body in source
// order, without descending into nested switches.
func switchCases(s Stmt) ([]int64, bool, error) {
	var values []int64
	seen := map[int64]bool{}
	hasDefault := false
	var walk func(Stmt) error
	walk = func(s Stmt) error {
		switch n := s.(type) {
		case *Case:
			if seen[n.Value] {
				return invalidf("duplicate case %d", n.Value)
			}
			seen[n.Value] = true
			values = append(values, n.Value)
		case *Default:
			if hasDefault {
				return invalidf("multiple default labels in one switch")
			}
			hasDefault = true
		case *Compound:
			for _, st := range n.Stmts {
				if err := walk(st); err != nil {
					return err
				}
			}
		case *If:
			if err := walk(n.Then); err != nil {
				return err
			}
			if n.Else != nil {
				return walk(n.Else)
			}
		case *While:
			return walk(n.Body)
		case *DoWhile:
			return walk(n.Body)
		case *For:
			return walk(n.Body)
		}
		return nil
	}
	err := walk(s)
	return values, hasDefault, err
}

// gotoLabels lists every label defined in a function body.
func gotoLabels(s Stmt) []string {
	var names []string
	var walk func(Stmt)
	walk = func(s Stmt) {
		switch n := s.(type) {
		case *Labeled:
			names = append(names, n.Label)
		case *Compound:
			for _, st := range n.Stmts {
				walk(st)
			}
		case *If:
			walk(n.Then)
			if n.Else != nil {
				walk(n.Else)
			}
		case *While:
			walk(n.Body)
		case *DoWhile:
			walk(n.Body)
		case *For:
			walk(n.Body)
		case *Switch:
			walk(n.Body)
		}
	}
	walk(s)
	return names
}

// localWords sums the size of every local declared in a body. Locals are
// never overlapped, so this is the frame size.
func localWords(s Stmt) int {
	total := 0
	var walk func(Stmt)
	walk = func(s Stmt) {
		switch n := s.(type) {
		case *Decl:
			if n.T != nil {
				total += max(n.T.Size, 1)
			}
		case *Compound:
			for _, st := range n.Stmts {
				walk(st)
			}
		case *If:
			walk(n.Then)
			if n.Else != nil {
				walk(n.Else)
			}
		case *While:
			walk(n.Body)
		case *DoWhile:
			walk(n.Body)
		case *For:
			walk(n.Body)
		case *Switch:
			walk(n.Body)
		}
	}
	walk(s)
	return total
}

// genFunction emits one function: prologue, frame reservation, body,
// the shared return point and the epilogue.
func (cg *CodeGen) genFunction(f *FuncDecl) error {
	if f.T == nil || f.T.Kind != Function {
		return invalidf("function %q has non-function type", f.Name)
	}
	if ret := f.T.Return; ret != nil {
		if ret.IsFloat() {
			return unsupportedf("function %q returns %s", f.Name, ret)
		}
		if ret.IsAggregate() {
			return unsupportedf("function %q returns aggregate %s", f.Name, ret)
		}
	}

	paramTypes := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		paramTypes[i] = p.Type
	}
	layout, err := cg.packer.Pack(paramTypes)
	if err != nil {
		return err
	}

	guard, err := cg.EnterFunction(gotoLabels(f.Body))
	if err != nil {
		return err
	}
	defer guard.Release()
	if err := cg.env.EnterFunction(f.Params, layout); err != nil {
		return err
	}
	defer cg.env.ExitFunction()

	cg.Blank()
	cg.FunctionPrologue(f.Name)
	cg.ExpandStackTo(localWords(f.Body))
	if err := cg.genStmt(f.Body); err != nil {
		return err
	}

	ret, err := cg.ReturnLabel()
	if err != nil {
		return err
	}
	cg.Label(ret)
	cg.Leave()
	cg.Ret()
	return nil
}
