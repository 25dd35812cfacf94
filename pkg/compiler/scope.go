package compiler

// NoLabel marks an absent label in a scope.
const NoLabel = -1

type labelScope struct {
	continueLabel int
	breakLabel    int
	defaultLabel  int
	cases         map[int64]int // nil outside a switch
}

type funcScope struct {
	returnLabel int
	gotos       map[string]int
}

// Guard undoes one scope entry. Release is idempotent and pops every
// scope entered after the guarded one as well, so a deferred Release
// leaves the context consistent on any exit path.
type Guard struct {
	s        *State
	depth    int
	function bool
	released bool
}

func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if g.function {
		g.s.fn = nil
		g.s.tracef("exit function")
		return
	}
	if len(g.s.scopes) > g.depth {
		g.s.scopes = g.s.scopes[:g.depth]
	}
	g.s.tracef("exit scope, depth %d", g.depth)
}

func (s *State) enter(sc labelScope) *Guard {
	g := &Guard{s: s, depth: len(s.scopes)}
	s.scopes = append(s.scopes, sc)
	return g
}

// EnterLoop pushes the targets of continue and break for one loop.
func (s *State) EnterLoop(continueLabel, breakLabel int) *Guard {
	s.tracef("enter loop continue=L%d break=L%d", continueLabel, breakLabel)
	return s.enter(labelScope{
		continueLabel: continueLabel,
		breakLabel:    breakLabel,
		defaultLabel:  NoLabel,
	})
}

// EnterSwitch pushes the break target, default target (NoLabel if the
// switch has none) and case table of one switch.
func (s *State) EnterSwitch(breakLabel, defaultLabel int, cases map[int64]int) *Guard {
	if cases == nil {
		cases = map[int64]int{}
	}
	s.tracef("enter switch break=L%d cases=%d", breakLabel, len(cases))
	return s.enter(labelScope{
		continueLabel: NoLabel,
		breakLabel:    breakLabel,
		defaultLabel:  defaultLabel,
		cases:         cases,
	})
}

// ScopeDepth reports how many loop and switch scopes are open.
func (s *State) ScopeDepth() int { return len(s.scopes) }

func (s *State) find(field func(labelScope) int) (int, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if id := field(s.scopes[i]); id != NoLabel {
			return id, true
		}
	}
	return NoLabel, false
}

func (s *State) ContinueLabel() (int, error) {
	if id, ok := s.find(func(sc labelScope) int { return sc.continueLabel }); ok {
		return id, nil
	}
	return NoLabel, scopef("continue outside loop")
}

func (s *State) BreakLabel() (int, error) {
	if id, ok := s.find(func(sc labelScope) int { return sc.breakLabel }); ok {
		return id, nil
	}
	return NoLabel, scopef("break outside loop or switch")
}

func (s *State) DefaultLabel() (int, error) {
	if id, ok := s.find(func(sc labelScope) int { return sc.defaultLabel }); ok {
		return id, nil
	}
	return NoLabel, scopef("default outside switch")
}

// CaseLabel resolves v against the innermost switch only.
func (s *State) CaseLabel(v int64) (int, error) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		cases := s.scopes[i].cases
		if cases == nil {
			continue
		}
		if id, ok := cases[v]; ok {
			return id, nil
		}
		return NoLabel, scopef("case %d not in enclosing switch", v)
	}
	return NoLabel, scopef("case outside switch")
}

// EnterFunction allocates the return label and one label per goto target.
func (s *State) EnterFunction(gotoNames []string) (*Guard, error) {
	if s.fn != nil {
		return nil, scopef("nested function")
	}
	fn := &funcScope{returnLabel: s.RequestLabel(), gotos: make(map[string]int, len(gotoNames))}
	for _, name := range gotoNames {
		if _, dup := fn.gotos[name]; dup {
			return nil, invalidf("duplicate label %q", name)
		}
		fn.gotos[name] = s.RequestLabel()
	}
	s.fn = fn
	s.tracef("enter function return=L%d gotos=%d", fn.returnLabel, len(gotoNames))
	return &Guard{s: s, function: true}, nil
}

func (s *State) ReturnLabel() (int, error) {
	if s.fn == nil {
		return NoLabel, scopef("return outside function")
	}
	return s.fn.returnLabel, nil
}

func (s *State) GotoLabel(name string) (int, error) {
	if s.fn == nil {
		return NoLabel, scopef("goto %s outside function", name)
	}
	id, ok := s.fn.gotos[name]
	if !ok {
		return NoLabel, scopef("label %q not defined in function", name)
	}
	return id, nil
}
