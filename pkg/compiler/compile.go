package compiler

import (
	"wordcc/pkg/asm"
)

// Generate lowers a whole unit into program text. Any error means no
// output: codegen stops at the first failure.
func Generate(u *Unit, opts Options) (string, error) {
	prog, err := GenerateProgram(u, opts)
	if err != nil {
		return "", err
	}
	return prog.String(), nil
}

// GenerateProgram is Generate without the final rendering.
func GenerateProgram(u *Unit, opts Options) (*asm.Program, error) {
	env := u.Env
	if env == nil {
		env = NewEnv()
	}
	for _, g := range u.Globals {
		if err := env.DeclareGlobal(g.Name, g.T); err != nil {
			return nil, err
		}
	}
	hasEntry := false
	for _, f := range u.Functions {
		if err := env.DeclareGlobal(f.Name, f.T); err != nil {
			return nil, err
		}
		if f.Name == opts.Entry {
			hasEntry = true
		}
	}

	prog := asm.NewProgram()
	cg := NewCodeGen(prog, env, opts.Packer, opts.logger())

	if opts.Entry != "" {
		if !hasEntry {
			return nil, invalidf("entry function %q not defined", opts.Entry)
		}
		cg.Comment("start")
		cg.CallSym(opts.Entry)
		cg.Halt()
	}

	for _, g := range u.Globals {
		if err := cg.genGlobal(g); err != nil {
			return nil, err
		}
	}

	for _, f := range u.Functions {
		if f.Body == nil {
			continue
		}
		if err := cg.genFunction(f); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

func (cg *CodeGen) genGlobal(g GlobalDecl) error {
	t := g.T
	switch {
	case t == nil:
		return invalidf("global %q has no type", g.Name)
	case t.IsFloat():
		return unsupportedf("floating-point global %q", g.Name)
	case t.Kind == Void || t.Kind == Function || t.Kind == IncompleteArray:
		return invalidf("global %q has incomplete type %s", g.Name, t)
	}
	size := max(t.Size, 1)
	if len(g.Init) > size {
		return invalidf("too many initializers for %q: %d > %d", g.Name, len(g.Init), size)
	}
	words := make([]int64, size)
	copy(words, g.Init)
	switch {
	case size == 1 && g.Static:
		cg.DeclareLocalWord(g.Name, words[0])
	case size == 1:
		cg.DeclareWord(g.Name, words[0])
	case g.Static:
		cg.DeclareLocalWords(g.Name, words)
	default:
		cg.DeclareWords(g.Name, words)
	}
	return nil
}
