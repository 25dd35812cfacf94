package compiler

// EntryKind classifies where a name lives.
type EntryKind int

const (
	Frame   EntryKind = iota // parameter, positive offset from bp
	Stack                    // local, negative offset from bp
	Global                   // named static storage or function
	Enum                     // enumeration constant, value only
	Typedef                  // type alias, not a value
)

func (k EntryKind) String() string {
	switch k {
	case Frame:
		return "frame"
	case Stack:
		return "stack"
	case Global:
		return "global"
	case Enum:
		return "enum"
	case Typedef:
		return "typedef"
	default:
		return "unknown"
	}
}

// Entry is the result of an environment lookup.
type Entry struct {
	Kind   EntryKind
	Name   string
	Type   *Type
	Offset int   // Frame and Stack
	Value  int64 // Enum
}

// Param is one declared function parameter.
type Param struct {
	Name string
	Type *Type
}

// ParamBase is the bp offset of the first argument word: bp holds the
// caller's bp and 1[bp] the return address.
const ParamBase = 2

// Env maps names to storage. Globals, enums and typedefs live in the
// file scope; parameters and locals in a stack of block scopes that only
// exists while a function is being generated.
type Env struct {
	globals map[string]Entry
	order   []string
	locals  []map[string]Entry

	// Next free local offset, decreasing from 0.
	nextLocal int
}

func NewEnv() *Env {
	return &Env{globals: make(map[string]Entry)}
}

func (e *Env) declareFile(ent Entry) error {
	if prev, ok := e.globals[ent.Name]; ok {
		if prev.Kind == Global && ent.Kind == Global && prev.Type.Kind == Function && ent.Type.Kind == Function {
			return nil
		}
		return invalidf("redeclaration of %q", ent.Name)
	}
	e.globals[ent.Name] = ent
	e.order = append(e.order, ent.Name)
	return nil
}

// DeclareGlobal adds a static variable or function symbol.
func (e *Env) DeclareGlobal(name string, t *Type) error {
	return e.declareFile(Entry{Kind: Global, Name: name, Type: t})
}

func (e *Env) DeclareEnum(name string, v int64) error {
	return e.declareFile(Entry{Kind: Enum, Name: name, Type: Basic(Long), Value: v})
}

func (e *Env) DeclareTypedef(name string, t *Type) error {
	return e.declareFile(Entry{Kind: Typedef, Name: name, Type: t})
}

// Globals returns the file-scope static variables in declaration order.
func (e *Env) Globals() []Entry {
	var out []Entry
	for _, name := range e.order {
		ent := e.globals[name]
		if ent.Kind == Global && ent.Type.Kind != Function {
			out = append(out, ent)
		}
	}
	return out
}

// EnterFunction opens the parameter scope, placing each parameter at
// ParamBase plus its packed offset.
func (e *Env) EnterFunction(params []Param, layout ArgLayout) error {
	if e.locals != nil {
		panic("EnterFunction called inside function")
	}
	if len(params) != len(layout.Offsets) {
		return invalidf("parameter layout has %d slots for %d parameters", len(layout.Offsets), len(params))
	}
	scope := make(map[string]Entry, len(params))
	for i, p := range params {
		if p.Name == "" {
			continue
		}
		if _, dup := scope[p.Name]; dup {
			return invalidf("duplicate parameter %q", p.Name)
		}
		// Array and function parameters are pointers.
		scope[p.Name] = Entry{Kind: Frame, Name: p.Name, Type: p.Type.Decay(), Offset: ParamBase + layout.Offsets[i]}
	}
	e.locals = []map[string]Entry{scope}
	e.nextLocal = 0
	return nil
}

func (e *Env) ExitFunction() {
	e.locals = nil
	e.nextLocal = 0
}

func (e *Env) EnterScope() {
	if len(e.locals) == 0 {
		panic("EnterScope called outside function")
	}
	e.locals = append(e.locals, make(map[string]Entry))
}

func (e *Env) ExitScope() {
	if len(e.locals) <= 1 {
		panic("ExitScope without matching EnterScope")
	}
	e.locals = e.locals[:len(e.locals)-1]
}

// DeclareLocal reserves size words below the frame pointer. The lowest
// word of the object gets the returned offset.
func (e *Env) DeclareLocal(name string, t *Type) (Entry, error) {
	if len(e.locals) == 0 {
		return Entry{}, invalidf("local %q outside function", name)
	}
	scope := e.locals[len(e.locals)-1]
	if _, dup := scope[name]; dup {
		return Entry{}, invalidf("redeclaration of %q", name)
	}
	if t == nil {
		return Entry{}, invalidf("local %q has no type", name)
	}
	if t.Kind == Void || t.Kind == Function || t.Kind == IncompleteArray {
		return Entry{}, invalidf("local %q has incomplete type %s", name, t)
	}
	e.nextLocal -= max(t.Size, 1)
	ent := Entry{Kind: Stack, Name: name, Type: t, Offset: e.nextLocal}
	scope[name] = ent
	return ent, nil
}

// LocalWords reports how many words the locals declared so far occupy.
func (e *Env) LocalWords() int { return -e.nextLocal }

// Find resolves name innermost scope first.
func (e *Env) Find(name string) (Entry, bool) {
	for i := len(e.locals) - 1; i >= 0; i-- {
		if ent, ok := e.locals[i][name]; ok {
			return ent, true
		}
	}
	ent, ok := e.globals[name]
	return ent, ok
}
