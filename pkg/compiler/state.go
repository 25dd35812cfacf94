package compiler

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"wordcc/pkg/asm"
)

// Cond selects one of the set-if-condition forms.
type Cond int

const (
	CondE  Cond = iota // equal
	CondNE             // not equal
	CondG              // greater, signed
	CondL              // less, signed
	CondGE             // greater or equal, signed
	CondLE             // less or equal, signed
	CondB              // below, unsigned
	CondNB             // not below, unsigned
	CondA              // above, unsigned
	CondNA             // not above, unsigned
)

var condNames = [...]string{"e", "ne", "g", "l", "ge", "le", "b", "nb", "a", "na"}

func (c Cond) String() string { return condNames[c] }

// Jump selects one of the conditional jumps.
type Jump int

const (
	JZ Jump = iota
	JNZ
	JC
	JL
	JLE
	JG
	JGE
)

var jumpNames = [...]string{"jz", "jnz", "jc", "jl", "jle", "jg", "jge"}

func (j Jump) String() string { return jumpNames[j] }

// State is the codegen context of one compilation. It owns the output
// buffer and tracks how far sp sits below bp, which label ids are taken
// and which loop, switch and function scopes enclose the current point.
// A State must not be shared between goroutines.
type State struct {
	prog *asm.Program

	stackSize int
	nextLabel int
	nextConst int

	scopes []labelScope
	fn     *funcScope

	log *log.Logger
}

// NewState returns a context appending to prog. logger may be nil.
func NewState(prog *asm.Program, logger *log.Logger) *State {
	return &State{prog: prog, log: logger}
}

func (s *State) Program() *asm.Program { return s.prog }

// StackSize is the number of words sp currently sits below bp.
func (s *State) StackSize() int { return s.stackSize }

func (s *State) tracef(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *State) emit(op string, args ...string) {
	if len(args) == 0 {
		s.prog.AddInstruction(op)
		return
	}
	s.prog.AddInstruction(op + " " + strings.Join(args, ", "))
}

// Comment appends a "# ..." line to the code section.
func (s *State) Comment(format string, args ...any) {
	s.prog.AddComment(fmt.Sprintf(format, args...))
}

func (s *State) Blank() { s.prog.AddEmpty() }

// Moves.

func (s *State) MovRR(dst, src asm.Reg) { s.emit("mov", dst.String(), src.String()) }

func (s *State) MovImm(dst asm.Reg, v int64) { s.emit("mov", dst.String(), asm.Imm(v)) }

// Load reads the word at off[base] into dst.
func (s *State) Load(dst asm.Reg, off int, base asm.Reg) {
	s.emit("mov", dst.String(), asm.Mem(off, base))
}

// Store writes src to the word at off[base].
func (s *State) Store(off int, base asm.Reg, src asm.Reg) {
	s.emit("mov", asm.Mem(off, base), src.String())
}

func (s *State) LoadGlobal(dst asm.Reg, sym string) { s.emit("mov", dst.String(), sym) }

func (s *State) StoreGlobal(sym string, src asm.Reg) { s.emit("mov", sym, src.String()) }

// Address computation.

func (s *State) Lea(dst asm.Reg, off int, base asm.Reg) {
	s.emit("lea", dst.String(), asm.Mem(off, base))
}

func (s *State) LeaGlobal(dst asm.Reg, sym string) { s.emit("lea", dst.String(), sym) }

// Arithmetic.

func (s *State) Add(dst, src asm.Reg)        { s.emit("add", dst.String(), src.String()) }
func (s *State) AddImm(dst asm.Reg, v int64) { s.emit("add", dst.String(), asm.Imm(v)) }
func (s *State) Sub(dst, src asm.Reg)        { s.emit("sub", dst.String(), src.String()) }
func (s *State) SubImm(dst asm.Reg, v int64) { s.emit("sub", dst.String(), asm.Imm(v)) }
func (s *State) And(dst, src asm.Reg)        { s.emit("and", dst.String(), src.String()) }
func (s *State) Or(dst, src asm.Reg)         { s.emit("or", dst.String(), src.String()) }
func (s *State) Xor(dst, src asm.Reg)        { s.emit("xor", dst.String(), src.String()) }
func (s *State) Shl(dst, src asm.Reg)        { s.emit("shl", dst.String(), src.String()) }
func (s *State) Sar(dst, src asm.Reg)        { s.emit("sar", dst.String(), src.String()) }
func (s *State) Shr(dst, src asm.Reg)        { s.emit("shr", dst.String(), src.String()) }
func (s *State) Neg(r asm.Reg)               { s.emit("neg", r.String()) }
func (s *State) Not(r asm.Reg)               { s.emit("not", r.String()) }
func (s *State) Cmp(a, b asm.Reg)            { s.emit("cmp", a.String(), b.String()) }
func (s *State) CmpImm(a asm.Reg, v int64)   { s.emit("cmp", a.String(), asm.Imm(v)) }
func (s *State) Test(a, b asm.Reg)           { s.emit("test", a.String(), b.String()) }
func (s *State) Set(c Cond, dst asm.Reg)     { s.emit("set"+c.String(), dst.String()) }
func (s *State) Jcc(j Jump, label int)       { s.emit(j.String(), asm.LabelName(label)) }
func (s *State) Jmp(label int)               { s.emit("jmp", asm.LabelName(label)) }
func (s *State) CallSym(name string)         { s.emit("call", name) }
func (s *State) Call(target asm.Reg)         { s.emit("call", target.String()) }
func (s *State) Ret()                        { s.emit("ret") }
func (s *State) Leave()                      { s.emit("leave") }
func (s *State) Halt()                       { s.emit("hlt") }

// Mul multiplies ax by src unsigned; the high word lands in dx.
func (s *State) Mul(src asm.Reg) { s.emit("mul", src.String()) }

// Div divides dx:ax by src unsigned: quotient in ax, remainder in dx.
func (s *State) Div(src asm.Reg) { s.emit("div", src.String()) }

// Stack.

func (s *State) push(r asm.Reg) { s.emit("push", r.String()) }
func (s *State) pop(r asm.Reg)  { s.emit("pop", r.String()) }

// PushLong pushes one word and returns the stack size that now addresses
// it, i.e. the value lives at -depth[bp].
func (s *State) PushLong(r asm.Reg) int {
	s.push(r)
	s.stackSize++
	return s.stackSize
}

// PopLong recovers the word pushed when the stack size became saved.
// Only a true pop if nothing has been pushed since; otherwise the word is
// read in place through bp and the stack is left as is.
func (s *State) PopLong(saved int, dst asm.Reg) {
	if s.stackSize == saved {
		s.pop(dst)
		s.stackSize--
		return
	}
	s.Load(dst, -saved, asm.BP)
}

func (s *State) ExpandStackBy(n int) {
	if n < 0 {
		panic("ExpandStackBy: negative size")
	}
	if n == 0 {
		return
	}
	s.emit("sub", asm.SP.String(), strconv.Itoa(n))
	s.stackSize += n
}

// ExpandStackTo only grows the stack.
func (s *State) ExpandStackTo(n int) {
	if n > s.stackSize {
		s.ExpandStackBy(n - s.stackSize)
	}
}

// ExpandWithAlignment grows by n words and rounds the new depth up to align.
func (s *State) ExpandWithAlignment(n, align int) {
	s.ExpandStackBy(roundUp(s.stackSize+n, align) - s.stackSize)
}

func (s *State) ShrinkStackBy(n int) {
	if n < 0 || n > s.stackSize {
		panic("ShrinkStackBy: size out of range")
	}
	if n == 0 {
		return
	}
	s.emit("add", asm.SP.String(), strconv.Itoa(n))
	s.stackSize -= n
}

// ForceStackSizeTo recomputes sp from bp, discarding whatever an inner
// expression left on the stack.
func (s *State) ForceStackSizeTo(n int) {
	if n < 0 {
		panic("ForceStackSizeTo: negative size")
	}
	s.Lea(asm.SP, -n, asm.BP)
	s.tracef("stack forced %d -> %d", s.stackSize, n)
	s.stackSize = n
}

// restoreStack forces the stack back to n only if it drifted.
func (s *State) restoreStack(n int) {
	if s.stackSize != n {
		s.ForceStackSizeTo(n)
	}
}

// FunctionPrologue starts a function body with a fresh frame.
func (s *State) FunctionPrologue(name string) {
	s.FuncLabel(name)
	s.push(asm.BP)
	s.MovRR(asm.BP, asm.SP)
	s.stackSize = 0
}

// Labels.

// RequestLabel returns a label id never handed out before.
func (s *State) RequestLabel() int {
	id := s.nextLabel
	s.nextLabel++
	return id
}

// Label places label id at the current point.
func (s *State) Label(id int) { s.prog.AddLabel(asm.LabelName(id)) }

func (s *State) FuncLabel(name string) { s.prog.AddLabel(name) }

// Static data.

func (s *State) nextConstName() string {
	name := "LC" + strconv.Itoa(s.nextConst)
	s.nextConst++
	return name
}

// InternLong declares a fresh word constant and returns its symbol.
// Equal values are not shared.
func (s *State) InternLong(v int64) string {
	name := s.nextConstName()
	s.prog.AddDeclaration(name, asm.Imm(v))
	return name
}

// InternString declares a fresh zero-terminated string.
func (s *State) InternString(text string) string {
	name := s.nextConstName()
	s.prog.AddDeclaration(name, strconv.Quote(text))
	return name
}

func (s *State) DeclareWord(name string, v int64) {
	s.prog.AddDeclaration(name, asm.Imm(v))
}

// DeclareLocalWord declares a word private to the unit.
func (s *State) DeclareLocalWord(name string, v int64) {
	s.prog.AddDeclaration(name, asm.Imm(v)+" local")
}

func (s *State) DeclareWords(name string, vs []int64) {
	s.prog.AddDeclaration(name, wordList(vs))
}

func (s *State) DeclareLocalWords(name string, vs []int64) {
	s.prog.AddDeclaration(name, wordList(vs)+" local")
}

func wordList(vs []int64) string {
	if len(vs) == 0 {
		return "0"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = asm.Imm(v)
	}
	return strings.Join(parts, ", ")
}
