package cpu

import (
	"errors"
	"fmt"

	"wordcc/pkg/asm"
)

const (
	// DataBase is where the first data declaration is placed.
	DataBase uint16 = 0x0010
	// StackTop is the initial value of sp and bp; the stack grows down.
	StackTop uint16 = 0xFFF0

	DefaultMaxSteps = 1_000_000
)

var (
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrDivideByZero = errors.New("divide by zero")
)

// CPU executes a parsed listing on the word machine. Code and data live
// in separate spaces: code addresses are instruction indexes, data
// addresses index Memory.
type CPU struct {
	Regs [7]uint16 // indexed by asm.Reg
	PC   int

	Z bool
	S bool
	C bool
	O bool

	Halted bool
	Steps  int

	Memory [65536]uint16

	code    []asm.Instr
	labels  map[string]int
	symbols map[string]uint16
}

// Load places the listing's data at DataBase and resets the registers.
func Load(l *asm.Listing) (*CPU, error) {
	c := &CPU{
		code:    l.Code,
		labels:  l.Labels,
		symbols: make(map[string]uint16, len(l.Data)),
	}
	addr := int(DataBase)
	for _, d := range l.Data {
		if _, dup := c.symbols[d.Name]; dup {
			return nil, fmt.Errorf("duplicate data symbol '%s' on line %d", d.Name, d.Line)
		}
		if _, clash := c.labels[d.Name]; clash {
			return nil, fmt.Errorf("data symbol '%s' on line %d is also a code label", d.Name, d.Line)
		}
		if addr+len(d.Words) > int(StackTop)/2 {
			return nil, fmt.Errorf("data section too large at '%s'", d.Name)
		}
		c.symbols[d.Name] = uint16(addr)
		for _, w := range d.Words {
			c.Memory[addr] = uint16(w)
			addr++
		}
	}
	c.Regs[asm.SP] = StackTop
	c.Regs[asm.BP] = StackTop
	return c, nil
}

// LoadText parses rendered program text and loads it.
func LoadText(text string) (*CPU, error) {
	l, err := asm.Parse(text)
	if err != nil {
		return nil, err
	}
	return Load(l)
}

func (c *CPU) Reg(r asm.Reg) uint16 { return c.Regs[r] }

// Symbol returns the data address of a declaration.
func (c *CPU) Symbol(name string) (uint16, bool) {
	addr, ok := c.symbols[name]
	return addr, ok
}

func (c *CPU) ReadMem(addr uint16) uint16       { return c.Memory[addr] }
func (c *CPU) WriteMem(addr uint16, val uint16) { c.Memory[addr] = val }

func (c *CPU) push(v uint16) {
	c.Regs[asm.SP]--
	c.Memory[c.Regs[asm.SP]] = v
}

func (c *CPU) pop() uint16 {
	v := c.Memory[c.Regs[asm.SP]]
	c.Regs[asm.SP]++
	return v
}

func (c *CPU) address(op asm.Operand) (uint16, error) {
	switch op.Kind {
	case asm.OperandMem:
		return c.Regs[op.Reg] + uint16(op.Off), nil
	case asm.OperandSym:
		if addr, ok := c.symbols[op.Sym]; ok {
			return addr, nil
		}
		if idx, ok := c.labels[op.Sym]; ok {
			return uint16(idx), nil
		}
		return 0, fmt.Errorf("undefined symbol '%s'", op.Sym)
	default:
		return 0, fmt.Errorf("operand %s has no address", op)
	}
}

func (c *CPU) read(op asm.Operand) (uint16, error) {
	switch op.Kind {
	case asm.OperandReg:
		return c.Regs[op.Reg], nil
	case asm.OperandImm:
		return uint16(op.Imm), nil
	case asm.OperandSym:
		addr, ok := c.symbols[op.Sym]
		if !ok {
			return 0, fmt.Errorf("undefined data symbol '%s'", op.Sym)
		}
		return c.Memory[addr], nil
	default:
		addr, err := c.address(op)
		if err != nil {
			return 0, err
		}
		return c.Memory[addr], nil
	}
}

func (c *CPU) write(op asm.Operand, v uint16) error {
	switch op.Kind {
	case asm.OperandReg:
		c.Regs[op.Reg] = v
		return nil
	case asm.OperandImm:
		return fmt.Errorf("cannot store to immediate %s", op)
	case asm.OperandSym:
		addr, ok := c.symbols[op.Sym]
		if !ok {
			return fmt.Errorf("undefined data symbol '%s'", op.Sym)
		}
		c.Memory[addr] = v
		return nil
	default:
		addr, err := c.address(op)
		if err != nil {
			return err
		}
		c.Memory[addr] = v
		return nil
	}
}

// target resolves a jump or call destination to an instruction index.
func (c *CPU) target(op asm.Operand) (int, error) {
	switch op.Kind {
	case asm.OperandSym:
		idx, ok := c.labels[op.Sym]
		if !ok {
			return 0, fmt.Errorf("undefined label '%s'", op.Sym)
		}
		return idx, nil
	case asm.OperandReg:
		return int(c.Regs[op.Reg]), nil
	default:
		return 0, fmt.Errorf("invalid jump target %s", op)
	}
}

func (c *CPU) updateFlags(result uint16) {
	c.Z = result == 0
	c.S = result&0x8000 != 0
}

func (c *CPU) subFlags(a, b uint16) uint16 {
	r := a - b
	c.updateFlags(r)
	c.C = a < b
	c.O = (a^b)&(a^r)&0x8000 != 0
	return r
}

func (c *CPU) addFlags(a, b uint16) uint16 {
	r := a + b
	c.updateFlags(r)
	c.C = r < a
	c.O = ^(a^b)&(a^r)&0x8000 != 0
	return r
}

func (c *CPU) logicFlags(r uint16) uint16 {
	c.updateFlags(r)
	c.C, c.O = false, false
	return r
}

func (c *CPU) cond(name string) (bool, bool) {
	switch name {
	case "e", "z":
		return c.Z, true
	case "ne", "nz":
		return !c.Z, true
	case "g":
		return !c.Z && c.S == c.O, true
	case "l":
		return c.S != c.O, true
	case "ge":
		return c.S == c.O, true
	case "le":
		return c.Z || c.S != c.O, true
	case "b", "c":
		return c.C, true
	case "nb":
		return !c.C, true
	case "a":
		return !c.C && !c.Z, true
	case "na":
		return c.C || c.Z, true
	}
	return false, false
}

func argc(ins asm.Instr, n int) error {
	if len(ins.Args) != n {
		return fmt.Errorf("%s expects %d operands", ins.Op, n)
	}
	return nil
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC < 0 || c.PC >= len(c.code) {
		return fmt.Errorf("pc %d outside program", c.PC)
	}
	ins := c.code[c.PC]
	c.Steps++
	if err := c.exec(ins); err != nil {
		return fmt.Errorf("line %d: %s: %w", ins.Line, ins.Op, err)
	}
	return nil
}

func (c *CPU) exec(ins asm.Instr) error {
	next := c.PC + 1

	switch ins.Op {
	case "hlt":
		c.Halted = true
		return nil

	case "nop":

	case "mov", "lea":
		if err := argc(ins, 2); err != nil {
			return err
		}
		var v uint16
		var err error
		if ins.Op == "lea" {
			v, err = c.address(ins.Args[1])
		} else {
			v, err = c.read(ins.Args[1])
		}
		if err != nil {
			return err
		}
		if err := c.write(ins.Args[0], v); err != nil {
			return err
		}

	case "add", "sub", "and", "or", "xor", "shl", "shr", "sar", "cmp", "test":
		if err := argc(ins, 2); err != nil {
			return err
		}
		a, err := c.read(ins.Args[0])
		if err != nil {
			return err
		}
		b, err := c.read(ins.Args[1])
		if err != nil {
			return err
		}
		var r uint16
		switch ins.Op {
		case "add":
			r = c.addFlags(a, b)
		case "sub", "cmp":
			r = c.subFlags(a, b)
		case "and", "test":
			r = c.logicFlags(a & b)
		case "or":
			r = c.logicFlags(a | b)
		case "xor":
			r = c.logicFlags(a ^ b)
		case "shl":
			r = c.logicFlags(a << (b & 0x1F))
		case "shr":
			r = c.logicFlags(a >> (b & 0x1F))
		case "sar":
			r = c.logicFlags(uint16(int16(a) >> (b & 0x1F)))
		}
		if ins.Op == "cmp" || ins.Op == "test" {
			break
		}
		if err := c.write(ins.Args[0], r); err != nil {
			return err
		}

	case "neg", "not":
		if err := argc(ins, 1); err != nil {
			return err
		}
		a, err := c.read(ins.Args[0])
		if err != nil {
			return err
		}
		r := ^a
		if ins.Op == "neg" {
			r = c.subFlags(0, a)
		}
		if err := c.write(ins.Args[0], r); err != nil {
			return err
		}

	case "mul":
		if err := argc(ins, 1); err != nil {
			return err
		}
		b, err := c.read(ins.Args[0])
		if err != nil {
			return err
		}
		p := uint32(c.Regs[asm.AX]) * uint32(b)
		c.Regs[asm.AX] = uint16(p)
		c.Regs[asm.DX] = uint16(p >> 16)
		c.C = c.Regs[asm.DX] != 0
		c.O = c.C

	case "div":
		if err := argc(ins, 1); err != nil {
			return err
		}
		b, err := c.read(ins.Args[0])
		if err != nil {
			return err
		}
		if b == 0 {
			return ErrDivideByZero
		}
		n := uint32(c.Regs[asm.DX])<<16 | uint32(c.Regs[asm.AX])
		q := n / uint32(b)
		if q > 0xFFFF {
			return errors.New("quotient overflow")
		}
		c.Regs[asm.AX] = uint16(q)
		c.Regs[asm.DX] = uint16(n % uint32(b))

	case "push":
		if err := argc(ins, 1); err != nil {
			return err
		}
		v, err := c.read(ins.Args[0])
		if err != nil {
			return err
		}
		c.push(v)

	case "pop":
		if err := argc(ins, 1); err != nil {
			return err
		}
		if err := c.write(ins.Args[0], c.pop()); err != nil {
			return err
		}

	case "call":
		if err := argc(ins, 1); err != nil {
			return err
		}
		t, err := c.target(ins.Args[0])
		if err != nil {
			return err
		}
		c.push(uint16(next))
		next = t

	case "ret":
		next = int(c.pop())

	case "leave":
		c.Regs[asm.SP] = c.Regs[asm.BP]
		c.Regs[asm.BP] = c.pop()

	case "jmp":
		if err := argc(ins, 1); err != nil {
			return err
		}
		t, err := c.target(ins.Args[0])
		if err != nil {
			return err
		}
		next = t

	default:
		if cc, ok := jumpCond(ins.Op); ok {
			if err := argc(ins, 1); err != nil {
				return err
			}
			taken, _ := c.cond(cc)
			if taken {
				t, err := c.target(ins.Args[0])
				if err != nil {
					return err
				}
				next = t
			}
			break
		}
		if len(ins.Op) > 3 && ins.Op[:3] == "set" {
			v, ok := c.cond(ins.Op[3:])
			if !ok {
				return fmt.Errorf("unknown condition")
			}
			if err := argc(ins, 1); err != nil {
				return err
			}
			var r uint16
			if v {
				r = 1
			}
			if err := c.write(ins.Args[0], r); err != nil {
				return err
			}
			break
		}
		return fmt.Errorf("unknown instruction")
	}

	c.PC = next
	return nil
}

func jumpCond(op string) (string, bool) {
	switch op {
	case "jz", "jnz", "jc", "jl", "jle", "jg", "jge":
		return op[1:], true
	}
	return "", false
}

// Run steps until hlt or until maxSteps instructions have executed.
func (c *CPU) Run(maxSteps int) error {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	for !c.Halted {
		if c.Steps >= maxSteps {
			return ErrStepLimit
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}
