package asm

import (
	"fmt"
	"strconv"
)

// Reg names one machine register.
type Reg int

const (
	AX Reg = iota // accumulator, holds every expression result
	CX            // counter
	DX            // data, high word of mul and remainder of div
	BX            // base
	BP            // frame pointer
	SP            // stack pointer
	ST0           // floating-point placeholder, never allocated
)

var regNames = [...]string{
	AX:  "ax",
	CX:  "cx",
	DX:  "dx",
	BX:  "bx",
	BP:  "bp",
	SP:  "sp",
	ST0: "st0",
}

func (r Reg) String() string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("reg(%d)", int(r))
	}
	return regNames[r]
}

// ParseReg maps a register name back to its Reg.
func ParseReg(name string) (Reg, bool) {
	for i, n := range regNames {
		if n == name {
			return Reg(i), true
		}
	}
	return 0, false
}

// Mem renders a base+offset memory operand, e.g. -3[bp].
func Mem(off int, base Reg) string {
	return strconv.Itoa(off) + "[" + base.String() + "]"
}

// Imm renders an immediate operand.
func Imm(v int64) string {
	return strconv.FormatInt(v, 10)
}

// LabelName renders the symbol of a numbered label.
func LabelName(id int) string {
	return "L" + strconv.Itoa(id)
}
