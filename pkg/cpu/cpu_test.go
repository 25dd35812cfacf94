package cpu

import (
	"errors"
	"strings"
	"testing"

	"wordcc/pkg/asm"
)

// program builds a listing from instruction lines; "name:" lines are labels.
func program(lines ...string) *asm.Program {
	p := asm.NewProgram()
	for _, l := range lines {
		if name, ok := strings.CutSuffix(l, ":"); ok {
			p.AddLabel(name)
			continue
		}
		p.AddInstruction(l)
	}
	return p
}

func run(t *testing.T, p *asm.Program) *CPU {
	t.Helper()
	c, err := LoadText(p.String())
	if err != nil {
		t.Fatalf("load failed: %v\n%s", err, p)
	}
	if err := c.Run(10_000); err != nil {
		t.Fatalf("run failed: %v\n%s", err, p)
	}
	return c
}

func TestALU(t *testing.T) {
	tests := []struct {
		name string
		ops  []string
		want uint16
	}{
		{"add", []string{"mov ax, 10", "mov cx, 20", "add ax, cx"}, 30},
		{"sub wraps", []string{"mov ax, 1", "sub ax, 2"}, 0xFFFF},
		{"and", []string{"mov ax, 12", "mov cx, 10", "and ax, cx"}, 8},
		{"or", []string{"mov ax, 12", "mov cx, 3", "or ax, cx"}, 15},
		{"xor", []string{"mov ax, 12", "mov cx, 10", "xor ax, cx"}, 6},
		{"shl", []string{"mov ax, 3", "mov cx, 4", "shl ax, cx"}, 48},
		{"shr", []string{"mov ax, -16", "mov cx, 2", "shr ax, cx"}, 0x3FFC},
		{"sar", []string{"mov ax, -16", "mov cx, 2", "sar ax, cx"}, 0xFFFC},
		{"neg", []string{"mov ax, 5", "neg ax"}, 0xFFFB},
		{"not", []string{"mov ax, 0", "not ax"}, 0xFFFF},
		{"mul", []string{"mov ax, 300", "mov cx, 7", "mul cx"}, 2100},
		{"div", []string{"mov ax, 17", "mov dx, 0", "mov cx, 5", "div cx"}, 3},
		{"mod", []string{"mov ax, 17", "mov dx, 0", "mov cx, 5", "div cx", "mov ax, dx"}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := run(t, program(append(tc.ops, "hlt")...))
			if got := c.Reg(asm.AX); got != tc.want {
				t.Errorf("ax = 0x%04X, want 0x%04X", got, tc.want)
			}
		})
	}
}

func TestSetConditions(t *testing.T) {
	tests := []struct {
		a, b int
		cond string
		want uint16
	}{
		{1, 2, "l", 1},
		{-1, 2, "l", 1},
		{-1, 2, "b", 0},
		{-1, 2, "a", 1},
		{2, 2, "e", 1},
		{2, 2, "ne", 0},
		{2, 2, "le", 1},
		{2, 2, "na", 1},
		{3, 2, "g", 1},
		{3, 2, "ge", 1},
		{2, 3, "nb", 0},
	}
	for _, tc := range tests {
		c := run(t, program(
			"mov ax, "+asm.Imm(int64(tc.a)),
			"mov cx, "+asm.Imm(int64(tc.b)),
			"cmp ax, cx",
			"set"+tc.cond+" ax",
			"hlt",
		))
		if got := c.Reg(asm.AX); got != tc.want {
			t.Errorf("%d set%s %d = %d, want %d", tc.a, tc.cond, tc.b, got, tc.want)
		}
	}
}

func TestCallFrame(t *testing.T) {
	// f(a, b) = a - b, called with 9 and 4.
	c := run(t, program(
		"call main",
		"hlt",
		"main:",
		"push bp",
		"mov bp, sp",
		"sub sp, 2",
		"mov ax, 4",
		"mov -1[bp], ax",
		"mov ax, 9",
		"mov -2[bp], ax",
		"lea ax, f",
		"call ax",
		"add sp, 2",
		"leave",
		"ret",
		"f:",
		"push bp",
		"mov bp, sp",
		"mov ax, 2[bp]",
		"mov cx, 3[bp]",
		"sub ax, cx",
		"leave",
		"ret",
	))
	if got := c.Reg(asm.AX); got != 5 {
		t.Errorf("ax = %d, want 5", got)
	}
	if c.Reg(asm.SP) != StackTop || c.Reg(asm.BP) != StackTop {
		t.Errorf("stack not restored: sp=0x%04X bp=0x%04X", c.Reg(asm.SP), c.Reg(asm.BP))
	}
}

func TestJumps(t *testing.T) {
	// Sum 1..10 with a counted loop.
	c := run(t, program(
		"mov ax, 0",
		"mov cx, 10",
		"L0:",
		"add ax, cx",
		"sub cx, 1",
		"test cx, cx",
		"jnz L0",
		"hlt",
	))
	if got := c.Reg(asm.AX); got != 55 {
		t.Errorf("ax = %d, want 55", got)
	}
}

func TestDataSymbols(t *testing.T) {
	p := program(
		"mov ax, LC0",
		"lea bx, g",
		"mov 1[bx], ax",
		"mov g, ax",
		"hlt",
	)
	p.AddDeclaration("LC0", "42")
	p.AddDeclaration("g", "0, 0")

	c := run(t, p)
	addr, ok := c.Symbol("g")
	if !ok {
		t.Fatalf("symbol g missing")
	}
	if addr != DataBase+1 {
		t.Errorf("g at 0x%04X, want 0x%04X", addr, DataBase+1)
	}
	if c.ReadMem(addr) != 42 || c.ReadMem(addr+1) != 42 {
		t.Errorf("g = %d, %d", c.ReadMem(addr), c.ReadMem(addr+1))
	}
}

func TestRunErrors(t *testing.T) {
	c, err := LoadText(program("L0:", "jmp L0").String())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(100); !errors.Is(err, ErrStepLimit) {
		t.Errorf("expected step limit, got %v", err)
	}

	c, err = LoadText(program("mov ax, 1", "mov cx, 0", "div cx", "hlt").String())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(100); !errors.Is(err, ErrDivideByZero) {
		t.Errorf("expected divide by zero, got %v", err)
	}

	c, err = LoadText(program("mov ax, 1").String())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(100); err == nil || !strings.Contains(err.Error(), "outside program") {
		t.Errorf("expected running off the end to fail, got %v", err)
	}

	c, err = LoadText(program("frob ax", "hlt").String())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(100); err == nil || !strings.Contains(err.Error(), "unknown instruction") {
		t.Errorf("expected unknown instruction, got %v", err)
	}
}
