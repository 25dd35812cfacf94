package compiler

import (
	"errors"
	"fmt"
	"testing"

	"wordcc/pkg/asm"
	"wordcc/pkg/cpu"
)

// runUnit decodes, compiles and runs a JSON unit, returning the halted CPU.
func runUnit(t *testing.T, src string) *cpu.CPU {
	t.Helper()
	u, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	code, err := Generate(u, Options{Entry: "main"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	c, err := cpu.LoadText(code)
	if err != nil {
		t.Fatalf("Load failed: %v\nCode:\n%s", err, code)
	}
	if err := c.Run(0); err != nil {
		t.Fatalf("Run failed: %v\nCode:\n%s", err, code)
	}
	if c.Reg(asm.SP) != cpu.StackTop {
		t.Errorf("sp is 0x%X after halt, want 0x%X", c.Reg(asm.SP), cpu.StackTop)
	}
	return c
}

// runMain runs a unit whose only function is main with the given body.
func runMain(t *testing.T, body string) uint16 {
	t.Helper()
	src := fmt.Sprintf(`{"functions": [{"name": "main", "return": "long", "body": [%s]}]}`, body)
	return runUnit(t, src).Reg(asm.AX)
}

func TestExpressions_E2E(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected uint16
	}{
		{"mul", `{"bin": {"op": "*", "l": {"int": 6}, "r": {"int": 7}}}`, 42},
		{"div", `{"bin": {"op": "/", "l": {"int": 100}, "r": {"int": 10}}}`, 10},
		{"mod", `{"bin": {"op": "%", "l": {"int": 10}, "r": {"int": 3}}}`, 1},
		{"sub", `{"bin": {"op": "-", "l": {"int": 3}, "r": {"int": 10}}}`, 0xFFF9},
		{"or", `{"bin": {"op": "|", "l": {"int": 240}, "r": {"int": 15}}}`, 255},
		{"xor", `{"bin": {"op": "^", "l": {"int": 255}, "r": {"int": 15}}}`, 240},
		{"bnot", `{"bnot": {"int": 0}}`, 0xFFFF},
		{"neg", `{"neg": {"int": 5}}`, 0xFFFB},
		{"shl", `{"bin": {"op": "<<", "l": {"int": 1}, "r": {"int": 4}}}`, 16},
		{"sar", `{"bin": {"op": ">>", "l": {"neg": {"int": 8}}, "r": {"int": 1}}}`, 0xFFFC},
		{"shr", `{"bin": {"op": ">>", "l": {"uint": 65528}, "r": {"int": 1}}}`, 0x7FFC},
		{"signed less", `{"bin": {"op": "<", "l": {"neg": {"int": 1}}, "r": {"int": 1}}}`, 1},
		{"unsigned less", `{"bin": {"op": "<", "l": {"uint": 65535}, "r": {"uint": 1}}}`, 0},
		{"equal", `{"bin": {"op": "==", "l": {"int": 4}, "r": {"int": 4}}}`, 1},
		{"not equal", `{"bin": {"op": "!=", "l": {"int": 4}, "r": {"int": 4}}}`, 0},
		{"greater equal", `{"bin": {"op": ">=", "l": {"int": 4}, "r": {"int": 5}}}`, 0},
		{"and", `{"and": [{"int": 1}, {"int": 0}]}`, 0},
		{"and true", `{"and": [{"int": 2}, {"int": 3}]}`, 1},
		{"or short", `{"or": [{"int": 9}, {"int": 0}]}`, 1},
		{"or false", `{"or": [{"int": 0}, {"int": 0}]}`, 0},
		{"conditional", `{"cond": [{"int": 0}, {"int": 1}, {"int": 2}]}`, 2},
		{"string char", `{"deref": {"bin": {"op": "+", "l": {"str": "hey"}, "r": {"int": 1}}}}`, 'e'},
		{"string index", `{"index": [{"str": "hey"}, {"int": 2}]}`, 'y'},
		{"cast", `{"cast": {"type": "uchar", "expr": {"int": 65}}}`, 65},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := runMain(t, fmt.Sprintf(`{"return": %s}`, tc.expr)); got != tc.expected {
				t.Errorf("expected 0x%X, got 0x%X", tc.expected, got)
			}
		})
	}
}

func TestRecursion_E2E(t *testing.T) {
	src := `{"functions": [
	  {"name": "fact", "return": "long", "params": [{"name": "n", "type": "long"}], "body": [
	    {"if": {"cond": {"bin": {"op": "<=", "l": {"var": "n"}, "r": {"int": 1}}}, "then": {"return": {"int": 1}}}},
	    {"return": {"bin": {"op": "*", "l": {"var": "n"},
	      "r": {"call": {"fn": {"var": "fact"}, "args": [{"bin": {"op": "-", "l": {"var": "n"}, "r": {"int": 1}}}]}}}}}
	  ]},
	  {"name": "main", "return": "long", "body": [
	    {"return": {"call": {"fn": {"var": "fact"}, "args": [{"int": 5}]}}}
	  ]}
	]}`
	if got := runUnit(t, src).Reg(asm.AX); got != 120 {
		t.Errorf("fact(5): expected 120, got %d", got)
	}
}

func TestArgumentOrder_E2E(t *testing.T) {
	src := `{"functions": [
	  {"name": "digits", "return": "long",
	   "params": [{"name": "a", "type": "long"}, {"name": "b", "type": "long"}, {"name": "c", "type": "long"}],
	   "body": [
	    {"return": {"bin": {"op": "+",
	      "l": {"bin": {"op": "+", "l": {"bin": {"op": "*", "l": {"var": "a"}, "r": {"int": 100}}},
	                               "r": {"bin": {"op": "*", "l": {"var": "b"}, "r": {"int": 10}}}}},
	      "r": {"var": "c"}}}}
	  ]},
	  {"name": "main", "return": "long", "body": [
	    {"return": {"call": {"fn": {"var": "digits"}, "args": [
	      {"int": 1},
	      {"call": {"fn": {"var": "digits"}, "args": [{"int": 0}, {"int": 0}, {"int": 2}]}},
	      {"int": 3}]}}}
	  ]}
	]}`
	if got := runUnit(t, src).Reg(asm.AX); got != 123 {
		t.Errorf("expected 123, got %d", got)
	}
}

func TestLoops_E2E(t *testing.T) {
	t.Run("for with break and continue", func(t *testing.T) {
		got := runMain(t, `
		  {"decl": {"name": "s", "type": "long", "init": {"int": 0}}},
		  {"decl": {"name": "i", "type": "long"}},
		  {"for": {
		    "init": {"assign": [{"var": "i"}, {"int": 0}]},
		    "cond": {"bin": {"op": "<", "l": {"var": "i"}, "r": {"int": 10}}},
		    "post": {"preinc": {"var": "i"}},
		    "body": {"block": [
		      {"if": {"cond": {"bin": {"op": "==", "l": {"var": "i"}, "r": {"int": 5}}}, "then": {"continue": null}}},
		      {"if": {"cond": {"bin": {"op": "==", "l": {"var": "i"}, "r": {"int": 8}}}, "then": {"break": null}}},
		      {"expr": {"assign": [{"var": "s"}, {"bin": {"op": "+", "l": {"var": "s"}, "r": {"var": "i"}}}]}}
		    ]}}},
		  {"return": {"var": "s"}}`)
		if got != 23 {
			t.Errorf("expected 23, got %d", got)
		}
	})

	t.Run("while", func(t *testing.T) {
		got := runMain(t, `
		  {"decl": {"name": "n", "type": "long", "init": {"int": 4}}},
		  {"decl": {"name": "s", "type": "long", "init": {"int": 0}}},
		  {"while": {"cond": {"bin": {"op": ">", "l": {"var": "n"}, "r": {"int": 0}}}, "body": {"block": [
		    {"expr": {"assign": [{"var": "s"}, {"bin": {"op": "+", "l": {"var": "s"}, "r": {"var": "n"}}}]}},
		    {"expr": {"postdec": {"var": "n"}}}
		  ]}}},
		  {"return": {"var": "s"}}`)
		if got != 10 {
			t.Errorf("expected 10, got %d", got)
		}
	})

	t.Run("do while", func(t *testing.T) {
		got := runMain(t, `
		  {"decl": {"name": "x", "type": "long", "init": {"int": 1}}},
		  {"do": {"body": {"expr": {"assign": [{"var": "x"}, {"bin": {"op": "*", "l": {"var": "x"}, "r": {"int": 2}}}]}},
		          "cond": {"bin": {"op": "<", "l": {"var": "x"}, "r": {"int": 100}}}}},
		  {"return": {"var": "x"}}`)
		if got != 128 {
			t.Errorf("expected 128, got %d", got)
		}
	})

	t.Run("goto", func(t *testing.T) {
		got := runMain(t, `
		  {"decl": {"name": "i", "type": "long", "init": {"int": 0}}},
		  {"label": "top"},
		  {"expr": {"postinc": {"var": "i"}}},
		  {"if": {"cond": {"bin": {"op": "<", "l": {"var": "i"}, "r": {"int": 5}}}, "then": {"goto": "top"}}},
		  {"return": {"var": "i"}}`)
		if got != 5 {
			t.Errorf("expected 5, got %d", got)
		}
	})
}

func TestSwitch_E2E(t *testing.T) {
	const unit = `{"functions": [
	  {"name": "classify", "return": "long", "params": [{"name": "v", "type": "long"}], "body": [
	    {"decl": {"name": "r", "type": "long", "init": {"int": 0}}},
	    {"switch": {"expr": {"var": "v"}, "body": {"block": [
	      {"case": 1}, {"return": {"int": 10}},
	      {"case": 2}, {"case": 3}, {"expr": {"assign": [{"var": "r"}, {"int": 20}]}}, {"break": null},
	      %s
	    ]}}},
	    {"return": {"var": "r"}}
	  ]},
	  {"name": "main", "return": "long", "body": [
	    {"return": {"call": {"fn": {"var": "classify"}, "args": [{"int": %d}]}}}
	  ]}
	]}`
	const withDefault = `{"default": null}, {"expr": {"assign": [{"var": "r"}, {"int": 99}]}}`
	const noDefault = `{"case": 4}, {"expr": {"assign": [{"var": "r"}, {"int": 40}]}}`

	tests := []struct {
		tail     string
		v        int
		expected uint16
	}{
		{withDefault, 1, 10},
		{withDefault, 2, 20},
		{withDefault, 3, 20},
		{withDefault, 7, 99},
		{noDefault, 4, 40},
		{noDefault, 7, 0},
	}
	for _, tc := range tests {
		got := runUnit(t, fmt.Sprintf(unit, tc.tail, tc.v)).Reg(asm.AX)
		if got != tc.expected {
			t.Errorf("classify(%d): expected %d, got %d", tc.v, tc.expected, got)
		}
	}
}

func TestPointers_E2E(t *testing.T) {
	t.Run("array and pointer arithmetic", func(t *testing.T) {
		got := runMain(t, `
		  {"decl": {"name": "arr", "type": "long[3]"}},
		  {"expr": {"assign": [{"index": [{"var": "arr"}, {"int": 0}]}, {"int": 5}]}},
		  {"expr": {"assign": [{"index": [{"var": "arr"}, {"int": 1}]}, {"int": 6}]}},
		  {"expr": {"assign": [{"index": [{"var": "arr"}, {"int": 2}]}, {"int": 7}]}},
		  {"decl": {"name": "p", "type": "long*", "init": {"var": "arr"}}},
		  {"expr": {"postinc": {"var": "p"}}},
		  {"return": {"bin": {"op": "-",
		    "l": {"bin": {"op": "+", "l": {"deref": {"var": "p"}}, "r": {"index": [{"var": "arr"}, {"int": 2}]}}},
		    "r": {"bin": {"op": "-", "l": {"var": "p"}, "r": {"var": "arr"}}}}}}`)
		if got != 12 {
			t.Errorf("expected 12, got %d", got)
		}
	})

	t.Run("struct array through arrow", func(t *testing.T) {
		src := `{
		  "structs": [{"tag": "pt", "fields": [{"name": "x", "type": "long"}, {"name": "y", "type": "long"}]}],
		  "functions": [{"name": "main", "return": "long", "body": [
		    {"decl": {"name": "pts", "type": "struct pt[3]"}},
		    {"expr": {"assign": [{"member": {"of": {"index": [{"var": "pts"}, {"int": 1}]}, "field": "y"}}, {"int": 9}]}},
		    {"decl": {"name": "q", "type": "struct pt*", "init": {"var": "pts"}}},
		    {"expr": {"preinc": {"var": "q"}}},
		    {"return": {"bin": {"op": "+",
		      "l": {"arrow": {"of": {"var": "q"}, "field": "y"}},
		      "r": {"bin": {"op": "-", "l": {"var": "q"}, "r": {"var": "pts"}}}}}}
		  ]}]
		}`
		if got := runUnit(t, src).Reg(asm.AX); got != 10 {
			t.Errorf("expected 10, got %d", got)
		}
	})

	t.Run("negative pointer difference", func(t *testing.T) {
		src := `{
		  "structs": [{"tag": "pt", "fields": [{"name": "x", "type": "long"}, {"name": "y", "type": "long"}]}],
		  "functions": [{"name": "main", "return": "long", "body": [
		    {"decl": {"name": "pts", "type": "struct pt[3]"}},
		    {"decl": {"name": "p", "type": "struct pt*", "init": {"var": "pts"}}},
		    {"decl": {"name": "q", "type": "struct pt*", "init": {"var": "pts"}}},
		    {"expr": {"preinc": {"var": "q"}}},
		    {"expr": {"preinc": {"var": "q"}}},
		    {"return": {"bin": {"op": "-", "l": {"var": "p"}, "r": {"var": "q"}}}}
		  ]}]
		}`
		if got := int16(runUnit(t, src).Reg(asm.AX)); got != -2 {
			t.Errorf("expected -2, got %d", got)
		}
	})

	t.Run("address of local", func(t *testing.T) {
		got := runMain(t, `
		  {"decl": {"name": "x", "type": "long", "init": {"int": 1}}},
		  {"decl": {"name": "p", "type": "long*", "init": {"ref": {"var": "x"}}}},
		  {"expr": {"assign": [{"deref": {"var": "p"}}, {"int": 31}]}},
		  {"return": {"var": "x"}}`)
		if got != 31 {
			t.Errorf("expected 31, got %d", got)
		}
	})

	t.Run("function pointer", func(t *testing.T) {
		src := `{"functions": [
		  {"name": "twice", "return": "long", "params": [{"name": "n", "type": "long"}], "body": [
		    {"return": {"bin": {"op": "+", "l": {"var": "n"}, "r": {"var": "n"}}}}
		  ]},
		  {"name": "main", "return": "long", "body": [
		    {"decl": {"name": "fp", "type": "(fn(long)long)*", "init": {"var": "twice"}}},
		    {"return": {"call": {"fn": {"var": "fp"}, "args": [{"int": 21}]}}}
		  ]}
		]}`
		if got := runUnit(t, src).Reg(asm.AX); got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	})
}

func TestGlobals_E2E(t *testing.T) {
	src := `{
	  "globals": [
	    {"name": "counter", "type": "long", "init": [5]},
	    {"name": "msg", "type": "char[]", "str": "ok"},
	    {"name": "seed", "type": "long", "init": [2], "static": true}
	  ],
	  "functions": [
	    {"name": "bump", "return": "void", "body": [
	      {"expr": {"assign": [{"var": "counter"}, {"bin": {"op": "+", "l": {"var": "counter"}, "r": {"int": 1}}}]}}
	    ]},
	    {"name": "main", "return": "long", "body": [
	      {"expr": {"call": {"fn": {"var": "bump"}}}},
	      {"expr": {"call": {"fn": {"var": "bump"}}}},
	      {"return": {"bin": {"op": "+",
	        "l": {"bin": {"op": "+", "l": {"var": "counter"}, "r": {"var": "seed"}}},
	        "r": {"index": [{"var": "msg"}, {"int": 1}]}}}}
	    ]}
	  ]
	}`
	c := runUnit(t, src)
	if got := c.Reg(asm.AX); got != 9+'k' {
		t.Errorf("expected %d, got %d", 9+'k', got)
	}
	addr, ok := c.Symbol("counter")
	if !ok {
		t.Fatal("counter not loaded")
	}
	if got := c.ReadMem(addr); got != 7 {
		t.Errorf("counter in memory: expected 7, got %d", got)
	}
}

func TestSequenceAndLogicalNot_E2E(t *testing.T) {
	got := runMain(t, `
	  {"decl": {"name": "x", "type": "long"}},
	  {"return": {"seq": [{"assign": [{"var": "x"}, {"int": 3}]}, {"bin": {"op": "+", "l": {"var": "x"}, "r": {"int": 1}}}]}}`)
	if got != 4 {
		t.Errorf("comma: expected 4, got %d", got)
	}

	for _, tc := range []struct {
		x        int
		expected uint16
	}{{0, 1}, {3, 2}} {
		got := runMain(t, fmt.Sprintf(`
		  {"decl": {"name": "x", "type": "long", "init": {"int": %d}}},
		  {"if": {"cond": {"lnot": {"var": "x"}}, "then": {"return": {"int": 1}}}},
		  {"return": {"int": 2}}`, tc.x))
		if got != tc.expected {
			t.Errorf("!%d: expected %d, got %d", tc.x, tc.expected, got)
		}
	}

	tests := []struct {
		name     string
		expr     string
		expected uint16
	}{
		{"and not zero", `{"and": [{"int": 1}, {"lnot": {"var": "z"}}]}`, 1},
		{"and not nonzero", `{"and": [{"int": 1}, {"lnot": {"var": "n"}}]}`, 0},
		{"or not nonzero", `{"or": [{"lnot": {"var": "n"}}, {"int": 0}]}`, 0},
		{"or not zero", `{"or": [{"int": 0}, {"lnot": {"var": "z"}}]}`, 1},
		{"double not in and", `{"and": [{"lnot": {"lnot": {"var": "n"}}}, {"int": 1}]}`, 1},
		{"double not of zero", `{"or": [{"lnot": {"lnot": {"var": "z"}}}, {"int": 0}]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runMain(t, fmt.Sprintf(`
			  {"decl": {"name": "z", "type": "long", "init": {"int": 0}}},
			  {"decl": {"name": "n", "type": "long", "init": {"int": 4}}},
			  {"return": %s}`, tt.expr))
			if got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}

	got = runMain(t, `
	  {"decl": {"name": "x", "type": "long", "init": {"int": 3}}},
	  {"if": {"cond": {"lnot": {"lnot": {"var": "x"}}}, "then": {"return": {"int": 1}}}},
	  {"return": {"int": 2}}`)
	if got != 1 {
		t.Errorf("!!3: expected 1, got %d", got)
	}
}

// The assignment sequence leaves the same value in memory and in ax as a
// direct store.
func TestAssignMatchesDirectStore_E2E(t *testing.T) {
	c := runUnit(t, `{
	  "globals": [{"name": "g", "type": "long"}],
	  "functions": [{"name": "main", "return": "long", "body": [
	    {"expr": {"assign": [{"var": "g"}, {"int": 5}]}}
	  ]}]
	}`)

	p := asm.NewProgram()
	s := NewState(p, nil)
	s.CallSym("main")
	s.Halt()
	s.DeclareWord("g", 0)
	s.FunctionPrologue("main")
	s.MovImm(asm.AX, 5)
	s.StoreGlobal("g", asm.AX)
	s.Leave()
	s.Ret()
	direct, err := cpu.LoadText(p.String())
	if err != nil {
		t.Fatal(err)
	}
	if err := direct.Run(0); err != nil {
		t.Fatal(err)
	}

	ga, _ := c.Symbol("g")
	da, _ := direct.Symbol("g")
	if c.ReadMem(ga) != direct.ReadMem(da) || c.Reg(asm.AX) != direct.Reg(asm.AX) {
		t.Errorf("assignment left g=%d ax=%d, direct store g=%d ax=%d",
			c.ReadMem(ga), c.Reg(asm.AX), direct.ReadMem(da), direct.Reg(asm.AX))
	}
}

// PopLong either pops or reads the saved word in place; both must recover
// the pushed value.
func TestPopLongPaths_E2E(t *testing.T) {
	p := asm.NewProgram()
	s := NewState(p, nil)
	s.CallSym("main")
	s.Halt()
	s.FunctionPrologue("main")
	s.MovImm(asm.AX, 11)
	first := s.PushLong(asm.AX)
	s.MovImm(asm.AX, 22)
	second := s.PushLong(asm.AX)
	s.PopLong(first, asm.BX)
	s.PopLong(second, asm.CX)
	s.MovRR(asm.AX, asm.BX)
	s.Add(asm.AX, asm.CX)
	s.Leave()
	s.Ret()

	assertContains(t, p.String(), "mov bx, -1[bp]\n        pop cx\n")
	if s.StackSize() != 1 {
		t.Errorf("stack size %d, want 1", s.StackSize())
	}

	c, err := cpu.LoadText(p.String())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(0); err != nil {
		t.Fatal(err)
	}
	if got := c.Reg(asm.AX); got != 33 {
		t.Errorf("expected 33, got %d", got)
	}
}

func TestRunaway_E2E(t *testing.T) {
	u, err := Decode([]byte(`{"functions": [{"name": "main", "return": "long", "body": [
	  {"while": {"cond": {"int": 1}, "body": {"block": []}}}
	]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	code, err := Generate(u, Options{Entry: "main"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := cpu.LoadText(code)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(500); !errors.Is(err, cpu.ErrStepLimit) {
		t.Errorf("expected step limit, got %v", err)
	}
}
