package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// OperandKind classifies a parsed operand.
type OperandKind int

const (
	OperandReg OperandKind = iota
	OperandImm
	OperandMem
	OperandSym
)

// Operand is one parsed instruction argument.
//
//	ax      -> {Kind: OperandReg, Reg: AX}
//	5       -> {Kind: OperandImm, Imm: 5}
//	-2[bp]  -> {Kind: OperandMem, Off: -2, Reg: BP}
//	LC0     -> {Kind: OperandSym, Sym: "LC0"}
type Operand struct {
	Kind OperandKind
	Reg  Reg
	Off  int
	Imm  int64
	Sym  string
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandReg:
		return o.Reg.String()
	case OperandImm:
		return Imm(o.Imm)
	case OperandMem:
		return Mem(o.Off, o.Reg)
	default:
		return o.Sym
	}
}

// Instr is one parsed code-section instruction.
type Instr struct {
	Op   string
	Args []Operand
	Line int
}

// Datum is one parsed data-section declaration. Strings are stored one
// character per word followed by a zero word.
type Datum struct {
	Name  string
	Words []int64
	Local bool
	Line  int
}

// Listing is a rendered program read back into structured form.
type Listing struct {
	Code   []Instr
	Labels map[string]int // label -> index into Code
	Data   []Datum
}

// Parse reads the text produced by Program.String.
func Parse(text string) (*Listing, error) {
	l := &Listing{Labels: make(map[string]int)}
	section := ""
	var pending []string

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)
		switch trimmed {
		case ".PROGRAM", ".DATA":
			section = trimmed
			continue
		case "":
			continue
		}

		switch section {
		case ".PROGRAM":
			labels, rest, err := splitLabels(stripComments(trimmed), lineNo)
			if err != nil {
				return nil, err
			}
			pending = append(pending, labels...)
			if rest == "" {
				continue
			}
			ins, err := parseInstr(rest, lineNo)
			if err != nil {
				return nil, err
			}
			for _, name := range pending {
				if _, dup := l.Labels[name]; dup {
					return nil, fmt.Errorf("duplicate label '%s' on line %d", name, lineNo)
				}
				l.Labels[name] = len(l.Code)
			}
			pending = pending[:0]
			l.Code = append(l.Code, ins)
		case ".DATA":
			d, err := parseDatum(trimmed, lineNo)
			if err != nil {
				return nil, err
			}
			l.Data = append(l.Data, d)
		default:
			return nil, fmt.Errorf("text outside any section on line %d", lineNo)
		}
	}

	// Trailing labels address one past the last instruction.
	for _, name := range pending {
		l.Labels[name] = len(l.Code)
	}
	return l, nil
}

func splitLabels(line string, lineNo int) ([]string, string, error) {
	var labels []string
	line = strings.TrimSpace(line)
	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		before := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(before, " \t") {
			break
		}
		if !isIdentifier(before) {
			return nil, "", fmt.Errorf("invalid label '%s' on line %d", before, lineNo)
		}
		labels = append(labels, before)
		line = strings.TrimSpace(line[colon+1:])
	}
	return labels, line, nil
}

func stripComments(line string) string {
	if cut := strings.IndexByte(line, '#'); cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseInstr(text string, lineNo int) (Instr, error) {
	ins := Instr{Line: lineNo}
	op, rest, _ := strings.Cut(text, " ")
	ins.Op = strings.ToLower(op)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ins, nil
	}
	for _, tok := range strings.Split(rest, ",") {
		arg, err := parseOperand(strings.TrimSpace(tok), lineNo)
		if err != nil {
			return ins, err
		}
		ins.Args = append(ins.Args, arg)
	}
	return ins, nil
}

func parseOperand(tok string, lineNo int) (Operand, error) {
	if r, ok := ParseReg(tok); ok {
		return Operand{Kind: OperandReg, Reg: r}, nil
	}
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return Operand{Kind: OperandImm, Imm: v}, nil
	}
	if open := strings.IndexByte(tok, '['); open >= 0 && strings.HasSuffix(tok, "]") {
		off, err := strconv.Atoi(tok[:open])
		if err != nil {
			return Operand{}, fmt.Errorf("invalid offset '%s' on line %d", tok, lineNo)
		}
		r, ok := ParseReg(tok[open+1 : len(tok)-1])
		if !ok {
			return Operand{}, fmt.Errorf("invalid register in '%s' on line %d", tok, lineNo)
		}
		return Operand{Kind: OperandMem, Reg: r, Off: off}, nil
	}
	if isIdentifier(tok) {
		return Operand{Kind: OperandSym, Sym: tok}, nil
	}
	return Operand{}, fmt.Errorf("invalid operand '%s' on line %d", tok, lineNo)
}

func parseDatum(line string, lineNo int) (Datum, error) {
	d := Datum{Line: lineNo}
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return d, fmt.Errorf("declaration without name on line %d", lineNo)
	}
	d.Name = strings.TrimSpace(line[:colon])
	if !isIdentifier(d.Name) {
		return d, fmt.Errorf("invalid declaration name '%s' on line %d", d.Name, lineNo)
	}
	lit := strings.TrimSpace(line[colon+1:])

	if strings.HasPrefix(lit, `"`) {
		s, err := strconv.Unquote(lit)
		if err != nil {
			return d, fmt.Errorf("invalid string literal on line %d", lineNo)
		}
		for _, r := range s {
			d.Words = append(d.Words, int64(r))
		}
		d.Words = append(d.Words, 0)
		return d, nil
	}

	if rest, ok := strings.CutSuffix(lit, " local"); ok {
		d.Local = true
		lit = strings.TrimSpace(rest)
	}
	for _, tok := range strings.Split(lit, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(tok), 0, 64)
		if err != nil {
			return d, fmt.Errorf("invalid value '%s' on line %d", strings.TrimSpace(tok), lineNo)
		}
		d.Words = append(d.Words, v)
	}
	return d, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
