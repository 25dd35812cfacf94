package asm

import "strings"

// LineKind tags one buffered output line.
type LineKind int

const (
	Empty LineKind = iota
	Label
	Instruction
	Comment
	Declaration
)

func (k LineKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Label:
		return "label"
	case Instruction:
		return "instruction"
	case Comment:
		return "comment"
	case Declaration:
		return "declaration"
	default:
		return "unknown"
	}
}

// Line is one entry of a Program. Seq is the creation order.
type Line struct {
	Seq  int
	Kind LineKind
	Text string
}

const (
	labelWidth    = 8
	commentIndent = "    "
	codeIndent    = "        "
)

// Program is the append-only output buffer of one compilation unit.
// Code-section lines are rendered in order; declarations are deferred
// to the data section.
type Program struct {
	lines []Line
}

func NewProgram() *Program {
	return &Program{}
}

func (p *Program) add(kind LineKind, text string) {
	p.lines = append(p.lines, Line{Seq: len(p.lines), Kind: kind, Text: text})
}

// AddInstruction appends one instruction, e.g. "mov ax, bx".
func (p *Program) AddInstruction(text string) { p.add(Instruction, text) }

// AddComment appends a comment; the leading "# " is added when rendering.
func (p *Program) AddComment(text string) { p.add(Comment, text) }

// AddLabel appends a label definition. name carries no trailing colon.
func (p *Program) AddLabel(name string) { p.add(Label, name) }

// AddEmpty appends a blank line.
func (p *Program) AddEmpty() { p.add(Empty, "") }

// AddDeclaration appends a static data declaration.
func (p *Program) AddDeclaration(name, literal string) {
	p.add(Declaration, name+":"+commentIndent+literal)
}

// Len reports the number of buffered lines.
func (p *Program) Len() int { return len(p.lines) }

// Lines returns a copy of the buffered lines in creation order.
func (p *Program) Lines() []Line {
	out := make([]Line, len(p.lines))
	copy(out, p.lines)
	return out
}

// arrange moves every label forward past comments, blanks and
// declarations so it sits right before the next instruction or label.
func arrange(lines []Line) {
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Kind != Label {
			continue
		}
		for j := i; j+1 < len(lines); j++ {
			next := lines[j+1].Kind
			if next == Instruction || next == Label {
				break
			}
			lines[j], lines[j+1] = lines[j+1], lines[j]
		}
	}
}

func labelPrefix(name string) string {
	s := name + ":"
	if len(s) >= labelWidth {
		return s + " "
	}
	return s + strings.Repeat(" ", labelWidth-len(s))
}

// String renders the program into its final two-section text.
func (p *Program) String() string {
	lines := make([]Line, len(p.lines), len(p.lines)+1)
	copy(lines, p.lines)
	lines = append(lines, Line{Seq: len(p.lines), Kind: Empty})
	arrange(lines)

	var b strings.Builder
	b.WriteString(".PROGRAM\n")
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		switch l.Kind {
		case Declaration:
			continue
		case Empty:
			b.WriteString("\n")
		case Comment:
			b.WriteString(commentIndent + "# " + l.Text + "\n")
		case Instruction:
			b.WriteString(codeIndent + l.Text + "\n")
		case Label:
			if i+1 < len(lines) && lines[i+1].Kind == Instruction {
				b.WriteString(labelPrefix(l.Text) + lines[i+1].Text + "\n")
				i++
				continue
			}
			b.WriteString(l.Text + ":\n")
		}
	}

	b.WriteString(".DATA\n\n")
	for _, l := range lines {
		if l.Kind == Declaration {
			b.WriteString(l.Text + "\n")
		}
	}
	return b.String()
}
