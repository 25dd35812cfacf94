package compiler

import (
	"fmt"
	"strings"
)

// PointerSize is the width of a pointer in words. Every address names one
// word, so the minimum addressable unit is also one word.
const PointerSize = 1

// Kind is the shape of a semantic type.
type Kind int

const (
	Void Kind = iota
	Char
	UChar
	Short
	UShort
	Long
	ULong
	Float
	Double
	Pointer
	Array
	IncompleteArray
	Function
	StructOrUnion
)

var kindNames = [...]string{
	Void:            "void",
	Char:            "char",
	UChar:           "uchar",
	Short:           "short",
	UShort:          "ushort",
	Long:            "long",
	ULong:           "ulong",
	Float:           "float",
	Double:          "double",
	Pointer:         "pointer",
	Array:           "array",
	IncompleteArray: "incomplete array",
	Function:        "function",
	StructOrUnion:   "struct",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Field is one member of a struct or union with its precomputed offset.
type Field struct {
	Name   string
	Offset int
	Type   *Type
}

// Type is the semantic type attached to every expression node.
// Size and Align are in words.
type Type struct {
	Kind  Kind
	Size  int
	Align int

	Elem *Type // pointee or array element
	Len  int   // array length

	Tag    string
	Union  bool
	Fields []Field

	Return *Type
	Params []*Type
}

// Basic returns a primitive type of kind k.
func Basic(k Kind) *Type {
	switch k {
	case Void:
		return &Type{Kind: Void, Align: 1}
	case Float:
		return &Type{Kind: Float, Size: 2, Align: 1}
	case Double:
		return &Type{Kind: Double, Size: 4, Align: 1}
	default:
		return &Type{Kind: k, Size: 1, Align: 1}
	}
}

func PointerTo(elem *Type) *Type {
	return &Type{Kind: Pointer, Size: PointerSize, Align: PointerSize, Elem: elem}
}

func ArrayOf(elem *Type, n int) *Type {
	return &Type{Kind: Array, Size: elem.Size * n, Align: elem.Align, Elem: elem, Len: n}
}

func IncompleteArrayOf(elem *Type) *Type {
	return &Type{Kind: IncompleteArray, Align: elem.Align, Elem: elem}
}

func FuncOf(ret *Type, params ...*Type) *Type {
	return &Type{Kind: Function, Align: 1, Return: ret, Params: params}
}

// NewStruct lays fields out in order, each at its own alignment.
func NewStruct(tag string, fields ...Field) *Type {
	t := &Type{Kind: StructOrUnion, Tag: tag, Align: 1}
	off := 0
	for _, f := range fields {
		a := max(f.Type.Align, 1)
		off = roundUp(off, a)
		t.Fields = append(t.Fields, Field{Name: f.Name, Offset: off, Type: f.Type})
		off += f.Type.Size
		t.Align = max(t.Align, a)
	}
	t.Size = roundUp(off, t.Align)
	return t
}

// NewUnion places every field at offset 0.
func NewUnion(tag string, fields ...Field) *Type {
	t := &Type{Kind: StructOrUnion, Tag: tag, Union: true, Align: 1}
	size := 0
	for _, f := range fields {
		t.Fields = append(t.Fields, Field{Name: f.Name, Type: f.Type})
		size = max(size, f.Type.Size)
		t.Align = max(t.Align, f.Type.Align)
	}
	t.Size = roundUp(size, t.Align)
	return t
}

func (t *Type) IsInteger() bool {
	switch t.Kind {
	case Char, UChar, Short, UShort, Long, ULong:
		return true
	}
	return false
}

func (t *Type) IsFloat() bool { return t.Kind == Float || t.Kind == Double }

func (t *Type) IsPointer() bool { return t.Kind == Pointer }

func (t *Type) IsArray() bool { return t.Kind == Array || t.Kind == IncompleteArray }

func (t *Type) IsAggregate() bool { return t.Kind == StructOrUnion }

// IsScalar reports whether a value of t fits in the accumulator.
func (t *Type) IsScalar() bool { return t.IsInteger() || t.IsPointer() }

// IsUnsigned reports whether comparisons and shifts on t are unsigned.
func (t *Type) IsUnsigned() bool {
	switch t.Kind {
	case UChar, UShort, ULong, Pointer:
		return true
	}
	return false
}

// Field looks up a struct or union member by name.
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Decay returns the pointer type an array or function value decays to.
func (t *Type) Decay() *Type {
	switch t.Kind {
	case Array, IncompleteArray:
		return PointerTo(t.Elem)
	case Function:
		return PointerTo(t)
	}
	return t
}

// StepSize is the pointer arithmetic unit for a pointer or array type.
func (t *Type) StepSize() int {
	if t.Elem == nil {
		return 1
	}
	return max(t.Elem.Size, 1)
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Pointer:
		return t.Elem.String() + "*"
	case Array:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	case IncompleteArray:
		return t.Elem.String() + "[]"
	case Function:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		return fmt.Sprintf("fn(%s)%s", strings.Join(params, ","), t.Return)
	case StructOrUnion:
		if t.Union {
			return "union " + t.Tag
		}
		return "struct " + t.Tag
	}
	return t.Kind.String()
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// ArgLayout is the packed argument area of one call site.
type ArgLayout struct {
	Size    int
	Offsets []int
}

// ArgPacker computes the packed layout for an ordered list of argument
// types. Implementations must be deterministic.
type ArgPacker interface {
	Pack(args []*Type) (ArgLayout, error)
}

// ArgPackerFunc adapts a function to ArgPacker.
type ArgPackerFunc func(args []*Type) (ArgLayout, error)

func (f ArgPackerFunc) Pack(args []*Type) (ArgLayout, error) { return f(args) }

// PackArguments is the default packer: arguments in declared order, each
// at its own alignment, arrays and functions decayed to pointers.
func PackArguments(args []*Type) (ArgLayout, error) {
	var l ArgLayout
	off := 0
	for i, t := range args {
		switch {
		case t.IsFloat():
			return ArgLayout{}, unsupportedf("floating-point argument %d", i)
		case t.IsAggregate():
			return ArgLayout{}, unsupportedf("aggregate argument %d passed by value", i)
		case t.Kind == Void:
			return ArgLayout{}, invalidf("void argument %d", i)
		}
		t = t.Decay()
		off = roundUp(off, max(t.Align, 1))
		l.Offsets = append(l.Offsets, off)
		off += max(t.Size, 1)
	}
	l.Size = off
	return l, nil
}

// CallFrame is the full layout of one call: the packed arguments plus,
// for aggregate results, result storage and a hidden pointer at offset 0.
type CallFrame struct {
	ArgLayout
	ResultSize   int
	HiddenResult bool
}

// Total is the stack space the call consumes, result storage included.
func (f CallFrame) Total() int { return f.ResultSize + f.Size }

// CallLayout packs the arguments of a call returning ret.
func CallLayout(p ArgPacker, ret *Type, args []*Type) (CallFrame, error) {
	l, err := p.Pack(args)
	if err != nil {
		return CallFrame{}, err
	}
	f := CallFrame{ArgLayout: l}
	if ret != nil && ret.IsAggregate() {
		f.HiddenResult = true
		f.ResultSize = roundUp(ret.Size, max(ret.Align, 1))
		shifted := make([]int, len(l.Offsets))
		for i, off := range l.Offsets {
			shifted[i] = off + PointerSize
		}
		f.Offsets = shifted
		f.Size += PointerSize
	}
	return f, nil
}
