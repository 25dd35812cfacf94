package compiler

import (
	"bytes"
	"encoding/json"
	"strconv"
	"unicode"
)

// JSON unit format read by Decode:
//
//	{
//	  "structs":   [{"tag": "pt", "union": false, "fields": [{"name": "x", "type": "long"}]}],
//	  "enums":     [{"name": "RED", "value": 0}],
//	  "typedefs":  [{"name": "word", "type": "ushort"}],
//	  "globals":   [{"name": "g", "type": "long[3]", "init": [1, 2, 3]}, {"name": "s", "type": "char[]", "str": "hi"}],
//	  "functions": [{"name": "main", "return": "long", "params": [], "body": [{"return": {"int": 0}}]}]
//	}
//
// Types are written C-like: "ulong", "char*", "long[4]", "struct pt*",
// "fn(long,long)long" and "(fn(long)long)*" for a pointer to function.
// Statements and expressions are single-key objects, for example
// {"if": {"cond": E, "then": S, "else": S}} or {"bin": {"op": "+", "l": E, "r": E}}.

type unitJSON struct {
	Structs   []structJSON   `json:"structs"`
	Enums     []enumJSON     `json:"enums"`
	Typedefs  []namedJSON    `json:"typedefs"`
	Globals   []globalJSON   `json:"globals"`
	Functions []functionJSON `json:"functions"`
}

type structJSON struct {
	Tag    string      `json:"tag"`
	Union  bool        `json:"union"`
	Fields []namedJSON `json:"fields"`
}

type namedJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type enumJSON struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type globalJSON struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	Init   []int64 `json:"init"`
	Str    *string `json:"str"`
	Static bool    `json:"static"`
}

type functionJSON struct {
	Name   string            `json:"name"`
	Return string            `json:"return"`
	Params []namedJSON       `json:"params"`
	Body   []json.RawMessage `json:"body"`
}

type decoder struct {
	structs  map[string]*Type
	typedefs map[string]*Type
	scopes   []map[string]*Type
}

// Decode reads a JSON unit and types every expression in it.
func Decode(data []byte) (*Unit, error) {
	var uj unitJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&uj); err != nil {
		return nil, invalidf("decode unit: %v", err)
	}

	d := &decoder{
		structs:  make(map[string]*Type),
		typedefs: make(map[string]*Type),
		scopes:   []map[string]*Type{{}},
	}
	u := &Unit{Env: NewEnv()}

	// Tags first so fields may point at any struct.
	for _, s := range uj.Structs {
		if _, dup := d.structs[s.Tag]; dup {
			return nil, invalidf("struct %q defined twice", s.Tag)
		}
		d.structs[s.Tag] = &Type{Kind: StructOrUnion, Tag: s.Tag, Union: s.Union, Align: 1}
	}
	for _, s := range uj.Structs {
		fields := make([]Field, len(s.Fields))
		for i, f := range s.Fields {
			t, err := d.parseType(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Type: t}
		}
		laid := NewStruct(s.Tag, fields...)
		if s.Union {
			laid = NewUnion(s.Tag, fields...)
		}
		*d.structs[s.Tag] = *laid
	}

	for _, e := range uj.Enums {
		if err := u.Env.DeclareEnum(e.Name, e.Value); err != nil {
			return nil, err
		}
		d.declare(e.Name, Basic(Long))
	}
	for _, td := range uj.Typedefs {
		t, err := d.parseType(td.Type)
		if err != nil {
			return nil, err
		}
		if err := u.Env.DeclareTypedef(td.Name, t); err != nil {
			return nil, err
		}
		d.typedefs[td.Name] = t
	}

	for _, g := range uj.Globals {
		t, err := d.parseType(g.Type)
		if err != nil {
			return nil, err
		}
		init := g.Init
		if g.Str != nil {
			for _, r := range *g.Str {
				init = append(init, int64(r))
			}
			init = append(init, 0)
		}
		if t.Kind == IncompleteArray {
			t = ArrayOf(t.Elem, len(init))
		}
		u.Globals = append(u.Globals, GlobalDecl{Name: g.Name, T: t, Init: init, Static: g.Static})
		d.declare(g.Name, t)
	}

	// Every function is visible to every body.
	fns := make([]*FuncDecl, len(uj.Functions))
	for i, fj := range uj.Functions {
		f, err := d.signature(fj)
		if err != nil {
			return nil, err
		}
		fns[i] = f
		d.declare(f.Name, f.T)
	}
	for i, fj := range uj.Functions {
		if fj.Body == nil {
			continue
		}
		body, err := d.functionBody(fns[i], fj.Body)
		if err != nil {
			return nil, err
		}
		fns[i].Body = body
	}
	u.Functions = fns
	return u, nil
}

func (d *decoder) declare(name string, t *Type) {
	d.scopes[len(d.scopes)-1][name] = t
}

func (d *decoder) lookup(name string) (*Type, bool) {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if t, ok := d.scopes[i][name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (d *decoder) push() { d.scopes = append(d.scopes, map[string]*Type{}) }
func (d *decoder) pop()  { d.scopes = d.scopes[:len(d.scopes)-1] }

func (d *decoder) signature(fj functionJSON) (*FuncDecl, error) {
	ret := Basic(Void)
	if fj.Return != "" {
		var err error
		if ret, err = d.parseType(fj.Return); err != nil {
			return nil, err
		}
	}
	f := &FuncDecl{Name: fj.Name}
	params := make([]*Type, len(fj.Params))
	for i, p := range fj.Params {
		t, err := d.parseType(p.Type)
		if err != nil {
			return nil, err
		}
		params[i] = t
		f.Params = append(f.Params, Param{Name: p.Name, Type: t})
	}
	f.T = FuncOf(ret, params...)
	return f, nil
}

func (d *decoder) functionBody(f *FuncDecl, body []json.RawMessage) (*Compound, error) {
	d.push()
	defer d.pop()
	for _, p := range f.Params {
		d.declare(p.Name, p.Type.Decay())
	}
	return d.block(body)
}

func (d *decoder) block(raws []json.RawMessage) (*Compound, error) {
	d.push()
	defer d.pop()
	c := &Compound{}
	for _, raw := range raws {
		s, err := d.stmt(raw)
		if err != nil {
			return nil, err
		}
		c.Stmts = append(c.Stmts, s)
	}
	return c, nil
}

// single splits a one-key object into its key and value.
func single(raw json.RawMessage) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", nil, invalidf("expected object, got %s", raw)
	}
	if len(m) != 1 {
		return "", nil, invalidf("expected exactly one key in %s", raw)
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func unmarshal(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidf("bad node %s: %v", raw, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func (d *decoder) optExpr(raw json.RawMessage) (Expr, error) {
	if isNull(raw) {
		return nil, nil
	}
	return d.expr(raw)
}

func (d *decoder) optStmt(raw json.RawMessage) (Stmt, error) {
	if isNull(raw) {
		return nil, nil
	}
	return d.stmt(raw)
}

func (d *decoder) stmt(raw json.RawMessage) (Stmt, error) {
	key, body, err := single(raw)
	if err != nil {
		return nil, err
	}
	switch key {
	case "expr":
		x, err := d.expr(body)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{X: x}, nil

	case "block":
		var raws []json.RawMessage
		if err := unmarshal(body, &raws); err != nil {
			return nil, err
		}
		return d.block(raws)

	case "decl":
		var dj struct {
			Name string          `json:"name"`
			Type string          `json:"type"`
			Init json.RawMessage `json:"init"`
		}
		if err := unmarshal(body, &dj); err != nil {
			return nil, err
		}
		t, err := d.parseType(dj.Type)
		if err != nil {
			return nil, err
		}
		d.declare(dj.Name, t)
		init, err := d.optExpr(dj.Init)
		if err != nil {
			return nil, err
		}
		return &Decl{Name: dj.Name, T: t, Init: init}, nil

	case "if":
		var ij struct {
			Cond json.RawMessage `json:"cond"`
			Then json.RawMessage `json:"then"`
			Else json.RawMessage `json:"else"`
		}
		if err := unmarshal(body, &ij); err != nil {
			return nil, err
		}
		cond, err := d.expr(ij.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.stmt(ij.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.optStmt(ij.Else)
		if err != nil {
			return nil, err
		}
		return &If{Cond: cond, Then: then, Else: els}, nil

	case "while", "do":
		var wj struct {
			Cond json.RawMessage `json:"cond"`
			Body json.RawMessage `json:"body"`
		}
		if err := unmarshal(body, &wj); err != nil {
			return nil, err
		}
		cond, err := d.expr(wj.Cond)
		if err != nil {
			return nil, err
		}
		loopBody, err := d.stmt(wj.Body)
		if err != nil {
			return nil, err
		}
		if key == "do" {
			return &DoWhile{Body: loopBody, Cond: cond}, nil
		}
		return &While{Cond: cond, Body: loopBody}, nil

	case "for":
		var fj struct {
			Init json.RawMessage `json:"init"`
			Cond json.RawMessage `json:"cond"`
			Post json.RawMessage `json:"post"`
			Body json.RawMessage `json:"body"`
		}
		if err := unmarshal(body, &fj); err != nil {
			return nil, err
		}
		f := &For{}
		if f.Init, err = d.optExpr(fj.Init); err != nil {
			return nil, err
		}
		if f.Cond, err = d.optExpr(fj.Cond); err != nil {
			return nil, err
		}
		if f.Post, err = d.optExpr(fj.Post); err != nil {
			return nil, err
		}
		if f.Body, err = d.stmt(fj.Body); err != nil {
			return nil, err
		}
		return f, nil

	case "switch":
		var sj struct {
			Expr json.RawMessage `json:"expr"`
			Body json.RawMessage `json:"body"`
		}
		if err := unmarshal(body, &sj); err != nil {
			return nil, err
		}
		x, err := d.expr(sj.Expr)
		if err != nil {
			return nil, err
		}
		sw, err := d.stmt(sj.Body)
		if err != nil {
			return nil, err
		}
		return &Switch{X: x, Body: sw}, nil

	case "case":
		var v int64
		if err := unmarshal(body, &v); err != nil {
			return nil, err
		}
		return &Case{Value: v}, nil

	case "default":
		return &Default{}, nil
	case "break":
		return &Break{}, nil
	case "continue":
		return &Continue{}, nil

	case "return":
		x, err := d.optExpr(body)
		if err != nil {
			return nil, err
		}
		return &Return{X: x}, nil

	case "goto", "label":
		var name string
		if err := unmarshal(body, &name); err != nil {
			return nil, err
		}
		if key == "goto" {
			return &Goto{Label: name}, nil
		}
		return &Labeled{Label: name}, nil
	}
	return nil, invalidf("unknown statement %q", key)
}

func (d *decoder) exprs(raw json.RawMessage, n int) ([]Expr, error) {
	var raws []json.RawMessage
	if err := unmarshal(raw, &raws); err != nil {
		return nil, err
	}
	if n >= 0 && len(raws) != n {
		return nil, invalidf("expected %d operands in %s", n, raw)
	}
	out := make([]Expr, len(raws))
	for i, r := range raws {
		x, err := d.expr(r)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (d *decoder) expr(raw json.RawMessage) (Expr, error) {
	key, body, err := single(raw)
	if err != nil {
		return nil, err
	}
	switch key {
	case "int", "uint":
		var v int64
		if err := unmarshal(body, &v); err != nil {
			return nil, err
		}
		if key == "uint" {
			return &Constant{Value: v, T: Basic(ULong)}, nil
		}
		return &Constant{Value: v, T: Basic(Long)}, nil

	case "str":
		var s string
		if err := unmarshal(body, &s); err != nil {
			return nil, err
		}
		return &StringLiteral{Value: s, T: ArrayOf(Basic(Char), len([]rune(s))+1)}, nil

	case "var":
		var name string
		if err := unmarshal(body, &name); err != nil {
			return nil, err
		}
		t, ok := d.lookup(name)
		if !ok {
			return nil, invalidf("undefined variable %q", name)
		}
		return &Variable{Name: name, T: t}, nil

	case "assign":
		xs, err := d.exprs(body, 2)
		if err != nil {
			return nil, err
		}
		return &Assign{Target: xs[0], Value: xs[1], T: xs[0].Type()}, nil

	case "seq":
		xs, err := d.exprs(body, -1)
		if err != nil {
			return nil, err
		}
		if len(xs) == 0 {
			return nil, invalidf("empty seq")
		}
		return &AssignList{Exprs: xs, T: xs[len(xs)-1].Type()}, nil

	case "cond":
		xs, err := d.exprs(body, 3)
		if err != nil {
			return nil, err
		}
		return &Conditional{Cond: xs[0], Then: xs[1], Else: xs[2], T: xs[1].Type()}, nil

	case "call":
		var cj struct {
			Fn   json.RawMessage `json:"fn"`
			Args json.RawMessage `json:"args"`
		}
		if err := unmarshal(body, &cj); err != nil {
			return nil, err
		}
		fn, err := d.expr(cj.Fn)
		if err != nil {
			return nil, err
		}
		var args []Expr
		if !isNull(cj.Args) {
			if args, err = d.exprs(cj.Args, -1); err != nil {
				return nil, err
			}
		}
		ft := fn.Type()
		if ft.IsPointer() {
			ft = ft.Elem
		}
		if ft.Kind != Function {
			return nil, invalidf("called object %s is not a function", fn)
		}
		return &Call{Func: fn, Args: args, T: ft.Return}, nil

	case "member", "arrow":
		var mj struct {
			Of    json.RawMessage `json:"of"`
			Field string          `json:"field"`
		}
		if err := unmarshal(body, &mj); err != nil {
			return nil, err
		}
		base, err := d.expr(mj.Of)
		if err != nil {
			return nil, err
		}
		if key == "arrow" {
			if !base.Type().IsPointer() {
				return nil, invalidf("-> on non-pointer %s", base)
			}
			base = &Dereference{X: base, T: base.Type().Elem}
		}
		bt := base.Type()
		if !bt.IsAggregate() {
			return nil, invalidf("member %q of non-aggregate %s", mj.Field, base)
		}
		f, ok := bt.Field(mj.Field)
		if !ok {
			return nil, invalidf("%s has no member %q", bt, mj.Field)
		}
		return &Member{Base: base, Field: mj.Field, T: f.Type}, nil

	case "index":
		xs, err := d.exprs(body, 2)
		if err != nil {
			return nil, err
		}
		pt := xs[0].Type().Decay()
		if !pt.IsPointer() {
			return nil, invalidf("subscript of non-array %s", xs[0])
		}
		sum := &Binary{Op: OpAdd, Left: xs[0], Right: xs[1], T: pt}
		return &Dereference{X: sum, T: pt.Elem}, nil

	case "cast":
		var cj struct {
			Type string          `json:"type"`
			Expr json.RawMessage `json:"expr"`
		}
		if err := unmarshal(body, &cj); err != nil {
			return nil, err
		}
		t, err := d.parseType(cj.Type)
		if err != nil {
			return nil, err
		}
		x, err := d.expr(cj.Expr)
		if err != nil {
			return nil, err
		}
		return &Cast{X: x, T: t}, nil
	}

	if unaryKeys[key] {
		x, err := d.expr(body)
		if err != nil {
			return nil, err
		}
		return unaryNode(key, x)
	}
	if isPairKey(key) {
		return d.pairExpr(key, body)
	}
	return nil, invalidf("unknown expression %q", key)
}

var unaryKeys = map[string]bool{
	"ref": true, "deref": true,
	"preinc": true, "predec": true, "postinc": true, "postdec": true,
	"neg": true, "bnot": true, "lnot": true,
}

func isPairKey(key string) bool { return key == "bin" || key == "and" || key == "or" }

func unaryNode(op string, x Expr) (Expr, error) {
	t := x.Type()
	switch op {
	case "ref":
		return &Reference{X: x, T: PointerTo(t)}, nil
	case "deref":
		pt := t.Decay()
		if !pt.IsPointer() {
			return nil, invalidf("dereference of non-pointer %s", x)
		}
		return &Dereference{X: x, T: pt.Elem}, nil
	case "preinc":
		return &IncDec{Op: PreInc, X: x, T: t}, nil
	case "predec":
		return &IncDec{Op: PreDec, X: x, T: t}, nil
	case "postinc":
		return &IncDec{Op: PostInc, X: x, T: t}, nil
	case "postdec":
		return &IncDec{Op: PostDec, X: x, T: t}, nil
	case "neg":
		return &Unary{Op: Negative, X: x, T: t}, nil
	case "bnot":
		return &Unary{Op: BitwiseNot, X: x, T: t}, nil
	default:
		return &Unary{Op: LogicalNot, X: x, T: Basic(Long)}, nil
	}
}

func (d *decoder) pairExpr(key string, body json.RawMessage) (Expr, error) {
	if key == "and" || key == "or" {
		xs, err := d.exprs(body, 2)
		if err != nil {
			return nil, err
		}
		return &Logical{Or: key == "or", Left: xs[0], Right: xs[1], T: Basic(Long)}, nil
	}

	var bj struct {
		Op string          `json:"op"`
		L  json.RawMessage `json:"l"`
		R  json.RawMessage `json:"r"`
	}
	if err := unmarshal(body, &bj); err != nil {
		return nil, err
	}
	op, ok := ParseBinaryOp(bj.Op)
	if !ok {
		return nil, invalidf("unknown operator %q", bj.Op)
	}
	l, err := d.expr(bj.L)
	if err != nil {
		return nil, err
	}
	r, err := d.expr(bj.R)
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Left: l, Right: r, T: binaryType(op, l.Type(), r.Type())}, nil
}

func binaryType(op BinaryOp, lt, rt *Type) *Type {
	lptr, rptr := isAddressLike(lt), isAddressLike(rt)
	switch {
	case op.isComparison():
		return Basic(Long)
	case lptr && rptr:
		return Basic(Long)
	case lptr:
		return lt.Decay()
	case rptr:
		return rt.Decay()
	case lt.IsFloat() || rt.IsFloat():
		return Basic(Double)
	case lt.IsUnsigned() || rt.IsUnsigned():
		return Basic(ULong)
	}
	return Basic(Long)
}

// Type strings.

type typeLexer struct {
	toks []string
	pos  int
	src  string
}

func lexType(src string) []string {
	var toks []string
	for i := 0; i < len(src); {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsLetter(c) || c == '_' || unicode.IsDigit(c):
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		default:
			toks = append(toks, string(c))
			i++
		}
	}
	return toks
}

func (l *typeLexer) peek() string {
	if l.pos < len(l.toks) {
		return l.toks[l.pos]
	}
	return ""
}

func (l *typeLexer) next() string {
	t := l.peek()
	l.pos++
	return t
}

func (l *typeLexer) expect(tok string) error {
	if got := l.next(); got != tok {
		return invalidf("type %q: expected %q, got %q", l.src, tok, got)
	}
	return nil
}

var basicNames = map[string]Kind{
	"void": Void, "char": Char, "uchar": UChar, "short": Short, "ushort": UShort,
	"long": Long, "int": Long, "ulong": ULong, "uint": ULong, "float": Float, "double": Double,
}

func (d *decoder) parseType(src string) (*Type, error) {
	l := &typeLexer{toks: lexType(src), src: src}
	t, err := d.typeExpr(l)
	if err != nil {
		return nil, err
	}
	if l.peek() != "" {
		return nil, invalidf("type %q: trailing %q", src, l.peek())
	}
	return t, nil
}

func (d *decoder) typeExpr(l *typeLexer) (*Type, error) {
	var t *Type
	switch tok := l.next(); tok {
	case "":
		return nil, invalidf("empty type")
	case "(":
		inner, err := d.typeExpr(l)
		if err != nil {
			return nil, err
		}
		if err := l.expect(")"); err != nil {
			return nil, err
		}
		t = inner
	case "fn":
		if err := l.expect("("); err != nil {
			return nil, err
		}
		var params []*Type
		for l.peek() != ")" {
			p, err := d.typeExpr(l)
			if err != nil {
				return nil, err
			}
			params = append(params, p)
			if l.peek() == "," {
				l.next()
			}
		}
		l.next()
		ret, err := d.typeExpr(l)
		if err != nil {
			return nil, err
		}
		return FuncOf(ret, params...), nil
	case "struct", "union":
		tag := l.next()
		st, ok := d.structs[tag]
		if !ok {
			return nil, invalidf("unknown %s %q", tok, tag)
		}
		t = st
	default:
		if k, ok := basicNames[tok]; ok {
			t = Basic(k)
		} else if td, ok := d.typedefs[tok]; ok {
			t = td
		} else {
			return nil, invalidf("unknown type %q in %q", tok, l.src)
		}
	}

	for l.peek() == "*" {
		l.next()
		t = PointerTo(t)
	}

	// long[2][3] is two arrays of three: apply dimensions right to left.
	var dims []int
	for l.peek() == "[" {
		l.next()
		n := -1
		if l.peek() != "]" {
			v, err := strconv.Atoi(l.next())
			if err != nil || v < 0 {
				return nil, invalidf("bad array length in %q", l.src)
			}
			n = v
		}
		if err := l.expect("]"); err != nil {
			return nil, err
		}
		dims = append(dims, n)
	}
	for i := len(dims) - 1; i >= 0; i-- {
		if dims[i] < 0 {
			if i != 0 {
				return nil, invalidf("only the first dimension may be empty in %q", l.src)
			}
			t = IncompleteArrayOf(t)
			continue
		}
		t = ArrayOf(t, dims[i])
	}
	return t, nil
}
