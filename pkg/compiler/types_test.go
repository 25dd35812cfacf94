package compiler

import (
	"errors"
	"reflect"
	"testing"
)

func TestPackArguments(t *testing.T) {
	l, err := PackArguments([]*Type{Basic(Long), Basic(Char), PointerTo(Basic(Long))})
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 3 || !reflect.DeepEqual(l.Offsets, []int{0, 1, 2}) {
		t.Errorf("layout = %+v, want size 3 at 0,1,2", l)
	}

	// Arrays decay to one pointer word.
	l, err = PackArguments([]*Type{ArrayOf(Basic(Long), 10), Basic(Long)})
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 2 || !reflect.DeepEqual(l.Offsets, []int{0, 1}) {
		t.Errorf("decayed layout = %+v", l)
	}

	again, _ := PackArguments([]*Type{ArrayOf(Basic(Long), 10), Basic(Long)})
	if !reflect.DeepEqual(l, again) {
		t.Errorf("packing is not deterministic")
	}

	if _, err := PackArguments([]*Type{Basic(Double)}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("double argument: got %v", err)
	}
	pt := NewStruct("pt", Field{Name: "x", Type: Basic(Long)})
	if _, err := PackArguments([]*Type{pt}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("struct argument: got %v", err)
	}
}

func TestCallLayout(t *testing.T) {
	packer := ArgPackerFunc(PackArguments)
	three := []*Type{Basic(Long), Basic(Long), Basic(Long)}

	f, err := CallLayout(packer, Basic(Long), three)
	if err != nil {
		t.Fatal(err)
	}
	if f.HiddenResult || f.Total() != 3 || !reflect.DeepEqual(f.Offsets, []int{0, 1, 2}) {
		t.Errorf("scalar call frame = %+v", f)
	}

	// Aggregate of size 5, alignment 4: result storage rounds to 8.
	big := &Type{Kind: StructOrUnion, Tag: "big", Size: 5, Align: 4}
	f, err = CallLayout(packer, big, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !f.HiddenResult || f.ResultSize != 8 || f.Total() != 8+PointerSize {
		t.Errorf("aggregate call frame = %+v, total %d", f, f.Total())
	}

	f, err = CallLayout(packer, big, three)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Offsets, []int{1, 2, 3}) || f.Size != 3+PointerSize {
		t.Errorf("arguments not shifted past hidden pointer: %+v", f)
	}

	custom := ArgPackerFunc(func(args []*Type) (ArgLayout, error) {
		return ArgLayout{Size: 4 * len(args), Offsets: []int{0, 4}[:len(args)]}, nil
	})
	f, _ = CallLayout(custom, Basic(Long), three[:2])
	if f.Size != 8 || !reflect.DeepEqual(f.Offsets, []int{0, 4}) {
		t.Errorf("custom packer ignored: %+v", f)
	}
}

func TestStructLayout(t *testing.T) {
	inner := NewStruct("in", Field{Name: "a", Type: Basic(Long)}, Field{Name: "b", Type: Basic(Long)})
	s := NewStruct("s",
		Field{Name: "x", Type: Basic(Char)},
		Field{Name: "arr", Type: ArrayOf(Basic(Long), 3)},
		Field{Name: "in", Type: inner},
		Field{Name: "p", Type: PointerTo(inner)},
	)
	wantOffsets := map[string]int{"x": 0, "arr": 1, "in": 4, "p": 6}
	for name, want := range wantOffsets {
		f, ok := s.Field(name)
		if !ok || f.Offset != want {
			t.Errorf("field %s at %d (found=%v), want %d", name, f.Offset, ok, want)
		}
	}
	if s.Size != 7 {
		t.Errorf("struct size = %d, want 7", s.Size)
	}

	u := NewUnion("u", Field{Name: "l", Type: Basic(Long)}, Field{Name: "arr", Type: ArrayOf(Basic(Char), 4)})
	if u.Size != 4 {
		t.Errorf("union size = %d, want 4", u.Size)
	}
	if f, _ := u.Field("arr"); f.Offset != 0 {
		t.Errorf("union member offset = %d", f.Offset)
	}
	if _, ok := u.Field("nope"); ok {
		t.Errorf("found missing member")
	}
}

func TestTypePredicates(t *testing.T) {
	tests := []struct {
		t        *Type
		scalar   bool
		unsigned bool
		str      string
	}{
		{Basic(Long), true, false, "long"},
		{Basic(UChar), true, true, "uchar"},
		{PointerTo(Basic(Char)), true, true, "char*"},
		{ArrayOf(Basic(Long), 2), false, false, "long[2]"},
		{IncompleteArrayOf(Basic(Long)), false, false, "long[]"},
		{FuncOf(Basic(Long), Basic(Long)), false, false, "fn(long)long"},
		{Basic(Double), false, false, "double"},
	}
	for _, tc := range tests {
		if tc.t.IsScalar() != tc.scalar || tc.t.IsUnsigned() != tc.unsigned {
			t.Errorf("%s: scalar=%v unsigned=%v", tc.t, tc.t.IsScalar(), tc.t.IsUnsigned())
		}
		if tc.t.String() != tc.str {
			t.Errorf("String() = %q, want %q", tc.t.String(), tc.str)
		}
	}
	if got := ArrayOf(Basic(Long), 4).Decay(); got.Kind != Pointer || got.Elem.Kind != Long {
		t.Errorf("array decays to %s", got)
	}
	if PointerTo(ArrayOf(Basic(Long), 4)).StepSize() != 4 {
		t.Errorf("pointer to array steps by whole array")
	}
}
