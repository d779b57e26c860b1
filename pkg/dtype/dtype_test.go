package dtype

import "testing"

func TestSize(t *testing.T) {
	cases := map[Type]int{
		I8:   1,
		U8:   1,
		I16:  2,
		F16:  2,
		BF16: 2,
		I32:  4,
		F32:  4,
		I64:  8,
		F64:  8,
	}
	for typ, want := range cases {
		if got := typ.Size(); got != want {
			t.Errorf("%s.Size() = %d, want %d", typ, got, want)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for typ := I8; typ <= BF16; typ++ {
		parsed, err := Parse(typ.String())
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", typ, err)
		}
		if parsed != typ {
			t.Errorf("Parse(%s) = %s, want %s", typ, parsed, typ)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("int128"); err == nil {
		t.Error("expected error for unrecognized dtype name")
	}
}

func TestValid(t *testing.T) {
	if Invalid.Valid() {
		t.Error("Invalid should not be Valid()")
	}
	if !F32.Valid() {
		t.Error("F32 should be Valid()")
	}
}

func TestRowBytes(t *testing.T) {
	if got := RowBytes(F32, 3); got != 12 {
		t.Errorf("RowBytes(F32, 3) = %d, want 12", got)
	}
	if got := RowBytes(I64, 1); got != 8 {
		t.Errorf("RowBytes(I64, 1) = %d, want 8", got)
	}
}
