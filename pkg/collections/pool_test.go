package collections

import (
	"testing"
)

func TestSlicePool(t *testing.T) {
	pool := NewSlicePool[int](256)

	// Get a slice
	s := pool.Get()
	if s == nil {
		t.Fatal("Get returned nil")
	}
	if cap(*s) < 256 {
		t.Errorf("Expected capacity >= 256, got %d", cap(*s))
	}

	// Use the slice
	*s = append(*s, 1, 2, 3)
	if len(*s) != 3 {
		t.Errorf("Expected length 3, got %d", len(*s))
	}

	// Put it back
	pool.Put(s)

	// Get again (should be cleared)
	s2 := pool.Get()
	if len(*s2) != 0 {
		t.Errorf("Expected length 0 after Put, got %d", len(*s2))
	}
}

func TestInt64SlicePool(t *testing.T) {
	s := GetInt64Slice()
	*s = append(*s, 10, 20, 30)
	if len(*s) != 3 {
		t.Errorf("Expected length 3, got %d", len(*s))
	}
	PutInt64Slice(s)

	s2 := GetInt64Slice()
	if len(*s2) != 0 {
		t.Errorf("Expected length 0 after Put, got %d", len(*s2))
	}
	PutInt64Slice(s2)
}

func TestByteSlicePool(t *testing.T) {
	b := GetByteSlice()
	*b = append(*b, []byte("row-payload")...)
	PutByteSlice(b)

	b2 := GetByteSlice()
	if len(*b2) != 0 {
		t.Errorf("Expected length 0 after Put, got %d", len(*b2))
	}
	PutByteSlice(b2)
}

func BenchmarkInt64SlicePool(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := GetInt64Slice()
		*s = append(*s, int64(i))
		PutInt64Slice(s)
	}
}
