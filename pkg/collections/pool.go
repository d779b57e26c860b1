// Package collections provides generic data structures for efficient data processing.
package collections

import (
	"sync"
)

// ============================================================================
// Generic Slice Pools - Reduce memory allocation overhead
// ============================================================================

// SlicePool is a generic pool for slices of any type.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a new slice pool with the given initial capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 256
	}
	return &SlicePool[T]{
		initialCap: initialCap,
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]T, 0, initialCap)
				return &s
			},
		},
	}
}

// Get gets a slice from the pool.
func (p *SlicePool[T]) Get() *[]T {
	return p.pool.Get().(*[]T)
}

// Put returns a slice to the pool after clearing it.
func (p *SlicePool[T]) Put(s *[]T) {
	*s = (*s)[:0]
	p.pool.Put(s)
}

// ============================================================================
// Pre-defined Slice Pools for Common Types
// ============================================================================

// Int32SlicePool is a pool for []int32 slices.
var Int32SlicePool = NewSlicePool[int32](256)

// GetInt32Slice gets a slice from the pool.
func GetInt32Slice() *[]int32 {
	return Int32SlicePool.Get()
}

// PutInt32Slice returns a slice to the pool after clearing it.
func PutInt32Slice(s *[]int32) {
	Int32SlicePool.Put(s)
}

// Int64SlicePool is a pool for []int64 slices.
var Int64SlicePool = NewSlicePool[int64](256)

// GetInt64Slice gets a slice from the pool.
func GetInt64Slice() *[]int64 {
	return Int64SlicePool.Get()
}

// PutInt64Slice returns a slice to the pool after clearing it.
func PutInt64Slice(s *[]int64) {
	Int64SlicePool.Put(s)
}

// Uint64SlicePool is a pool for []uint64 slices.
var Uint64SlicePool = NewSlicePool[uint64](256)

// GetUint64Slice gets a slice from the pool.
func GetUint64Slice() *[]uint64 {
	return Uint64SlicePool.Get()
}

// PutUint64Slice returns a slice to the pool after clearing it.
func PutUint64Slice(s *[]uint64) {
	Uint64SlicePool.Put(s)
}

// ByteSlicePool is a pool for []byte slices, used for feature payload buffers.
var ByteSlicePool = NewSlicePool[byte](4096)

// GetByteSlice gets a slice from the pool.
func GetByteSlice() *[]byte {
	return ByteSlicePool.Get()
}

// PutByteSlice returns a slice to the pool after clearing it.
func PutByteSlice(s *[]byte) {
	ByteSlicePool.Put(s)
}
