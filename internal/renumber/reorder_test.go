package renumber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderBy_JoinsAndSortsByShuffleID(t *testing.T) {
	// Arrival order: global ids [30, 10, 20] each one byte; renumbered
	// table maps 10->0, 20->1, 30->2, so shuffle order should be
	// [10, 20, 30] -> bytes [0xBB, 0xCC, 0xAA].
	data := []byte{0xAA, 0xBB, 0xCC} // arrival rows for 30, 10, 20
	arrival := []int64{30, 10, 20}
	globalIDs := []int64{10, 20, 30}
	shuffleIDs := []int64{0, 1, 2}

	out, outIDs, err := ReorderBy(&data, 1, arrival, globalIDs, shuffleIDs)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB, 0xCC, 0xAA}, out)
	assert.Equal(t, []int64{0, 1, 2}, outIDs)
	assert.Nil(t, data)
}

func TestReorderBy_MultiByteRows(t *testing.T) {
	data := []byte{1, 1, 2, 2, 3, 3} // 3 rows of 2 bytes, arrival order global ids below
	arrival := []int64{2, 0, 1}
	globalIDs := []int64{0, 1, 2}
	shuffleIDs := []int64{10, 20, 30}

	out, outIDs, err := ReorderBy(&data, 2, arrival, globalIDs, shuffleIDs)
	require.NoError(t, err)
	// global 0 (shuffle 10) arrived at index1 -> bytes {2,2}
	// global 1 (shuffle 20) arrived at index2 -> bytes {3,3}
	// global 2 (shuffle 30) arrived at index0 -> bytes {1,1}
	assert.Equal(t, []byte{2, 2, 3, 3, 1, 1}, out)
	assert.Equal(t, []int64{10, 20, 30}, outIDs)
}

func TestReorderBy_UnknownArrivalGlobalID(t *testing.T) {
	data := []byte{1}
	arrival := []int64{99}
	globalIDs := []int64{1}
	shuffleIDs := []int64{0}

	_, _, err := ReorderBy(&data, 1, arrival, globalIDs, shuffleIDs)
	assert.Error(t, err)
}

func TestReorderBy_ShapeMismatch(t *testing.T) {
	data := []byte{1, 2, 3}
	arrival := []int64{1, 2}
	globalIDs := []int64{1, 2}
	shuffleIDs := []int64{0, 1}

	_, _, err := ReorderBy(&data, 1, arrival, globalIDs, shuffleIDs)
	assert.Error(t, err)
}

func TestReorderBy_TableLengthMismatch(t *testing.T) {
	data := []byte{1}
	arrival := []int64{1}
	globalIDs := []int64{1}
	shuffleIDs := []int64{0, 1}

	_, _, err := ReorderBy(&data, 1, arrival, globalIDs, shuffleIDs)
	assert.Error(t, err)
}
