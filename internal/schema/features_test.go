package schema

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/graphshuffle/shuffle/pkg/dtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeF32File(t *testing.T, rows [][]float32) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "feat.bin")
	cols := len(rows[0])
	buf := make([]byte, len(rows)*cols*4)
	for i, row := range rows {
		for j, v := range row {
			off := (i*cols + j) * 4
			binary.BigEndian.PutUint32(buf[off:], math.Float32bits(v))
		}
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestReadNodeFeatureChunk(t *testing.T) {
	path := writeF32File(t, [][]float32{{1, 2}, {3, 4}})
	doc := &Document{
		NodeData: map[string]map[string]FeatureSpec{
			"paper": {
				"feat": {
					DType: "f32",
					Cols:  2,
					Data:  []ChunkEntry{{Path: path, TypeStart: 0, TypeEnd: 2}},
				},
			},
		},
	}

	chunk, ok, err := ReadNodeFeatureChunk(doc, "paper", "feat", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dtype.F32, chunk.DType)
	assert.Equal(t, int64(2), chunk.Rows())
	assert.Equal(t, 8, chunk.RowBytes())

	row0 := chunk.Row(0)
	assert.Equal(t, float32(1), math.Float32frombits(binary.BigEndian.Uint32(row0[0:4])))
	assert.Equal(t, float32(2), math.Float32frombits(binary.BigEndian.Uint32(row0[4:8])))
}

func TestReadNodeFeatureChunk_NotPresent(t *testing.T) {
	doc := &Document{}
	chunk, ok, err := ReadNodeFeatureChunk(doc, "paper", "feat", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, FeatureChunk{}, chunk)
}

func TestReadNodeFeatureChunk_BadDType(t *testing.T) {
	path := writeF32File(t, [][]float32{{1}})
	doc := &Document{
		NodeData: map[string]map[string]FeatureSpec{
			"paper": {"feat": {DType: "int128", Cols: 1, Data: []ChunkEntry{{Path: path, TypeStart: 0, TypeEnd: 1}}}},
		},
	}
	_, _, err := ReadNodeFeatureChunk(doc, "paper", "feat", 0)
	require.Error(t, err)
}

func TestReadEdgeFeatureChunk(t *testing.T) {
	path := writeF32File(t, [][]float32{{5}})
	doc := &Document{
		EdgeData: map[string]map[string]FeatureSpec{
			"paper:cites:paper": {"count": {DType: "f32", Cols: 1, Data: []ChunkEntry{{Path: path, TypeStart: 0, TypeEnd: 1}}}},
		},
	}
	chunk, ok, err := ReadEdgeFeatureChunk(doc, "paper:cites:paper", "count", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), chunk.Rows())
}
