package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *Document {
	return &Document{
		GraphName:        "mag-like",
		NodeType:         []string{"author", "paper"},
		NumNodesPerChunk: [][]int64{{10, 10}, {30, 30}},
		EdgeType:         []string{"author:writes:paper"},
		NumEdgesPerChunk: [][]int64{{50, 50}},
		Edges: map[string]EdgeSpec{
			"author:writes:paper": {Data: []ChunkEntry{{Path: "w0.bin", TypeStart: 0, TypeEnd: 50}, {Path: "w1.bin", TypeStart: 50, TypeEnd: 100}}},
		},
	}
}

func TestBuildGraph_Offsets(t *testing.T) {
	doc := sampleDoc()
	g, err := BuildGraph(doc, 2)
	require.NoError(t, err)

	author, err := g.NodeType("author")
	require.NoError(t, err)
	assert.Equal(t, int64(0), author.Offset)
	assert.Equal(t, int64(20), author.Count)

	paper, err := g.NodeType("paper")
	require.NoError(t, err)
	assert.Equal(t, int64(20), paper.Offset)
	assert.Equal(t, int64(60), paper.Count)

	assert.Equal(t, int64(80), g.TotalNodes())
	assert.Equal(t, int64(100), g.TotalEdges())
}

func TestBuildGraph_UnknownType(t *testing.T) {
	doc := sampleDoc()
	g, err := BuildGraph(doc, 2)
	require.NoError(t, err)
	_, err = g.NodeType("institution")
	require.Error(t, err)
}

func TestBuildGraph_BadChunkCount(t *testing.T) {
	doc := sampleDoc()
	doc.NumNodesPerChunk[0] = []int64{10, 10, 10}
	_, err := BuildGraph(doc, 2)
	require.Error(t, err)
}

func TestNodeChunkRange(t *testing.T) {
	doc := sampleDoc()
	g, err := BuildGraph(doc, 2)
	require.NoError(t, err)

	start, end, err := g.NodeChunkRange("paper", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), start)
	assert.Equal(t, int64(60), end)
}

func TestCyclicSlice(t *testing.T) {
	start, end := CyclicSlice(10, 3, 0)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(4), end)

	start, end = CyclicSlice(10, 3, 2)
	assert.Equal(t, int64(8), start)
	assert.Equal(t, int64(10), end)
}

func TestEndpointTypes(t *testing.T) {
	src, rel, dst, err := EndpointTypes("author:writes:paper")
	require.NoError(t, err)
	assert.Equal(t, "author", src)
	assert.Equal(t, "writes", rel)
	assert.Equal(t, "paper", dst)

	_, _, _, err = EndpointTypes("bad-edge-type")
	require.Error(t, err)
}
