package assemble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphshuffle/shuffle/internal/storage"
	"github.com/graphshuffle/shuffle/pkg/dtype"
)

func TestWriteReadPartition_RoundTrip(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	p := &Partition{
		PartitionID: 2,
		Format:      CSR,
		NTypeID:     []int32{0, 0, 1},
		ETypeID:     []int32{0, 0},
		ShuffleSrc:  []int64{0, 1},
		ShuffleDst:  []int64{2, 0},
		NodeFeatures: map[string]FeatureTable{
			"paper/feat": {DType: dtype.F32, Cols: 2, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		},
		EdgeFeatures: map[string]FeatureTable{
			"cites/weight": {DType: dtype.I8, Cols: 1, Data: []byte{9, 10}},
		},
		OrigNIDs: []int64{100, 101, 102},
		OrigEIDs: []int64{200, 201},
	}

	ctx := context.Background()
	require.NoError(t, WritePartition(ctx, store, "part-2.bin", p))

	rc, err := store.Download(ctx, "part-2.bin")
	require.NoError(t, err)
	defer rc.Close()

	got, err := ReadPartition(rc)
	require.NoError(t, err)

	assert.Equal(t, p.PartitionID, got.PartitionID)
	assert.Equal(t, p.Format, got.Format)
	assert.Equal(t, p.NTypeID, got.NTypeID)
	assert.Equal(t, p.ETypeID, got.ETypeID)
	assert.Equal(t, p.ShuffleSrc, got.ShuffleSrc)
	assert.Equal(t, p.ShuffleDst, got.ShuffleDst)
	assert.Equal(t, p.NodeFeatures, got.NodeFeatures)
	assert.Equal(t, p.EdgeFeatures, got.EdgeFeatures)
	assert.Equal(t, p.OrigNIDs, got.OrigNIDs)
	assert.Equal(t, p.OrigEIDs, got.OrigEIDs)
}

func TestWriteReadPartition_NoOptionalColumns(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	p := &Partition{
		PartitionID: 0,
		Format:      COO,
		NTypeID:     []int32{0},
		ETypeID:     []int32{},
		ShuffleSrc:  []int64{},
		ShuffleDst:  []int64{},
	}

	ctx := context.Background()
	require.NoError(t, WritePartition(ctx, store, "part-0.bin", p))

	rc, err := store.Download(ctx, "part-0.bin")
	require.NoError(t, err)
	defer rc.Close()

	got, err := ReadPartition(rc)
	require.NoError(t, err)
	assert.Nil(t, got.OrigNIDs)
	assert.Nil(t, got.OrigEIDs)
	assert.Nil(t, got.NodeFeatures)
	assert.Nil(t, got.EdgeFeatures)
}

func TestWriteGlobalMetadata(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	meta := GlobalMetadata{
		GraphName:    "mygraph",
		NumParts:     2,
		NodeTypeToID: map[string]int32{"paper": 0},
		EdgeTypeToID: map[string]int32{"cites": 0},
		Partitions:   []PartitionMeta{{PartitionID: 0, NodeCount: 3}, {PartitionID: 1, NodeCount: 4}},
	}

	ctx := context.Background()
	require.NoError(t, WriteGlobalMetadata(ctx, store, "metadata.json", meta))

	rc, err := store.Download(ctx, "metadata.json")
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 4096)
	n, _ := rc.Read(buf)
	assert.Contains(t, string(buf[:n]), "mygraph")
	assert.Contains(t, string(buf[:n]), "paper")
}
