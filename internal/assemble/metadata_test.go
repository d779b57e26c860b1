package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildGlobalMetadata_SortsPartitionsByID(t *testing.T) {
	fragments := []Fragment{
		{Rank: 1, Partitions: []PartitionMeta{{PartitionID: 3, NodeCount: 10}}},
		{Rank: 0, Partitions: []PartitionMeta{{PartitionID: 0, NodeCount: 5}, {PartitionID: 2, NodeCount: 7}}},
	}

	meta := BuildGlobalMetadata("mygraph", 4, map[string]int32{"paper": 0}, map[string]int32{"cites": 0}, fragments)

	assert.Equal(t, "mygraph", meta.GraphName)
	assert.Equal(t, 4, meta.NumParts)
	assert.Len(t, meta.Partitions, 3)
	assert.Equal(t, int32(0), meta.Partitions[0].PartitionID)
	assert.Equal(t, int32(2), meta.Partitions[1].PartitionID)
	assert.Equal(t, int32(3), meta.Partitions[2].PartitionID)
}
