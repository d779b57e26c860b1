package assemble

import "sort"

// Fragment is one worker's contribution to the global metadata document:
// counts and shuffle-ID ranges for every local partition it owns.
type Fragment struct {
	Rank       int             `json:"rank"`
	Partitions []PartitionMeta `json:"partitions"`
}

// PartitionMeta is the per-partition slice of the metadata document: the
// counts and shuffle-ID ranges a downstream reader needs without opening
// the partition object itself.
type PartitionMeta struct {
	PartitionID        int32 `json:"part_id"`
	NodeCount          int64 `json:"num_nodes"`
	EdgeCount          int64 `json:"num_edges"`
	NodeShuffleIDStart int64 `json:"node_shuffle_id_start"`
	EdgeShuffleIDStart int64 `json:"edge_shuffle_id_start"`
}

// GlobalMetadata is the single JSON document rank 0 writes after gathering
// every worker's Fragment. The type<->ID dictionaries are identical on
// every worker (derived once from the schema) so they are attached here
// rather than gathered.
type GlobalMetadata struct {
	GraphName    string           `json:"graph_name"`
	NumParts     int              `json:"num_parts"`
	NodeTypeToID map[string]int32 `json:"ntypes"`
	EdgeTypeToID map[string]int32 `json:"etypes"`
	Partitions   []PartitionMeta  `json:"partitions"`
}

// BuildGlobalMetadata flattens the gathered fragments (already sorted by
// rank by GatherFragments) into the partitions list, sorted by partition
// ID so the document reads the same regardless of gather order.
func BuildGlobalMetadata(graphName string, numParts int, nodeTypeToID, edgeTypeToID map[string]int32, fragments []Fragment) GlobalMetadata {
	meta := GlobalMetadata{
		GraphName:    graphName,
		NumParts:     numParts,
		NodeTypeToID: nodeTypeToID,
		EdgeTypeToID: edgeTypeToID,
	}
	for _, f := range fragments {
		meta.Partitions = append(meta.Partitions, f.Partitions...)
	}
	sort.Slice(meta.Partitions, func(i, j int) bool {
		return meta.Partitions[i].PartitionID < meta.Partitions[j].PartitionID
	})
	return meta
}
