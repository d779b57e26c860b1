package engine

import (
	"context"
	"fmt"
	"path"

	"github.com/graphshuffle/shuffle/internal/assemble"
	"github.com/graphshuffle/shuffle/internal/schema"
	"github.com/graphshuffle/shuffle/internal/storage"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// outputFormats resolves the configured adjacency formats, defaulting to
// COO alone when none are configured.
func (e *Engine) outputFormats() ([]assemble.AdjacencyFormat, error) {
	names := e.cfg.Shuffle.GraphFormats
	if len(names) == 0 {
		names = []string{"coo"}
	}
	formats := make([]assemble.AdjacencyFormat, len(names))
	for i, name := range names {
		f, err := assemble.ParseAdjacencyFormat(name)
		if err != nil {
			return nil, err
		}
		formats[i] = f
	}
	return formats, nil
}

// buildLocalTables concatenates one local partition's node and edge types,
// in schema order, into the flat tables BuildPartition consumes. Schema
// order concatenation already yields ascending shuffle-ID order within
// each table, since phaseAssignNodeShuffleIDs/phaseAssignEdgeShuffleIDs
// hand out one increasing contiguous sub-range per type.
func buildLocalTables(nodeTypes []NodeTypeBatches, nodeShuffleIDs [][][]int64, edgeTypes []EdgeTypeBatches, edgeShuffleIDs [][][]int64, lp int) (assemble.NodeTable, assemble.EdgeTable) {
	var nodes assemble.NodeTable
	for ti, nt := range nodeTypes {
		batch := nt.Parts[lp]
		n := batch.Len()
		for i := 0; i < n; i++ {
			nodes.NTypeID = append(nodes.NTypeID, nt.NTypeID)
		}
		nodes.GlobalNID = append(nodes.GlobalNID, batch.GlobalNID...)
		nodes.ShuffleNID = append(nodes.ShuffleNID, nodeShuffleIDs[ti][lp]...)
	}

	var edges assemble.EdgeTable
	for ei, et := range edgeTypes {
		batch := et.Parts[lp]
		n := batch.Len()
		for i := 0; i < n; i++ {
			edges.ETypeID = append(edges.ETypeID, et.ETypeID)
		}
		edges.GlobalEID = append(edges.GlobalEID, batch.GEID...)
		edges.ShuffleSrc = append(edges.ShuffleSrc, et.ShuffleSrc[lp]...)
		edges.ShuffleDst = append(edges.ShuffleDst, et.ShuffleDst[lp]...)
	}

	return nodes, edges
}

// phaseAssemble builds and writes this worker's local partitions, one
// object per requested adjacency format, then gathers every worker's
// per-partition metadata into a single document written by rank 0. Node
// and edge counts in that metadata come from the tables actually built
// here rather than from nodeTotals/edgeTotals, since a fixed local-part
// index spans a different global partition on every worker and so
// AssignShuffleIDs's per-local-part total is not any single partition's
// count.
func (e *Engine) phaseAssemble(
	ctx context.Context,
	store storage.Storage,
	graph *schema.Graph,
	nodeTypes []NodeTypeBatches, nodeShuffleIDs [][][]int64, nodeStarts, nodeTotals []int64,
	edgeTypes []EdgeTypeBatches, edgeShuffleIDs [][][]int64, edgeStarts, edgeTotals []int64,
	nodeFeatures, edgeFeatures []map[string]assemble.FeatureTable,
	localParts int,
) (*Result, error) {
	rank := e.group.Rank()
	world := e.group.WorldSize()

	formats, err := e.outputFormats()
	if err != nil {
		return nil, err
	}

	var keys []string
	var metas []assemble.PartitionMeta
	for lp := 0; lp < localParts; lp++ {
		partitionID := int32(rank + lp*world)
		nodes, edges := buildLocalTables(nodeTypes, nodeShuffleIDs, edgeTypes, edgeShuffleIDs, lp)

		var origNIDs, origEIDs []int64
		if e.cfg.Shuffle.SaveOrigNIDs {
			origNIDs = append([]int64(nil), nodes.GlobalNID...)
		}
		if e.cfg.Shuffle.SaveOrigEIDs {
			origEIDs = append([]int64(nil), edges.GlobalEID...)
		}

		for _, format := range formats {
			part, err := assemble.BuildPartition(partitionID, format, nodes, edges, nodeFeatures[lp], edgeFeatures[lp], origNIDs, origEIDs)
			if err != nil {
				return nil, err
			}
			key := path.Join(e.cfg.IO.OutputDir, fmt.Sprintf("part-%d-%s.bin", partitionID, format.String()))
			if err := assemble.WritePartition(ctx, store, key, part); err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}

		metas = append(metas, assemble.PartitionMeta{
			PartitionID:        partitionID,
			NodeCount:          int64(len(nodes.GlobalNID)),
			EdgeCount:          int64(len(edges.GlobalEID)),
			NodeShuffleIDStart: nodeStarts[lp],
			EdgeShuffleIDStart: edgeStarts[lp],
		})
	}

	fragments, err := assemble.GatherFragments(ctx, e.group, assemble.Fragment{Rank: rank, Partitions: metas})
	if err != nil {
		return nil, err
	}

	result := &Result{Rank: rank, LocalParts: localParts, PartitionKeys: keys}
	if rank != 0 {
		return result, nil
	}

	nodeTypeToID := make(map[string]int32, len(graph.NodeTypes))
	for i, nt := range graph.NodeTypes {
		nodeTypeToID[nt.Name] = int32(i)
	}
	edgeTypeToID := make(map[string]int32, len(graph.EdgeTypes))
	for i, et := range graph.EdgeTypes {
		edgeTypeToID[et.Name] = int32(i)
	}

	numParts := 0
	for _, f := range fragments {
		numParts += len(f.Partitions)
	}
	meta := assemble.BuildGlobalMetadata(graph.Name, numParts, nodeTypeToID, edgeTypeToID, fragments)

	metaKey := path.Join(e.cfg.IO.OutputDir, "metadata.json")
	if err := assemble.WriteGlobalMetadata(ctx, store, metaKey, meta); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIOError, err)
	}
	result.MetadataKey = metaKey
	return result, nil
}
