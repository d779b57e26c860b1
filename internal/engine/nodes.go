package engine

import (
	"context"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/localnode"
	"github.com/graphshuffle/shuffle/internal/renumber"
	"github.com/graphshuffle/shuffle/internal/schema"
)

// NodeTypeBatches is one node type's synthesized local records, one
// NodeBatch per local partition this worker owns.
type NodeTypeBatches struct {
	Info    schema.TypeInfo
	NTypeID int32
	Parts   []localnode.NodeBatch
}

// phaseSynthesizeNodes enumerates every node type's global ID range and
// buckets the nodes this worker owns into its local partitions, in schema
// order, since node shuffle-ID assignment below depends on that order.
func (e *Engine) phaseSynthesizeNodes(ctx context.Context, lookup *idlookup.Service, graph *schema.Graph, localParts int) ([]NodeTypeBatches, error) {
	synth := localnode.New(lookup, e.group.Rank(), e.group.WorldSize())

	out := make([]NodeTypeBatches, len(graph.NodeTypes))
	for i, nt := range graph.NodeTypes {
		parts, err := synth.Synthesize(ctx, nt, int32(i), localParts)
		if err != nil {
			return nil, err
		}
		out[i] = NodeTypeBatches{Info: nt, NTypeID: int32(i), Parts: parts}
	}
	return out, nil
}

// phaseAssignNodeShuffleIDs runs the (local_part, worker) prefix sum once
// over this worker's total node count per local partition, then walks the
// node types in schema order assigning each type's batch a contiguous
// sub-range of the resulting per-local-partition range. This reproduces
// the required (local_part, ntype_id, type_nid) global ordering, since
// Synthesize already emits ascending type_nid order per type. The full set
// of (global_nid, shuffle_nid) pairs this worker produced is then scattered
// into lookup so ResolveEdgeEndpoints can later resolve endpoints this
// worker does not itself own.
func (e *Engine) phaseAssignNodeShuffleIDs(ctx context.Context, lookup *idlookup.Service, nodeTypes []NodeTypeBatches, localParts int) (shuffleIDs [][][]int64, starts, totals []int64, err error) {
	localCounts := make([]int64, localParts)
	for lp := 0; lp < localParts; lp++ {
		var c int64
		for _, nt := range nodeTypes {
			c += int64(nt.Parts[lp].Len())
		}
		localCounts[lp] = c
	}

	starts, totals, err = renumber.AssignShuffleIDs(ctx, e.group, localCounts)
	if err != nil {
		return nil, nil, nil, err
	}

	shuffleIDs = make([][][]int64, len(nodeTypes))
	for i := range shuffleIDs {
		shuffleIDs[i] = make([][]int64, localParts)
	}

	var flatGlobal, flatShuffle []int64
	for lp := 0; lp < localParts; lp++ {
		running := starts[lp]
		for ti, nt := range nodeTypes {
			n := int64(nt.Parts[lp].Len())
			ids := renumber.AssignRange(running, n)
			running += n
			shuffleIDs[ti][lp] = ids
			flatGlobal = append(flatGlobal, nt.Parts[lp].GlobalNID...)
			flatShuffle = append(flatShuffle, ids...)
		}
	}

	if err := lookup.ScatterShuffleIDs(ctx, flatGlobal, flatShuffle); err != nil {
		return nil, nil, nil, err
	}
	return shuffleIDs, starts, totals, nil
}
