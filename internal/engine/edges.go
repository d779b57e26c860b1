package engine

import (
	"context"
	"sort"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/renumber"
	"github.com/graphshuffle/shuffle/internal/schema"
	"github.com/graphshuffle/shuffle/internal/shuffle"
)

// EdgeTypeBatches is one edge type's post-shuffle local records: one
// EdgeBatch per local partition this worker owns, sorted by type_eid
// ascending, plus the shuffle-global endpoint IDs resolved for each row
// once ResolveEdgeEndpoints has run.
type EdgeTypeBatches struct {
	Info    schema.TypeInfo
	ETypeID int32
	Parts   []schema.EdgeBatch

	ShuffleSrc [][]int64 // per local part, row-aligned with Parts[lp]
	ShuffleDst [][]int64
}

// phaseShuffleEdges reads this worker's cyclic slice of input chunks for
// every edge type (chunk index rank+lp*world for lp in [0,localParts)), and
// routes them to their owning local partitions via the destination node's
// partition. Shuffle's output arrives in sender-rank order, not type_eid
// order, so each local partition's batch is sorted by TEID immediately
// after, which both renumbering and the final edge table require.
func (e *Engine) phaseShuffleEdges(ctx context.Context, doc *schema.Document, graph *schema.Graph, lookup *idlookup.Service, localParts int) ([]EdgeTypeBatches, error) {
	world := e.group.WorldSize()
	rank := e.group.Rank()
	shuffler := shuffle.NewEdgeShuffler(e.group, lookup, int64(e.cfg.Shuffle.EdgeChunkRows))

	out := make([]EdgeTypeBatches, len(graph.EdgeTypes))
	for i, et := range graph.EdgeTypes {
		local, err := readLocalEdgeChunks(doc, graph, et.Name, rank, world, localParts)
		if err != nil {
			return nil, err
		}

		shuffled, err := shuffler.Shuffle(ctx, local, localParts)
		if err != nil {
			return nil, err
		}
		for lp := range shuffled {
			sortEdgeBatchByTEID(&shuffled[lp])
		}

		out[i] = EdgeTypeBatches{Info: et, ETypeID: int32(i), Parts: shuffled}
	}
	return out, nil
}

// readLocalEdgeChunks concatenates the localParts input chunks this worker
// is responsible for reading for one edge type, cyclically indexed the
// same way output local partitions are: chunk r+lp*world for lp in
// [0,localParts).
func readLocalEdgeChunks(doc *schema.Document, graph *schema.Graph, etype string, rank, world, localParts int) (schema.EdgeBatch, error) {
	var out schema.EdgeBatch
	for lp := 0; lp < localParts; lp++ {
		chunkIdx := rank + lp*world
		batch, err := schema.ReadEdgeChunk(doc, graph, etype, chunkIdx)
		if err != nil {
			return schema.EdgeBatch{}, err
		}
		out.Src = append(out.Src, batch.Src...)
		out.Dst = append(out.Dst, batch.Dst...)
		out.GEID = append(out.GEID, batch.GEID...)
		out.TEID = append(out.TEID, batch.TEID...)
		out.EType = append(out.EType, batch.EType...)
	}
	return out, nil
}

func sortEdgeBatchByTEID(b *schema.EdgeBatch) {
	n := b.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return b.TEID[idx[i]] < b.TEID[idx[j]] })

	src := make([]int64, n)
	dst := make([]int64, n)
	geid := make([]int64, n)
	teid := make([]int64, n)
	etype := make([]int32, n)
	for dstIdx, srcIdx := range idx {
		src[dstIdx] = b.Src[srcIdx]
		dst[dstIdx] = b.Dst[srcIdx]
		geid[dstIdx] = b.GEID[srcIdx]
		teid[dstIdx] = b.TEID[srcIdx]
		etype[dstIdx] = b.EType[srcIdx]
	}
	b.Src, b.Dst, b.GEID, b.TEID, b.EType = src, dst, geid, teid, etype
}

// phaseAssignEdgeShuffleIDs mirrors phaseAssignNodeShuffleIDs for edges:
// one prefix sum over this worker's total edge count per local partition,
// then a contiguous sub-range per edge type in schema order. Unlike node
// shuffle IDs, edge shuffle IDs never need to be scattered through lookup:
// nothing queries shuffle_of for an edge's own ID, only for its endpoints.
func (e *Engine) phaseAssignEdgeShuffleIDs(ctx context.Context, edgeTypes []EdgeTypeBatches, localParts int) (shuffleIDs [][][]int64, starts, totals []int64, err error) {
	localCounts := make([]int64, localParts)
	for lp := 0; lp < localParts; lp++ {
		var c int64
		for _, et := range edgeTypes {
			c += int64(et.Parts[lp].Len())
		}
		localCounts[lp] = c
	}

	starts, totals, err = renumber.AssignShuffleIDs(ctx, e.group, localCounts)
	if err != nil {
		return nil, nil, nil, err
	}

	shuffleIDs = make([][][]int64, len(edgeTypes))
	for i := range shuffleIDs {
		shuffleIDs[i] = make([][]int64, localParts)
	}
	for lp := 0; lp < localParts; lp++ {
		running := starts[lp]
		for ei, et := range edgeTypes {
			n := int64(et.Parts[lp].Len())
			shuffleIDs[ei][lp] = renumber.AssignRange(running, n)
			running += n
		}
	}
	return shuffleIDs, starts, totals, nil
}

// phaseResolveEdgeEndpoints translates every edge's global source and
// destination node IDs into shuffle-global node IDs, via the same lookup
// service phaseAssignNodeShuffleIDs already installed node shuffle IDs
// into.
func (e *Engine) phaseResolveEdgeEndpoints(ctx context.Context, lookup *idlookup.Service, edgeTypes []EdgeTypeBatches) error {
	for i := range edgeTypes {
		et := &edgeTypes[i]
		et.ShuffleSrc = make([][]int64, len(et.Parts))
		et.ShuffleDst = make([][]int64, len(et.Parts))
		for lp, batch := range et.Parts {
			src, dst, err := renumber.ResolveEdgeEndpoints(ctx, lookup, batch.Src, batch.Dst)
			if err != nil {
				return err
			}
			et.ShuffleSrc[lp] = src
			et.ShuffleDst[lp] = dst
		}
	}
	return nil
}
