package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/graphshuffle/shuffle/internal/assemble"
	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/renumber"
	"github.com/graphshuffle/shuffle/internal/schema"
	"github.com/graphshuffle/shuffle/internal/shuffle"
	"github.com/graphshuffle/shuffle/pkg/dtype"
)

// featureMsgCapBytes resolves the configured per-message byte cap,
// defaulting to shuffle.DefaultFeatureMsgCapBytes when unset.
func (e *Engine) featureMsgCapBytes() int64 {
	if e.cfg.Shuffle.FeatureMsgCapMB <= 0 {
		return shuffle.DefaultFeatureMsgCapBytes
	}
	return int64(e.cfg.Shuffle.FeatureMsgCapMB) << 20
}

// sortedFeatureNames returns a (type, feature) table's feature names in a
// fixed order, since FeatureShuffler.Shuffle is a collective and every
// worker must call it for the same feature in lockstep.
func sortedFeatureNames(feats map[string]schema.FeatureSpec) []string {
	names := make([]string, 0, len(feats))
	for name := range feats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// phaseShuffleNodeFeatures shuffles every node type's feature tensors,
// routing each row by the owning partition of its node, then restores
// entity order via the node shuffle-ID table phaseAssignNodeShuffleIDs
// already computed. Returns one map per local partition, keyed
// "ntype/featname".
func (e *Engine) phaseShuffleNodeFeatures(ctx context.Context, doc *schema.Document, graph *schema.Graph, lookup *idlookup.Service, nodeTypes []NodeTypeBatches, nodeShuffleIDs [][][]int64, localParts int) ([]map[string]assemble.FeatureTable, error) {
	world := e.group.WorldSize()
	rank := e.group.Rank()
	shuffler := shuffle.NewFeatureShuffler(e.group, e.featureMsgCapBytes())

	out := make([]map[string]assemble.FeatureTable, localParts)
	for lp := range out {
		out[lp] = make(map[string]assemble.FeatureTable)
	}

	for ti, nt := range nodeTypes {
		feats := doc.NodeData[nt.Info.Name]
		for _, fname := range sortedFeatureNames(feats) {
			chunk, globalIDs, err := readLocalNodeFeatureChunks(doc, nt.Info, nt.Info.Name, fname, rank, world, localParts)
			if err != nil {
				return nil, err
			}

			owners, err := lookup.PartitionOf(ctx, globalIDs)
			if err != nil {
				return nil, err
			}

			in := shuffle.FeatureInput{
				DType:     chunk.DType,
				Cols:      chunk.Cols,
				GlobalIDs: globalIDs,
				Owners:    owners,
				Data:      chunk.Data,
			}
			shuffled, err := shuffler.Shuffle(ctx, in, rank, localParts)
			if err != nil {
				return nil, fmt.Errorf("shuffling node feature %s/%s: %w", nt.Info.Name, fname, err)
			}

			rowBytes := dtype.RowBytes(chunk.DType, chunk.Cols)
			for lp, sf := range shuffled {
				data, _, err := renumber.ReorderBy(&sf.Data, rowBytes, sf.GlobalIDs, nt.Parts[lp].GlobalNID, nodeShuffleIDs[ti][lp])
				if err != nil {
					return nil, fmt.Errorf("reordering node feature %s/%s local part %d: %w", nt.Info.Name, fname, lp, err)
				}
				out[lp][nt.Info.Name+"/"+fname] = assemble.FeatureTable{DType: chunk.DType, Cols: chunk.Cols, Data: data}
			}
		}
	}
	return out, nil
}

// phaseShuffleEdgeFeatures is the edge analogue of phaseShuffleNodeFeatures.
// Edge rows are owned by the partition of their destination node, and
// re-identified across the shuffle by their own global_eid; input edges
// are re-read here rather than threaded through from phaseShuffleEdges, so
// that phase's buffers are released before this one allocates its own.
func (e *Engine) phaseShuffleEdgeFeatures(ctx context.Context, doc *schema.Document, graph *schema.Graph, lookup *idlookup.Service, edgeTypes []EdgeTypeBatches, edgeShuffleIDs [][][]int64, localParts int) ([]map[string]assemble.FeatureTable, error) {
	world := e.group.WorldSize()
	rank := e.group.Rank()
	shuffler := shuffle.NewFeatureShuffler(e.group, e.featureMsgCapBytes())

	out := make([]map[string]assemble.FeatureTable, localParts)
	for lp := range out {
		out[lp] = make(map[string]assemble.FeatureTable)
	}

	for ei, et := range edgeTypes {
		feats := doc.EdgeData[et.Info.Name]
		if len(feats) == 0 {
			continue
		}

		local, err := readLocalEdgeChunks(doc, graph, et.Info.Name, rank, world, localParts)
		if err != nil {
			return nil, err
		}
		owners, err := lookup.PartitionOf(ctx, local.Dst)
		if err != nil {
			return nil, err
		}

		for _, fname := range sortedFeatureNames(feats) {
			chunk, _, err := readLocalEdgeFeatureChunks(doc, et.Info.Name, fname, rank, world, localParts)
			if err != nil {
				return nil, err
			}

			in := shuffle.FeatureInput{
				DType:     chunk.DType,
				Cols:      chunk.Cols,
				GlobalIDs: local.GEID,
				Owners:    owners,
				Data:      chunk.Data,
			}
			shuffled, err := shuffler.Shuffle(ctx, in, rank, localParts)
			if err != nil {
				return nil, fmt.Errorf("shuffling edge feature %s/%s: %w", et.Info.Name, fname, err)
			}

			rowBytes := dtype.RowBytes(chunk.DType, chunk.Cols)
			for lp, sf := range shuffled {
				data, _, err := renumber.ReorderBy(&sf.Data, rowBytes, sf.GlobalIDs, et.Parts[lp].GEID, edgeShuffleIDs[ei][lp])
				if err != nil {
					return nil, fmt.Errorf("reordering edge feature %s/%s local part %d: %w", et.Info.Name, fname, lp, err)
				}
				out[lp][et.Info.Name+"/"+fname] = assemble.FeatureTable{DType: chunk.DType, Cols: chunk.Cols, Data: data}
			}
		}
	}
	return out, nil
}

// readLocalNodeFeatureChunks concatenates the localParts input chunks this
// worker reads for one node type's feature, along with the global node ID
// each resulting row belongs to.
func readLocalNodeFeatureChunks(doc *schema.Document, ntInfo schema.TypeInfo, ntype, feature string, rank, world, localParts int) (schema.FeatureChunk, []int64, error) {
	var out schema.FeatureChunk
	var globalIDs []int64
	for lp := 0; lp < localParts; lp++ {
		chunkIdx := rank + lp*world
		chunk, present, err := schema.ReadNodeFeatureChunk(doc, ntype, feature, chunkIdx)
		if err != nil {
			return schema.FeatureChunk{}, nil, err
		}
		if !present {
			continue
		}
		out.DType, out.Cols = chunk.DType, chunk.Cols
		out.Data = append(out.Data, chunk.Data...)
		for tid := chunk.TypeStart; tid < chunk.TypeEnd; tid++ {
			globalIDs = append(globalIDs, ntInfo.Offset+tid)
		}
	}
	return out, globalIDs, nil
}

// readLocalEdgeFeatureChunks is the edge analogue of
// readLocalNodeFeatureChunks. Its second return value (type-local row
// range starts) is unused by callers today but kept for symmetry with the
// node path and future per-chunk diagnostics.
func readLocalEdgeFeatureChunks(doc *schema.Document, etype, feature string, rank, world, localParts int) (schema.FeatureChunk, []int64, error) {
	var out schema.FeatureChunk
	var starts []int64
	for lp := 0; lp < localParts; lp++ {
		chunkIdx := rank + lp*world
		chunk, present, err := schema.ReadEdgeFeatureChunk(doc, etype, feature, chunkIdx)
		if err != nil {
			return schema.FeatureChunk{}, nil, err
		}
		if !present {
			continue
		}
		out.DType, out.Cols = chunk.DType, chunk.Cols
		out.Data = append(out.Data, chunk.Data...)
		starts = append(starts, chunk.TypeStart)
	}
	return out, starts, nil
}

