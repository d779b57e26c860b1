// Package renumber implements C7: assigning contiguous shuffle-global IDs
// to the nodes and edges this worker owns after shuffling, resolving edge
// endpoints into that ID space, and reordering feature rows to match.
package renumber

import (
	"context"
	"fmt"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/transport"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// AssignShuffleIDs runs the deterministic prefix sum over (local_part,
// worker), local partition outer, worker inner, that gives every worker
// its starting shuffle-global ID per local partition. localCounts holds
// this worker's own entity count for each of its localParts local
// partitions, already sorted into the order those entities will be
// numbered in (by (ntype_id, type_nid) for nodes, (etype_id, type_eid)
// for edges). starts[lp] is this worker's first shuffle ID for local
// partition lp; totals[lp] is the combined count across all workers for
// that local partition, used to size the assembled partition object.
func AssignShuffleIDs(ctx context.Context, group transport.Group, localCounts []int64) (starts, totals []int64, err error) {
	localParts := len(localCounts)
	if localParts == 0 {
		return nil, nil, nil
	}
	world := group.WorldSize()
	rank := group.Rank()

	gathered, err := group.AllgatherSizes(ctx, localCounts)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrTransportError, err)
	}
	if len(gathered) != world*localParts {
		return nil, nil, fmt.Errorf("%w: allgather returned %d entries, expected %d", apperrors.ErrShapeMismatch, len(gathered), world*localParts)
	}

	starts = make([]int64, localParts)
	totals = make([]int64, localParts)
	running := int64(0)
	for lp := 0; lp < localParts; lp++ {
		var partTotal int64
		for w := 0; w < world; w++ {
			c := gathered[w*localParts+lp]
			if w == rank {
				starts[lp] = running
			}
			running += c
			partTotal += c
		}
		totals[lp] = partTotal
	}
	return starts, totals, nil
}

// AssignRange materializes the contiguous shuffle-global ID range
// [start, start+count) in ascending order, one ID per already-sorted
// local entry.
func AssignRange(start, count int64) []int64 {
	ids := make([]int64, count)
	for i := range ids {
		ids[i] = start + int64(i)
	}
	return ids
}

// ResolveEdgeEndpoints translates global_src/global_dst arrays into
// shuffle-global IDs by routing both through lookup's shuffle_of, which
// must already have had SetShuffleMap called with this type's renumbered
// assignment. Source and destination are resolved symmetrically, each in
// one batched round trip.
func ResolveEdgeEndpoints(ctx context.Context, lookup *idlookup.Service, globalSrc, globalDst []int64) (shuffleSrc, shuffleDst []int64, err error) {
	shuffleSrc, err = lookup.ShuffleOf(ctx, globalSrc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resolving edge sources: %v", apperrors.ErrTransportError, err)
	}
	shuffleDst, err = lookup.ShuffleOf(ctx, globalDst)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resolving edge destinations: %v", apperrors.ErrTransportError, err)
	}
	return shuffleSrc, shuffleDst, nil
}
