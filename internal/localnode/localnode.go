// Package localnode synthesizes this worker's owned node records directly
// from the partition assignment, without ever reading a node chunk file:
// nodes are enumerated, not read.
package localnode

import (
	"context"
	"fmt"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/schema"
	"github.com/graphshuffle/shuffle/internal/transport"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// NodeBatch is the struct-of-arrays node record this worker owns for one
// local partition of one node type.
type NodeBatch struct {
	GlobalNID []int64
	TypeNID   []int64
	NTypeID   int32
}

// Len returns the number of nodes in the batch.
func (b NodeBatch) Len() int { return len(b.GlobalNID) }

// Synthesizer enumerates every node type's global ID range through the ID
// lookup service and buckets the results by local partition.
type Synthesizer struct {
	lookup *idlookup.Service
	group  transport.Group
	rank   int
	world  int
}

// New builds a Synthesizer over lookup for the given rank/world.
func New(lookup *idlookup.Service, rank, world int) *Synthesizer {
	return &Synthesizer{lookup: lookup, group: lookup.Group(), rank: rank, world: world}
}

// queryBatchSize caps how many global IDs are queried in a single
// PartitionOf call, bounding the request/response buffers the enumeration
// walk allocates per round.
const queryBatchSize = 1_000_000

// Synthesize enumerates node type nt (schema offset/count in ntInfo) and
// returns, per local partition in [0, localParts), the nodes this worker
// owns. Every worker enumerates the type's full [0, Count) range rather
// than only its own slice, since ownership is not known ahead of query.
//
// A barrier runs before the first PartitionOf query so that a worker
// which finishes a lopsided prior node type early does not race ahead
// into this type's query round while slower peers are still answering
// the previous one.
func (s *Synthesizer) Synthesize(ctx context.Context, ntInfo schema.TypeInfo, ntypeID int32, localParts int) ([]NodeBatch, error) {
	out := make([]NodeBatch, localParts)
	for i := range out {
		out[i].NTypeID = ntypeID
	}
	if ntInfo.Count <= 0 {
		return out, nil
	}

	if err := s.group.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCollectiveTimeout, err)
	}

	for batchStart := int64(0); batchStart < ntInfo.Count; batchStart += queryBatchSize {
		batchEnd := batchStart + queryBatchSize
		if batchEnd > ntInfo.Count {
			batchEnd = ntInfo.Count
		}
		n := batchEnd - batchStart
		globalIDs := make([]int64, n)
		typeIDs := make([]int64, n)
		for i := int64(0); i < n; i++ {
			typeIDs[i] = batchStart + i
			globalIDs[i] = ntInfo.Offset + typeIDs[i]
		}

		owners, err := s.lookup.PartitionOf(ctx, globalIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrAssignmentOutOfRange, err)
		}

		for localPart := 0; localPart < localParts; localPart++ {
			target := int32(s.rank + localPart*s.world)
			for i, owner := range owners {
				if owner != target {
					continue
				}
				out[localPart].GlobalNID = append(out[localPart].GlobalNID, globalIDs[i])
				out[localPart].TypeNID = append(out[localPart].TypeNID, typeIDs[i])
			}
		}
	}
	return out, nil
}
