// Package shuffle implements the edge-data shuffler (C4) and the feature
// shuffler (C5): the all-to-all exchange that routes every edge and every
// node/edge feature row to the worker owning it, under a bounded peak
// message size.
package shuffle

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/schema"
	"github.com/graphshuffle/shuffle/internal/transport"
	"github.com/graphshuffle/shuffle/pkg/collections"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
	"github.com/graphshuffle/shuffle/pkg/parallel"
)

// DefaultChunkRows is the reference edge-shuffle chunk cap: the 10^8-row
// value used for production billion-edge graphs.
const DefaultChunkRows = 100_000_000

const edgeColumns = 5 // src, dst, type_eid, etype_id, geid

// EdgeShuffler routes edge records to the worker owning each edge's
// destination node, chunked to bound peak message size.
type EdgeShuffler struct {
	group     transport.Group
	lookup    *idlookup.Service
	chunkRows int64
}

// NewEdgeShuffler builds a shuffler over group/lookup. chunkRows <= 0
// selects DefaultChunkRows.
func NewEdgeShuffler(group transport.Group, lookup *idlookup.Service, chunkRows int64) *EdgeShuffler {
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	return &EdgeShuffler{group: group, lookup: lookup, chunkRows: chunkRows}
}

// Shuffle exchanges local's edges so that, per local partition index l in
// [0, P/W), the returned batch holds exactly the edges whose destination
// is owned by global partition (rank + l*W). Conservation (total edges in
// == total edges out) is checked before returning.
func (s *EdgeShuffler) Shuffle(ctx context.Context, local schema.EdgeBatch, localParts int) ([]schema.EdgeBatch, error) {
	world := s.group.WorldSize()

	localCounts, err := s.group.AllgatherSizes(ctx, []int64{int64(local.Len())})
	if err != nil {
		return nil, fmt.Errorf("%w: edge shuffle size negotiation: %v", apperrors.ErrCollectiveTimeout, err)
	}
	var preTotal int64
	var maxEdges int64
	for _, c := range localCounts {
		preTotal += c
		if c > maxEdges {
			maxEdges = c
		}
	}

	numChunks := ceilDivInt64(maxEdges, s.chunkRows)
	if numChunks < 1 {
		numChunks = 1
	}
	localChunkSize := ceilDivInt64(int64(local.Len()), numChunks)
	if localChunkSize < 1 {
		localChunkSize = 1
	}

	out := make([]schema.EdgeBatch, localParts)
	for localPart := 0; localPart < localParts; localPart++ {
		var accum schema.EdgeBatch
		for chunk := int64(0); chunk < numChunks; chunk++ {
			start := chunk * localChunkSize
			end := start + localChunkSize
			if start > int64(local.Len()) {
				start = int64(local.Len())
			}
			if end > int64(local.Len()) {
				end = int64(local.Len())
			}
			slice := local.Slice(int(start), int(end))

			owners, err := s.lookup.PartitionOf(ctx, slice.Dst)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrTransportError, err)
			}

			sendBufs := make([][]byte, world)
			parallel.ForEach(ctx, peerRange(world), bucketPoolConfig(world), func(_ context.Context, peer int) error {
				target := int32(peer + localPart*world)
				sendBufs[peer] = packEdgeBucket(slice, owners, target)
				return nil
			})

			recvBufs, err := s.group.AllToAll(ctx, sendBufs)
			if err != nil {
				return nil, fmt.Errorf("%w: edge chunk %d/%d local part %d: %v", apperrors.ErrTransportError, chunk, numChunks, localPart, err)
			}
			for _, buf := range recvBufs {
				accum = appendUnpackedEdgeBucket(accum, buf)
			}
		}
		out[localPart] = accum
	}

	var postTotal int64
	for _, b := range out {
		postTotal += int64(b.Len())
	}
	postCounts, err := s.group.AllgatherSizes(ctx, []int64{postTotal})
	if err != nil {
		return nil, fmt.Errorf("%w: edge shuffle conservation check: %v", apperrors.ErrCollectiveTimeout, err)
	}
	var postGrandTotal int64
	for _, c := range postCounts {
		postGrandTotal += c
	}
	if postGrandTotal != preTotal {
		return nil, fmt.Errorf("%w: pre-shuffle edge total %d, post-shuffle %d", apperrors.ErrConservationFailure, preTotal, postGrandTotal)
	}

	return out, nil
}

// peerRange returns [0, world), the per-peer bucketing work items
// parallel.ForEach fans out across a worker pool.
func peerRange(world int) []int {
	peers := make([]int, world)
	for i := range peers {
		peers[i] = i
	}
	return peers
}

// bucketPoolConfig sizes a worker pool to the number of peers being
// bucketed, since a wide group with few peers shouldn't spin up the
// default eight-worker pool for two items of work.
func bucketPoolConfig(world int) parallel.PoolConfig {
	cfg := parallel.DefaultPoolConfig()
	if world < cfg.MaxWorkers {
		cfg = cfg.WithWorkers(world)
	}
	return cfg
}

func ceilDivInt64(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// packEdgeBucket packs every row of slice whose owner equals target into
// one row-major buffer of edgeColumns int64 columns, big-endian.
func packEdgeBucket(slice schema.EdgeBatch, owners []int32, target int32) []byte {
	rows := 0
	for _, o := range owners {
		if o == target {
			rows++
		}
	}
	buf := make([]byte, rows*edgeColumns*8)
	pos := 0
	for i, o := range owners {
		if o != target {
			continue
		}
		writeInt64(buf, pos*8, slice.Src[i])
		writeInt64(buf, (pos+1)*8, slice.Dst[i])
		writeInt64(buf, (pos+2)*8, slice.TEID[i])
		writeInt64(buf, (pos+3)*8, int64(slice.EType[i]))
		writeInt64(buf, (pos+4)*8, slice.GEID[i])
		pos += edgeColumns
	}
	return buf
}

// appendUnpackedEdgeBucket decodes one peer's received bucket straight into
// dst, borrowing its per-column scratch slices from collections' pools
// rather than allocating five fresh slices per chunk per peer. The borrowed
// slices never leave this function: they are copied into dst via append and
// returned to their pools before appendUnpackedEdgeBucket returns.
func appendUnpackedEdgeBucket(dst schema.EdgeBatch, buf []byte) schema.EdgeBatch {
	rows := len(buf) / (edgeColumns * 8)
	if rows == 0 {
		return dst
	}

	srcP, dstP := collections.GetInt64Slice(), collections.GetInt64Slice()
	teidP, geidP := collections.GetInt64Slice(), collections.GetInt64Slice()
	etypeP := collections.GetInt32Slice()
	defer func() {
		collections.PutInt64Slice(srcP)
		collections.PutInt64Slice(dstP)
		collections.PutInt64Slice(teidP)
		collections.PutInt64Slice(geidP)
		collections.PutInt32Slice(etypeP)
	}()

	*srcP, *dstP = growInt64(*srcP, rows), growInt64(*dstP, rows)
	*teidP, *geidP = growInt64(*teidP, rows), growInt64(*geidP, rows)
	*etypeP = growInt32(*etypeP, rows)

	for i := 0; i < rows; i++ {
		pos := i * edgeColumns * 8
		(*srcP)[i] = readInt64(buf, pos)
		(*dstP)[i] = readInt64(buf, pos+8)
		(*teidP)[i] = readInt64(buf, pos+16)
		(*etypeP)[i] = int32(readInt64(buf, pos+24))
		(*geidP)[i] = readInt64(buf, pos+32)
	}

	dst.Src = append(dst.Src, *srcP...)
	dst.Dst = append(dst.Dst, *dstP...)
	dst.TEID = append(dst.TEID, *teidP...)
	dst.EType = append(dst.EType, *etypeP...)
	dst.GEID = append(dst.GEID, *geidP...)
	return dst
}

func growInt64(s []int64, n int) []int64 {
	if cap(s) < n {
		return make([]int64, n)
	}
	return s[:n]
}

func growInt32(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	return s[:n]
}

func writeInt64(buf []byte, off int, v int64) {
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(v))
}

func readInt64(buf []byte, off int) int64 {
	return int64(binary.BigEndian.Uint64(buf[off : off+8]))
}

func encodeInt64s(vals []int64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		writeInt64(buf, i*8, v)
	}
	return buf
}

