package shuffle

import (
	"context"
	"fmt"

	"github.com/graphshuffle/shuffle/internal/transport"
	"github.com/graphshuffle/shuffle/pkg/collections"
	"github.com/graphshuffle/shuffle/pkg/dtype"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
	"github.com/graphshuffle/shuffle/pkg/parallel"
)

// DefaultFeatureMsgCapBytes is the reference feature-shuffle per-message
// byte cap (200 MiB), within the spec's documented 1 MiB-256 MiB tunable
// range.
const DefaultFeatureMsgCapBytes = 200 << 20

// FeatureInput is one worker's locally-read rows for a (type, feature)
// tensor, together with the global ID each row belongs to (node global ID,
// or the edge's global_eid for edge features) and that row's owning
// partition, already resolved by the caller via PartitionOf/destination
// lookup per spec section 4.5.
type FeatureInput struct {
	DType   dtype.Type
	Cols    int
	GlobalIDs []int64 // len == Rows
	Owners    []int32 // global partition ID per row, len == Rows
	Data      []byte  // row-major, len == Rows * RowBytes
}

// FeatureShuffler routes feature rows to the worker owning each row, in
// chunks bounded by a byte-size cap rather than a row-count cap, since
// feature dtype/width varies per (type, feature).
type FeatureShuffler struct {
	group     transport.Group
	msgCapBytes int64
}

// NewFeatureShuffler builds a shuffler. msgCapBytes <= 0 selects
// DefaultFeatureMsgCapBytes.
func NewFeatureShuffler(group transport.Group, msgCapBytes int64) *FeatureShuffler {
	if msgCapBytes <= 0 {
		msgCapBytes = DefaultFeatureMsgCapBytes
	}
	return &FeatureShuffler{group: group, msgCapBytes: msgCapBytes}
}

// ShuffledFeature is the result of shuffling one (type, feature) tensor
// for one local partition: the feature bytes this worker now owns, and
// the global ID each received row belongs to, in arrival order (receiver
// concatenation order, sender-rank order). A later renumber-reorder pass
// restores entity order.
type ShuffledFeature struct {
	DType     dtype.Type
	Cols      int
	GlobalIDs []int64
	Data      []byte
}

// Shuffle negotiates shape/dtype across the group, then routes in has
// rows to their owning local partition in localPart, for each of the P/W
// local partitions this worker owns. in may be nil/zero-valued on workers
// that hold no rows for this feature; they still participate in the
// negotiation and send zero-row buffers, per spec section 4.5.
func (s *FeatureShuffler) Shuffle(ctx context.Context, in FeatureInput, rank, localParts int) ([]ShuffledFeature, error) {
	world := s.group.WorldSize()

	dt, cols, present, err := s.negotiateShape(ctx, in)
	if err != nil {
		return nil, err
	}
	if !present {
		return make([]ShuffledFeature, localParts), nil
	}
	if in.DType != dtype.Invalid && in.DType != dt {
		return nil, fmt.Errorf("%w: local dtype %s disagrees with negotiated %s", apperrors.ErrShapeMismatch, in.DType, dt)
	}

	rowBytes := dtype.RowBytes(dt, cols)
	out := make([]ShuffledFeature, localParts)

	for localPart := 0; localPart < localParts; localPart++ {
		target0 := localPart * world

		rowsByPeer := make([][]int, world) // row indices in `in` destined for each peer
		for i, owner := range in.Owners {
			peer := int(owner) - target0
			if peer < 0 || peer >= world {
				continue // belongs to a different local partition pass
			}
			rowsByPeer[peer] = append(rowsByPeer[peer], i)
		}

		numChunks := maxChunksAcrossPeers(rowsByPeer, rowBytes, s.msgCapBytes)
		accumData := make([]byte, 0)
		accumIDs := make([]int64, 0)

		for chunk := 0; chunk < numChunks; chunk++ {
			sendData := make([][]byte, world)
			sendIDs := make([][]byte, world)
			parallel.ForEach(ctx, peerRange(world), bucketPoolConfig(world), func(_ context.Context, peer int) error {
				rows := chunkSlice(rowsByPeer[peer], chunk, numChunks)
				sendData[peer] = packFeatureRows(in.Data, rowBytes, rows)
				sendIDs[peer] = encodeInt64s(pickInt64s(in.GlobalIDs, rows))
				return nil
			})

			recvData, err := s.group.AllToAll(ctx, sendData)
			if err != nil {
				return nil, fmt.Errorf("%w: feature data chunk %d/%d: %v", apperrors.ErrTransportError, chunk, numChunks, err)
			}
			recvIDs, err := s.group.AllToAll(ctx, sendIDs)
			if err != nil {
				return nil, fmt.Errorf("%w: feature id chunk %d/%d: %v", apperrors.ErrTransportError, chunk, numChunks, err)
			}
			for peer := 0; peer < world; peer++ {
				accumData = append(accumData, recvData[peer]...)
				accumIDs = appendDecodedInt64s(accumIDs, recvIDs[peer])
			}
		}

		out[localPart] = ShuffledFeature{DType: dt, Cols: cols, GlobalIDs: accumIDs, Data: accumData}
	}

	return out, nil
}

// negotiateShape exchanges [dtype_tag, cols] so that workers with no rows
// still learn the canonical shape, and can tell "nobody has data" (skip
// entirely) from "I personally have none" (still participate).
func (s *FeatureShuffler) negotiateShape(ctx context.Context, in FeatureInput) (dtype.Type, int, bool, error) {
	local := []int64{0, 0}
	if len(in.GlobalIDs) > 0 || in.DType != dtype.Invalid {
		local = []int64{int64(in.DType), int64(in.Cols)}
	}
	all, err := s.group.AllgatherSizes(ctx, local)
	if err != nil {
		return dtype.Invalid, 0, false, fmt.Errorf("%w: feature shape negotiation: %v", apperrors.ErrCollectiveTimeout, err)
	}
	if len(all)%2 != 0 {
		return dtype.Invalid, 0, false, fmt.Errorf("%w: malformed shape negotiation response", apperrors.ErrShapeMismatch)
	}
	var dt dtype.Type
	var cols int
	found := false
	for i := 0; i < len(all); i += 2 {
		d, c := dtype.Type(all[i]), int(all[i+1])
		if d == dtype.Invalid && c == 0 {
			continue
		}
		if !found {
			dt, cols, found = d, c, true
			continue
		}
		if d != dt || c != cols {
			return dtype.Invalid, 0, false, fmt.Errorf("%w: feature shape/dtype disagreement across workers", apperrors.ErrShapeMismatch)
		}
	}
	if !found {
		return dtype.Invalid, 0, false, nil
	}
	return dt, cols, true, nil
}

func maxChunksAcrossPeers(rowsByPeer [][]int, rowBytes int, capBytes int64) int {
	max := 1
	for _, rows := range rowsByPeer {
		bytes := int64(len(rows)) * int64(rowBytes)
		n := ceilDivInt64(bytes, capBytes)
		if n < 1 {
			n = 1
		}
		if int(n) > max {
			max = int(n)
		}
	}
	return max
}

func chunkSlice(rows []int, chunk, numChunks int) []int {
	if len(rows) == 0 {
		return nil
	}
	per := (len(rows) + numChunks - 1) / numChunks
	if per < 1 {
		per = 1
	}
	start := chunk * per
	if start > len(rows) {
		start = len(rows)
	}
	end := start + per
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func packFeatureRows(data []byte, rowBytes int, rows []int) []byte {
	buf := make([]byte, len(rows)*rowBytes)
	for i, r := range rows {
		copy(buf[i*rowBytes:(i+1)*rowBytes], data[r*rowBytes:(r+1)*rowBytes])
	}
	return buf
}

// appendDecodedInt64s decodes buf's big-endian int64s straight into dst,
// via a pooled scratch slice rather than a fresh per-call allocation, since
// the decoded values are copied out by append before this function returns
// and the scratch slice never escapes it.
func appendDecodedInt64s(dst []int64, buf []byte) []int64 {
	n := len(buf) / 8
	if n == 0 {
		return dst
	}
	p := collections.GetInt64Slice()
	defer collections.PutInt64Slice(p)
	*p = growInt64(*p, n)
	for i := 0; i < n; i++ {
		(*p)[i] = readInt64(buf, i*8)
	}
	return append(dst, *p...)
}

func pickInt64s(vals []int64, idx []int) []int64 {
	out := make([]int64, len(idx))
	for i, v := range idx {
		out[i] = vals[v]
	}
	return out
}
