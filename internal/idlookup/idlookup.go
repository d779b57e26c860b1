// Package idlookup implements the distributed ID lookup service: a global
// node ID maps to exactly one partition ID, and later, once renumbering has
// run, to exactly one shuffle-global ID. Every worker holds only its own
// cyclic slice of the assignment table, so any lookup that crosses a slice
// boundary is answered by routing a batched query through the collective
// transport rather than by replicating the whole table in memory.
package idlookup

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/graphshuffle/shuffle/internal/transport"
	"github.com/graphshuffle/shuffle/pkg/collections"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
	"github.com/graphshuffle/shuffle/pkg/parallel"
)

// TypeRange describes one node type's position in the dense global ID
// space and the size of the per-type partition assignment slice this
// worker holds locally.
type TypeRange struct {
	Name       string
	Offset     int64 // offset(t): first global ID belonging to this type
	Count      int64 // Nt: number of nodes of this type
	LocalStart int64 // first type-local ID owned by this worker's slice
	LocalEnd   int64 // exclusive end of this worker's slice
}

// Service answers partition_of and, after SetShuffleMap, shuffle_of queries
// for global node IDs, without any worker ever holding the full table.
type Service struct {
	group transport.Group

	types      []TypeRange
	assignment []int32 // this worker's local slice, concatenated across types in order

	shuffleIDs []int64 // set by SetShuffleMap, same shape as assignment
	hasShuffle bool
}

// New builds a lookup service over the given type ranges, with assignment
// holding this worker's concatenated local slice (one int32 per ID in
// [LocalStart, LocalEnd) for each type, in the order types are listed).
func New(group transport.Group, types []TypeRange, assignment []int32) (*Service, error) {
	var want int64
	for _, tr := range types {
		if tr.LocalEnd < tr.LocalStart {
			return nil, fmt.Errorf("%w: type %q has LocalEnd < LocalStart", apperrors.ErrSchemaError, tr.Name)
		}
		want += tr.LocalEnd - tr.LocalStart
	}
	if int64(len(assignment)) != want {
		return nil, fmt.Errorf("%w: assignment has %d entries, expected %d", apperrors.ErrShapeMismatch, len(assignment), want)
	}
	return &Service{group: group, types: types, assignment: assignment}, nil
}

// responsibleWorker returns the rank that holds globalID in its local
// slice, along with the type it belongs to and its type-local ID within
// that type.
func (s *Service) responsibleWorker(globalID int64) (rank int, tr TypeRange, localIdx int64, err error) {
	t, typeLocal, err := s.typeOf(globalID)
	if err != nil {
		return 0, TypeRange{}, 0, err
	}
	world := s.group.WorldSize()
	stride := ceilDiv(t.Count, int64(world))
	rank = int(typeLocal / stride)
	if rank >= world {
		rank = world - 1
	}
	return rank, t, typeLocal, nil
}

// typeOf returns the type a global ID belongs to and its type-local ID,
// independent of which worker is responsible for answering queries about it.
func (s *Service) typeOf(globalID int64) (TypeRange, int64, error) {
	for _, t := range s.types {
		if globalID >= t.Offset && globalID < t.Offset+t.Count {
			return t, globalID - t.Offset, nil
		}
	}
	return TypeRange{}, 0, fmt.Errorf("%w: global ID %d outside all known type ranges", apperrors.ErrAssignmentOutOfRange, globalID)
}

// peerIndices returns [0, world), the per-peer work items answerPoolConfig
// fans a query round's answer construction across.
func peerIndices(world int) []int {
	peers := make([]int, world)
	for i := range peers {
		peers[i] = i
	}
	return peers
}

// answerPoolConfig sizes a worker pool to the number of peers being
// answered, so a narrow group doesn't spin up the default eight-worker
// pool to answer two peers.
func answerPoolConfig(world int) parallel.PoolConfig {
	cfg := parallel.DefaultPoolConfig()
	if world < cfg.MaxWorkers {
		cfg = cfg.WithWorkers(world)
	}
	return cfg
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// localSliceIndex returns this worker's index into its own assignment
// slice for a query that this worker is responsible for answering.
func (s *Service) localSliceIndex(tr TypeRange, typeLocal int64) (int64, error) {
	if typeLocal < tr.LocalStart || typeLocal >= tr.LocalEnd {
		return 0, fmt.Errorf("%w: type-local id %d not within this worker's slice [%d,%d)", apperrors.ErrAssignmentOutOfRange, typeLocal, tr.LocalStart, tr.LocalEnd)
	}
	base := int64(0)
	for _, t := range s.types {
		if t.Name == tr.Name {
			return base + (typeLocal - tr.LocalStart), nil
		}
		base += t.LocalEnd - t.LocalStart
	}
	return 0, fmt.Errorf("%w: type %q not registered", apperrors.ErrSchemaError, tr.Name)
}

// query groups globalIDs by the worker responsible for each one, exchanges
// the grouped requests via one alltoall, answers peers' requests from the
// local store via answer, exchanges the answers via a second alltoall, and
// reassembles results in the caller's original order.
func (s *Service) query(ctx context.Context, globalIDs []int64, answer func(idx int64) (int64, error)) ([]int64, error) {
	world := s.group.WorldSize()
	requestsByPeer := make([][]int64, world)
	originalIndexByPeer := make([][]int, world)

	for i, gid := range globalIDs {
		peer, _, _, err := s.responsibleWorker(gid)
		if err != nil {
			return nil, err
		}
		requestsByPeer[peer] = append(requestsByPeer[peer], gid)
		originalIndexByPeer[peer] = append(originalIndexByPeer[peer], i)
	}

	sendBufs := make([][]byte, world)
	for peer := 0; peer < world; peer++ {
		sendBufs[peer] = encodeInt64s(requestsByPeer[peer])
	}

	recvBufs, err := s.group.AllToAll(ctx, sendBufs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransportError, err)
	}

	// Each peer's batch of requests is answered independently of every
	// other peer's, so the per-peer answer construction (a handful of map
	// lookups and slice index arithmetic per request) runs across a small
	// worker pool rather than one goroutine walking every peer in turn.
	answerBufs := make([][]byte, world)
	_, ferr := parallel.ForEach(ctx, peerIndices(world), answerPoolConfig(world), func(_ context.Context, peer int) error {
		buf := recvBufs[peer]
		gids := decodeInt64s(buf)
		resp := make([]int64, len(gids))
		for i, gid := range gids {
			tr, typeLocal, err := s.typeOf(gid)
			if err != nil {
				return err
			}
			idx, err := s.localSliceIndex(tr, typeLocal)
			if err != nil {
				return err
			}
			val, err := answer(idx)
			if err != nil {
				return err
			}
			resp[i] = val
		}
		answerBufs[peer] = encodeInt64s(resp)
		return nil
	})
	if ferr != nil {
		return nil, ferr
	}

	answeredBufs, err := s.group.AllToAll(ctx, answerBufs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransportError, err)
	}

	result := make([]int64, len(globalIDs))
	for peer, buf := range answeredBufs {
		vals := decodeInt64s(buf)
		for i, origIdx := range originalIndexByPeer[peer] {
			result[origIdx] = vals[i]
		}
	}
	return result, nil
}

// typeOfGlobalTypeLocal returns the first registered type whose local slice
// contains typeLocal. Local slices of different types can overlap, so with
// more than one type the answer is the first match in registration order;
// query identifies types from global IDs via typeOf instead.
func (s *Service) typeOfGlobalTypeLocal(typeLocal int64) (TypeRange, error) {
	for _, t := range s.types {
		if typeLocal >= t.LocalStart && typeLocal < t.LocalEnd {
			return t, nil
		}
	}
	return TypeRange{}, fmt.Errorf("%w: type-local id %d not answerable by this worker", apperrors.ErrAssignmentOutOfRange, typeLocal)
}

// PartitionOf batch-resolves global node IDs to partition IDs.
func (s *Service) PartitionOf(ctx context.Context, globalIDs []int64) ([]int32, error) {
	vals, err := s.query(ctx, globalIDs, func(idx int64) (int64, error) {
		if idx < 0 || idx >= int64(len(s.assignment)) {
			return 0, fmt.Errorf("%w: local slice index %d out of range", apperrors.ErrAssignmentOutOfRange, idx)
		}
		return int64(s.assignment[idx]), nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = int32(v)
	}
	return out, nil
}

// SetShuffleMap installs the shuffle-global ID for every entry this worker
// is locally responsible for, in the same order/shape as the assignment
// slice passed to New. Must be called after C7 finishes renumbering and
// before any ShuffleOf query.
func (s *Service) SetShuffleMap(shuffleIDs []int64) error {
	if len(shuffleIDs) != len(s.assignment) {
		return fmt.Errorf("%w: shuffle map has %d entries, expected %d", apperrors.ErrShapeMismatch, len(shuffleIDs), len(s.assignment))
	}
	s.shuffleIDs = shuffleIDs
	s.hasShuffle = true
	return nil
}

// ScatterShuffleIDs installs this worker's shuffle-global ID for every
// global ID in its own assignment slice, sourced from whichever worker
// actually computed it. Each caller passes the (global ID, shuffle ID)
// pairs it locally produced while assigning shuffle IDs to the entities it
// owns; ScatterShuffleIDs routes each pair to the worker whose assignment
// slice covers that global ID, using the same grouped-alltoall pattern
// query uses, and every worker installs the pairs addressed to it. Every
// worker must call this exactly once with its own complete set of
// locally-owned pairs, since it drives two collectives.
func (s *Service) ScatterShuffleIDs(ctx context.Context, globalIDs, shuffleIDs []int64) error {
	if len(globalIDs) != len(shuffleIDs) {
		return fmt.Errorf("%w: %d global ids, %d shuffle ids", apperrors.ErrShapeMismatch, len(globalIDs), len(shuffleIDs))
	}
	world := s.group.WorldSize()
	gidsByPeer := make([][]int64, world)
	sidsByPeer := make([][]int64, world)
	for i, gid := range globalIDs {
		peer, _, _, err := s.responsibleWorker(gid)
		if err != nil {
			return err
		}
		gidsByPeer[peer] = append(gidsByPeer[peer], gid)
		sidsByPeer[peer] = append(sidsByPeer[peer], shuffleIDs[i])
	}

	sendGIDs := make([][]byte, world)
	sendSIDs := make([][]byte, world)
	for peer := 0; peer < world; peer++ {
		sendGIDs[peer] = encodeInt64s(gidsByPeer[peer])
		sendSIDs[peer] = encodeInt64s(sidsByPeer[peer])
	}

	recvGIDs, err := s.group.AllToAll(ctx, sendGIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportError, err)
	}
	recvSIDs, err := s.group.AllToAll(ctx, sendSIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportError, err)
	}

	if s.shuffleIDs == nil {
		s.shuffleIDs = make([]int64, len(s.assignment))
	}
	filled := collections.NewBitset(len(s.assignment))
	for peer := range recvGIDs {
		gids := decodeInt64s(recvGIDs[peer])
		sids := decodeInt64s(recvSIDs[peer])
		for i, gid := range gids {
			tr, typeLocal, err := s.typeOf(gid)
			if err != nil {
				return err
			}
			idx, err := s.localSliceIndex(tr, typeLocal)
			if err != nil {
				return err
			}
			if filled.Test(int(idx)) {
				return fmt.Errorf("%w: local slice index %d received a shuffle id more than once", apperrors.ErrConservationFailure, idx)
			}
			filled.Set(int(idx))
			s.shuffleIDs[idx] = sids[i]
		}
	}
	if filled.Count() != len(s.assignment) {
		return fmt.Errorf("%w: %d of %d local assignment slots received a shuffle id", apperrors.ErrConservationFailure, filled.Count(), len(s.assignment))
	}
	s.hasShuffle = true
	return nil
}

// ShuffleOf batch-resolves global node IDs to their post-shuffle dense IDs.
func (s *Service) ShuffleOf(ctx context.Context, globalIDs []int64) ([]int64, error) {
	if !s.hasShuffle {
		return nil, fmt.Errorf("%w: shuffle map not set", apperrors.ErrConfigError)
	}
	return s.query(ctx, globalIDs, func(idx int64) (int64, error) {
		if idx < 0 || idx >= int64(len(s.shuffleIDs)) {
			return 0, fmt.Errorf("%w: local slice index %d out of range", apperrors.ErrAssignmentOutOfRange, idx)
		}
		return s.shuffleIDs[idx], nil
	})
}

func encodeInt64s(vals []int64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func decodeInt64s(buf []byte) []int64 {
	n := len(buf) / 8
	vals := make([]int64, n)
	for i := 0; i < n; i++ {
		vals[i] = int64(binary.BigEndian.Uint64(buf[i*8:]))
	}
	return vals
}

// Group returns the transport group this service was constructed with, so
// callers that also need raw collectives (the edge and feature shufflers)
// can share one group instance instead of opening a second one.
func (s *Service) Group() transport.Group { return s.group }

// SortedTypeRanges returns types sorted by Offset, the order schema offsets
// are computed in; callers building a Service should pass ranges in this
// order so responsibleWorker's scan matches global ID layout.
func SortedTypeRanges(types []TypeRange) []TypeRange {
	out := make([]TypeRange, len(types))
	copy(out, types)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
