package localnode

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/schema"
	"github.com/graphshuffle/shuffle/internal/transport"
)

// buildLookups mirrors the helper in internal/shuffle: one node type
// "paper" of size len(assignment), split cyclically by stride
// ceil(len/world) across workers.
func buildLookups(t *testing.T, world int, assignment []int32) []*idlookup.Service {
	t.Helper()
	reg := transport.NewMemoryRegistry(world)
	count := int64(len(assignment))
	stride := (count + int64(world) - 1) / int64(world)

	services := make([]*idlookup.Service, world)
	for r := 0; r < world; r++ {
		g, err := transport.NewMemoryGroup(reg, r)
		require.NoError(t, err)
		start := int64(r) * stride
		end := start + stride
		if end > count {
			end = count
		}
		if start > count {
			start = count
		}
		tr := idlookup.TypeRange{Name: "paper", Offset: 0, Count: count, LocalStart: start, LocalEnd: end}
		svc, err := idlookup.New(g, []idlookup.TypeRange{tr}, append([]int32(nil), assignment[start:end]...))
		require.NoError(t, err)
		services[r] = svc
	}
	return services
}

func TestSynthesize_PartitionsByOwner(t *testing.T) {
	// 6 nodes of type "paper", owners [0,1,0,1,0,1], 2 workers, 1 local
	// partition each: worker r owns exactly the nodes assigned to r.
	assignment := []int32{0, 1, 0, 1, 0, 1}
	const world = 2
	lookups := buildLookups(t, world, assignment)
	ntInfo := schema.TypeInfo{Name: "paper", Offset: 0, Count: int64(len(assignment))}

	results := make([][]NodeBatch, world)
	var wg sync.WaitGroup
	for r := 0; r < world; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			s := New(lookups[r], r, world)
			out, err := s.Synthesize(context.Background(), ntInfo, 7, 1)
			assert.NoError(t, err)
			results[r] = out
		}(r)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{0, 2, 4}, results[0][0].GlobalNID)
	assert.ElementsMatch(t, []int64{0, 2, 4}, results[0][0].TypeNID)
	assert.Equal(t, int32(7), results[0][0].NTypeID)

	assert.ElementsMatch(t, []int64{1, 3, 5}, results[1][0].GlobalNID)
	assert.ElementsMatch(t, []int64{1, 3, 5}, results[1][0].TypeNID)
}

func TestSynthesize_MultipleLocalPartitions(t *testing.T) {
	// 1 worker, 4 global partitions -> 4 local partitions, cyclic map
	// global_part = worker + local_part*world = local_part since world=1.
	assignment := []int32{0, 1, 2, 3, 0, 1, 2, 3}
	const world = 1
	reg := transport.NewMemoryRegistry(world)
	g, err := transport.NewMemoryGroup(reg, 0)
	require.NoError(t, err)
	tr := idlookup.TypeRange{Name: "paper", Offset: 100, Count: int64(len(assignment)), LocalStart: 0, LocalEnd: int64(len(assignment))}
	lookup, err := idlookup.New(g, []idlookup.TypeRange{tr}, assignment)
	require.NoError(t, err)
	ntInfo := schema.TypeInfo{Name: "paper", Offset: 100, Count: int64(len(assignment))}

	s := New(lookup, 0, world)
	out, err := s.Synthesize(context.Background(), ntInfo, 0, 4)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{100, 104}, out[0].GlobalNID)
	assert.ElementsMatch(t, []int64{0, 4}, out[0].TypeNID)
	assert.ElementsMatch(t, []int64{101, 105}, out[1].GlobalNID)
	assert.ElementsMatch(t, []int64{102, 106}, out[2].GlobalNID)
	assert.ElementsMatch(t, []int64{103, 107}, out[3].GlobalNID)
}

func TestSynthesize_EmptyType(t *testing.T) {
	const world = 1
	lookups := buildLookups(t, world, []int32{})
	ntInfo := schema.TypeInfo{Name: "paper", Offset: 0, Count: 0}

	s := New(lookups[0], 0, world)
	out, err := s.Synthesize(context.Background(), ntInfo, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, out[0].Len())
}

func TestSynthesize_UnevenStrideTail(t *testing.T) {
	// Force more than one query batch by shrinking the batch size via a
	// count larger than a single round would normally need is impractical
	// in a unit test (queryBatchSize is 1e6); instead this exercises the
	// single-batch path with a non-trivial world size to catch off-by-one
	// errors in stride math at the tail of the range.
	const n = 10
	assignment := make([]int32, n)
	for i := range assignment {
		assignment[i] = int32(i % 3)
	}
	const world = 3
	lookups := buildLookups(t, world, assignment)
	ntInfo := schema.TypeInfo{Name: "paper", Offset: 0, Count: n}

	results := make([][]NodeBatch, world)
	var wg sync.WaitGroup
	for r := 0; r < world; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			s := New(lookups[r], r, world)
			out, err := s.Synthesize(context.Background(), ntInfo, 1, 1)
			assert.NoError(t, err)
			results[r] = out
		}(r)
	}
	wg.Wait()

	total := 0
	for r := 0; r < world; r++ {
		total += results[r][0].Len()
		for _, gid := range results[r][0].GlobalNID {
			assert.Equal(t, int32(r), assignment[gid])
		}
	}
	assert.Equal(t, n, total)
}
