package transport

import (
	"context"
	"fmt"
)

// MemoryRegistry is the in-process rendezvous point for "memory" backend
// groups: every rank in a test calls NewMemoryGroup with the same registry,
// and the registry hands back channel-connected peers instead of sockets.
// This is the stub named in the interfaces contract for unit tests that
// exercise a shuffle phase without binding real ports.
type MemoryRegistry struct {
	worldSize int

	sizesIn   []chan []int64
	dataIn    []chan [][]byte
	barrierIn []chan struct{}
}

// NewMemoryRegistry creates a registry for a fixed-size group of in-process
// ranks. Every rank must call NewMemoryGroup(registry, rank) before any of
// them invoke a collective, or the collective blocks forever.
func NewMemoryRegistry(worldSize int) *MemoryRegistry {
	r := &MemoryRegistry{
		worldSize: worldSize,
		sizesIn:   make([]chan []int64, worldSize),
		dataIn:    make([]chan [][]byte, worldSize),
		barrierIn: make([]chan struct{}, worldSize),
	}
	for i := 0; i < worldSize; i++ {
		r.sizesIn[i] = make(chan []int64, worldSize)
		r.dataIn[i] = make(chan [][]byte, worldSize)
		r.barrierIn[i] = make(chan struct{}, worldSize)
	}
	return r
}

// memoryGroup implements Group by exchanging messages through its shared
// MemoryRegistry's per-rank channels. Every collective here is expressed as
// "broadcast to everyone's inbox, then drain your own inbox", matching the
// shape of tcpGroup's broadcastGather without any network I/O.
type memoryGroup struct {
	reg  *MemoryRegistry
	rank int
}

// NewMemoryGroup returns this rank's handle on reg. Every rank in the group
// must call this before any rank issues a collective call.
func NewMemoryGroup(reg *MemoryRegistry, rank int) (Group, error) {
	if rank < 0 || rank >= reg.worldSize {
		return nil, fmt.Errorf("transport: rank %d out of range [0, %d)", rank, reg.worldSize)
	}
	return &memoryGroup{reg: reg, rank: rank}, nil
}

func (g *memoryGroup) Rank() int      { return g.rank }
func (g *memoryGroup) WorldSize() int { return g.reg.worldSize }
func (g *memoryGroup) Close() error   { return nil }

func (g *memoryGroup) AllgatherSizes(ctx context.Context, local []int64) ([]int64, error) {
	// Each message carries its sender's rank in slot 0 so the result is laid
	// out in rank order whatever order the messages arrive in.
	msg := append([]int64{int64(g.rank)}, local...)
	for r := 0; r < g.reg.worldSize; r++ {
		g.reg.sizesIn[r] <- msg
	}
	byRank := make([][]int64, g.reg.worldSize)
	for r := 0; r < g.reg.worldSize; r++ {
		select {
		case v := <-g.reg.sizesIn[g.rank]:
			byRank[v[0]] = v[1:]
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]int64, 0, len(local)*g.reg.worldSize)
	for _, v := range byRank {
		out = append(out, v...)
	}
	return out, nil
}

func (g *memoryGroup) Barrier(ctx context.Context) error {
	for r := 0; r < g.reg.worldSize; r++ {
		g.reg.barrierIn[r] <- struct{}{}
	}
	for r := 0; r < g.reg.worldSize; r++ {
		select {
		case <-g.reg.barrierIn[g.rank]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (g *memoryGroup) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != g.reg.worldSize {
		return nil, fmt.Errorf("transport: alltoall expects %d buffers, got %d", g.reg.worldSize, len(send))
	}
	if err := g.Barrier(ctx); err != nil {
		return nil, err
	}

	for r := 0; r < g.reg.worldSize; r++ {
		// Each rank posts one row into every recipient's inbox: row g.rank
		// holds what g.rank is sending to that recipient.
		row := make([][]byte, g.reg.worldSize)
		row[g.rank] = send[r]
		g.reg.dataIn[r] <- row
	}

	result := make([][]byte, g.reg.worldSize)
	for r := 0; r < g.reg.worldSize; r++ {
		select {
		case row := <-g.reg.dataIn[g.rank]:
			for sender, payload := range row {
				if payload != nil || sender == g.rank {
					result[sender] = payload
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := g.Barrier(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
