package transport

import (
	"context"
	"errors"
)

// errBackendRequiresRegistry is returned when New is asked to build a
// "memory" group: in-process peers must share a MemoryRegistry, which only
// the caller can construct and hand to each rank via NewMemoryGroup.
var errBackendRequiresRegistry = errors.New("transport: memory backend requires NewMemoryGroup with a shared MemoryRegistry")

// Group is the collective process-group interface every shuffle phase
// drives its cross-worker exchanges through. Implementations must preserve
// sender-rank order in AllToAll results and treat a zero-length send as an
// empty buffer rather than an omission.
type Group interface {
	// Rank returns this peer's rank in [0, WorldSize).
	Rank() int

	// WorldSize returns the number of peers in the group.
	WorldSize() int

	// AllgatherSizes concatenates every peer's local vector, in rank order.
	AllgatherSizes(ctx context.Context, local []int64) ([]int64, error)

	// AllToAll sends send[i] to peer i and returns, at index i, the buffer
	// received from peer i. len(send) and the returned slice both equal
	// WorldSize().
	AllToAll(ctx context.Context, send [][]byte) ([][]byte, error)

	// Barrier blocks until every peer has called Barrier.
	Barrier(ctx context.Context) error

	// Close releases the group's transport resources.
	Close() error
}

// New constructs a Group from cfg. The "memory" backend is for tests; "tcp"
// is the real rendezvous-connected implementation.
func New(ctx context.Context, cfg Config) (Group, error) {
	switch cfg.Backend {
	case "", "tcp":
		return newTCPGroup(ctx, cfg)
	case "memory":
		return nil, errBackendRequiresRegistry
	default:
		return nil, &UnsupportedBackendError{Backend: cfg.Backend}
	}
}

// UnsupportedBackendError is returned by New for an unrecognized backend.
type UnsupportedBackendError struct {
	Backend string
}

func (e *UnsupportedBackendError) Error() string {
	return "transport: unsupported backend " + e.Backend
}
