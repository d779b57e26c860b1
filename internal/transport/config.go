// Package transport implements the collective process-group primitives
// (allgather_sizes, alltoall, barrier) every cross-worker exchange in the
// shuffle pipeline goes through. The group's rendezvous configuration is an
// explicit struct rather than environment-variable globals, so a worker can
// be constructed and tested without touching the process environment.
package transport

import (
	"time"

	"github.com/graphshuffle/shuffle/pkg/compression"
)

// Config describes one worker's view of the process group.
type Config struct {
	// Backend selects the wire implementation. Only "tcp" is implemented;
	// New rejects "memory", since the in-process stub used by tests is
	// built with NewMemoryGroup over a shared MemoryRegistry.
	Backend string

	Rank       int
	WorldSize  int
	MasterAddr string
	MasterPort int
	Timeout    time.Duration

	// Codec, when non-nil, compresses AllToAll payloads before send and
	// decompresses them on receive. Left nil (TypeNone) by default so wire
	// bytes match the uncompressed baseline and determinism is unaffected.
	Codec compression.Compressor
}

// DefaultTimeout matches the reference single-machine default of five
// minutes for process-group rendezvous and collective calls.
const DefaultTimeout = 5 * time.Minute

// listenPort returns the TCP port a given rank listens on: each rank owns
// MasterPort+rank, so a single MasterAddr/MasterPort pair plus the world
// size fully determines every peer's address.
func (c Config) listenPort(rank int) int {
	return c.MasterPort + rank
}
