package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/graphshuffle/shuffle/internal/transport"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// GatherFragments implements "worker 0 gathers all fragments via alltoall
// (one-to-many collected by rank 0)": every worker addresses its fragment
// to rank 0 and sends an empty buffer to every other peer, matching
// AllToAll's symmetric send/recv contract rather than needing a distinct
// gather primitive. Only rank 0's return value is non-nil; every other
// worker has finished participating and may proceed to exit.
func GatherFragments(ctx context.Context, group transport.Group, frag Fragment) ([]Fragment, error) {
	world := group.WorldSize()
	payload, err := json.Marshal(frag)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling metadata fragment: %v", apperrors.ErrIOError, err)
	}

	send := make([][]byte, world)
	send[0] = payload

	recv, err := group.AllToAll(ctx, send)
	if err != nil {
		return nil, fmt.Errorf("%w: gathering metadata fragments: %v", apperrors.ErrTransportError, err)
	}

	if group.Rank() != 0 {
		return nil, nil
	}

	fragments := make([]Fragment, 0, world)
	for _, buf := range recv {
		if len(buf) == 0 {
			continue
		}
		var f Fragment
		if err := json.Unmarshal(buf, &f); err != nil {
			return nil, fmt.Errorf("%w: unmarshaling metadata fragment: %v", apperrors.ErrIOError, err)
		}
		fragments = append(fragments, f)
	}
	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Rank < fragments[j].Rank })
	return fragments, nil
}
