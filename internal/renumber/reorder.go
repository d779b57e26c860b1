package renumber

import (
	"fmt"
	"sort"

	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// ReorderBy restores row order after a C5 feature shuffle. Feature rows
// arrive keyed by global_id in arrival order (sender-rank order, not
// entity order); after renumbering, row i of the owning partition's
// feature table must correspond to the i-th post-renumber entity. ReorderBy
// joins arrivalGlobalIDs against the renumbered (globalIDs, shuffleIDs)
// table for this local partition and sorts by shuffle-ID.
//
// data points at the arrival-ordered row-major buffer (rowBytes bytes per
// row, len(arrivalGlobalIDs) rows); it is nilled before return so the
// pre-reorder buffer becomes collectible immediately rather than living on
// alongside the freshly allocated, reordered one.
func ReorderBy(data *[]byte, rowBytes int, arrivalGlobalIDs, globalIDs, shuffleIDs []int64) ([]byte, []int64, error) {
	if rowBytes <= 0 {
		return nil, nil, fmt.Errorf("%w: rowBytes must be positive, got %d", apperrors.ErrShapeMismatch, rowBytes)
	}
	if len(globalIDs) != len(shuffleIDs) {
		return nil, nil, fmt.Errorf("%w: renumbered table has %d global ids but %d shuffle ids", apperrors.ErrShapeMismatch, len(globalIDs), len(shuffleIDs))
	}
	old := *data
	wantBytes := len(arrivalGlobalIDs) * rowBytes
	if len(old) != wantBytes {
		return nil, nil, fmt.Errorf("%w: feature buffer has %d bytes, expected %d bytes for %d rows of %d", apperrors.ErrShapeMismatch, len(old), wantBytes, len(arrivalGlobalIDs), rowBytes)
	}

	toShuffle := make(map[int64]int64, len(globalIDs))
	for i, gid := range globalIDs {
		toShuffle[gid] = shuffleIDs[i]
	}

	type joined struct {
		shuffleID  int64
		arrivalIdx int
	}
	rows := make([]joined, len(arrivalGlobalIDs))
	for i, gid := range arrivalGlobalIDs {
		sid, ok := toShuffle[gid]
		if !ok {
			return nil, nil, fmt.Errorf("%w: arrival global id %d has no entry in the renumbered table", apperrors.ErrAssignmentOutOfRange, gid)
		}
		rows[i] = joined{shuffleID: sid, arrivalIdx: i}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].shuffleID < rows[j].shuffleID })

	out := make([]byte, len(old))
	outIDs := make([]int64, len(rows))
	for dst, r := range rows {
		copy(out[dst*rowBytes:(dst+1)*rowBytes], old[r.arrivalIdx*rowBytes:(r.arrivalIdx+1)*rowBytes])
		outIDs[dst] = r.shuffleID
	}

	*data = nil
	return out, outIDs, nil
}
