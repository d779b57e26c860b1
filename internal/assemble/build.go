package assemble

import (
	"fmt"
	"sort"

	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// BuildPartition assembles a Partition object for one local partition from
// its renumbered node/edge tables and feature data. format != COO sorts
// edges into row- (CSR) or column- (CSC) grouped order, carrying every
// edge-aligned column (type ID, endpoints, original ID, edge features)
// along with the same permutation.
func BuildPartition(
	partitionID int32,
	format AdjacencyFormat,
	nodes NodeTable,
	edges EdgeTable,
	nodeFeatures, edgeFeatures map[string]FeatureTable,
	origNIDs, origEIDs []int64,
) (*Partition, error) {
	if len(nodes.NTypeID) != len(nodes.ShuffleNID) {
		return nil, fmt.Errorf("%w: node table has %d type IDs but %d shuffle IDs", apperrors.ErrShapeMismatch, len(nodes.NTypeID), len(nodes.ShuffleNID))
	}
	if len(edges.ETypeID) != len(edges.ShuffleSrc) || len(edges.ETypeID) != len(edges.ShuffleDst) {
		return nil, fmt.Errorf("%w: edge table columns disagree in length", apperrors.ErrShapeMismatch)
	}
	if origNIDs != nil && len(origNIDs) != len(nodes.NTypeID) {
		return nil, fmt.Errorf("%w: orig_nids has %d entries, expected %d", apperrors.ErrShapeMismatch, len(origNIDs), len(nodes.NTypeID))
	}
	if origEIDs != nil && len(origEIDs) != len(edges.ETypeID) {
		return nil, fmt.Errorf("%w: orig_eids has %d entries, expected %d", apperrors.ErrShapeMismatch, len(origEIDs), len(edges.ETypeID))
	}

	eTypeID := edges.ETypeID
	shuffleSrc := edges.ShuffleSrc
	shuffleDst := edges.ShuffleDst
	outOrigEIDs := origEIDs
	outEdgeFeatures := edgeFeatures

	if format != COO {
		perm := edgePermutation(format, shuffleSrc, shuffleDst)
		eTypeID = applyInt32Perm(eTypeID, perm)
		shuffleSrc = applyInt64Perm(shuffleSrc, perm)
		shuffleDst = applyInt64Perm(shuffleDst, perm)
		if origEIDs != nil {
			outOrigEIDs = applyInt64Perm(origEIDs, perm)
		}
		if len(edgeFeatures) > 0 {
			outEdgeFeatures = make(map[string]FeatureTable, len(edgeFeatures))
			for name, tbl := range edgeFeatures {
				outEdgeFeatures[name] = FeatureTable{
					DType: tbl.DType,
					Cols:  tbl.Cols,
					Data:  applyRowPerm(tbl.Data, tbl.DType.Size()*tbl.Cols, perm),
				}
			}
		}
	}

	return &Partition{
		PartitionID:  partitionID,
		Format:       format,
		NTypeID:      nodes.NTypeID,
		ETypeID:      eTypeID,
		ShuffleSrc:   shuffleSrc,
		ShuffleDst:   shuffleDst,
		NodeFeatures: nodeFeatures,
		EdgeFeatures: outEdgeFeatures,
		OrigNIDs:     origNIDs,
		OrigEIDs:     outOrigEIDs,
	}, nil
}

// edgePermutation returns the stable sort permutation that groups edges by
// source (CSR) or destination (CSC); perm[i] is the arrival-order index of
// the edge that belongs at output position i.
func edgePermutation(format AdjacencyFormat, src, dst []int64) []int {
	n := len(src)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	primary, secondary := src, dst
	if format == CSC {
		primary, secondary = dst, src
	}
	sort.SliceStable(perm, func(i, j int) bool {
		pi, pj := perm[i], perm[j]
		if primary[pi] != primary[pj] {
			return primary[pi] < primary[pj]
		}
		return secondary[pi] < secondary[pj]
	})
	return perm
}

func applyInt64Perm(vals []int64, perm []int) []int64 {
	out := make([]int64, len(perm))
	for i, p := range perm {
		out[i] = vals[p]
	}
	return out
}

func applyInt32Perm(vals []int32, perm []int) []int32 {
	out := make([]int32, len(perm))
	for i, p := range perm {
		out[i] = vals[p]
	}
	return out
}

func applyRowPerm(data []byte, rowBytes int, perm []int) []byte {
	if rowBytes <= 0 {
		return data
	}
	out := make([]byte, len(data))
	for dst, src := range perm {
		copy(out[dst*rowBytes:(dst+1)*rowBytes], data[src*rowBytes:(src+1)*rowBytes])
	}
	return out
}
