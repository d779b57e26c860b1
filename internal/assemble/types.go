// Package assemble implements C8: building the per-partition graph object
// from renumbered node/edge tables and feature data, and gathering every
// worker's metadata fragment into a single document on rank 0.
package assemble

import (
	"fmt"

	"github.com/graphshuffle/shuffle/pkg/dtype"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// AdjacencyFormat selects how edge endpoints are laid out in the written
// partition object, matching the original's --graph-formats selection.
type AdjacencyFormat uint8

const (
	// COO stores edges in arrival order: parallel shuffle_src/shuffle_dst
	// arrays, one entry per edge.
	COO AdjacencyFormat = iota
	// CSR groups edges by source (row-major), the layout a graph-learning
	// runtime walks to list a node's outgoing edges.
	CSR
	// CSC groups edges by destination (column-major), for incoming edges.
	CSC
)

// String returns the lowercase format name used in CLI flags and metadata.
func (f AdjacencyFormat) String() string {
	switch f {
	case COO:
		return "coo"
	case CSR:
		return "csr"
	case CSC:
		return "csc"
	default:
		return "unknown"
	}
}

// ParseAdjacencyFormat maps a CLI/schema format name back to an
// AdjacencyFormat, accepting the same spelling String produces.
func ParseAdjacencyFormat(name string) (AdjacencyFormat, error) {
	switch name {
	case "coo":
		return COO, nil
	case "csr":
		return CSR, nil
	case "csc":
		return CSC, nil
	default:
		return COO, fmt.Errorf("%w: unrecognized graph format %q", apperrors.ErrConfigError, name)
	}
}

// FeatureTable is one (type, feature-name) table attached to a partition,
// already reordered into shuffle-ID order by internal/renumber.ReorderBy.
type FeatureTable struct {
	DType dtype.Type
	Cols  int
	Data  []byte // row-major, dtype.RowBytes(DType, Cols) bytes per row
}

// Rows returns the number of rows the table holds.
func (t FeatureTable) Rows() int {
	rb := dtype.RowBytes(t.DType, t.Cols)
	if rb == 0 {
		return 0
	}
	return len(t.Data) / rb
}

// NodeTable is this local partition's renumbered node data, concatenated
// across node types in schema order and sorted by shuffle-global node ID.
type NodeTable struct {
	NTypeID    []int32
	GlobalNID  []int64 // input-space ID, index-aligned with ShuffleNID
	ShuffleNID []int64
}

// EdgeTable is this local partition's renumbered edge data, concatenated
// across edge types in schema order and sorted by shuffle-global edge ID.
type EdgeTable struct {
	ETypeID    []int32
	GlobalEID  []int64
	ShuffleSrc []int64
	ShuffleDst []int64
}

// Partition is the fully assembled output graph object for one local
// partition, ready to hand to a Writer.
type Partition struct {
	PartitionID int32
	Format      AdjacencyFormat

	NTypeID    []int32
	ETypeID    []int32
	ShuffleSrc []int64
	ShuffleDst []int64

	NodeFeatures map[string]FeatureTable // key "ntype/featname"
	EdgeFeatures map[string]FeatureTable // key "etype/featname"

	OrigNIDs []int64 // optional, index-aligned with NTypeID
	OrigEIDs []int64 // optional, index-aligned with ETypeID
}

// NodeCount returns the number of nodes in the partition.
func (p *Partition) NodeCount() int64 { return int64(len(p.NTypeID)) }

// EdgeCount returns the number of edges in the partition.
func (p *Partition) EdgeCount() int64 { return int64(len(p.ETypeID)) }
