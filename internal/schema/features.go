package schema

import (
	"errors"
	"fmt"

	"github.com/graphshuffle/shuffle/pkg/dtype"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// FeatureChunk is one (type, feature) tensor's locally-read chunk: raw
// row-major bytes plus the dtype/column width needed to interpret them,
// and the type-ID range the rows correspond to.
type FeatureChunk struct {
	DType     dtype.Type
	Cols      int
	TypeStart int64
	TypeEnd   int64
	Data      []byte // len(Data) == (TypeEnd-TypeStart) * DType.Size() * Cols
}

// Rows returns the number of rows in the chunk.
func (c FeatureChunk) Rows() int64 { return c.TypeEnd - c.TypeStart }

// RowBytes returns the byte width of a single row.
func (c FeatureChunk) RowBytes() int { return dtype.RowBytes(c.DType, c.Cols) }

// Row returns the raw bytes of row i (0-indexed within the chunk).
func (c FeatureChunk) Row(i int64) []byte {
	w := int64(c.RowBytes())
	return c.Data[i*w : (i+1)*w]
}

// ReadNodeFeatureChunk reads the given node type's feature chunk for
// partition index `chunk`. Returns (FeatureChunk{}, false, nil) if the
// type has no such feature at all, which the feature shuffler treats as
// "this worker has nothing to contribute; still participate in the shape
// negotiation with zero rows" per spec section 4.5.
func ReadNodeFeatureChunk(doc *Document, ntype, feature string, chunk int) (FeatureChunk, bool, error) {
	feats, ok := doc.NodeData[ntype]
	if !ok {
		return FeatureChunk{}, false, nil
	}
	spec, ok := feats[feature]
	if !ok {
		return FeatureChunk{}, false, nil
	}
	return readFeatureChunk(doc, spec, chunk)
}

// ReadEdgeFeatureChunk is the edge analogue of ReadNodeFeatureChunk.
func ReadEdgeFeatureChunk(doc *Document, etype, feature string, chunk int) (FeatureChunk, bool, error) {
	feats, ok := doc.EdgeData[etype]
	if !ok {
		return FeatureChunk{}, false, nil
	}
	spec, ok := feats[feature]
	if !ok {
		return FeatureChunk{}, false, nil
	}
	return readFeatureChunk(doc, spec, chunk)
}

func readFeatureChunk(doc *Document, spec FeatureSpec, chunk int) (FeatureChunk, bool, error) {
	if chunk < 0 || chunk >= len(spec.Data) {
		return FeatureChunk{}, false, fmt.Errorf("%w: feature chunk index %d out of range", apperrors.ErrAssignmentOutOfRange, chunk)
	}
	entry := spec.Data[chunk]
	dt, err := dtype.Parse(spec.DType)
	if err != nil {
		return FeatureChunk{}, false, fmt.Errorf("%w: %v", apperrors.ErrSchemaError, err)
	}
	cols := spec.Cols
	if cols <= 0 {
		cols = 1
	}
	rows := entry.TypeEnd - entry.TypeStart
	if rows < 0 {
		return FeatureChunk{}, false, fmt.Errorf("%w: feature chunk has negative row range [%d,%d)", apperrors.ErrSchemaError, entry.TypeStart, entry.TypeEnd)
	}

	data, err := readRows(doc.ResolvePath(entry.Path), rows, dtype.RowBytes(dt, cols))
	if errors.Is(err, apperrors.ErrShapeMismatch) {
		// A feature file that does not realize its declared row range is a
		// schema inconsistency.
		return FeatureChunk{}, false, fmt.Errorf("%w: %v", apperrors.ErrSchemaError, err)
	}
	if err != nil {
		return FeatureChunk{}, false, err
	}
	return FeatureChunk{
		DType:     dt,
		Cols:      cols,
		TypeStart: entry.TypeStart,
		TypeEnd:   entry.TypeEnd,
		Data:      data,
	}, true, nil
}
