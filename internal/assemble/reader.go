package assemble

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/graphshuffle/shuffle/pkg/dtype"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// ReadPartition decodes a partition object written by WritePartition. It
// exists primarily so round-trip behavior (property 5, original-ID
// recovery) is directly testable without a storage backend in the loop.
func ReadPartition(r io.Reader) (*Partition, error) {
	br := &byteReader{r: r}

	var magic uint32
	if err := binary.Read(br, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: reading partition magic: %v", apperrors.ErrIOError, err)
	}
	if magic != partitionMagic {
		return nil, fmt.Errorf("%w: bad partition magic %#x", apperrors.ErrSchemaError, magic)
	}

	var formatByte byte
	if err := binary.Read(br, binary.BigEndian, &formatByte); err != nil {
		return nil, fmt.Errorf("%w: reading format: %v", apperrors.ErrIOError, err)
	}
	p := &Partition{Format: AdjacencyFormat(formatByte)}

	if err := binary.Read(br, binary.BigEndian, &p.PartitionID); err != nil {
		return nil, fmt.Errorf("%w: reading partition id: %v", apperrors.ErrIOError, err)
	}
	var nodeCount, edgeCount int64
	if err := binary.Read(br, binary.BigEndian, &nodeCount); err != nil {
		return nil, fmt.Errorf("%w: reading node count: %v", apperrors.ErrIOError, err)
	}
	if err := binary.Read(br, binary.BigEndian, &edgeCount); err != nil {
		return nil, fmt.Errorf("%w: reading edge count: %v", apperrors.ErrIOError, err)
	}

	var err error
	if p.NTypeID, err = readInt32Column(br); err != nil {
		return nil, err
	}
	if p.ETypeID, err = readInt32Column(br); err != nil {
		return nil, err
	}
	if p.ShuffleSrc, err = readInt64Column(br); err != nil {
		return nil, err
	}
	if p.ShuffleDst, err = readInt64Column(br); err != nil {
		return nil, err
	}
	if p.OrigNIDs, err = readOptionalInt64Column(br); err != nil {
		return nil, err
	}
	if p.OrigEIDs, err = readOptionalInt64Column(br); err != nil {
		return nil, err
	}
	if p.NodeFeatures, err = readFeatureTables(br); err != nil {
		return nil, err
	}
	if p.EdgeFeatures, err = readFeatureTables(br); err != nil {
		return nil, err
	}
	return p, nil
}

// byteReader adapts an io.Reader to io.ByteReader, which
// readOptionalInt64Column needs for its presence byte; bytes.Buffer already
// satisfies this, but a
// generic io.Reader (e.g. storage.Download's ReadCloser) does not.
type byteReader struct {
	r   io.Reader
	one [1]byte
}

func (b *byteReader) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.one[:]); err != nil {
		return 0, err
	}
	return b.one[0], nil
}

func readInt32Column(r io.Reader) ([]int32, error) {
	var n int64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: reading column length: %v", apperrors.ErrIOError, err)
	}
	vals := make([]int32, n)
	if err := binary.Read(r, binary.BigEndian, vals); err != nil {
		return nil, fmt.Errorf("%w: reading int32 column: %v", apperrors.ErrIOError, err)
	}
	return vals, nil
}

func readInt64Column(r io.Reader) ([]int64, error) {
	var n int64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: reading column length: %v", apperrors.ErrIOError, err)
	}
	vals := make([]int64, n)
	if err := binary.Read(r, binary.BigEndian, vals); err != nil {
		return nil, fmt.Errorf("%w: reading int64 column: %v", apperrors.ErrIOError, err)
	}
	return vals, nil
}

func readOptionalInt64Column(r *byteReader) ([]int64, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: reading optional-column flag: %v", apperrors.ErrIOError, err)
	}
	if present == 0 {
		return nil, nil
	}
	return readInt64Column(r)
}

func readFeatureTables(r io.Reader) (map[string]FeatureTable, error) {
	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading feature table count: %v", apperrors.ErrIOError, err)
	}
	if count == 0 {
		return nil, nil
	}
	tables := make(map[string]FeatureTable, count)
	for i := int32(0); i < count; i++ {
		var nameLen int32
		if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: reading feature name length: %v", apperrors.ErrIOError, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, fmt.Errorf("%w: reading feature name: %v", apperrors.ErrIOError, err)
		}
		var dt byte
		if err := binary.Read(r, binary.BigEndian, &dt); err != nil {
			return nil, fmt.Errorf("%w: reading feature dtype: %v", apperrors.ErrIOError, err)
		}
		var cols int32
		if err := binary.Read(r, binary.BigEndian, &cols); err != nil {
			return nil, fmt.Errorf("%w: reading feature cols: %v", apperrors.ErrIOError, err)
		}
		var dataLen int64
		if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
			return nil, fmt.Errorf("%w: reading feature data length: %v", apperrors.ErrIOError, err)
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: reading feature data: %v", apperrors.ErrIOError, err)
		}
		tables[string(nameBytes)] = FeatureTable{DType: dtype.Type(dt), Cols: int(cols), Data: data}
	}
	return tables, nil
}
