package assemble

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/graphshuffle/shuffle/internal/storage"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
	"github.com/graphshuffle/shuffle/pkg/writer"
)

// partitionMagic tags the binary partition object encoding. The original
// numpy/pickle partition layout is explicitly out of scope (section 1's
// "storage codec for final partition objects" is an external collaborator
// concern); this is this repository's own convention, following the same
// "no borrowed wire format" choice already made for chunk files.
const partitionMagic uint32 = 0x53484650 // "SHFP"

// WritePartition encodes p into the repository's binary partition-object
// format and uploads it to store under key.
func WritePartition(ctx context.Context, store storage.Storage, key string, p *Partition) error {
	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.BigEndian, partitionMagic)
	_ = binary.Write(&buf, binary.BigEndian, byte(p.Format))
	_ = binary.Write(&buf, binary.BigEndian, p.PartitionID)
	_ = binary.Write(&buf, binary.BigEndian, p.NodeCount())
	_ = binary.Write(&buf, binary.BigEndian, p.EdgeCount())

	writeInt32Column(&buf, p.NTypeID)
	writeInt32Column(&buf, p.ETypeID)
	writeInt64Column(&buf, p.ShuffleSrc)
	writeInt64Column(&buf, p.ShuffleDst)

	writeOptionalInt64Column(&buf, p.OrigNIDs)
	writeOptionalInt64Column(&buf, p.OrigEIDs)

	if err := writeFeatureTables(&buf, p.NodeFeatures); err != nil {
		return err
	}
	if err := writeFeatureTables(&buf, p.EdgeFeatures); err != nil {
		return err
	}

	if err := store.Upload(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("%w: uploading partition %d: %v", apperrors.ErrIOError, p.PartitionID, err)
	}
	return nil
}

func writeInt32Column(buf *bytes.Buffer, vals []int32) {
	_ = binary.Write(buf, binary.BigEndian, int64(len(vals)))
	_ = binary.Write(buf, binary.BigEndian, vals)
}

func writeInt64Column(buf *bytes.Buffer, vals []int64) {
	_ = binary.Write(buf, binary.BigEndian, int64(len(vals)))
	_ = binary.Write(buf, binary.BigEndian, vals)
}

func writeOptionalInt64Column(buf *bytes.Buffer, vals []int64) {
	if vals == nil {
		_ = binary.Write(buf, binary.BigEndian, byte(0))
		return
	}
	_ = binary.Write(buf, binary.BigEndian, byte(1))
	writeInt64Column(buf, vals)
}

func writeFeatureTables(buf *bytes.Buffer, tables map[string]FeatureTable) error {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	_ = binary.Write(buf, binary.BigEndian, int32(len(names)))
	for _, name := range names {
		tbl := tables[name]
		if !tbl.DType.Valid() {
			return fmt.Errorf("%w: feature table %q has invalid dtype", apperrors.ErrSchemaError, name)
		}
		nameBytes := []byte(name)
		_ = binary.Write(buf, binary.BigEndian, int32(len(nameBytes)))
		buf.Write(nameBytes)
		_ = binary.Write(buf, binary.BigEndian, byte(tbl.DType))
		_ = binary.Write(buf, binary.BigEndian, int32(tbl.Cols))
		_ = binary.Write(buf, binary.BigEndian, int64(len(tbl.Data)))
		buf.Write(tbl.Data)
	}
	return nil
}

// WriteGlobalMetadata writes meta as pretty-printed JSON to store under
// key, the format spec section 6 calls the "global metadata" document.
func WriteGlobalMetadata(ctx context.Context, store storage.Storage, key string, meta GlobalMetadata) error {
	var buf bytes.Buffer
	w := writer.NewPrettyJSONWriter[GlobalMetadata]()
	if err := w.Write(meta, &buf); err != nil {
		return fmt.Errorf("%w: encoding global metadata: %v", apperrors.ErrIOError, err)
	}
	if err := store.Upload(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("%w: uploading global metadata: %v", apperrors.ErrIOError, err)
	}
	return nil
}
