package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire frame: a fixed 13-byte header followed by the payload.
//
//	magic(4) | kind(1) | senderRank(4) | payloadLen(4) | payload(payloadLen)
const (
	frameMagic      uint32 = 0x53484c45 // "SHLE"
	frameHeaderSize        = 4 + 1 + 4 + 4
)

type frameKind uint8

const (
	kindBarrier frameKind = iota
	kindSizes
	kindData
)

func writeFrame(w io.Writer, kind frameKind, senderRank int, payload []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], frameMagic)
	header[4] = byte(kind)
	binary.BigEndian.PutUint32(header[5:9], uint32(senderRank))
	binary.BigEndian.PutUint32(header[9:13], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write frame payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (frameKind, int, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, fmt.Errorf("transport: read frame header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(header[0:4]); magic != frameMagic {
		return 0, 0, nil, fmt.Errorf("transport: bad frame magic %x", magic)
	}
	kind := frameKind(header[4])
	senderRank := int(binary.BigEndian.Uint32(header[5:9]))
	payloadLen := binary.BigEndian.Uint32(header[9:13])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, 0, nil, fmt.Errorf("transport: read frame payload: %w", err)
		}
	}
	return kind, senderRank, payload, nil
}

// encodeInt64s packs a slice of int64 into a byte buffer, big-endian.
func encodeInt64s(vals []int64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

// decodeInt64s unpacks a byte buffer produced by encodeInt64s.
func decodeInt64s(buf []byte) []int64 {
	n := len(buf) / 8
	vals := make([]int64, n)
	for i := 0; i < n; i++ {
		vals[i] = int64(binary.BigEndian.Uint64(buf[i*8:]))
	}
	return vals
}
