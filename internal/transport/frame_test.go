package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello shuffle")
	require.NoError(t, writeFrame(&buf, kindData, 3, payload))

	kind, rank, got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, kindData, kind)
	assert.Equal(t, 3, rank)
	assert.Equal(t, payload, got)
}

func TestWriteReadFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, kindBarrier, 0, nil))

	kind, rank, got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, kindBarrier, kind)
	assert.Equal(t, 0, rank)
	assert.Empty(t, got)
}

func TestReadFrame_BadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	_, _, _, err := readFrame(buf)
	require.Error(t, err)
}

func TestEncodeDecodeInt64s_RoundTrip(t *testing.T) {
	vals := []int64{0, 1, -1, 1 << 40, -(1 << 40)}
	got := decodeInt64s(encodeInt64s(vals))
	assert.Equal(t, vals, got)
}

func TestEncodeInt64s_Empty(t *testing.T) {
	assert.Empty(t, encodeInt64s(nil))
	assert.Empty(t, decodeInt64s(nil))
}
