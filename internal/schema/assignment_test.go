package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAssignmentFile(t *testing.T, values []int32) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ntype.txt")
	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(itoa(int64(v)))
		sb.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestLoadAssignmentSlice(t *testing.T) {
	path := writeAssignmentFile(t, []int32{0, 1, 2, 0, 1, 2, 0, 1, 2})

	slice, err := LoadAssignmentSlice(path, 3, 6)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, slice)
}

func TestLoadAssignmentSlice_FullFile(t *testing.T) {
	path := writeAssignmentFile(t, []int32{5, 6, 7})
	slice, err := LoadAssignmentSlice(path, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 6, 7}, slice)
}

func TestLoadAssignmentSlice_TooShort(t *testing.T) {
	path := writeAssignmentFile(t, []int32{0, 1})
	_, err := LoadAssignmentSlice(path, 0, 5)
	require.Error(t, err)
}

func TestLoadAssignmentSlice_MissingFile(t *testing.T) {
	_, err := LoadAssignmentSlice("/nonexistent.txt", 0, 1)
	require.Error(t, err)
}
