package schema

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// LoadAssignmentSlice reads the [start, end) lines of a partition
// assignment text file without materializing the rest of the file: line i
// holds the owner partition ID of type-ID i, one integer per line.
func LoadAssignmentSlice(path string, start, end int64) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open assignment file %s: %v", apperrors.ErrIOError, path, err)
	}
	defer f.Close()

	out := make([]int32, 0, end-start)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var line int64
	for scanner.Scan() {
		if line >= end {
			break
		}
		if line >= start {
			v, err := strconv.ParseInt(scanner.Text(), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: assignment file %s line %d: %v", apperrors.ErrSchemaError, path, line, err)
			}
			out = append(out, int32(v))
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read assignment file %s: %v", apperrors.ErrIOError, path, err)
	}
	if line < end {
		return nil, fmt.Errorf("%w: assignment file %s has %d lines, expected at least %d", apperrors.ErrSchemaError, path, line, end)
	}
	return out, nil
}
