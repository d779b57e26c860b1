// Package schema parses the graph metadata document, computes the dense
// global-ID offset table, and slices each node type, edge type, and feature
// tensor into the one chunk every worker is responsible for reading. It is
// the only component that touches on-disk chunk files directly.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// ChunkEntry is one `[path, type_start, type_end]` triple from the schema's
// data/edges arrays: the half-open type-ID range `[TypeStart, TypeEnd)`
// that the file at Path realizes.
type ChunkEntry struct {
	Path      string `json:"-"`
	TypeStart int64  `json:"-"`
	TypeEnd   int64  `json:"-"`
}

// UnmarshalJSON accepts the schema's `[path, start, end]` triple form.
func (c *ChunkEntry) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: chunk entry must be [path, start, end]: %v", apperrors.ErrSchemaError, err)
	}
	if err := json.Unmarshal(raw[0], &c.Path); err != nil {
		return fmt.Errorf("%w: chunk path not a string: %v", apperrors.ErrSchemaError, err)
	}
	var start, end int64
	if err := json.Unmarshal(raw[1], &start); err != nil {
		return fmt.Errorf("%w: chunk start not an integer: %v", apperrors.ErrSchemaError, err)
	}
	if err := json.Unmarshal(raw[2], &end); err != nil {
		return fmt.Errorf("%w: chunk end not an integer: %v", apperrors.ErrSchemaError, err)
	}
	c.TypeStart, c.TypeEnd = start, end
	return nil
}

// FeatureSpec describes one (type, feature) tensor: its element type, its
// row width (number of columns, 1 for a 1-D feature), and the per-chunk
// file list, one entry per output partition P.
type FeatureSpec struct {
	Format string       `json:"format"`
	DType  string       `json:"dtype"`
	Cols   int          `json:"cols"`
	Data   []ChunkEntry `json:"data"`
}

// EdgeSpec is the `edges{etype}` entry: one chunk file per partition P,
// each holding that chunk's `(src_type_id, dst_type_id)` pairs.
type EdgeSpec struct {
	Format string       `json:"format"`
	Data   []ChunkEntry `json:"data"`
}

// Document is the raw, unvalidated JSON schema as described by the
// external interfaces contract.
type Document struct {
	GraphName          string                            `json:"graph_name"`
	NodeType           []string                          `json:"node_type"`
	NumNodesPerChunk   [][]int64                         `json:"num_nodes_per_chunk"`
	EdgeType           []string                          `json:"edge_type"`
	NumEdgesPerChunk   [][]int64                         `json:"num_edges_per_chunk"`
	NodeData           map[string]map[string]FeatureSpec `json:"node_data"`
	Edges              map[string]EdgeSpec                `json:"edges"`
	EdgeData           map[string]map[string]FeatureSpec `json:"edge_data"`

	baseDir string
}

// LoadDocument reads and parses the schema JSON file at path. Relative
// chunk paths inside the document resolve against path's directory.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open schema file %s: %v", apperrors.ErrIOError, path, err)
	}
	defer f.Close()

	var doc Document
	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode schema file %s: %v", apperrors.ErrSchemaError, path, err)
	}
	doc.baseDir = filepath.Dir(path)
	return &doc, nil
}

// ResolvePath returns p resolved against the schema document's directory
// if p is relative, unchanged if already absolute.
func (d *Document) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.baseDir, p)
}

// Validate checks the structural consistency the shuffle pipeline depends
// on: every node/edge type has exactly P chunk-count entries and every
// referenced feature/edge chunk list is the same length.
func (d *Document) Validate(numParts int) error {
	if len(d.NodeType) != len(d.NumNodesPerChunk) {
		return fmt.Errorf("%w: %d node types but %d num_nodes_per_chunk rows", apperrors.ErrSchemaError, len(d.NodeType), len(d.NumNodesPerChunk))
	}
	for i, row := range d.NumNodesPerChunk {
		if len(row) != numParts {
			return fmt.Errorf("%w: node type %s has %d chunks, expected %d", apperrors.ErrSchemaError, d.NodeType[i], len(row), numParts)
		}
	}
	if len(d.EdgeType) != len(d.NumEdgesPerChunk) {
		return fmt.Errorf("%w: %d edge types but %d num_edges_per_chunk rows", apperrors.ErrSchemaError, len(d.EdgeType), len(d.NumEdgesPerChunk))
	}
	for i, row := range d.NumEdgesPerChunk {
		if len(row) != numParts {
			return fmt.Errorf("%w: edge type %s has %d chunks, expected %d", apperrors.ErrSchemaError, d.EdgeType[i], len(row), numParts)
		}
	}
	for etype, spec := range d.Edges {
		if len(spec.Data) != numParts {
			return fmt.Errorf("%w: edges[%s] has %d chunk files, expected %d", apperrors.ErrSchemaError, etype, len(spec.Data), numParts)
		}
	}
	for ntype, feats := range d.NodeData {
		for fname, spec := range feats {
			if len(spec.Data) != numParts {
				return fmt.Errorf("%w: node_data[%s][%s] has %d chunk files, expected %d", apperrors.ErrSchemaError, ntype, fname, len(spec.Data), numParts)
			}
		}
	}
	for etype, feats := range d.EdgeData {
		for fname, spec := range feats {
			if len(spec.Data) != numParts {
				return fmt.Errorf("%w: edge_data[%s][%s] has %d chunk files, expected %d", apperrors.ErrSchemaError, etype, fname, len(spec.Data), numParts)
			}
		}
	}
	return nil
}

// EndpointTypes splits a "src:etype:dst" edge-type name into its three
// components.
func EndpointTypes(edgeType string) (src, rel, dst string, err error) {
	parts := strings.Split(edgeType, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: edge type %q is not src:etype:dst", apperrors.ErrSchemaError, edgeType)
	}
	return parts[0], parts[1], parts[2], nil
}
