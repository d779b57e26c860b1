package schema

import (
	"fmt"

	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
)

// TypeInfo is one node or edge type's place in the dense global-ID space:
// global = Offset + type_id, type_id in [0, Count).
type TypeInfo struct {
	Name   string
	Offset int64
	Count  int64
}

// Graph is the validated, offset-resolved view of a Document: everything
// C2-C8 need to translate between type-local and global IDs without
// re-parsing the schema document.
type Graph struct {
	Name string

	NodeTypes []TypeInfo
	EdgeTypes []TypeInfo

	nodeChunkCounts map[string][]int64 // ntype -> per-partition chunk row counts
	edgeChunkCounts map[string][]int64 // etype -> per-partition chunk row counts

	doc *Document
}

// BuildGraph computes offsets and totals from doc for a fixed output
// partition count. Offsets follow schema order: offset(t_i) = sum_{j<i} N_j.
func BuildGraph(doc *Document, numParts int) (*Graph, error) {
	if err := doc.Validate(numParts); err != nil {
		return nil, err
	}

	g := &Graph{
		Name:            doc.GraphName,
		nodeChunkCounts: make(map[string][]int64, len(doc.NodeType)),
		edgeChunkCounts: make(map[string][]int64, len(doc.EdgeType)),
		doc:             doc,
	}

	var nodeOffset int64
	for i, name := range doc.NodeType {
		row := doc.NumNodesPerChunk[i]
		total := sumInt64(row)
		g.NodeTypes = append(g.NodeTypes, TypeInfo{Name: name, Offset: nodeOffset, Count: total})
		g.nodeChunkCounts[name] = row
		nodeOffset += total
	}

	var edgeOffset int64
	for i, name := range doc.EdgeType {
		row := doc.NumEdgesPerChunk[i]
		total := sumInt64(row)
		g.EdgeTypes = append(g.EdgeTypes, TypeInfo{Name: name, Offset: edgeOffset, Count: total})
		g.edgeChunkCounts[name] = row
		edgeOffset += total
	}

	return g, nil
}

func sumInt64(vals []int64) int64 {
	var s int64
	for _, v := range vals {
		s += v
	}
	return s
}

// NodeType looks up a node type's TypeInfo by name.
func (g *Graph) NodeType(name string) (TypeInfo, error) {
	for _, t := range g.NodeTypes {
		if t.Name == name {
			return t, nil
		}
	}
	return TypeInfo{}, fmt.Errorf("%w: unknown node type %q", apperrors.ErrSchemaError, name)
}

// EdgeType looks up an edge type's TypeInfo by name.
func (g *Graph) EdgeType(name string) (TypeInfo, error) {
	for _, t := range g.EdgeTypes {
		if t.Name == name {
			return t, nil
		}
	}
	return TypeInfo{}, fmt.Errorf("%w: unknown edge type %q", apperrors.ErrSchemaError, name)
}

// TotalNodes returns the dense global node-ID space size, sum of all node
// type counts.
func (g *Graph) TotalNodes() int64 {
	if len(g.NodeTypes) == 0 {
		return 0
	}
	last := g.NodeTypes[len(g.NodeTypes)-1]
	return last.Offset + last.Count
}

// TotalEdges returns the dense global edge-ID space size.
func (g *Graph) TotalEdges() int64 {
	if len(g.EdgeTypes) == 0 {
		return 0
	}
	last := g.EdgeTypes[len(g.EdgeTypes)-1]
	return last.Offset + last.Count
}

// NodeChunkRange returns the half-open type-ID range that partition chunk
// index `chunk` owns for the given node type, derived by summing the
// per-chunk row counts up to `chunk`.
func (g *Graph) NodeChunkRange(ntype string, chunk int) (start, end int64, err error) {
	row, ok := g.nodeChunkCounts[ntype]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown node type %q", apperrors.ErrSchemaError, ntype)
	}
	return chunkRange(row, chunk)
}

// EdgeChunkRange is the edge-type analogue of NodeChunkRange.
func (g *Graph) EdgeChunkRange(etype string, chunk int) (start, end int64, err error) {
	row, ok := g.edgeChunkCounts[etype]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown edge type %q", apperrors.ErrSchemaError, etype)
	}
	return chunkRange(row, chunk)
}

func chunkRange(counts []int64, chunk int) (int64, int64, error) {
	if chunk < 0 || chunk >= len(counts) {
		return 0, 0, fmt.Errorf("%w: chunk index %d out of range [0,%d)", apperrors.ErrAssignmentOutOfRange, chunk, len(counts))
	}
	var start int64
	for i := 0; i < chunk; i++ {
		start += counts[i]
	}
	return start, start + counts[chunk], nil
}

// CyclicSlice computes the [start, end) type-local ID range of the
// partition-assignment table that worker r is responsible for holding,
// for a type of total size n split evenly across world workers.
func CyclicSlice(n int64, world, r int) (start, end int64) {
	stride := (n + int64(world) - 1) / int64(world)
	start = int64(r) * stride
	end = start + stride
	if end > n {
		end = n
	}
	if start > n {
		start = n
	}
	return start, end
}
