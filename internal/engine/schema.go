package engine

import (
	"context"
	"path/filepath"

	"github.com/graphshuffle/shuffle/internal/idlookup"
	"github.com/graphshuffle/shuffle/internal/schema"
)

// phaseLoadSchema reads the schema document and resolves it into a Graph
// with dense global-ID offsets for numParts output partitions.
func (e *Engine) phaseLoadSchema(ctx context.Context, numParts int) (*schema.Document, *schema.Graph, error) {
	doc, err := schema.LoadDocument(e.cfg.IO.SchemaFile)
	if err != nil {
		return nil, nil, err
	}
	graph, err := schema.BuildGraph(doc, numParts)
	if err != nil {
		return nil, nil, err
	}
	return doc, graph, nil
}

// phaseBuildLookup loads this worker's cyclic slice of every node type's
// partition-assignment file and constructs the ID lookup service every
// later phase queries partition_of/shuffle_of through.
func (e *Engine) phaseBuildLookup(ctx context.Context, graph *schema.Graph) (*idlookup.Service, error) {
	world := e.group.WorldSize()
	rank := e.group.Rank()

	types := make([]idlookup.TypeRange, 0, len(graph.NodeTypes))
	var assignment []int32
	for _, nt := range graph.NodeTypes {
		start, end := schema.CyclicSlice(nt.Count, world, rank)
		path := filepath.Join(e.cfg.IO.PartitionsDir, nt.Name+".txt")
		slice, err := schema.LoadAssignmentSlice(path, start, end)
		if err != nil {
			return nil, err
		}
		types = append(types, idlookup.TypeRange{
			Name: nt.Name, Offset: nt.Offset, Count: nt.Count,
			LocalStart: start, LocalEnd: end,
		})
		assignment = append(assignment, slice...)
	}

	return idlookup.New(e.group, types, assignment)
}
