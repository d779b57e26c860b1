// Package engine wires the distributed graph-partitioning data-shuffle
// pipeline together: schema reading, node synthesis, edge and feature
// shuffling, shuffle-global ID renumbering, and partition assembly, all
// driven off one process-group Group and run once per worker process.
package engine

import (
	"context"
	"fmt"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphshuffle/shuffle/internal/storage"
	"github.com/graphshuffle/shuffle/internal/transport"
	"github.com/graphshuffle/shuffle/pkg/config"
	apperrors "github.com/graphshuffle/shuffle/pkg/errors"
	"github.com/graphshuffle/shuffle/pkg/telemetry"
	"github.com/graphshuffle/shuffle/pkg/utils"
)

// tracerName identifies this package's spans in the configured exporter.
const tracerName = "github.com/graphshuffle/shuffle/internal/engine"

// Result summarizes one worker's completed run.
type Result struct {
	Rank          int
	LocalParts    int
	PartitionKeys []string
	MetadataKey   string // non-empty only on rank 0
}

// Engine runs one worker's pass through the shuffle pipeline.
type Engine struct {
	group  transport.Group
	cfg    *config.Config
	logger utils.Logger
	timer  *utils.Timer
}

// New builds an Engine over an already-constructed process group. Group
// construction is left to the caller (cmd/shuffle-worker for the real tcp
// backend, tests for the in-process memory backend) so the engine itself
// stays backend-agnostic.
func New(group transport.Group, cfg *config.Config, logger utils.Logger) *Engine {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Engine{
		group:  group,
		cfg:    cfg,
		logger: logger.WithField("rank", group.Rank()),
		timer:  utils.NewTimer("shuffle", utils.WithLogger(logger)),
	}
}

// Run executes every phase of the pipeline once and returns a summary of
// what this worker produced. A fatal error from any phase aborts the run;
// no partial partition output is promised, matching the concurrency
// model's "no partial output on timeout" guarantee.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	rank := e.group.Rank()
	world := e.group.WorldSize()

	numParts := e.cfg.Shuffle.NumParts
	if numParts <= 0 {
		numParts = world
	}
	if numParts < world {
		return nil, fmt.Errorf("%w: num_parts (%d) is less than world_size (%d)", apperrors.ErrBadTopology, numParts, world)
	}
	if numParts%world != 0 {
		return nil, fmt.Errorf("%w: num_parts (%d) is not a multiple of world_size (%d)", apperrors.ErrBadTopology, numParts, world)
	}
	localParts := numParts / world

	store, err := storage.NewStorage(&e.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%w: building output storage: %v", apperrors.ErrIOError, err)
	}

	schemaCtx, endSchema := e.startSpan(ctx, "schema.Read", -1)
	doc, graph, err := e.phaseLoadSchema(schemaCtx, numParts)
	if err != nil {
		endSchema()
		return nil, err
	}
	lookup, err := e.phaseBuildLookup(schemaCtx, graph)
	endSchema()
	if err != nil {
		return nil, err
	}

	nodeCtx, endNodes := e.startSpan(ctx, "renumber.Nodes", -1)
	nodeTypes, err := e.phaseSynthesizeNodes(nodeCtx, lookup, graph, localParts)
	if err != nil {
		endNodes()
		return nil, err
	}
	nodeShuffleIDs, nodeStarts, nodeTotals, err := e.phaseAssignNodeShuffleIDs(nodeCtx, lookup, nodeTypes, localParts)
	endNodes()
	if err != nil {
		return nil, err
	}

	edgeShuffleCtx, endEdgeShuffle := e.startSpan(ctx, "shuffle.Edges", -1)
	edgeTypes, err := e.phaseShuffleEdges(edgeShuffleCtx, doc, graph, lookup, localParts)
	endEdgeShuffle()
	if err != nil {
		return nil, err
	}

	edgeRenumberCtx, endEdgeRenumber := e.startSpan(ctx, "renumber.Edges", -1)
	edgeShuffleIDs, edgeStarts, edgeTotals, err := e.phaseAssignEdgeShuffleIDs(edgeRenumberCtx, edgeTypes, localParts)
	if err != nil {
		endEdgeRenumber()
		return nil, err
	}
	if err := e.phaseResolveEdgeEndpoints(edgeRenumberCtx, lookup, edgeTypes); err != nil {
		endEdgeRenumber()
		return nil, err
	}
	endEdgeRenumber()

	featureCtx, endFeatures := e.startSpan(ctx, "shuffle.Features", -1)
	nodeFeatures, err := e.phaseShuffleNodeFeatures(featureCtx, doc, graph, lookup, nodeTypes, nodeShuffleIDs, localParts)
	if err != nil {
		endFeatures()
		return nil, err
	}
	edgeFeatures, err := e.phaseShuffleEdgeFeatures(featureCtx, doc, graph, lookup, edgeTypes, edgeShuffleIDs, localParts)
	endFeatures()
	if err != nil {
		return nil, err
	}

	assembleCtx, endAssemble := e.startSpan(ctx, "assemble.WritePartition", -1)
	result, err := e.phaseAssemble(assembleCtx, store, graph, nodeTypes, nodeShuffleIDs, nodeStarts, nodeTotals,
		edgeTypes, edgeShuffleIDs, edgeStarts, edgeTotals, nodeFeatures, edgeFeatures, localParts)
	endAssemble()
	if err != nil {
		return nil, err
	}

	e.timer.PrintSummary()
	e.logger.Info("shuffle pipeline finished: rank=%d local_parts=%d partitions=%v", rank, localParts, result.PartitionKeys)
	return result, nil
}

// startSpan begins both the local phase timer and, if telemetry is
// enabled, an OpenTelemetry span tagged with rank and local_part for the
// named phase. The returned function must be deferred (or called directly
// on every exit path) to close the span, stop the timer, and log a memory
// snapshot for the phase. localPart < 0 omits the local_part attribute,
// for phases that span every local partition this worker owns.
func (e *Engine) startSpan(ctx context.Context, name string, localPart int) (context.Context, func()) {
	phaseTimer := e.timer.Start(name)

	spanCtx := ctx
	var span trace.Span
	if telemetry.Enabled() {
		attrs := []attribute.KeyValue{attribute.Int("rank", e.group.Rank())}
		if localPart >= 0 {
			attrs = append(attrs, attribute.Int("local_part", localPart))
		}
		spanCtx, span = otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	}

	return spanCtx, func() {
		phaseTimer.Stop()
		if span != nil {
			span.End()
		}
		e.logMemStats(name)
	}
}

// logMemStats emits a Debug-level allocation snapshot after a phase, the
// ambient equivalent of the original's memory_snapshot(...) calls.
func (e *Engine) logMemStats(phase string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	e.logger.Debug("mem snapshot after %s: alloc=%d sys=%d", phase, m.Alloc, m.Sys)
}
