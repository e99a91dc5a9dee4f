// Package orchestrator implements the externally visible search operation
// (§4.7): it tries a direct cache hit, then a validated composed cache
// hit, then falls back to the BFS engine, writing discovered sub-segments
// back to the cache on success.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/pathfind"
	"gitlab.com/rangulvers/wikigraph/internal/pathvalidate"
	"gitlab.com/rangulvers/wikigraph/internal/progress"
	"gitlab.com/rangulvers/wikigraph/internal/segment"
	"gitlab.com/rangulvers/wikigraph/internal/title"
)

const (
	composeMaxHops    = 3
	decomposeMinHops  = 1
	decomposeMaxHops  = 3
)

// Resolver maps a free-text query term to a canonical article title.
type Resolver interface {
	Resolve(ctx context.Context, query string) (string, errors.E)
}

// Engine is the subset of pathfind.Engine the orchestrator drives.
type Engine interface {
	Search(ctx context.Context, startCanonical, endCanonical string, stream *progress.Stream) ([]string, errors.E)
	SearchKDiverse(ctx context.Context, startCanonical, endCanonical string, k int, minDiversity float64, stream *progress.Stream) ([][]string, errors.E)
}

// Request is one search's parameters.
type Request struct {
	StartTerm    string
	EndTerm      string
	K            int
	MinDiversity float64
}

// Result is the orchestrator's externally visible outcome.
type Result struct {
	Path               []string
	Alternatives       [][]string // populated when Request.K > 1
	HitType            string     // same_page, direct, composed, bfs
	Provenance         []segment.Provenance
	CacheEffectiveness float64
}

// Orchestrator wires the resolver, segment cache, path validator, and BFS
// engine into the single top-level search operation.
type Orchestrator struct {
	resolver Resolver
	cache    *segment.Cache
	engine   Engine
	client   pathvalidate.Fetcher
	logger   zerolog.Logger
}

// New builds an Orchestrator from its already-constructed dependencies.
func New(resolver Resolver, cache *segment.Cache, engine Engine, client pathvalidate.Fetcher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{resolver: resolver, cache: cache, engine: engine, client: client, logger: logger}
}

// Search runs the full §4.7 control flow, pushing events to stream if
// non-nil. The returned error is non-nil when resolution, a segment-store
// read during the direct or composed cache lookup, or the BFS fallback
// fails (e.g. no path exists, or the context is cancelled); a cache miss by
// itself is not an error.
func (o *Orchestrator) Search(ctx context.Context, req Request, stream *progress.Stream) (Result, errors.E) {
	searchStarted := time.Now()

	if stream != nil {
		stream.Push(progress.Start(req.StartTerm, req.EndTerm))
	}

	startCanonical, errE := o.resolve(ctx, req.StartTerm, stream)
	if errE != nil {
		o.emitError(stream, errE)
		return Result{}, errE
	}
	endCanonical, errE := o.resolve(ctx, req.EndTerm, stream)
	if errE != nil {
		o.emitError(stream, errE)
		return Result{}, errE
	}

	if title.Equal(startCanonical, endCanonical) {
		result := Result{Path: []string{startCanonical}, HitType: "same_page"}
		if stream != nil {
			stream.Push(progress.Complete(result.Path, result.HitType, nil, 1))
			stream.Push(progress.Done())
		}
		return result, nil
	}

	if result, ok, errE := o.tryDirectCacheHit(ctx, startCanonical, endCanonical, stream); errE != nil {
		return Result{}, errE
	} else if ok {
		return result, nil
	}

	if result, ok, errE := o.tryComposedCacheHit(ctx, startCanonical, endCanonical, stream); errE != nil {
		return Result{}, errE
	} else if ok {
		return result, nil
	}

	if stream != nil {
		stream.Push(progress.CacheMiss())
	}

	return o.runBFS(ctx, req, startCanonical, endCanonical, searchStarted, stream)
}

func (o *Orchestrator) resolve(ctx context.Context, term string, stream *progress.Stream) (string, errors.E) {
	if stream != nil {
		stream.Push(progress.Resolving(term))
	}
	canonical, errE := o.resolver.Resolve(ctx, term)
	if errE != nil {
		return "", errE
	}
	if stream != nil {
		stream.Push(progress.Resolved(term, canonical))
	}
	return canonical, nil
}

func (o *Orchestrator) tryDirectCacheHit(ctx context.Context, startCanonical, endCanonical string, stream *progress.Stream) (Result, bool, errors.E) {
	seg, ok, errE := o.cache.GetSegment(ctx, startCanonical, endCanonical)
	if errE != nil {
		return Result{}, false, errE
	}
	if !ok {
		return Result{}, false, nil
	}

	provenance := segmentProvenance(seg)
	result := Result{Path: seg.Path, HitType: "direct", Provenance: provenance, CacheEffectiveness: 1}
	if stream != nil {
		records := toEdgeRecords(provenance)
		stream.Push(progress.CacheHit("direct", result.Path, records, result.CacheEffectiveness))
		stream.Push(progress.Complete(result.Path, result.HitType, records, result.CacheEffectiveness))
		stream.Push(progress.Done())
	}
	return result, true, nil
}

func (o *Orchestrator) tryComposedCacheHit(ctx context.Context, startCanonical, endCanonical string, stream *progress.Stream) (Result, bool, errors.E) {
	composed, prov, errE := o.cache.Compose(ctx, startCanonical, endCanonical, composeMaxHops)
	if errE != nil {
		return Result{}, false, errE
	}
	if composed == nil {
		return Result{}, false, nil
	}

	memo := pathvalidate.NewMemo()
	valid, errE := pathvalidate.Validate(ctx, o.client, memo, composed)
	if errE != nil {
		return Result{}, false, errE
	}
	if !valid {
		o.logger.Info().Strs("path", composed).Msg("composed cache path failed validation, falling back to BFS")
		return Result{}, false, nil
	}

	effectiveness := cacheEffectiveness(len(prov), len(composed)-1)
	result := Result{Path: composed, HitType: "composed", Provenance: prov, CacheEffectiveness: effectiveness}
	if stream != nil {
		records := toEdgeRecords(prov)
		stream.Push(progress.CacheHit("composed", result.Path, records, effectiveness))
		stream.Push(progress.Complete(result.Path, result.HitType, records, effectiveness))
		stream.Push(progress.Done())
	}
	return result, true, nil
}

func (o *Orchestrator) runBFS(ctx context.Context, req Request, startCanonical, endCanonical string, searchStarted time.Time, stream *progress.Stream) (Result, errors.E) {
	if req.K > 1 {
		paths, errE := o.engine.SearchKDiverse(ctx, startCanonical, endCanonical, req.K, req.MinDiversity, stream)
		if errE != nil {
			o.emitError(stream, errE)
			return Result{}, errE
		}
		best := paths[0]
		o.storeDiscoveredPath(ctx, best)
		prov := bfsProvenance(best, searchStarted)
		result := Result{Path: best, Alternatives: paths[1:], HitType: "bfs", Provenance: prov}
		if stream != nil {
			stream.Push(progress.Complete(result.Path, result.HitType, toEdgeRecords(prov), 0))
			stream.Push(progress.Done())
		}
		return result, nil
	}

	path, errE := o.engine.Search(ctx, startCanonical, endCanonical, stream)
	if errE != nil {
		o.emitError(stream, errE)
		return Result{}, errE
	}
	o.storeDiscoveredPath(ctx, path)
	prov := bfsProvenance(path, searchStarted)
	result := Result{Path: path, HitType: "bfs", Provenance: prov}
	if stream != nil {
		stream.Push(progress.Done())
	}
	return result, nil
}

// storeDiscoveredPath decomposes a BFS success into all sub-paths of length
// 2..4 titles (1..3 hops) and writes them, together with the whole path,
// back to the cache, per §4.7 step 4.
func (o *Orchestrator) storeDiscoveredPath(ctx context.Context, path []string) {
	if len(path) < 2 {
		return
	}
	seg, errE := segment.New(path)
	if errE != nil {
		o.logger.Warn().Err(errE).Msg("discovered path failed segment validation, skipping cache write")
		return
	}
	subs := seg.SubSegments(decomposeMinHops, decomposeMaxHops)
	paths := make([][]string, 0, len(subs)+1)
	paths = append(paths, path)
	for _, sub := range subs {
		paths = append(paths, sub.Path)
	}
	if errE := o.cache.BulkPut(ctx, paths); errE != nil {
		o.logger.Error().Err(errE).Msg("failed to persist decomposed segments")
	}
}

func (o *Orchestrator) emitError(stream *progress.Stream, errE errors.E) {
	if stream == nil {
		return
	}
	stream.Push(progress.Error(errE.Error()))
	stream.Push(progress.Done())
}

// toEdgeRecords converts the segment package's internal provenance records
// to the wire/event shape progress.Event carries.
func toEdgeRecords(prov []segment.Provenance) []progress.EdgeRecord {
	records := make([]progress.EdgeRecord, 0, len(prov))
	for _, p := range prov {
		records = append(records, progress.EdgeRecord{From: p.From, To: p.To, Source: p.Source, Timestamp: p.Timestamp})
	}
	return records
}

func segmentProvenance(seg segment.Segment) []segment.Provenance {
	prov := make([]segment.Provenance, 0, len(seg.Path)-1)
	for i := 0; i < len(seg.Path)-1; i++ {
		prov = append(prov, segment.Provenance{
			From: seg.Path[i], To: seg.Path[i+1], Source: segment.SourceCache, Timestamp: seg.CreatedAt,
		})
	}
	return prov
}

func bfsProvenance(path []string, searchStarted time.Time) []segment.Provenance {
	prov := make([]segment.Provenance, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		prov = append(prov, segment.Provenance{
			From: path[i], To: path[i+1], Source: segment.SourceBFS, Timestamp: searchStarted,
		})
	}
	return prov
}

// cacheEffectiveness estimates how much of a composed path came from the
// cache versus live BFS, grounded on original_source's path_cache.py
// (segments_used / hops).
func cacheEffectiveness(segmentsUsed, hops int) float64 {
	if hops <= 0 {
		return 0
	}
	return float64(segmentsUsed) / float64(hops)
}
