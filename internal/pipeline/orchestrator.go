// Package pipeline runs the scan, resolve, rank and enrich stages end to end.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/cache"
	"github.com/JakeFAU/affiche/internal/metrics"
	"github.com/JakeFAU/affiche/internal/movie"
	"github.com/JakeFAU/affiche/internal/pool"
	"github.com/JakeFAU/affiche/internal/rank"
)

const (
	// DefaultTopCount is how many films a run returns when unspecified.
	DefaultTopCount = 10
	// DefaultPopLevel is the venue count a film must exceed to be considered.
	DefaultPopLevel = 30

	runOp = "top_movies"
)

// Deps are the stage implementations an Orchestrator drives.
type Deps struct {
	Identity movie.IdentitySource
	Scanner  movie.Scanner
	Resolver movie.Resolver
	Enricher movie.Enricher
	Pool     *pool.Pool
	Cache    *cache.Cache
}

// Orchestrator composes the pipeline stages. Each fan-out stage completes before the next starts.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// New builds an Orchestrator.
func New(deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Scanner == nil || deps.Resolver == nil || deps.Enricher == nil {
		return nil, fmt.Errorf("pipeline: scanner, resolver and enricher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Pool == nil {
		deps.Pool = pool.New(pool.DefaultWorkers, logger)
	}
	return &Orchestrator{deps: deps, logger: logger.Named("pipeline")}, nil
}

// Run returns the topCount best-rated films shown in more than popLevel venues, best first.
// Results are memoized per (topCount, popLevel). An unreachable listing page or a run
// cut short by ctx is an error and is never memoized.
func (o *Orchestrator) Run(ctx context.Context, topCount, popLevel int) ([]movie.EnrichedRecord, error) {
	return cache.Memoize(ctx, o.deps.Cache, runOp, []any{topCount, popLevel}, func(ctx context.Context) ([]movie.EnrichedRecord, error) {
		return o.run(ctx, topCount, popLevel)
	})
}

func (o *Orchestrator) run(ctx context.Context, topCount, popLevel int) ([]movie.EnrichedRecord, error) {
	started := time.Now()
	logger := o.logger.With(zap.Int("top_count", topCount), zap.Int("pop_level", popLevel))

	pools := o.loadPools(ctx)

	stageStart := time.Now()
	candidates, err := o.deps.Scanner.Scan(ctx, pools, popLevel)
	o.stageDone(logger, "scan", stageStart, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}

	stageStart = time.Now()
	resolved := pool.Run(ctx, o.deps.Pool, candidates, func(ctx context.Context, c movie.PopularCandidate) (movie.ResolvedRecord, error) {
		return o.deps.Resolver.Resolve(ctx, pools, c)
	})
	o.stageDone(logger, "resolve", stageStart, len(resolved))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve stage: %w", err)
	}

	stageStart = time.Now()
	top := rank.SelectTop(resolved, topCount)
	o.stageDone(logger, "rank", stageStart, len(top))

	stageStart = time.Now()
	enriched, err := o.enrich(ctx, pools, top)
	o.stageDone(logger, "enrich", stageStart, len(enriched))
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("resolved", len(resolved)),
		zap.Int("enriched", len(enriched)),
		zap.Duration("duration", time.Since(started)),
	)
	return enriched, nil
}

type ranked struct {
	pos    int
	record movie.ResolvedRecord
}

type rankedResult struct {
	pos    int
	record movie.EnrichedRecord
}

// enrich fans top out over the pool and returns the survivors in rank order.
func (o *Orchestrator) enrich(ctx context.Context, pools movie.Pools, top []movie.ResolvedRecord) ([]movie.EnrichedRecord, error) {
	tasks := make([]ranked, len(top))
	for i, r := range top {
		tasks[i] = ranked{pos: i, record: r}
	}
	done := pool.Run(ctx, o.deps.Pool, tasks, func(ctx context.Context, t ranked) (rankedResult, error) {
		rec, err := o.deps.Enricher.Enrich(ctx, pools, t.record)
		return rankedResult{pos: t.pos, record: rec}, err
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrich stage: %w", err)
	}
	slices.SortFunc(done, func(a, b rankedResult) int { return cmp.Compare(a.pos, b.pos) })

	out := make([]movie.EnrichedRecord, len(done))
	for i, r := range done {
		out[i] = r.record
	}
	return out, nil
}

func (o *Orchestrator) loadPools(ctx context.Context) movie.Pools {
	if o.deps.Identity == nil {
		return movie.Pools{}
	}
	return o.deps.Identity.Pools(ctx)
}

func (o *Orchestrator) stageDone(logger *zap.Logger, stage string, start time.Time, count int) {
	elapsed := time.Since(start)
	metrics.ObserveStage(stage, elapsed)
	logger.Info("stage complete", zap.String("stage", stage), zap.Int("count", count), zap.Duration("duration", elapsed))
}
