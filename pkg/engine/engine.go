// Package engine runs the streaming scoring pipeline: one logical pass over
// a row source, fanned out to sharded workers whose mergeable states are
// combined once at stream end. Heavy model-backed analyzers run under a
// bounded semaphore so cheap checks never wait on model latency.
package engine

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/dedup"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/schema"
	"github.com/datagrade/datagrade/pkg/score"
	"github.com/datagrade/datagrade/pkg/sketch"
)

// Config holds one run's parameters.
type Config struct {
	Dataset    string
	TextColumn string
	Schema     *schema.Schema

	Analyzers []analyzer.Analyzer
	Models    *analyzer.ModelRegistry
	Options   analyzer.Options
	Weights   score.Weights

	// Shards is the worker fan-out. Defaults to GOMAXPROCS.
	Shards int
	// HeavyConcurrency bounds simultaneous model calls across all shards.
	HeavyConcurrency int64
	// BufferSize is the per-shard channel depth.
	BufferSize int
	// FailureThreshold demotes an analyzer after this many consecutive
	// row errors.
	FailureThreshold int
	// AllowNetwork enables analyzers that require network access.
	AllowNetwork bool

	// Deadline bounds the whole run. Zero means no deadline.
	Deadline time.Duration
	// AnalyzerTimeout bounds each heavy analyzer call, including embedding.
	// A stalled model fails the row, not the run. Zero disables the bound.
	AnalyzerTimeout time.Duration

	// SampleCap bounds the flagged-row sample kept in memory.
	SampleCap int
	// TopIssues bounds the ranked issue list in the report.
	TopIssues int

	// ExpectedRows and BloomFPP size the duplicate-index Bloom gate.
	// Zero values disable the gate.
	ExpectedRows uint64
	BloomFPP     float64

	// NearDupThreshold is the cosine similarity for near-duplicate
	// clustering; VectorCapacity bounds retained embeddings per run.
	NearDupThreshold float64
	VectorCapacity   int

	// QuantileEpsilon is the token-length sketch's relative error bound.
	QuantileEpsilon float64

	// ProgressEvery invokes OnProgress after every N rows read.
	ProgressEvery int64
	OnProgress    func(rows int64)

	// Tracer emits run and shard spans. Nil disables tracing.
	Tracer trace.Tracer
}

func (c Config) normalize() Config {
	if c.TextColumn == "" {
		c.TextColumn = "text"
	}
	if c.Shards <= 0 {
		c.Shards = runtime.GOMAXPROCS(0)
	}
	if c.HeavyConcurrency <= 0 {
		c.HeavyConcurrency = 4
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.SampleCap <= 0 {
		c.SampleCap = 100
	}
	if c.TopIssues <= 0 {
		c.TopIssues = 20
	}
	if c.Weights == nil {
		c.Weights = score.DefaultWeights()
	}
	if c.QuantileEpsilon <= 0 {
		c.QuantileEpsilon = sketch.DefaultQuantileEpsilon
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer("")
	}
	c.Options = c.Options.Normalize()
	return c
}

// nearDupCheck is the engine-internal stand-in that carries the
// near-duplicate lifecycle (skip without embedder, demote on a streak of
// embedding failures) through the same state machine as real analyzers.
type nearDupCheck struct{}

func (nearDupCheck) Name() string                  { return "near_duplicates" }
func (nearDupCheck) Tier() analyzer.CostTier       { return analyzer.TierHeavy }
func (nearDupCheck) Requires() analyzer.Capability { return analyzer.CapabilityModel }
func (nearDupCheck) Category() analyzer.Category   { return analyzer.CategoryNearDup }
func (nearDupCheck) Evaluate(*analyzer.Context, *model.Row) ([]analyzer.Metric, error) {
	return nil, nil
}

// Engine executes scoring runs.
type Engine struct {
	cfg     Config
	running atomic.Bool
}

// New creates an engine from a config.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalize()}
}

// Run performs one pass over the source and returns the quality report.
// On cancellation, deadline, or a fatal source error the returned report is
// partial (Incomplete set) and the error is returned alongside it.
func (e *Engine) Run(ctx context.Context, src RowSource) (*score.Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, dgerrors.New(dgerrors.CodeConfigInvalid, "engine already running")
	}
	defer e.running.Store(false)

	cfg := e.cfg
	started := time.Now()
	runID := uuid.NewString()

	ctx, span := cfg.Tracer.Start(ctx, "datagrade.run")
	defer span.End()

	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	rc := &analyzer.Context{
		Ctx:        ctx,
		Schema:     cfg.Schema,
		TextColumn: cfg.TextColumn,
		Models:     cfg.Models,
		Opts:       cfg.Options,
	}

	runs := e.prepareRuns()
	nearRun := analyzer.NewRun(nearDupCheck{}, cfg.FailureThreshold)
	embedder, hasEmbedder := cfg.Models.Embedder()
	if hasEmbedder {
		nearRun.Start()
	} else {
		nearRun.Skip("embedding model not loaded")
	}

	var (
		rowsRead  atomic.Int64
		rowErrors atomic.Int64
	)

	states := make([]*shardState, cfg.Shards)
	channels := make([]chan *model.Row, cfg.Shards)
	for i := range channels {
		states[i] = newShardState(&cfg)
		channels[i] = make(chan *model.Row, cfg.BufferSize)
	}

	heavy := semaphore.NewWeighted(cfg.HeavyConcurrency)
	recycler, _ := src.(Recycler)

	// The exact index lives with the reader, not the shards: a gated index
	// keeps first sight in its Bloom filter only, and per-shard filters
	// could not be merged without losing duplicates that straddle shards.
	// Hashing is cheap enough to stay on the read path.
	exact := dedup.NewExactIndex()
	if cfg.BloomFPP > 0 && cfg.ExpectedRows > 0 {
		exact = dedup.NewGatedExactIndex(cfg.ExpectedRows, cfg.BloomFPP)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Reader: pull rows and distribute round-robin. Decode errors cost the
	// row; anything else is fatal and cancels the group.
	g.Go(func() error {
		defer func() {
			for _, ch := range channels {
				close(ch)
			}
		}()
		next := 0
		for {
			row, err := src.Next(gctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				if dgerrors.IsCode(err, dgerrors.CodeDataFormat) {
					rowErrors.Add(1)
					continue
				}
				if gctx.Err() != nil {
					return dgerrors.ContextCanceled("source read")
				}
				return dgerrors.FatalSource(err)
			}
			n := rowsRead.Add(1)
			if text, ok := rc.Text(row); ok {
				exact.Observe(row.Index, text)
			}
			if cfg.ProgressEvery > 0 && cfg.OnProgress != nil && n%cfg.ProgressEvery == 0 {
				cfg.OnProgress(n)
			}
			select {
			case channels[next] <- row:
			case <-gctx.Done():
				return dgerrors.ContextCanceled("row dispatch")
			}
			next = (next + 1) % cfg.Shards
		}
	})

	for i := 0; i < cfg.Shards; i++ {
		shard := i
		g.Go(func() error {
			_, sspan := cfg.Tracer.Start(gctx, "datagrade.shard")
			defer sspan.End()
			return e.runShard(gctx, rc, states[shard], channels[shard], runs, nearRun, embedder, heavy, recycler)
		})
	}

	runErr := g.Wait()

	// Merge shard states into the first.
	final := states[0]
	for _, s := range states[1:] {
		final.merge(s)
	}
	final.rowErrors += rowErrors.Load()

	for _, r := range runs {
		r.Complete()
	}
	nearRun.Complete()

	report := e.finalize(final, exact, runs, nearRun, runID, started, src.Name())
	report.UnprocessedRows = rowsRead.Load() - final.rows
	if runErr != nil {
		report.Incomplete = true
	}
	return report, runErr
}

// prepareRuns builds the lifecycle state for every configured analyzer and
// applies the skip phase: model-backed analyzers whose model is not loaded,
// and network analyzers when network use is disabled, are skipped before
// any row is processed. Model capability names match analyzer names for the
// built-in heavy checks.
func (e *Engine) prepareRuns() []*analyzer.Run {
	runs := make([]*analyzer.Run, 0, len(e.cfg.Analyzers))
	for _, a := range e.cfg.Analyzers {
		r := analyzer.NewRun(a, e.cfg.FailureThreshold)
		switch a.Requires() {
		case analyzer.CapabilityModel:
			if !e.cfg.Models.Has(a.Name()) {
				r.Skip("model not loaded: " + a.Name())
			}
		case analyzer.CapabilityNetwork:
			if !e.cfg.AllowNetwork {
				r.Skip("network access disabled")
			}
		}
		if r.Status() == analyzer.StatusPending {
			r.Start()
		}
		runs = append(runs, r)
	}
	return runs
}

// runShard drains one shard channel, folding every row into the shard
// state. The loop runs until the channel closes rather than racing the
// context: on cancellation the reader stops dispatching and closes the
// channel, so the shard finishes the bounded buffer it already holds and
// every dispatched row lands in exactly one shard state.
func (e *Engine) runShard(ctx context.Context, rc *analyzer.Context, state *shardState,
	in <-chan *model.Row, runs []*analyzer.Run, nearRun *analyzer.Run,
	embedder analyzer.Embedder, heavy *semaphore.Weighted, recycler Recycler) error {

	flaggedCats := make(map[analyzer.Category]bool)

	for row := range in {
		state.rows++
		state.observeColumns(row)

		for c := range flaggedCats {
			delete(flaggedCats, c)
		}
		for _, r := range runs {
			if !r.Active() {
				continue
			}
			a := r.Analyzer
			if a.Tier() == analyzer.TierHeavy {
				if err := heavy.Acquire(ctx, 1); err != nil {
					return dgerrors.ContextCanceled("heavy pool")
				}
				metrics, err := e.evaluateHeavy(ctx, rc, a, row)
				heavy.Release(1)
				e.fold(r, state, a, row, metrics, err, flaggedCats)
				continue
			}
			metrics, err := analyzer.EvaluateSafe(a, rc, row)
			e.fold(r, state, a, row, metrics, err, flaggedCats)
		}

		if nearRun.Active() && embedder != nil {
			if text, ok := rc.Text(row); ok {
				if err := heavy.Acquire(ctx, 1); err != nil {
					return dgerrors.ContextCanceled("heavy pool")
				}
				ectx, cancel := e.modelContext(ctx)
				vec, err := embedder.Embed(ectx, text)
				cancel()
				heavy.Release(1)
				if err != nil {
					if ectx.Err() != nil && ctx.Err() == nil {
						err = dgerrors.Wrap(err, dgerrors.CodeAnalyzerTimeout, "embedding exceeded analyzer timeout")
					}
					nearRun.RecordError(err)
				} else {
					nearRun.RecordSuccess()
					state.near.Observe(row.Index, vec)
				}
			}
		}

		if recycler != nil {
			recycler.Recycle(row)
		}
	}
	return nil
}

// evaluateHeavy runs one heavy analyzer with the per-analyzer timeout
// applied. The analyzer sees the scoped deadline through a copied Context,
// so a stalled model call costs the row, not the run.
func (e *Engine) evaluateHeavy(ctx context.Context, rc *analyzer.Context, a analyzer.Analyzer, row *model.Row) ([]analyzer.Metric, error) {
	if e.cfg.AnalyzerTimeout <= 0 {
		return analyzer.EvaluateSafe(a, rc, row)
	}
	tctx, cancel := context.WithTimeout(ctx, e.cfg.AnalyzerTimeout)
	defer cancel()
	scoped := *rc
	scoped.Ctx = tctx
	metrics, err := analyzer.EvaluateSafe(a, &scoped, row)
	if err != nil && tctx.Err() != nil && ctx.Err() == nil {
		err = dgerrors.Wrap(err, dgerrors.CodeAnalyzerTimeout, a.Name()+" exceeded analyzer timeout")
	}
	return metrics, err
}

// modelContext scopes one model call to the analyzer timeout.
func (e *Engine) modelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.AnalyzerTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.AnalyzerTimeout)
}

func (e *Engine) fold(r *analyzer.Run, state *shardState, a analyzer.Analyzer,
	row *model.Row, metrics []analyzer.Metric, err error, flaggedCats map[analyzer.Category]bool) {
	if err != nil {
		state.rowErrors++
		r.RecordError(err)
		return
	}
	r.RecordSuccess()
	state.record(a, row, metrics, flaggedCats)
}
