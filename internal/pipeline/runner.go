package pipeline

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/venue-enrich/internal/config"
	"github.com/sells-group/venue-enrich/internal/llm"
	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/internal/store"
)

// HaltQuota and HaltBudget are the values BatchSummary.Halted takes when a
// batch stops before exhausting its rows.
const (
	HaltQuota  = "quota"
	HaltBudget = "budget"
)

// Options selects what one batch run does.
type Options struct {
	// Limit caps how many rows the batch selects. Zero means the configured
	// default; values above the configured maximum are clamped.
	Limit int
	// Dry computes patches but writes nothing back.
	Dry bool
	// Backfill selects rows with absent or low-trust revenue instead of the
	// pending set.
	Backfill bool
	// Quality runs the LLM revenue-quality pass over the backfill set
	// instead of the full pipeline.
	Quality bool
}

// Runner drains batches of venue rows through the enrichment pipeline.
type Runner struct {
	store       store.Store
	enricher    *Enricher
	batch       config.BatchConfig
	revenue     config.RevenueConfig
	stopOnQuota bool
	limiter     *rate.Limiter
}

// NewRunner wires a Runner. stopOnQuota controls whether a rate-limited LLM
// call halts the whole batch or only skips the row's fallback.
func NewRunner(st store.Store, enricher *Enricher, batch config.BatchConfig, revenue config.RevenueConfig, stopOnQuota bool) *Runner {
	var limiter *rate.Limiter
	if batch.RowDelayMinMS > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(batch.RowDelayMinMS)*time.Millisecond), 1)
	}
	return &Runner{
		store:       st,
		enricher:    enricher,
		batch:       batch,
		revenue:     revenue,
		stopOnQuota: stopOnQuota,
		limiter:     limiter,
	}
}

// Run executes one batch and reports the aggregate outcome. A halted batch
// is not an error: the summary's Halted field says why it stopped early.
func (r *Runner) Run(ctx context.Context, opts Options) (model.BatchSummary, error) {
	summary := model.BatchSummary{RunID: uuid.NewString(), Dry: opts.Dry}

	limit := opts.Limit
	if limit <= 0 {
		limit = r.batch.DefaultLimit
	}
	if r.batch.MaxLimit > 0 && limit > r.batch.MaxLimit {
		limit = r.batch.MaxLimit
	}

	var (
		rows []model.Venue
		err  error
	)
	if opts.Backfill || opts.Quality {
		rows, err = r.store.SelectBackfill(ctx, limit)
	} else {
		rows, err = r.store.SelectPending(ctx, limit)
	}
	if err != nil {
		return summary, err
	}

	zap.L().Info("pipeline: batch starting",
		zap.String("run_id", summary.RunID),
		zap.Int("rows", len(rows)),
		zap.Bool("dry", opts.Dry),
		zap.Bool("backfill", opts.Backfill),
		zap.Bool("quality", opts.Quality))

	var deadline time.Time
	if r.batch.SoftBudgetSecs > 0 {
		deadline = time.Now().Add(time.Duration(r.batch.SoftBudgetSecs) * time.Second)
	}

	if r.batch.Concurrency > 1 {
		err = r.runConcurrent(ctx, rows, opts, deadline, &summary)
	} else {
		err = r.runSequential(ctx, rows, opts, deadline, &summary)
	}

	zap.L().Info("pipeline: batch finished",
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.String("halted", summary.Halted))
	return summary, err
}

func (r *Runner) runSequential(ctx context.Context, rows []model.Venue, opts Options, deadline time.Time, summary *model.BatchSummary) error {
	for _, v := range rows {
		if !deadline.IsZero() && time.Now().After(deadline) {
			summary.Halted = HaltBudget
			return nil
		}
		if err := r.pace(ctx); err != nil {
			return err
		}

		outcome := r.processRow(ctx, v, opts, summary)
		if outcome == llm.OutcomeRateLimited && r.stopOnQuota {
			summary.Halted = HaltQuota
			return nil
		}
	}
	return nil
}

func (r *Runner) runConcurrent(ctx context.Context, rows []model.Venue, opts Options, deadline time.Time, summary *model.BatchSummary) error {
	var (
		mu     sync.Mutex
		halted string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.batch.Concurrency)

	for _, v := range rows {
		mu.Lock()
		stop := halted != ""
		mu.Unlock()
		if stop {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			mu.Lock()
			halted = HaltBudget
			mu.Unlock()
			break
		}
		if err := r.pace(gctx); err != nil {
			break
		}

		g.Go(func() error {
			var local model.BatchSummary
			outcome := r.processRow(gctx, v, opts, &local)

			mu.Lock()
			summary.Processed += local.Processed
			summary.Updated += local.Updated
			summary.Skipped += local.Skipped
			summary.Failed += local.Failed
			if outcome == llm.OutcomeRateLimited && r.stopOnQuota && halted == "" {
				halted = HaltQuota
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if halted != "" {
		summary.Halted = halted
	}
	return err
}

// processRow enriches one row and applies its patch, mutating the given
// summary. Row failures never abort the batch.
func (r *Runner) processRow(ctx context.Context, v model.Venue, opts Options, summary *model.BatchSummary) llm.Outcome {
	var (
		patch   model.Patch
		outcome llm.Outcome
	)
	if opts.Quality {
		patch, outcome = r.qualityRow(ctx, v)
	} else {
		patch, outcome = r.enricher.EnrichRow(ctx, v)
	}
	if outcome == llm.OutcomeRateLimited && r.stopOnQuota {
		// Row is left untouched and uncounted so a later run can retry it;
		// Processed reports only rows completed before the halt.
		summary.Skipped++
		return outcome
	}
	summary.Processed++

	if !patch.HasBusinessField() && opts.Quality {
		summary.Skipped++
		return outcome
	}

	if opts.Dry {
		zap.L().Info("pipeline: dry run, not writing",
			zap.String("venue", v.Key()), zap.Int("columns", patch.Len()))
		if patch.HasBusinessField() {
			summary.Updated++
		} else {
			summary.Skipped++
		}
		return outcome
	}

	if err := r.store.ApplyPatch(ctx, v, patch); err != nil {
		zap.L().Error("pipeline: patch write failed",
			zap.String("venue", v.Key()), zap.Error(err))
		summary.Failed++
		return outcome
	}
	if patch.HasBusinessField() {
		summary.Updated++
	} else {
		summary.Skipped++
	}
	return outcome
}

// pace spreads rows out: a steady minimum interval plus random jitter up to
// the configured maximum delay.
func (r *Runner) pace(ctx context.Context) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if spread := r.batch.RowDelayMaxMS - r.batch.RowDelayMinMS; spread > 0 {
		jitter := time.Duration(rand.IntN(spread)) * time.Millisecond
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
