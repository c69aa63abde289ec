package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/llm"
	"github.com/sells-group/venue-enrich/internal/model"
)

// qualityRow runs the LLM revenue-quality pass for one row: ask the model
// for a revenue estimate and overwrite the stored figure only when the
// reported confidence clears the configured bar. Everything the model said
// is kept in the notes column for audit.
func (r *Runner) qualityRow(ctx context.Context, v model.Venue) (model.Patch, llm.Outcome) {
	var patch model.Patch
	if r.enricher == nil || r.enricher.deps.Fallback == nil {
		return patch, llm.OutcomeOK
	}

	est, outcome := r.enricher.deps.Fallback.EstimateRevenue(ctx, v)
	if outcome != llm.OutcomeOK {
		return patch, outcome
	}
	if est.RevenueUSD == nil {
		zap.L().Debug("pipeline: quality pass returned no figure",
			zap.String("venue", v.Key()))
		return patch, outcome
	}
	if !llm.MeetsConfidence(est.Confidence, r.revenue.QualityConfidence) {
		zap.L().Debug("pipeline: quality estimate below confidence bar",
			zap.String("venue", v.Key()),
			zap.String("confidence", est.Confidence))
		return patch, outcome
	}

	patch.SetRevenue(*est.RevenueUSD, model.SourceGPT)
	patch.SetSegment(model.Segment(*est.RevenueUSD))

	note := fmt.Sprintf("GPT revenue_usd=%.0f confidence=%s", *est.RevenueUSD, est.Confidence)
	if est.Assumptions != "" {
		note += " assumptions=" + est.Assumptions
	}
	if est.IsRFP {
		note += " [RFP candidate]"
	}
	patch.SetNotes(appendNote(v.Notes, note))
	patch.SetStatus(model.StatusDone)
	patch.Touch(time.Now())
	return patch, outcome
}

// appendNote grows the notes column without clobbering what operators or
// earlier runs wrote there.
func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + " | " + note
}
