// Package llm is the enrichment fallback: fields the scrapers and lookup
// APIs could not fill are asked of the model, with rate-limiting surfaced
// as a distinct outcome so the batch loop can halt instead of burning
// further throttled calls.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/config"
	"github.com/sells-group/venue-enrich/internal/cost"
	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/pkg/anthropic"
)

// Outcome classifies how a model call ended.
type Outcome int

const (
	// OutcomeOK means the call succeeded and produced a parseable payload.
	OutcomeOK Outcome = iota
	// OutcomeRateLimited means the provider returned a 429.
	OutcomeRateLimited
	// OutcomeFailed covers every other error, including unparseable output.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Fields is the model's contribution for one row; nil means the model
// abstained on that field.
type Fields struct {
	TicketVendor   *string  `json:"ticket_vendor"`
	Capacity       *int     `json:"capacity"`
	AvgTicketPrice *float64 `json:"avg_ticket_price"`
	AnnualRevenue  *float64 `json:"annual_revenue"`
}

// Empty reports whether the model contributed nothing.
func (f Fields) Empty() bool {
	return f.TicketVendor == nil && f.Capacity == nil &&
		f.AvgTicketPrice == nil && f.AnnualRevenue == nil
}

// RevenueEstimate is the quality-pass result.
type RevenueEstimate struct {
	RevenueUSD  *float64 `json:"revenue_usd"`
	Confidence  string   `json:"confidence"`
	Assumptions string   `json:"assumptions"`
	IsRFP       bool     `json:"is_rfp"`
}

// confidenceRank orders the model's self-reported confidence levels.
var confidenceRank = map[string]int{"low": 1, "medium": 2, "high": 3}

// MeetsConfidence reports whether got is at least the threshold level.
// Unknown strings rank below "low".
func MeetsConfidence(got, threshold string) bool {
	return confidenceRank[strings.ToLower(got)] >= confidenceRank[strings.ToLower(threshold)]
}

// Fallback wraps the Anthropic client with the enrichment prompts.
type Fallback struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	tracker   *cost.Tracker
}

// Option configures a Fallback.
type Option func(*Fallback)

// WithTracker records every call's token usage into the given tracker.
func WithTracker(t *cost.Tracker) Option {
	return func(f *Fallback) { f.tracker = t }
}

// NewFallback builds a Fallback from configuration.
func NewFallback(client anthropic.Client, cfg config.AnthropicConfig, opts ...Option) *Fallback {
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 400
	}
	f := &Fallback{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fallback) record(resp *anthropic.MessageResponse) {
	if f.tracker == nil || resp == nil {
		return
	}
	f.tracker.Record(f.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
}

// ExtractFields asks the model for the row's still-missing fields. A failed
// call or unparseable reply contributes nothing and reports the outcome; it
// never returns an error.
func (f *Fallback) ExtractFields(ctx context.Context, v model.Venue, websiteText string, missing []string) (Fields, Outcome) {
	temp := 0.0
	resp, err := f.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       f.model,
		MaxTokens:   f.maxTokens,
		System:      extractSystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildExtractPrompt(v, websiteText, missing)},
		},
	})
	if err != nil {
		return Fields{}, classify(err, v.Name, "extract")
	}
	f.record(resp)

	var fields Fields
	if err := json.Unmarshal([]byte(CleanJSON(ExtractText(resp))), &fields); err != nil {
		zap.L().Warn("llm: unparseable extract reply",
			zap.String("venue", v.Name), zap.Error(err))
		return Fields{}, OutcomeFailed
	}
	return fields, OutcomeOK
}

// EstimateRevenue runs the quality-pass prompt against an already-enriched
// row.
func (f *Fallback) EstimateRevenue(ctx context.Context, v model.Venue) (RevenueEstimate, Outcome) {
	temp := 0.2
	resp, err := f.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       f.model,
		MaxTokens:   f.maxTokens,
		System:      revenueSystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildRevenuePrompt(v)},
		},
	})
	if err != nil {
		return RevenueEstimate{}, classify(err, v.Name, "revenue")
	}
	f.record(resp)

	var est RevenueEstimate
	if err := json.Unmarshal([]byte(CleanJSON(ExtractText(resp))), &est); err != nil {
		zap.L().Warn("llm: unparseable revenue reply",
			zap.String("venue", v.Name), zap.Error(err))
		return RevenueEstimate{}, OutcomeFailed
	}
	return est, OutcomeOK
}

func classify(err error, venue, phase string) Outcome {
	if anthropic.IsRateLimited(err) {
		zap.L().Warn("llm: rate limited",
			zap.String("venue", venue), zap.String("phase", phase))
		return OutcomeRateLimited
	}
	zap.L().Warn("llm: call failed",
		zap.String("venue", venue), zap.String("phase", phase), zap.Error(err))
	return OutcomeFailed
}

// ExtractText concatenates all text content blocks from a message response.
func ExtractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// CleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
