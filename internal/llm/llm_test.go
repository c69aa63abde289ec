package llm

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enrich/internal/config"
	"github.com/sells-group/venue-enrich/internal/cost"
	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/pkg/anthropic"
)

// mockClient returns a canned response or error and records the last request.
type mockClient struct {
	resp    *anthropic.MessageResponse
	err     error
	lastReq anthropic.MessageRequest
}

func (m *mockClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func testFallback(mock *mockClient) *Fallback {
	return NewFallback(mock, config.AnthropicConfig{Model: "claude-haiku-4-5", MaxTokens: 400})
}

func TestExtractFieldsOK(t *testing.T) {
	mock := &mockClient{resp: textResponse("```json\n" +
		`{"avg_ticket_price": 27.5, "capacity": 850, "ticket_vendor": "Pretix", "annual_revenue": null}` +
		"\n```")}
	f := testFallback(mock)

	v := model.Venue{Name: "Acme Theatre", Domain: "acmetheatre.example"}
	fields, outcome := f.ExtractFields(context.Background(), v, "page text", []string{"capacity", "avg_ticket_price"})
	assert.Equal(t, OutcomeOK, outcome)
	require.NotNil(t, fields.Capacity)
	assert.Equal(t, 850, *fields.Capacity)
	require.NotNil(t, fields.AvgTicketPrice)
	assert.InDelta(t, 27.5, *fields.AvgTicketPrice, 0.001)
	require.NotNil(t, fields.TicketVendor)
	assert.Equal(t, "Pretix", *fields.TicketVendor)
	assert.Nil(t, fields.AnnualRevenue)

	assert.Contains(t, mock.lastReq.System, "payment/checkout platform")
	assert.Contains(t, mock.lastReq.Messages[0].Content, "Acme Theatre")
	assert.Contains(t, mock.lastReq.Messages[0].Content, "capacity, avg_ticket_price")
}

func TestExtractFieldsRateLimited(t *testing.T) {
	mock := &mockClient{err: &sdk.Error{StatusCode: 429}}
	f := testFallback(mock)

	fields, outcome := f.ExtractFields(context.Background(), model.Venue{Name: "x"}, "", nil)
	assert.Equal(t, OutcomeRateLimited, outcome)
	assert.True(t, fields.Empty())
}

func TestExtractFieldsFailed(t *testing.T) {
	mock := &mockClient{err: errors.New("boom")}
	f := testFallback(mock)
	_, outcome := f.ExtractFields(context.Background(), model.Venue{Name: "x"}, "", nil)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestExtractFieldsUnparseable(t *testing.T) {
	mock := &mockClient{resp: textResponse("I could not find anything useful.")}
	f := testFallback(mock)
	fields, outcome := f.ExtractFields(context.Background(), model.Venue{Name: "x"}, "", nil)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, fields.Empty())
}

func TestEstimateRevenue(t *testing.T) {
	mock := &mockClient{resp: textResponse(
		`{"revenue_usd": 1250000, "confidence": "medium", "assumptions": "capacity x 120 shows", "is_rfp": true}`)}
	f := testFallback(mock)

	capVal := int64(850)
	v := model.Venue{Name: "Acme Theatre", Capacity: &capVal}
	est, outcome := f.EstimateRevenue(context.Background(), v)
	assert.Equal(t, OutcomeOK, outcome)
	require.NotNil(t, est.RevenueUSD)
	assert.InDelta(t, 1_250_000.0, *est.RevenueUSD, 0.001)
	assert.Equal(t, "medium", est.Confidence)
	assert.True(t, est.IsRFP)
	assert.Contains(t, mock.lastReq.Messages[0].Content, "capacity: 850")
}

func TestFallbackRecordsUsage(t *testing.T) {
	resp := textResponse(`{"capacity": 850}`)
	resp.Usage = anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 40}
	mock := &mockClient{resp: resp}

	tracker := cost.NewTracker(cost.Rates{"claude-haiku-4-5": {Input: 1.0, Output: 2.0}})
	f := NewFallback(mock, config.AnthropicConfig{Model: "claude-haiku-4-5", MaxTokens: 400},
		WithTracker(tracker))

	_, outcome := f.ExtractFields(context.Background(), model.Venue{Name: "x"}, "", []string{"capacity"})
	assert.Equal(t, OutcomeOK, outcome)

	u := tracker.Snapshot()
	assert.Equal(t, int64(1), u.Calls)
	assert.Equal(t, int64(1200), u.InputTokens)
	assert.Equal(t, int64(40), u.OutputTokens)
	assert.InDelta(t, (1200.0/1e6)*1.0+(40.0/1e6)*2.0, u.CostUSD, 1e-9)
}

func TestMeetsConfidence(t *testing.T) {
	assert.True(t, MeetsConfidence("high", "medium"))
	assert.True(t, MeetsConfidence("Medium", "medium"))
	assert.False(t, MeetsConfidence("low", "medium"))
	assert.False(t, MeetsConfidence("", "low"))
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		`Here you go: {"a":1} thanks`:  `{"a":1}`,
		`{"a":1}`:                      `{"a":1}`,
		"no json at all":               "no json at all",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanJSON(in), in)
	}
}
