package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enrich/internal/config"
	"github.com/sells-group/venue-enrich/internal/llm"
	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/internal/scrape"
	"github.com/sells-group/venue-enrich/pkg/eventbrite"
	"github.com/sells-group/venue-enrich/pkg/ticketmaster"
	"github.com/sells-group/venue-enrich/pkg/wikidata"
)

func strPtr(s string) *string   { return &s }
func intPtr(i int) *int         { return &i }
func i64Ptr(i int64) *int64     { return &i }
func f64Ptr(f float64) *float64 { return &f }

type fakeFetcher struct {
	page  scrape.Page
	extra []scrape.Page
	err   error
}

func (f *fakeFetcher) FetchSite(_ context.Context, _ string) (scrape.Page, error) {
	return f.page, f.err
}

func (f *fakeFetcher) FetchExtra(_ context.Context, _ string) []scrape.Page {
	return f.extra
}

type fakeDetector struct{ sig *model.VendorSignal }

func (f *fakeDetector) Detect(_ string, _ []string, _ string) *model.VendorSignal {
	return f.sig
}

type fixedPrice struct {
	structured *float64
	text       *float64
}

func (f fixedPrice) Price(rawHTML, text string) *float64 {
	if rawHTML != "" {
		return f.structured
	}
	return f.text
}

type fixedCapacity struct{ val *int64 }

func (f fixedCapacity) Capacity(string) *int64 { return f.val }

type fakeTM struct {
	res *ticketmaster.VenueResult
	err error
}

func (f *fakeTM) VenueLookup(_ context.Context, _ string) (*ticketmaster.VenueResult, error) {
	return f.res, f.err
}

type fakeEB struct {
	res *eventbrite.VenueResult
	err error
}

func (f *fakeEB) VenueSearch(_ context.Context, _ string) (*eventbrite.VenueResult, error) {
	return f.res, f.err
}

type fakeWD struct {
	res *wikidata.VenueResult
	err error
}

func (f *fakeWD) VenueLookup(_ context.Context, _ string) (*wikidata.VenueResult, error) {
	return f.res, f.err
}

type fakePlaces struct {
	level *int
	err   error
}

func (f *fakePlaces) PriceLevel(_ context.Context, _ string) (*int, error) {
	return f.level, f.err
}

type fakeFallback struct {
	fields   llm.Fields
	estimate llm.RevenueEstimate
	outcome  llm.Outcome
	calls    int
}

func (f *fakeFallback) ExtractFields(_ context.Context, _ model.Venue, _ string, _ []string) (llm.Fields, llm.Outcome) {
	f.calls++
	return f.fields, f.outcome
}

func (f *fakeFallback) EstimateRevenue(_ context.Context, _ model.Venue) (llm.RevenueEstimate, llm.Outcome) {
	f.calls++
	return f.estimate, f.outcome
}

func revenueCfg() config.RevenueConfig {
	return config.RevenueConfig{EventsPerYear: 20, LoadFactor: 0.70, QualityConfidence: "medium"}
}

func patchValue(t *testing.T, p model.Patch, column string) any {
	t.Helper()
	for _, a := range p.Assignments() {
		if a.Column == column {
			return a.Value
		}
	}
	t.Fatalf("patch has no column %q", column)
	return nil
}

func TestMergePrecedence(t *testing.T) {
	scrapeExt := model.Extraction{
		Vendor: strPtr("Pretix"), VendorSource: model.SourceWebsiteLinks,
	}
	apiExt := model.Extraction{
		Vendor: strPtr("Ticketmaster"), VendorSource: model.SourceTicketmaster,
		Capacity: i64Ptr(1200), CapacitySource: model.SourceTicketmaster,
	}
	heuristicExt := model.Extraction{
		Capacity: i64Ptr(900), CapacitySource: model.SourceHeuristic,
		Price: f64Ptr(18), PriceSource: model.SourceHeuristic,
	}

	merged := Merge([]model.Extraction{scrapeExt, apiExt, heuristicExt})
	assert.Equal(t, "Pretix", *merged.Vendor)
	assert.Equal(t, model.SourceWebsiteLinks, merged.VendorSource)
	assert.Equal(t, int64(1200), *merged.Capacity)
	assert.Equal(t, model.SourceTicketmaster, merged.CapacitySource)
	assert.Equal(t, 18.0, *merged.Price)
}

func TestMergeSkipsZeroValues(t *testing.T) {
	merged := Merge([]model.Extraction{
		{Capacity: i64Ptr(0), CapacitySource: model.SourceTicketmaster},
		{Capacity: i64Ptr(450), CapacitySource: model.SourceHeuristic},
	})
	assert.Equal(t, int64(450), *merged.Capacity)
	assert.Equal(t, model.SourceHeuristic, merged.CapacitySource)
}

func TestRevenueFormula(t *testing.T) {
	// 20 * 300 * 20 * 0.70 = 84000.00
	assert.Equal(t, 84000.0, Revenue(20, 300, 20, 0.70))
	assert.Equal(t, "formula[heuristic,ticketmaster_api,default,default]",
		FormulaTag(model.SourceHeuristic, model.SourceTicketmaster, model.SourceDefault, model.SourceDefault))
}

func TestEnrichRowDerivesRevenue(t *testing.T) {
	e := NewEnricher(Deps{
		Fetcher: &fakeFetcher{page: scrape.Page{
			FinalURL: "https://acme.example",
			HTML:     "<html></html>",
			Text:     "Tickets from 20 EUR",
		}},
		Detector: &fakeDetector{},
		Price:    fixedPrice{text: f64Ptr(20)},
		Capacity: fixedCapacity{},
		Ticketmaster: &fakeTM{res: &ticketmaster.VenueResult{
			VenueID: "tm1", Capacity: intPtr(300),
		}},
		Revenue: revenueCfg(),
	})

	v := model.Venue{EntityID: "e1", Name: "Acme Theatre", Domain: "acme.example"}
	patch, outcome := e.EnrichRow(context.Background(), v)

	assert.Equal(t, llm.OutcomeOK, outcome)
	assert.Equal(t, 20.0, patchValue(t, patch, "avg_ticket_price"))
	assert.Equal(t, model.SourceHeuristic, patchValue(t, patch, "avg_ticket_price_source"))
	assert.Equal(t, int64(300), patchValue(t, patch, "capacity"))
	assert.Equal(t, model.SourceTicketmaster, patchValue(t, patch, "capacity_source"))
	assert.Equal(t, 84000.0, patchValue(t, patch, "annual_revenue"))
	assert.Equal(t, "formula[heuristic,ticketmaster_api,default,default]",
		patchValue(t, patch, "annual_revenue_source"))
	assert.Equal(t, "Bronze", patchValue(t, patch, "segment"))
	assert.Equal(t, string(model.StatusDone), patchValue(t, patch, "enrichment_status"))
	assert.True(t, patch.Has("last_updated"))
}

func TestEnrichRowVendorPrecedence(t *testing.T) {
	e := NewEnricher(Deps{
		Fetcher: &fakeFetcher{page: scrape.Page{
			FinalURL: "https://acme.example", HTML: "<html></html>", Text: "hi",
		}},
		Detector: &fakeDetector{sig: &model.VendorSignal{
			Vendor: "Pretix", Type: model.SignalScript,
		}},
		Price:    fixedPrice{},
		Capacity: fixedCapacity{},
		Ticketmaster: &fakeTM{res: &ticketmaster.VenueResult{
			VenueID: "tm1",
		}},
		Revenue: revenueCfg(),
	})

	patch, _ := e.EnrichRow(context.Background(), model.Venue{Name: "Acme", Domain: "acme.example"})
	assert.Equal(t, "Pretix", patchValue(t, patch, "ticket_vendor"))
	assert.Equal(t, model.SourceWebsiteLinks, patchValue(t, patch, "ticket_vendor_source"))
}

func TestEnrichRowPreservesExistingFields(t *testing.T) {
	e := NewEnricher(Deps{
		Ticketmaster: &fakeTM{res: &ticketmaster.VenueResult{
			VenueID: "tm1", Capacity: intPtr(999), MedianMinPrice: f64Ptr(50),
		}},
		Revenue: revenueCfg(),
	})

	v := model.Venue{
		Name:           "Acme",
		TicketVendor:   strPtr("Eventbrite"),
		Capacity:       i64Ptr(450),
		AvgTicketPrice: f64Ptr(22.50),
	}
	patch, _ := e.EnrichRow(context.Background(), v)

	// Existing values keep their place; only revenue is newly derived.
	assert.False(t, patch.Has("capacity"))
	assert.False(t, patch.Has("ticket_vendor"))
	assert.False(t, patch.Has("avg_ticket_price"))
	assert.Equal(t, Revenue(22.50, 450, 20, 0.70), patchValue(t, patch, "annual_revenue"))
}

func TestEnrichRowLLMFallback(t *testing.T) {
	fb := &fakeFallback{
		fields: llm.Fields{
			TicketVendor: strPtr("Billetweb"),
			Capacity:     intPtr(350),
		},
		outcome: llm.OutcomeOK,
	}
	e := NewEnricher(Deps{Fallback: fb, Revenue: revenueCfg()})

	patch, outcome := e.EnrichRow(context.Background(), model.Venue{Name: "Acme"})
	assert.Equal(t, llm.OutcomeOK, outcome)
	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, "Billetweb", patchValue(t, patch, "ticket_vendor"))
	assert.Equal(t, model.SourceGPT, patchValue(t, patch, "ticket_vendor_source"))
	assert.Equal(t, int64(350), patchValue(t, patch, "capacity"))
	assert.Equal(t, model.SourceGPT, patchValue(t, patch, "capacity_source"))
}

func TestEnrichRowLLMNotCalledWhenComplete(t *testing.T) {
	fb := &fakeFallback{outcome: llm.OutcomeOK}
	e := NewEnricher(Deps{
		Ticketmaster: &fakeTM{res: &ticketmaster.VenueResult{
			VenueID: "tm1", Capacity: intPtr(800), MedianMinPrice: f64Ptr(30),
		}},
		Fallback: fb,
		Revenue:  revenueCfg(),
	})

	patch, _ := e.EnrichRow(context.Background(), model.Venue{Name: "Acme"})
	assert.Equal(t, 0, fb.calls)
	assert.Equal(t, "formula[ticketmaster_api,ticketmaster_api,default,default]",
		patchValue(t, patch, "annual_revenue_source"))
}

func TestEnrichRowRejectsAggregatorVendorFromLLM(t *testing.T) {
	fb := &fakeFallback{
		fields:  llm.Fields{TicketVendor: strPtr("Viagogo")},
		outcome: llm.OutcomeOK,
	}
	e := NewEnricher(Deps{Fallback: fb, Revenue: revenueCfg()})

	patch, _ := e.EnrichRow(context.Background(), model.Venue{Name: "Acme"})
	assert.False(t, patch.Has("ticket_vendor"))
	assert.Equal(t, string(model.StatusNoData), patchValue(t, patch, "enrichment_status"))
}

func TestEnrichRowNoDataStatus(t *testing.T) {
	e := NewEnricher(Deps{Revenue: revenueCfg()})

	patch, outcome := e.EnrichRow(context.Background(), model.Venue{Name: "Ghost Hall"})
	assert.Equal(t, llm.OutcomeOK, outcome)
	assert.Equal(t, string(model.StatusNoData), patchValue(t, patch, "enrichment_status"))
	assert.False(t, patch.HasBusinessField())
	assert.True(t, patch.Has("last_updated"))
}

func TestEnrichRowWikidataRevenueDirect(t *testing.T) {
	e := NewEnricher(Deps{
		Wikidata: &fakeWD{res: &wikidata.VenueResult{
			Capacity:      intPtr(5272),
			AnnualRevenue: f64Ptr(45_600_000),
		}},
		Revenue: revenueCfg(),
	})

	patch, _ := e.EnrichRow(context.Background(), model.Venue{Name: "Teatro Real"})
	assert.Equal(t, 45_600_000.0, patchValue(t, patch, "annual_revenue"))
	assert.Equal(t, model.SourceWikidata, patchValue(t, patch, "annual_revenue_source"))
	assert.Equal(t, "Diamond", patchValue(t, patch, "segment"))
}

func TestEnrichRowRateLimitedPropagates(t *testing.T) {
	fb := &fakeFallback{outcome: llm.OutcomeRateLimited}
	e := NewEnricher(Deps{Fallback: fb, Revenue: revenueCfg()})

	_, outcome := e.EnrichRow(context.Background(), model.Venue{Name: "Acme"})
	assert.Equal(t, llm.OutcomeRateLimited, outcome)
}

func TestDeriveRevenueSkipsWhenPresent(t *testing.T) {
	merged := model.Extraction{
		Revenue: f64Ptr(1_000_000), RevenueSource: model.SourceWikidata,
		Price: f64Ptr(20), PriceSource: model.SourceHeuristic,
		Capacity: i64Ptr(300), CapacitySource: model.SourceHeuristic,
	}
	deriveRevenue(model.Venue{}, &merged, 20, 0.70)
	assert.Equal(t, 1_000_000.0, *merged.Revenue)
	assert.Equal(t, model.SourceWikidata, merged.RevenueSource)
}

func TestDeriveRevenueStoredValuesWithoutSource(t *testing.T) {
	v := model.Venue{AvgTicketPrice: f64Ptr(25)}
	merged := model.Extraction{Capacity: i64Ptr(400), CapacitySource: model.SourceHeuristic}

	deriveRevenue(v, &merged, 20, 0.70)
	require.NotNil(t, merged.Revenue)
	assert.Equal(t, "formula[stored,heuristic,default,default]", merged.RevenueSource)
}

func TestAppendNote(t *testing.T) {
	assert.Equal(t, "fresh", appendNote("", "fresh"))
	assert.Equal(t, "old | fresh", appendNote("old", "fresh"))
}

func TestMissingAfter(t *testing.T) {
	v := model.Venue{Name: "Acme", Capacity: i64Ptr(100)}
	merged := model.Extraction{Price: f64Ptr(15), PriceSource: model.SourceHeuristic}

	missing := missingAfter(v, merged)
	require.Len(t, missing, 2)
	assert.Contains(t, missing, "ticket_vendor")
	assert.Contains(t, missing, "annual_revenue")
}
