// Package pipeline enriches venue rows: scrape the site, detect the ticket
// vendor, extract price and capacity, consult the lookup APIs, fall back to
// the model for whatever is still missing, then merge by fixed precedence
// and emit a typed patch for the writer.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/config"
	"github.com/sells-group/venue-enrich/internal/detect"
	"github.com/sells-group/venue-enrich/internal/llm"
	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/internal/scrape"
	"github.com/sells-group/venue-enrich/pkg/eventbrite"
	"github.com/sells-group/venue-enrich/pkg/places"
	"github.com/sells-group/venue-enrich/pkg/ticketmaster"
	"github.com/sells-group/venue-enrich/pkg/wikidata"
)

// SiteFetcher retrieves venue site pages.
type SiteFetcher interface {
	FetchSite(ctx context.Context, domain string) (scrape.Page, error)
	FetchExtra(ctx context.Context, finalURL string) []scrape.Page
}

// VendorDetector matches page content against the vendor signature table.
type VendorDetector interface {
	Detect(rawHTML string, links []string, text string) *model.VendorSignal
}

// PricePuller extracts an aggregated ticket price from page content.
type PricePuller interface {
	Price(rawHTML, text string) *float64
}

// CapacityPuller extracts a venue capacity from page text.
type CapacityPuller interface {
	Capacity(text string) *int64
}

// Fallback is the LLM surface the pipeline uses.
type Fallback interface {
	ExtractFields(ctx context.Context, v model.Venue, websiteText string, missing []string) (llm.Fields, llm.Outcome)
	EstimateRevenue(ctx context.Context, v model.Venue) (llm.RevenueEstimate, llm.Outcome)
}

// Deps bundles everything an Enricher needs. Any nil client disables that
// source; the pipeline simply collects no contribution from it.
type Deps struct {
	Fetcher  SiteFetcher
	Detector VendorDetector
	Price    PricePuller
	Capacity CapacityPuller

	Ticketmaster ticketmaster.Client
	Eventbrite   eventbrite.Client
	Places       places.Client
	Wikidata     wikidata.Client
	Fallback     Fallback

	Revenue config.RevenueConfig
}

// Enricher runs the per-row enrichment pipeline.
type Enricher struct {
	deps Deps
}

// NewEnricher builds an Enricher over explicit dependencies.
func NewEnricher(deps Deps) *Enricher {
	return &Enricher{deps: deps}
}

// EnrichRow computes a patch for one venue. It never returns an error: a
// source that fails contributes nothing. The outcome reports how the LLM
// call ended, OutcomeOK when it was not needed.
func (e *Enricher) EnrichRow(ctx context.Context, v model.Venue) (model.Patch, llm.Outcome) {
	site := e.scrapePhase(ctx, v)

	candidates := []model.Extraction{site.structured}
	candidates = append(candidates, e.lookupPhase(ctx, v)...)
	candidates = append(candidates, site.heuristic)

	outcome := llm.OutcomeOK
	merged := Merge(candidates)
	// Derive before asking the model: a row whose revenue the formula covers
	// has nothing missing, so no call is made for it.
	deriveRevenue(v, &merged, e.deps.Revenue.EventsPerYear, e.deps.Revenue.LoadFactor)
	if missing := missingAfter(v, merged); len(missing) > 0 && e.deps.Fallback != nil {
		var llmExt model.Extraction
		llmExt, outcome = e.llmPhase(ctx, v, site.text, missing)
		merged = Merge([]model.Extraction{merged, llmExt})
		deriveRevenue(v, &merged, e.deps.Revenue.EventsPerYear, e.deps.Revenue.LoadFactor)
	}

	return buildPatch(v, merged, time.Now()), outcome
}

// sitePhase carries what one site scrape contributed, split into the
// high-precedence structured signals and the low-precedence text heuristics.
type sitePhase struct {
	structured model.Extraction
	heuristic  model.Extraction
	text       string
}

func (e *Enricher) scrapePhase(ctx context.Context, v model.Venue) sitePhase {
	var phase sitePhase
	if e.deps.Fetcher == nil || v.Domain == "" {
		return phase
	}

	page, err := e.deps.Fetcher.FetchSite(ctx, v.Domain)
	if err != nil {
		zap.L().Debug("pipeline: site fetch failed",
			zap.String("venue", v.Key()), zap.Error(err))
		return phase
	}
	pages := []scrape.Page{page}
	phase.text = page.Text

	if e.deps.Detector != nil {
		if sig := e.deps.Detector.Detect(page.HTML, page.Links, page.Text); sig != nil {
			phase.structured.Vendor = &sig.Vendor
			phase.structured.VendorSource = model.SourceWebsiteLinks
		}
	}

	e.pullPages(&phase, pages)

	// A few extra candidate paths when the landing page left gaps.
	if phase.structured.Price == nil && phase.heuristic.Price == nil ||
		phase.heuristic.Capacity == nil {
		e.pullPages(&phase, e.deps.Fetcher.FetchExtra(ctx, page.FinalURL))
	}
	return phase
}

func (e *Enricher) pullPages(phase *sitePhase, pages []scrape.Page) {
	for _, p := range pages {
		if e.deps.Price != nil {
			// Structured JSON-LD offers rank above the text regex.
			if phase.structured.Price == nil {
				if price := e.deps.Price.Price(p.HTML, ""); price != nil {
					phase.structured.Price = price
					phase.structured.PriceSource = model.SourceScrape
				}
			}
			if phase.heuristic.Price == nil {
				if price := e.deps.Price.Price("", p.Text); price != nil {
					phase.heuristic.Price = price
					phase.heuristic.PriceSource = model.SourceHeuristic
				}
			}
		}
		if e.deps.Capacity != nil && phase.heuristic.Capacity == nil {
			if capVal := e.deps.Capacity.Capacity(p.Text); capVal != nil {
				phase.heuristic.Capacity = capVal
				phase.heuristic.CapacitySource = model.SourceHeuristic
			}
		}
	}
}

// lookupPhase queries the dedicated APIs in fixed precedence order. Every
// failure is logged and contributes nothing; none retry.
func (e *Enricher) lookupPhase(ctx context.Context, v model.Venue) []model.Extraction {
	var out []model.Extraction

	if e.deps.Ticketmaster != nil {
		if res, err := e.deps.Ticketmaster.VenueLookup(ctx, v.Name); err != nil {
			zap.L().Debug("pipeline: ticketmaster lookup failed",
				zap.String("venue", v.Key()), zap.Error(err))
		} else if res != nil {
			vendor := "Ticketmaster"
			ext := model.Extraction{Vendor: &vendor, VendorSource: model.SourceTicketmaster}
			if res.Capacity != nil {
				capVal := int64(*res.Capacity)
				ext.Capacity = &capVal
				ext.CapacitySource = model.SourceTicketmaster
			}
			if res.MedianMinPrice != nil {
				ext.Price = res.MedianMinPrice
				ext.PriceSource = model.SourceTicketmaster
			}
			out = append(out, ext)
		}
	}

	if e.deps.Eventbrite != nil {
		if res, err := e.deps.Eventbrite.VenueSearch(ctx, v.Name); err != nil {
			zap.L().Debug("pipeline: eventbrite search failed",
				zap.String("venue", v.Key()), zap.Error(err))
		} else if res != nil {
			vendor := "Eventbrite"
			ext := model.Extraction{Vendor: &vendor, VendorSource: model.SourceEventbrite}
			if res.Capacity != nil {
				capVal := int64(*res.Capacity)
				ext.Capacity = &capVal
				ext.CapacitySource = model.SourceEventbrite
			}
			out = append(out, ext)
		}
	}

	if e.deps.Wikidata != nil {
		if res, err := e.deps.Wikidata.VenueLookup(ctx, v.Name); err != nil {
			zap.L().Debug("pipeline: wikidata lookup failed",
				zap.String("venue", v.Key()), zap.Error(err))
		} else if res != nil {
			var ext model.Extraction
			if res.Capacity != nil {
				capVal := int64(*res.Capacity)
				ext.Capacity = &capVal
				ext.CapacitySource = model.SourceWikidata
			}
			if res.AnnualRevenue != nil {
				ext.Revenue = res.AnnualRevenue
				ext.RevenueSource = model.SourceWikidata
			}
			out = append(out, ext)
		}
	}

	if e.deps.Places != nil {
		query := v.Name
		if v.City != "" {
			query += " " + v.City
		}
		if level, err := e.deps.Places.PriceLevel(ctx, query); err != nil {
			zap.L().Debug("pipeline: places lookup failed",
				zap.String("venue", v.Key()), zap.Error(err))
		} else if level != nil {
			price := places.EstimatePrice(*level)
			out = append(out, model.Extraction{
				Price:       &price,
				PriceSource: model.SourceGooglePlaces,
			})
		}
	}

	return out
}

func (e *Enricher) llmPhase(ctx context.Context, v model.Venue, websiteText string, missing []string) (model.Extraction, llm.Outcome) {
	fields, outcome := e.deps.Fallback.ExtractFields(ctx, v, websiteText, missing)
	if outcome != llm.OutcomeOK {
		return model.Extraction{}, outcome
	}

	var ext model.Extraction
	if fields.TicketVendor != nil && !detect.IsAggregator(*fields.TicketVendor) {
		ext.Vendor = fields.TicketVendor
		ext.VendorSource = model.SourceGPT
	}
	if fields.Capacity != nil {
		capVal := int64(*fields.Capacity)
		ext.Capacity = &capVal
		ext.CapacitySource = model.SourceGPT
	}
	if fields.AvgTicketPrice != nil {
		ext.Price = fields.AvgTicketPrice
		ext.PriceSource = model.SourceGPT
	}
	if fields.AnnualRevenue != nil {
		ext.Revenue = fields.AnnualRevenue
		ext.RevenueSource = model.SourceGPT
	}
	return ext, outcome
}

// missingAfter lists the fields the row still lacks once merged sources are
// applied, in the vocabulary the LLM prompt uses.
func missingAfter(v model.Venue, merged model.Extraction) []string {
	var missing []string
	if (v.TicketVendor == nil || *v.TicketVendor == "") && merged.Vendor == nil {
		missing = append(missing, "ticket_vendor")
	}
	if v.Capacity == nil && merged.Capacity == nil {
		missing = append(missing, "capacity")
	}
	if v.AvgTicketPrice == nil && merged.Price == nil {
		missing = append(missing, "avg_ticket_price")
	}
	if v.AnnualRevenue == nil && merged.Revenue == nil {
		missing = append(missing, "annual_revenue")
	}
	return missing
}

// buildPatch turns the merged extraction into a typed patch, filling only
// fields the stored row is missing. Unknown stays null: no synthetic
// defaults are fabricated.
func buildPatch(v model.Venue, merged model.Extraction, now time.Time) model.Patch {
	var patch model.Patch

	if (v.TicketVendor == nil || *v.TicketVendor == "") && merged.Vendor != nil {
		patch.SetVendor(*merged.Vendor, merged.VendorSource)
	}
	if v.Capacity == nil && merged.Capacity != nil {
		patch.SetCapacity(*merged.Capacity, merged.CapacitySource)
	}
	if v.AvgTicketPrice == nil && merged.Price != nil {
		patch.SetPrice(*merged.Price, merged.PriceSource)
	}
	if v.AnnualRevenue == nil && merged.Revenue != nil {
		patch.SetRevenue(*merged.Revenue, merged.RevenueSource)
		patch.SetSegment(model.Segment(*merged.Revenue))
	}

	if patch.HasBusinessField() {
		patch.SetStatus(model.StatusDone)
	} else {
		patch.SetStatus(model.StatusNoData)
	}
	patch.Touch(now)
	return patch
}
