package model

import "time"

// Status represents the enrichment lifecycle state of a venue row.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	StatusNoData  Status = "NO_DATA"
	StatusLocked  Status = "LOCKED"
	StatusError   Status = "ERROR"
)

// Source tags recorded alongside each enriched field.
const (
	SourceWebsiteLinks  = "website_links"
	SourceScrape        = "scrape"
	SourceTicketmaster  = "ticketmaster_api"
	SourceEventbrite    = "eventbrite_api"
	SourceGooglePlaces  = "google_places"
	SourceWikidata      = "wikidata"
	SourceHeuristic     = "heuristic"
	SourceGPT           = "gpt"
	SourceDefault       = "default"
)

// Venue is a snapshot of one warehouse row to be enriched. Business
// attributes are pointers: nil means the warehouse holds NULL.
type Venue struct {
	EntityID string `json:"entity_id,omitempty"`
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`

	TicketVendor   *string  `json:"ticket_vendor,omitempty"`
	Capacity       *int64   `json:"capacity,omitempty"`
	AvgTicketPrice *float64 `json:"avg_ticket_price,omitempty"`
	AnnualRevenue  *float64 `json:"annual_revenue,omitempty"`

	TicketVendorSource   string `json:"ticket_vendor_source,omitempty"`
	CapacitySource       string `json:"capacity_source,omitempty"`
	AvgTicketPriceSource string `json:"avg_ticket_price_source,omitempty"`
	AnnualRevenueSource  string `json:"annual_revenue_source,omitempty"`

	AnnualVisitors   *float64   `json:"annual_visitors,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	EnrichmentStatus Status     `json:"enrichment_status,omitempty"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
}

// Key returns a stable identifier for logging: the entity id when present,
// otherwise the venue name.
func (v Venue) Key() string {
	if v.EntityID != "" {
		return v.EntityID
	}
	return v.Name
}

// Missing reports which of the three primary business attributes are absent.
func (v Venue) Missing() []string {
	var fields []string
	if v.TicketVendor == nil || *v.TicketVendor == "" {
		fields = append(fields, "ticket_vendor")
	}
	if v.Capacity == nil {
		fields = append(fields, "capacity")
	}
	if v.AvgTicketPrice == nil {
		fields = append(fields, "avg_ticket_price")
	}
	return fields
}

// SignalType classifies where a vendor signal was observed on a page.
type SignalType string

const (
	SignalScript SignalType = "script"
	SignalLink   SignalType = "link"
	SignalText   SignalType = "text"
)

// VendorSignal is a single in-memory detection hit. Only the chosen vendor
// name and a source tag are ever persisted.
type VendorSignal struct {
	Vendor   string     `json:"vendor"`
	Evidence string     `json:"evidence,omitempty"`
	Type     SignalType `json:"type"`
}

// Extraction bundles the optional field values contributed by one source,
// each paired with the tag to record if the value wins the merge.
type Extraction struct {
	Vendor   *string
	Capacity *int64
	Price    *float64
	Revenue  *float64

	VendorSource   string
	CapacitySource string
	PriceSource    string
	RevenueSource  string
}

// Empty reports whether the extraction contributed nothing.
func (e Extraction) Empty() bool {
	return e.Vendor == nil && e.Capacity == nil && e.Price == nil && e.Revenue == nil
}

// BatchSummary is the aggregate outcome of one batch run.
type BatchSummary struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Dry       bool   `json:"dry"`

	// Halted is set when the batch stopped before exhausting its rows:
	// "quota" on a sustained LLM rate limit, "budget" on the soft time cap.
	Halted string `json:"halted,omitempty"`
}

// Segment buckets a venue by estimated annual gross ticket revenue.
func Segment(gtv float64) string {
	switch {
	case gtv >= 20_000_000:
		return "Diamond"
	case gtv >= 4_000_000:
		return "Gold"
	case gtv >= 2_000_000:
		return "Silver"
	default:
		return "Bronze"
	}
}
