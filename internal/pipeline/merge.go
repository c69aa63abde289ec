package pipeline

import "github.com/sells-group/venue-enrich/internal/model"

// Merge folds per-source extractions into one, field by field. Candidates
// must be ordered by precedence: on-site scrape and vendor detection first,
// then the dedicated lookup APIs, then heuristic text extraction, then the
// LLM. The first candidate carrying a field wins it, together with its
// source tag.
func Merge(candidates []model.Extraction) model.Extraction {
	var out model.Extraction
	for _, c := range candidates {
		if out.Vendor == nil && c.Vendor != nil && *c.Vendor != "" {
			out.Vendor = c.Vendor
			out.VendorSource = c.VendorSource
		}
		if out.Capacity == nil && c.Capacity != nil && *c.Capacity > 0 {
			out.Capacity = c.Capacity
			out.CapacitySource = c.CapacitySource
		}
		if out.Price == nil && c.Price != nil && *c.Price > 0 {
			out.Price = c.Price
			out.PriceSource = c.PriceSource
		}
		if out.Revenue == nil && c.Revenue != nil && *c.Revenue > 0 {
			out.Revenue = c.Revenue
			out.RevenueSource = c.RevenueSource
		}
	}
	return out
}
