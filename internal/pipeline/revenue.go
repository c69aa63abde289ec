package pipeline

import (
	"fmt"
	"math"

	"github.com/sells-group/venue-enrich/internal/model"
)

// Revenue computes annual gross ticket revenue from its four multiplicands,
// rounded to two decimals.
func Revenue(price float64, capacity int64, eventsPerYear, loadFactor float64) float64 {
	v := price * float64(capacity) * eventsPerYear * loadFactor
	return math.Round(v*100) / 100
}

// FormulaTag records which sub-source fed each multiplicand, in price,
// capacity, events, load order.
func FormulaTag(priceSource, capacitySource, eventsSource, loadSource string) string {
	return fmt.Sprintf("formula[%s,%s,%s,%s]", priceSource, capacitySource, eventsSource, loadSource)
}

// deriveRevenue fills the merged extraction's revenue from the formula when
// no source yielded a direct figure. Price and capacity may come from this
// run's merge or from values the row already holds; events-per-year and load
// factor come from configuration defaults.
func deriveRevenue(v model.Venue, merged *model.Extraction, eventsPerYear, loadFactor float64) {
	if merged.Revenue != nil || v.AnnualRevenue != nil {
		return
	}

	// Values already stored on the row stay authoritative: the writer never
	// overwrites them, so the derived figure must agree with them.
	price, priceSource := v.AvgTicketPrice, v.AvgTicketPriceSource
	if price == nil {
		price, priceSource = merged.Price, merged.PriceSource
	}
	capacity, capacitySource := v.Capacity, v.CapacitySource
	if capacity == nil {
		capacity, capacitySource = merged.Capacity, merged.CapacitySource
	}
	if price == nil || capacity == nil {
		return
	}

	rev := Revenue(*price, *capacity, eventsPerYear, loadFactor)
	if rev <= 0 {
		return
	}
	merged.Revenue = &rev
	merged.RevenueSource = FormulaTag(
		orStored(priceSource), orStored(capacitySource),
		model.SourceDefault, model.SourceDefault)
}

// orStored substitutes a placeholder when a stored value carries no source
// column, so the formula tag never renders an empty slot.
func orStored(source string) string {
	if source == "" {
		return "stored"
	}
	return source
}
