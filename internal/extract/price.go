// Package extract pulls ticket prices and venue capacities out of scraped
// page content. Structured JSON-LD event data is preferred; free-text
// regexes are the fallback.
package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/venue-enrich/internal/config"
)

// maxTextPrices caps how many free-text price matches feed the aggregate,
// so ticket tables with hundreds of rows don't dominate.
const maxTextPrices = 50

// currencyPat covers the symbols and ISO codes seen on venue sites; prices
// carry the currency either side of the number ("€12", "12,50 €", "25.- CHF").
const currencyPat = `€|EUR|£|GBP|\$|USD|R\$|BRL|CHF|PLN|A\$|AU\$|NZ\$|CA\$|C\$|kr|DKK|NOK`

var (
	priceRe  = regexp.MustCompile(`(?i)(?:(?:` + currencyPat + `)\s*\d+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?(?:\.-)?\s*(?:` + currencyPat + `))`)
	numRe    = regexp.MustCompile(`[\d.,]+`)
	jsonldRe = regexp.MustCompile(`(?is)<script[^>]+type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
)

var jsonldEventTypes = map[string]bool{
	"Event":           true,
	"TheaterEvent":    true,
	"MusicEvent":      true,
	"Festival":        true,
	"ExhibitionEvent": true,
}

// PriceExtractor aggregates plausible ticket prices from a page.
type PriceExtractor struct {
	min       float64
	max       float64
	aggregate string
}

// NewPriceExtractor builds an extractor from the configured plausibility
// bounds and aggregate ("median" or "mean").
func NewPriceExtractor(cfg config.ExtractConfig) *PriceExtractor {
	return &PriceExtractor{
		min:       cfg.PriceMin,
		max:       cfg.PriceMax,
		aggregate: cfg.PriceAggregate,
	}
}

// Price returns the aggregated ticket price for a page, or nil when no
// plausible price was found. JSON-LD Event offers trump the text regex.
func (e *PriceExtractor) Price(rawHTML, text string) *float64 {
	vals := e.pricesFromJSONLD(rawHTML)
	if len(vals) == 0 {
		vals = e.pricesFromText(text)
	}
	if len(vals) == 0 {
		return nil
	}
	v := round2(e.combine(vals))
	return &v
}

func (e *PriceExtractor) pricesFromText(text string) []float64 {
	var vals []float64
	for _, m := range priceRe.FindAllString(text, -1) {
		if v, ok := ParsePriceToken(m); ok && e.plausible(v) {
			vals = append(vals, v)
			if len(vals) >= maxTextPrices {
				break
			}
		}
	}
	return vals
}

func (e *PriceExtractor) pricesFromJSONLD(rawHTML string) []float64 {
	var vals []float64
	for _, m := range jsonldRe.FindAllStringSubmatch(rawHTML, -1) {
		var data any
		if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
			continue
		}
		objs, ok := data.([]any)
		if !ok {
			objs = []any{data}
		}
		for _, o := range objs {
			obj, ok := o.(map[string]any)
			if !ok || !isEventType(obj["@type"]) {
				continue
			}
			for _, off := range asList(obj["offers"]) {
				offer, ok := off.(map[string]any)
				if !ok {
					continue
				}
				switch p := offer["price"].(type) {
				case float64:
					if e.plausible(p) {
						vals = append(vals, p)
					}
				case string:
					if v, ok := ParsePriceToken(p); ok && e.plausible(v) {
						vals = append(vals, v)
					}
				}
			}
		}
	}
	return vals
}

// ParsePriceToken converts a currency-prefixed token like "€12", "12,50 €",
// "EUR 15.00" or "CHF 25.-" into its numeric value.
func ParsePriceToken(token string) (float64, bool) {
	m := numRe.FindString(token)
	if m == "" {
		return 0, false
	}
	num := strings.ReplaceAll(m, ".-", "")
	// A lone comma is a European decimal separator.
	if strings.Count(num, ",") == 1 && !strings.Contains(num, ".") {
		num = strings.Replace(num, ",", ".", 1)
	}
	num = strings.ReplaceAll(num, ",", "")
	// Extra dots are thousands separators.
	if strings.Count(num, ".") > 1 {
		parts := strings.Split(num, ".")
		num = parts[0] + "." + strings.Join(parts[1:], "")
	}
	val, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	if val <= 0 || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return round2(val), true
}

func (e *PriceExtractor) plausible(v float64) bool {
	return v >= e.min && v <= e.max
}

func (e *PriceExtractor) combine(vals []float64) float64 {
	if e.aggregate == "mean" {
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func isEventType(t any) bool {
	switch v := t.(type) {
	case string:
		return jsonldEventTypes[v]
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && jsonldEventTypes[s] {
				return true
			}
		}
	}
	return false
}

func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
