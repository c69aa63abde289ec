package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/venue-enrich/internal/config"
)

var capacityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcapacity\s*[:\-]?\s*(\d{2,6})\b`),
	regexp.MustCompile(`(?i)\bcapacit[eé]\s*[:\-]?\s*(\d{2,6})\b`),
	regexp.MustCompile(`(?i)\bcapacidad\s*[:\-]?\s*(\d{2,6})\b`),
	regexp.MustCompile(`(?i)\baforo\s*[:\-]?\s*(\d{2,6})\b`),
	regexp.MustCompile(`(?i)\bseating\s*capacity\s*[:\-]?\s*(\d{2,6})\b`),
	regexp.MustCompile(`(?i)\b(\d{2,6})\s*[- ]?\s*(?:seats?|places|sitze|plazas)\b`),
}

var wsRe = regexp.MustCompile(`\s+`)

// CapacityExtractor finds a venue's seat count in page text.
type CapacityExtractor struct {
	min int64
	max int64
}

// NewCapacityExtractor builds an extractor with the configured plausibility
// bounds.
func NewCapacityExtractor(cfg config.ExtractConfig) *CapacityExtractor {
	return &CapacityExtractor{min: cfg.CapacityMin, max: cfg.CapacityMax}
}

// Capacity returns the largest plausible capacity mentioned in the text, or
// nil when none is found. Pages often quote several rooms; the main hall is
// the biggest number.
func (e *CapacityExtractor) Capacity(text string) *int64 {
	t := wsRe.ReplaceAllString(strings.TrimSpace(text), " ")

	var best int64
	for _, rx := range capacityPatterns {
		for _, m := range rx.FindAllStringSubmatch(t, -1) {
			val, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			if val >= e.min && val <= e.max && val > best {
				best = val
			}
		}
	}
	if best == 0 {
		return nil
	}
	return &best
}
