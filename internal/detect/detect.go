// Package detect identifies a venue's ticketing platform from its website:
// script sources, outbound links, and page text are matched against a
// signature table, and aggregator/resale portals are rejected.
package detect

import (
	"regexp"
	"strings"

	"github.com/sells-group/venue-enrich/internal/model"
)

var scriptSrcRe = regexp.MustCompile(`(?is)<script\b[^>]*\bsrc\s*=\s*["']([^"']+)["']`)

// intentWindow is how many characters around a text match are checked for
// purchase-intent keywords.
const intentWindow = 80

// intentBoost is added to a signal's score when purchase-intent wording
// appears near the match.
const intentBoost = 10

// Detector matches pages against a signature table.
type Detector struct {
	signatures []Signature
}

// NewDetector builds a Detector over the given signatures.
func NewDetector(sigs []Signature) *Detector {
	return &Detector{signatures: sigs}
}

// Detect scans raw HTML, the collected links, and the stripped text for
// vendor signals and returns the winner, or nil when nothing matched.
// Signals naming an aggregator are discarded before selection.
func (d *Detector) Detect(rawHTML string, links []string, text string) *model.VendorSignal {
	signals := d.Signals(rawHTML, links, text)
	return Select(signals)
}

// Signals returns every vendor signal found on the page, scored.
func (d *Detector) Signals(rawHTML string, links []string, text string) []scoredSignal {
	lowerText := strings.ToLower(text)

	var scripts []string
	for _, m := range scriptSrcRe.FindAllStringSubmatch(rawHTML, -1) {
		scripts = append(scripts, strings.ToLower(m[1]))
	}

	var out []scoredSignal
	for _, sig := range d.signatures {
		if s, ok := matchSignature(sig, scripts, links, lowerText); ok {
			out = append(out, s)
		}
	}
	return out
}

type scoredSignal struct {
	model.VendorSignal
	Score int
}

func matchSignature(sig Signature, scripts, links []string, lowerText string) (scoredSignal, bool) {
	for _, pat := range sig.URLPatterns {
		p := strings.ToLower(pat)
		for _, src := range scripts {
			if strings.Contains(src, p) {
				return scoredSignal{
					VendorSignal: model.VendorSignal{Vendor: sig.Vendor, Evidence: src, Type: model.SignalScript},
					Score:        sig.Priority,
				}, true
			}
		}
		for _, link := range links {
			if strings.Contains(strings.ToLower(link), p) {
				return scoredSignal{
					VendorSignal: model.VendorSignal{Vendor: sig.Vendor, Evidence: link, Type: model.SignalLink},
					Score:        sig.Priority,
				}, true
			}
		}
	}
	for _, pat := range sig.TextPatterns {
		p := strings.ToLower(pat)
		idx := strings.Index(lowerText, p)
		if idx < 0 {
			continue
		}
		score := sig.Priority
		if hasPurchaseIntent(lowerText, idx, len(p)) {
			score += intentBoost
		}
		return scoredSignal{
			VendorSignal: model.VendorSignal{Vendor: sig.Vendor, Type: model.SignalText},
			Score:        score,
		}, true
	}
	return scoredSignal{}, false
}

func hasPurchaseIntent(lowerText string, idx, matchLen int) bool {
	start := max(0, idx-intentWindow)
	end := min(len(lowerText), idx+matchLen+intentWindow)
	window := lowerText[start:end]
	for _, kw := range purchaseIntentKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

// Select picks the highest-scoring non-aggregator signal. Ties keep the
// earlier signal, which follows the signature table's priority order.
func Select(signals []scoredSignal) *model.VendorSignal {
	var best *scoredSignal
	for i := range signals {
		s := &signals[i]
		if IsAggregator(s.Vendor) {
			continue
		}
		if best == nil || s.Score > best.Score {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	sig := best.VendorSignal
	return &sig
}
