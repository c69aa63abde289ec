package llm

import (
	"fmt"
	"strings"

	"github.com/sells-group/venue-enrich/internal/model"
)

// maxWebsiteTextChars bounds the page-text excerpt embedded in prompts.
const maxWebsiteTextChars = 3500

const extractSystemPrompt = `You are a data enrichment assistant for a performing-arts venues dataset.
Given the venue's known fields and an excerpt of its website text, extract the missing fields.
"ticket_vendor" means the payment/checkout platform that processes ticket purchases
(e.g. Ticketmaster, Eventbrite, Pretix) - never a listings, directory, or resale site.
When you are not confident about a value, return null for it.
Return ONLY a minified JSON object with exactly these keys:
{"avg_ticket_price": number|null, "capacity": integer|null, "ticket_vendor": string|null, "annual_revenue": number|null}`

const revenueSystemPrompt = `You are a careful revenue estimator for cultural venues and events.
Goal: estimate ANNUAL gross ticket revenue (GTV) in USD for the provided entity.
Use any provided hints (capacity, average ticket price, annual visitors, notes).
Also report whether the entity appears to be soliciting proposals (an open RFP) based on the hints.
Rules:
- Return ONLY a minified JSON object with keys: revenue_usd (number|null), confidence ("low"|"medium"|"high"), assumptions (string <= 400 chars), is_rfp (boolean).
- When you cannot produce a defensible estimate, return null for revenue_usd.
- Do not include markdown or extra text.
- Use USD.`

func buildExtractPrompt(v model.Venue, websiteText string, missing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", v.Name)
	if v.City != "" || v.Country != "" {
		fmt.Fprintf(&b, "Location: %s, %s\n", v.City, v.Country)
	}
	if v.Domain != "" {
		fmt.Fprintf(&b, "Website: %s\n", v.Domain)
	}
	fmt.Fprintf(&b, "Missing fields: %s\n", strings.Join(missing, ", "))
	b.WriteString("\nWebsite text (truncated):\n")
	b.WriteString(truncate(websiteText, maxWebsiteTextChars))
	b.WriteString("\n\nReturn only the JSON object.")
	return b.String()
}

func buildRevenuePrompt(v model.Venue) string {
	var b strings.Builder
	b.WriteString("Entity:\n")
	fmt.Fprintf(&b, "- name: %s\n", v.Name)
	if v.Domain != "" {
		fmt.Fprintf(&b, "- website: %s\n", v.Domain)
	}
	if v.City != "" || v.Country != "" {
		fmt.Fprintf(&b, "- location: %s, %s\n", v.City, v.Country)
	}
	if v.Capacity != nil {
		fmt.Fprintf(&b, "- capacity: %d\n", *v.Capacity)
	}
	if v.AvgTicketPrice != nil {
		fmt.Fprintf(&b, "- avg_ticket_price: %.2f (local currency, if known)\n", *v.AvgTicketPrice)
	}
	if v.AnnualVisitors != nil {
		fmt.Fprintf(&b, "- annual_visitors: %.0f\n", *v.AnnualVisitors)
	}
	if v.Notes != "" {
		fmt.Fprintf(&b, "- notes: %s\n", truncate(v.Notes, 500))
	}
	b.WriteString("\nReturn only JSON with: revenue_usd, confidence, assumptions, is_rfp.")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
