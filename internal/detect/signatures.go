package detect

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Signature describes one ticketing platform: the URL/script substrings
// that identify it plus free-text keywords. Priority ranks vendors when a
// page carries several; higher wins.
type Signature struct {
	Vendor       string   `yaml:"vendor"`
	URLPatterns  []string `yaml:"url_patterns"`
	TextPatterns []string `yaml:"text_patterns"`
	Priority     int      `yaml:"priority"`
}

// builtinSignatures is the hand-maintained provider table. Patterns are
// lowercase substrings matched against lowercased links and page text.
var builtinSignatures = []Signature{
	{Vendor: "Ticketmaster", URLPatterns: []string{"ticketmaster."}, TextPatterns: []string{"ticketmaster"}, Priority: 100},
	{Vendor: "Eventbrite", URLPatterns: []string{"eventbrite.", "evb.js", "data-eventbrite"}, TextPatterns: []string{"eventbrite"}, Priority: 95},
	{Vendor: "See Tickets", URLPatterns: []string{"seetickets.", "see-tickets."}, TextPatterns: []string{"see tickets"}, Priority: 90},
	{Vendor: "DICE", URLPatterns: []string{"dice.fm"}, TextPatterns: []string{"dice.fm"}, Priority: 85},
	{Vendor: "Shotgun", URLPatterns: []string{"shotgun.live"}, Priority: 80},
	{Vendor: "Fever", URLPatterns: []string{"feverup.com", "feverup"}, TextPatterns: []string{"fever tickets"}, Priority: 75},
	{Vendor: "Pretix", URLPatterns: []string{"pretix.", "widget.pretix"}, TextPatterns: []string{"pretix"}, Priority: 70},
	{Vendor: "Ticket Tailor", URLPatterns: []string{"tickettailor"}, TextPatterns: []string{"ticket tailor"}, Priority: 65},
	{Vendor: "Weezevent", URLPatterns: []string{"weezevent", "wze.io"}, Priority: 60},
	{Vendor: "Billetweb", URLPatterns: []string{"billetweb.fr"}, Priority: 55},
	{Vendor: "HelloAsso", URLPatterns: []string{"helloasso."}, Priority: 50},
	{Vendor: "Eventix", URLPatterns: []string{"eventix.", "tickets.eventix"}, Priority: 45},
	{Vendor: "Universe", URLPatterns: []string{"universe.com"}, Priority: 40},
	{Vendor: "Spektrix", URLPatterns: []string{"spektrix", "system.spektrix"}, Priority: 35},
	{Vendor: "Billetto", URLPatterns: []string{"billetto"}, Priority: 30},
	{Vendor: "TicketOne", URLPatterns: []string{"ticketone.it"}, Priority: 25},
}

// aggregatorKeywords flag resale/listing portals that are never the venue's
// checkout platform.
var aggregatorKeywords = []string{
	"aggregator",
	"directory",
	"search",
	"price comparison",
	"ticketsuche",
	"ticcats",
	"viagogo",
	"stubhub",
	"trivialtickets",
}

// purchaseIntentKeywords boost a match that sits next to a call-to-action.
var purchaseIntentKeywords = []string{
	"buy", "tickets", "billets", "entradas", "karten", "book now", "reserver",
}

// IsAggregator reports whether a vendor string looks like a resale or
// listing portal rather than a checkout provider.
func IsAggregator(vendor string) bool {
	v := strings.ToLower(vendor)
	for _, kw := range aggregatorKeywords {
		if strings.Contains(v, kw) {
			return true
		}
	}
	return false
}

type signatureFile struct {
	Signatures []Signature `yaml:"signatures"`
}

// LoadSignatures returns the builtin table, optionally extended or
// overridden by a YAML file. File entries with a vendor already in the
// table replace the builtin entry.
func LoadSignatures(path string) ([]Signature, error) {
	sigs := make([]Signature, len(builtinSignatures))
	copy(sigs, builtinSignatures)
	if path == "" {
		return sigs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "detect: read signatures file %s", path)
	}
	var file signatureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "detect: parse signatures file %s", path)
	}

	for _, s := range file.Signatures {
		if s.Vendor == "" {
			continue
		}
		replaced := false
		for i := range sigs {
			if strings.EqualFold(sigs[i].Vendor, s.Vendor) {
				sigs[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			sigs = append(sigs, s)
		}
	}
	return sigs, nil
}
