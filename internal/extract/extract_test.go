package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enrich/internal/config"
)

func extractConfig() config.ExtractConfig {
	return config.ExtractConfig{
		PriceMin:       3,
		PriceMax:       800,
		CapacityMin:    20,
		CapacityMax:    100000,
		PriceAggregate: "median",
	}
}

func TestParsePriceToken(t *testing.T) {
	cases := []struct {
		token string
		want  float64
		ok    bool
	}{
		{"€12", 12, true},
		{"12,50 €", 12.50, true},
		{"EUR 15.00", 15, true},
		{"R$ 30", 30, true},
		{"CHF 25.-", 25, true},
		{"£ 7,5", 7.5, true},
		{"kr 199", 199, true},
		{"€0", 0, false},
		{"free", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParsePriceToken(tc.token)
		assert.Equal(t, tc.ok, ok, tc.token)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 0.001, tc.token)
		}
	}
}

func TestPriceFromTextMedian(t *testing.T) {
	e := NewPriceExtractor(extractConfig())
	text := "Stalls from €20, circle €30, boxes €80. Programme $2 at the door."
	// $2 is below the plausibility floor; median of 20, 30, 80 is 30.
	p := e.Price("", text)
	require.NotNil(t, p)
	assert.InDelta(t, 30.0, *p, 0.001)
}

func TestPriceFromTextMean(t *testing.T) {
	cfg := extractConfig()
	cfg.PriceAggregate = "mean"
	e := NewPriceExtractor(cfg)
	p := e.Price("", "tickets €10 and €20")
	require.NotNil(t, p)
	assert.InDelta(t, 15.0, *p, 0.001)
}

func TestPriceEuropeanDecimals(t *testing.T) {
	e := NewPriceExtractor(extractConfig())
	p := e.Price("", "Billets: 12,50 € tarif plein, 25.- CHF tarif soutien")
	require.NotNil(t, p)
	assert.InDelta(t, 18.75, *p, 0.001)
}

func TestPriceSuffixCurrency(t *testing.T) {
	e := NewPriceExtractor(extractConfig())
	p := e.Price("", "biljetter 199 kr vid entren")
	require.NotNil(t, p)
	assert.InDelta(t, 199.0, *p, 0.001)
}

func TestPricePrefersJSONLD(t *testing.T) {
	e := NewPriceExtractor(extractConfig())
	html := `<html><head><script type="application/ld+json">
	{"@context":"https://schema.org","@type":"MusicEvent","name":"Spring Gala",
	 "offers":[{"@type":"Offer","price":42.0,"priceCurrency":"EUR"},
	           {"@type":"Offer","price":"58,00","priceCurrency":"EUR"}]}
	</script></head><body>Souvenir mugs €9</body></html>`

	p := e.Price(html, "Souvenir mugs €9")
	require.NotNil(t, p)
	assert.InDelta(t, 50.0, *p, 0.001)
}

func TestPriceJSONLDTypeList(t *testing.T) {
	e := NewPriceExtractor(extractConfig())
	html := `<script type="application/ld+json">
	[{"@type":["Thing","TheaterEvent"],"offers":{"price":"35.00"}},
	 {"@type":"Restaurant","offers":{"price":"12.00"}}]
	</script>`

	p := e.Price(html, "")
	require.NotNil(t, p)
	assert.InDelta(t, 35.0, *p, 0.001)
}

func TestPriceNone(t *testing.T) {
	e := NewPriceExtractor(extractConfig())
	assert.Nil(t, e.Price("<html></html>", "no prices here"))
}

func TestCapacityLargestPlausible(t *testing.T) {
	e := NewCapacityExtractor(extractConfig())
	text := "The studio seats 120 guests while the main hall has a capacity: 1500. Founded in 1887."
	c := e.Capacity(text)
	require.NotNil(t, c)
	assert.Equal(t, int64(1500), *c)
}

func TestCapacityLocalizedPatterns(t *testing.T) {
	e := NewCapacityExtractor(extractConfig())

	cases := map[string]int64{
		"aforo 850 personas":        850,
		"capacité : 2300":           2300,
		"ein Saal mit 1200 Sitze":   1200,
		"sala principal 600 plazas": 600,
		"a 900-seat auditorium":     900,
	}
	for text, want := range cases {
		c := e.Capacity(text)
		require.NotNil(t, c, text)
		assert.Equal(t, want, *c, text)
	}
}

func TestCapacityBounds(t *testing.T) {
	e := NewCapacityExtractor(extractConfig())
	assert.Nil(t, e.Capacity("capacity: 12"))
	assert.Nil(t, e.Capacity("capacity: 999999"))
	assert.Nil(t, e.Capacity("no numbers"))
}
