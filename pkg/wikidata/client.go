package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

const defaultEndpoint = "https://query.wikidata.org/sparql"

// userAgent identifies the service per the Wikimedia API etiquette.
const userAgent = "venue-enrich/1.0 (https://github.com/sells-group/venue-enrich)"

// Client queries the Wikidata SPARQL endpoint.
type Client interface {
	VenueLookup(ctx context.Context, name string) (*VenueResult, error)
}

// VenueResult carries the capacity (P1083) and annual revenue (P2139)
// claims of the entity whose English label exactly matches the query.
type VenueResult struct {
	Capacity      *int
	AnnualRevenue *float64
}

// Empty reports whether the lookup matched an entity with neither claim.
func (r *VenueResult) Empty() bool {
	return r.Capacity == nil && r.AnnualRevenue == nil
}

// Option configures the client.
type Option func(*httpClient)

// WithEndpoint overrides the default SPARQL endpoint.
func WithEndpoint(url string) Option {
	return func(c *httpClient) {
		c.endpoint = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a Wikidata SPARQL client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		endpoint: defaultEndpoint,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

func (c *httpClient) VenueLookup(ctx context.Context, name string) (*VenueResult, error) {
	label := NormalizeLabel(name)
	if label == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT ?capacity ?revenue WHERE {
  ?item rdfs:label %s@en.
  OPTIONAL { ?item wdt:P1083 ?capacity. }
  OPTIONAL { ?item wdt:P2139 ?revenue. }
} LIMIT 1`, quoteLiteral(label))

	params := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: create request")
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("wikidata: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sparql sparqlResponse
	if err := json.Unmarshal(body, &sparql); err != nil {
		return nil, eris.Wrap(err, "wikidata: unmarshal response")
	}
	if len(sparql.Results.Bindings) == 0 {
		return nil, nil
	}

	row := sparql.Results.Bindings[0]
	result := &VenueResult{}
	if b, ok := row["capacity"]; ok {
		if v, err := strconv.ParseFloat(b.Value, 64); err == nil && v > 0 {
			cap := int(v)
			result.Capacity = &cap
		}
	}
	if b, ok := row["revenue"]; ok {
		if v, err := strconv.ParseFloat(b.Value, 64); err == nil && v > 0 {
			result.AnnualRevenue = &v
		}
	}
	return result, nil
}

// NormalizeLabel prepares a venue name for exact label matching: NFC
// composition and whitespace collapse. Diacritics are kept since Wikidata
// labels carry them.
func NormalizeLabel(name string) string {
	s := norm.NFC.String(strings.TrimSpace(name))
	return strings.Join(strings.Fields(s), " ")
}

func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
