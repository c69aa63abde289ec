package ticketmaster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://app.ticketmaster.com/discovery/v2"

// Client performs Ticketmaster Discovery API operations.
type Client interface {
	VenueLookup(ctx context.Context, name string) (*VenueResult, error)
}

// VenueResult is the distilled outcome of a venue lookup: the first matched
// venue's capacity plus the median of the minimum prices across its events.
type VenueResult struct {
	VenueID        string
	Capacity       *int
	MedianMinPrice *float64
	URL            string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Ticketmaster Discovery API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type venueSearchResponse struct {
	Embedded struct {
		Venues []struct {
			ID       string `json:"id"`
			Capacity int    `json:"capacity"`
			URL      string `json:"url"`
		} `json:"venues"`
	} `json:"_embedded"`
}

type eventSearchResponse struct {
	Embedded struct {
		Events []struct {
			PriceRanges []struct {
				Min float64 `json:"min"`
			} `json:"priceRanges"`
		} `json:"events"`
	} `json:"_embedded"`
}

func (c *httpClient) VenueLookup(ctx context.Context, name string) (*VenueResult, error) {
	var search venueSearchResponse
	params := url.Values{"keyword": {name}, "apikey": {c.apiKey}}
	if err := c.getJSON(ctx, "/venues.json?"+params.Encode(), &search); err != nil {
		return nil, err
	}
	if len(search.Embedded.Venues) == 0 {
		return nil, nil
	}

	v := search.Embedded.Venues[0]
	result := &VenueResult{VenueID: v.ID, URL: v.URL}
	if v.Capacity > 0 {
		cap := v.Capacity
		result.Capacity = &cap
	}

	// Price ranges come from the venue's upcoming events; a missing or
	// failing events call does not sink the lookup.
	var events eventSearchResponse
	eventParams := url.Values{"venueId": {v.ID}, "apikey": {c.apiKey}, "size": {"50"}}
	if err := c.getJSON(ctx, "/events.json?"+eventParams.Encode(), &events); err == nil {
		var mins []float64
		for _, e := range events.Embedded.Events {
			for _, pr := range e.PriceRanges {
				if pr.Min > 0 {
					mins = append(mins, pr.Min)
				}
			}
		}
		if len(mins) > 0 {
			m := median(mins)
			result.MedianMinPrice = &m
		}
	}

	return result, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "ticketmaster: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "ticketmaster: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "ticketmaster: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("ticketmaster: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "ticketmaster: unmarshal response")
	}
	return nil
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
