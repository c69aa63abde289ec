package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Client performs Google Places API operations.
type Client interface {
	PriceLevel(ctx context.Context, query string) (*int, error)
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

// NewClient creates a Google Places API client.
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

type findPlaceResponse struct {
	Candidates []struct {
		PlaceID string `json:"place_id"`
	} `json:"candidates"`
}

type detailsResponse struct {
	Result struct {
		PriceLevel *int `json:"price_level"`
	} `json:"result"`
}

// PriceLevel finds the place matching query and returns its 0-4 price
// level, or nil when the place is unknown or unrated.
func (c *httpClient) PriceLevel(ctx context.Context, query string) (*int, error) {
	params := url.Values{
		"input":     {query},
		"inputtype": {"textquery"},
		"fields":    {"place_id"},
		"key":       {c.apiKey},
	}
	var find findPlaceResponse
	if err := c.getJSON(ctx, "/findplacefromtext/json?"+params.Encode(), &find); err != nil {
		return nil, err
	}
	if len(find.Candidates) == 0 {
		return nil, nil
	}

	detailParams := url.Values{
		"place_id": {find.Candidates[0].PlaceID},
		"fields":   {"price_level"},
		"key":      {c.apiKey},
	}
	var details detailsResponse
	if err := c.getJSON(ctx, "/details/json?"+detailParams.Encode(), &details); err != nil {
		return nil, err
	}
	return details.Result.PriceLevel, nil
}

// EstimatePrice maps a Places price level to an average ticket price.
func EstimatePrice(priceLevel int) float64 {
	return float64(priceLevel*20 + 10)
}

func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "places: unmarshal response")
	}
	return nil
}
