package eventbrite

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.eventbriteapi.com/v3"

// Client performs Eventbrite API operations.
type Client interface {
	VenueSearch(ctx context.Context, name string) (*VenueResult, error)
}

// VenueResult is the first matched venue from a search.
type VenueResult struct {
	ID          string
	Capacity    *int
	ResourceURI string
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
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Eventbrite API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
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
	Venues []struct {
		ID string `json:"id"`
		// Capacity arrives as a number or a quoted string depending on
		// the venue record's age.
		Capacity    json.Number `json:"capacity"`
		ResourceURI string      `json:"resource_uri"`
	} `json:"venues"`
}

func (c *httpClient) VenueSearch(ctx context.Context, name string) (*VenueResult, error) {
	params := url.Values{"q": {name}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/venues/search/?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("eventbrite: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var search venueSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, eris.Wrap(err, "eventbrite: unmarshal response")
	}
	if len(search.Venues) == 0 {
		return nil, nil
	}

	v := search.Venues[0]
	result := &VenueResult{ID: v.ID, ResourceURI: v.ResourceURI}
	if n, err := v.Capacity.Int64(); err == nil && n > 0 {
		cap := int(n)
		result.Capacity = &cap
	}
	return result, nil
}
