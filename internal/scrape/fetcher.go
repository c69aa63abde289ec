package scrape

import (
	"context"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enrich/internal/config"
)

// candidatePaths are tried in order until one returns an HTML page. Venue
// sites localize their ticketing pages, so the list covers the common
// European spellings.
var candidatePaths = []string{
	"/", "/events", "/event", "/tickets", "/billetterie", "/programmation",
	"/programme", "/agenda", "/whats-on", "/calendar", "/cartelera",
	"/veranstaltungen", "/termine", "/bilhetes", "/ingressos",
	"/evenement", "/evenements",
}

// defaultUserAgents is a small rotation of desktop user agents, used unless
// the configuration supplies its own list.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_3) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125 Safari/537.36",
}

// Page is the result of fetching one venue site page.
type Page struct {
	FinalURL string
	HTML     string
	Text     string
	Links    []string
}

// Empty reports whether the fetch yielded no usable content.
func (p Page) Empty() bool {
	return p.HTML == ""
}

// Fetcher retrieves venue site HTML with a byte cap and short timeout.
type Fetcher struct {
	client       *http.Client
	maxBytes     int
	maxTextChars int
	maxExtra     int
	userAgents   []string
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.client = hc
	}
}

// NewFetcher creates a Fetcher from scrape configuration.
func NewFetcher(cfg config.ScrapeConfig, opts ...Option) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxBytes:     cfg.MaxBytes,
		maxTextChars: cfg.MaxTextChars,
		maxExtra:     cfg.MaxExtraPages,
		userAgents:   cfg.UserAgents,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 2_000_000
	}
	if f.maxTextChars <= 0 {
		f.maxTextChars = 40_000
	}
	if len(f.userAgents) == 0 {
		f.userAgents = defaultUserAgents
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NormalizeURL turns a bare domain into a fetchable URL.
func NormalizeURL(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		return ""
	}
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		return d
	}
	return "https://" + d
}

// FetchSite walks the candidate paths under the venue's domain until one
// returns an HTML 2xx/3xx response. A site that never responds yields an
// empty Page and an error for logging; callers treat that as "no evidence".
func (f *Fetcher) FetchSite(ctx context.Context, domain string) (Page, error) {
	base := NormalizeURL(domain)
	if base == "" {
		return Page{}, eris.New("scrape: empty domain")
	}

	var lastErr error
	for _, path := range candidatePaths {
		target, err := joinPath(base, path)
		if err != nil {
			continue
		}
		page, err := f.FetchPage(ctx, target)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Page{}, lastErr
			}
			continue
		}
		return page, nil
	}
	if lastErr == nil {
		lastErr = eris.Errorf("scrape: no HTML page found for %s", domain)
	}
	return Page{}, lastErr
}

// FetchExtra tries a few more candidate paths (excluding the landing page),
// shuffled, for fields the first page did not yield. Pages that fail are
// skipped silently.
func (f *Fetcher) FetchExtra(ctx context.Context, finalURL string) []Page {
	u, err := url.Parse(finalURL)
	if err != nil || u.Host == "" {
		return nil
	}
	origin := u.Scheme + "://" + u.Host

	extra := make([]string, 0, len(candidatePaths))
	for _, p := range candidatePaths {
		if p == "/" || p == "/event" {
			continue
		}
		extra = append(extra, p)
	}
	rand.Shuffle(len(extra), func(i, j int) {
		extra[i], extra[j] = extra[j], extra[i]
	})

	limit := f.maxExtra
	if limit <= 0 || limit > len(extra) {
		limit = min(3, len(extra))
	}

	var pages []Page
	for _, path := range extra[:limit] {
		if ctx.Err() != nil {
			break
		}
		target, err := joinPath(origin, path)
		if err != nil {
			continue
		}
		page, err := f.FetchPage(ctx, target)
		if err != nil {
			continue
		}
		pages = append(pages, page)
	}
	return pages
}

// FetchPage fetches a single URL and converts it to a Page. Non-HTML
// responses and statuses >= 400 are errors.
func (f *Fetcher) FetchPage(ctx context.Context, target string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.userAgents[rand.IntN(len(f.userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en,en-GB,en-US,fr,es,de,nl;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return Page{}, eris.Errorf("scrape: status %d for %s", resp.StatusCode, target)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return Page{}, eris.Errorf("scrape: non-HTML content-type %q for %s", ct, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBytes)))
	if err != nil {
		return Page{}, eris.Wrap(err, "scrape: read body")
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	html := string(body)
	text := StripHTML(html)
	if len(text) > f.maxTextChars {
		text = text[:f.maxTextChars]
	}

	return Page{
		FinalURL: finalURL,
		HTML:     html,
		Text:     text,
		Links:    ExtractLinks(html, finalURL),
	}, nil
}

func joinPath(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: parse base %s", base)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: parse path %s", path)
	}
	return u.ResolveReference(ref).String(), nil
}
