package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enrich/internal/config"
)

func testConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		TimeoutSecs:   5,
		MaxBytes:      2_000_000,
		MaxTextChars:  40_000,
		MaxExtraPages: 2,
	}
}

func TestStripHTML(t *testing.T) {
	raw := `<html><head><title>Teatro Real</title><style>.x{color:red}</style>
	<script>var a = "<b>ignore</b>";</script></head>
	<body><nav><a href="/">Home</a></nav>
	<h1>Teatro&nbsp;Real</h1><p>Tickets from &euro;25</p>
	<footer>Legal notice</footer></body></html>`

	text := StripHTML(raw)
	assert.Contains(t, text, "Teatro Real")
	assert.Contains(t, text, "Tickets from €25")
	assert.NotContains(t, text, "ignore")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "Legal notice")
	assert.NotContains(t, text, "Home")
}

func TestExtractLinks(t *testing.T) {
	raw := `<a href="/tickets">Tickets</a>
	<a href="https://www.eventbrite.com/o/venue-123">Buy</a>
	<a href="mailto:info@venue.example">Mail</a>
	<a href="javascript:void(0)">JS</a>
	<script src="https://cdn.dice.fm/widget.js"></script>
	<link href="/style.css" rel="stylesheet">`

	links := ExtractLinks(raw, "https://venue.example/events")
	assert.Contains(t, links, "https://venue.example/tickets")
	assert.Contains(t, links, "https://www.eventbrite.com/o/venue-123")
	assert.Contains(t, links, "https://cdn.dice.fm/widget.js")
	assert.Contains(t, links, "https://venue.example/style.css")
	for _, l := range links {
		assert.NotContains(t, l, "mailto:")
		assert.NotContains(t, l, "javascript:")
	}
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Royal Opera House", ExtractTitle("<title>  Royal\n  Opera House </title>"))
	assert.Equal(t, "", ExtractTitle("<h1>no title tag</h1>"))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://venue.example", NormalizeURL("venue.example"))
	assert.Equal(t, "http://venue.example", NormalizeURL("http://venue.example"))
	assert.Equal(t, "", NormalizeURL("  "))
}

func TestFetchSiteWalksCandidatePaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body><h1>Season programme</h1></body></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	page, err := f.FetchSite(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, page.Text, "Season programme")
	assert.True(t, strings.HasSuffix(page.FinalURL, "/events"))
}

func TestFetchSiteAllPathsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	page, err := f.FetchSite(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.True(t, page.Empty())
}

func TestFetchPageByteCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 500)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBytes = 100
	f := NewFetcher(cfg)
	page, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.HTML, 100)
}

func TestFetchPageConfiguredUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgents = []string{"venue-enrich-crawler/1.0"}
	f := NewFetcher(cfg)
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "venue-enrich-crawler/1.0", got)
}

func TestFetchPageRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	_, err := f.FetchPage(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFetchExtra(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>" + r.URL.Path + "</body></html>"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxExtraPages = 2
	f := NewFetcher(cfg)
	pages := f.FetchExtra(context.Background(), srv.URL+"/")
	assert.Len(t, pages, 2)
	for _, p := range pages {
		assert.False(t, p.Empty())
	}
}
