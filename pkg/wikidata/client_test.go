package wikidata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVenueLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))
		q := r.URL.Query().Get("query")
		assert.Contains(t, q, `"Royal Albert Hall"@en`)
		assert.Contains(t, q, "wdt:P1083")
		assert.Contains(t, q, "wdt:P2139")
		_, _ = w.Write([]byte(`{"results":{"bindings":[
			{"capacity":{"type":"literal","value":"5272"},
			 "revenue":{"type":"literal","value":"45600000"}}]}}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL))
	res, err := c.VenueLookup(context.Background(), "Royal Albert Hall")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Capacity)
	assert.Equal(t, 5272, *res.Capacity)
	require.NotNil(t, res.AnnualRevenue)
	assert.InDelta(t, 45_600_000.0, *res.AnnualRevenue, 0.001)
}

func TestVenueLookupNoBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"bindings":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL))
	res, err := c.VenueLookup(context.Background(), "Nowhere Hall")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestVenueLookupPartialClaims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"bindings":[
			{"capacity":{"type":"literal","value":"1890"}}]}}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL))
	res, err := c.VenueLookup(context.Background(), "Palais Garnier")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Capacity)
	assert.Equal(t, 1890, *res.Capacity)
	assert.Nil(t, res.AnnualRevenue)
	assert.False(t, res.Empty())
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "Théâtre du Châtelet", NormalizeLabel("  Théâtre   du Châtelet "))
	assert.Equal(t, "", NormalizeLabel("   "))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `"The \"Old\" Vic"`, quoteLiteral(`The "Old" Vic`))
}
