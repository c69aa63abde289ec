package eventbrite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVenueSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/venues/search/", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "Acme Theatre", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"venues":[
			{"id":"123","capacity":"450","resource_uri":"https://www.eventbriteapi.com/v3/venues/123/"}]}`))
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL))
	res, err := c.VenueSearch(context.Background(), "Acme Theatre")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "123", res.ID)
	require.NotNil(t, res.Capacity)
	assert.Equal(t, 450, *res.Capacity)
}

func TestVenueSearchNumericCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"venues":[{"id":"9","capacity":900}]}`))
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL))
	res, err := c.VenueSearch(context.Background(), "Acme Theatre")
	require.NoError(t, err)
	require.NotNil(t, res.Capacity)
	assert.Equal(t, 900, *res.Capacity)
}

func TestVenueSearchNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"venues":[]}`))
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL))
	res, err := c.VenueSearch(context.Background(), "Nowhere Hall")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestVenueSearchUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-token", WithBaseURL(srv.URL))
	_, err := c.VenueSearch(context.Background(), "Acme Theatre")
	assert.Error(t, err)
}
