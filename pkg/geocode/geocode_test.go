package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifrog800/StravaAddon/pkg/cache"
	"github.com/ifrog800/StravaAddon/pkg/storage"
)

func TestCoordKey(t *testing.T) {
	assert.Equal(t, "34.0901_-118.4065", CoordKey(34.09011, -118.40649))
	// Nearby points round to the same key.
	assert.Equal(t, CoordKey(34.09012, -118.40651), CoordKey(34.09011, -118.40649))
}

func TestLocationDescriptorPostalCode(t *testing.T) {
	r := &Result{CountryCode: "us", Postcode: "90210", Locality: "Beverly Hills", Region: "California"}
	assert.Equal(t, "90210", LocationDescriptor(r, 34.09, -118.41))
}

func TestLocationDescriptorLocalityFallback(t *testing.T) {
	r := &Result{CountryCode: "US", Locality: "Beverly Hills", Region: "California"}
	assert.Equal(t, "Beverly Hills,California", LocationDescriptor(r, 34.09, -118.41))

	r = &Result{CountryCode: "us", Region: "California"}
	assert.Equal(t, "California", LocationDescriptor(r, 34.09, -118.41))
}

func TestLocationDescriptorOtherCountry(t *testing.T) {
	r := &Result{CountryCode: "gb", Postcode: "SW1A 1AA", Locality: "London"}
	assert.Equal(t, "51.5010,-0.1416", LocationDescriptor(r, 51.50099, -0.14160))
}

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"address":{"country_code":"us","postcode":"90210","town":"Beverly Hills","state":"California"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	result, err := c.Reverse(context.Background(), 34.09, -118.41)
	require.NoError(t, err)
	assert.Equal(t, "us", result.CountryCode)
	assert.Equal(t, "90210", result.Postcode)
	assert.Equal(t, "Beverly Hills", result.Locality)
	assert.Equal(t, "California", result.Region)
}

func TestResolverCachesByCoordinate(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"address":{"country_code":"us","postcode":"10001","city":"New York","state":"New York"}}`)
	}))
	defer srv.Close()

	resolver := NewResolver(
		cache.New("geocode", storage.New(t.TempDir(), false)),
		NewClient(srv.URL, 0),
	)

	first, err := resolver.Resolve(context.Background(), 40.75001, -73.99702)
	require.NoError(t, err)
	assert.Equal(t, "10001", first.Postcode)

	// A nearby point maps to the same rounded key; no second remote call.
	second, err := resolver.Resolve(context.Background(), 40.75003, -73.99698)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}
