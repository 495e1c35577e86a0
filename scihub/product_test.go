package scihub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scihub-client/scihubtest"
)

const testProductID = "8df46c9e-a20c-43db-a19a-4240c2ed3b8b"

func fixtureInfoProduct() *scihubtest.Product {
	return &scihubtest.Product{
		ID:        testProductID,
		Title:     "S1A_EW_GRDM_1SDV_20151121T100356_20151121T100429_008701_00C622_A0EC",
		Ingested:  time.UnixMilli(1448100236675).UTC(),
		Footprint: "POLYGON((-66.2695312 -8.0592296,-66.2695312 0.7031074,-57.3046875 0.7031074,-57.3046875 -8.0592296,-66.2695312 -8.0592296))",
		Content:   []byte("imagery"),
		MD5:       "D5E4DF5C38C6E97BF7E7BD540AB21C05",
		Length:    143549851,
	}
}

func TestProductInfo(t *testing.T) {
	srv := scihubtest.New(t, fixtureInfoProduct())
	c := New("user", "pass", srv.URL)

	p, err := c.ProductInfo(context.Background(), testProductID)
	require.NoError(t, err)
	assert.Equal(t, testProductID, p.ID)
	assert.Equal(t, "S1A_EW_GRDM_1SDV_20151121T100356_20151121T100429_008701_00C622_A0EC", p.Title)
	assert.Equal(t, int64(143549851), p.Size)
	assert.Equal(t, "D5E4DF5C38C6E97BF7E7BD540AB21C05", p.MD5)
	// Ingestion timestamps carry milliseconds; the date keeps whole seconds.
	assert.Equal(t, "2015-11-21T10:03:56Z", p.Date.Format(dateFormat))
	assert.Equal(t, srv.URL+fmt.Sprintf("/odata/v1/Products('%s')/$value", testProductID), p.URL)
	assert.Equal(t,
		"-66.2695312 -8.0592296,-66.2695312 0.7031074,-57.3046875 0.7031074,-57.3046875 -8.0592296,-66.2695312 -8.0592296",
		p.Footprint)
}

func TestProductInfoUppercasesDigest(t *testing.T) {
	srv := scihubtest.New(t, &scihubtest.Product{
		ID:       "aaaabbbb-0000-0000-0000-000000000000",
		Title:    "S1A_TEST",
		Ingested: time.Now(),
		Content:  []byte("some test data"),
	})
	c := New("user", "pass", srv.URL)

	p, err := c.ProductInfo(context.Background(), "aaaabbbb-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Equal(t, "79C03EB6DC4506FE20155061E7692258", p.MD5)
}

func TestProductInfoNotFound(t *testing.T) {
	srv := scihubtest.New(t)
	c := New("user", "pass", srv.URL)

	_, err := c.ProductInfo(context.Background(), testProductID)
	apiErr := &APIError{}
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, fmt.Sprintf("No Products found with key '%s' ", testProductID), apiErr.Message)
}

func TestProductInfoCached(t *testing.T) {
	srv := scihubtest.New(t, fixtureInfoProduct())
	c := New("user", "pass", srv.URL)

	first, err := c.ProductInfo(context.Background(), testProductID)
	require.NoError(t, err)
	first.Title = "mutated"

	second, err := c.ProductInfo(context.Background(), testProductID)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Infos())
	assert.NotSame(t, first, second)
	assert.Equal(t, "S1A_EW_GRDM_1SDV_20151121T100356_20151121T100429_008701_00C622_A0EC", second.Title)
}

func TestProductInfoCacheExpiry(t *testing.T) {
	srv := scihubtest.New(t, fixtureInfoProduct())
	c := New("user", "pass", srv.URL)
	c.cache = newInfoCache(-1)

	_, err := c.ProductInfo(context.Background(), testProductID)
	require.NoError(t, err)
	_, err = c.ProductInfo(context.Background(), testProductID)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Infos())
}

func TestProductInfoMalformed(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{"truncated json", `{"d": {"Id": "x", "Name"`},
		{"missing entity", `{"nope": 1}`},
		{"bad ingestion date", `{"d":{"Id":"x","Name":"n","ContentLength":"10","IngestionDate":"whenever","Checksum":{"Value":"aa"}}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()
			c := New("user", "pass", srv.URL)

			_, err := c.ProductInfo(context.Background(), "x")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidResponse))
			assert.EqualError(t, err, "API response not valid. JSON decoding failed.")
		})
	}
}

func TestFootprintCoords(t *testing.T) {
	for _, tc := range []struct {
		name string
		wkt  string
		want string
	}{
		{
			name: "polygon",
			wkt:  "POLYGON((0 0,1 1,0 1,0 0))",
			want: "0 0,1 1,0 1,0 0",
		},
		{
			name: "polygon with spaces",
			wkt:  "POLYGON ((-66.2695312 -8.0592296, -66.2695312 0.7031074, -57.3046875 0.7031074, -66.2695312 -8.0592296))",
			want: "-66.2695312 -8.0592296,-66.2695312 0.7031074,-57.3046875 0.7031074,-66.2695312 -8.0592296",
		},
		{
			name: "multipolygon keeps first outer ring",
			wkt:  "MULTIPOLYGON(((0 0,2 0,2 2,0 0)),((5 5,6 5,6 6,5 5)))",
			want: "0 0,2 0,2 2,0 0",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := footprintCoords(tc.wkt)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFootprintCoordsInvalid(t *testing.T) {
	for _, wkt := range []string{
		"not wkt at all",
		"POINT(1 2)",
		"POLYGON EMPTY",
	} {
		_, err := footprintCoords(wkt)
		assert.Error(t, err, "wkt %q", wkt)
	}
}

func TestParseCoordinates(t *testing.T) {
	ring := parseCoordinates("0 0,1 1,0 1,0 0")
	assert.Equal(t, orb.Ring{{0, 0}, {1, 1}, {0, 1}, {0, 0}}, ring)

	// Malformed pairs are dropped, the rest survive.
	ring = parseCoordinates("0 0,bogus,1,2 2 2,3 4")
	assert.Equal(t, orb.Ring{{0, 0}, {3, 4}}, ring)

	assert.Nil(t, parseCoordinates(""))
}
