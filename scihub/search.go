package scihub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jinzhu/copier"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
)

// SearchResult is the aggregated outcome of one search: every page merged
// into a single product set. Results are snapshots; later queries on the same
// client never mutate an already returned result.
type SearchResult struct {
	query    string
	url      string
	total    int
	ids      []string
	products map[string]*Product
}

// Query searches the catalog with the standard grammar. Attributes append in
// argument order. See BuildQuery for the date and area semantics.
func (c *Client) Query(ctx context.Context, area string, begin, end Date, attrs ...Attr) (*SearchResult, error) {
	return c.QueryRaw(ctx, BuildQuery(area, begin, end, attrs))
}

// QueryRaw searches with a caller-built query string, e.g. a bare product
// title or any full-text expression the catalog accepts.
func (c *Client) QueryRaw(ctx context.Context, query string) (*SearchResult, error) {
	result := &SearchResult{
		query:    query,
		url:      c.searchURL(),
		products: make(map[string]*Product),
	}
	for start := 0; ; start += c.pageSize {
		entries, total, err := c.searchPage(ctx, query, start)
		if err != nil {
			return nil, err
		}
		result.total = total
		for _, e := range entries {
			result.add(c.productFromEntry(e))
		}
		if len(entries) == 0 || result.Len() >= total {
			break
		}
	}
	log.Infof("Search %q matched %d products", query, result.Len())
	return result, nil
}

func (c *Client) searchPage(ctx context.Context, query string, start int) ([]*searchEntry, int, error) {
	form := url.Values{"q": []string{query}}
	pageURL := fmt.Sprintf("%s&start=%d", c.searchURL(), start)
	log.Debugf("Search request %s: %v", pageURL, spew.Sdump(form))

	req, err := retryablehttp.NewRequest("POST", pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.do(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, &TransportError{URL: pageURL, Err: err}
	}
	if err := checkResponse(res, body); err != nil {
		return nil, 0, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.Feed == nil {
		return nil, 0, ErrInvalidResponse
	}
	total, err := strconv.Atoi(sr.Feed.Total)
	if err != nil {
		// No usable total advertised; the page is all there is.
		total = len(sr.Feed.Entry)
	}
	return sr.Feed.Entry, total, nil
}

func (c *Client) productFromEntry(e *searchEntry) *Product {
	p := &Product{
		ID:    e.ID,
		Title: e.Title,
		URL:   e.downloadLink(),
	}
	if p.URL == "" {
		p.URL = c.downloadURL(e.ID)
	}
	if s := facet(e.Str, "size"); s != "" {
		n, err := parseHumanSize(s)
		if err != nil {
			log.Warnf("Product %s size: %v", e.ID, err)
		} else {
			p.Size = n
		}
	}
	if wkt := facet(e.Str, "footprint"); wkt != "" {
		coords, err := footprintCoords(wkt)
		if err != nil {
			log.Warnf("Product %s footprint: %v", e.ID, err)
		} else {
			p.Footprint = coords
		}
	}
	if d := facet(e.Date, "ingestiondate"); d != "" {
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			p.Date = t.Truncate(time.Second).UTC()
		}
	}
	return p
}

// add merges p into the set. Later pages win field by field, but an empty
// field never clobbers data an earlier page already supplied.
func (r *SearchResult) add(p *Product) {
	existing, ok := r.products[p.ID]
	if !ok {
		r.ids = append(r.ids, p.ID)
		r.products[p.ID] = p
		return
	}
	copier.CopyWithOption(existing, p, copier.Option{IgnoreEmpty: true})
}

// Query reports the executed query string.
func (r *SearchResult) Query() string { return r.query }

// URL reports the search endpoint the query ran against.
func (r *SearchResult) URL() string { return r.url }

// Total reports the match count advertised by the catalog.
func (r *SearchResult) Total() int { return r.total }

// Len reports the number of aggregated products.
func (r *SearchResult) Len() int { return len(r.ids) }

// IDs lists product identifiers in first-seen order.
func (r *SearchResult) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Get returns a copy of one product by identifier.
func (r *SearchResult) Get(id string) (*Product, bool) {
	p, ok := r.products[id]
	if !ok {
		return nil, false
	}
	cp := &Product{}
	copier.Copy(cp, p)
	return cp, true
}

// Products returns copies of the aggregated products in first-seen order.
func (r *SearchResult) Products() []*Product {
	out := make([]*Product, 0, len(r.ids))
	for _, id := range r.ids {
		cp := &Product{}
		copier.Copy(cp, r.products[id])
		out = append(out, cp)
	}
	return out
}

// Footprints collects the product footprints as a GeoJSON feature collection.
// Products without a usable footprint are skipped.
func (r *SearchResult) Footprints() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, id := range r.ids {
		p := r.products[id]
		ring := parseCoordinates(p.Footprint)
		if len(ring) == 0 {
			continue
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = p.ID
		f.Properties["id"] = p.ID
		f.Properties["title"] = p.Title
		if !p.Date.IsZero() {
			f.Properties["date"] = FormatDate(p.Date)
		}
		fc.Append(f)
	}
	return fc
}

// ProductsSize sums the aggregated product sizes in MiB, rounded to two
// decimals. Products the feed reported no size for contribute zero.
func (r *SearchResult) ProductsSize() float64 {
	var total int64
	for _, id := range r.ids {
		total += r.products[id].Size
	}
	return math.Round(float64(total)/(1<<20)*100) / 100
}
