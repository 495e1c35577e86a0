package scihub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	log "github.com/sirupsen/logrus"
)

// ProductInfo resolves full entity metadata for one product: exact size in
// bytes, MD5 digest, download URL, ingestion date and footprint. Resolutions
// are cached for a few minutes.
func (c *Client) ProductInfo(ctx context.Context, id string) (*Product, error) {
	if p, ok := c.cache.get(id); ok {
		log.Debugf("Product %s metadata served from cache", id)
		return p, nil
	}

	req, err := retryablehttp.NewRequest("GET", c.productURL(id), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{URL: c.productURL(id), Err: err}
	}
	if err := checkResponse(res, body); err != nil {
		return nil, err
	}

	var env odataEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.D == nil {
		return nil, ErrInvalidResponse
	}
	d := env.D

	ingested, err := ConvertTimestamp(d.IngestionDate)
	if err != nil {
		return nil, ErrInvalidResponse
	}
	p := &Product{
		ID:    d.ID,
		Title: d.Name,
		Date:  ingested,
		Size:  int64(d.ContentLength),
		MD5:   strings.ToUpper(d.Checksum.Value),
		URL:   c.downloadURL(id),
	}
	if d.Footprint != "" {
		coords, err := footprintCoords(d.Footprint)
		if err != nil {
			log.Warnf("Product %s footprint: %v", id, err)
		} else {
			p.Footprint = coords
		}
	}
	c.cache.put(p)
	return p, nil
}

// footprintCoords renders a WKT footprint as the comma-separated "lon lat"
// pair string used by the query grammar. Multi-part geometries contribute
// their first polygon's outer ring.
func footprintCoords(s string) (string, error) {
	g, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("footprint %q: %v", s, err)
	}
	ring, err := outerRing(g)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(ring))
	for _, pt := range ring {
		parts = append(parts, fmt.Sprintf("%s %s",
			strconv.FormatFloat(pt[0], 'f', -1, 64),
			strconv.FormatFloat(pt[1], 'f', -1, 64)))
	}
	return strings.Join(parts, ","), nil
}

func outerRing(g orb.Geometry) (orb.Ring, error) {
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) == 0 {
			return nil, fmt.Errorf("empty polygon")
		}
		return t[0], nil
	case orb.MultiPolygon:
		if len(t) == 0 || len(t[0]) == 0 {
			return nil, fmt.Errorf("empty multipolygon")
		}
		return t[0][0], nil
	case orb.Collection:
		for _, sub := range t {
			if ring, err := outerRing(sub); err == nil {
				return ring, nil
			}
		}
		return nil, fmt.Errorf("no polygon in geometry collection")
	default:
		return nil, fmt.Errorf("unsupported footprint geometry %T", g)
	}
}

// parseCoordinates is the inverse of footprintCoords: "x y,x y,..." into a
// ring. Malformed pairs are dropped.
func parseCoordinates(s string) orb.Ring {
	if s == "" {
		return nil
	}
	var ring orb.Ring
	for _, pair := range strings.Split(s, ",") {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			continue
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		ring = append(ring, orb.Point{x, y})
	}
	return ring
}
