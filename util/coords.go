package util

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GetCoordinates extracts the first polygon ring from a GeoJSON file as the
// comma-separated "lon lat" pair string the catalog's footprint grammar
// expects. Feature collections, single features and bare geometries are all
// accepted.
func GetCoordinates(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("%s: %v", path, err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return "", fmt.Errorf("%s: %v", path, err)
		}
		for _, f := range fc.Features {
			if ring, ok := firstRing(f.Geometry); ok {
				return RingCoordinates(ring), nil
			}
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return "", fmt.Errorf("%s: %v", path, err)
		}
		if ring, ok := firstRing(f.Geometry); ok {
			return RingCoordinates(ring), nil
		}
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return "", fmt.Errorf("%s: %v", path, err)
		}
		if ring, ok := firstRing(g.Geometry()); ok {
			return RingCoordinates(ring), nil
		}
	}
	return "", fmt.Errorf("%s: no polygon found", path)
}

func firstRing(g orb.Geometry) (orb.Ring, bool) {
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) > 0 {
			return t[0], true
		}
	case orb.MultiPolygon:
		if len(t) > 0 && len(t[0]) > 0 {
			return t[0][0], true
		}
	}
	return nil, false
}

// RingCoordinates renders a ring as "x y" pairs joined by commas, trimming
// each coordinate to its shortest exact decimal form.
func RingCoordinates(r orb.Ring) string {
	parts := make([]string, 0, len(r))
	for _, pt := range r {
		parts = append(parts, fmt.Sprintf("%s %s",
			strconv.FormatFloat(pt[0], 'f', -1, 64),
			strconv.FormatFloat(pt[1], 'f', -1, 64)))
	}
	return strings.Join(parts, ",")
}
