package util

import (
	"github.com/paulmach/orb"

	hull "github.com/furstenheim/go-convex-hull-2d"
)

type coordinates []orb.Point

func (c coordinates) Take(i int) (x, y float64) {
	return c[i][0], c[i][1]
}

func (c coordinates) Len() int {
	return len(c)
}

func (c coordinates) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}

func (c coordinates) Slice(i, j int) hull.Interface {
	return c[i:j]
}

// CoverageOutline returns the convex hull enclosing the outer rings of every
// polygon, closed as a single ring. An approximation of the true union, good
// enough to outline the combined coverage of a set of footprints.
func CoverageOutline(ps []orb.Polygon) orb.Polygon {
	var c coordinates
	for _, p := range ps {
		if len(p) == 0 {
			continue
		}
		c = append(c, p[0]...)
	}
	if len(c) == 0 {
		return orb.Polygon{}
	}
	h := hull.New(c)

	var ring orb.Ring
	for i := 0; i < h.Len(); i++ {
		x, y := h.Take(i)
		ring = append(ring, orb.Point{x, y})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}
