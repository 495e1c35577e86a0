// Package preview renders search footprints into a quick-glance overview
// image: each footprint drawn translucently over a plain canvas with the
// combined coverage outlined.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"github.com/eidolon/wordwrap"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"scihub-client/util"
)

const margin = 24

var palette = []color.RGBA{
	{31, 119, 180, 255},
	{255, 127, 14, 255},
	{44, 160, 44, 255},
	{214, 39, 40, 255},
	{148, 103, 189, 255},
	{140, 86, 75, 255},
}

// Render draws every footprint of fc onto a width×height canvas and outlines
// their combined coverage. The title is wrapped into a legend block at the
// top left.
func Render(fc *geojson.FeatureCollection, width, height int, title string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	polys := collectPolygons(fc)
	if len(polys) == 0 {
		drawText(img, color.RGBA{214, 39, 40, 255}, margin, height/2, "no footprints to draw")
		return img
	}

	bound := polys[0].Bound()
	for _, p := range polys[1:] {
		bound = bound.Union(p.Bound())
	}
	bound = pad(bound)

	sx := float64(width-2*margin) / (bound.Max[0] - bound.Min[0])
	sy := float64(height-2*margin) / (bound.Max[1] - bound.Min[1])
	project := func(pt orb.Point) (float64, float64) {
		x := margin + (pt[0]-bound.Min[0])*sx
		y := float64(height) - (margin + (pt[1]-bound.Min[1])*sy)
		return x, y
	}

	gc := draw2dimg.NewGraphicContext(img)
	for i, p := range polys {
		col := palette[i%len(palette)]
		gc.SetStrokeColor(col)
		gc.SetFillColor(color.RGBA{col.R, col.G, col.B, 60})
		gc.SetLineWidth(1.5)
		tracePolygon(gc, p, project)
		gc.FillStroke()
	}

	outline := util.CoverageOutline(polys)
	if len(outline) > 0 && len(outline[0]) > 0 {
		gc.SetStrokeColor(color.RGBA{40, 40, 40, 255})
		gc.SetLineWidth(2.5)
		gc.SetLineDash([]float64{6, 4}, 0)
		tracePolygon(gc, outline, project)
		gc.Stroke()
		gc.SetLineDash(nil, 0)
	}

	legend(img, title, len(polys))
	return img
}

func collectPolygons(fc *geojson.FeatureCollection) []orb.Polygon {
	var polys []orb.Polygon
	if fc == nil {
		return nil
	}
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
	}
	return polys
}

// pad expands the bound a little so strokes at the extremes stay visible.
// Degenerate bounds get a fixed size.
func pad(b orb.Bound) orb.Bound {
	dx := (b.Max[0] - b.Min[0]) * 0.05
	dy := (b.Max[1] - b.Min[1]) * 0.05
	if dx == 0 {
		dx = 0.1
	}
	if dy == 0 {
		dy = 0.1
	}
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dx, b.Min[1] - dy},
		Max: orb.Point{b.Max[0] + dx, b.Max[1] + dy},
	}
}

func tracePolygon(gc *draw2dimg.GraphicContext, p orb.Polygon, project func(orb.Point) (float64, float64)) {
	for _, ring := range p {
		if len(ring) == 0 {
			continue
		}
		x, y := project(ring[0])
		gc.BeginPath()
		gc.MoveTo(x, y)
		for _, pt := range ring[1:] {
			x, y = project(pt)
			gc.LineTo(x, y)
		}
		gc.Close()
	}
}

func legend(img *image.RGBA, title string, count int) {
	wrapper := wordwrap.Wrapper(48, false)
	lines := strings.Split(wrapper(title), "\n")
	lines = append(lines, fmt.Sprintf("%d footprints", count))
	y := margin
	for _, line := range lines {
		if line == "" {
			continue
		}
		drawText(img, color.RGBA{40, 40, 40, 255}, margin, y, line)
		y += basicfont.Face7x13.Height + 2
	}
}

func drawText(img *image.RGBA, col color.RGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// WritePNG stores img at path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Infof("Wrote overview map %s", path)
	return nil
}
