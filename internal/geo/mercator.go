package geo

import (
	"math"
	"strconv"
	"strings"
)

// OriginShift is half the circumference of the EPSG:3857 sphere, in meters.
const OriginShift = 20037508.34

// Meters is a projected EPSG:3857 coordinate.
type Meters struct {
	X float64
	Y float64
}

// BBox is an EPSG:3857 bounding box.
type BBox struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Width returns the horizontal extent in meters.
func (b BBox) Width() float64 { return b.XMax - b.XMin }

// Height returns the vertical extent in meters.
func (b BBox) Height() float64 { return b.YMax - b.YMin }

// String renders "xmin,ymin,xmax,ymax" for the export bbox parameter.
func (b BBox) String() string {
	parts := []string{
		strconv.FormatFloat(b.XMin, 'f', -1, 64),
		strconv.FormatFloat(b.YMin, 'f', -1, 64),
		strconv.FormatFloat(b.XMax, 'f', -1, 64),
		strconv.FormatFloat(b.YMax, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

// ToWebMercator projects a WGS84 point to spherical Mercator meters.
// Only meaningful for |lat| < 90; the result diverges at the poles.
func ToWebMercator(p Point) Meters {
	x := p.Lng * OriginShift / 180
	y := math.Log(math.Tan((90+p.Lat)*math.Pi/360)) / (math.Pi / 180)
	return Meters{X: x, Y: y * OriginShift / 180}
}

// FromWebMercator is the inverse of ToWebMercator.
func FromWebMercator(m Meters) Point {
	lng := m.X / OriginShift * 180
	lat := m.Y / OriginShift * 180
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180)) - math.Pi/2)
	return Point{Lat: lat, Lng: lng}
}

// BoundingBoxAspect centers a box on p whose height/width ratio equals
// heightPx/widthPx, so an export service asked for widthPx x heightPx
// pixels does not stretch the map.
func BoundingBoxAspect(p Point, halfWidthMeters float64, widthPx, heightPx int) BBox {
	m := ToWebMercator(p)
	halfHeight := halfWidthMeters * (float64(heightPx) / float64(widthPx))
	return BBox{
		XMin: m.X - halfWidthMeters,
		YMin: m.Y - halfHeight,
		XMax: m.X + halfWidthMeters,
		YMax: m.Y + halfHeight,
	}
}
