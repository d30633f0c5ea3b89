package geo

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPoint is returned when input text is not a "lat, lng" decimal pair.
var ErrInvalidPoint = errors.New("address text is not a lat,lng decimal pair")

var latLngPattern = regexp.MustCompile(`^\s*([-+]?\d+(?:\.\d+)?)\s*,\s*([-+]?\d+(?:\.\d+)?)\s*$`)

// Point is a WGS84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the point the way ArcGIS expects a point geometry: "lng,lat".
func (p Point) String() string {
	return strconv.FormatFloat(p.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}

// Valid reports whether the point lies inside the WGS84 coordinate range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ParsePoint parses "lat, lng" text.
// Examples:
//   - "37.3, -122.0"     -> {37.3 -122}
//   - " +37.3 ,-122 "    -> {37.3 -122}
//   - "37.3 -122.0"      -> ErrInvalidPoint (comma required)
func ParsePoint(text string) (Point, error) {
	m := latLngPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Point{}, ErrInvalidPoint
	}

	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: latitude %q", ErrInvalidPoint, m[1])
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: longitude %q", ErrInvalidPoint, m[2])
	}

	p := Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return Point{}, fmt.Errorf("%w: %s out of range", ErrInvalidPoint, strings.TrimSpace(text))
	}
	return p, nil
}
