package geocoding

import (
	"math"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const mapSearchBaseURL = "https://map.naver.com/v5/search/"

// componentUnescaper turns url.QueryEscape output into the
// encodeURIComponent form map sites expect in a path segment
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// MapURL builds the external map-browsing link for a place name
func MapURL(name string) string {
	return mapSearchBaseURL + componentUnescaper.Replace(url.QueryEscape(NormalizeQuery(name)))
}

// NormalizeQuery trims, collapses whitespace and composes Hangul to NFC so the
// same address typed on different keyboards yields one query and one cache key.
func NormalizeQuery(q string) string {
	return norm.NFC.String(strings.Join(strings.Fields(q), " "))
}

// Haversine returns the great-circle distance in meters
func Haversine(a, b Coord) float64 {
	const R = 6371000.0
	dLat := (b.Lat - a.Lat) * (math.Pi / 180.0)
	dLng := (b.Lng - a.Lng) * (math.Pi / 180.0)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*(math.Pi/180.0))*math.Cos(b.Lat*(math.Pi/180.0))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
