package services

import "github.com/ssimba1203/gather-map-clean/internal/database"

// Midpoint returns the arithmetic mean of the friends' coordinates.
// ok is false for fewer than two friends.
func Midpoint(friends []database.Friend) (mid database.LatLng, ok bool) {
	if len(friends) < 2 {
		return database.LatLng{}, false
	}
	var sumLat, sumLng float64
	for _, f := range friends {
		sumLat += f.Lat
		sumLng += f.Lng
	}
	n := float64(len(friends))
	return database.LatLng{Lat: sumLat / n, Lng: sumLng / n}, true
}
