package services

import (
	"fmt"

	"github.com/ssimba1203/gather-map-clean/internal/database"
)

// Place categories a user can pick. The first entry is the default.
var categories = []string{"맛집", "카페", "편의점"}

// DefaultCategory is selected for new gatherings
const DefaultCategory = "맛집"

// Categories returns the selectable place categories in display order
func Categories() []string {
	return append([]string(nil), categories...)
}

// IsValidCategory reports whether c is one of Categories
func IsValidCategory(c string) bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// FriendHeading renders a friend list row, e.g. "친구 2: 강남역"
func FriendHeading(f database.Friend) string {
	return fmt.Sprintf("친구 %d: %s", f.ID, f.Address)
}

// PlacesHeading titles the recommendation list for category
func PlacesHeading(category string) string {
	return fmt.Sprintf("중간 지점 근처 %s 추천", category)
}
