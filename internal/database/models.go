package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LatLng is a WGS84 coordinate
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside WGS84 bounds
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Friend is one resolved address in a gathering
type Friend struct {
	ID            int     `json:"id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	OverlayHandle string  `json:"overlay_handle"`
	Address       string  `json:"address"`
	PlaceName     string  `json:"place_name,omitempty"`
}

// Position returns the friend's coordinate
func (f Friend) Position() LatLng {
	return LatLng{Lat: f.Lat, Lng: f.Lng}
}

// Place is a point of interest recommended near the midpoint
type Place struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	RoadAddress string  `json:"road_address,omitempty"`
	Category    string  `json:"category,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DistanceM   int     `json:"distance_m,omitempty"`
	MapURL      string  `json:"map_url"`
}

// OverlayKind identifies what an overlay annotates
type OverlayKind string

const (
	OverlayFriend   OverlayKind = "friend"
	OverlayMidpoint OverlayKind = "midpoint"
	OverlayPlace    OverlayKind = "place"
	OverlayOrigin   OverlayKind = "origin"
)

// Overlay is a visual annotation the map renderer draws
type Overlay struct {
	Handle   string      `json:"handle"`
	Kind     OverlayKind `json:"kind"`
	Label    string      `json:"label,omitempty"`
	Title    string      `json:"title,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	Position LatLng      `json:"position"`
}

// Gathering is the state of one user's map: friends, the derived midpoint,
// the recommended places and the overlays that render them.
type Gathering struct {
	ID           string    `json:"id"`
	Friends      []Friend  `json:"friends"`
	NextFriendID int       `json:"next_friend_id"`
	Category     string    `json:"category"`
	Origin       *LatLng   `json:"origin,omitempty"`
	Center       LatLng    `json:"center"`
	Midpoint     *LatLng   `json:"midpoint,omitempty"`
	Places       []Place   `json:"places"`
	Overlays     []Overlay `json:"overlays"`
	Generation   int64     `json:"generation"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate stored state
func (g *Gathering) Clone() *Gathering {
	if g == nil {
		return nil
	}
	out := *g
	out.Friends = cloneSlice(g.Friends)
	out.Places = cloneSlice(g.Places)
	out.Overlays = cloneSlice(g.Overlays)
	if g.Origin != nil {
		origin := *g.Origin
		out.Origin = &origin
	}
	if g.Midpoint != nil {
		mid := *g.Midpoint
		out.Midpoint = &mid
	}
	return &out
}

// cloneSlice copies s, keeping nil and empty distinct so JSON renders [] for empty lists
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// FindFriend returns the index of the friend with id, or -1
func (g *Gathering) FindFriend(id int) int {
	for i, f := range g.Friends {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// Value implements driver.Valuer so a gathering is stored as JSONB
func (g Gathering) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// Scan implements sql.Scanner
func (g *Gathering) Scan(value interface{}) error {
	if value == nil {
		return fmt.Errorf("cannot scan nil into Gathering")
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Gathering", value)
	}

	return json.Unmarshal(data, g)
}
