package geocoding

import "context"

// Status mirrors the result status of the map SDK's keyword search
type Status string

const (
	StatusOK         Status = "OK"
	StatusZeroResult Status = "ZERO_RESULT"
	StatusError      Status = "ERROR"
)

// StatusOf classifies the outcome of a KeywordSearch call
func StatusOf(places []Place, err error) Status {
	switch {
	case err != nil:
		return StatusError
	case len(places) == 0:
		return StatusZeroResult
	default:
		return StatusOK
	}
}

// Coord is a WGS84 coordinate
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Place struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	RoadAddress string  `json:"road_address,omitempty"`
	Category    string  `json:"category,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	URL         string  `json:"url,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DistanceM   int     `json:"distance_m,omitempty"`
}

// Sort orders
const (
	SortAccuracy = "accuracy"
	SortDistance = "distance"
)

type SearchOptions struct {
	// Location centres the search; nil searches everywhere
	Location *Coord
	// Radius in meters around Location, 0 means the backend default
	Radius int
	Size   int
	Sort   string
}

// Searcher performs a keyword search for places
type Searcher interface {
	KeywordSearch(ctx context.Context, query string, opts SearchOptions) ([]Place, error)
}

// kakaoResponse is the body of /v2/local/search/keyword.json
type kakaoResponse struct {
	Meta      kakaoMeta       `json:"meta"`
	Documents []kakaoDocument `json:"documents"`
}

type kakaoMeta struct {
	TotalCount    int  `json:"total_count"`
	PageableCount int  `json:"pageable_count"`
	IsEnd         bool `json:"is_end"`
}

type kakaoDocument struct {
	ID                string `json:"id"`
	PlaceName         string `json:"place_name"`
	CategoryName      string `json:"category_name"`
	CategoryGroupCode string `json:"category_group_code"`
	Phone             string `json:"phone"`
	AddressName       string `json:"address_name"`
	RoadAddressName   string `json:"road_address_name"`
	X                 string `json:"x"`
	Y                 string `json:"y"`
	PlaceURL          string `json:"place_url"`
	Distance          string `json:"distance"`
}

type kakaoError struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}
