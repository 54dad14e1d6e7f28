package interfaces

import (
	"context"

	"github.com/ssimba1203/gather-map-clean/internal/database"
)

// GatheringServiceInterface defines the operations front-ends perform on a gathering
type GatheringServiceInterface interface {
	Get(ctx context.Context, id string) (*database.Gathering, error)
	AddFriend(ctx context.Context, id, address string) (*database.Gathering, error)
	RemoveFriend(ctx context.Context, id string, friendID int) (*database.Gathering, error)
	Reset(ctx context.Context, id string) (*database.Gathering, error)
	SelectCategory(ctx context.Context, id, category string) (*database.Gathering, error)
	SetOrigin(ctx context.Context, id string, lat, lng float64, ok bool) (*database.Gathering, error)
	DefaultCenter() database.LatLng
}
