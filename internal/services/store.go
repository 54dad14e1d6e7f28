package services

import (
	"context"

	"github.com/ssimba1203/gather-map-clean/internal/database"
)

// GatheringStore persists gathering state. Get returns
// database.ErrGatheringNotFound for unknown or expired ids.
type GatheringStore interface {
	Get(ctx context.Context, id string) (*database.Gathering, error)
	Save(ctx context.Context, g *database.Gathering) error
	Delete(ctx context.Context, id string) error
}

// GatheringLocker is implemented by stores shared between processes. Lock
// blocks until no other holder has id locked or ctx is done.
type GatheringLocker interface {
	Lock(ctx context.Context, id string) (unlock func(), err error)
}
