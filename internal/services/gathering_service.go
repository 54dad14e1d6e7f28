package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ssimba1203/gather-map-clean/internal/database"
	apperrors "github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/services/geocoding"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

const (
	MidpointTitle    = "중간 지점"
	MidpointImageURL = "https://t1.daumcdn.net/localimg/localimages/07/mapapidoc/markerStar.png"
	OriginTitle      = "내 위치"

	// MaxResultLimit is the most recommended places a gathering keeps
	MaxResultLimit = 5

	midpointHandle = "midpoint"
	originHandle   = "origin"
)

// Search purposes reported to Metrics
const (
	SearchAddress = "address"
	SearchPlaces  = "places"
)

// Metrics receives service-level events
type Metrics interface {
	RecordSearch(purpose string, status geocoding.Status, duration time.Duration)
	RecordStaleDiscard()
	RecordGatheringCreated()
}

type nopMetrics struct{}

func (nopMetrics) RecordSearch(string, geocoding.Status, time.Duration) {}
func (nopMetrics) RecordStaleDiscard()                                  {}
func (nopMetrics) RecordGatheringCreated()                              {}

type GatheringOptions struct {
	DefaultCenter database.LatLng
	// SearchRadius in meters around the midpoint
	SearchRadius int
	// ResultLimit caps the recommended place list
	ResultLimit int
	Metrics     Metrics
}

// DefaultGatheringOptions centres on Seoul City Hall and keeps 5 places within 1km
func DefaultGatheringOptions() GatheringOptions {
	return GatheringOptions{
		DefaultCenter: database.LatLng{Lat: 37.5665, Lng: 126.9780},
		SearchRadius:  1000,
		ResultLimit:   MaxResultLimit,
	}
}

// GatheringService owns the friend list, midpoint and recommended places of
// each gathering. Mutations of one gathering are serialised; place searches
// run outside the lock and their results are applied only while the
// generation they were started for is still current.
type GatheringService struct {
	store    GatheringStore
	searcher geocoding.Searcher
	opts     GatheringOptions
	locks    *keyedMutex
	now      func() time.Time
}

func NewGatheringService(store GatheringStore, searcher geocoding.Searcher, opts GatheringOptions) *GatheringService {
	defaults := DefaultGatheringOptions()
	if opts.SearchRadius <= 0 {
		opts.SearchRadius = defaults.SearchRadius
	}
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = defaults.ResultLimit
	}
	if opts.ResultLimit > MaxResultLimit {
		opts.ResultLimit = MaxResultLimit
	}
	if !opts.DefaultCenter.Valid() || opts.DefaultCenter == (database.LatLng{}) {
		opts.DefaultCenter = defaults.DefaultCenter
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &GatheringService{
		store:    store,
		searcher: searcher,
		opts:     opts,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// DefaultCenter is the map centre used when geolocation is unavailable
func (s *GatheringService) DefaultCenter() database.LatLng {
	return s.opts.DefaultCenter
}

// Get returns the gathering, creating an empty one for an unknown id
func (s *GatheringService) Get(ctx context.Context, id string) (*database.Gathering, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("gathering_id", "gathering id is required")
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// AddFriend resolves address with a keyword search and adds the first hit as
// a new friend. A failed or empty search leaves the gathering untouched.
func (s *GatheringService) AddFriend(ctx context.Context, id, address string) (*database.Gathering, error) {
	address = strings.TrimSpace(address)
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"gathering_id": id,
		"address":      address,
		"operation":    "add_friend",
		"service":      "gathering",
	})

	if id == "" {
		return nil, apperrors.NewValidationError("gathering_id", "gathering id is required")
	}
	if address == "" {
		return nil, apperrors.NewValidationError("address", "주소를 입력해 주세요.")
	}

	hit, err := s.resolveAddress(ctx, address)
	if err != nil {
		logger.WithError(err).Info("Address not found")
		return nil, err
	}

	gen, g, err := s.mutate(ctx, id, true, func(g *database.Gathering) error {
		friend := database.Friend{
			ID:            g.NextFriendID,
			Lat:           hit.Lat,
			Lng:           hit.Lng,
			OverlayHandle: fmt.Sprintf("friend-%d", g.NextFriendID),
			Address:       address,
			PlaceName:     hit.Name,
		}
		g.Friends = append(g.Friends, friend)
		g.NextFriendID++
		g.Center = friend.Position()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"friend_id": g.Friends[len(g.Friends)-1].ID,
		"friends":   len(g.Friends),
	}).Info("Friend added")

	return s.refreshPlaces(ctx, g, gen)
}

// RemoveFriend drops exactly one friend and its overlay. The id counter is
// never decremented.
func (s *GatheringService) RemoveFriend(ctx context.Context, id string, friendID int) (*database.Gathering, error) {
	gen, g, err := s.mutate(ctx, id, true, func(g *database.Gathering) error {
		idx := g.FindFriend(friendID)
		if idx < 0 {
			return apperrors.NewFriendNotFoundError(friendID)
		}
		g.Friends = append(g.Friends[:idx], g.Friends[idx+1:]...)
		if n := len(g.Friends); n > 0 {
			g.Center = g.Friends[n-1].Position()
		} else {
			g.Center = s.originOrDefault(g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"gathering_id": id,
		"friend_id":    friendID,
		"friends":      len(g.Friends),
		"operation":    "remove_friend",
		"service":      "gathering",
	}).Info("Friend removed")

	return s.refreshPlaces(ctx, g, gen)
}

// Reset clears friends, midpoint and places and restarts friend ids at 1.
// The origin overlay survives.
func (s *GatheringService) Reset(ctx context.Context, id string) (*database.Gathering, error) {
	_, g, err := s.mutate(ctx, id, true, func(g *database.Gathering) error {
		g.Friends = []database.Friend{}
		g.NextFriendID = 1
		g.Center = s.originOrDefault(g)
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"gathering_id": id,
		"operation":    "reset",
		"service":      "gathering",
	}).Info("Gathering reset")
	return g, nil
}

// SelectCategory changes the place category. With fewer than two friends
// only the selection changes and no search runs.
func (s *GatheringService) SelectCategory(ctx context.Context, id, category string) (*database.Gathering, error) {
	category = strings.TrimSpace(category)
	if !IsValidCategory(category) {
		return nil, apperrors.NewInvalidCategoryError(category)
	}

	var recompute bool
	gen, g, err := s.mutate(ctx, id, false, func(g *database.Gathering) error {
		g.Category = category
		if len(g.Friends) >= 2 {
			recompute = true
			g.Generation++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !recompute {
		return g, nil
	}
	return s.refreshPlaces(ctx, g, gen)
}

// SetOrigin records the browser geolocation result. When ok is false or the
// coordinate is invalid the default centre is used.
func (s *GatheringService) SetOrigin(ctx context.Context, id string, lat, lng float64, ok bool) (*database.Gathering, error) {
	origin := database.LatLng{Lat: lat, Lng: lng}
	if !ok || !origin.Valid() {
		origin = s.opts.DefaultCenter
	}

	_, g, err := s.mutate(ctx, id, false, func(g *database.Gathering) error {
		g.Origin = &origin
		if len(g.Friends) == 0 {
			g.Center = origin
		}
		return nil
	})
	return g, err
}

// mutate applies fn to the stored gathering under its lock. When invalidate is
// set or fn bumped the generation, the midpoint is recomputed and places are
// cleared. An error from fn aborts without saving. It returns the generation a
// place search may be applied to.
func (s *GatheringService) mutate(ctx context.Context, id string, invalidate bool, fn func(*database.Gathering) error) (int64, *database.Gathering, error) {
	if strings.TrimSpace(id) == "" {
		return 0, nil, apperrors.NewValidationError("gathering_id", "gathering id is required")
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	defer unlock()

	g, err := s.load(ctx, id)
	if err != nil {
		return 0, nil, err
	}

	before := g.Generation
	if err := fn(g); err != nil {
		return 0, nil, err
	}
	if invalidate {
		g.Generation++
	}
	if g.Generation != before {
		g.Places = []database.Place{}
		if mid, ok := Midpoint(g.Friends); ok {
			g.Midpoint = &mid
			g.Center = mid
		} else {
			g.Midpoint = nil
		}
	}
	s.rebuildOverlays(g)
	g.UpdatedAt = s.now()

	if err := s.save(ctx, g); err != nil {
		return 0, nil, err
	}
	return g.Generation, g.Clone(), nil
}

// refreshPlaces searches places around the midpoint of g and applies them if
// generation gen is still current.
func (s *GatheringService) refreshPlaces(ctx context.Context, g *database.Gathering, gen int64) (*database.Gathering, error) {
	if g.Midpoint == nil {
		return g, nil
	}

	places := s.searchPlaces(ctx, g.ID, *g.Midpoint, g.Category)

	unlock, err := s.lock(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.load(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	if current.Generation != gen {
		s.opts.Metrics.RecordStaleDiscard()
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"gathering_id":       g.ID,
			"search_generation":  gen,
			"current_generation": current.Generation,
			"operation":          "refresh_places",
			"service":            "gathering",
		}).Debug("Discarding stale place results")
		return current.Clone(), nil
	}

	current.Places = places
	s.rebuildOverlays(current)
	current.UpdatedAt = s.now()
	if err := s.save(ctx, current); err != nil {
		return nil, err
	}
	return current.Clone(), nil
}

// searchPlaces never fails: errors yield an empty list
func (s *GatheringService) searchPlaces(ctx context.Context, id string, mid database.LatLng, category string) []database.Place {
	start := time.Now()
	hits, err := s.searcher.KeywordSearch(ctx, category, geocoding.SearchOptions{
		Location: &geocoding.Coord{Lat: mid.Lat, Lng: mid.Lng},
		Radius:   s.opts.SearchRadius,
		Size:     s.opts.ResultLimit,
	})
	s.opts.Metrics.RecordSearch(SearchPlaces, geocoding.StatusOf(hits, err), time.Since(start))
	if err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"gathering_id": id,
			"category":     category,
			"operation":    "search_places",
			"service":      "gathering",
		}).WithError(err).Warn("Place search failed, clearing recommendations")
		return []database.Place{}
	}

	if len(hits) > s.opts.ResultLimit {
		hits = hits[:s.opts.ResultLimit]
	}
	places := make([]database.Place, 0, len(hits))
	for _, h := range hits {
		places = append(places, database.Place{
			Name:        h.Name,
			Address:     h.Address,
			RoadAddress: h.RoadAddress,
			Category:    h.Category,
			Phone:       h.Phone,
			Lat:         h.Lat,
			Lng:         h.Lng,
			DistanceM:   h.DistanceM,
			MapURL:      geocoding.MapURL(h.Name),
		})
	}
	return places
}

func (s *GatheringService) resolveAddress(ctx context.Context, address string) (geocoding.Place, error) {
	start := time.Now()
	hits, err := s.searcher.KeywordSearch(ctx, address, geocoding.SearchOptions{Size: 1})
	s.opts.Metrics.RecordSearch(SearchAddress, geocoding.StatusOf(hits, err), time.Since(start))
	if apperrors.IsErrorType(err, apperrors.ErrorTypeTimeout) {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"address":   address,
			"operation": "resolve_address",
			"service":   "gathering",
		}).WithError(err).Warn("Address search timed out")
	}
	if err != nil || len(hits) == 0 {
		return geocoding.Place{}, apperrors.NewAddressNotFoundError(address, err)
	}
	return hits[0], nil
}

// rebuildOverlays derives the overlay list from the gathering state so no
// stale overlay can survive a mutation
func (s *GatheringService) rebuildOverlays(g *database.Gathering) {
	overlays := make([]database.Overlay, 0, len(g.Friends)+len(g.Places)+2)
	if g.Origin != nil {
		overlays = append(overlays, database.Overlay{
			Handle:   originHandle,
			Kind:     database.OverlayOrigin,
			Title:    OriginTitle,
			Position: *g.Origin,
		})
	}
	for _, f := range g.Friends {
		overlays = append(overlays, database.Overlay{
			Handle:   f.OverlayHandle,
			Kind:     database.OverlayFriend,
			Label:    fmt.Sprintf("%d", f.ID),
			Title:    f.Address,
			Position: f.Position(),
		})
	}
	if g.Midpoint != nil {
		overlays = append(overlays, database.Overlay{
			Handle:   midpointHandle,
			Kind:     database.OverlayMidpoint,
			Title:    MidpointTitle,
			ImageURL: MidpointImageURL,
			Position: *g.Midpoint,
		})
	}
	for i, p := range g.Places {
		overlays = append(overlays, database.Overlay{
			Handle:   fmt.Sprintf("place-%d-%d", g.Generation, i),
			Kind:     database.OverlayPlace,
			Title:    p.Name,
			Position: database.LatLng{Lat: p.Lat, Lng: p.Lng},
		})
	}
	g.Overlays = overlays
}

func (s *GatheringService) originOrDefault(g *database.Gathering) database.LatLng {
	if g.Origin != nil {
		return *g.Origin
	}
	return s.opts.DefaultCenter
}

// load returns the stored gathering or a fresh one; callers hold the id lock
func (s *GatheringService) load(ctx context.Context, id string) (*database.Gathering, error) {
	g, err := s.store.Get(ctx, id)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, database.ErrGatheringNotFound) {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"gathering_id": id,
			"operation":    "load_gathering",
			"service":      "gathering",
		}).WithError(err).Error("Failed to load gathering")
		return nil, storeError("load", err)
	}

	now := s.now()
	g = &database.Gathering{
		ID:           id,
		Friends:      []database.Friend{},
		NextFriendID: 1,
		Category:     DefaultCategory,
		Center:       s.opts.DefaultCenter,
		Places:       []database.Place{},
		Overlays:     []database.Overlay{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.save(ctx, g); err != nil {
		return nil, err
	}
	s.opts.Metrics.RecordGatheringCreated()
	return g, nil
}

func (s *GatheringService) save(ctx context.Context, g *database.Gathering) error {
	if err := s.store.Save(ctx, g); err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"gathering_id": g.ID,
			"operation":    "save_gathering",
			"service":      "gathering",
		}).WithError(err).Error("Failed to save gathering")
		return storeError("save", err)
	}
	return nil
}

// lock takes the in-process lock for id and, when the store can lock across
// processes, the store lock too. The returned func releases both.
func (s *GatheringService) lock(ctx context.Context, id string) (func(), error) {
	unlock := s.locks.Lock(id)
	locker, ok := s.store.(GatheringLocker)
	if !ok {
		return unlock, nil
	}

	release, err := locker.Lock(ctx, id)
	if err != nil {
		unlock()
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"gathering_id": id,
			"operation":    "lock_gathering",
			"service":      "gathering",
		}).WithError(err).Error("Failed to lock gathering")
		return nil, storeError("lock", err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

// storeError keeps errors the store already classified and marks the rest external
func storeError(operation string, err error) error {
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	return apperrors.NewExternalError("gathering_store", operation, err)
}

// keyedMutex hands out one mutex per key and forgets it once unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
