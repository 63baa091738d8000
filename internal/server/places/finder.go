package places

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// detailsMaxAge bounds how stale a cached place may be before it is
// re-fetched during the details phase.
const detailsMaxAge = 30 * 24 * time.Hour

// Finder is the high-level search facade: keyword searches around a
// grid point, and cached per-place detail resolution.
type Finder struct {
	client *Client
	cache  *Cache
	log    *zap.Logger
}

func NewFinder(client *Client, cache *Cache, log *zap.Logger) *Finder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Finder{client: client, cache: cache, log: log}
}

// NearbySearch finds places matching keyword around a point, paginating
// until the upstream runs dry or the page cap is hit. Results are
// deduplicated by place ID within the call.
func (f *Finder) NearbySearch(ctx context.Context, lat, lng float64, keyword string) ([]Place, error) {
	seen := make(map[string]bool)
	var out []Place

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		body, err := f.client.searchMap(ctx, lat, lng, keyword, page*pageSize)
		if err != nil {
			return out, err
		}

		places, hasMore := parsePlaces(body)
		for _, p := range places {
			if p.PlaceID == "" || seen[p.PlaceID] {
				continue
			}
			seen[p.PlaceID] = true
			out = append(out, p)
		}

		if !hasMore {
			break
		}
	}

	f.log.Debug("nearby search done",
		zap.String("keyword", keyword),
		zap.Float64("lat", lat), zap.Float64("lng", lng),
		zap.Int("places", len(out)))
	return out, nil
}

// Details resolves the final record for a place found during the grid
// phase. The cache is consulted first; on a miss the summary itself is
// cached and returned, refreshed by a focused lookup when its contact
// fields are empty.
func (f *Finder) Details(ctx context.Context, summary Place) (Place, error) {
	if f.cache != nil && summary.PlaceID != "" {
		cached, ok, err := f.cache.Get(summary.PlaceID, detailsMaxAge)
		if err != nil {
			f.log.Warn("cache lookup failed", zap.String("place_id", summary.PlaceID), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	place := summary
	if place.Phone == "" && place.Website == "" && place.Name != "" {
		if refreshed, ok := f.refetch(ctx, place); ok {
			place = refreshed
		}
	}

	if f.cache != nil {
		if err := f.cache.Put(place); err != nil {
			f.log.Warn("cache store failed", zap.String("place_id", place.PlaceID), zap.Error(err))
		}
	}
	return place, nil
}

// refetch runs a focused single-place search by name at the place's own
// coordinates, hoping for the richer single-result response variant.
func (f *Finder) refetch(ctx context.Context, summary Place) (Place, bool) {
	lat, lng := summary.Lat, summary.Lng
	if lat == 0 && lng == 0 {
		return Place{}, false
	}
	body, err := f.client.searchMap(ctx, lat, lng, summary.Name, 0)
	if err != nil {
		f.log.Debug("detail refetch failed", zap.String("place_id", summary.PlaceID), zap.Error(err))
		return Place{}, false
	}
	places, _ := parsePlaces(body)
	for _, p := range places {
		if p.PlaceID == summary.PlaceID {
			return p, true
		}
	}
	return Place{}, false
}
