// Package scrape runs the extraction pipeline: sample a grid around the
// requested center, search every point for every keyword, resolve
// details for the new places, and persist them to the target list. The
// pipeline reports itself through a stream of events that the HTTP
// layer frames for the client.
package scrape

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/leadtap/internal/engine/geo"
	"github.com/rendis/leadtap/internal/engine/stream"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/server/liststore"
	"github.com/rendis/leadtap/internal/server/places"
)

// gridConcurrency bounds parallel point searches; the upstream client
// rate-limits globally on top of this.
const gridConcurrency = 4

// A radius this close to the step would produce a degenerate one-ring
// grid, so the search collapses to the center point alone.
const collapseFactor = 1.5

// Upstream is the search provider the pipeline drives.
type Upstream interface {
	NearbySearch(ctx context.Context, lat, lng float64, keyword string) ([]places.Place, error)
	Details(ctx context.Context, summary places.Place) (places.Place, error)
}

// Geocoder resolves a place name to its center point.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat, lng float64, err error)
}

// Runner executes extraction runs against one list store.
type Runner struct {
	store    *liststore.Store
	upstream Upstream
	geocoder Geocoder
	log      *zap.Logger
	now      func() time.Time
}

func NewRunner(store *liststore.Store, upstream Upstream, geocoder Geocoder, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store:    store,
		upstream: upstream,
		geocoder: geocoder,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one extraction and reports through emit. On success the
// last emitted event is the terminal one carrying the full updated
// list; on failure an error event is emitted and the stream ends
// without a terminal event.
func (r *Runner) Run(ctx context.Context, params model.ExtractParams, emit func(stream.Event)) error {
	if msg := params.Validate(); msg != "" {
		emit(stream.Event{Type: stream.EventError, Message: msg})
		return eris.New(msg)
	}

	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID), zap.String("list", params.ListName))
	log.Info("extraction started",
		zap.String("city", params.City),
		zap.Int("radius", params.Radius),
		zap.Int("grid_step", params.GridStep),
		zap.Strings("keywords", params.Keywords))

	// Serialize emissions: the grid phase runs workers in parallel.
	var emitMu sync.Mutex
	send := func(ev stream.Event) {
		emitMu.Lock()
		emit(ev)
		emitMu.Unlock()
	}

	existing, err := r.store.PlaceIDs(params.ListName)
	if err != nil {
		return r.fail(log, send, "Lista non trovata: %s", params.ListName)
	}

	lat, lng, err := r.resolveCenter(ctx, params.City)
	if err != nil {
		return r.fail(log, send, "Località non trovata: %s", params.City)
	}
	send(stream.Event{Type: stream.EventLog,
		Message: fmt.Sprintf("Centro ricerca: %.5f, %.5f", lat, lng)})

	points := r.gridPoints(lat, lng, params.Radius, params.GridStep)
	send(stream.Event{Type: stream.EventLog,
		Message: fmt.Sprintf("Griglia di ricerca: %d punti, %d parole chiave", len(points), len(params.Keywords))})

	found, err := r.gridPhase(ctx, points, params.Keywords, existing, send)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("extraction cancelled")
			return ctx.Err()
		}
		return r.fail(log, send, "Ricerca interrotta: %v", err)
	}
	send(stream.Event{Type: stream.EventLog,
		Message: fmt.Sprintf("Trovate %d nuove attività", len(found))})

	leads, err := r.detailsPhase(ctx, found, send)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("extraction cancelled")
			return ctx.Err()
		}
		return r.fail(log, send, "Recupero dettagli interrotto: %v", err)
	}

	if err := r.persist(params, lat, lng, leads); err != nil {
		log.Error("persist failed", zap.Error(err))
		return r.fail(log, send, "Salvataggio della lista non riuscito")
	}

	updated, err := r.store.Leads(params.ListName)
	if err != nil {
		return r.fail(log, send, "Rilettura della lista non riuscita")
	}

	send(stream.Event{Type: stream.EventLog,
		Message: fmt.Sprintf("Estrazione completata: %d nuove attività salvate", len(leads))})
	send(stream.Event{Type: stream.EventDone, Data: updated})
	log.Info("extraction finished", zap.Int("new_leads", len(leads)), zap.Int("total", len(updated)))
	return nil
}

func (r *Runner) fail(log *zap.Logger, send func(stream.Event), format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	log.Warn("extraction failed", zap.String("reason", msg))
	send(stream.Event{Type: stream.EventError, Message: msg})
	return eris.New(msg)
}

// resolveCenter accepts a literal "lat, lng" pair, bypassing geocoding
// when it matches, and geocodes the text otherwise.
func (r *Runner) resolveCenter(ctx context.Context, city string) (float64, float64, error) {
	if lat, lng, ok := geo.ParseCoordPair(city); ok {
		return lat, lng, nil
	}
	return r.geocoder.Geocode(ctx, city)
}

func (r *Runner) gridPoints(lat, lng float64, radius, step int) []geo.Point {
	if float64(radius) <= collapseFactor*float64(step) {
		return []geo.Point{{Lat: lat, Lng: lng}}
	}
	return geo.GenerateGridPoints(lat, lng, radius, step)
}

type foundPlace struct {
	place   places.Place
	keyword string
}

// gridPhase searches every point for every keyword and returns the
// places not already present in the run or in the target list.
// Progress covers the first half of the bar.
func (r *Runner) gridPhase(ctx context.Context, points []geo.Point, keywords []string, existing map[string]bool, send func(stream.Event)) ([]foundPlace, error) {
	var (
		mu    sync.Mutex
		found []foundPlace
		seen  = make(map[string]bool)
		done  int
	)
	total := len(points) * len(keywords)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(gridConcurrency)

	for _, keyword := range keywords {
		for _, point := range points {
			g.Go(func() error {
				results, err := r.upstream.NearbySearch(ctx, point.Lat, point.Lng, keyword)
				if err != nil {
					return err
				}

				mu.Lock()
				for _, p := range results {
					if p.PlaceID == "" || seen[p.PlaceID] || existing[p.PlaceID] {
						continue
					}
					seen[p.PlaceID] = true
					found = append(found, foundPlace{place: p, keyword: keyword})
				}
				done++
				progress := done * 50 / total
				mu.Unlock()

				send(stream.Event{Type: stream.EventProgress,
					Value:   progress,
					Label:   fmt.Sprintf("Ricerca griglia %d/%d", done, total),
					Subtype: "grid"})
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Workers finish in arbitrary order; keep the output deterministic.
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].place.PlaceID < found[j].place.PlaceID
	})
	return found, nil
}

// detailsPhase resolves the final record for every new place, covering
// the second half of the bar. Details are sequential: the cache absorbs
// most of them and the upstream is the bottleneck anyway.
func (r *Runner) detailsPhase(ctx context.Context, found []foundPlace, send func(stream.Event)) ([]model.LeadRecord, error) {
	extractedAt := r.now().Format(model.ExtractionTimeLayout)

	var leads []model.LeadRecord
	for i, fp := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		place, err := r.upstream.Details(ctx, fp.place)
		if err != nil {
			return nil, err
		}
		leads = append(leads, leadFromPlace(place, fp.keyword, extractedAt))

		send(stream.Event{Type: stream.EventProgress,
			Value:   50 + (i+1)*49/len(found),
			Label:   fmt.Sprintf("Dettagli %d/%d", i+1, len(found)),
			Subtype: "details"})
	}
	return leads, nil
}

func (r *Runner) persist(params model.ExtractParams, lat, lng float64, leads []model.LeadRecord) error {
	if err := r.store.AppendLeads(params.ListName, leads); err != nil {
		return err
	}
	return r.store.AppendSearch(params.ListName, model.SearchHistoryEntry{
		Lat:      lat,
		Lng:      lng,
		Raggio:   params.Radius,
		Keywords: strings.Join(params.Keywords, ", "),
		Data:     r.now().Format(model.ExtractionTimeLayout),
	})
}

func leadFromPlace(p places.Place, keyword, extractedAt string) model.LeadRecord {
	rating := ""
	if p.Rating > 0 {
		rating = fmt.Sprintf("%.1f", p.Rating)
	}
	return model.LeadRecord{
		PlaceID:    p.PlaceID,
		Nome:       p.Name,
		Indirizzo:  p.Address,
		Telefono:   p.Phone,
		SitoWeb:    p.Website,
		Rating:     rating,
		Categorie:  p.Categories,
		Keyword:    keyword,
		Estrazione: extractedAt,
	}
}
