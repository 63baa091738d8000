package scrape

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/leadtap/internal/engine/stream"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/server/liststore"
	"github.com/rendis/leadtap/internal/server/places"
)

type fakeUpstream struct {
	mu       sync.Mutex
	searches int
	details  int
	results  map[string][]places.Place // keyword → results
	err      error
}

func (f *fakeUpstream) NearbySearch(_ context.Context, _, _ float64, keyword string) ([]places.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.err != nil {
		return nil, f.err
	}
	return f.results[keyword], nil
}

func (f *fakeUpstream) Details(_ context.Context, summary places.Place) (places.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details++
	return summary, nil
}

type fakeGeocoder struct {
	lat, lng float64
	err      error
	calls    int
}

func (f *fakeGeocoder) Geocode(context.Context, string) (float64, float64, error) {
	f.calls++
	return f.lat, f.lng, f.err
}

func newRunStore(t *testing.T) *liststore.Store {
	t.Helper()
	s, err := liststore.New(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = s.Create("clienti")
	require.NoError(t, err)
	return s
}

func collect() (func(stream.Event), *[]stream.Event) {
	var mu sync.Mutex
	var events []stream.Event
	return func(ev stream.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, &events
}

func runParams() model.ExtractParams {
	return model.ExtractParams{
		City:     "45.0703, 7.6869",
		Radius:   600, // collapses to the center point with step 500
		GridStep: 500,
		Keywords: []string{"bar"},
		ListName: "clienti.xlsx",
	}
}

func terminal(events []stream.Event) *stream.Event {
	for i := range events {
		if events[i].Type == stream.EventDone {
			return &events[i]
		}
	}
	return nil
}

func TestRunner_HappyPath(t *testing.T) {
	store := newRunStore(t)
	up := &fakeUpstream{results: map[string][]places.Place{
		"bar": {
			{PlaceID: "p1", Name: "Bar Centrale", Phone: "+39 011 1", Rating: 4.5},
			{PlaceID: "p2", Name: "Bar Sport"},
		},
	}}
	geo := &fakeGeocoder{}
	emit, events := collect()

	r := NewRunner(store, up, geo, nil)
	require.NoError(t, r.Run(context.Background(), runParams(), emit))

	// Coordinate pair input must bypass geocoding entirely.
	assert.Zero(t, geo.calls)
	// Radius ≤ 1.5×step collapses the grid to one point.
	assert.Equal(t, 1, up.searches)
	assert.Equal(t, 2, up.details)

	done := terminal(*events)
	require.NotNil(t, done, "stream must end with the terminal event")
	require.Len(t, done.Data, 2)
	assert.Equal(t, "Bar Centrale", done.Data[0].Nome)
	assert.Equal(t, "4.5", done.Data[0].Rating)
	assert.Equal(t, "bar", done.Data[0].Keyword)
	assert.NotEmpty(t, done.Data[0].Estrazione)

	// Rows and history are persisted.
	leads, err := store.Leads("clienti.xlsx")
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	history, err := store.Searches("clienti.xlsx")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 600, history[0].Raggio)
	assert.Equal(t, "bar", history[0].Keywords)
	assert.InDelta(t, 45.0703, history[0].Lat, 1e-4)
}

func TestRunner_DedupAgainstExistingList(t *testing.T) {
	store := newRunStore(t)
	require.NoError(t, store.AppendLeads("clienti.xlsx", []model.LeadRecord{
		{PlaceID: "p1", Nome: "Già presente"},
	}))
	up := &fakeUpstream{results: map[string][]places.Place{
		"bar": {
			{PlaceID: "p1", Name: "Già presente"},
			{PlaceID: "p2", Name: "Nuovo"},
		},
	}}
	emit, events := collect()

	r := NewRunner(store, up, &fakeGeocoder{}, nil)
	require.NoError(t, r.Run(context.Background(), runParams(), emit))

	// Only the new place goes through the details phase.
	assert.Equal(t, 1, up.details)

	done := terminal(*events)
	require.NotNil(t, done)
	assert.Len(t, done.Data, 2) // existing + new
}

func TestRunner_GeocodeUsedForPlaceNames(t *testing.T) {
	store := newRunStore(t)
	geo := &fakeGeocoder{lat: 45.07, lng: 7.68}
	emit, _ := collect()

	params := runParams()
	params.City = "Torino"
	r := NewRunner(store, &fakeUpstream{}, geo, nil)
	require.NoError(t, r.Run(context.Background(), params, emit))
	assert.Equal(t, 1, geo.calls)
}

func TestRunner_GeocodeFailureEmitsError(t *testing.T) {
	store := newRunStore(t)
	geo := &fakeGeocoder{err: places.ErrPlaceNotFound}
	emit, events := collect()

	params := runParams()
	params.City = "Xyzzy"
	r := NewRunner(store, &fakeUpstream{}, geo, nil)
	err := r.Run(context.Background(), params, emit)
	require.Error(t, err)

	assert.Nil(t, terminal(*events), "failed runs must not emit the terminal event")
	var sawError bool
	for _, ev := range *events {
		if ev.Type == stream.EventError {
			sawError = true
			assert.Contains(t, ev.Message, "Xyzzy")
		}
	}
	assert.True(t, sawError)
}

func TestRunner_UpstreamFailureEmitsError(t *testing.T) {
	store := newRunStore(t)
	up := &fakeUpstream{err: errors.New("rate limited (status 429)")}
	emit, events := collect()

	r := NewRunner(store, up, &fakeGeocoder{}, nil)
	require.Error(t, r.Run(context.Background(), runParams(), emit))
	assert.Nil(t, terminal(*events))
}

func TestRunner_ValidationFailure(t *testing.T) {
	store := newRunStore(t)
	emit, events := collect()

	params := runParams()
	params.Keywords = nil
	r := NewRunner(store, &fakeUpstream{}, &fakeGeocoder{}, nil)
	require.Error(t, r.Run(context.Background(), params, emit))

	require.Len(t, *events, 1)
	assert.Equal(t, stream.EventError, (*events)[0].Type)
}

func TestRunner_UnknownListFails(t *testing.T) {
	store := newRunStore(t)
	emit, events := collect()

	params := runParams()
	params.ListName = "fantasma.xlsx"
	r := NewRunner(store, &fakeUpstream{}, &fakeGeocoder{}, nil)
	require.Error(t, r.Run(context.Background(), params, emit))
	assert.Nil(t, terminal(*events))
}

func TestRunner_WideRadiusSearchesWholeGrid(t *testing.T) {
	store := newRunStore(t)
	up := &fakeUpstream{}
	emit, events := collect()

	params := runParams()
	params.Radius = 2000
	params.GridStep = 500
	r := NewRunner(store, up, &fakeGeocoder{}, nil)
	require.NoError(t, r.Run(context.Background(), params, emit))

	// 49 grid points for radius 2000 / step 500, one keyword.
	assert.Equal(t, 49, up.searches)

	var gridProgress int
	for _, ev := range *events {
		if ev.Type == stream.EventProgress && ev.Subtype == "grid" {
			gridProgress++
			assert.LessOrEqual(t, ev.Value, 50)
		}
	}
	assert.Equal(t, 49, gridProgress)
}
