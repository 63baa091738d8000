package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

// ErrPlaceNotFound is returned when the geocoder has no match for the
// query.
var ErrPlaceNotFound = eris.New("place not found")

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocoder resolves a free-text place name to its center point using
// the OSM Nominatim API.
type Geocoder struct {
	http      *http.Client
	userAgent string
}

func NewGeocoder() *Geocoder {
	return &Geocoder{
		http:      &http.Client{Timeout: 10 * time.Second},
		userAgent: "leadtap/0.1 (lead extraction tool)",
	}
}

// Geocode returns the center coordinates of the best match for query.
func (g *Geocoder) Geocode(ctx context.Context, query string) (lat, lng float64, err error) {
	u := nominatimURL + "?" + url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "places: build geocode request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, 0, eris.Wrap(err, "places: geocode request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, eris.Errorf("places: geocoder returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, eris.Wrap(err, "places: decode geocode response")
	}
	if len(results) == 0 {
		return 0, 0, ErrPlaceNotFound
	}

	lat, err = strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "places: parse geocoder latitude")
	}
	lng, err = strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "places: parse geocoder longitude")
	}
	return lat, lng, nil
}
