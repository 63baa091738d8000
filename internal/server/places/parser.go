package places

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Place is one result of a map search, already reduced to the fields
// the lead sheets carry.
type Place struct {
	PlaceID    string
	Name       string
	Address    string
	Phone      string
	Website    string
	Rating     float64
	Categories string
	Lat        float64
	Lng        float64
}

// parsePlaces decodes a tbm=map JSON response. The payload is a deeply
// nested positional array; the index paths below are the stable ones
// observed across response variants. Returns the places and whether a
// further page may exist.
func parsePlaces(body []byte) ([]Place, bool) {
	// Strip the anti-XSS prefix )]}'\n
	if idx := bytes.IndexByte(body, '\n'); idx >= 0 && idx < 10 {
		body = body[idx+1:]
	}

	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}

	// Result items live at root[0][1][1..N][14]; index 0 is search
	// metadata.
	items := nestedSlice(nested(raw, 0, 1))
	if len(items) == 0 {
		return nil, false
	}

	var places []Place
	for i := 1; i < len(items); i++ {
		entry := nestedSlice(nested(items, i, 14))
		if len(entry) == 0 {
			continue
		}

		name := nestedString(nested(entry, 11))
		if name == "" {
			continue
		}

		var categories string
		if cats := nestedSlice(nested(entry, 13)); len(cats) > 0 {
			var parts []string
			for _, c := range cats {
				if s := nestedString(c); s != "" {
					parts = append(parts, s)
				}
			}
			categories = strings.Join(parts, ", ")
		}

		places = append(places, Place{
			PlaceID:    nestedString(nested(entry, 78)),
			Name:       name,
			Address:    nestedString(nested(entry, 18)),
			Phone:      nestedString(nested(entry, 178, 0, 0)),
			Website:    nestedString(nested(entry, 7, 0)),
			Rating:     nestedFloat(nested(entry, 4, 7)),
			Categories: categories,
			Lat:        nestedFloat(nested(entry, 9, 2)),
			Lng:        nestedFloat(nested(entry, 9, 3)),
		})
	}

	hasMore := len(places) >= pageSize
	return places, hasMore
}

// nested walks positional arrays by index path without panicking.
func nested(data any, path ...int) any {
	current := data
	for _, idx := range path {
		slice, ok := current.([]any)
		if !ok || idx < 0 || idx >= len(slice) {
			return nil
		}
		current = slice[idx]
	}
	return current
}

func nestedSlice(data any) []any {
	slice, _ := data.([]any)
	return slice
}

func nestedString(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func nestedFloat(data any) float64 {
	switch v := data.(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}
