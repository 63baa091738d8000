package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/leadtap/internal/model"
)

func TestClient_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/geocode", r.URL.Path)
		assert.Equal(t, "Torino", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]float64{"lat": 45.0703, "lng": 7.6869})
	}))
	defer srv.Close()

	res, err := New(srv.URL).Geocode(context.Background(), "Torino")
	require.NoError(t, err)
	assert.InDelta(t, 45.0703, res.Lat, 1e-9)
	assert.InDelta(t, 7.6869, res.Lng, 1e-9)
}

func TestClient_GeocodeBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Città non trovata"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Geocode(context.Background(), "Xyzzy")
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusNotFound, be.StatusCode)
	assert.Equal(t, "Città non trovata", be.Detail)
}

func TestClient_ListsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/lists":
			json.NewEncoder(w).Encode([]string{"clienti.xlsx", "bar_torino.xlsx"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/lists":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(map[string]string{"filename": body["name"] + ".xlsx"})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/lists/clienti.xlsx":
			json.NewEncoder(w).Encode(map[string]string{"message": "Lista eliminata"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)

	names, err := c.Lists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"clienti.xlsx", "bar_torino.xlsx"}, names)

	created, err := c.CreateList(context.Background(), "nuovi")
	require.NoError(t, err)
	assert.Equal(t, "nuovi.xlsx", created)

	require.NoError(t, c.DeleteList(context.Background(), "clienti.xlsx"))
}

func TestClient_GetListDecodesSpacedColumns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/lists/clienti.xlsx", r.URL.Path)
		io.WriteString(w, `{"data": [{"Place_ID": "p1", "Nome": "Bar Sport", "Sito Web": "https://example.it", "Keyword Ricerca": "bar", "Data Estrazione": "10/03/2026 09:15:00", "Hide": false, "Call": true, "Interested": false, "Note": ""}]}`)
	}))
	defer srv.Close()

	leads, err := New(srv.URL).GetList(context.Background(), "clienti.xlsx")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "https://example.it", leads[0].SitoWeb)
	assert.Equal(t, "bar", leads[0].Keyword)
	assert.True(t, leads[0].Call)
}

func TestClient_UpdateRowPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/lists/clienti.xlsx/row", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	}))
	defer srv.Close()

	err := New(srv.URL).UpdateRow(context.Background(), "clienti.xlsx", "p1", model.ActionHide, true)
	require.NoError(t, err)
	assert.Equal(t, "p1", got["place_id"])
	assert.Equal(t, "hide", got["action"])
	assert.Equal(t, true, got["value"])
}

func TestClient_UpdateNoteBackendFailureSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Place_ID non trovato"})
	}))
	defer srv.Close()

	err := New(srv.URL).UpdateNote(context.Background(), "clienti.xlsx", "p9", "nota")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Place_ID non trovato")
}

func TestClient_GetSearches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/lists/clienti.xlsx/searches", r.URL.Path)
		io.WriteString(w, `[{"Lat": 45.07, "Lng": 7.68, "Raggio": 2000, "Keywords": "bar, pizzeria", "Data": "10/03/2026 09:15:00"}]`)
	}))
	defer srv.Close()

	entries, err := New(srv.URL).GetSearches(context.Background(), "clienti.xlsx")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2000, entries[0].Raggio)
	assert.Equal(t, "bar, pizzeria", entries[0].Keywords)
}

func TestClient_OpenScrapeStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Torino", body["city"])
		assert.Equal(t, float64(2000), body["radius"])

		io.WriteString(w, "data: {\"type\": \"done\", \"data\": []}\n\n")
	}))
	defer srv.Close()

	rc, err := New(srv.URL).OpenScrape(context.Background(), model.ExtractParams{
		City: "Torino", Radius: 2000, GridStep: 500,
		Keywords: []string{"bar"}, ListName: "clienti.xlsx",
	})
	require.NoError(t, err)
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type": "done"`)
}

func TestClient_OpenScrapeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Lista non specificata"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).OpenScrape(context.Background(), model.ExtractParams{City: "Torino"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Lista non specificata")
}

func TestClient_Download(t *testing.T) {
	payload := []byte{0x50, 0x4b, 0x03, 0x04} // xlsx magic
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/lists/clienti.xlsx/download", r.URL.Path)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Write(payload)
	}))
	defer srv.Close()

	rc, err := New(srv.URL).Download(context.Background(), "clienti.xlsx")
	require.NoError(t, err)
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)
}

func TestClient_TransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1") // nothing listens here
	_, err := c.Lists(context.Background())
	require.Error(t, err)

	var be *BackendError
	assert.False(t, errors.As(err, &be), "transport failures are not backend errors")
}
