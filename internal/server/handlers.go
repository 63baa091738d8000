package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rendis/leadtap/internal/engine/geo"
	"github.com/rendis/leadtap/internal/engine/stream"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/server/liststore"
)

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Parametro q mancante")
		return
	}

	// Literal coordinate pairs skip the geocoder.
	if lat, lng, ok := geo.ParseCoordPair(query); ok {
		writeJSON(w, http.StatusOK, map[string]float64{"lat": lat, "lng": lng})
		return
	}

	lat, lng, err := s.geocoder.Geocode(r.Context(), query)
	if err != nil {
		s.log.Warn("geocode failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusNotFound, fmt.Sprintf("Località non trovata: %s", query))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"lat": lat, "lng": lng})
}

// handleScrape runs an extraction, streaming events as they happen.
// Each event is one "data: {json}\n\n" frame, flushed immediately; the
// connection closes after the terminal event, or without one if the run
// fails.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City     string   `json:"city"`
		Radius   int      `json:"radius"`
		GridStep int      `json:"grid_step"`
		Keywords []string `json:"keywords"`
		ListName string   `json:"list_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo della richiesta non valido")
		return
	}
	params := model.ExtractParams{
		City:     body.City,
		Radius:   body.Radius,
		GridStep: body.GridStep,
		Keywords: body.Keywords,
		ListName: body.ListName,
	}
	if msg := params.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming non supportato")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emit := func(ev stream.Event) {
		raw, err := json.Marshal(ev)
		if err != nil {
			s.log.Error("encode event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	}

	if err := s.runner.Run(r.Context(), params, emit); err != nil {
		// Already reported on the stream; nothing more to send.
		s.log.Warn("scrape run ended with error", zap.Error(err))
	}
}

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List()
	if err != nil {
		s.storeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "Nome lista mancante")
		return
	}

	filename, err := s.store.Create(body.Name)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": filename})
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.Leads(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	if leads == nil {
		leads = []model.LeadRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": leads})
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Lista eliminata"})
}

func (s *Server) handleSearches(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Searches(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.SearchHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlaceID string `json:"place_id"`
		Action  string `json:"action"`
		Value   bool   `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo della richiesta non valido")
		return
	}
	if !model.ValidAction(body.Action) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Azione non valida: %s", body.Action))
		return
	}

	err := s.store.UpdateRow(chi.URLParam(r, "id"), body.PlaceID, model.RowAction(body.Action), body.Value)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Riga aggiornata"})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlaceID string `json:"place_id"`
		Note    string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo della richiesta non valido")
		return
	}

	if err := s.store.UpdateNote(chi.URLParam(r, "id"), body.PlaceID, body.Note); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Nota aggiornata"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := s.store.Path(id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Lettura della lista non riuscita")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	http.ServeContent(w, r, id, modTime(f), f)
}

func modTime(f *os.File) time.Time {
	if info, err := f.Stat(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// storeError maps list-store failures onto the API's error contract.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, liststore.ErrNotFound):
		writeError(w, http.StatusNotFound, "Lista non trovata")
	case errors.Is(err, liststore.ErrExists):
		writeError(w, http.StatusBadRequest, "Una lista con questo nome esiste già")
	case errors.Is(err, liststore.ErrBadName):
		writeError(w, http.StatusBadRequest, "Nome lista non valido")
	case errors.Is(err, liststore.ErrNoRow):
		writeError(w, http.StatusNotFound, "Place_ID non trovato")
	default:
		s.log.Error("store operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Errore interno")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
