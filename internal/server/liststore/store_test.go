package liststore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/rendis/leadtap/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func sampleLead(id string) model.LeadRecord {
	return model.LeadRecord{
		PlaceID:    id,
		Nome:       "Bar Centrale",
		Indirizzo:  "Via Roma 1, Torino",
		Telefono:   "+39 011 123456",
		SitoWeb:    "https://example.it",
		Rating:     "4.5",
		Categorie:  "bar, caffetteria",
		Keyword:    "bar",
		Estrazione: "10/03/2026 09:15:00",
	}
}

func TestStore_CreateAppendsExtension(t *testing.T) {
	s := newStore(t)

	name, err := s.Create("clienti")
	require.NoError(t, err)
	assert.Equal(t, "clienti.xlsx", name)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"clienti.xlsx"}, names)
}

func TestStore_CreateDuplicateRejected(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)

	_, err = s.Create("clienti.xlsx")
	assert.ErrorIs(t, err, ErrExists)
}

func TestStore_CreateRejectsPathTraversal(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"", "  ", "../evasione", "a/b", `a\b`} {
		_, err := s.Create(name)
		assert.ErrorIs(t, err, ErrBadName, "name %q", name)
	}
}

func TestStore_AppendAndReadLeads(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)

	in := []model.LeadRecord{sampleLead("p0"), sampleLead("p1")}
	in[1].Nome = "Pizzeria Da Mario"
	in[1].Note = "richiamare"
	require.NoError(t, s.AppendLeads("clienti.xlsx", in))

	out, err := s.Leads("clienti.xlsx")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, "richiamare", out[1].Note)
}

func TestStore_UpdateRowFlagRoundTrip(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)
	require.NoError(t, s.AppendLeads("clienti.xlsx", []model.LeadRecord{sampleLead("p0"), sampleLead("p1")}))

	require.NoError(t, s.UpdateRow("clienti.xlsx", "p1", model.ActionHide, true))
	require.NoError(t, s.UpdateRow("clienti.xlsx", "p0", model.ActionCall, true))
	require.NoError(t, s.UpdateRow("clienti.xlsx", "p0", model.ActionCall, false))

	out, err := s.Leads("clienti.xlsx")
	require.NoError(t, err)
	assert.False(t, out[0].Call)
	assert.True(t, out[1].Hide)
	assert.False(t, out[0].Hide)
}

func TestStore_UpdateRowUnknownPlaceID(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)
	require.NoError(t, s.AppendLeads("clienti.xlsx", []model.LeadRecord{sampleLead("p0")}))

	assert.ErrorIs(t, s.UpdateRow("clienti.xlsx", "p9", model.ActionHide, true), ErrNoRow)
	assert.ErrorIs(t, s.UpdateNote("clienti.xlsx", "", "nota"), ErrNoRow)
}

func TestStore_UpdateNote(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)
	require.NoError(t, s.AppendLeads("clienti.xlsx", []model.LeadRecord{sampleLead("p0")}))

	require.NoError(t, s.UpdateNote("clienti.xlsx", "p0", "già contattato"))

	out, err := s.Leads("clienti.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "già contattato", out[0].Note)
}

func TestStore_SearchHistoryRoundTrip(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)
	require.NoError(t, s.AppendLeads("clienti.xlsx", []model.LeadRecord{sampleLead("p0")}))

	entry := model.SearchHistoryEntry{
		Lat: 45.0703, Lng: 7.6869, Raggio: 2000,
		Keywords: "bar, pizzeria", Data: "10/03/2026 09:15:00",
	}
	require.NoError(t, s.AppendSearch("clienti.xlsx", entry))
	require.NoError(t, s.AppendSearch("clienti.xlsx", model.SearchHistoryEntry{Lat: 41.9, Lng: 12.5, Raggio: 500}))

	got, err := s.Searches("clienti.xlsx")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 45.0703, got[0].Lat, 1e-6)
	assert.Equal(t, 2000, got[0].Raggio)
	assert.Equal(t, "bar, pizzeria", got[0].Keywords)

	// The history sheet must not leak into the lead collection.
	leads, err := s.Leads("clienti.xlsx")
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestStore_SearchesEmptyWithoutHistorySheet(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)

	got, err := s.Searches("clienti.xlsx")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_PlaceIDs(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)

	leads := []model.LeadRecord{sampleLead("p0"), sampleLead("p1"), {Nome: "Senza id"}}
	require.NoError(t, s.AppendLeads("clienti.xlsx", leads))

	ids, err := s.PlaceIDs("clienti.xlsx")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p0": true, "p1": true}, ids)
}

func TestStore_LegacyWorkbookBackfill(t *testing.T) {
	dir := t.TempDir()

	// Simulate a file written before the flag columns existed, with the
	// default sheet name of the old exporter.
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	header := sheet.AddRow()
	for _, col := range []string{"Place_ID", "Nome", "Indirizzo"} {
		header.AddCell().SetString(col)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("p0")
	row.AddCell().SetString("Bar Vecchio")
	row.AddCell().SetString("Via Po 2")
	require.NoError(t, f.Save(filepath.Join(dir, "storico.xlsx")))

	s, err := New(dir, nil)
	require.NoError(t, err)

	leads, err := s.Leads("storico.xlsx")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Bar Vecchio", leads[0].Nome)
	assert.False(t, leads[0].Hide)
	assert.Empty(t, leads[0].Note)

	// Patching a missing column grows the header in place.
	require.NoError(t, s.UpdateRow("storico.xlsx", "p0", model.ActionHide, true))
	leads, err = s.Leads("storico.xlsx")
	require.NoError(t, err)
	assert.True(t, leads[0].Hide)
}

func TestStore_DeleteAndPath(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("clienti")
	require.NoError(t, err)

	path, err := s.Path("clienti.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "clienti.xlsx", filepath.Base(path))

	require.NoError(t, s.Delete("clienti.xlsx"))
	assert.ErrorIs(t, s.Delete("clienti.xlsx"), ErrNotFound)

	_, err = s.Path("clienti.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LeadsOnMissingList(t *testing.T) {
	s := newStore(t)
	_, err := s.Leads("fantasma.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}
