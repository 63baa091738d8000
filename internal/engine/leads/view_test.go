package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/leadtap/internal/model"
)

func viewFixture() []model.LeadRecord {
	return []model.LeadRecord{
		{PlaceID: "p0", Nome: "Caffè Noir", Keyword: "bar", Estrazione: "10/03/2026 09:15:00", Call: true},
		{PlaceID: "p1", Nome: "Pizzeria Vesuvio", Keyword: "pizzeria", Estrazione: "11/03/2026 18:00:00", Note: "chiuso il lunedì"},
		{PlaceID: "p2", Nome: "Bar Sport", Keyword: "bar", Estrazione: "non una data", Hide: true},
		{PlaceID: "p3", Nome: "Trattoria al Ponte", Keyword: "ristorante", Estrazione: "09/03/2026 12:30:00", Interested: true},
	}
}

func TestApplyView_HiddenExcludedByDefault(t *testing.T) {
	records := []model.LeadRecord{
		{PlaceID: "a", Nome: "Primo"},
		{PlaceID: "b", Nome: "Secondo", Hide: true},
		{PlaceID: "c", Nome: "Terzo"},
	}
	view := ApplyView(records, FilterState{ShowHidden: false}, SortState{})

	require.Len(t, view, 2)
	// Stability: original relative order preserved.
	assert.Equal(t, "a", view[0].PlaceID)
	assert.Equal(t, "c", view[1].PlaceID)
}

func TestApplyView_ShowHiddenSelectsHiddenRows(t *testing.T) {
	view := ApplyView(viewFixture(), FilterState{ShowHidden: true}, SortState{})
	require.Len(t, view, 1)
	assert.Equal(t, "p2", view[0].PlaceID)
}

func TestApplyView_NameFilterIsAccentAndCaseInsensitive(t *testing.T) {
	view := ApplyView(viewFixture(), FilterState{Name: "caffe"}, SortState{})
	require.Len(t, view, 1)
	assert.Equal(t, "Caffè Noir", view[0].Nome)
}

func TestApplyView_TriStateDimensions(t *testing.T) {
	fixture := viewFixture()

	contacted := ApplyView(fixture, FilterState{Contacted: TriYes}, SortState{})
	require.Len(t, contacted, 1)
	assert.Equal(t, "p0", contacted[0].PlaceID)

	notInterested := ApplyView(fixture, FilterState{Interested: TriNo}, SortState{})
	for _, r := range notInterested {
		assert.False(t, r.Interested)
	}

	withNote := ApplyView(fixture, FilterState{HasNote: TriYes}, SortState{})
	require.Len(t, withNote, 1)
	assert.Equal(t, "p1", withNote[0].PlaceID)
}

func TestApplyView_KeywordDimensionIsDisjunctive(t *testing.T) {
	view := ApplyView(viewFixture(), FilterState{
		Keywords: map[string]bool{"bar": true, "ristorante": true},
	}, SortState{})

	require.Len(t, view, 2) // p2 is hidden, so only p0 and p3
	assert.Equal(t, "p0", view[0].PlaceID)
	assert.Equal(t, "p3", view[1].PlaceID)

	// Empty set means no keyword restriction.
	all := ApplyView(viewFixture(), FilterState{}, SortState{})
	assert.Len(t, all, 3)
}

func TestApplyView_DimensionsCompose(t *testing.T) {
	view := ApplyView(viewFixture(), FilterState{
		Name:     "bar",
		Keywords: map[string]bool{"bar": true},
	}, SortState{})
	// "Bar Sport" matches both dimensions but is hidden.
	assert.Empty(t, view)
}

func TestApplyView_SortTimestampDescending(t *testing.T) {
	view := ApplyView(viewFixture(), FilterState{}, SortState{Field: SortFieldTimestamp, Desc: true})

	require.Len(t, view, 3)
	assert.Equal(t, "p1", view[0].PlaceID) // latest valid timestamp first
	assert.Equal(t, "p0", view[1].PlaceID)
	assert.Equal(t, "p3", view[2].PlaceID)
}

func TestApplyView_UnparseableTimestampSinks(t *testing.T) {
	fixture := viewFixture()
	fixture[2].Hide = false // keep the malformed row visible

	desc := ApplyView(fixture, FilterState{}, SortState{Field: SortFieldTimestamp, Desc: true})
	require.Len(t, desc, 4)
	assert.Equal(t, "p2", desc[3].PlaceID, "malformed timestamp must be last when descending")

	asc := ApplyView(fixture, FilterState{}, SortState{Field: SortFieldTimestamp, Desc: false})
	assert.Equal(t, "p2", asc[0].PlaceID, "malformed timestamp must be first when ascending")
}

func TestApplyView_LexicographicSortCaseInsensitive(t *testing.T) {
	records := []model.LeadRecord{
		{PlaceID: "a", Nome: "zurigo"},
		{PlaceID: "b", Nome: "Arezzo"},
		{PlaceID: "c", Nome: "milano"},
	}
	view := ApplyView(records, FilterState{}, SortState{Field: "Nome"})
	require.Len(t, view, 3)
	assert.Equal(t, []string{"Arezzo", "milano", "zurigo"}, []string{view[0].Nome, view[1].Nome, view[2].Nome})
}

func TestApplyView_MissingFieldSortsAsEmpty(t *testing.T) {
	records := []model.LeadRecord{
		{PlaceID: "a", Indirizzo: "Via Roma 1"},
		{PlaceID: "b"},
	}
	view := ApplyView(records, FilterState{}, SortState{Field: "Indirizzo"})
	assert.Equal(t, "b", view[0].PlaceID)
}

func TestApplyView_InputNotMutated(t *testing.T) {
	records := viewFixture()
	_ = ApplyView(records, FilterState{}, SortState{Field: "Nome", Desc: true})
	assert.Equal(t, "p0", records[0].PlaceID)
	assert.Equal(t, "p3", records[3].PlaceID)
}

func TestSortState_Toggle(t *testing.T) {
	var s SortState

	s = s.Toggle("Nome")
	assert.Equal(t, SortState{Field: "Nome", Desc: false}, s, "new non-timestamp field defaults ascending")

	s = s.Toggle("Nome")
	assert.True(t, s.Desc, "same field flips direction")

	s = s.Toggle(SortFieldTimestamp)
	assert.Equal(t, SortState{Field: SortFieldTimestamp, Desc: true}, s, "timestamp field defaults descending")
}

func TestTriState_Cycle(t *testing.T) {
	assert.Equal(t, TriYes, TriAny.Next())
	assert.Equal(t, TriNo, TriYes.Next())
	assert.Equal(t, TriAny, TriNo.Next())
}
