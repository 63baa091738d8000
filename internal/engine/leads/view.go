package leads

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/leadtap/internal/model"
)

// TriState is a three-valued filter dimension: no restriction, must be
// set, must be unset.
type TriState int

const (
	TriAny TriState = iota
	TriYes
	TriNo
)

func (t TriState) Match(v bool) bool {
	switch t {
	case TriYes:
		return v
	case TriNo:
		return !v
	}
	return true
}

// Next cycles any → yes → no → any, for UI toggles.
func (t TriState) Next() TriState {
	return (t + 1) % 3
}

func (t TriState) String() string {
	switch t {
	case TriYes:
		return "yes"
	case TriNo:
		return "no"
	}
	return "any"
}

// FilterState is the conjunctive predicate set applied to a lead
// collection. Dimensions AND together; the keyword set is an OR within
// its own dimension (empty set means no keyword restriction).
type FilterState struct {
	ShowHidden bool
	Name       string
	Contacted  TriState // Call flag
	Interested TriState
	HasNote    TriState
	Keywords   map[string]bool
}

// Match reports whether a record passes every filter dimension.
func (f FilterState) Match(r model.LeadRecord) bool {
	if r.Hide != f.ShowHidden {
		return false
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		if !strings.Contains(normalize(r.Nome), normalize(name)) {
			return false
		}
	}
	if !f.Contacted.Match(r.Call) {
		return false
	}
	if !f.Interested.Match(r.Interested) {
		return false
	}
	if !f.HasNote.Match(strings.TrimSpace(r.Note) != "") {
		return false
	}
	if len(f.Keywords) > 0 && !f.Keywords[r.Keyword] {
		return false
	}
	return true
}

// SortFieldTimestamp is the only column compared chronologically instead
// of lexicographically.
const SortFieldTimestamp = "Data Estrazione"

// SortState is a sort key plus direction. The zero value means "keep
// insertion order".
type SortState struct {
	Field string
	Desc  bool
}

// Toggle returns the state after the user picks a column: the same column
// flips direction, a new column starts descending for the extraction
// timestamp (newest first) and ascending for everything else.
func (s SortState) Toggle(field string) SortState {
	if s.Field == field {
		return SortState{Field: field, Desc: !s.Desc}
	}
	return SortState{Field: field, Desc: field == SortFieldTimestamp}
}

// ApplyView derives the display ordering: filter, then stable sort. The
// input is never mutated.
func ApplyView(records []model.LeadRecord, f FilterState, s SortState) []model.LeadRecord {
	var view []model.LeadRecord
	for _, r := range records {
		if f.Match(r) {
			view = append(view, r)
		}
	}

	if s.Field == "" {
		return view
	}

	less := fieldLess(s.Field)
	sort.SliceStable(view, func(i, j int) bool {
		if s.Desc {
			return less(view[j], view[i])
		}
		return less(view[i], view[j])
	})
	return view
}

func fieldLess(field string) func(a, b model.LeadRecord) bool {
	if field == SortFieldTimestamp {
		return func(a, b model.LeadRecord) bool {
			return parseExtractionTime(a.Estrazione).Before(parseExtractionTime(b.Estrazione))
		}
	}
	return func(a, b model.LeadRecord) bool {
		return strings.ToLower(a.Field(field)) < strings.ToLower(b.Field(field))
	}
}

// parseExtractionTime turns the display-formatted timestamp into a
// comparable instant. Unparseable values collapse to the epoch so they
// sink to the old end instead of breaking the sort.
func parseExtractionTime(s string) time.Time {
	t, err := time.Parse(model.ExtractionTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Unix(0, 0)
	}
	return t
}

// normalize strips accents and lowercases for fuzzy name matching.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, _ := transform.String(t, strings.ToLower(s))
	return result
}
