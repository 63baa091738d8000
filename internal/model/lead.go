package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractionTimeLayout is the display format used for the "Data Estrazione"
// column, both in the xlsx lists and on the wire.
const ExtractionTimeLayout = "02/01/2006 15:04:05"

// RowAction identifies the boolean lead flags that can be patched row-wise.
type RowAction string

const (
	ActionHide       RowAction = "hide"
	ActionCall       RowAction = "call"
	ActionInterested RowAction = "interested"
)

// ValidAction reports whether s names a patchable flag.
func ValidAction(s string) bool {
	switch RowAction(s) {
	case ActionHide, ActionCall, ActionInterested:
		return true
	}
	return false
}

// LeadRecord is one curated lead row. The column names are the historical
// sheet headers (Italian, some with spaces) and are part of the wire
// contract, so JSON mapping is done by hand below: encoding/json ignores
// struct tag names containing spaces.
type LeadRecord struct {
	PlaceID    string // "Place_ID"; may be empty on legacy rows
	Nome       string
	Indirizzo  string
	Telefono   string
	SitoWeb    string // "Sito Web"
	Rating     string // numeric or empty in legacy files, kept as text
	Categorie  string
	Keyword    string // "Keyword Ricerca"
	Estrazione string // "Data Estrazione", ExtractionTimeLayout
	Hide       bool
	Call       bool
	Interested bool
	Note       string
}

// Columns is the canonical column order of a lead sheet.
var Columns = []string{
	"Place_ID", "Nome", "Indirizzo", "Telefono", "Sito Web", "Rating",
	"Categorie", "Keyword Ricerca", "Data Estrazione",
	"Hide", "Call", "Interested", "Note",
}

func (r LeadRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"Place_ID":        r.PlaceID,
		"Nome":            r.Nome,
		"Indirizzo":       r.Indirizzo,
		"Telefono":        r.Telefono,
		"Sito Web":        r.SitoWeb,
		"Rating":          r.Rating,
		"Categorie":       r.Categorie,
		"Keyword Ricerca": r.Keyword,
		"Data Estrazione": r.Estrazione,
		"Hide":            r.Hide,
		"Call":            r.Call,
		"Interested":      r.Interested,
		"Note":            r.Note,
	})
}

func (r *LeadRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.PlaceID = jsonString(raw["Place_ID"])
	r.Nome = jsonString(raw["Nome"])
	r.Indirizzo = jsonString(raw["Indirizzo"])
	r.Telefono = jsonString(raw["Telefono"])
	r.SitoWeb = jsonString(raw["Sito Web"])
	r.Rating = jsonString(raw["Rating"])
	r.Categorie = jsonString(raw["Categorie"])
	r.Keyword = jsonString(raw["Keyword Ricerca"])
	r.Estrazione = jsonString(raw["Data Estrazione"])
	r.Hide = jsonBool(raw["Hide"])
	r.Call = jsonBool(raw["Call"])
	r.Interested = jsonBool(raw["Interested"])
	r.Note = jsonString(raw["Note"])
	return nil
}

// Field returns the record's value for a canonical column name as a string.
// Unknown columns yield "".
func (r LeadRecord) Field(column string) string {
	switch column {
	case "Place_ID":
		return r.PlaceID
	case "Nome":
		return r.Nome
	case "Indirizzo":
		return r.Indirizzo
	case "Telefono":
		return r.Telefono
	case "Sito Web":
		return r.SitoWeb
	case "Rating":
		return r.Rating
	case "Categorie":
		return r.Categorie
	case "Keyword Ricerca":
		return r.Keyword
	case "Data Estrazione":
		return r.Estrazione
	case "Hide":
		return strconv.FormatBool(r.Hide)
	case "Call":
		return strconv.FormatBool(r.Call)
	case "Interested":
		return strconv.FormatBool(r.Interested)
	case "Note":
		return r.Note
	}
	return ""
}

// jsonString tolerates the heterogeneous cells that come out of old sheets:
// strings, numbers, booleans, or null.
func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

func jsonBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "vero", "1":
			return true
		}
		return false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0
	}
	return false
}

// SearchHistoryEntry is one appended row of the "_ricerche" sheet: a past
// extraction run. Read-only outside the list store.
type SearchHistoryEntry struct {
	Lat      float64 `json:"Lat"`
	Lng      float64 `json:"Lng"`
	Raggio   int     `json:"Raggio"`
	Keywords string  `json:"Keywords"`
	Data     string  `json:"Data"`
}

// ExtractParams holds the operator's input for one extraction run.
type ExtractParams struct {
	City     string // place name, or a literal "lat, lng" pair
	Radius   int    // meters
	GridStep int    // meters
	Keywords []string
	ListName string
}

// Validate reports the first missing required field, matching the backend's
// pre-flight checks so the UI can block locally before any request is sent.
func (p ExtractParams) Validate() string {
	if strings.TrimSpace(p.City) == "" {
		return "city is required"
	}
	if p.Radius <= 0 {
		return "radius must be positive"
	}
	if p.GridStep <= 0 {
		return "grid step must be positive"
	}
	if len(p.Keywords) == 0 {
		return "at least one keyword is required"
	}
	if strings.TrimSpace(p.ListName) == "" {
		return "target list is required"
	}
	return ""
}
