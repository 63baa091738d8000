// Package liststore persists lead lists as xlsx workbooks, one file per
// list. Each workbook has a main sheet with the lead rows and an
// optional "_ricerche" sheet recording past extraction runs.
package liststore

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/rendis/leadtap/internal/model"
)

const (
	leadsSheet   = "Leads"
	historySheet = "_ricerche"
)

var historyColumns = []string{"Lat", "Lng", "Raggio", "Keywords", "Data"}

var (
	ErrNotFound = errors.New("list not found")
	ErrExists   = errors.New("list already exists")
	ErrBadName  = errors.New("invalid list name")
	ErrNoRow    = errors.New("row not found")
)

// Store manages the workbooks under one directory. Mutations are
// read-modify-write on the whole file, serialized by a single mutex;
// lists are small enough that this is not a bottleneck.
type Store struct {
	dir string
	mu  sync.Mutex
	log *zap.Logger
}

func New(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "liststore: create directory")
	}
	return &Store{dir: dir, log: log}, nil
}

// Create makes an empty list and returns its filename. A missing .xlsx
// extension is appended.
func (s *Store) Create(name string) (string, error) {
	filename, err := normalizeName(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err == nil {
		return "", ErrExists
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(leadsSheet)
	if err != nil {
		return "", eris.Wrap(err, "liststore: add sheet")
	}
	writeHeader(sheet, model.Columns)

	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "liststore: save new list")
	}
	s.log.Info("list created", zap.String("file", filename))
	return filename, nil
}

// List returns the list filenames, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrap(err, "liststore: read directory")
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".xlsx") || strings.HasPrefix(name, "~$") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Delete(name string) error {
	filename, err := normalizeName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		return eris.Wrap(err, "liststore: delete list")
	}
	s.log.Info("list deleted", zap.String("file", filename))
	return nil
}

// Path resolves the on-disk path of a list, for streaming downloads.
func (s *Store) Path(name string) (string, error) {
	filename, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// Leads reads the full lead collection of a list. Columns added after a
// file was created are backfilled with zero values, so legacy workbooks
// stay readable.
func (s *Store) Leads(name string) ([]model.LeadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, _, err := s.open(name)
	if err != nil {
		return nil, err
	}
	sheet := mainSheet(f)
	if sheet == nil || len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols := headerIndex(sheet.Rows[0])
	var leads []model.LeadRecord
	for _, row := range sheet.Rows[1:] {
		if rowEmpty(row) {
			continue
		}
		leads = append(leads, readLead(row, cols))
	}
	return leads, nil
}

// PlaceIDs returns the set of Place_IDs already present, for dedup.
func (s *Store) PlaceIDs(name string) (map[string]bool, error) {
	leads, err := s.Leads(name)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(leads))
	for _, l := range leads {
		if l.PlaceID != "" {
			ids[l.PlaceID] = true
		}
	}
	return ids, nil
}

// AppendLeads adds rows to the main sheet. Callers dedup beforehand.
func (s *Store) AppendLeads(name string, leads []model.LeadRecord) error {
	if len(leads) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, path, err := s.open(name)
	if err != nil {
		return err
	}
	sheet := mainSheet(f)
	if sheet == nil {
		if sheet, err = f.AddSheet(leadsSheet); err != nil {
			return eris.Wrap(err, "liststore: add sheet")
		}
		writeHeader(sheet, model.Columns)
	}
	if len(sheet.Rows) == 0 {
		writeHeader(sheet, model.Columns)
	}

	cols := headerIndex(sheet.Rows[0])
	for _, lead := range leads {
		writeLead(sheet.AddRow(), cols, lead)
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "liststore: save appended leads")
	}
	return nil
}

// UpdateRow sets one boolean flag on the row matching placeID.
func (s *Store) UpdateRow(name, placeID string, action model.RowAction, value bool) error {
	column := map[model.RowAction]string{
		model.ActionHide:       "Hide",
		model.ActionCall:       "Call",
		model.ActionInterested: "Interested",
	}[action]
	if column == "" {
		return eris.Errorf("liststore: unknown action %q", action)
	}
	return s.setCell(name, placeID, column, boolCell(value))
}

// UpdateNote sets the Note column on the row matching placeID.
func (s *Store) UpdateNote(name, placeID, note string) error {
	return s.setCell(name, placeID, "Note", note)
}

// Searches reads the extraction history, newest entry last.
func (s *Store) Searches(name string) ([]model.SearchHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, _, err := s.open(name)
	if err != nil {
		return nil, err
	}
	sheet, ok := f.Sheet[historySheet]
	if !ok || len(sheet.Rows) < 2 {
		return nil, nil
	}

	cols := headerIndex(sheet.Rows[0])
	at := func(name string) int {
		if i, ok := cols[name]; ok {
			return i
		}
		return -1
	}
	var entries []model.SearchHistoryEntry
	for _, row := range sheet.Rows[1:] {
		if rowEmpty(row) {
			continue
		}
		entries = append(entries, model.SearchHistoryEntry{
			Lat:      cellFloat(row, at("Lat")),
			Lng:      cellFloat(row, at("Lng")),
			Raggio:   int(cellFloat(row, at("Raggio"))),
			Keywords: cellString(row, at("Keywords")),
			Data:     cellString(row, at("Data")),
		})
	}
	return entries, nil
}

// AppendSearch records one extraction run in the history sheet, creating
// it on first use. The main sheet is untouched.
func (s *Store) AppendSearch(name string, entry model.SearchHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, path, err := s.open(name)
	if err != nil {
		return err
	}
	sheet, ok := f.Sheet[historySheet]
	if !ok {
		if sheet, err = f.AddSheet(historySheet); err != nil {
			return eris.Wrap(err, "liststore: add history sheet")
		}
		writeHeader(sheet, historyColumns)
	}

	row := sheet.AddRow()
	row.AddCell().SetFloat(entry.Lat)
	row.AddCell().SetFloat(entry.Lng)
	row.AddCell().SetInt(entry.Raggio)
	row.AddCell().SetString(entry.Keywords)
	row.AddCell().SetString(entry.Data)

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "liststore: save history")
	}
	return nil
}

func (s *Store) setCell(name, placeID, column, value string) error {
	if strings.TrimSpace(placeID) == "" {
		return ErrNoRow
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, path, err := s.open(name)
	if err != nil {
		return err
	}
	sheet := mainSheet(f)
	if sheet == nil || len(sheet.Rows) < 2 {
		return ErrNoRow
	}

	cols := headerIndex(sheet.Rows[0])
	colIdx, ok := cols[column]
	if !ok {
		// Legacy workbook without the column: add it to the header.
		colIdx = len(sheet.Rows[0].Cells)
		sheet.Rows[0].AddCell().SetString(column)
	}
	idIdx, ok := cols["Place_ID"]
	if !ok {
		return ErrNoRow
	}

	for _, row := range sheet.Rows[1:] {
		if cellString(row, idIdx) != placeID {
			continue
		}
		for len(row.Cells) <= colIdx {
			row.AddCell()
		}
		row.Cells[colIdx].SetString(value)
		if err := f.Save(path); err != nil {
			return eris.Wrap(err, "liststore: save cell update")
		}
		return nil
	}
	return ErrNoRow
}

// open loads a workbook; callers hold s.mu.
func (s *Store) open(name string) (*xlsx.File, string, error) {
	filename, err := normalizeName(name)
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return nil, "", ErrNotFound
	}
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, "", eris.Wrap(err, "liststore: open workbook")
	}
	return f, path, nil
}

// mainSheet picks the lead sheet: by name if present, otherwise the
// first sheet that is not the history sheet (legacy files used pandas'
// default sheet name).
func mainSheet(f *xlsx.File) *xlsx.Sheet {
	if sheet, ok := f.Sheet[leadsSheet]; ok {
		return sheet
	}
	for _, sheet := range f.Sheets {
		if sheet.Name != historySheet {
			return sheet
		}
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", ErrBadName
	}
	if !strings.HasSuffix(name, ".xlsx") {
		name += ".xlsx"
	}
	return name, nil
}

func writeHeader(sheet *xlsx.Sheet, columns []string) {
	row := sheet.AddRow()
	for _, col := range columns {
		row.AddCell().SetString(col)
	}
}

func headerIndex(row *xlsx.Row) map[string]int {
	idx := make(map[string]int, len(row.Cells))
	for i, cell := range row.Cells {
		idx[strings.TrimSpace(cell.String())] = i
	}
	return idx
}

func readLead(row *xlsx.Row, cols map[string]int) model.LeadRecord {
	get := func(col string) string {
		i, ok := cols[col]
		if !ok {
			return ""
		}
		return cellString(row, i)
	}
	return model.LeadRecord{
		PlaceID:    get("Place_ID"),
		Nome:       get("Nome"),
		Indirizzo:  get("Indirizzo"),
		Telefono:   get("Telefono"),
		SitoWeb:    get("Sito Web"),
		Rating:     get("Rating"),
		Categorie:  get("Categorie"),
		Keyword:    get("Keyword Ricerca"),
		Estrazione: get("Data Estrazione"),
		Hide:       parseBool(get("Hide")),
		Call:       parseBool(get("Call")),
		Interested: parseBool(get("Interested")),
		Note:       get("Note"),
	}
}

func writeLead(row *xlsx.Row, cols map[string]int, lead model.LeadRecord) {
	width := len(cols)
	for len(row.Cells) < width {
		row.AddCell()
	}
	set := func(col, value string) {
		if i, ok := cols[col]; ok {
			row.Cells[i].SetString(value)
		}
	}
	set("Place_ID", lead.PlaceID)
	set("Nome", lead.Nome)
	set("Indirizzo", lead.Indirizzo)
	set("Telefono", lead.Telefono)
	set("Sito Web", lead.SitoWeb)
	set("Rating", lead.Rating)
	set("Categorie", lead.Categorie)
	set("Keyword Ricerca", lead.Keyword)
	set("Data Estrazione", lead.Estrazione)
	set("Hide", boolCell(lead.Hide))
	set("Call", boolCell(lead.Call))
	set("Interested", boolCell(lead.Interested))
	set("Note", lead.Note)
}

func cellString(row *xlsx.Row, i int) string {
	if i < 0 || i >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[i].String())
}

func cellFloat(row *xlsx.Row, i int) float64 {
	if i < 0 || i >= len(row.Cells) {
		return 0
	}
	f, err := row.Cells[i].Float()
	if err != nil {
		return 0
	}
	return f
}

func rowEmpty(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}

// Booleans are stored as text so legacy files written by other tools
// keep round-tripping.
func boolCell(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "vero", "1", "1.0":
		return true
	}
	return false
}
