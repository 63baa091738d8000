package places

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Cache stores resolved place details keyed by place ID, so repeated
// extractions over overlapping areas do not re-fetch the same places.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

func NewCache(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "places: open cache db")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, eris.Wrapf(err, "places: set pragma %q", p)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS places (
		place_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT,
		phone TEXT,
		website TEXT,
		rating REAL,
		categories TEXT,
		lat REAL,
		lng REAL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_places_coords ON places(lat, lng);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, eris.Wrap(err, "places: create cache schema")
	}

	return &Cache{db: db}, nil
}

// Get returns the cached place, if present and fresher than maxAge.
// maxAge <= 0 disables the freshness check.
func (c *Cache) Get(placeID string, maxAge time.Duration) (Place, bool, error) {
	var p Place
	var fetchedAt time.Time
	err := c.db.QueryRow(`
		SELECT place_id, name, address, phone, website, rating, categories, lat, lng, fetched_at
		FROM places WHERE place_id = ?`, placeID).Scan(
		&p.PlaceID, &p.Name, &p.Address, &p.Phone, &p.Website,
		&p.Rating, &p.Categories, &p.Lat, &p.Lng, &fetchedAt,
	)
	if err == sql.ErrNoRows {
		return Place{}, false, nil
	}
	if err != nil {
		return Place{}, false, eris.Wrap(err, "places: cache lookup")
	}
	if maxAge > 0 && time.Since(fetchedAt) > maxAge {
		return Place{}, false, nil
	}
	return p, true, nil
}

// Put upserts a batch of places.
func (c *Cache) Put(places ...Place) error {
	if len(places) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return eris.Wrap(err, "places: begin cache tx")
	}

	stmt, err := tx.Prepare(`
		INSERT INTO places (place_id, name, address, phone, website, rating, categories, lat, lng, fetched_at)
		VALUES (?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(place_id) DO UPDATE SET
			name=excluded.name, address=excluded.address, phone=excluded.phone,
			website=excluded.website, rating=excluded.rating, categories=excluded.categories,
			lat=excluded.lat, lng=excluded.lng, fetched_at=CURRENT_TIMESTAMP
	`)
	if err != nil {
		tx.Rollback()
		return eris.Wrap(err, "places: prepare cache upsert")
	}
	defer stmt.Close()

	for _, p := range places {
		if p.PlaceID == "" {
			continue
		}
		if _, err := stmt.Exec(
			p.PlaceID, p.Name, p.Address, p.Phone, p.Website,
			p.Rating, p.Categories, p.Lat, p.Lng,
		); err != nil {
			tx.Rollback()
			return eris.Wrap(err, "places: cache upsert")
		}
	}
	return eris.Wrap(tx.Commit(), "places: commit cache tx")
}

// Count reports the number of cached places.
func (c *Cache) Count() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM places").Scan(&n)
	return n, eris.Wrap(err, "places: cache count")
}

func (c *Cache) Close() error {
	return c.db.Close()
}
