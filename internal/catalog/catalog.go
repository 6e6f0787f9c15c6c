// Package catalog persists durable satellite identity in SQLite,
// independent of whichever TLE dataset happens to be loaded in memory
// right now. Grounded on Rakagami-orbit_scraper's use of database/sql
// plus github.com/mattn/go-sqlite3.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/star/stargo/internal/tle"
)

// Entry is one satellite's durable identity record.
type Entry struct {
	NORADID      int
	Name         string
	Constellation string
	FirstSeen    time.Time
	LastSeen     time.Time
	DatasetCount int
}

// Store is a SQLite-backed catalog of satellite identities.
type Store struct {
	db *sql.DB
}

const schema = `
create table if not exists satellites (
	norad_id      integer primary key,
	name          text not null,
	constellation text not null default '',
	first_seen    datetime not null,
	last_seen     datetime not null,
	dataset_count integer not null default 0
);
`

// Open creates or opens the catalog database at path and ensures its
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to catalog database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// constellationOf guesses a constellation label from a satellite's common
// name (e.g. "STARLINK-1007" -> "STARLINK"), the same convention
// Rakagami-orbit_scraper groups satellites by. Names with no recognizable
// separator fall back to the full name.
func constellationOf(name string) string {
	for i, r := range name {
		if r == '-' && i > 0 {
			return name[:i]
		}
	}
	return name
}

// Upsert records every entry as seen now: new satellites get a fresh
// first_seen/last_seen, known ones get last_seen bumped and dataset_count
// incremented. All entries are written in a single transaction so a
// partial dataset never lands half-committed.
func (s *Store) Upsert(entries []tle.TLEEntry, seenAt time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning catalog transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		insert into satellites (norad_id, name, constellation, first_seen, last_seen, dataset_count)
		values (?, ?, ?, ?, ?, 1)
		on conflict(norad_id) do update set
			name = excluded.name,
			constellation = excluded.constellation,
			last_seen = excluded.last_seen,
			dataset_count = dataset_count + 1
	`)
	if err != nil {
		return fmt.Errorf("preparing catalog upsert: %w", err)
	}
	defer stmt.Close()

	seenAtStr := seenAt.UTC().Format(time.RFC3339)
	for _, e := range entries {
		if _, err := stmt.Exec(e.NORADID, e.Name, constellationOf(e.Name), seenAtStr, seenAtStr); err != nil {
			return fmt.Errorf("upserting NORAD %d: %w", e.NORADID, err)
		}
	}

	return tx.Commit()
}

// Get returns the catalog entry for a NORAD ID, or false if it has never
// been seen.
func (s *Store) Get(noradID int) (Entry, bool, error) {
	row := s.db.QueryRow(`
		select norad_id, name, constellation, first_seen, last_seen, dataset_count
		from satellites where norad_id = ?
	`, noradID)

	var e Entry
	var firstSeen, lastSeen string
	if err := row.Scan(&e.NORADID, &e.Name, &e.Constellation, &firstSeen, &lastSeen, &e.DatasetCount); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("querying catalog for NORAD %d: %w", noradID, err)
	}
	e.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
	e.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	return e, true, nil
}

// List returns every catalog entry, ordered by NORAD ID.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
		select norad_id, name, constellation, first_seen, last_seen, dataset_count
		from satellites order by norad_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var firstSeen, lastSeen string
		if err := rows.Scan(&e.NORADID, &e.Name, &e.Constellation, &firstSeen, &lastSeen, &e.DatasetCount); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		e.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
		e.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog rows: %w", err)
	}
	return entries, nil
}

// Count returns the number of distinct satellites recorded in the catalog.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`select count(*) from satellites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting catalog entries: %w", err)
	}
	return n, nil
}
