// Package catalog persists the track feature catalog in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/okian/attune/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	genre TEXT NOT NULL,
	era INTEGER NOT NULL,
	energy REAL NOT NULL,
	valence REAL NOT NULL,
	tempo REAL NOT NULL,
	acousticness REAL NOT NULL,
	danceability REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracks_genre ON tracks(genre);
`

// SQLiteStore reads and writes catalog tracks.
type SQLiteStore struct {
	db *sql.DB
}

// Open connects to the database at path and applies the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite catalog: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite catalog: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert writes tracks in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, tracks []model.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (id, title, artist, genre, era, energy, valence, tempo, acousticness, danceability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			genre = excluded.genre,
			era = excluded.era,
			energy = excluded.energy,
			valence = excluded.valence,
			tempo = excluded.tempo,
			acousticness = excluded.acousticness,
			danceability = excluded.danceability
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare catalog upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		f := t.Features
		if _, err := stmt.ExecContext(ctx, t.ID, t.Title, t.Artist, f.Genre, f.Era,
			f.Energy, f.Valence, f.Tempo, f.Acousticness, f.Danceability); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert track %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

// LoadTracks returns every track ordered by id.
func (s *SQLiteStore) LoadTracks(ctx context.Context) ([]model.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, artist, genre, era, energy, valence, tempo, acousticness, danceability
		FROM tracks ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []model.Track
	for rows.Next() {
		var t model.Track
		f := &t.Features
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &f.Genre, &f.Era,
			&f.Energy, &f.Valence, &f.Tempo, &f.Acousticness, &f.Danceability); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return tracks, nil
}

// Count returns the number of stored tracks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}
