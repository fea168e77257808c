// Package index persists pipeline progress in a SQLite database: which
// monthly datasets are fully committed and how many valid games each player
// has accumulated across them.
package index

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'pending',
	finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS players (
	username    TEXT PRIMARY KEY,
	total_games INTEGER NOT NULL DEFAULT 0
);
`

// Store is the durable index. All multi-row updates happen inside a single
// transaction, so a crash never leaves a dataset half-committed.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the index database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_fk=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// The pipeline is single-writer; a second connection would only add
	// lock contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// IsDone reports whether the dataset has been fully processed and committed.
func (s *Store) IsDone(datasetID string) (bool, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM datasets WHERE id = ?`, datasetID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query dataset %s: %w", datasetID, err)
	}
	return status == "done", nil
}

// MarkDone atomically marks the dataset done and folds each player's monthly
// contribution into their cumulative total. Either everything commits or
// nothing does.
func (s *Store) MarkDone(datasetID string, contributions map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit for %s: %w", datasetID, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO datasets (id, status, finished_at) VALUES (?, 'done', CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET status = 'done', finished_at = CURRENT_TIMESTAMP`,
		datasetID)
	if err != nil {
		return fmt.Errorf("mark dataset %s done: %w", datasetID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO players (username, total_games) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET total_games = total_games + excluded.total_games`)
	if err != nil {
		return fmt.Errorf("prepare player upsert: %w", err)
	}
	defer stmt.Close()

	// Deterministic order keeps replayed transactions byte-identical.
	names := make([]string, 0, len(contributions))
	for name := range contributions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := stmt.Exec(name, contributions[name]); err != nil {
			return fmt.Errorf("upsert player %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset %s: %w", datasetID, err)
	}
	return nil
}

// PlayersBelow returns, in ascending username order, every player whose
// cumulative total is below threshold. Used by the final prune.
func (s *Store) PlayersBelow(threshold int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT username FROM players WHERE total_games < ? ORDER BY username`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query players below %d: %w", threshold, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RemovePlayer deletes a player's row. Removing an absent player is not an
// error; the prune is restartable.
func (s *Store) RemovePlayer(username string) error {
	if _, err := s.db.Exec(`DELETE FROM players WHERE username = ?`, username); err != nil {
		return fmt.Errorf("remove player %s: %w", username, err)
	}
	return nil
}

// TotalGames returns a player's cumulative count. ok is false when the
// player has no row.
func (s *Store) TotalGames(username string) (total int, ok bool, err error) {
	err = s.db.QueryRow(
		`SELECT total_games FROM players WHERE username = ?`, username).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query player %s: %w", username, err)
	}
	return total, true, nil
}

// PlayerCount returns the number of player rows.
func (s *Store) PlayerCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}
