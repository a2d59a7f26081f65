package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrInvalidProgress is returned when a commit would move the cursor to a
// lower ledger than the one already recorded. It signals a bug or an
// out-of-order fetch and must stop ingestion rather than be retried.
var ErrInvalidProgress = errors.New("cursor regression")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// Split schema into individual statements and execute each
	statements := strings.Split(schemaSQL, ";")
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// Cursor returns the current resume bookmark. The singleton row is seeded
// during migration, so this succeeds on a fresh database.
func (db *DB) Cursor() (Cursor, error) {
	var cur Cursor
	err := db.conn.QueryRow(`SELECT last_ledger, last_cursor FROM indexer_cursor WHERE id = 1`).
		Scan(&cur.LastLedger, &cur.LastCursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("reading cursor: %w", err)
	}
	return cur, nil
}

// CommitBatch durably stores a batch of events and advances the cursor in a
// single transaction. Either both the rows and the new bookmark are visible
// afterwards, or neither is. Events already present under the
// (contract_id, tx_hash, event_type, ledger) key are ignored; the returned
// count is the number of rows actually inserted.
//
// Moving the cursor backwards fails with ErrInvalidProgress and leaves the
// store untouched.
func (db *DB) CommitBatch(events []*Event, cur Cursor) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning commit: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range events {
		res, err := tx.Exec(`
			INSERT OR IGNORE INTO events
				(event_type, project_id, actor, amount, ledger, timestamp, contract_id, tx_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.EventType, e.ProjectID, e.Actor, e.Amount, e.Ledger, e.Timestamp, e.ContractID, e.TxHash)
		if err != nil {
			return 0, fmt.Errorf("inserting event (ledger %d): %w", e.Ledger, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := advanceCursor(tx, cur); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}
	return inserted, nil
}

// advanceCursor overwrites the singleton row inside the commit transaction.
// The guard keeps last_ledger monotonic: zero rows affected means the caller
// tried to move backwards.
func advanceCursor(tx *sql.Tx, cur Cursor) error {
	res, err := tx.Exec(`
		UPDATE indexer_cursor SET last_ledger = ?, last_cursor = ?
		WHERE id = 1 AND last_ledger <= ?
	`, cur.LastLedger, cur.LastCursor, cur.LastLedger)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: attempted ledger %d", ErrInvalidProgress, cur.LastLedger)
	}
	return nil
}

// HasEvent reports whether an event with the given duplicate-suppression key
// is already stored.
func (db *DB) HasEvent(contractID, txHash, eventType string, ledger uint32) (bool, error) {
	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM events
		WHERE contract_id = ? AND tx_hash = ? AND event_type = ? AND ledger = ?
	`, contractID, txHash, eventType, ledger).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const eventColumns = `id, event_type, project_id, actor, amount, ledger, timestamp, contract_id, tx_hash, created_at`

// EventsByProject returns all events for a project, ordered by id ascending.
func (db *DB) EventsByProject(projectID string, limit int) ([]Event, error) {
	return db.QueryEvents(EventFilter{ProjectID: &projectID, Limit: limit})
}

// EventsByType returns all events of a given kind, ordered by id ascending.
func (db *DB) EventsByType(eventType string, limit int) ([]Event, error) {
	return db.QueryEvents(EventFilter{EventType: &eventType, Limit: limit})
}

// EventsByLedgerRange returns events with lo <= ledger <= hi, ordered by id
// ascending.
func (db *DB) EventsByLedgerRange(lo, hi uint32, limit int) ([]Event, error) {
	return db.QueryEvents(EventFilter{StartLedger: &lo, EndLedger: &hi, Limit: limit})
}

// QueryEvents runs a filtered read over the event log.
func (db *DB) QueryEvents(f EventFilter) ([]Event, error) {
	var conditions []string
	var args []interface{}

	if f.ProjectID != nil {
		conditions = append(conditions, "project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.EventType != nil {
		conditions = append(conditions, "event_type = ?")
		args = append(args, *f.EventType)
	}
	if f.StartLedger != nil {
		conditions = append(conditions, "ledger >= ?")
		args = append(args, *f.StartLedger)
	}
	if f.EndLedger != nil {
		conditions = append(conditions, "ledger <= ?")
		args = append(args, *f.EndLedger)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.ProjectID, &e.Actor, &e.Amount,
			&e.Ledger, &e.Timestamp, &e.ContractID, &e.TxHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the total number of stored events.
func (db *DB) CountEvents() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}
