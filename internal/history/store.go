// Package history keeps a log of evaluated queries in SQLite, so an
// operator can check what was asked and what the simulator answered after
// the fact.
//
// The store uses modernc.org/sqlite (pure Go, no CGO) with WAL mode, the
// same driver setup the rest of our tooling uses. Pass ":memory:" as the
// path for an ephemeral store in tests.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grimm.is/tsim/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id       TEXT PRIMARY KEY,
	at       TEXT NOT NULL,
	router   TEXT NOT NULL,
	src      TEXT NOT NULL,
	sport    INTEGER NOT NULL,
	dst      TEXT NOT NULL,
	dport    INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	state    TEXT NOT NULL,
	allowed  INTEGER NOT NULL,
	reason   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS queries_at ON queries(at);
CREATE INDEX IF NOT EXISTS queries_router ON queries(router);
`

// Record is one logged query with its verdict.
type Record struct {
	ID      string
	At      time.Time
	Router  string
	Query   engine.Query
	Allowed bool
	Reason  string
}

// Store is the SQLite-backed query log. Safe for concurrent use; the
// driver serializes access and busy_timeout covers writer contention.
type Store struct {
	db    *sql.DB
	limit int
}

// Open opens or creates the store at path. limit caps retained records;
// zero or negative means unlimited.
func Open(path string, limit int) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db, limit: limit}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append logs one record, assigning an ID and timestamp when absent, and
// prunes the oldest records beyond the retention limit.
func (s *Store) Append(r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO queries (id, at, router, src, sport, dst, dport, protocol, state, allowed, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.At.UTC().Format(time.RFC3339Nano), r.Router,
		r.Query.SrcIP, r.Query.SrcPort, r.Query.DstIP, r.Query.DstPort,
		r.Query.Protocol, r.Query.State, boolInt(r.Allowed), r.Reason,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if s.limit > 0 {
		_, err = s.db.Exec(
			`DELETE FROM queries WHERE id NOT IN
			 (SELECT id FROM queries ORDER BY at DESC, id LIMIT ?)`, s.limit)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}
	return nil
}

// List returns the most recent records, newest first. router filters to
// one router when non-empty; limit caps the result (zero means all).
func (s *Store) List(limit int, router string) ([]Record, error) {
	q := `SELECT id, at, router, src, sport, dst, dport, protocol, state, allowed, reason
	      FROM queries`
	var args []any
	if router != "" {
		q += ` WHERE router = ?`
		args = append(args, router)
	}
	q += ` ORDER BY at DESC, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			at      string
			allowed int
		)
		if err := rows.Scan(&r.ID, &at, &r.Router,
			&r.Query.SrcIP, &r.Query.SrcPort, &r.Query.DstIP, &r.Query.DstPort,
			&r.Query.Protocol, &r.Query.State, &allowed, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Allowed = allowed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clear removes all records.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM queries`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Count returns the number of retained records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
