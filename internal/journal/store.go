// Package journal keeps a history of companion sessions, their turns and
// the crisis alerts raised in them.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 500

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("journal: not found")

// Store persists journal data to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL at connStr and applies pending migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	if err = db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`).Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session and prunes the oldest beyond maxSessions.
func (s *Store) CreateSession(id, metadata string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, metadata, started_at) VALUES ($1, $2, $3)`,
		id, metadata, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

// EndSession sets the ended_at timestamp.
func (s *Store) EndSession(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET ended_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	return err
}

func (s *Store) InsertTurn(t Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO turns (id, session_id, created_at, text, emotion, score, outcome, reply, latency_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.SessionID, t.CreatedAt.UTC(), t.Text, t.Emotion, t.Score, t.Outcome, t.Reply, t.LatencyMs,
	)
	return err
}

func (s *Store) InsertSignal(sg Signal) error {
	_, err := s.db.Exec(
		`INSERT INTO signals (id, session_id, raised_at, kind, detail, emotion, score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sg.ID, sg.SessionID, sg.RaisedAt.UTC(), sg.Kind, sg.Detail, sg.Emotion, sg.Score,
	)
	return err
}

// ListSessions returns sessions newest first with turn and signal counts.
func (s *Store) ListSessions(limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT s.id, s.metadata, s.started_at, s.ended_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id),
		       (SELECT COUNT(*) FROM signals g WHERE g.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var endedAt sql.NullTime
		if err = rows.Scan(&sess.ID, &sess.Metadata, &sess.StartedAt, &endedAt, &sess.TurnCount, &sess.SignalCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns one session with its turns and signals in time order.
func (s *Store) GetSession(id string) (*Session, []Turn, []Signal, error) {
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, metadata, started_at, ended_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Metadata, &sess.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	turns, err := s.turns(id)
	if err != nil {
		return nil, nil, nil, err
	}
	signals, err := s.signals(id)
	if err != nil {
		return nil, nil, nil, err
	}
	sess.TurnCount, sess.SignalCount = len(turns), len(signals)
	return &sess, turns, signals, nil
}

func (s *Store) turns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, created_at, text, emotion, score, outcome, reply, latency_ms
		FROM turns WHERE session_id = $1 ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Turn{}
	for rows.Next() {
		var t Turn
		if err = rows.Scan(&t.ID, &t.SessionID, &t.CreatedAt, &t.Text, &t.Emotion, &t.Score, &t.Outcome, &t.Reply, &t.LatencyMs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) signals(sessionID string) ([]Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, raised_at, kind, detail, emotion, score
		FROM signals WHERE session_id = $1 ORDER BY raised_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Signal{}
	for rows.Next() {
		var sg Signal
		if err = rows.Scan(&sg.ID, &sg.SessionID, &sg.RaisedAt, &sg.Kind, &sg.Detail, &sg.Emotion, &sg.Score); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}
