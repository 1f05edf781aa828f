package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage stores sessions in a single SQLite database. The message
// and tool history are stored as JSON blobs; listing reads only the
// summary columns.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteStorage opens (or creates) the database at path and ensures
// the schema exists.
func OpenSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			working_dir   TEXT NOT NULL DEFAULT '',
			data          TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Save(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions
			(id, title, message_count, working_dir, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Title(),
		len(sess.Messages),
		sess.WorkingDir,
		string(data),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Error("failed to save session", "session", sess.ID, "err", err)
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Load(id string) (*Session, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM sessions WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStorage) ListSummaries() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, title, message_count, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			sum                  Summary
			createdAt, updatedAt string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.MessageCount, &createdAt, &updatedAt); err != nil {
			s.logger.Warn("failed to scan session row, skipping", "err", err)
			continue
		}
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStorage) Delete(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
