package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/history"
	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite"
)

const scopeName = "github.com/koscakluka/ema-voice/core/history/sqlite"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

// Store persists conversation history in a SQLite database. Each Store
// reads and writes a single session.
type Store struct {
	db        *sql.DB
	sessionID string
}

type StoreOption func(*Store)

// WithSessionID continues an earlier session instead of starting a new one.
func WithSessionID(id string) StoreOption {
	return func(s *Store) {
		s.sessionID = id
	}
}

func Open(path string, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, sessionID: uuid.NewString()}
	for _, opt := range opts {
		opt(s)
	}
	logger.Info("opened history store", "path", path, "session_id", s.sessionID)
	return s, nil
}

func initDatabase(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}
	return nil
}

func (s *Store) SessionID() string {
	return s.sessionID
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry history.Entry) error {
	ctx, span := tracer.Start(ctx, "append history entry")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	span.SetAttributes(attribute.Int64("turn.id", entry.TurnID), attribute.String("message.role", string(entry.Role)))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, turn_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, s.sessionID, entry.TurnID, string(entry.Role), entry.Content, entry.CreatedAt.UTC(),
	)
	if err != nil {
		err = fmt.Errorf("failed to insert message: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	ctx, span := tracer.Start(ctx, "read recent history")
	defer span.End()

	if limit <= 0 {
		limit = -1
	}
	// rowid follows insertion order
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, turn_id, role, content, created_at FROM (
			SELECT rowid, id, turn_id, role, content, created_at FROM messages
			WHERE session_id = ?
			ORDER BY rowid DESC
			LIMIT ?
		) ORDER BY rowid ASC
	`, s.sessionID, limit)
	if err != nil {
		err = fmt.Errorf("failed to query messages: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var (
			entry history.Entry
			role  string
		)
		if err := rows.Scan(&entry.ID, &entry.TurnID, &role, &entry.Content, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		entry.SessionID = s.sessionID
		entry.Role = llms.Role(role)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return entries, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, s.sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}
