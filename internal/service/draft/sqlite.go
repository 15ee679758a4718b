package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
	// SQLite allows one writer; serializing writes here avoids SQLITE_BUSY.
	writeMu sync.Mutex
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS draft_sessions (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		external_contact TEXT,
		current_step TEXT NOT NULL,
		status TEXT NOT NULL,
		client_type TEXT,
		client_identifier TEXT,
		client_snapshot_json TEXT,
		products_json TEXT NOT NULL DEFAULT '[]',
		result_document_id TEXT,
		result_document_number TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS draft_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES draft_sessions(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		partial_update_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_draft_messages_session ON draft_messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const sessionColumns = `id, source, external_contact, current_step, status, client_type,
	client_identifier, client_snapshot_json, products_json, result_document_id,
	result_document_number, created_at, updated_at`

// FindSession retrieves a session by identifier.
func (s *SQLiteStore) FindSession(ctx context.Context, id string) (draft.Session, error) {
	return s.findSession(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) findSession(ctx context.Context, q queryRower, id string) (draft.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM draft_sessions WHERE id = ?`, id)

	var session draft.Session
	var contact, clientType, identifier, snapshotJSON, docID, docNumber sql.NullString
	var productsJSON string
	var currentStep, status string
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.ID, &session.Source, &contact, &currentStep, &status, &clientType,
		&identifier, &snapshotJSON, &productsJSON, &docID,
		&docNumber, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return draft.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return draft.Session{}, fmt.Errorf("scan session row: %w", err)
	}

	session.ExternalContact = contact.String
	session.CurrentStep = draft.Step(currentStep)
	session.Status = draft.Status(status)
	session.ClientType = draft.ClientType(clientType.String)
	session.ClientIdentifier = identifier.String
	session.ResultDocumentID = docID.String
	session.ResultDocumentNumber = docNumber.String
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.UpdatedAt = time.Unix(0, updatedAt).UTC()

	if snapshotJSON.Valid && snapshotJSON.String != "" {
		var client draft.Client
		if err := sonic.UnmarshalString(snapshotJSON.String, &client); err != nil {
			return draft.Session{}, fmt.Errorf("decode client snapshot: %w", err)
		}
		session.ClientSnapshot = &client
	}
	session.Products = []draft.ProductLine{}
	if productsJSON != "" {
		if err := sonic.UnmarshalString(productsJSON, &session.Products); err != nil {
			return draft.Session{}, fmt.Errorf("decode products: %w", err)
		}
	}
	return session, nil
}

// CreateSession inserts a new session; the id is generated when empty.
func (s *SQLiteStore) CreateSession(ctx context.Context, session draft.Session) (draft.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	newSessionDefaults(&session)
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writeSession(ctx, s.db, session, true); err != nil {
		return draft.Session{}, err
	}
	return session, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) writeSession(ctx context.Context, e execer, session draft.Session, insert bool) error {
	productsJSON, err := sonic.MarshalString(session.Products)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	var snapshotJSON any
	if session.ClientSnapshot != nil {
		encoded, err := sonic.MarshalString(session.ClientSnapshot)
		if err != nil {
			return fmt.Errorf("encode client snapshot: %w", err)
		}
		snapshotJSON = encoded
	}

	if insert {
		_, err = e.ExecContext(ctx, `INSERT INTO draft_sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.Source, nullable(session.ExternalContact), string(session.CurrentStep),
			string(session.Status), nullable(string(session.ClientType)), nullable(session.ClientIdentifier),
			snapshotJSON, productsJSON, nullable(session.ResultDocumentID), nullable(session.ResultDocumentNumber),
			session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	}

	result, err := e.ExecContext(ctx, `UPDATE draft_sessions SET
			current_step = ?, status = ?, client_type = ?, client_identifier = ?,
			client_snapshot_json = ?, products_json = ?, result_document_id = ?,
			result_document_number = ?, updated_at = ?
		WHERE id = ?`,
		string(session.CurrentStep), string(session.Status), nullable(string(session.ClientType)),
		nullable(session.ClientIdentifier), snapshotJSON, productsJSON,
		nullable(session.ResultDocumentID), nullable(session.ResultDocumentNumber),
		session.UpdatedAt.UnixNano(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateSession reads, applies and writes the update inside one transaction.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, update draft.SessionUpdate) (draft.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return draft.Session{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("[store] rollback session update failed: %v", rbErr)
		}
	}()

	session, err := s.findSession(ctx, tx, id)
	if err != nil {
		return draft.Session{}, err
	}
	update.Apply(&session)
	session.UpdatedAt = time.Now().UTC()

	if err := s.writeSession(ctx, tx, session, false); err != nil {
		return draft.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return draft.Session{}, fmt.Errorf("commit update: %w", err)
	}
	return session, nil
}

// AppendMessage inserts a message; the autoincrement sequence fixes its order.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg draft.NewMessage) (draft.Message, error) {
	if err := validateMessage(msg); err != nil {
		return draft.Message{}, err
	}

	var partialJSON any
	if msg.PartialUpdate != nil {
		encoded, err := sonic.MarshalString(msg.PartialUpdate)
		if err != nil {
			return draft.Message{}, fmt.Errorf("encode partial update: %w", err)
		}
		partialJSON = encoded
	}

	message := draft.Message{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		Role:          msg.Role,
		Content:       msg.Content,
		PartialUpdate: msg.PartialUpdate.Clone(),
		CreatedAt:     time.Now().UTC(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.findSession(ctx, s.db, sessionID); err != nil {
		return draft.Message{}, err
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM draft_messages WHERE session_id = ?`, sessionID,
	).Scan(&last); err != nil {
		return draft.Message{}, fmt.Errorf("read last message time: %w", err)
	}
	if last.Valid && message.CreatedAt.UnixNano() <= last.Int64 {
		message.CreatedAt = time.Unix(0, last.Int64+1).UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO draft_messages
		(id, session_id, role, content, partial_update_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, sessionID, string(message.Role), message.Content, partialJSON,
		message.CreatedAt.UnixNano(),
	)
	if err != nil {
		return draft.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

// ListMessages returns the session's messages in insertion order. A partial
// update that no longer decodes is dropped from its message instead of
// failing the whole read.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]draft.Message, error) {
	if _, err := s.findSession(ctx, s.db, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, role, content, partial_update_json, created_at
		FROM draft_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Printf("[store] failed to close message rows: %v", closeErr)
		}
	}()

	messages := make([]draft.Message, 0, 16)
	for rows.Next() {
		var msg draft.Message
		var role string
		var partialJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &partialJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = draft.Role(role)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		if partialJSON.Valid && partialJSON.String != "" {
			var partial draft.PartialUpdate
			if err := sonic.UnmarshalString(partialJSON.String, &partial); err != nil {
				log.Printf("[store] skip undecodable partial update on message=%s: %v", msg.ID, err)
			} else {
				msg.PartialUpdate = &partial
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*SQLiteStore)(nil)
