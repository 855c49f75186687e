package utils

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

// fixed width so stored timestamps sort as text
const archiveTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteArchive keeps saved transcripts after the live store is cleared.
type SQLiteArchive struct {
	db *sql.DB
}

// ArchivedTranscript is one saved conversation.
type ArchivedTranscript struct {
	ID       string
	RoomName string
	SavedAt  time.Time
	Messages []models.ConversationMessage
}

// OpenSQLiteArchive opens (or creates) the archive database at path.
func OpenSQLiteArchive(path string) (*SQLiteArchive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	a, err := NewSQLiteArchive(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func NewSQLiteArchive(db *sql.DB) (*SQLiteArchive, error) {
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("failed to init transcript archive: %w", err)
	}
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		room_name TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);`, `
	CREATE TABLE IF NOT EXISTS transcript_messages (
		transcript_id TEXT NOT NULL REFERENCES transcripts(id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		PRIMARY KEY (transcript_id, seq)
	);`}
	for _, q := range queries {
		if _, err := a.db.ExecContext(context.Background(), q); err != nil {
			return err
		}
	}
	return nil
}

// Save writes msgs as a new transcript and returns its id.
func (a *SQLiteArchive) Save(ctx context.Context, roomName string, msgs []models.ConversationMessage) (string, error) {
	id := uuid.New().String()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts (id, room_name, saved_at) VALUES (?, ?, ?)`,
		id, roomName, time.Now().UTC().Format(archiveTimeLayout),
	); err != nil {
		return "", fmt.Errorf("failed to insert transcript: %w", err)
	}

	for i, msg := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_messages (transcript_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			id, i, string(msg.Role), msg.Content, msg.Timestamp.UTC().Format(archiveTimeLayout),
		); err != nil {
			return "", fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transcript: %w", err)
	}
	return id, nil
}

// Load returns an archived transcript by id.
func (a *SQLiteArchive) Load(ctx context.Context, id string) (*ArchivedTranscript, error) {
	out := &ArchivedTranscript{ID: id}
	var savedAt string
	err := a.db.QueryRowContext(ctx,
		`SELECT room_name, saved_at FROM transcripts WHERE id = ?`, id,
	).Scan(&out.RoomName, &savedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript %s: %w", id, err)
	}
	if out.SavedAt, err = time.Parse(archiveTimeLayout, savedAt); err != nil {
		return nil, fmt.Errorf("bad saved_at for transcript %s: %w", id, err)
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT role, content, timestamp FROM transcript_messages WHERE transcript_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var role, content, ts string
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, err
		}
		stamp, err := time.Parse(archiveTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("bad message timestamp: %w", err)
		}
		out.Messages = append(out.Messages, models.ConversationMessage{
			Role:      models.Role(role),
			Content:   content,
			Timestamp: stamp,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RoomTranscripts lists archived transcript ids for roomName, newest first.
func (a *SQLiteArchive) RoomTranscripts(ctx context.Context, roomName string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id FROM transcripts WHERE room_name = ? ORDER BY saved_at DESC`, roomName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
