package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lumenai/conduit/internal/errkind"
	"github.com/lumenai/conduit/pkg/models"
)

// SQLStore implements Store over database/sql using the pure-Go
// modernc.org/sqlite driver.
type SQLStore struct {
	db *sql.DB

	stmtAppendMessage     *sql.Stmt
	stmtGetMessages       *sql.Stmt
	stmtUpdateRawContent  *sql.Stmt
	stmtMarkRead          *sql.Stmt
}

// NewSQLStore opens dsn (e.g. "file:conduit.db?_pragma=foreign_keys(1)")
// and ensures the schema exists.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite single-writer; avoids SQLITE_BUSY under load

	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content_type TEXT NOT NULL,
			content TEXT NOT NULL,
			raw_content TEXT,
			blocks TEXT,
			tool_calls TEXT,
			tool_call_id TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at);

		CREATE TABLE IF NOT EXISTS chat_reads (
			chat_id TEXT PRIMARY KEY,
			read_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLStore) prepare() error {
	var err error
	s.stmtAppendMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, chat_id, role, content_type, content, raw_content, blocks, tool_calls, tool_call_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare append message: %w", err)
	}

	s.stmtGetMessages, err = s.db.Prepare(`
		SELECT id, chat_id, role, content_type, content, raw_content, blocks, tool_calls, tool_call_id, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare get messages: %w", err)
	}

	s.stmtUpdateRawContent, err = s.db.Prepare(`UPDATE messages SET raw_content = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare update raw content: %w", err)
	}

	s.stmtMarkRead, err = s.db.Prepare(`
		INSERT INTO chat_reads (chat_id, read_at) VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET read_at = excluded.read_at
	`)
	if err != nil {
		return fmt.Errorf("prepare mark read: %w", err)
	}
	return nil
}

// Close releases the prepared statements and underlying connection.
func (s *SQLStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtAppendMessage, s.stmtGetMessages, s.stmtUpdateRawContent, s.stmtMarkRead} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *SQLStore) Append(ctx context.Context, chatID string, msg models.ChatMessage) (models.ChatMessage, error) {
	msg.ChatID = chatID
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	blocksJSON, err := json.Marshal(msg.Blocks)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("marshal blocks: %w", err)
	}
	toolCallsJSON, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("marshal tool calls: %w", err)
	}

	_, err = s.stmtAppendMessage.ExecContext(ctx,
		msg.ID, msg.ChatID, string(msg.Role), string(msg.ContentType), msg.Content,
		nullableString(msg.RawContent), string(blocksJSON), string(toolCallsJSON),
		nullableString(msg.ToolCallID), msg.CreatedAt,
	)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *SQLStore) GetMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	rows, err := s.stmtGetMessages.QueryContext(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			msg                           models.ChatMessage
			role, contentType             string
			rawContent, toolCallID        sql.NullString
			blocksJSON, toolCallsJSON     string
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &role, &contentType, &msg.Content,
			&rawContent, &blocksJSON, &toolCallsJSON, &toolCallID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.ContentType = models.ContentType(contentType)
		msg.RawContent = rawContent.String
		msg.ToolCallID = toolCallID.String

		if blocksJSON != "" && blocksJSON != "null" {
			if err := json.Unmarshal([]byte(blocksJSON), &msg.Blocks); err != nil {
				return nil, fmt.Errorf("unmarshal blocks: %w", err)
			}
		}
		if toolCallsJSON != "" && toolCallsJSON != "null" {
			if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateRawContent(ctx context.Context, messageID string, raw string) error {
	res, err := s.stmtUpdateRawContent.ExecContext(ctx, raw, messageID)
	if err != nil {
		return fmt.Errorf("update raw content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: message %q", errkind.ErrNotFound, messageID)
	}
	return nil
}

func (s *SQLStore) MarkRead(ctx context.Context, chatID string) error {
	_, err := s.stmtMarkRead.ExecContext(ctx, chatID, time.Now())
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
