// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/attachment persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Timestamps are stored as integer nanoseconds since the epoch so that
// message ordering by (created_at, id) is exact.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			metadata TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner_updated
			ON conversations(owner_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			author_id TEXT,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at, id);

		CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			mime_type TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);

		CREATE INDEX IF NOT EXISTS idx_attachments_message_id
			ON attachments(message_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY constraint violation
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// marshalMetadata serializes a metadata map to its JSON column form.
// Nil maps are stored as NULL.
func marshalMetadata(meta Metadata) (any, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(data), nil
}

// unmarshalMetadata deserializes the JSON column form back into a map
func unmarshalMetadata(raw sql.NullString) (Metadata, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return meta, nil
}

// CreateConversation inserts a new conversation.
// Returns ErrDuplicate if a conversation with the same ID already exists.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	meta, err := marshalMetadata(conv.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversations (id, owner_id, title, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.OwnerID,
		conv.Title,
		meta,
		boolToInt(conv.IsActive),
		conv.CreatedAt.UnixNano(),
		conv.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "owner_id", conv.OwnerID)
	return nil
}

// GetConversation retrieves a conversation by ID regardless of active state.
// Ownership and active checks belong to the caller.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, owner_id, title, metadata, is_active, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ListConversationsByOwner retrieves active conversations for an owner,
// most recently updated first.
func (s *SQLiteStore) ListConversationsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, owner_id, title, metadata, is_active, created_at, updated_at
		FROM conversations
		WHERE owner_id = ? AND is_active = 1
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

// UpdateConversation updates a conversation's title, metadata and updated_at.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	meta, err := marshalMetadata(conv.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE conversations
		SET title = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, conv.Title, meta, conv.UpdatedAt.UnixNano(), conv.ID)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	return requireRowAffected(result)
}

// TouchConversation bumps a conversation's updated_at timestamp.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		at.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	return requireRowAffected(result)
}

// DeactivateConversation soft-deletes a conversation by clearing its active flag.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) DeactivateConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("deactivating conversation: %w", err)
	}

	if err := requireRowAffected(result); err != nil {
		return err
	}

	s.logger.Debug("deactivated conversation", "id", id)
	return nil
}

// SaveMessage inserts a new message.
// Returns ErrNotFound if the parent conversation doesn't exist and
// ErrDuplicate if the message ID is already taken.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	meta, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, author_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		msg.AuthorID,
		meta,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, author_id, metadata, created_at
		FROM messages
		WHERE id = ?
	`

	var msg Message
	var authorID sql.NullString
	var metaRaw sql.NullString
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Role,
		&msg.Content,
		&authorID,
		&metaRaw,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	if authorID.Valid {
		msg.AuthorID = &authorID.String
	}
	msg.Metadata, err = unmarshalMetadata(metaRaw)
	if err != nil {
		return nil, err
	}
	msg.CreatedAt = time.Unix(0, createdAt)

	return &msg, nil
}

// ListRecentMessages returns up to limit messages for the conversation,
// newest first, ordered by (created_at, id). A non-nil before cursor
// restricts the result to messages persisted strictly before that position.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, conversationID string, limit int, before *MessageCursor) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, conversation_id, role, content, author_id, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}

	if before != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		nanos := before.CreatedAt.UnixNano()
		args = append(args, nanos, nanos, before.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var authorID sql.NullString
		var metaRaw sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&authorID,
			&metaRaw,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		if authorID.Valid {
			msg.AuthorID = &authorID.String
		}
		msg.Metadata, err = unmarshalMetadata(metaRaw)
		if err != nil {
			return nil, err
		}
		msg.CreatedAt = time.Unix(0, createdAt)

		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// UpdateMessageMetadata replaces a message's metadata map.
// This is the only permitted mutation of a persisted message.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) UpdateMessageMetadata(ctx context.Context, id string, meta Metadata) error {
	raw, err := marshalMetadata(meta)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET metadata = ? WHERE id = ?`,
		raw, id,
	)
	if err != nil {
		return fmt.Errorf("updating message metadata: %w", err)
	}

	return requireRowAffected(result)
}

// SaveAttachment inserts an attachment for an existing message.
// The insert is idempotent by attachment ID: re-saving the same ID is a no-op.
// Returns ErrNotFound if the parent message doesn't exist.
func (s *SQLiteStore) SaveAttachment(ctx context.Context, att *Attachment) error {
	meta, err := marshalMetadata(att.Metadata)
	if err != nil {
		return err
	}

	// OR IGNORE covers the duplicate-ID case; foreign key enforcement
	// is unaffected by the conflict clause, so a missing parent still errors.
	query := `
		INSERT OR IGNORE INTO attachments (id, message_id, file_name, file_path, file_size, mime_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		att.ID,
		att.MessageID,
		att.FileName,
		att.FilePath,
		att.FileSize,
		att.MimeType,
		meta,
		att.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting attachment: %w", err)
	}

	s.logger.Debug("saved attachment", "id", att.ID, "message_id", att.MessageID)
	return nil
}

// ListAttachments retrieves all attachments for a message, oldest first.
func (s *SQLiteStore) ListAttachments(ctx context.Context, messageID string) ([]*Attachment, error) {
	query := `
		SELECT id, message_id, file_name, file_path, file_size, mime_type, metadata, created_at
		FROM attachments
		WHERE message_id = ?
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		var att Attachment
		var metaRaw sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.FileName,
			&att.FilePath,
			&att.FileSize,
			&att.MimeType,
			&metaRaw,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}

		att.Metadata, err = unmarshalMetadata(metaRaw)
		if err != nil {
			return nil, err
		}
		att.CreatedAt = time.Unix(0, createdAt)

		attachments = append(attachments, &att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attachments: %w", err)
	}

	return attachments, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	conv, err := scanConversationFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return conv, err
}

func scanConversationRow(rows *sql.Rows) (*Conversation, error) {
	return scanConversationFrom(rows)
}

func scanConversationFrom(scanner rowScanner) (*Conversation, error) {
	var conv Conversation
	var metaRaw sql.NullString
	var isActive int
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&conv.ID,
		&conv.OwnerID,
		&conv.Title,
		&metaRaw,
		&isActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.Metadata, err = unmarshalMetadata(metaRaw)
	if err != nil {
		return nil, err
	}
	conv.IsActive = isActive != 0
	conv.CreatedAt = time.Unix(0, createdAt)
	conv.UpdatedAt = time.Unix(0, updatedAt)

	return &conv, nil
}

// requireRowAffected converts a zero-row update into ErrNotFound
func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
