// ABOUTME: Store interface and data types for parley-gateway persistence
// ABOUTME: Defines Conversation, Message, Attachment structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when trying to create an entity that already exists
var ErrDuplicate = errors.New("already exists")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Metadata is an open key-value map attached to conversations, messages and
// attachments. Values are restricted to what JSON can represent (string,
// number, bool, nested map/list) and are persisted as a JSON text column.
type Metadata map[string]any

// Conversation represents a titled, ownership-scoped sequence of messages.
// Deletion is soft: IsActive is flipped off, rows are never removed.
type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	Metadata  Metadata
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single turn within a conversation.
// Messages are immutable once created except for metadata enrichment
// (search results attached after the fact). AuthorID is nil for
// assistant messages.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	AuthorID       *string
	Metadata       Metadata
	CreatedAt      time.Time
}

// Attachment represents a file attached to an existing message.
type Attachment struct {
	ID        string
	MessageID string
	FileName  string
	FilePath  string
	FileSize  int64
	MimeType  string
	Metadata  Metadata
	CreatedAt time.Time
}

// MessageCursor marks a position in a conversation's message history.
// Ordering is by (created_at, id) so timestamp ties resolve deterministically.
type MessageCursor struct {
	CreatedAt time.Time
	ID        string
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeactivateConversation(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	// ListRecentMessages returns up to limit messages for the conversation,
	// newest first. A non-nil before cursor restricts the result to messages
	// persisted strictly before that position.
	ListRecentMessages(ctx context.Context, conversationID string, limit int, before *MessageCursor) ([]*Message, error)
	UpdateMessageMetadata(ctx context.Context, id string, meta Metadata) error

	// Attachments
	SaveAttachment(ctx context.Context, att *Attachment) error
	ListAttachments(ctx context.Context, messageID string) ([]*Attachment, error)

	// Close releases any resources held by the store
	Close() error
}
