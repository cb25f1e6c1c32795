// ABOUTME: Conversation lifecycle and attachment operations for the chat service
// ABOUTME: All operations are ownership-scoped; foreign conversations read as not found

package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/parley-gateway/internal/store"
)

// CreateConversation starts a new conversation for the owner. An empty title
// gets a default.
func (s *Service) CreateConversation(ctx context.Context, ownerID, title string, metadata store.Metadata) (*store.Conversation, error) {
	if title == "" {
		title = defaultTitle
	}

	now := s.now()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Metadata:  metadata,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "owner_id", ownerID)
	return conv, nil
}

// GetConversation returns the owner's conversation, or ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, ownerID, conversationID string) (*store.Conversation, error) {
	return s.authorize(ctx, ownerID, conversationID)
}

// ListConversations returns the owner's active conversations, most recently
// updated first.
func (s *Service) ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]*store.Conversation, error) {
	convs, err := s.store.ListConversationsByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// ConversationUpdate carries the mutable conversation fields. Nil fields are
// left unchanged.
type ConversationUpdate struct {
	Title    *string
	Metadata store.Metadata
}

// UpdateConversation applies an update to the owner's conversation and
// returns the new state.
func (s *Service) UpdateConversation(ctx context.Context, ownerID, conversationID string, update ConversationUpdate) (*store.Conversation, error) {
	conv, err := s.authorize(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		conv.Title = *update.Title
	}
	if update.Metadata != nil {
		conv.Metadata = update.Metadata
	}
	conv.UpdatedAt = s.now()

	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation soft-deletes the owner's conversation. Messages remain
// on disk; the conversation just stops resolving.
func (s *Service) DeleteConversation(ctx context.Context, ownerID, conversationID string) error {
	if _, err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return err
	}

	if err := s.store.DeactivateConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	s.logger.Info("conversation deleted", "conversation_id", conversationID, "owner_id", ownerID)
	return nil
}

// ListMessages returns up to limit of the owner's conversation messages,
// newest first, optionally starting before a cursor.
func (s *Service) ListMessages(ctx context.Context, ownerID, conversationID string, limit int, before *store.MessageCursor) ([]*store.Message, error) {
	if _, err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListRecentMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// FileInfo describes an attachment to record. ID may be empty, in which case
// one is assigned; supplying the same ID twice is a no-op.
type FileInfo struct {
	ID       string
	Name     string
	Path     string
	Size     int64
	MimeType string
}

// AddAttachment records a file attached to a message in the owner's
// conversation. The message must exist and belong to that conversation.
func (s *Service) AddAttachment(ctx context.Context, ownerID, conversationID, messageID string, file FileInfo) (*store.Attachment, error) {
	if _, err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, ErrNotFound
	}
	if msg.ConversationID != conversationID {
		return nil, ErrNotFound
	}

	if file.ID == "" {
		file.ID = uuid.New().String()
	}

	att := &store.Attachment{
		ID:        file.ID,
		MessageID: messageID,
		FileName:  file.Name,
		FilePath:  file.Path,
		FileSize:  file.Size,
		MimeType:  file.MimeType,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveAttachment(ctx, att); err != nil {
		return nil, fmt.Errorf("saving attachment: %w", err)
	}

	return att, nil
}
