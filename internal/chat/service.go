// ABOUTME: Chat orchestrator driving the send-message pipeline
// ABOUTME: Persists turns, assembles model context, enriches with search, and fans out push events

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley-gateway/internal/model"
	"github.com/2389/parley-gateway/internal/push"
	"github.com/2389/parley-gateway/internal/search"
	"github.com/2389/parley-gateway/internal/store"
)

// Service errors
var (
	// ErrNotFound covers missing, deleted, and not-owned conversations alike
	// so a caller cannot distinguish someone else's conversation from a
	// nonexistent one.
	ErrNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when the message content is blank
	ErrEmptyMessage = errors.New("message content is empty")
)

// searchResultLimit is how many results are attached to a searched message
const searchResultLimit = 5

// defaultTitle names conversations created without one
const defaultTitle = "New Conversation"

// Invoker is the model gateway surface the orchestrator needs.
type Invoker interface {
	Invoke(ctx context.Context, turns []model.Turn, opts model.InvokeOptions) (*model.Reply, error)
}

// Searcher is the web lookup surface. A nil Searcher disables enrichment.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, includeSnippets bool) ([]search.Result, error)
}

// Broadcaster delivers push frames to connected clients.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Service orchestrates conversations, messages, and the send-message
// pipeline. It holds no mutable state of its own; all collaborators are
// internally synchronized.
type Service struct {
	store        store.Store
	gateway      Invoker
	search       Searcher
	registry     Broadcaster
	historyLimit int
	logger       *slog.Logger

	// now is replaceable for tests
	now func() time.Time
}

// NewService creates the orchestrator. search may be nil to disable web
// enrichment; historyLimit caps how many prior messages are supplied as
// model context.
func NewService(st store.Store, gateway Invoker, searcher Searcher, registry Broadcaster, historyLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        st,
		gateway:      gateway,
		search:       searcher,
		registry:     registry,
		historyLimit: historyLimit,
		logger:       logger.With("component", "chat"),
		now:          time.Now,
	}
}

// SendRequest carries one inbound user message.
type SendRequest struct {
	OwnerID        string
	ConversationID string
	Content        string
	SystemPrompt   string
	WebSearch      bool
}

// SendMessage runs the full pipeline: authorize, persist the user turn,
// optionally enrich it with search results, assemble context, invoke the
// model, persist the reply, and broadcast it. Once the user turn is written
// it stays written; later failures surface an error but never roll it back.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*store.Message, error) {
	if req.Content == "" {
		return nil, ErrEmptyMessage
	}

	if _, err := s.authorize(ctx, req.OwnerID, req.ConversationID); err != nil {
		return nil, err
	}

	// Persist the user turn. Everything after this point is additive.
	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           store.RoleUser,
		Content:        req.Content,
		AuthorID:       &req.OwnerID,
		CreatedAt:      s.now(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	if req.WebSearch {
		s.enrichWithSearch(ctx, userMsg)
	}

	turns, err := s.assembleContext(ctx, userMsg)
	if err != nil {
		return nil, err
	}

	reply, err := s.gateway.Invoke(ctx, turns, model.InvokeOptions{SystemPrompt: req.SystemPrompt})
	if err != nil {
		return nil, fmt.Errorf("invoking model: %w", err)
	}

	assistantMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           store.RoleAssistant,
		Content:        reply.Text,
		Metadata: store.Metadata{
			"model":       reply.Model,
			"stop_reason": reply.StopReason,
			"usage": map[string]any{
				"input_tokens":  reply.Usage.InputTokens,
				"output_tokens": reply.Usage.OutputTokens,
			},
		},
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("saving assistant message: %w", err)
	}

	if err := s.store.TouchConversation(ctx, req.ConversationID, assistantMsg.CreatedAt); err != nil {
		s.logger.Warn("failed to touch conversation", "conversation_id", req.ConversationID, "error", err)
	}

	s.broadcastMessage(assistantMsg)

	return assistantMsg, nil
}

// enrichWithSearch attaches web results to an already-persisted user message.
// The message is durable before this runs, so any failure here is logged and
// swallowed rather than failing the send.
func (s *Service) enrichWithSearch(ctx context.Context, msg *store.Message) {
	if s.search == nil {
		return
	}

	results, err := s.search.Search(ctx, msg.Content, searchResultLimit, true)
	if err != nil {
		s.logger.Warn("web search failed", "message_id", msg.ID, "error", err)
		return
	}
	if len(results) == 0 {
		return
	}

	meta := msg.Metadata
	if meta == nil {
		meta = store.Metadata{}
	}
	meta["web_search_results"] = results

	if err := s.store.UpdateMessageMetadata(ctx, msg.ID, meta); err != nil {
		s.logger.Warn("failed to attach search results", "message_id", msg.ID, "error", err)
		return
	}
	msg.Metadata = meta
}

// assembleContext builds the model turns: up to historyLimit messages
// persisted strictly before the inbound one, oldest first, with the inbound
// message appended as the final user turn.
func (s *Service) assembleContext(ctx context.Context, inbound *store.Message) ([]model.Turn, error) {
	cursor := &store.MessageCursor{CreatedAt: inbound.CreatedAt, ID: inbound.ID}
	history, err := s.store.ListRecentMessages(ctx, inbound.ConversationID, s.historyLimit, cursor)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}

	// history is newest-first; the model wants oldest-first
	turns := make([]model.Turn, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		turns = append(turns, model.Turn{Role: history[i].Role, Content: history[i].Content})
	}
	turns = append(turns, model.Turn{Role: model.RoleUser, Content: inbound.Content})

	return turns, nil
}

// broadcastMessage fans the assistant reply out to connected clients.
// Delivery is best-effort.
func (s *Service) broadcastMessage(msg *store.Message) {
	frame, err := push.NewMessageEvent(msg.ConversationID, MessagePayload(msg)).Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal push event", "message_id", msg.ID, "error", err)
		return
	}
	s.registry.Broadcast(frame)
}

// MessagePayload renders a message in its client-facing JSON shape.
func MessagePayload(msg *store.Message) map[string]any {
	payload := map[string]any{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"role":            msg.Role,
		"content":         msg.Content,
		"metadata":        msg.Metadata,
		"created_at":      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if msg.AuthorID != nil {
		payload["author_id"] = *msg.AuthorID
	}
	return payload
}

// authorize resolves a conversation for an owner. Missing, deleted, and
// foreign conversations all collapse into ErrNotFound.
func (s *Service) authorize(ctx context.Context, ownerID, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if !conv.IsActive || conv.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return conv, nil
}
