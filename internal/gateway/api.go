// ABOUTME: HTTP API handlers for conversation and message operations
// ABOUTME: Translates chat service results and errors into JSON responses

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/chat"
	"github.com/2389/parley-gateway/internal/model"
	"github.com/2389/parley-gateway/internal/store"
)

// CreateChatRequest is the JSON request body for POST /api/chats.
type CreateChatRequest struct {
	Title    string         `json:"title,omitempty"`
	Metadata store.Metadata `json:"metadata,omitempty"`
}

// UpdateChatRequest is the JSON request body for PUT /api/chats/{id}.
// Absent fields are left unchanged.
type UpdateChatRequest struct {
	Title    *string        `json:"title,omitempty"`
	Metadata store.Metadata `json:"metadata,omitempty"`
}

// SendMessageRequest is the JSON request body for POST /api/chats/{id}/messages.
type SendMessageRequest struct {
	Content      string `json:"content"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	WebSearch    bool   `json:"web_search,omitempty"`
}

// AddAttachmentRequest is the JSON request body for attaching a file record.
type AddAttachmentRequest struct {
	ID       string `json:"id,omitempty"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Metadata  store.Metadata `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func conversationResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		Metadata:  conv.Metadata,
		CreatedAt: conv.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: conv.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeChatError maps chat service errors onto HTTP statuses.
func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message content is required")
	case errors.Is(err, model.ErrRejected),
		errors.Is(err, model.ErrTimeout),
		errors.Is(err, model.ErrMalformed):
		writeError(w, http.StatusBadGateway, "model upstream failure")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (g *Gateway) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID := auth.SubjectFromContext(r.Context())
	conv, err := g.chat.CreateConversation(r.Context(), ownerID, req.Title, req.Metadata)
	if err != nil {
		g.logger.Error("create conversation failed", "error", err)
		writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conversationResponse(conv))
}

func (g *Gateway) handleListChats(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.SubjectFromContext(r.Context())
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	convs, err := g.chat.ListConversations(r.Context(), ownerID, limit, offset)
	if err != nil {
		g.logger.Error("list conversations failed", "error", err)
		writeChatError(w, err)
		return
	}

	resp := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, conversationResponse(conv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": resp})
}

func (g *Gateway) handleGetChat(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.SubjectFromContext(r.Context())

	conv, err := g.chat.GetConversation(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse(conv))
}

func (g *Gateway) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	var req UpdateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID := auth.SubjectFromContext(r.Context())
	conv, err := g.chat.UpdateConversation(r.Context(), ownerID, r.PathValue("id"), chat.ConversationUpdate{
		Title:    req.Title,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse(conv))
}

func (g *Gateway) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.SubjectFromContext(r.Context())

	if err := g.chat.DeleteConversation(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID := auth.SubjectFromContext(r.Context())
	reply, err := g.chat.SendMessage(r.Context(), chat.SendRequest{
		OwnerID:        ownerID,
		ConversationID: r.PathValue("id"),
		Content:        req.Content,
		SystemPrompt:   req.SystemPrompt,
		WebSearch:      req.WebSearch,
	})
	if err != nil {
		g.logger.Warn("send message failed", "conversation_id", r.PathValue("id"), "error", err)
		writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chat.MessagePayload(reply))
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.SubjectFromContext(r.Context())
	limit := queryInt(r, "limit", 50)

	msgs, err := g.chat.ListMessages(r.Context(), ownerID, r.PathValue("id"), limit, nil)
	if err != nil {
		writeChatError(w, err)
		return
	}

	resp := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		resp = append(resp, chat.MessagePayload(msg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": resp})
}

func (g *Gateway) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	var req AddAttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_name and file_path are required")
		return
	}

	ownerID := auth.SubjectFromContext(r.Context())
	att, err := g.chat.AddAttachment(r.Context(), ownerID, r.PathValue("id"), r.PathValue("mid"), chat.FileInfo{
		ID:       req.ID,
		Name:     req.FileName,
		Path:     req.FilePath,
		Size:     req.FileSize,
		MimeType: req.MimeType,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         att.ID,
		"message_id": att.MessageID,
		"file_name":  att.FileName,
		"file_path":  att.FilePath,
		"file_size":  att.FileSize,
		"mime_type":  att.MimeType,
		"created_at": att.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// queryInt parses an integer query parameter with a fallback default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
