// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers conversation CRUD, message ordering, cursors, and attachment idempotency

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConversation(id, owner string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		OwnerID:   owner,
		Title:     "Test Conversation",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	conv.Metadata = Metadata{"topic": "testing"}

	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}

	if got.ID != "conv-1" {
		t.Errorf("ID = %q, want %q", got.ID, "conv-1")
	}
	if got.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, "owner-1")
	}
	if got.Title != "Test Conversation" {
		t.Errorf("Title = %q", got.Title)
	}
	if !got.IsActive {
		t.Error("IsActive = false, want true")
	}
	if got.Metadata["topic"] != "testing" {
		t.Errorf("Metadata[topic] = %v, want %q", got.Metadata["topic"], "testing")
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, conv.CreatedAt)
	}
}

func TestCreateConversation_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	err := s.CreateConversation(ctx, conv)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("CreateConversation() error = %v, want ErrDuplicate", err)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversation() error = %v, want ErrNotFound", err)
	}
}

func TestListConversationsByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		conv := testConversation(fmt.Sprintf("conv-%d", i), "owner-1")
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation() error = %v", err)
		}
	}
	// A conversation belonging to someone else
	other := testConversation("conv-other", "owner-2")
	if err := s.CreateConversation(ctx, other); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	convs, err := s.ListConversationsByOwner(ctx, "owner-1", 10, 0)
	if err != nil {
		t.Fatalf("ListConversationsByOwner() error = %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	// Most recently updated first
	if convs[0].ID != "conv-2" || convs[2].ID != "conv-0" {
		t.Errorf("order = [%s, %s, %s], want newest-updated first", convs[0].ID, convs[1].ID, convs[2].ID)
	}
}

func TestListConversationsByOwner_ExcludesInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := testConversation("conv-active", "owner-1")
	deleted := testConversation("conv-deleted", "owner-1")
	if err := s.CreateConversation(ctx, active); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := s.CreateConversation(ctx, deleted); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := s.DeactivateConversation(ctx, "conv-deleted"); err != nil {
		t.Fatalf("DeactivateConversation() error = %v", err)
	}

	convs, err := s.ListConversationsByOwner(ctx, "owner-1", 10, 0)
	if err != nil {
		t.Fatalf("ListConversationsByOwner() error = %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "conv-active" {
		t.Errorf("got %d conversations, want only the active one", len(convs))
	}

	// The deactivated row is still retrievable directly
	got, err := s.GetConversation(ctx, "conv-deleted")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.IsActive {
		t.Error("deactivated conversation still marked active")
	}
}

func TestUpdateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	conv.Title = "Renamed"
	conv.Metadata = Metadata{"pinned": true}
	conv.UpdatedAt = conv.UpdatedAt.Add(time.Minute)
	if err := s.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation() error = %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.Title != "Renamed" {
		t.Errorf("Title = %q, want %q", got.Title, "Renamed")
	}
	if got.Metadata["pinned"] != true {
		t.Errorf("Metadata[pinned] = %v, want true", got.Metadata["pinned"])
	}

	missing := testConversation("missing", "owner-1")
	if err := s.UpdateConversation(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateConversation(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTouchConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	later := conv.UpdatedAt.Add(time.Hour)
	if err := s.TouchConversation(ctx, "conv-1", later); err != nil {
		t.Fatalf("TouchConversation() error = %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}

	if err := s.TouchConversation(ctx, "missing", later); !errors.Is(err, ErrNotFound) {
		t.Errorf("TouchConversation(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeactivateConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeactivateConversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeactivateConversation() error = %v, want ErrNotFound", err)
	}
}

func TestSaveAndGetMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	author := "owner-1"
	msg := &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           RoleUser,
		Content:        "hello",
		AuthorID:       &author,
		Metadata:       Metadata{"client": "web"},
		CreatedAt:      time.Now(),
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	got, err := s.GetMessage(ctx, "msg-1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if got.Role != RoleUser || got.Content != "hello" {
		t.Errorf("got role=%q content=%q", got.Role, got.Content)
	}
	if got.AuthorID == nil || *got.AuthorID != "owner-1" {
		t.Errorf("AuthorID = %v, want owner-1", got.AuthorID)
	}
	if got.Metadata["client"] != "web" {
		t.Errorf("Metadata[client] = %v", got.Metadata["client"])
	}
	if !got.CreatedAt.Equal(msg.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, msg.CreatedAt)
	}
}

func TestSaveMessage_MissingConversation(t *testing.T) {
	s := newTestStore(t)

	msg := &Message{
		ID:             "msg-1",
		ConversationID: "missing",
		Role:           RoleUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}
	err := s.SaveMessage(context.Background(), msg)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveMessage() error = %v, want ErrNotFound", err)
	}
}

func TestListRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-1",
			Role:           RoleUser,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	msgs, err := s.ListRecentMessages(ctx, "conv-1", 3, nil)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	// Newest first
	for i, want := range []string{"msg-4", "msg-3", "msg-2"} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

func TestListRecentMessages_BeforeCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-1",
			Role:           RoleUser,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	// Everything strictly before msg-4
	cursor := &MessageCursor{CreatedAt: base.Add(4 * time.Second), ID: "msg-4"}
	msgs, err := s.ListRecentMessages(ctx, "conv-1", 10, cursor)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].ID != "msg-3" {
		t.Errorf("msgs[0].ID = %q, want msg-3", msgs[0].ID)
	}
	for _, m := range msgs {
		if m.ID == "msg-4" {
			t.Error("cursor message itself included in results")
		}
	}
}

func TestListRecentMessages_TimestampTiebreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	// Two messages with identical timestamps order by ID
	at := time.Now()
	for _, id := range []string{"msg-a", "msg-b"} {
		msg := &Message{
			ID:             id,
			ConversationID: "conv-1",
			Role:           RoleUser,
			Content:        "tied",
			CreatedAt:      at,
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	msgs, err := s.ListRecentMessages(ctx, "conv-1", 10, nil)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "msg-b" || msgs[1].ID != "msg-a" {
		t.Errorf("order = [%s, %s], want [msg-b, msg-a]", msgs[0].ID, msgs[1].ID)
	}

	// Cursor at msg-b excludes msg-b but keeps msg-a
	cursor := &MessageCursor{CreatedAt: at, ID: "msg-b"}
	msgs, err = s.ListRecentMessages(ctx, "conv-1", 10, cursor)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "msg-a" {
		t.Errorf("cursor result = %v, want only msg-a", msgs)
	}
}

func TestUpdateMessageMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	msg := &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           RoleUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	if err := s.UpdateMessageMetadata(ctx, "msg-1", Metadata{"enriched": true}); err != nil {
		t.Fatalf("UpdateMessageMetadata() error = %v", err)
	}

	got, err := s.GetMessage(ctx, "msg-1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if got.Metadata["enriched"] != true {
		t.Errorf("Metadata[enriched] = %v, want true", got.Metadata["enriched"])
	}
	if got.Content != "hello" {
		t.Errorf("Content changed to %q", got.Content)
	}

	if err := s.UpdateMessageMetadata(ctx, "missing", Metadata{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMessageMetadata(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSaveAttachment_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "owner-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	msg := &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           RoleUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	att := &Attachment{
		ID:        "att-1",
		MessageID: "msg-1",
		FileName:  "notes.txt",
		FilePath:  "/data/files/att-1",
		FileSize:  42,
		MimeType:  "text/plain",
		CreatedAt: time.Now(),
	}
	if err := s.SaveAttachment(ctx, att); err != nil {
		t.Fatalf("SaveAttachment() error = %v", err)
	}
	// Saving the same attachment again is a no-op
	if err := s.SaveAttachment(ctx, att); err != nil {
		t.Fatalf("SaveAttachment() second call error = %v", err)
	}

	atts, err := s.ListAttachments(ctx, "msg-1")
	if err != nil {
		t.Fatalf("ListAttachments() error = %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("got %d attachments, want 1", len(atts))
	}
	if atts[0].FileName != "notes.txt" || atts[0].FileSize != 42 {
		t.Errorf("attachment = %+v", atts[0])
	}
}

func TestSaveAttachment_MissingMessage(t *testing.T) {
	s := newTestStore(t)

	att := &Attachment{
		ID:        "att-1",
		MessageID: "missing",
		FileName:  "notes.txt",
		FilePath:  "/data/files/att-1",
		FileSize:  42,
		MimeType:  "text/plain",
		CreatedAt: time.Now(),
	}
	err := s.SaveAttachment(context.Background(), att)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveAttachment() error = %v, want ErrNotFound", err)
	}
}
