package chatstore

import (
	"context"
	"testing"

	"github.com/lumenai/conduit/pkg/models"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("opening in-memory sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_AppendAndGetMessages(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	msg, err := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleUser, ContentType: models.ContentTypeText, Content: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected an assigned ID")
	}

	got, err := s.GetMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hi" || got[0].Role != models.RoleUser {
		t.Fatalf("got %+v", got)
	}
}

func TestSQLStore_ToolCallsRoundTrip(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	msg := models.ChatMessage{
		Role:        models.RoleAssistant,
		ContentType: models.ContentTypeText,
		Content:     "",
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "search", Arguments: []byte(`{"q":"go"}`)},
		},
	}
	if _, err := s.Append(ctx, "chat-1", msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || len(got[0].ToolCalls) != 1 || got[0].ToolCalls[0].Name != "search" {
		t.Fatalf("got %+v", got)
	}
}

func TestSQLStore_UpdateRawContent(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	msg, _ := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleAssistant, ContentType: models.ContentTypeText, Content: "Answer."})
	if err := s.UpdateRawContent(ctx, msg.ID, "<think>x</think>Answer."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetMessages(ctx, "chat-1")
	if got[0].RawContent != "<think>x</think>Answer." {
		t.Fatalf("got raw content %q", got[0].RawContent)
	}
}

func TestSQLStore_UpdateRawContent_UnknownMessage(t *testing.T) {
	s := newTestSQLStore(t)
	if err := s.UpdateRawContent(context.Background(), "missing", "x"); err == nil {
		t.Fatal("expected an error for an unknown message ID")
	}
}

func TestSQLStore_MarkReadIsIdempotent(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()
	if err := s.MarkRead(ctx, "chat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.MarkRead(ctx, "chat-1"); err != nil {
		t.Fatalf("unexpected error on second mark read: %v", err)
	}
}

func TestSQLStore_MessagesOrderedChronologically(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	for _, c := range []string{"first", "second", "third"} {
		if _, err := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleUser, ContentType: models.ContentTypeText, Content: c}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.GetMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, c := range want {
		if got[i].Content != c {
			t.Fatalf("got[%d] = %q, want %q", i, got[i].Content, c)
		}
	}
}
