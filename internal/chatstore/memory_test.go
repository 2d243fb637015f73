package chatstore

import (
	"context"
	"testing"

	"github.com/lumenai/conduit/pkg/models"
)

func TestMemoryStore_AppendAndGetMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg, err := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected an assigned ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("expected an assigned CreatedAt")
	}

	got, err := s.GetMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("got %+v", got)
	}
}

func TestMemoryStore_GetMessagesOrderedChronologically(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, c := range []string{"first", "second", "third"} {
		if _, err := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleUser, Content: c}); err != nil {
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

func TestMemoryStore_UpdateRawContent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg, _ := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleAssistant, Content: "Answer."})
	if err := s.UpdateRawContent(ctx, msg.ID, "<think>x</think>Answer."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetMessages(ctx, "chat-1")
	if got[0].RawContent != "<think>x</think>Answer." {
		t.Fatalf("got raw content %q", got[0].RawContent)
	}
}

func TestMemoryStore_UpdateRawContent_UnknownMessage(t *testing.T) {
	s := NewMemoryStore()
	if err := s.UpdateRawContent(context.Background(), "missing", "x"); err == nil {
		t.Fatal("expected an error for an unknown message ID")
	}
}

func TestMemoryStore_TrimsOldMessagesBeyondLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < maxMessagesPerChat+10; i++ {
		if _, err := s.Append(ctx, "chat-1", models.ChatMessage{Role: models.RoleUser, Content: "m"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, _ := s.GetMessages(ctx, "chat-1")
	if len(got) != maxMessagesPerChat {
		t.Fatalf("expected trimming to %d messages, got %d", maxMessagesPerChat, len(got))
	}
}

func TestMemoryStore_MarkRead(t *testing.T) {
	s := NewMemoryStore()
	if err := s.MarkRead(context.Background(), "chat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
