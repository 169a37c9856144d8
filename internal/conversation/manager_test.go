package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"doorstep/internal/store"
	"doorstep/internal/types"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(store.NewMemory(), nil)
}

func TestCreateAndAppend(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx, "hood-1")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if conv.Status != types.ConversationActive {
		t.Errorf("Status = %s, want active", conv.Status)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("new conversation has %d messages", len(conv.Messages))
	}

	updated, err := m.AppendMessage(ctx, conv.ID, types.Message{Role: types.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("AppendMessage() error: %v", err)
	}
	if len(updated.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(updated.Messages))
	}
	if updated.Messages[0].Timestamp.IsZero() {
		t.Error("append must stamp messages")
	}

	loaded, err := m.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
		t.Errorf("persisted messages = %+v", loaded.Messages)
	}
}

func TestAppendRejectsInvalidRole(t *testing.T) {
	m := newManager(t)
	conv, _ := m.Create(context.Background(), "hood-1")

	if _, err := m.AppendMessage(context.Background(), conv.ID, types.Message{Role: "bot", Content: "hi"}); err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestCloseIsIdempotentAndFreezesHistory(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	conv, _ := m.Create(ctx, "hood-1")

	if err := m.Close(ctx, conv.ID); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := m.Close(ctx, conv.ID); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	closed, _ := m.Get(ctx, conv.ID)
	if closed.Status != types.ConversationClosed {
		t.Errorf("Status = %s, want closed", closed.Status)
	}
	if closed.ClosedAt == nil {
		t.Error("ClosedAt not set")
	}

	_, err := m.AppendMessage(ctx, conv.ID, types.Message{Role: types.RoleUser, Content: "anyone?"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSetNewsletter(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	conv, _ := m.Create(ctx, "hood-1")

	if err := m.SetNewsletter(ctx, conv.ID, "nl-42"); err != nil {
		t.Fatalf("SetNewsletter() error: %v", err)
	}
	loaded, _ := m.Get(ctx, conv.ID)
	if loaded.NewsletterID != "nl-42" {
		t.Errorf("NewsletterID = %q", loaded.NewsletterID)
	}
}

func TestListByNeighborhoodOrdersByRecency(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	first, _ := m.Create(ctx, "hood-1")
	second, _ := m.Create(ctx, "hood-1")
	if _, err := m.Create(ctx, "hood-2"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// touching the first conversation makes it the most recent
	time.Sleep(5 * time.Millisecond)
	if _, err := m.AppendMessage(ctx, first.ID, types.Message{Role: types.RoleUser, Content: "bump"}); err != nil {
		t.Fatalf("AppendMessage() error: %v", err)
	}

	convs, err := m.ListByNeighborhood(ctx, "hood-1")
	if err != nil {
		t.Fatalf("ListByNeighborhood() error: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != first.ID {
		t.Errorf("most recently updated should come first, got %s", convs[0].ID)
	}
	if convs[1].ID != second.ID {
		t.Errorf("unexpected second entry %s", convs[1].ID)
	}

	missing, err := m.ListByNeighborhood(ctx, "hood-3")
	if err != nil {
		t.Fatalf("ListByNeighborhood() error: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no conversations, got %d", len(missing))
	}
}

func TestGetUnknownConversation(t *testing.T) {
	m := newManager(t)
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
