package history

import (
	"context"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

func TestMemoryRecentReturnsNewestInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for i, content := range []string{"one", "two", "three", "four"} {
		role := llms.RoleUser
		if i%2 == 1 {
			role = llms.RoleAssistant
		}
		if err := store.Append(ctx, NewEntry(int64(i/2+1), role, content)); err != nil {
			t.Fatalf("expected append to succeed, got %v", err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("expected recent to succeed, got %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "three" || recent[1].Content != "four" {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
	if recent[0].SessionID == "" || recent[0].ID == "" {
		t.Fatalf("expected session and entry IDs to be set")
	}

	all, _ := store.Recent(ctx, 0)
	if len(all) != 4 {
		t.Fatalf("expected all four entries, got %d", len(all))
	}

	messages := Messages(recent)
	if messages[0].Role != llms.RoleUser || messages[1].Role != llms.RoleAssistant {
		t.Fatalf("unexpected roles %+v", messages)
	}
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Append(ctx, NewEntry(1, llms.RoleUser, "hello"))

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("expected clear to succeed, got %v", err)
	}
	if entries, _ := store.Recent(ctx, 0); len(entries) != 0 {
		t.Fatalf("expected empty store, got %+v", entries)
	}
}
