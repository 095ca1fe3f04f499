package session

import (
	"context"
	"testing"
	"time"

	"ready2rent-bot/internal/domain"
)

func TestMemoryPutGetDelete(t *testing.T) {
	store := NewMemory(time.Hour)
	ctx := context.Background()

	if _, ok, _ := store.Get(ctx, 42); ok {
		t.Fatal("expected no session for a new user")
	}

	sess := domain.Session{UserID: 42, ChatID: 42, Mode: domain.ModeSell, Step: domain.StepPrice}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := store.Get(ctx, 42)
	if err != nil || !ok {
		t.Fatalf("expected a session, got ok=%v err=%v", ok, err)
	}
	if got.Step != domain.StepPrice {
		t.Fatalf("expected step %d, got %d", domain.StepPrice, got.Step)
	}

	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, 42); ok {
		t.Fatal("expected session to be deleted")
	}
}

func TestMemoryLastWriterWins(t *testing.T) {
	store := NewMemory(time.Hour)
	ctx := context.Background()
	_ = store.Put(ctx, domain.Session{UserID: 42, Step: domain.StepContact, Draft: domain.Draft{City: "Madrid"}})
	_ = store.Put(ctx, domain.Session{UserID: 42, Step: domain.StepCity})
	got, _, _ := store.Get(ctx, 42)
	if got.Step != domain.StepCity || got.Draft.City != "" {
		t.Fatalf("expected the fresh session to replace the old one, got %+v", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	store := NewMemory(10 * time.Millisecond)
	ctx := context.Background()
	_ = store.Put(ctx, domain.Session{UserID: 7})
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, 7); ok {
		t.Fatal("expected the session to expire")
	}
}
