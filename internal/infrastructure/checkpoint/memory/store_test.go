package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haithamq/visaflow/internal/core/domain"
)

func TestGetMiss(t *testing.T) {
	store := New()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrCheckpointNotFound) {
		t.Fatalf("error = %v, want checkpoint not found", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	store := New()
	if err := store.Set(context.Background(), "k", []byte("state"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	blob, err := store.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(blob) != "state" {
		t.Fatalf("blob = %q, want state", blob)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	_ = store.Set(context.Background(), "k", []byte("state"), 0)

	blob, _ := store.Get(context.Background(), "k")
	blob[0] = 'X'

	again, _ := store.Get(context.Background(), "k")
	if string(again) != "state" {
		t.Fatalf("stored blob mutated via returned slice: %q", again)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := New()
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	_ = store.Set(context.Background(), "k", []byte("state"), time.Minute)
	if _, err := store.Get(context.Background(), "k"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := store.Get(context.Background(), "k"); !errors.Is(err, domain.ErrCheckpointNotFound) {
		t.Fatalf("error = %v, want checkpoint not found after expiry", err)
	}
	if store.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after lazy expiry", store.Len())
	}
}

func TestCleanupExpired(t *testing.T) {
	store := New()
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	_ = store.Set(context.Background(), "short", []byte("a"), time.Minute)
	_ = store.Set(context.Background(), "long", []byte("b"), time.Hour)
	_ = store.Set(context.Background(), "forever", []byte("c"), 0)

	current = current.Add(10 * time.Minute)
	if removed := store.CleanupExpired(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
}
