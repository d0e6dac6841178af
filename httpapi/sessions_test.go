package httpapi

import (
	"testing"
	"time"
)

func TestSessionStoreCreateAndGet(t *testing.T) {
	store := newSessionStore(time.Hour)
	token, entry := store.create("alice")
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if entry.id == "" {
		t.Fatalf("expected non-empty session id")
	}
	got, ok := store.get(token)
	if !ok {
		t.Fatalf("expected session for token")
	}
	if got.username != "alice" {
		t.Fatalf("username = %q, want alice", got.username)
	}
	if got.id != entry.id {
		t.Fatalf("session id = %q, want %q", got.id, entry.id)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := newSessionStore(-time.Minute)
	token, _ := store.create("alice")
	if _, ok := store.get(token); ok {
		t.Fatalf("expected expired session to be rejected")
	}
	if _, ok := store.get(token); ok {
		t.Fatalf("expected expired session to stay evicted")
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := newSessionStore(time.Hour)
	token, _ := store.create("alice")
	store.delete(token)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected deleted session to be gone")
	}
	store.delete(token)
}

func TestSessionStoreTokensAreUnique(t *testing.T) {
	store := newSessionStore(time.Hour)
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		token, _ := store.create("alice")
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token issued")
		}
		seen[token] = struct{}{}
	}
}
