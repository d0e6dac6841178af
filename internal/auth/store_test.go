package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/agentdeck/internal/appconfig"
)

func TestStoreRejectsInvalidUsername(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.AddUser(User{
		Username:     "Alice",
		PasswordHash: "hash",
	}); err == nil {
		t.Fatalf("expected invalid username error")
	}
}

func TestStoreRejectsInvalidSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	_, err := NewStoreWithLogger(path, []appconfig.SeedUser{
		{
			Username:     "BadUser",
			PasswordHash: "hash",
		},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for invalid seed user")
	}
}

func TestStoreAuthenticatePasswordOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := store.AddUser(User{Username: "alice", PasswordHash: string(hash)}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	if err := store.Authenticate("alice", "pass", ""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := store.Authenticate("alice", "wrong", ""); err == nil {
		t.Fatalf("expected failure for wrong password")
	}
	if err := store.Authenticate("bob", "pass", ""); err == nil {
		t.Fatalf("expected failure for unknown user")
	}
}

func TestStoreAuthenticateRequiresTOTPWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	secret := "JBSWY3DPEHPK3PXP"
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := store.AddUser(User{
		Username:     "alice",
		PasswordHash: string(hash),
		TOTPSecret:   secret,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	if err := store.Authenticate("alice", "pass", ""); err == nil {
		t.Fatalf("expected failure without totp code")
	}
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := store.Authenticate("alice", "pass", code); err != nil {
		t.Fatalf("authenticate with totp: %v", err)
	}
}

func TestStoreChangePassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := store.AddUser(User{Username: "alice", PasswordHash: string(hash)}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	if err := store.ChangePassword("alice", "wrong", "", "new-pass"); err == nil {
		t.Fatalf("expected failure for wrong current password")
	}
	if err := store.ChangePassword("alice", "old-pass", "", "new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if err := store.Authenticate("alice", "new-pass", ""); err != nil {
		t.Fatalf("authenticate after change: %v", err)
	}
	if err := store.Authenticate("alice", "old-pass", ""); err == nil {
		t.Fatalf("expected old password to be rejected")
	}
}

func TestStoreSeedsInitialUsers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store, err := NewStoreWithLogger(path, []appconfig.SeedUser{
		{Username: "alice", PasswordHash: string(hash)},
	}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Authenticate("alice", "pass", ""); err != nil {
		t.Fatalf("authenticate seeded user: %v", err)
	}
	if got := len(store.LoadUsers()); got != 1 {
		t.Fatalf("users = %d, want 1", got)
	}
}
