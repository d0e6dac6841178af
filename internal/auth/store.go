package auth

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/agentdeck/internal/appconfig"
	"pkt.systems/pslog"
)

// User is a stored account. An empty TOTPSecret disables the second
// factor for that user.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	TOTPSecret   string `json:"totp_secret,omitempty"`
}

// Store manages user accounts in a JSON file. The file is re-read when
// another process rewrote it, so CLI user management and a running
// server can share one file.
type Store struct {
	path string
	log  pslog.Logger

	mu     sync.RWMutex
	users  map[string]User
	loaded fileStamp
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// NewStore loads or seeds the user store.
func NewStore(path string, seeds []appconfig.SeedUser) (*Store, error) {
	return NewStoreWithLogger(path, seeds, nil)
}

// NewStoreWithLogger loads or seeds the user store with logging.
func NewStoreWithLogger(path string, seeds []appconfig.SeedUser, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("user file path is required")
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store := &Store{
		path:  path,
		log:   logger.With("user_file", path),
		users: make(map[string]User),
	}
	if err := store.seedFile(seeds); err != nil {
		return nil, err
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// Authenticate verifies username, password, and totp. The totp code is
// required only for users that carry a secret.
func (s *Store) Authenticate(username, password, totpCode string) error {
	if err := s.refresh(); err != nil {
		return err
	}
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return errors.New("invalid credentials")
	}
	if user.TOTPSecret != "" && !totp.Validate(totpCode, user.TOTPSecret) {
		return errors.New("invalid totp")
	}
	return nil
}

// ChangePassword verifies current credentials and replaces the password.
func (s *Store) ChangePassword(username, currentPassword, totpCode, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return errors.New("new password is required")
	}
	if err := s.Authenticate(username, currentPassword, totpCode); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UpdatePassword(username, string(hash))
}

// LoadUsers returns a snapshot of all users.
func (s *Store) LoadUsers() []User {
	if err := s.refresh(); err != nil {
		s.log.Warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users
}

// AddUser inserts a new user and persists the store.
func (s *Store) AddUser(user User) error {
	username, err := validateUsername(user.Username)
	if err != nil {
		return err
	}
	user.Username = username
	return s.mutate("auth user added", username, func(users map[string]User) error {
		if _, exists := users[username]; exists {
			return errors.New("user already exists")
		}
		users[username] = user
		return nil
	})
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(username, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	username, err := validateUsername(username)
	if err != nil {
		return err
	}
	return s.mutate("auth password updated", username, func(users map[string]User) error {
		user, ok := users[username]
		if !ok {
			return errors.New("user not found")
		}
		user.PasswordHash = passwordHash
		users[username] = user
		return nil
	})
}

// UpdateTOTP replaces the TOTP secret. An empty secret disables the
// second factor.
func (s *Store) UpdateTOTP(username, secret string) error {
	username, err := validateUsername(username)
	if err != nil {
		return err
	}
	return s.mutate("auth totp updated", username, func(users map[string]User) error {
		user, ok := users[username]
		if !ok {
			return errors.New("user not found")
		}
		user.TOTPSecret = secret
		users[username] = user
		return nil
	})
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(username string) error {
	username, err := validateUsername(username)
	if err != nil {
		return err
	}
	return s.mutate("auth user deleted", username, func(users map[string]User) error {
		if _, ok := users[username]; !ok {
			return errors.New("user not found")
		}
		delete(users, username)
		return nil
	})
}

// mutate applies fn under the write lock and persists on success.
func (s *Store) mutate(action, username string, fn func(map[string]User) error) error {
	if err := s.refresh(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.users); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		s.log.Warn("auth store save failed", "user", username, "err", err)
		return err
	}
	s.log.Info(action, "user", username)
	return nil
}

func (s *Store) seedFile(seeds []appconfig.SeedUser) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	users := make([]User, 0, len(seeds))
	for _, seed := range seeds {
		username, err := validateUsername(seed.Username)
		if err != nil {
			return err
		}
		users = append(users, User{
			Username:     username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	s.log.Info("auth store initialized", "users", len(users))
	return nil
}

// validateUsername enforces the same rule the SSH-less web surface can
// safely render: lowercase, digits, and -_. up to 64 runes.
func validateUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" || len(trimmed) > 64 {
		return "", errors.New("invalid username")
	}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return "", errors.New("invalid username")
		}
	}
	return trimmed, nil
}

// saveLocked writes the store atomically: temp file, fsync, rename.
func (s *Store) saveLocked() error {
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "users-*.json")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.loaded = fileStamp{modTime: info.ModTime(), size: info.Size()}
	}
	return nil
}

// refresh reloads the file when its stamp changed since the last load.
func (s *Store) refresh() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
	s.mu.RLock()
	current := s.loaded
	s.mu.RUnlock()
	if current == stamp {
		return nil
	}
	return s.load()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		s.log.Warn("auth store load failed", "err", err)
		return err
	}
	next := make(map[string]User, len(users))
	for _, user := range users {
		username, err := validateUsername(user.Username)
		if err != nil {
			s.log.Warn("auth store load failed", "user", user.Username, "err", err)
			return err
		}
		next[username] = user
	}
	s.mu.Lock()
	s.users = next
	s.loaded = fileStamp{modTime: info.ModTime(), size: info.Size()}
	s.mu.Unlock()
	s.log.Debug("auth store load ok", "users", len(next))
	return nil
}
