// Package auth implements the login boundary in front of the editor:
// credential checks, bearer tokens and their validation.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// Session is an issued bearer token.
type Session struct {
	Token   string
	Email   string
	Created time.Time
}

// Store checks credentials and tokens.
type Store interface {
	// Login returns a new session, or ErrInvalidCredentials.
	Login(ctx context.Context, email, password string) (Session, error)
	// Validate returns the session of a token, or ErrInvalidToken.
	Validate(ctx context.Context, token string) (Session, error)
	// AddUser creates or replaces a user.
	AddUser(ctx context.Context, email, password string) error
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() string { return uuid.NewString() }

// MemoryStore keeps users and sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string][]byte
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    map[string][]byte{},
		sessions: map[string]Session{},
		now:      time.Now,
	}
}

func (s *MemoryStore) AddUser(_ context.Context, email, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[normalizeEmail(email)] = hash
	return nil
}

func (s *MemoryStore) Login(_ context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	s.mu.RLock()
	hash, ok := s.users[email]
	s.mu.RUnlock()
	if !ok || !checkPassword(hash, password) {
		return Session{}, ErrInvalidCredentials
	}

	sess := Session{Token: newToken(), Email: email, Created: s.now()}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Validate(_ context.Context, token string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	return sess, nil
}
