package service

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmptyName    = errors.New("display name must not be empty")
)

// User is a guest identity. There are no passwords; a guest exists from the
// moment a name is claimed until the server restarts.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore hands out and resolves guest identities.
type UserStore interface {
	CreateGuest(name string) (*User, error)
	Get(id string) (*User, error)
}

// InMemoryUserStore keeps guests in a map. It also satisfies the session
// registry's identity lookups.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryUserStore creates an empty store.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]*User)}
}

// CreateGuest registers a new guest with the given display name.
func (s *InMemoryUserStore) CreateGuest(name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	user := &User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()

	return user, nil
}

// Get returns the user with the given id.
func (s *InMemoryUserStore) Get(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ResolveOwner reports the display name for a prospective room owner.
func (s *InMemoryUserStore) ResolveOwner(userID string) (string, bool) {
	return s.resolve(userID)
}

// ResolvePlayerName reports the display name for a joining player.
func (s *InMemoryUserStore) ResolvePlayerName(userID string) (string, bool) {
	return s.resolve(userID)
}

func (s *InMemoryUserStore) resolve(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return "", false
	}
	return user.Name, true
}
