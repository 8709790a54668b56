package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go-auth-service/internal/model"
)

// MemoryUserRepository is a mutex-guarded in-memory credential store with the
// same contract as the Postgres repository, including atomic enforcement of
// username uniqueness. It backs tests and local development without a database.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]model.User
	byUsername map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       map[string]model.User{},
		byUsername: map[string]string{},
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) error {
	key := strings.ToLower(u.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check and insert under one lock: concurrent creates of the same
	// username yield exactly one success.
	if _, exists := r.byUsername[key]; exists {
		return model.ErrUserAlreadyExists
	}

	r.byID[u.ID] = u
	r.byUsername[key] = u.ID
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.byID[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.byID[userID]
	if !exists {
		return model.ErrUserNotFound
	}

	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.byID[id]
	if !exists {
		return model.ErrUserNotFound
	}

	delete(r.byID, id)
	delete(r.byUsername, strings.ToLower(u.Username))
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]model.PublicUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.PublicUser, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u.Public())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *MemoryUserRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

type storedToken struct {
	userID    string
	expiresAt time.Time
}

// MemoryTokenRepository mirrors the Postgres refresh-token repository.
type MemoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]storedToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: map[string]storedToken{}}
}

func (r *MemoryTokenRepository) Store(_ context.Context, token string, userID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token] = storedToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *MemoryTokenRepository) Validate(_ context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.tokens[token]
	if !exists || time.Now().After(stored.expiresAt) {
		return "", model.ErrTokenNotFound
	}
	return stored.userID, nil
}

func (r *MemoryTokenRepository) Revoke(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, token)
	return nil
}

func (r *MemoryTokenRepository) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, stored := range r.tokens {
		if stored.userID == userID {
			delete(r.tokens, token)
		}
	}
	return nil
}

func (r *MemoryTokenRepository) CleanExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	now := time.Now()
	for token, stored := range r.tokens {
		if !stored.expiresAt.After(now) {
			delete(r.tokens, token)
			removed++
		}
	}
	return removed, nil
}
