// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"journal/internal/domain"

	"k8s.io/utils/clock"
)

// ErrUserExists is returned by Create when the email is already registered.
var ErrUserExists = errors.New("user already exists")

// DB implements an in-memory database storage.
type DB struct {
	mu       sync.Mutex
	clock    clock.PassiveClock
	users    []*domain.User
	sessions map[string]*domain.Session
	posts    []domain.Post

	userIDCounter int64
}

// New creates a new in-memory database. A nil clock selects the wall clock.
func New(clk clock.PassiveClock) *DB {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &DB{
		clock:    clk,
		sessions: make(map[string]*domain.Session),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.PostRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrUserExists
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    db.clock.Now().UTC(),
	}
	db.users = append(db.users, u)
	cp := *u
	return &cp, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- PostRepository ---

// CreatePost stores a post.
func (db *DB) CreatePost(ctx context.Context, p domain.Post) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p.Media = append([]domain.Media{}, p.Media...)
	db.posts = append(db.posts, p)
	return nil
}

// ListPosts returns all posts, newest first.
func (db *DB) ListPosts(ctx context.Context) ([]domain.Post, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]domain.Post, len(db.posts))
	copy(result, db.posts)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeletePost removes a post by id and reports whether it existed.
func (db *DB) DeletePost(ctx context.Context, id string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, p := range db.posts {
		if p.ID == id {
			db.posts = append(db.posts[:i], db.posts[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: r.db.clock.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token. Expiry is left to the caller.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions and returns how many were removed.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.clock.Now()
	n := 0
	for k, v := range r.db.sessions {
		if v.Expired(now) {
			delete(r.db.sessions, k)
			n++
		}
	}
	return n, nil
}
