// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"journal/internal/domain"

	"golang.org/x/crypto/bcrypt"
	"k8s.io/utils/clock"
)

// DefaultSessionTTL is how long an issued session stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials indicates that the provided email or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialsRequired indicates that the email or password was empty.
	ErrCredentialsRequired = errors.New("email and password are required")
	// ErrUnauthenticated indicates that no valid session backs the request.
	ErrUnauthenticated = errors.New("unauthorized")
	// ErrStoreUnavailable wraps failures of the credential or session store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUsersExist is returned when seeding a store that already has an author.
	ErrUsersExist = errors.New("users already exist")
)

// AuthService handles password verification and session management.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	clock    clock.PassiveClock
	ttl      time.Duration
	cost     int

	// dummyHash is compared against when the email is unknown so both
	// rejection paths cost one bcrypt comparison.
	dummyHash []byte
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithClock sets the time source used for session expiry.
func WithClock(clk clock.PassiveClock) AuthOption {
	return func(s *AuthService) { s.clock = clk }
}

// WithSessionTTL sets the lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBcryptCost sets the cost used by HashPassword.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.cost = cost }
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:    users,
		sessions: sessions,
		clock:    clock.RealClock{},
		ttl:      DefaultSessionTTL,
		cost:     DefaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash = newDummyHash(s.cost)
	return s
}

// SessionTTL returns the lifetime applied to new sessions.
func (s *AuthService) SessionTTL() time.Duration {
	return s.ttl
}

// HashPassword hashes plaintext with the service's bcrypt cost.
func (s *AuthService) HashPassword(plaintext string) (string, error) {
	return HashPassword(plaintext, s.cost)
}

// VerifyPassword reports whether plaintext matches hash.
func (s *AuthService) VerifyPassword(plaintext, hash string) bool {
	return VerifyPassword(plaintext, hash)
}

// Authenticate checks an email and password against the credential store.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials and
// cost one bcrypt comparison each.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%w: get user by email: %w", ErrStoreUnavailable, err)
	}

	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates a user and creates a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.CreateSession(ctx, user.ID)
}

// LoginWithUser creates a session for an identity already proven elsewhere
// (e.g. via SSO). The email must belong to an existing author.
func (s *AuthService) LoginWithUser(ctx context.Context, email string) (*domain.Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%w: get user by email: %w", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return s.CreateSession(ctx, user.ID)
}

// CreateSession issues a new opaque token bound to userID.
func (s *AuthService) CreateSession(ctx context.Context, userID int64) (*domain.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess := &domain.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, userID, token, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// CurrentSession returns the user bound to token when the session exists and
// has not expired. Expired sessions are removed as they are found.
func (s *AuthService) CurrentSession(ctx context.Context, token string) (int64, bool, error) {
	if token == "" {
		return 0, false, nil
	}

	sess, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return 0, false, fmt.Errorf("%w: get session: %w", ErrStoreUnavailable, err)
	}
	if sess == nil {
		return 0, false, nil
	}

	if sess.Expired(s.clock.Now()) {
		_ = s.sessions.Delete(ctx, token)
		return 0, false, nil
	}
	return sess.UserID, true, nil
}

// ValidateSession resolves token to a user that still exists in the
// credential store.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	userID, ok, err := s.CurrentSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get user by id: %w", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// IsAuthenticated reports whether token resolves to an existing user.
func (s *AuthService) IsAuthenticated(ctx context.Context, token string) (bool, error) {
	_, err := s.ValidateSession(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DestroySession invalidates a session. Unknown or empty tokens are not an error.
func (s *AuthService) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("%w: delete session: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// PruneSessions deletes expired sessions from the session store.
func (s *AuthService) PruneSessions(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpired(ctx)
}

// CreateInitialUser creates the first user if no users exist.
func (s *AuthService) CreateInitialUser(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return ErrCredentialsRequired
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrUsersExist
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = s.users.Create(ctx, email, hash)
	return err
}

func newDummyHash(cost int) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("journal:no-such-user"), cost)
	if err != nil {
		h, _ = bcrypt.GenerateFromPassword([]byte("journal:no-such-user"), DefaultBcryptCost)
	}
	return h
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
