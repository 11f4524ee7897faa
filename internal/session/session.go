// Package session authenticates users and issues signed session tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Mutombe/cargo-space/internal/observability"
	"github.com/Mutombe/cargo-space/internal/sim"
)

const (
	DefaultLoginDelay = 1500 * time.Millisecond
	DefaultTTL        = 24 * time.Hour

	// rejectedEmail always fails login so the error path can be exercised.
	rejectedEmail = "test@error.com"
)

var (
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrMissingField       = errors.New("name and email are required")
	ErrInvalidToken       = errors.New("invalid or expired session")
	ErrNoSecret           = errors.New("session secret must not be empty")
)

type UserType string

const (
	Shipper UserType = "shipper"
	Driver  UserType = "driver"
)

func (u UserType) Valid() bool { return u == Shipper || u == Driver }

type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	UserType UserType `json:"user_type"`
}

type Credentials struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Password string   `json:"password"`
	UserType UserType `json:"user_type"`
}

// Session is the authenticated caller. It is passed explicitly rather than
// kept in process-wide state.
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	UserType UserType `json:"user_type"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	ttl    time.Duration
	delay  time.Duration
	now    func() time.Time

	mu      sync.Mutex
	users   map[string]User      // by lower-cased email
	revoked map[string]time.Time // jti -> expiry
}

func NewService(secret string, ttl, delay time.Duration) (*Service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		secret:  []byte(secret),
		ttl:     ttl,
		delay:   delay,
		now:     time.Now,
		users:   make(map[string]User),
		revoked: make(map[string]time.Time),
	}, nil
}

// Login signs the user in after the simulated round trip. Unknown emails are
// accepted and get a fresh account.
func (s *Service) Login(ctx context.Context, c Credentials) (*Session, error) {
	if err := sim.Sleep(ctx, s.delay); err != nil {
		return nil, err
	}
	email := normalizeEmail(c.Email)
	if email == "" || email == rejectedEmail {
		observability.LoginsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	s.mu.Lock()
	u, ok := s.users[email]
	if !ok {
		u = newUser(c, email)
		s.users[email] = u
	}
	s.mu.Unlock()
	observability.LoginsTotal.WithLabelValues("ok").Inc()
	return s.issue(u)
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, c Credentials) (*Session, error) {
	if err := sim.Sleep(ctx, s.delay); err != nil {
		return nil, err
	}
	email := normalizeEmail(c.Email)
	if email == rejectedEmail {
		return nil, ErrInvalidCredentials
	}
	if email == "" || strings.TrimSpace(c.Name) == "" {
		return nil, ErrMissingField
	}
	s.mu.Lock()
	if _, ok := s.users[email]; ok {
		s.mu.Unlock()
		return nil, ErrEmailTaken
	}
	u := newUser(c, email)
	s.users[email] = u
	s.mu.Unlock()
	return s.issue(u)
}

// Verify restores the session carried by token.
func (s *Service) Verify(token string) (*Session, error) {
	cl := &claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(30*time.Second),
	)
	if _, err := parser.ParseWithClaims(token, cl, func(*jwt.Token) (any, error) { return s.secret, nil }); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	s.mu.Lock()
	_, revoked := s.revoked[cl.ID]
	s.mu.Unlock()
	if revoked || cl.Subject == "" {
		return nil, ErrInvalidToken
	}
	sess := &Session{
		User:  User{ID: cl.Subject, Name: cl.Name, Email: cl.Email, Phone: cl.Phone, UserType: cl.UserType},
		Token: token,
	}
	if cl.ExpiresAt != nil {
		sess.ExpiresAt = cl.ExpiresAt.Time
	}
	return sess, nil
}

// Logout revokes token. Revoking an invalid token is an error.
func (s *Service) Logout(token string) error {
	cl := &claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if _, err := parser.ParseWithClaims(token, cl, func(*jwt.Token) (any, error) { return s.secret, nil }); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, jti)
		}
	}
	exp := now.Add(s.ttl)
	if cl.ExpiresAt != nil {
		exp = cl.ExpiresAt.Time
	}
	s.revoked[cl.ID] = exp
	return nil
}

func (s *Service) issue(u User) (*Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		UserType: u.UserType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{User: u, Token: signed, ExpiresAt: exp}, nil
}

func newUser(c Credentials, email string) User {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "Test User"
	}
	ut := c.UserType
	if !ut.Valid() {
		ut = Shipper
	}
	return User{ID: uuid.NewString(), Name: name, Email: email, Phone: strings.TrimSpace(c.Phone), UserType: ut}
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
