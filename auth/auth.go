/*
Package auth manages operator accounts and session tokens.

PURPOSE:
  Operators (staff) authenticate with email + password and receive an
  HS256 JWT carrying their identity and role. The ledger core receives
  only the operator ID for attribution; everything credential-shaped
  stays in this package.

ROLES:
  admin    - catalog mutation, grant recording, dashboard, audit
  operador - redemption processing and reads

  The first registered account becomes admin; later registrations are
  operadores. There is no self-service role escalation.

PASSWORDS:
  bcrypt behind a small PasswordHasher interface so the algorithm can
  be swapped without touching the service.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// USERS
// =============================================================================

const (
	RoleAdmin    = "admin"
	RoleOperador = "operador"
)

// User is an operator account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Store persists operator accounts.
type Store interface {
	// UserByEmail returns (nil, nil) when no account matches.
	UserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u User) error
	CountUsers(ctx context.Context) (int64, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrWeakPassword   = errors.New("password too short")
)

// =============================================================================
// PASSWORD HASHING
// =============================================================================

// PasswordHasher abstracts the hash algorithm.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher is the default implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// =============================================================================
// SERVICE
// =============================================================================

// Claims is the verified identity extracted from a session token.
type Claims struct {
	UserID string
	Name   string
	Role   string
}

// IsAdmin reports whether the claims carry the admin role.
func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// Service orchestrates registration, login, and token verification.
type Service struct {
	Store  Store
	Hasher PasswordHasher
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewService(store Store, secret []byte, ttl time.Duration) *Service {
	return &Service{
		Store:  store,
		Hasher: BcryptHasher{},
		Secret: secret,
		TTL:    ttl,
		Now:    time.Now,
	}
}

// Register creates an operator account. The first account in an empty
// store becomes admin.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrBadCredentials
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	existing, err := s.Store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	count, err := s.Store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	role := RoleOperador
	if count == 0 {
		role = RoleAdmin
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := User{
		ID:           ksuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.Now().UTC(),
	}
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login verifies credentials and issues a session token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Store.UserByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if u == nil || !s.Hasher.Verify(u.PasswordHash, password) {
		return "", nil, ErrBadCredentials
	}

	now := s.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  u.ID,
		"name": u.Name,
		"role": u.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.TTL).Unix(),
	})
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, u, nil
}

// Verify parses and validates a session token.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.Secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.Now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := mc["sub"].(string)
	name, _ := mc["name"].(string)
	role, _ := mc["role"].(string)
	if sub == "" || role == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: sub, Name: name, Role: role}, nil
}
