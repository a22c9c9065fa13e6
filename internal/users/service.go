package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memopad-app/memopad-api/internal/ident"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 8

var (
	// ErrMissingField indicates a required signup or signin field was empty.
	ErrMissingField = errors.New("name, email and password are required")
	// ErrWeakPassword indicates the password is below the minimum length.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email is already registered")
	// ErrInvalidCredentials is returned for any signin failure, identical
	// whether the email is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("email or password is incorrect")
)

// TokenSource issues and resolves the bearer tokens handed out on signup and
// signin.
type TokenSource interface {
	IssueToken(userID string) (string, error)
	ValidateToken(token string) (string, error)
}

// CredentialHasher derives and verifies password digests.
type CredentialHasher interface {
	Hash(rawPassword string) (string, error)
	Compare(storedHash, rawPassword string) bool
	CompareDummy(rawPassword string)
}

// ServiceConfig describes the dependencies of the identity store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	IDs      ident.Provider
	Tokens   TokenSource
	Hasher   CredentialHasher
	Logger   *zap.Logger
}

// Service owns user records, credential verification and token resolution.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    ident.Provider
	tokens TokenSource
	hasher CredentialHasher
	logger *zap.Logger
}

// NewService constructs the identity store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database handle is required")
	}
	if cfg.IDs == nil {
		return nil, fmt.Errorf("users: id provider is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("users: token source is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("users: credential hasher is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDs,
		tokens: cfg.Tokens,
		hasher: cfg.Hasher,
		logger: logger,
	}, nil
}

// Register creates an account and issues its first bearer token. The raw
// password is never stored.
func (s *Service) Register(ctx context.Context, email, name, rawPassword string) (User, string, error) {
	const op = "users.register"

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" || rawPassword == "" {
		return User{}, "", ErrMissingField
	}
	if len(rawPassword) < minPasswordLength {
		return User{}, "", ErrWeakPassword
	}

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return User{}, "", ErrDuplicateEmail
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("user lookup failed", zap.String("operation", op), zap.Error(err))
		return User{}, "", fmt.Errorf("%s: lookup: %w", op, err)
	}

	digest, err := s.hasher.Hash(rawPassword)
	if err != nil {
		s.logger.Error("password hashing failed", zap.String("operation", op), zap.Error(err))
		return User{}, "", fmt.Errorf("%s: hash password: %w", op, err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return User{}, "", fmt.Errorf("%s: generate id: %w", op, err)
	}

	now := s.clock().UTC().Unix()
	user := User{
		ID:               id,
		Email:            email,
		Name:             name,
		PasswordHash:     digest,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logger.Error("user insert failed", zap.String("operation", op), zap.Error(err))
		return User{}, "", fmt.Errorf("%s: insert: %w", op, err)
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		s.logger.Error("token issue failed", zap.String("operation", op), zap.Error(err))
		return User{}, "", fmt.Errorf("%s: issue token: %w", op, err)
	}

	return user, token, nil
}

// Authenticate verifies credentials and issues a fresh bearer token.
func (s *Service) Authenticate(ctx context.Context, email, rawPassword string) (User, string, error) {
	const op = "users.authenticate"

	email = strings.TrimSpace(email)
	if email == "" || rawPassword == "" {
		return User{}, "", ErrMissingField
	}

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a comparison so the unknown-email path costs the same.
		s.hasher.CompareDummy(rawPassword)
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("operation", op), zap.Error(err))
		return User{}, "", fmt.Errorf("%s: lookup: %w", op, err)
	}

	if !s.hasher.Compare(user.PasswordHash, rawPassword) {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		s.logger.Error("token issue failed", zap.String("operation", op), zap.Error(err))
		return User{}, "", fmt.Errorf("%s: issue token: %w", op, err)
	}

	return user, token, nil
}

// ResolveToken maps a bearer token to its user. Malformed or unknown tokens
// resolve to nil rather than an error; callers treat nil as anonymous.
func (s *Service) ResolveToken(ctx context.Context, token string) (*User, error) {
	const op = "users.resolve_token"

	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	subject, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, nil
	}

	var user User
	err = s.db.WithContext(ctx).Where("id = ?", subject).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("operation", op), zap.Error(err))
		return nil, fmt.Errorf("%s: lookup: %w", op, err)
	}

	return &user, nil
}
