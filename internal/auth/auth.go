// Package auth hashes panel admin passwords and issues the bearer tokens the panel API accepts.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 12 * time.Hour
	// Issuer is the iss claim of every panel token.
	Issuer = "promptpanel"
	// MinSecretLength is the shortest HMAC secret NewTokenIssuer accepts.
	MinSecretLength = 16
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrWeakSecret         = fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
)

// HashPassword returns the bcrypt hash stored in PanelAdmin.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash with a candidate password.
// Every mismatch, including a malformed hash, is reported as ErrInvalidCredentials.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			slog.Warn("auth.CheckPassword: stored hash unusable", "error", err)
		}
		return ErrInvalidCredentials
	}
	return nil
}

// Claims are the JWT claims carried by a panel token. Subject is the admin ID.
type Claims struct {
	Email string           `json:"email"`
	Role  models.AdminRole `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 panel tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Opts holds configuration for a TokenIssuer.
type Opts struct {
	TTL time.Duration
	Now func() time.Time
}

// Option configures a TokenIssuer.
type Option func(*Opts)

// WithTTL overrides DefaultTokenTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// NewTokenIssuer builds an issuer around an HMAC secret.
func NewTokenIssuer(secret string, opts ...Option) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	cfg := Opts{TTL: DefaultTokenTTL, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: cfg.TTL, now: cfg.Now}, nil
}

// Issue signs a token for admin and returns it with its expiry.
func (ti *TokenIssuer) Issue(admin models.PanelAdmin) (string, time.Time, error) {
	now := ti.now()
	expires := now.Add(ti.ttl)
	claims := Claims{
		Email: admin.Email,
		Role:  admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   admin.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	slog.Debug("TokenIssuer.Issue: token issued", "admin", admin.ID, "jti", claims.ID, "expires", expires)
	return token, expires, nil
}

// Verify parses a token and checks signature, algorithm, issuer and time claims.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
