// Package auth mints bearer tokens for requests against services that expect
// an HS256 JWT carrying a user_id claim.
package auth

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ioc-labs/surge/internal/config"
)

// ErrNoSecret is returned when neither the config nor the environment
// provides a signing secret.
var ErrNoSecret = errors.New("no JWT signing secret configured")

// refreshBefore is how long before expiry a cached token is replaced.
const refreshBefore = time.Minute

// Claims is the token payload.
type Claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// Signer issues tokens for a single user and caches them until shortly
// before they expire. It is safe for concurrent use.
type Signer struct {
	secret []byte
	userID int
	issuer string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewSigner builds a signer from cfg. The secret comes from cfg.Secret or,
// if empty, from the environment variable named by cfg.SecretEnv.
func NewSigner(cfg *config.AuthConfig) (*Signer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is nil")
	}

	secret := cfg.Secret
	if secret == "" && cfg.SecretEnv != "" {
		secret = os.Getenv(cfg.SecretEnv)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w (set settings.auth.secret or $%s)", ErrNoSecret, cfg.SecretEnv)
	}

	ttl := 24 * time.Hour
	if cfg.TTL != "" {
		d, err := config.ParseDurationString(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid auth ttl: %w", err)
		}
		ttl = d
	}

	return &Signer{
		secret: []byte(secret),
		userID: cfg.UserID,
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Token returns a valid signed token, minting a new one when the cached
// token is missing or close to expiry.
func (s *Signer) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(refreshBefore).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := Claims{
		UserID: s.userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("user-%d", s.userID),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.token = signed
	s.expires = expires
	return signed, nil
}

// Parse validates a token signed with the same secret and returns its claims.
func (s *Signer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
