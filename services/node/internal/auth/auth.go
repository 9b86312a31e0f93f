package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/aisleco/aisle-open/pkg/logger"
)

const (
	defaultSecret   = "your-secret-key-change-in-production"
	defaultTokenTTL = 24 * time.Hour
	defaultUsers    = "user1:password1,user2:password2,admin:admin123"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Claims is the token payload. ID carries the jti used for revocation.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager issues and validates HS256 tokens. Validation is stateless so a
// token minted by any node is accepted by every node; logout revokes the
// token's jti until its natural expiry.
type Manager struct {
	logger      *logger.Logger
	secret      []byte
	tokenTTL    time.Duration
	revocations RevocationStore

	mu    sync.RWMutex
	users map[string][]byte
}

// NewManager builds a manager from configuration. Users come from
// "auth.users" as comma-separated username:password pairs; passwords are
// bcrypt-hashed at load and never kept in plain text.
func NewManager(cfg *config.Config, log *logger.Logger, revocations RevocationStore) (*Manager, error) {
	secret := cfg.GetOrDefault("auth.jwt_secret", defaultSecret)
	ttl := cfg.GetDuration("auth.token_ttl", defaultTokenTTL)
	if revocations == nil {
		revocations = NewMemoryRevocations()
	}

	m := &Manager{
		logger:      log,
		secret:      []byte(secret),
		tokenTTL:    ttl,
		revocations: revocations,
		users:       make(map[string][]byte),
	}

	for _, pair := range strings.Split(cfg.GetOrDefault("auth.users", defaultUsers), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		username, password, ok := strings.Cut(pair, ":")
		if !ok || username == "" {
			return nil, fmt.Errorf("malformed auth.users entry %q", pair)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %v", username, err)
		}
		m.users[username] = hash
	}

	if log != nil {
		log.Infof("Auth manager ready with %d users, token TTL %s", len(m.users), ttl)
	}
	return m, nil
}

// Login checks credentials and mints a token
func (m *Manager) Login(ctx context.Context, username, password string) (string, error) {
	m.mu.RLock()
	hash, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	if m.logger != nil {
		m.logger.Infof("User %s logged in", username)
	}
	return token, nil
}

// Validate checks a token's signature, expiry and revocation status and
// returns the authenticated username.
func (m *Manager) Validate(ctx context.Context, token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	revoked, err := m.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		// revocation backend trouble must not lock every user out;
		// fall back to signature-only validation
		if m.logger != nil {
			m.logger.Warnf("Revocation check failed, accepting token on signature only: %v", err)
		}
		return claims.Username, nil
	}
	if revoked {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

// Logout revokes the token until its natural expiry. Unknown or expired
// tokens succeed; logout is idempotent.
func (m *Manager) Logout(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := m.revocations.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %v", err)
	}
	if m.logger != nil {
		m.logger.Infof("User %s logged out", claims.Username)
	}
	return nil
}

// Users returns the configured usernames, for status surfaces
func (m *Manager) Users() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.users))
	for username := range m.users {
		out = append(out, username)
	}
	return out
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Username == "" {
		claims.Username = claims.Subject
	}
	if claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
