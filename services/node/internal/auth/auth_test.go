package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisleco/aisle-open/pkg/config"
)

func testManager(t *testing.T, cfg *config.Config, revocations RevocationStore) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = config.New()
	}
	m, err := NewManager(cfg, nil, revocations)
	require.NoError(t, err)
	return m
}

func TestLoginIssuesValidToken(t *testing.T) {
	m := testManager(t, nil, nil)
	ctx := context.Background()

	assert.Len(t, m.Users(), 3)

	token, err := m.Login(ctx, "user1", "password1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user1", username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	m := testManager(t, nil, nil)
	ctx := context.Background()

	_, err := m.Login(ctx, "user1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	m := testManager(t, nil, nil)
	ctx := context.Background()

	token, err := m.Login(ctx, "user2", "password2")
	require.NoError(t, err)

	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx, token))

	_, err = m.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// logout is idempotent
	assert.NoError(t, m.Logout(ctx, token))
}

func TestValidateRejectsForgedTokens(t *testing.T) {
	m := testManager(t, nil, nil)
	ctx := context.Background()

	_, err := m.Validate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// a token signed with a different secret is refused
	otherCfg := config.New()
	otherCfg.Set("auth.jwt_secret", "a-different-secret")
	other := testManager(t, otherCfg, nil)

	forged, err := other.Login(ctx, "user1", "password1")
	require.NoError(t, err)
	_, err = m.Validate(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// TestTokensValidAcrossNodes covers the stateless property: a token minted
// by one node is accepted by every node sharing the secret.
func TestTokensValidAcrossNodes(t *testing.T) {
	ctx := context.Background()

	a := testManager(t, nil, nil)
	b := testManager(t, nil, nil)

	token, err := a.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	username, err := b.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", username)

	// with per-node revocation lists a logout is local only
	require.NoError(t, a.Logout(ctx, token))
	_, err = a.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = b.Validate(ctx, token)
	assert.NoError(t, err)
}

func TestSharedRevocationsPropagateLogout(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryRevocations()

	a := testManager(t, nil, shared)
	b := testManager(t, nil, shared)

	token, err := a.Login(ctx, "user1", "password1")
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, token))

	_, err = b.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConfiguredUsers(t *testing.T) {
	cfg := config.New()
	cfg.Set("auth.users", "alice:wonder, bob:builder")
	m := testManager(t, cfg, nil)
	ctx := context.Background()

	_, err := m.Login(ctx, "alice", "wonder")
	assert.NoError(t, err)
	_, err = m.Login(ctx, "bob", "builder")
	assert.NoError(t, err)

	// the default users are replaced, not merged
	_, err = m.Login(ctx, "user1", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMalformedUserEntryRejected(t *testing.T) {
	cfg := config.New()
	cfg.Set("auth.users", "alice:wonder,broken")
	_, err := NewManager(cfg, nil, nil)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := config.New()
	cfg.Set("auth.token_ttl", "-1s")
	m := testManager(t, cfg, nil)
	ctx := context.Background()

	token, err := m.Login(ctx, "user1", "password1")
	require.NoError(t, err)

	_, err = m.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// logging out an expired token still succeeds
	assert.NoError(t, m.Logout(ctx, token))
}

func TestMemoryRevocationsExpire(t *testing.T) {
	store := NewMemoryRevocations()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-1", 50*time.Millisecond))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	time.Sleep(80 * time.Millisecond)

	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
