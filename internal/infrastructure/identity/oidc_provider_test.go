package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"
	"time"

	"pairline/internal/core/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testIssuer   = "https://id.example.test"
	testClientID = "pairline-web"
)

func newTestResolver(t *testing.T) (*OIDCResolver, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testClientID})
	return NewOIDCResolverWithVerifier(verifier, zaptest.NewLogger(t).Sugar()), key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"sub": "user-123",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestOIDCResolver_MapsClaims(t *testing.T) {
	resolver, key := newTestResolver(t)

	token := sign(t, key, jwt.MapClaims{
		"name":         "  Dana  ",
		"gender":       "female",
		"account_type": "pro",
		"roles":        []string{"viewer", "admin"},
	})
	identity, err := resolver.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, domain.UserID("user-123"), identity.UserID)
	assert.Equal(t, "Dana", identity.DisplayName)
	assert.Equal(t, domain.GenderFemale, identity.Attributes.Gender)
	assert.True(t, identity.Attributes.IsPro())
	assert.Equal(t, domain.RoleAdmin, identity.Attributes.Role)
}

func TestOIDCResolver_DefaultsAndFallbacks(t *testing.T) {
	resolver, key := newTestResolver(t)

	token := sign(t, key, jwt.MapClaims{
		"preferred_username": "dk",
		"gender":             "nonbinary",
	})
	identity, err := resolver.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "dk", identity.DisplayName)
	assert.Equal(t, domain.GenderUnspecified, identity.Attributes.Gender)
	assert.Equal(t, domain.AccountFree, identity.Attributes.AccountType)
	assert.Equal(t, domain.RoleUser, identity.Attributes.Role)
}

func TestOIDCResolver_RejectsBadTokens(t *testing.T) {
	resolver, key := newTestResolver(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-jwt",
		"wrong key":    sign(t, other, nil),
		"wrong aud":    sign(t, key, jwt.MapClaims{"aud": "someone-else"}),
		"wrong issuer": sign(t, key, jwt.MapClaims{"iss": "https://evil.test"}),
		"expired":      sign(t, key, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.ResolveIdentity(context.Background(), token)
			assert.ErrorIs(t, err, domain.ErrAuthentication)
		})
	}
}

func TestOIDCResolver_CachesVerifiedTokens(t *testing.T) {
	resolver, key := newTestResolver(t)
	defer resolver.Close()

	token := sign(t, key, jwt.MapClaims{"name": "Dana"})
	first, err := resolver.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.cache.Len())

	first.DisplayName = "changed by caller"
	second, err := resolver.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Dana", second.DisplayName)
	assert.Equal(t, 1, resolver.cache.Len())

	_, err = resolver.ResolveIdentity(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, 1, resolver.cache.Len(), "failures are not cached")
}

func TestOIDCResolver_CacheEntryBoundedByMaxAge(t *testing.T) {
	resolver, key := newTestResolver(t)
	defer resolver.Close()

	// With the resolver clock far behind, the max-age bound already lies in
	// the past, so the verified identity is returned but not kept.
	resolver.now = func() time.Time { return time.Now().Add(-2 * identityCacheMaxAge) }

	token := sign(t, key, jwt.MapClaims{"name": "Dana"})
	identity, err := resolver.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Dana", identity.DisplayName)
	assert.Equal(t, 0, resolver.cache.Len())

	_, cached := resolver.cache.Get(sha256.Sum256([]byte(token)))
	assert.False(t, cached)
}
