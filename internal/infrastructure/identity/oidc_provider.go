package identity

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"pairline/internal/core/domain"
	"pairline/pkg/cache"
	"pairline/pkg/utils"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
)

const (
	identityCacheSize   = 10000
	identityCacheMaxAge = 5 * time.Minute
)

// OIDCResolver resolves ID tokens issued by an external OpenID provider.
// It implements ports.IdentityResolver. Verified tokens are cached until
// they expire or for identityCacheMaxAge, whichever comes first.
type OIDCResolver struct {
	verifier *oidc.IDTokenVerifier
	logger   *zap.SugaredLogger
	cache    *cache.Cache[[sha256.Size]byte, domain.Identity]
	now      func() time.Time
}

// oidcClaims lists the claims read from the ID token. gender is a standard
// OIDC claim; account_type and roles are custom.
type oidcClaims struct {
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Gender            string   `json:"gender"`
	AccountType       string   `json:"account_type"`
	Roles             []string `json:"roles"`
}

// NewOIDCResolver runs discovery against issuerURL.
func NewOIDCResolver(ctx context.Context, issuerURL, clientID string, logger *zap.SugaredLogger) (*OIDCResolver, error) {
	if issuerURL == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	logger.Infow("oidc provider configured", "issuer", issuerURL, "client_id", clientID)
	return NewOIDCResolverWithVerifier(verifier, logger), nil
}

func NewOIDCResolverWithVerifier(verifier *oidc.IDTokenVerifier, logger *zap.SugaredLogger) *OIDCResolver {
	return &OIDCResolver{
		verifier: verifier,
		logger:   logger,
		cache:    cache.New[[sha256.Size]byte, domain.Identity](identityCacheSize, time.Minute),
		now:      time.Now,
	}
}

func (r *OIDCResolver) ResolveIdentity(ctx context.Context, credential string) (*domain.Identity, error) {
	key := sha256.Sum256([]byte(credential))
	if cached, ok := r.cache.Get(key); ok {
		return &cached, nil
	}

	identity, expiry, err := r.verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	until := r.now().Add(identityCacheMaxAge)
	if !expiry.IsZero() && expiry.Before(until) {
		until = expiry
	}
	r.cache.SetUntil(key, *identity, until)
	return identity, nil
}

// Close stops the cache sweeper.
func (r *OIDCResolver) Close() {
	r.cache.Stop()
}

func (r *OIDCResolver) verify(ctx context.Context, credential string) (*domain.Identity, time.Time, error) {
	token, err := r.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}

	var claims oidcClaims
	if err := token.Claims(&claims); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: malformed claims: %v", domain.ErrAuthentication, err)
	}

	name := claims.Name
	if utils.IsEmpty(name) {
		name = claims.PreferredUsername
	}

	identity := &domain.Identity{
		UserID:      domain.UserID(token.Subject),
		DisplayName: utils.TruncateRunes(utils.SanitizeString(name), 32),
		Attributes: domain.AccountAttributes{
			AccountType: domain.AccountFree,
			Role:        domain.RoleUser,
		},
	}
	if gender, err := domain.ParseGender(claims.Gender); err == nil {
		identity.Attributes.Gender = gender
	} else {
		r.logger.Debugw("ignoring unknown gender claim", "subject", token.Subject, "gender", claims.Gender)
	}
	if domain.AccountType(claims.AccountType) == domain.AccountPro {
		identity.Attributes.AccountType = domain.AccountPro
	}
	for _, role := range claims.Roles {
		if domain.UserRole(role) == domain.RoleAdmin {
			identity.Attributes.Role = domain.RoleAdmin
		}
	}
	return identity, token.Expiry, nil
}
