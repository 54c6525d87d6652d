package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	ErrExpiredToken = fmt.Errorf("%w: token expired", domain.ErrAuthentication)
	ErrMissingToken = fmt.Errorf("%w: missing credential", domain.ErrAuthentication)
	ErrWrongKind    = fmt.Errorf("%w: wrong token kind", domain.ErrAuthentication)
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

type AuthService interface {
	ports.IdentityResolver
	IssueGuest(displayName string, gender domain.Gender) (*TokenPair, *domain.Identity, error)
	IssueTokens(identity *domain.Identity) (*TokenPair, error)
	ValidateToken(tokenString string) (*Claims, error)
	Refresh(refreshToken string) (*TokenPair, error)
}

type Claims struct {
	UserID      domain.UserID      `json:"user_id"`
	DisplayName string             `json:"display_name"`
	AccountType domain.AccountType `json:"account_type"`
	Gender      domain.Gender      `json:"gender,omitempty"`
	Role        domain.UserRole    `json:"role"`
	Kind        string             `json:"kind"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() *domain.Identity {
	return &domain.Identity{
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		Attributes: domain.AccountAttributes{
			AccountType: c.AccountType,
			Gender:      c.Gender,
			Role:        c.Role,
		},
	}
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type authService struct {
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	users           ports.UserRepository   // optional
	external        ports.IdentityResolver // optional, e.g. OIDC
	logger          *zap.SugaredLogger
	now             func() time.Time
}

func NewAuthService(
	jwtSecret string,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	users ports.UserRepository,
	external ports.IdentityResolver,
	logger *zap.SugaredLogger,
) AuthService {
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		users:           users,
		external:        external,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *authService) IssueGuest(displayName string, gender domain.Gender) (*TokenPair, *domain.Identity, error) {
	identity := &domain.Identity{
		UserID:      domain.UserID("guest_" + uuid.NewString()),
		DisplayName: displayName,
		Attributes: domain.AccountAttributes{
			AccountType: domain.AccountFree,
			Gender:      gender,
			Role:        domain.RoleUser,
		},
	}
	pair, err := s.IssueTokens(identity)
	if err != nil {
		return nil, nil, err
	}
	return pair, identity, nil
}

func (s *authService) IssueTokens(identity *domain.Identity) (*TokenPair, error) {
	access, expiresAt, err := s.sign(identity, tokenKindAccess, s.accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, _, err := s.sign(identity, tokenKindRefresh, s.refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

func (s *authService) sign(identity *domain.Identity, kind string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		AccountType: identity.Attributes.AccountType,
		Gender:      identity.Attributes.Gender,
		Role:        identity.Attributes.Role,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity.UserID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	return signed, expiresAt, err
}

func (s *authService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ValidateToken accepts access tokens only.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokenKindAccess {
		return nil, ErrWrongKind
	}
	return claims, nil
}

func (s *authService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokenKindRefresh {
		return nil, ErrWrongKind
	}
	return s.IssueTokens(claims.Identity())
}

// ResolveIdentity validates a bearer credential. Locally signed tokens are
// tried first, then the external provider if one is configured. Attributes
// stored in the user repository take precedence over token claims.
func (s *authService) ResolveIdentity(ctx context.Context, credential string) (*domain.Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return nil, ErrMissingToken
	}

	var identity *domain.Identity
	claims, err := s.ValidateToken(credential)
	switch {
	case err == nil:
		identity = claims.Identity()
	case s.external != nil && !errors.Is(err, ErrExpiredToken):
		identity, err = s.external.ResolveIdentity(ctx, credential)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if s.users != nil {
		profile, err := s.users.GetByID(ctx, identity.UserID)
		switch {
		case err == nil:
			overlayAttributes(&identity.Attributes, profile.Attributes)
			if profile.DisplayName != "" {
				identity.DisplayName = profile.DisplayName
			}
		case errors.Is(err, domain.ErrUserNotFound):
		default:
			s.logger.Warnw("user store lookup failed, using token attributes",
				"user_id", identity.UserID,
				"error", err,
			)
		}
	}

	if identity.Attributes.AccountType == "" {
		identity.Attributes.AccountType = domain.AccountFree
	}
	if identity.Attributes.Role == "" {
		identity.Attributes.Role = domain.RoleUser
	}
	return identity, nil
}

// overlayAttributes copies the stored attributes that are set. Profiles
// created only to count reports carry no attributes.
func overlayAttributes(dst *domain.AccountAttributes, stored domain.AccountAttributes) {
	if stored.AccountType != "" {
		dst.AccountType = stored.AccountType
	}
	if stored.Gender != "" {
		dst.Gender = stored.Gender
	}
	if stored.Role != "" {
		dst.Role = stored.Role
	}
}
