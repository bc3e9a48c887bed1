package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/healthtrack-api/internal/config"
	"github.com/healthtrack-api/internal/domain"
	"github.com/healthtrack-api/internal/pkg/id"
	"github.com/healthtrack-api/internal/pkg/identity"
)

// Token type claims. A refresh token presented where an access token is
// expected (or vice versa) fails verification with ErrTokenWrongType.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims holds the signed token payload.
type Claims struct {
	IdentityKey string `json:"identity_key"`
	TokenType   string `json:"type"`
	Scope       string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access + refresh token set.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Provider signs and verifies HS256 tokens: three dot-joined base64url
// segments with an HMAC-SHA256 signature over header.payload. The library
// compares signatures in constant time.
type Provider struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("TOKEN_SECRET is not set")
	}
	return &Provider{
		secret:     []byte(cfg.TokenSecret),
		issuer:     cfg.TokenIssuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// MintPair issues an access and a refresh token for the identity. Each token
// carries its own jti so the pair can be told apart in the session table.
func (p *Provider) MintPair(identityKey string) (*Pair, error) {
	now := p.now().UTC()
	accessExp := now.Add(p.accessTTL)
	refreshExp := now.Add(p.refreshTTL)

	access, err := p.mint(identityKey, TypeAccess, "read:own_data write:own_data", now, accessExp)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := p.mint(identityKey, TypeRefresh, "", now, refreshExp)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (p *Provider) mint(identityKey, tokenType, scope string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		IdentityKey: identityKey,
		TokenType:   tokenType,
		Scope:       scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Verify checks the token signature, expiry, issuer, identity and type, and
// returns the claims. Failures map to the domain token error kinds; callers
// report all of them to the client as a uniform 401 and keep the specific
// reason for the audit trail.
func (p *Provider) Verify(tokenStr, wantType string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, domain.ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		default:
			return nil, domain.ErrTokenMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrTokenMalformed
	}
	if claims.Issuer != p.issuer {
		return nil, domain.ErrTokenIssuerMismatch
	}
	if !identity.ValidKey(claims.IdentityKey) {
		return nil, domain.ErrTokenMissingIdentity
	}
	if claims.TokenType != wantType {
		return nil, domain.ErrTokenWrongType
	}
	return claims, nil
}
