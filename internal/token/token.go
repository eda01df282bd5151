// Package token issues and verifies the access and refresh credentials that
// establish caller identity. Access tokens are stateless; refresh tokens
// carry a jti so early logout can blocklist them until natural expiry.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"taskdesk/internal/domain"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens, and wrong
	// signing methods.
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionRevoked means the refresh token was logged out before its
	// natural expiry.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionNotFound means the refresh token's subject no longer
	// resolves to an identity.
	ErrSessionNotFound = errors.New("session subject not found")
)

// SessionStore is the persisted refresh-token revocation collaborator.
type SessionStore interface {
	RevokeSession(ctx context.Context, s domain.RevokedSession) error
	IsSessionRevoked(ctx context.Context, jti string) (bool, error)
}

// IdentityStore resolves whether a refresh subject still exists.
type IdentityStore interface {
	IdentityExists(ctx context.Context, id string) (bool, error)
}

// Service signs and verifies HS256 credentials. Verification is pure apart
// from the two collaborator lookups on the refresh path.
type Service struct {
	AccessSecret  []byte
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Sessions      SessionStore
	Identities    IdentityStore
	Now           func() time.Time
}

// Credential is a signed token plus its expiry, so the transport layer can
// build a cookie without re-parsing the token.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IssueAccess signs a short-lived access token for the identity. The ttl is
// caller-specified: 15 minutes at login/signup, 1 minute at silent refresh.
func (s Service) IssueAccess(identityID string, ttl time.Duration) (Credential, error) {
	if len(s.AccessSecret) == 0 {
		return Credential{}, errors.New("access secret not configured")
	}
	return s.sign(s.AccessSecret, identityID, "", ttl)
}

// IssueRefresh signs a long-lived refresh token carrying a fresh jti.
func (s Service) IssueRefresh(identityID string) (Credential, error) {
	if len(s.RefreshSecret) == 0 {
		return Credential{}, errors.New("refresh secret not configured")
	}
	ttl := s.RefreshTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return s.sign(s.RefreshSecret, identityID, uuid.New().String(), ttl)
}

func (s Service) sign(secret []byte, subject, jti string, ttl time.Duration) (Credential, error) {
	now := s.now()
	expires := now.Add(ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return Credential{}, fmt.Errorf("sign token: %w", err)
	}
	return Credential{Token: signed, ExpiresAt: expires}, nil
}

func (s Service) parse(secret []byte, token string) (*claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || c.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return c, nil
}

// VerifyAccess returns the identity id an access token vouches for.
func (s Service) VerifyAccess(token string) (string, error) {
	c, err := s.parse(s.AccessSecret, token)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// VerifyRefresh returns the identity id a refresh token vouches for,
// rejecting revoked sessions and subjects that no longer exist.
func (s Service) VerifyRefresh(ctx context.Context, token string) (string, error) {
	c, err := s.parse(s.RefreshSecret, token)
	if err != nil {
		return "", err
	}
	if s.Sessions != nil && c.ID != "" {
		revoked, err := s.Sessions.IsSessionRevoked(ctx, c.ID)
		if err != nil {
			return "", err
		}
		if revoked {
			return "", ErrSessionRevoked
		}
	}
	if s.Identities != nil {
		exists, err := s.Identities.IdentityExists(ctx, c.Subject)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", ErrSessionNotFound
		}
	}
	return c.Subject, nil
}

// Revoke blocklists a refresh token's jti. Invalid, expired, or absent
// tokens are a no-op: logout must succeed whether or not a session is
// active.
func (s Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	c, err := s.parse(s.RefreshSecret, token)
	if err != nil {
		return nil
	}
	if s.Sessions == nil || c.ID == "" {
		return nil
	}
	return s.Sessions.RevokeSession(ctx, domain.RevokedSession{
		JTI:       c.ID,
		Subject:   c.Subject,
		ExpiresAt: c.ExpiresAt.UTC().Format(time.RFC3339),
		RevokedAt: s.now().UTC().Format(time.RFC3339),
	})
}
