// Package auth verifies bearer tokens issued by the club's identity service.
// Tokens are HS256 JWTs; the engine never issues them outside of tests and
// local tooling.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/superheroes-club/luz-engine/internal/application/access"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("auth: missing bearer token")

	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnknownRole is returned when the role claim is not recognised.
	ErrUnknownRole = errors.New("auth: unknown role")
)

// ══════════════════════════════════════════════════════════════════════════════
// PRINCIPAL
// ══════════════════════════════════════════════════════════════════════════════

// Principal is the verified identity behind a request.
type Principal struct {
	UserID   string
	Email    string
	Name     string
	Language string
	Role     access.Role
}

// Actor converts the principal for commands and queries.
func (p Principal) Actor() access.Actor {
	return access.Actor{UserID: p.UserID, Role: p.Role}
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Language string `json:"lang,omitempty"`
	Role     string `json:"role"`
}

// ══════════════════════════════════════════════════════════════════════════════
// VERIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains verifier configuration.
type Config struct {
	Secret   string
	Issuer   string
	Audience string

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// Verifier checks HS256 tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewVerifier creates a new Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("auth: secret must be at least 32 bytes")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v := &Verifier{secret: []byte(cfg.Secret), now: time.Now}
	opts = append(opts, jwt.WithTimeFunc(func() time.Time { return v.now() }))
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// Verify parses a raw token.
func (v *Verifier) Verify(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}

	role, err := parseRole(claims.Role)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Language: claims.Language,
		Role:     role,
	}, nil
}

// VerifyHeader extracts the token from an Authorization header value.
func (v *Verifier) VerifyHeader(header string) (Principal, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return Principal{}, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Issue signs a token. Used by local tooling and tests.
func (v *Verifier) Issue(p Principal, ttl time.Duration, issuer, audience string) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:    p.Email,
		Name:     p.Name,
		Language: p.Language,
		Role:     string(p.Role),
	}
	if issuer != "" {
		claims.Issuer = issuer
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// parseRole accepts parent and admin. The system role is never granted by a
// token.
func parseRole(s string) (access.Role, error) {
	switch access.Role(strings.ToLower(s)) {
	case access.RoleParent, "":
		return access.RoleParent, nil
	case access.RoleAdmin:
		return access.RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}
