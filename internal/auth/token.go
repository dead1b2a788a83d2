// Package auth provides session tokens, password hashing, OAuth providers
// and the request guard for the snippet-sharing API.
//
// SESSION FLOW:
//  1. A user authenticates (password login or OAuth callback)
//  2. The server issues a signed session token embedding the public identity
//  3. The token rides in an HttpOnly cookie on every subsequent request
//  4. The guard validates it and puts the identity in the request context
//
// The token is a stateless HS256 JWT: no session table, no store lookup on
// the hot path. All the server needs to trust a request is the signature.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "snipshare"

// Sentinel validation failures. The guard treats them all as "deny", but
// keeping them distinct makes tests and debug logs precise.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenStale marks a token issued before the current server process
	// started. A restart (deploy) deliberately invalidates every session.
	ErrTokenStale   = errors.New("auth: token issued before server start")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Identity is the public slice of a user embedded in session tokens. Once
// the signature verifies, these fields are trusted without a store round
// trip — which is why nothing sensitive (role, password hash) belongs here.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// TokenService issues and validates session tokens.
//
// A token is valid when ALL of these hold:
//   - the HS256 signature verifies against the server secret
//   - the issuer claim matches
//   - issued-at is no older than maxAge (periodic re-auth regardless of activity)
//   - issued-at is not before startedAt (server restart kills all sessions)
//
// startedAt is explicit lifecycle state rather than an implicit global so
// tests can simulate a restart by constructing a second service.
type TokenService struct {
	secret    []byte
	maxAge    time.Duration
	startedAt time.Time
}

// NewTokenService creates a TokenService.
//
// secret must be at least 16 characters of random data (32+ in production).
// startedAt is the current process start time; pass time.Now() from main.
func NewTokenService(secret string, maxAge time.Duration, startedAt time.Time) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if maxAge <= 0 {
		return nil, errors.New("auth: session max age must be positive")
	}
	return &TokenService{
		secret:    []byte(secret),
		maxAge:    maxAge,
		startedAt: startedAt.Truncate(time.Second), // JWT timestamps have second precision
	}, nil
}

// claims is the JWT payload: registered claims (sub = user ID, iat, exp)
// plus the identity display fields, mirroring what the login response shows.
type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// Issue creates and signs a session token for the given identity.
func (s *TokenService) Issue(id Identity) (string, error) {
	return s.issueAt(id, time.Now())
}

// issueAt signs a token with an explicit issued-at. Split out so tests can
// backdate tokens to exercise the max-age and restart rules.
func (s *TokenService) issueAt(id Identity, issuedAt time.Time) (string, error) {
	if id.ID == "" {
		return "", fmt.Errorf("auth: identity has no user ID")
	}

	c := claims{
		Name:  id.Name,
		Email: id.Email,
		Image: id.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a session token and returns the identity it
// embeds.
//
// Beyond the library checks (signature, HS256 only, issuer, expiry), it
// enforces the two issued-at rules: max session age and the process-restart
// cutoff. The restart check is what forces a full re-login after a deploy.
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}
	if c.IssuedAt == nil {
		return nil, fmt.Errorf("%w: no issued-at", ErrTokenInvalid)
	}

	issuedAt := c.IssuedAt.Time
	if issuedAt.Before(s.startedAt) {
		return nil, ErrTokenStale
	}
	if time.Since(issuedAt) > s.maxAge {
		// Belt and braces: exp normally catches this, but exp is derived
		// from iat at issue time and maxAge may have been shortened since.
		return nil, ErrTokenExpired
	}

	return &Identity{
		ID:    c.Subject,
		Name:  c.Name,
		Email: c.Email,
		Image: c.Image,
	}, nil
}

// Renew validates an existing token and reissues a fresh one carrying the
// same identity. No store lookup: the embedded identity is trusted once the
// signature verifies. Invalid, expired and stale tokens cannot be renewed.
func (s *TokenService) Renew(tokenStr string) (string, error) {
	id, err := s.Validate(tokenStr)
	if err != nil {
		return "", err
	}
	return s.Issue(*id)
}

// MaxAge reports the configured session lifetime. Handlers use it to set
// the cookie Max-Age so the cookie and the token expire together.
func (s *TokenService) MaxAge() time.Duration {
	return s.maxAge
}
