// Package service contains the business logic layer: validation, business
// rules and orchestration, with no knowledge of HTTP or SQL.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (DB)
//	                   ↘ TokenService (session tokens)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// Credential is the tagged union of authentication variants. Exactly two
// types implement it: PasswordCredential and ExternalIdentity. A single
// Authenticate entry point consumes either — no shape-sniffing on raw maps.
type Credential interface {
	credential()
}

// PasswordCredential authenticates by email + plaintext password.
type PasswordCredential struct {
	Email    string
	Password string
}

func (PasswordCredential) credential() {}

// ExternalIdentity authenticates by a verified OAuth provider assertion.
// The Profile has already been fetched server-to-server by the provider's
// Exchange, so it is trusted here.
type ExternalIdentity struct {
	Provider string
	Profile  auth.Profile
}

func (ExternalIdentity) credential() {}

// AuthResult bundles the authenticated identity and its session token so
// the handler can set the cookie and respond in one step.
type AuthResult struct {
	Identity *auth.Identity
	Token    string
}

// AuthService handles registration and authentication.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	logger    *slog.Logger
	debug     bool
}

// NewAuthService creates an AuthService. debug enables verbose logging of
// authentication failure causes; the error returned to callers stays
// generic either way.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
	debug bool,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
		debug:     debug,
	}
}

// Register creates a password-based account. All four fields are required;
// a duplicate email (case-insensitive) fails with ErrConflict.
func (s *AuthService) Register(ctx context.Context, name, role, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	role = strings.TrimSpace(role)
	email = strings.ToLower(strings.TrimSpace(email))

	switch {
	case name == "":
		return nil, apperror.ValidationFailed("name", "name is required")
	case role == "":
		return nil, apperror.ValidationFailed("role", "role is required")
	case email == "":
		return nil, apperror.ValidationFailed("email", "email is required")
	case password == "":
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Role:         role,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Authenticate verifies a credential and returns the public identity.
//
// Every password failure mode — unknown email, OAuth-only account, wrong
// password — collapses to the same ErrInvalidCredentials so the caller
// can't probe which factor failed. The distinguishing cause goes to the
// debug log channel only.
func (s *AuthService) Authenticate(ctx context.Context, cred Credential) (*auth.Identity, error) {
	switch c := cred.(type) {
	case PasswordCredential:
		return s.authenticatePassword(ctx, c)
	case ExternalIdentity:
		return s.authenticateExternal(ctx, c)
	default:
		return nil, fmt.Errorf("service/auth: unknown credential type %T", cred)
	}
}

// Login authenticates and issues a session token in one step.
func (s *AuthService) Login(ctx context.Context, cred Credential) (*AuthResult, error) {
	identity, err := s.Authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(*identity)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", identity.ID, err)
	}

	s.logger.Info("user authenticated", slog.String("userID", identity.ID))
	return &AuthResult{Identity: identity, Token: token}, nil
}

func (s *AuthService) authenticatePassword(ctx context.Context, c PasswordCredential) (*auth.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" || c.Password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.debugf("login failed: no user for email", slog.String("email", email))
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if user.PasswordHash == "" {
		// Account created via an OAuth provider — it has no password to
		// check, and saying so would leak that the email exists.
		s.debugf("login failed: OAuth-only account", slog.String("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, c.Password); err != nil {
		s.debugf("login failed: password mismatch", slog.String("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	return identityOf(user), nil
}

// authenticateExternal looks up or creates the user linked to an external
// identity. Resolution order:
//
//  1. an existing (provider, providerUserID) link wins
//  2. otherwise an existing account with the same email gets the identity
//     linked to it (OAuth login for an email that registered with a password)
//  3. otherwise a new account is created with no password hash
func (s *AuthService) authenticateExternal(ctx context.Context, c ExternalIdentity) (*auth.Identity, error) {
	p := c.Profile
	if c.Provider == "" || p.ProviderUserID == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetByIdentity(ctx, c.Provider, p.ProviderUserID)
	if err == nil {
		return identityOf(user), nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up identity: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		// Providers can hide the email. Synthesize a stable placeholder so
		// the unique email column holds; it is never used to contact anyone.
		email = fmt.Sprintf("%s.%s@users.noreply.snipshare", c.Provider, p.ProviderUserID)
	}

	user, err = s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		user = &model.User{
			Name:      p.Name,
			Role:      "member",
			Email:     email,
			AvatarURL: p.AvatarURL,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating user for %s identity: %w", c.Provider, err)
		}
		s.logger.Info("user created via external identity",
			slog.String("userID", user.ID),
			slog.String("provider", c.Provider),
		)
	} else if err != nil {
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	if err := s.users.LinkIdentity(ctx, &model.Identity{
		Provider:       c.Provider,
		ProviderUserID: p.ProviderUserID,
		UserID:         user.ID,
	}); err != nil {
		return nil, fmt.Errorf("service/auth: linking %s identity: %w", c.Provider, err)
	}

	return identityOf(user), nil
}

// GetUserByID returns the user for the given internal ID. Used by the
// /auth/me handler after the guard has validated the session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	return s.users.GetByID(ctx, id)
}

// Renew reissues a session token from a valid existing one.
func (s *AuthService) Renew(token string) (string, error) {
	return s.tokens.Renew(token)
}

// identityOf maps a user record to the public identity embedded in tokens.
// Deliberately a projection: no role, no hash.
func identityOf(u *model.User) *auth.Identity {
	return &auth.Identity{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Image: u.AvatarURL,
	}
}

// debugf logs authentication failure detail only when debug mode is on.
func (s *AuthService) debugf(msg string, args ...any) {
	if s.debug {
		s.logger.Warn(msg, args...)
	}
}
