package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// =========================================================================
// MOCK USER REPOSITORY
// =========================================================================

type mockUserRepo struct {
	users      map[string]*model.User // keyed by ID
	identities map[string]string      // "provider:providerUserID" → userID
	nextID     int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:      make(map[string]*model.User),
		identities: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == user.Email {
			return apperror.Conflict("email already in use")
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) GetByIdentity(_ context.Context, provider, providerUserID string) (*model.User, error) {
	userID, ok := m.identities[provider+":"+providerUserID]
	if !ok {
		return nil, apperror.NotFound("identity", provider+":"+providerUserID)
	}
	return m.GetByID(context.Background(), userID)
}

func (m *mockUserRepo) LinkIdentity(_ context.Context, identity *model.Identity) error {
	m.identities[identity.Provider+":"+identity.ProviderUserID] = identity.UserID
	return nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

// =========================================================================
// TEST HELPERS
// =========================================================================

func newTestAuthService(t *testing.T) (*AuthService, *mockUserRepo) {
	t.Helper()
	repo := newMockUserRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 24*time.Hour, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc := NewAuthService(repo, auth.NewPasswordServiceForTest(4), tokens, logger, false)
	return svc, repo
}

func registerTestUser(t *testing.T, svc *AuthService, email, password string) *model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), "Ada", "developer", email, password)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return user
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	svc, _ := newTestAuthService(t)

	user := registerTestUser(t, svc, "ada@example.com", "s3cret")

	if user.ID == "" {
		t.Error("Register() did not set user.ID")
	}
	if user.PasswordHash == "" {
		t.Error("Register() did not hash the password")
	}
	if user.PasswordHash == "s3cret" {
		t.Error("Register() stored the plaintext password")
	}
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name                       string
		uname, role, email, passwd string
	}{
		{"missing name", "", "dev", "a@b.com", "pw"},
		{"missing role", "Ada", "", "a@b.com", "pw"},
		{"missing email", "Ada", "dev", "", "pw"},
		{"missing password", "Ada", "dev", "a@b.com", ""},
		{"whitespace name", "   ", "dev", "a@b.com", "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.uname, tt.role, tt.email, tt.passwd)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "ada@example.com", "s3cret")

	// Same email, different casing: still one account.
	_, err := svc.Register(ctx, "Ada Again", "developer", "ADA@Example.com", "other")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Register() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// PASSWORD AUTHENTICATION TESTS
// =========================================================================

func TestAuthenticate_PasswordSuccess(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "ada@example.com", "s3cret")

	// Email casing and padding must not matter.
	identity, err := svc.Authenticate(ctx, PasswordCredential{Email: "  ADA@example.com ", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if identity.ID != user.ID {
		t.Errorf("identity.ID = %q, want %q", identity.ID, user.ID)
	}
	if identity.Email != "ada@example.com" {
		t.Errorf("identity.Email = %q, want normalised email", identity.Email)
	}
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Authenticate(context.Background(), PasswordCredential{Email: "nobody@example.com", Password: "pw"})
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	registerTestUser(t, svc, "ada@example.com", "s3cret")

	_, err := svc.Authenticate(context.Background(), PasswordCredential{Email: "ada@example.com", Password: "wrong"})
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticate_OAuthOnlyAccountAlwaysInvalidCredentials(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	// Account created through an external provider: no password hash.
	_, err := svc.Authenticate(ctx, ExternalIdentity{
		Provider: "github",
		Profile:  auth.Profile{ProviderUserID: "1234", Name: "Ada", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("external Authenticate() error = %v", err)
	}

	// Password login against it must fail with the same generic error as a
	// wrong password — never anything that reveals the account is OAuth-only.
	_, err = svc.Authenticate(ctx, PasswordCredential{Email: "ada@example.com", Password: "anything"})
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("password Authenticate() on OAuth-only account error = %v, want ErrInvalidCredentials", err)
	}
}

// =========================================================================
// EXTERNAL IDENTITY TESTS
// =========================================================================

func TestAuthenticate_ExternalFirstLoginCreatesUser(t *testing.T) {
	svc, repo := newTestAuthService(t)

	identity, err := svc.Authenticate(context.Background(), ExternalIdentity{
		Provider: "github",
		Profile: auth.Profile{
			ProviderUserID: "1234",
			Name:           "Ada Lovelace",
			Email:          "Ada@Example.com",
			AvatarURL:      "https://example.com/ada.png",
		},
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	user, err := repo.GetByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("created user not found: %v", err)
	}
	if user.PasswordHash != "" {
		t.Error("external-identity user must have no password hash")
	}
	if user.Email != "ada@example.com" {
		t.Errorf("user.Email = %q, want lower-cased profile email", user.Email)
	}
	if identity.Image != "https://example.com/ada.png" {
		t.Errorf("identity.Image = %q, want profile avatar", identity.Image)
	}
}

func TestAuthenticate_ExternalSecondLoginReusesUser(t *testing.T) {
	svc, repo := newTestAuthService(t)
	ctx := context.Background()
	ext := ExternalIdentity{
		Provider: "github",
		Profile:  auth.Profile{ProviderUserID: "1234", Name: "Ada", Email: "ada@example.com"},
	}

	first, err := svc.Authenticate(ctx, ext)
	if err != nil {
		t.Fatalf("first Authenticate() error = %v", err)
	}
	second, err := svc.Authenticate(ctx, ext)
	if err != nil {
		t.Fatalf("second Authenticate() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("second login created a new user: %q vs %q", first.ID, second.ID)
	}
	if len(repo.users) != 1 {
		t.Errorf("user count = %d, want 1", len(repo.users))
	}
}

func TestAuthenticate_ExternalLinksToExistingEmailAccount(t *testing.T) {
	svc, repo := newTestAuthService(t)
	ctx := context.Background()

	registered := registerTestUser(t, svc, "ada@example.com", "s3cret")

	identity, err := svc.Authenticate(ctx, ExternalIdentity{
		Provider: "google",
		Profile:  auth.Profile{ProviderUserID: "g-42", Name: "Ada", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if identity.ID != registered.ID {
		t.Errorf("external login created a second account %q for an existing email, want %q",
			identity.ID, registered.ID)
	}
	if len(repo.users) != 1 {
		t.Errorf("user count = %d, want 1", len(repo.users))
	}
}

func TestAuthenticate_ExternalHiddenEmailGetsPlaceholder(t *testing.T) {
	svc, repo := newTestAuthService(t)

	identity, err := svc.Authenticate(context.Background(), ExternalIdentity{
		Provider: "github",
		Profile:  auth.Profile{ProviderUserID: "1234", Name: "Private Ada"},
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	user, _ := repo.GetByID(context.Background(), identity.ID)
	if user.Email == "" {
		t.Error("hidden provider email must still produce a stored email")
	}
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin_IssuesValidatableToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "ada@example.com", "s3cret")

	result, err := svc.Login(ctx, PasswordCredential{Email: "ada@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("Login() returned an empty token")
	}

	renewed, err := svc.Renew(result.Token)
	if err != nil {
		t.Fatalf("Renew() on a fresh login token error = %v", err)
	}
	if renewed == "" {
		t.Error("Renew() returned an empty token")
	}
}

func TestLogin_FailureIssuesNoToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	result, err := svc.Login(context.Background(), PasswordCredential{Email: "nobody@example.com", Password: "pw"})
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	if result != nil {
		t.Error("Login() returned a result on failure")
	}
}
