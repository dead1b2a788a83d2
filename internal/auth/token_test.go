package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService creates a TokenService with a fixed secret, a 24h
// session window, and a process start of one minute ago (so freshly issued
// tokens are never accidentally stale).
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, 24*time.Hour, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testIdentity() Identity {
	return Identity{
		ID:    "user-abc-123",
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Image: "https://example.com/ada.png",
	}
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour, time.Now()); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_NonPositiveMaxAge(t *testing.T) {
	if _, err := NewTokenService(testSecret, 0, time.Now()); err == nil {
		t.Fatal("NewTokenService() should reject a zero max age")
	}
}

// =========================================================================
// ISSUE / VALIDATE TESTS
// =========================================================================

func TestIssue_ValidateRoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	want := testIdentity()

	token, err := ts.Issue(want)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if *got != want {
		t.Errorf("Validate() identity = %+v, want %+v", *got, want)
	}
}

func TestIssue_EmptyUserID(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Issue(Identity{Name: "no id"}); err == nil {
		t.Fatal("Issue() should reject an identity without a user ID")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Issue(testIdentity())
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Hour, time.Now())
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour, time.Now())

	token, _ := ts1.Issue(testIdentity())

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_GarbageString(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Validate("not.a.jwt.token"); err == nil {
		t.Fatal("Validate() should return an error for a garbage string")
	}
}

// =========================================================================
// MAX SESSION AGE TESTS
// =========================================================================

func TestValidate_TokenOlderThanMaxAge(t *testing.T) {
	ts, err := NewTokenService(testSecret, time.Hour, time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Backdate the token two hours against a one-hour window.
	token, err := ts.issueAt(testIdentity(), time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issueAt() error = %v", err)
	}

	_, err = ts.Validate(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_TokenWithinMaxAge(t *testing.T) {
	ts, _ := NewTokenService(testSecret, 24*time.Hour, time.Now().Add(-48*time.Hour))

	token, err := ts.issueAt(testIdentity(), time.Now().Add(-23*time.Hour))
	if err != nil {
		t.Fatalf("issueAt() error = %v", err)
	}

	if _, err := ts.Validate(token); err != nil {
		t.Fatalf("Validate() error = %v for a token inside the session window", err)
	}
}

// =========================================================================
// PROCESS RESTART TESTS
// =========================================================================

func TestValidate_TokenIssuedBeforeRestart(t *testing.T) {
	// First process: issue a perfectly good token.
	before, err := NewTokenService(testSecret, 24*time.Hour, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	token, err := before.Issue(testIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Simulated restart: same secret, a later process start.
	after, err := NewTokenService(testSecret, 24*time.Hour, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	_, err = after.Validate(token)
	if !errors.Is(err, ErrTokenStale) {
		t.Fatalf("Validate() after restart error = %v, want ErrTokenStale", err)
	}
}

func TestValidate_TokenIssuedAfterStart(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Issue(testIdentity())
	if _, err := ts.Validate(token); err != nil {
		t.Fatalf("Validate() error = %v for a token issued after process start", err)
	}
}

// =========================================================================
// RENEW TESTS
// =========================================================================

func TestRenew_CarriesIdentityWithoutStoreLookup(t *testing.T) {
	ts := newTestTokenService(t)
	want := testIdentity()

	original, _ := ts.Issue(want)

	renewed, err := ts.Renew(original)
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}

	got, err := ts.Validate(renewed)
	if err != nil {
		t.Fatalf("Validate() on renewed token error = %v", err)
	}
	if *got != want {
		t.Errorf("renewed identity = %+v, want %+v", *got, want)
	}
}

func TestRenew_RejectsStaleToken(t *testing.T) {
	before, _ := NewTokenService(testSecret, 24*time.Hour, time.Now().Add(-time.Hour))
	token, _ := before.Issue(testIdentity())

	after, _ := NewTokenService(testSecret, 24*time.Hour, time.Now().Add(time.Minute))
	if _, err := after.Renew(token); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("Renew() error = %v, want ErrTokenStale", err)
	}
}
