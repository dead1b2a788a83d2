package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/service"
)

// AuthHandler manages registration, password login, the OAuth login flow
// and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister      → create a password-based account
//   - HandleLogin         → verify email+password, issue the session cookie
//   - HandleOAuthLogin    → redirect the browser to the provider's consent page
//   - HandleOAuthCallback → receive the code, sign the user in, issue the cookie
//   - HandleLogout        → clear the session cookie
//   - HandleMe            → return the currently logged-in user's profile
type AuthHandler struct {
	auth          *service.AuthService
	providers     map[string]auth.Provider // keyed by provider name ("github", "google")
	sessionMaxAge time.Duration
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Only providers that were configured
// at startup appear in the map; requests naming any other provider get a 404.
func NewAuthHandler(
	authSvc *service.AuthService,
	providers map[string]auth.Provider,
	sessionMaxAge time.Duration,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:          authSvc,
		providers:     providers,
		sessionMaxAge: sessionMaxAge,
		logger:        logger,
	}
}

// registerRequest is the expected body for POST /auth/register.
type registerRequest struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the expected body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new password-based account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"name":"Ada","role":"developer","email":"ada@example.com","password":"..."}
//
// Registration does NOT log the user in — the frontend sends them to the
// login page afterwards. A duplicate email returns 409 regardless of casing.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.auth.Register(r.Context(), req.Name, req.Role, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleLogin verifies an email/password pair and starts a session.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email":"ada@example.com","password":"..."}
//
// Every failure mode (unknown email, wrong password, OAuth-only account)
// returns the same 401 — the service collapses them deliberately, and this
// handler must not add anything that tells them apart.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.auth.Login(r.Context(), service.PasswordCredential{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"user": result.Identity,
	})
}

// HandleOAuthLogin redirects the user to the provider's authorization page.
//
// HTTP: GET /auth/{provider}/login?callbackUrl=/dashboard
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie; the callback
// verifies the provider echoed the same value back, proving the flow started
// here and not on an attacker's page. The requested callbackUrl rides along
// in a second cookie so the callback knows where to land the user.
func (h *AuthHandler) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok {
		writeError(w, apperror.NotFound("provider", r.PathValue("provider")))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if target := safeCallbackURL(r.URL.Query().Get("callbackUrl")); target != "/" {
		http.SetCookie(w, &http.Cookie{
			Name:     "oauth_redirect",
			Value:    url.QueryEscape(target),
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes the OAuth login flow.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a provider profile
//  3. Sign in through the auth service (find-or-create + identity link)
//  4. Issue the session cookie
//  5. Redirect to the stashed callbackUrl, or home
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	provider, ok := h.providers[providerName]
	if !ok {
		writeError(w, apperror.NotFound("provider", providerName))
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie", slog.String("provider", providerName))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("provider", providerName))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// State is single-use.
	clearCookie(w, "oauth_state")

	// Provider-reported errors (e.g. the user denied authorization) are not
	// server failures — send the user back to login with a marker.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: provider returned error",
			slog.String("provider", providerName),
			slog.String("error", errParam),
		)
		clearCookie(w, "oauth_redirect")
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: exchange failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 3: Sign in ---
	result, err := h.auth.Login(r.Context(), service.ExternalIdentity{
		Provider: providerName,
		Profile:  *profile,
	})
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user authenticated",
		slog.String("userID", result.Identity.ID),
		slog.String("provider", providerName),
	)

	// --- Step 4: Issue session cookie ---
	h.setSessionCookie(w, result.Token)

	// --- Step 5: Redirect ---
	target := "/"
	if c, err := r.Cookie("oauth_redirect"); err == nil {
		if unescaped, err := url.QueryUnescape(c.Value); err == nil {
			target = safeCallbackURL(unescaped)
		}
		clearCookie(w, "oauth_redirect")
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleLogout clears the session cookie, effectively logging the user out.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so "logout" means deleting the client-side
// cookie. The token stays technically valid until it expires, but without
// the cookie the browser can't send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /auth/me
// Auth: Required
//
// The frontend calls this on app load to know who is signed in.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Should never happen on a protected route, but be safe.
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), identity.ID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed", slog.String("userID", identity.ID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// setSessionCookie stores the signed session token in an HttpOnly cookie.
// HttpOnly blocks JavaScript access (XSS protection); SameSite=Lax sends the
// cookie on top-level navigations but not cross-site POSTs. Secure should be
// enabled behind HTTPS in production.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // Uncomment in production (requires HTTPS)
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// safeCallbackURL keeps post-login redirects on this site. Anything that is
// not a same-origin absolute path (e.g. "https://evil.example" or
// "//evil.example") collapses to "/".
func safeCallbackURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	return raw
}
