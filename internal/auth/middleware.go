package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// SessionCookie is the name of the HTTP-only cookie carrying the session
// token. One cookie, one token — there is no other session state.
const SessionCookie = "session"

// contextKey is an unexported type for this package's context keys.
// A package-private key type means no other package can read or shadow the
// identity we store in the request context.
type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext retrieves the authenticated identity from the request
// context. Returns (nil, false) for anonymous requests.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// withIdentity stores the identity in the context for downstream handlers.
func withIdentity(r *http.Request, id *Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey, id))
}

// Guard returns the access-guard middleware: a pure gate evaluated before
// any handler on every request.
//
// Paths matching the public allow-list pass untouched. Anything else must
// carry a valid session token, where valid means signature, max age AND the
// process-restart cutoff all hold (see TokenService.Validate). On failure:
//
//   - page navigations are redirected to /login?callbackUrl=<original path>
//     so the client lands back where it was headed after logging in
//   - data requests get 401 JSON
//
// The split is decided by the Accept header — a browser navigation asks for
// text/html, fetch calls ask for JSON.
//
// Allow-list entries are path prefixes, except "/" which matches exactly
// (as a prefix it would allow everything).
func Guard(tokens *TokenService, public []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}

			id, err := extractIdentity(r, tokens)
			if err != nil {
				if wantsHTML(r) {
					loginURL := "/login?callbackUrl=" + url.QueryEscape(r.URL.Path)
					http.Redirect(w, r, loginURL, http.StatusSeeOther)
					return
				}
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, withIdentity(r, id))
		})
	}
}

// RequireAuth enforces authentication on a protected data route. Missing,
// invalid, expired or pre-restart tokens all get 401 and the chain stops.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := extractIdentity(r, tokens)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, withIdentity(r, id))
		})
	}
}

// OptionalAuth attaches the viewer identity when a valid token is present
// but never blocks. Used on public snippet reads, where logged-in viewers
// additionally see their own like status.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := extractIdentity(r, tokens); err == nil {
				r = withIdentity(r, id)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPublic(path string, public []string) bool {
	for _, p := range public {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

// extractIdentity reads the session cookie and validates the token in it.
func extractIdentity(r *http.Request, tokens *TokenService) (*Identity, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		// http.ErrNoCookie — anonymous request
		return nil, err
	}
	return tokens.Validate(cookie.Value)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
}
