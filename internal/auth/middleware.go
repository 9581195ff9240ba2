package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// CookieName is the cookie that carries the session JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or overwrite the
// user ID stored under it.
type contextKey string

const userIDKey contextKey = "userID"

// PublicPaths are the routes an anonymous visitor may reach: the home page,
// the health check, the OAuth round trip and the password forms. Everything
// else needs a session.
var PublicPaths = []string{
	"/",
	"/healthz",
	"/auth/*",
	"/users/sign_up",
	"/users/sign_in",
	"/users/sign_out",
}

// RequireAuth is the global authentication check, mounted once on the root
// router so every route is protected unless it appears in public.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
// so the check runs before routing, and a route added later is denied to
// anonymous visitors until someone lists it as public.
//
// DECISION TABLE:
//
//	valid cookie            → user ID in the context, request continues
//	no/bad cookie, public   → request continues anonymously
//	no/bad cookie, other    → 401, the chain stops
//
// A public entry ending in "/*" matches every path below it; any other entry
// must match the path exactly.
func RequireAuth(tokens *TokenService, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err == nil && userID != "" {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
				return
			}

			if isPublic(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"you need to sign in or sign up before continuing"}` + "\n"))
		})
	}
}

func isPublic(path string, public []string) bool {
	for _, p := range public {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// WithUserID returns a copy of ctx carrying userID. Handlers never call it
// directly; it exists for RequireAuth and for tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// SetSessionCookie stores a signed session token in the HttpOnly cookie.
//
// HttpOnly keeps it away from page JavaScript. SameSite=Lax still sends it on
// the top-level redirect back from the OAuth provider.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie. The token
// itself stays valid until it expires; without the cookie the browser just
// stops sending it.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
