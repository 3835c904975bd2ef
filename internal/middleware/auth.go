package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"notehub/internal/auth"

	"github.com/rs/zerolog"
)

// Auth resolves the session cookie and adds the user ID to the context.
// Anonymous requests to protected paths are redirected to /login.
func Auth(sessions *auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := sessions.UserID(r)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("redirecting to login")
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			ctx := auth.WithUserID(r.Context(), userID)
			zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Int64("user_id", userID)
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isPublicEndpoint(path string) bool {
	exactPaths := []string{"/login", "/register"}
	for _, p := range exactPaths {
		if path == p {
			return true
		}
	}
	prefixPaths := []string{"/static/"}
	for _, p := range prefixPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// BearerToken admits only requests carrying "Authorization: Bearer <token>".
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
