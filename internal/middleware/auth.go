package middleware

import (
	"net/http"
	"strings"

	"sibyl/internal/auth"
	"sibyl/internal/httputil"
)

// publicPaths are served without authentication.
var publicPaths = map[string]bool{
	"/health": true,
}

// Auth verifies the bearer token on every request and stores the caller's
// user id in the request context.
func Auth(verifier auth.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// EventSource cannot set headers; allow the token as a query param on
	// stream endpoints.
	return r.URL.Query().Get("access_token")
}
