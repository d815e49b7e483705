// Package middleware holds the HTTP middleware of the chat API: bearer-token
// authentication, the administrator key check and request logging.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Bezhuang/my-little-app/internal/api/ctxkeys"
	pkgauth "github.com/Bezhuang/my-little-app/pkg/auth"
)

// AuthMiddleware validates "Authorization: Bearer <token>" and injects the
// user id and role into the request context. Missing, malformed or expired
// tokens get a 401.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearerToken(r)
		if tokenString == "" {
			writeUnauthorized(w, "missing or invalid Authorization header")
			return
		}

		claims, err := pkgauth.ParseJWT(tokenString)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := ctxkeys.WithValue(r.Context(), ctxkeys.UserID, claims.UserID)
		if claims.Role != "" {
			ctx = ctxkeys.WithValue(ctx, ctxkeys.Role, claims.Role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken returns "" when the header is missing, uses another
// scheme or carries an empty token.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
