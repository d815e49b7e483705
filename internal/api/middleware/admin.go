package middleware

import (
	"net/http"

	pkgauth "github.com/Bezhuang/my-little-app/pkg/auth"
)

// HeaderAdminKey carries the administrator key on admin routes.
const HeaderAdminKey = "X-Admin-Key"

// AdminKey admits requests whose X-Admin-Key matches the bcrypt hash. With no
// hash configured the admin surface is closed.
func AdminKey(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				writeJSONError(w, http.StatusForbidden, "admin API is disabled")
				return
			}
			if !pkgauth.VerifySecret(hash, r.Header.Get(HeaderAdminKey)) {
				writeUnauthorized(w, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
