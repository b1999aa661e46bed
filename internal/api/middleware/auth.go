package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/marcleai/statusboard/internal/api/models"
)

// AdminToken guards the admin API with a static bearer token. An empty token
// disables the admin API entirely (503).
func AdminToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				problem := models.NewAdminDisabled(GetRequestID(r.Context()))
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}

			const bearerPrefix = "Bearer "
			header := r.Header.Get("Authorization")
			presented := ""
			if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				presented = header[len(bearerPrefix):]
			}

			if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				writeUnauthorized(w, r, "invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes a 401 here rather than through the response
// package, which imports this one.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}
