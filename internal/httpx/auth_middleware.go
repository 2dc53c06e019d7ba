package httpx

import (
	"log"
	"net/http"
	"strings"

	"bookstore/internal/auth"
)

// AuthMiddleware verifies the bearer token and attaches the caller's identity
// to the request context. Missing, invalid and roleless tokens are rejected
// outright rather than demoted to an anonymous request.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				WriteProblem(r, w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				log.Printf("warn token rejected request_id=%s err=%v", RequestIDFrom(r), err)
				WriteProblem(r, w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			if len(claims.Roles) == 0 {
				log.Printf("warn token without roles request_id=%s sub=%s", RequestIDFrom(r), claims.Sub)
				WriteProblem(r, w, http.StatusUnauthorized, "Unauthorized", "token carries no roles")
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{
				Subject: claims.Sub,
				Roles:   claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
