package auth

import (
	"net/http"
	"strings"
)

const (
	HeaderUserID      = "X-User-Id"
	HeaderProviderID  = "X-Provider-Id"
	HeaderAccountType = "X-Account-Type"
)

// RequireUser verifies the bearer token and forwards identity as trusted
// headers. Client-supplied identity headers are always stripped first.
func RequireUser(next http.Handler, v *Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderProviderID)
		r.Header.Del(HeaderAccountType)

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := v.Verify(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Set(HeaderUserID, claims.Subject)
		r.Header.Set(HeaderAccountType, claims.AppMetadata.AccountType)
		if claims.AppMetadata.ProviderID != "" {
			r.Header.Set(HeaderProviderID, claims.AppMetadata.ProviderID)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireProvider rejects callers whose token carries no provider id.
// Wrap it inside RequireUser.
func RequireProvider(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(HeaderProviderID)) == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
