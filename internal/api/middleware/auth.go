package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/glam-checkout/internal/auth"
)

// ExtractToken reads the checkout token from the Authorization header
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

type contextKey string

const (
	CheckoutContextKey contextKey = "checkout"
)

// CheckoutAuth validates checkout tokens and adds their claims to the context
func CheckoutAuth(tokens *auth.CheckoutTokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "checkout token required", "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				respondError(w, "invalid checkout token", "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CheckoutContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCheckoutClaims retrieves checkout claims from the request context
func GetCheckoutClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(CheckoutContextKey).(*auth.Claims)
	return claims, ok
}

// AuthorizedFor reports whether the request's checkout token was issued for orderRef.
func AuthorizedFor(ctx context.Context, orderRef string) bool {
	claims, ok := GetCheckoutClaims(ctx)
	return ok && orderRef != "" && claims.OrderRef() == orderRef
}
