package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"profilehub/internal/account"
	"profilehub/internal/respond"
)

type contextKey struct{}

var identityKey contextKey

// IdentityFrom returns the identity the gate attached to the request context.
func IdentityFrom(ctx context.Context) (account.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(account.Identity)
	return identity, ok
}

// Gate resolves the presented access token into an authenticated identity and
// rejects the request when it cannot. The token is read from the accessToken
// cookie or an Authorization bearer header. The gate never mutates state.
type Gate struct {
	issuer *TokenIssuer
	store  account.Store
}

func NewGate(issuer *TokenIssuer, store account.Store) *Gate {
	return &Gate{issuer: issuer, store: store}
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := g.issuer.VerifyAccess(token)
		if err != nil {
			respond.ErrMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		acc, err := g.store.FindByID(r.Context(), claims.AccountID)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				respond.ErrMessage(w, http.StatusUnauthorized, "account not found")
				return
			}
			respond.ErrMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, acc.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
