package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/analytiqhub/docrouter/internal/accesstoken"
	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// TokenVerifier verifies an opaque access token and returns the resolved
// token row. Implemented by *accesstoken.Issuer; an interface here avoids
// an import cycle back into httpserver's wiring code.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*accesstoken.AccessToken, error)
}

// UserLookup resolves account-level identity fields (email, name, role)
// for a user ID, used after access-token verification since the token
// itself carries only IDs.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (email, name, role string, err error)
}

// Middleware authenticates the caller via Authorization: Bearer <jwt> or
// Authorization: Bearer acc_<token>, storing the resulting Identity in the
// request context. jwtIssuer may be nil when FASTAPI_SECRET is not
// configured (JWT auth unavailable, access tokens still work).
func Middleware(jwtIssuer *JWTIssuer, tokens TokenVerifier, users UserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			var identity *Identity

			switch {
			case strings.HasPrefix(raw, accesstoken.Prefix):
				tok, err := tokens.Verify(r.Context(), raw)
				if err != nil {
					logger.Warn("access token authentication failed", "error", err)
					httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
					return
				}

				email, name, role, err := users.GetUser(r.Context(), tok.UserID)
				if err != nil {
					logger.Error("user lookup for access token failed", "user_id", tok.UserID, "error", err)
					httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user not found")
					return
				}

				identity = &Identity{
					UserID:        tok.UserID,
					Email:         email,
					Name:          name,
					Role:          role,
					AccessTokenID: tok.ID,
					Method:        MethodAccessToken,
				}
				if tok.OrganizationID != nil {
					identity.OrganizationID = *tok.OrganizationID
				}

				logger.Debug("authenticated via access token", "user_id", tok.UserID)

			default:
				if jwtIssuer == nil {
					httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "JWT authentication is not configured")
					return
				}

				claims, err := jwtIssuer.Verify(raw)
				if err != nil {
					logger.Warn("JWT authentication failed", "error", err)
					httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
					return
				}

				identity = &Identity{
					UserID:         claims.Subject,
					Email:          claims.Email,
					Name:           claims.Name,
					Role:           claims.Role,
					OrganizationID: claims.OrganizationID,
					Method:         MethodJWT,
				}

				logger.Debug("authenticated via JWT", "sub", claims.Subject, "email", claims.Email)
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
