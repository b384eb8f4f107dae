package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/api/responses"
	pkgAuth "github.com/slye-labs/slye-backend/pkg/auth"
	"github.com/slye-labs/slye-backend/pkg/config"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

// Auth validates the identity provider's access token and seeds the request
// context with the user id. The token is read from the Authorization header,
// falling back to the configured cookie for browser navigations.
func Auth(cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Authenticate(cfg, r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = logg.WithUserID(ctx, userID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate resolves the caller without writing a response, for handlers
// that answer unauthenticated requests with a redirect instead of a 401.
func Authenticate(cfg config.AuthConfig, r *http.Request) (uuid.UUID, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" && cfg.CookieName != "" {
		if cookie, err := r.Cookie(cfg.CookieName); err == nil {
			token = strings.TrimSpace(cookie.Value)
		}
	}
	if token == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Unauthorized")
	}
	userID, err := claims.UserID()
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Unauthorized")
	}
	return userID, nil
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
