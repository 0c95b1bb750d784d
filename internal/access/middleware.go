package access

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
)

type claimsKey struct{}

// IntoContext attaches validated claims to ctx.
func IntoContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims set by RequireEntitlement.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Check reports ErrNotEntitled when ctx carries claims that do not cover the
// assessment. Without claims (gating disabled) everything is allowed.
func Check(ctx context.Context, assessmentID string) error {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Allows(assessmentID) {
		return nil
	}
	return ErrNotEntitled
}

// RequireEntitlement rejects requests without a valid entitlement token and
// injects the claims into the request context. The token is read from the
// Authorization header, or the token query parameter for WebSocket upgrades.
func RequireEntitlement(m *Manager, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, err.Error())
				return
			}

			claims, err := m.Validate(token)
			if err != nil {
				logger.Warn().Err(err).Msg("entitlement token rejected")
				code := httperrors.ErrCodeInvalidToken
				if errors.Is(err, ErrExpiredToken) {
					code = httperrors.ErrCodeTokenExpired
				}
				httperrors.RespondUnauthorized(w, code, "Invalid or expired entitlement token")
				return
			}

			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), claims)))
		})
	}
}

// RequireStaff is RequireEntitlement restricted to wildcard tokens, which
// clinic staff hold. It guards read access across patients.
func RequireStaff(m *Manager, logger zerolog.Logger) func(http.Handler) http.Handler {
	entitled := RequireEntitlement(m, logger)
	return func(next http.Handler) http.Handler {
		return entitled(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			if claims == nil || !slices.Contains(claims.Assessments, Wildcard) {
				httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Staff token required")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", errors.New("Invalid authorization header")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.New("Entitlement token required")
}
