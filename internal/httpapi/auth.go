package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

type contextKey string

const claimsKey contextKey = "user_claims"

// TokenValidator validates bearer tokens issued by the identity
// collaborator. The engine only consumes identities, it never issues
// or refreshes tokens.
type TokenValidator struct {
	jwtSecret []byte
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{
		jwtSecret: []byte(secret),
	}
}

// JWTClaims represents JWT token claims
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	OrgID    string `json:"org_id"`
	jwt.RegisteredClaims
}

// ValidateJWT validates a JWT token and returns user claims
func (tv *TokenValidator) ValidateJWT(tokenString string) (*types.UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token expired")
	}

	return &types.UserClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     types.UserRole(claims.Role),
		OrgID:    claims.OrgID,
	}, nil
}

// AuthMiddleware rejects requests without a valid bearer token and
// attaches the caller's claims to the request context.
func AuthMiddleware(validator *TokenValidator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				WriteError(w, log, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := validator.ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				log.WithError(err).Warn("Rejected request with invalid token")
				WriteError(w, log, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the authenticated caller's claims, or nil when the
// request bypassed the auth middleware.
func ClaimsFrom(ctx context.Context) *types.UserClaims {
	claims, _ := ctx.Value(claimsKey).(*types.UserClaims)
	return claims
}

// RequireRole returns an authorization error unless the caller holds
// one of the given roles.
func RequireRole(claims *types.UserClaims, roles ...types.UserRole) error {
	if claims == nil {
		return types.NewAuthorizationError(types.ErrCodeUnauthorized, "authentication required")
	}
	for _, role := range roles {
		if claims.Role == role {
			return nil
		}
	}
	return types.NewAuthorizationError(types.ErrCodeForbidden, "caller role is not permitted for this operation")
}
