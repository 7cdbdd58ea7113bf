package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims *JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() *JWTClaims {
	return &JWTClaims{
		UserID:   "doctor-1",
		Username: "dr.smith",
		Role:     "doctor",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestTokenValidator_ValidateJWT(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	claims, err := validator.ValidateJWT(signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "doctor-1", claims.UserID)
	assert.Equal(t, types.RoleDoctor, claims.Role)
}

func TestTokenValidator_RejectsWrongSecret(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	_, err := validator.ValidateJWT(signToken(t, "other-secret", validClaims()))
	require.Error(t, err)
}

func TestTokenValidator_RejectsExpiredToken(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	_, err := validator.ValidateJWT(signToken(t, testSecret, claims))
	require.Error(t, err)
}

func TestAuthMiddleware_AttachesClaims(t *testing.T) {
	validator := NewTokenValidator(testSecret)
	log := logger.New("error")

	var seen *types.UserClaims
	handler := AuthMiddleware(validator, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFrom(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/v1/consents/p/d", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "doctor-1", seen.UserID)
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	validator := NewTokenValidator(testSecret)
	handler := AuthMiddleware(validator, logger.New("error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	req := httptest.NewRequest("GET", "/api/v1/consents/p/d", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	admin := &types.UserClaims{UserID: "admin-1", Role: types.RoleAdmin}

	assert.NoError(t, RequireRole(admin, types.RoleAdmin))
	assert.Error(t, RequireRole(admin, types.RolePatient))
	assert.Error(t, RequireRole(nil, types.RoleAdmin))
}
