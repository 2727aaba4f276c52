package appMiddleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-ren-assistant/config"
)

const testSecret = "test-secret"

func setupAuthTest() *Authenticator {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuthenticator(config.JWTConfig{SecretKey: testSecret, Issuer: "ren", Audience: "ren-assistant"}, logger)
}

func signToken(t *testing.T, userID string, exp time.Time, secret string) string {
	t.Helper()
	return signRoleToken(t, userID, "", exp, secret)
}

func signRoleToken(t *testing.T, userID, role string, exp time.Time, secret string) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ren",
			Audience:  jwt.ClaimStrings{"ren-assistant"},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			id = "anonymous"
		}
		_, _ = w.Write([]byte(id))
	})
}

func TestAuthenticator(t *testing.T) {
	a := setupAuthTest()
	valid := signToken(t, "u1", time.Now().Add(time.Hour), testSecret)

	tests := []struct {
		name       string
		handler    http.Handler
		header     string
		wantStatus int
		wantBody   string
	}{
		{"optional without token", a.OptionalAuth(echoUser()), "", http.StatusOK, "anonymous"},
		{"optional with token", a.OptionalAuth(echoUser()), "Bearer " + valid, http.StatusOK, "u1"},
		{"optional with bad signature", a.OptionalAuth(echoUser()), "Bearer " + signToken(t, "u1", time.Now().Add(time.Hour), "other"), http.StatusUnauthorized, ""},
		{"required without token", a.RequireAuth(echoUser()), "", http.StatusUnauthorized, ""},
		{"required with token", a.RequireAuth(echoUser()), "Bearer " + valid, http.StatusOK, "u1"},
		{"required with expired token", a.RequireAuth(echoUser()), "Bearer " + signToken(t, "u1", time.Now().Add(-time.Hour), testSecret), http.StatusUnauthorized, ""},
		{"required with malformed header", a.RequireAuth(echoUser()), "Token abc", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestAuthenticator_RequireRole(t *testing.T) {
	a := setupAuthTest()
	exp := time.Now().Add(time.Hour)
	admin := a.RequireAuth(a.RequireRole("admin")(echoUser()))
	optionalAdmin := a.OptionalAuth(a.RequireRole("admin")(echoUser()))

	tests := []struct {
		name       string
		handler    http.Handler
		header     string
		wantStatus int
		wantBody   string
	}{
		{"admin token", admin, "Bearer " + signRoleToken(t, "ops", "admin", exp, testSecret), http.StatusOK, "ops"},
		{"user token", admin, "Bearer " + signRoleToken(t, "u1", "user", exp, testSecret), http.StatusForbidden, ""},
		{"token without role", admin, "Bearer " + signToken(t, "u1", exp, testSecret), http.StatusForbidden, ""},
		{"no token", admin, "", http.StatusUnauthorized, ""},
		{"anonymous behind optional auth", optionalAdmin, "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}
