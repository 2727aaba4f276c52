package appMiddleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FACorreiaa/go-ren-assistant/config"
	"github.com/FACorreiaa/go-ren-assistant/internal/api"
)

// Authenticator validates bearer tokens issued by the marketplace.
type Authenticator struct {
	logger *slog.Logger
	cfg    config.JWTConfig
	secret []byte
}

func NewAuthenticator(cfg config.JWTConfig, logger *slog.Logger) *Authenticator {
	if cfg.SecretKey == "" {
		logger.Warn("JWT secret key is not configured, every request is treated as anonymous")
	}
	return &Authenticator{logger: logger, cfg: cfg, secret: []byte(cfg.SecretKey)}
}

var errNoToken = errors.New("no bearer token")

func (a *Authenticator) parse(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errNoToken
	}
	headerParts := strings.Split(authHeader, " ")
	if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
		return nil, errors.New("authorization header format must be Bearer {token}")
	}
	if len(a.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(headerParts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !api.VerifyAudience(claims.Audience, a.cfg.Audience) {
		return nil, errors.New("invalid token audience")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = WithUserID(ctx, claims.UserID)
	return context.WithValue(ctx, UserRoleKey, claims.Role)
}

// OptionalAuth attaches the user identity when a valid token is present.
// Requests without a token continue anonymously; invalid tokens are rejected.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parse(r)
		if errors.Is(err, errNoToken) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// RequireAuth rejects requests without a valid token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parse(r)
		if err != nil {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// RequireRole admits only callers whose token carries role. It must run
// after RequireAuth or OptionalAuth.
func (a *Authenticator) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetUserIDFromContext(r.Context()); !ok {
				a.reject(w, r, errNoToken)
				return
			}
			if got, _ := GetUserRoleFromContext(r.Context()); got != role {
				a.logger.WarnContext(r.Context(), "Insufficient role",
					slog.String("required", role), slog.String("role", got))
				api.ErrorResponse(w, r, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	l := a.logger.With(slog.String("middleware", "Authenticate"))
	l.WarnContext(r.Context(), "Token validation failed", slog.Any("error", err))

	errMsg := "Invalid or expired token"
	switch {
	case errors.Is(err, errNoToken):
		errMsg = "Authorization header required"
	case errors.Is(err, jwt.ErrTokenExpired):
		errMsg = "Token has expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		errMsg = "Malformed token"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		errMsg = "Invalid token signature"
	}
	api.ErrorResponse(w, r, http.StatusUnauthorized, errMsg)
}
