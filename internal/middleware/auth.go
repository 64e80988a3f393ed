package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/models"
)

type contextKey string

const (
	UserIDKey   contextKey = "userID"
	InternalKey contextKey = "internalCaller"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// AuthConfig selects which credentials Authenticate accepts. With neither set every
// request passes through unauthenticated, which is only meant for local development.
type AuthConfig struct {
	Verifier       TokenVerifier
	InternalSecret string
}

func (c AuthConfig) enabled() bool {
	return c.Verifier != nil || c.InternalSecret != ""
}

// Authenticate accepts a bearer token that is either an HS256 JWT signed with the
// internal secret or a Firebase ID token.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.enabled() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Authorization header required"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid authorization header format"))
				return
			}
			tokenString := strings.TrimSpace(parts[1])

			if cfg.InternalSecret != "" {
				if userID, ok := parseInternalToken(tokenString, cfg.InternalSecret); ok {
					ctx := context.WithValue(r.Context(), UserIDKey, userID)
					ctx = context.WithValue(ctx, InternalKey, true)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if cfg.Verifier != nil {
				token, err := cfg.Verifier.VerifyIDToken(r.Context(), tokenString)
				if err == nil && token != nil {
					ctx := context.WithValue(r.Context(), UserIDKey, token.UID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logging.WithContext(logging.Context{Event: "auth_rejected"}).WithError(err).Debug("id token rejected")
			}

			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid or expired token"))
		})
	}
}

// parseInternalToken validates an HS256 token and returns its subject. The user_id
// claim is accepted for older callers.
func parseInternalToken(tokenString, secret string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, true
	}
	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, true
	}
	return "", false
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// IsInternal reports whether the caller authenticated with the internal secret.
func IsInternal(ctx context.Context) bool {
	internal, _ := ctx.Value(InternalKey).(bool)
	return internal
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
