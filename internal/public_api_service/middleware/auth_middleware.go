package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedUserContextKey = ContextKey("authenticatedUser")
)

// ScopeSend allows sending, queueing and previewing messages.
const ScopeSend = "sms:send"

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthenticatedUser holds information about the authenticated caller.
type AuthenticatedUser struct {
	ID     string
	Method string // "jwt" or "api_key"
	Scopes []string
}

func (u AuthenticatedUser) HasScope(scope string) bool {
	return slices.Contains(u.Scopes, scope)
}

// Authenticator validates bearer JWTs signed with a shared HMAC secret and
// API keys against a list of SHA3-256 digests.
type Authenticator struct {
	secret  []byte
	apiKeys [][]byte
	logger  *slog.Logger
}

// NewAuthenticator takes the JWT secret and hex encoded API key digests.
// Digests that are not valid hex are logged and skipped.
func NewAuthenticator(jwtSecret string, apiKeyHashes []string, logger *slog.Logger) *Authenticator {
	a := &Authenticator{secret: []byte(jwtSecret), logger: logger.With("component", "auth")}
	for _, h := range apiKeyHashes {
		digest, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(digest) != 32 {
			a.logger.Warn("Ignoring malformed API key hash")
			continue
		}
		a.apiKeys = append(a.apiKeys, digest)
	}
	return a
}

// HashAPIKey returns the hex digest stored in the API key allow-list.
func HashAPIKey(plainTextKey string) string {
	sum := sha3.Sum256([]byte(plainTextKey))
	return hex.EncodeToString(sum[:])
}

func (a *Authenticator) validateJWT(tokenString string) (AuthenticatedUser, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return AuthenticatedUser{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return AuthenticatedUser{}, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return AuthenticatedUser{}, ErrInvalidToken
	}
	scope, _ := claims["scope"].(string)
	return AuthenticatedUser{ID: sub, Method: "jwt", Scopes: strings.Fields(scope)}, nil
}

// API keys carry every scope; they are issued to trusted backends only.
func (a *Authenticator) validateAPIKey(key string) (AuthenticatedUser, error) {
	sum := sha3.Sum256([]byte(key))
	for _, digest := range a.apiKeys {
		if subtle.ConstantTimeCompare(sum[:], digest) == 1 {
			id := hex.EncodeToString(sum[:4])
			return AuthenticatedUser{ID: "api_key:" + id, Method: "api_key", Scopes: []string{ScopeSend}}, nil
		}
	}
	return AuthenticatedUser{}, ErrInvalidToken
}

// Middleware authenticates requests through the Authorization header,
// accepting "Bearer <jwt>" and "ApiKey <key>".
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.logger.WarnContext(r.Context(), "Authorization header missing")
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 {
			a.logger.WarnContext(r.Context(), "Invalid Authorization header format")
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		var user AuthenticatedUser
		var err error
		switch parts[0] {
		case "Bearer":
			user, err = a.validateJWT(parts[1])
		case "ApiKey":
			user, err = a.validateAPIKey(parts[1])
		default:
			a.logger.WarnContext(r.Context(), "Unsupported Authorization scheme", "scheme", parts[0])
			http.Error(w, "Unsupported Authorization scheme", http.StatusUnauthorized)
			return
		}
		if err != nil {
			a.logger.WarnContext(r.Context(), "Token validation failed", "scheme", parts[0], "error", err)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the caller stored by Middleware.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return user, ok
}

// RequireScope rejects authenticated callers that lack scope.
func RequireScope(scope string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "AuthenticatedUser not found in context. Auth middleware must run first.")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !user.HasScope(scope) {
				logger.WarnContext(r.Context(), "Permission denied",
					"userID", user.ID,
					"required_scope", scope,
					"user_scopes", strings.Join(user.Scopes, ","))
				http.Error(w, "Forbidden: missing scope "+scope, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
