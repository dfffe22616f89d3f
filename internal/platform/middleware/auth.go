package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "consentry/pkg/domain-errors"
)

// TokenValidator validates bearer tokens into caller claims.
//
// The subject of a token is a ledger identity: a key, not a verified natural
// person. The off-chain registration service that maps keys to people is an
// unverified hint, and nothing behind this middleware may claim otherwise.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims carries the caller identity extracted from a token.
type Claims struct {
	Identity string
}

type contextKeyIdentity struct{}

// ContextKeyIdentity is exported for use in handlers and tests.
var ContextKeyIdentity = contextKeyIdentity{}

// GetIdentity retrieves the authenticated caller identity from the context.
func GetIdentity(ctx context.Context) string {
	identity, ok := ctx.Value(ContextKeyIdentity).(string)
	if !ok {
		return ""
	}
	return identity
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyIdentity, claims.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	key []byte
}

func NewHMACValidator(key string) *HMACValidator {
	return &HMACValidator{key: []byte(key)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return &Claims{Identity: subject}, nil
}
