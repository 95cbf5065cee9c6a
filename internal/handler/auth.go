package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// tokenType is the only token_type claim accepted by the API.
const tokenType = "access"

type userIDKey struct{}

// WithUserID returns a context carrying the acting user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the acting user id stored by Auth.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// Auth returns a middleware that validates an HS256 bearer token and stores
// its subject as the acting user id.
func Auth(secret []byte) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if typ, _ := claims["token_type"].(string); typ != tokenType {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				writeError(w, http.StatusUnauthorized, "invalid subject")
				return
			}

			ctx := WithUserID(r.Context(), sub)
			ctx = zctx.With(ctx, zap.String("user_id", sub))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewToken signs an access token for userID. It is used by tooling and tests;
// the API itself never issues tokens.
func NewToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        userID,
		"token_type": tokenType,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
