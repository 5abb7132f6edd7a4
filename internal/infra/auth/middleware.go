package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

// TokenValidator — интерфейс проверки операторских токенов
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типизированные ключи контекста (избегаем коллизий)
type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyScopes ctxKey = "user_scopes"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxKeyUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID кладет ID оператора в контекст напрямую (внутренние вызовы, тесты).
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, id)
}

// WithScopes кладет права в контекст напрямую (внутренние вызовы, тесты).
func WithScopes(ctx context.Context, scopes map[string]bool) context.Context {
	return context.WithValue(ctx, ctxKeyScopes, scopes)
}

// UserIDFromContext безопасно достает ID авторизованного оператора.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}

// ScopesFromContext достает права текущего токена.
func ScopesFromContext(ctx context.Context) map[string]bool {
	if s, ok := ctx.Value(ctxKeyScopes).(map[string]bool); ok {
		return s
	}
	return nil
}
