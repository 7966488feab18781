package engine

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	invokerKey ctxKey = "invoker"
)

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от клиента/прокси)
		traceID := r.Header.Get("X-Trace-ID")

		// 2. Если его нет, генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Кладем в контекст и отдаем клиенту
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), traceID)))
	})
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// extractTraceID помогает безопасно достать ID в любом месте кода
func extractTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}

func WithInvoker(ctx context.Context, invoker common.Address) context.Context {
	return context.WithValue(ctx, invokerKey, invoker)
}

// InvokerFrom достает адрес invoker'а, положенный AuthMiddleware или gRPC-интерцептором.
func InvokerFrom(ctx context.Context) (common.Address, bool) {
	inv, ok := ctx.Value(invokerKey).(common.Address)
	return inv, ok
}

// AuthMiddleware проверяет RS256 токен и кладет в контекст invoker'а (subject токена).
func AuthMiddleware(v auth.TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "reason": "missing access token"})
				return
			}
			claims, err := v.VerifyToken(header)
			if err != nil {
				logger.Warn("auth failure", zap.String("trace_id", extractTraceID(r.Context())), zap.Error(err))
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				return
			}
			invoker, err := claims.Invoker()
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "reason": "subject is not an invoker address"})
				return
			}

			ctx := auth.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(WithInvoker(ctx, invoker)))
		})
	}
}
