package engine

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
)

// UnaryAuthInterceptor проверяет токен в метаданных gRPC вызова
func UnaryAuthInterceptor(v auth.TokenValidator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// 1. Извлекаем метаданные из контекста
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}

		// 2. Ищем токен (в gRPC заголовки в нижнем регистре)
		tokens := md.Get("authorization")
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing access token")
		}

		// 3. Та же проверка, что и в HTTP
		claims, err := v.VerifyToken(tokens[0])
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token")
		}
		invoker, err := claims.Invoker()
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "subject is not an invoker address")
		}

		// 4. Обогащаем контекст для ExecTransaction
		newCtx := WithInvoker(auth.WithClaims(ctx, claims), invoker)
		if ids := md.Get("x-trace-id"); len(ids) > 0 {
			newCtx = WithTraceID(newCtx, ids[0])
		}

		// Идем дальше по цепочке
		return handler(newCtx, req)
	}
}
