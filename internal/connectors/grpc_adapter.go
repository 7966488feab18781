package connectors

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// AvatarExecMethod — полный gRPC-метод сервиса avatar.
const AvatarExecMethod = "/avatar.v1.AvatarService/ExecTransaction"

type GRPCAdapter struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewGRPCAdapter создает экземпляр адаптера. При timeout <= 0 берется 15 секунд.
func NewGRPCAdapter(conn grpc.ClientConnInterface, timeout time.Duration) *GRPCAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GRPCAdapter{conn: conn, timeout: timeout}
}

// Execute реализует интерфейс ExecutionProvider
func (a *GRPCAdapter) Execute(ctx context.Context, call domain.Call) (domain.ExecutionResult, error) {
	// 1. Вызов -> Protobuf Struct
	req, err := CallToStruct(call)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("failed to create proto struct: %w", err)
	}

	// 2. Защитный таймаут на уровне вызова, независимо от ReliabilityWrapper
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// 3. gRPC вызов к avatar
	resp := new(structpb.Struct)
	if err := a.conn.Invoke(ctx, AvatarExecMethod, req, resp); err != nil {
		return domain.ExecutionResult{}, classify(err)
	}

	// 4. Ответ avatar передается как есть
	res, err := ResultFromStruct(resp)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}
	return res, nil
}

// classify переводит gRPC статусы в ошибки, понятные ReliabilityWrapper.
func classify(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.ResourceExhausted:
		return &ThrottleError{RetryAfter: time.Second, Cause: err}
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("avatar transport: %w", err)
	default:
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
}
