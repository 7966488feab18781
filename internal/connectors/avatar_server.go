package connectors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// Executor исполняет уже разрешенный вызов.
type Executor interface {
	Execute(ctx context.Context, call domain.Call) (domain.ExecutionResult, error)
}

// AvatarServer реализует avatar.v1.AvatarService.
type AvatarServer interface {
	ExecTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type avatarServer struct {
	exec Executor
}

func (s *avatarServer) ExecTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	call, err := CallFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.exec.Execute(ctx, call)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return ResultToStruct(res)
}

func execTransactionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvatarServer).ExecTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AvatarExecMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AvatarServer).ExecTransaction(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var avatarServiceDesc = grpc.ServiceDesc{
	ServiceName: "avatar.v1.AvatarService",
	HandlerType: (*AvatarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecTransaction", Handler: execTransactionHandler},
	},
	Metadata: "avatar/v1/avatar.proto",
}

// RegisterAvatarServer поднимает avatar поверх Executor (локальный стенд, тесты).
func RegisterAvatarServer(s grpc.ServiceRegistrar, exec Executor) {
	s.RegisterService(&avatarServiceDesc, &avatarServer{exec: exec})
}
