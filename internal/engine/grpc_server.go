package engine

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/spaceai-roles-modifier/internal/connectors"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// ModifierExecMethod — полный gRPC-метод шлюза.
const ModifierExecMethod = "/roles.v1.ModifierService/Exec"

// ModifierServer реализует roles.v1.ModifierService.
type ModifierServer interface {
	Exec(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type GRPCGatewayServer struct {
	core *ModifierCore
}

func NewGRPCGatewayServer(core *ModifierCore) *GRPCGatewayServer {
	return &GRPCGatewayServer{core: core}
}

// Exec принимает {to, value, data, operation, role?, default_role?}. Invoker берется из токена.
func (s *GRPCGatewayServer) Exec(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// 1. Invoker кладет UnaryAuthInterceptor
	invoker, ok := InvokerFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing invoker")
	}

	// 2. Разбор запроса
	call, err := connectors.CallFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	execReq := ExecRequest{Call: call}
	if v, ok := req.GetFields()[connectors.FieldRole]; ok {
		num, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum {
			return nil, status.Errorf(codes.InvalidArgument, "bad %q", connectors.FieldRole)
		}
		n := num.NumberValue
		if n < 0 || n > 65535 || n != float64(uint16(n)) {
			return nil, status.Errorf(codes.InvalidArgument, "bad %q", connectors.FieldRole)
		}
		role := uint16(n)
		execReq.Role = &role
	}
	if v, ok := req.GetFields()[connectors.FieldDefault]; ok {
		b, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return nil, status.Errorf(codes.InvalidArgument, "bad %q", connectors.FieldDefault)
		}
		execReq.DefaultRole = b.BoolValue
	}

	// 3. Тот же пайплайн, что и для HTTP
	resp, err := s.core.ExecTransaction(ctx, invoker, execReq)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			return nil, status.Error(codes.PermissionDenied, domain.Reason(err))
		}
		return nil, status.Error(codes.Unavailable, "execution failed")
	}

	// 4. Ответ avatar обратно в Protobuf
	out, err := connectors.ResultToStruct(resp.ExecutionResult)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out.Fields[connectors.FieldRole] = structpb.NewNumberValue(float64(resp.RoleID))
	out.Fields["simulated"] = structpb.NewBoolValue(resp.Simulated)
	return out, nil
}

func execHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModifierServer).Exec(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ModifierExecMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ModifierServer).Exec(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var modifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "roles.v1.ModifierService",
	HandlerType: (*ModifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exec", Handler: execHandler},
	},
	Metadata: "roles/v1/modifier.proto",
}

// RegisterModifierServer регистрирует шлюз на gRPC сервере.
func RegisterModifierServer(s grpc.ServiceRegistrar, srv ModifierServer) {
	s.RegisterService(&modifierServiceDesc, srv)
}
