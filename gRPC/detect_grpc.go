package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	DetectService_Detect_FullMethodName       = "/nutbolt.DetectService/Detect"
	DetectService_Health_FullMethodName       = "/nutbolt.DetectService/Health"
	DetectService_GetConfig_FullMethodName    = "/nutbolt.DetectService/GetConfig"
	DetectService_UpdateConfig_FullMethodName = "/nutbolt.DetectService/UpdateConfig"
)

type DetectServiceServer interface {
	Detect(context.Context, *DetectRequest) (*DetectReply, error)
	Health(context.Context, *emptypb.Empty) (*HealthReply, error)
	GetConfig(context.Context, *emptypb.Empty) (*ConfigReply, error)
	UpdateConfig(context.Context, *UpdateConfigRequest) (*ConfigReply, error)
}

func RegisterDetectServiceServer(s grpc.ServiceRegistrar, srv DetectServiceServer) {
	s.RegisterService(&DetectService_ServiceDesc, srv)
}

// unaryHandler adapts a typed method to grpc.MethodDesc.
func unaryHandler[Req any, Resp any](fullMethod string, call func(DetectServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DetectServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DetectServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var DetectService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "nutbolt.DetectService",
	HandlerType: (*DetectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler:    unaryHandler(DetectService_Detect_FullMethodName, DetectServiceServer.Detect),
		},
		{
			MethodName: "Health",
			Handler:    unaryHandler(DetectService_Health_FullMethodName, DetectServiceServer.Health),
		},
		{
			MethodName: "GetConfig",
			Handler:    unaryHandler(DetectService_GetConfig_FullMethodName, DetectServiceServer.GetConfig),
		},
		{
			MethodName: "UpdateConfig",
			Handler:    unaryHandler(DetectService_UpdateConfig_FullMethodName, DetectServiceServer.UpdateConfig),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nutbolt/detect_service",
}

// DetectServiceClient calls nutbolt.DetectService with the JSON codec.
type DetectServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDetectServiceClient(cc grpc.ClientConnInterface) *DetectServiceClient {
	return &DetectServiceClient{cc: cc}
}

func (c *DetectServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *DetectServiceClient) Detect(ctx context.Context, in *DetectRequest, opts ...grpc.CallOption) (*DetectReply, error) {
	out := new(DetectReply)
	if err := c.invoke(ctx, DetectService_Detect_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectServiceClient) Health(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*HealthReply, error) {
	out := new(HealthReply)
	if err := c.invoke(ctx, DetectService_Health_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectServiceClient) GetConfig(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ConfigReply, error) {
	out := new(ConfigReply)
	if err := c.invoke(ctx, DetectService_GetConfig_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectServiceClient) UpdateConfig(ctx context.Context, in *UpdateConfigRequest, opts ...grpc.CallOption) (*ConfigReply, error) {
	out := new(ConfigReply)
	if err := c.invoke(ctx, DetectService_UpdateConfig_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
