package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The control service reuses well-known protobuf types, so its descriptor is written by hand
// rather than generated from a .proto file.
const (
	serviceName      = "sysmock.MockControl"
	statusMethodName = "/" + serviceName + "/Status"
	resetMethodName  = "/" + serviceName + "/Reset"
)

type mockControlServer interface {
	Status(ctx context.Context, request *emptypb.Empty) (*structpb.Struct, error)
	Reset(ctx context.Context, request *emptypb.Empty) (*emptypb.Empty, error)
}

var mockControlServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*mockControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Status",
			Handler:    statusHandler,
		},
		{
			MethodName: "Reset",
			Handler:    resetHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sysmock/control.proto",
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(mockControlServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: statusMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(mockControlServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func resetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(mockControlServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: resetMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(mockControlServer).Reset(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
