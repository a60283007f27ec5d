package grpcservice

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name. Messages are
// protobuf well-known types, so no generated code is needed.
const ServiceName = "clipmind.v1.ClipMind"

const (
	methodGetHistory = "/" + ServiceName + "/GetHistory"
	methodCopy       = "/" + ServiceName + "/Copy"
	methodDelete     = "/" + ServiceName + "/Delete"
	methodUpdate     = "/" + ServiceName + "/Update"
	methodClear      = "/" + ServiceName + "/Clear"
	methodStatus     = "/" + ServiceName + "/Status"
	methodWatch      = "/" + ServiceName + "/Watch"
)

// ClipMindServer is the server API.
//
//	GetHistory(Empty)       returns ListValue of entries, newest first
//	Copy(StringValue id)    returns Empty
//	Delete(StringValue id)  returns Empty
//	Update(Struct{id, pinned}) returns Empty
//	Clear(Empty)            returns Empty
//	Status(Empty)           returns Struct{entries, observers, stats}
//	Watch(Empty)            streams Struct{seq, history}
type ClipMindServer interface {
	GetHistory(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Copy(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Update(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Clear(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv ClipMindServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts one server method to a grpc.MethodDesc handler.
func unary[Req any, Res any](fullMethod string, call func(ClipMindServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ClipMindServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ClipMindServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ClipMindServer).Watch(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClipMindServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetHistory", Handler: unary(methodGetHistory, ClipMindServer.GetHistory)},
		{MethodName: "Copy", Handler: unary(methodCopy, ClipMindServer.Copy)},
		{MethodName: "Delete", Handler: unary(methodDelete, ClipMindServer.Delete)},
		{MethodName: "Update", Handler: unary(methodUpdate, ClipMindServer.Update)},
		{MethodName: "Clear", Handler: unary(methodClear, ClipMindServer.Clear)},
		{MethodName: "Status", Handler: unary(methodStatus, ClipMindServer.Status)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "clipmind/v1/clipmind.proto",
}
