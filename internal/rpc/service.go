package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "localnative.Sync"

// Method names of the sync service.
const (
	MethodIsVersionMatch = "IsVersionMatch"
	MethodDiffToServer   = "DiffToServer"
	MethodDiffFromServer = "DiffFromServer"
	MethodSendNote       = "SendNote"
	MethodReceiveNote    = "ReceiveNote"
	MethodStop           = "Stop"
)

// SyncServer is the server side of the sync service. Messages are protobuf
// well-known types: version and uuid4 arguments are StringValue, answers are
// BoolValue, uuid4 sets are ListValue and notes are Struct.
type SyncServer interface {
	IsVersionMatch(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	DiffToServer(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error)
	DiffFromServer(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error)
	SendNote(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	ReceiveNote(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Stop(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodIsVersionMatch, SyncServer.IsVersionMatch),
		unary(MethodDiffToServer, SyncServer.DiffToServer),
		unary(MethodDiffFromServer, SyncServer.DiffFromServer),
		unary(MethodSendNote, SyncServer.SendNote),
		unary(MethodReceiveNote, SyncServer.ReceiveNote),
		unary(MethodStop, SyncServer.Stop),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "localnative/sync",
}

// unary builds the method descriptor that decodes Req and dispatches call
// through the server's interceptor chain.
func unary[Req, Resp any](name string, call func(SyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SyncServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SyncServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
