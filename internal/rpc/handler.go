package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/localnative/localnative/internal/notes"
	"github.com/localnative/localnative/internal/store"
)

// handler serves the sync methods from the local note service.
type handler struct {
	notes  *notes.Service
	stop   func()
	logger *slog.Logger
}

func (h *handler) IsVersionMatch(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	local, err := h.notes.Version(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(store.VersionsMatch(local, req.GetValue())), nil
}

func (h *handler) DiffToServer(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	return h.diff(ctx, req, h.notes.DiffToServer)
}

func (h *handler) DiffFromServer(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	return h.diff(ctx, req, h.notes.DiffFromServer)
}

func (h *handler) diff(ctx context.Context, req *structpb.ListValue, fn func(context.Context, []string) ([]string, error)) (*structpb.ListValue, error) {
	candidates, err := uuidsFrom(req)
	if err != nil {
		return nil, toStatus(err)
	}
	ids, err := fn(ctx, candidates)
	if err != nil {
		return nil, toStatus(err)
	}
	return uuidList(ids), nil
}

func (h *handler) SendNote(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	n, err := noteFromProto(req)
	if err != nil {
		return nil, toStatus(err)
	}
	if n.UUID4 == "" {
		return nil, status.Error(codes.InvalidArgument, "note without uuid4")
	}
	if _, err := h.notes.Insert(ctx, n); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(true), nil
}

func (h *handler) ReceiveNote(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	n, err := h.notes.GetByUUID4(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return noteToProto(n), nil
}

func (h *handler) Stop(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	h.logger.Info("stop requested by peer", slog.String("reason", req.GetValue()))
	h.stop()
	return wrapperspb.Bool(true), nil
}

// recoverInterceptor turns handler panics into Internal errors so a failing
// call never tears down the channel.
func (h *handler) recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("sync handler panic",
				slog.String("method", info.FullMethod),
				slog.String("panic", fmt.Sprint(p)),
				slog.String("stack", string(debug.Stack())),
			)
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return next(ctx, req)
}

func (h *handler) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	resp, err := next(ctx, req)
	if err != nil {
		h.logger.Warn("sync call failed", slog.String("method", info.FullMethod), slog.String("error", err.Error()))
	} else {
		h.logger.Debug("sync call", slog.String("method", info.FullMethod))
	}
	return resp, err
}
