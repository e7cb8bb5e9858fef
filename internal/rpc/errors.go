package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/localnative/localnative/internal/apperr"
)

// toStatus converts an engine error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, apperr.ErrVersionMismatch), errors.Is(err, apperr.ErrSchema):
		code = codes.FailedPrecondition
	case errors.Is(err, apperr.ErrCancelled), errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, apperr.ErrDecode):
		code = codes.InvalidArgument
	case errors.Is(err, apperr.ErrIO):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

// fromStatus maps a gRPC error returned to the client back onto the taxonomy.
func fromStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc: %s: %w: %w", method, apperr.ErrIO, err)
	}
	var class error
	switch st.Code() {
	case codes.NotFound:
		class = apperr.ErrNotFound
	case codes.FailedPrecondition:
		class = apperr.ErrVersionMismatch
	case codes.Canceled:
		class = apperr.ErrCancelled
	case codes.Unavailable, codes.DeadlineExceeded:
		class = apperr.ErrIO
	case codes.InvalidArgument, codes.ResourceExhausted:
		class = apperr.ErrDecode
	default:
		class = apperr.ErrInternal
	}
	return fmt.Errorf("rpc: %s: %s: %w", method, st.Message(), class)
}
