package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulekeeper/internal/types"
)

// Error mapping:
//   construction and input errors -> INVALID_ARGUMENT
//   evaluation errors             -> FAILED_PRECONDITION
//   storage errors                -> UNAVAILABLE
//   context timeouts              -> DEADLINE_EXCEEDED
// Auth errors are mapped in the auth interceptor.

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		ce *types.ConstructionError
		ie *types.InputError
		ee *types.EvaluationError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.As(err, &ce), errors.As(err, &ie):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &ee):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func storageStatus(err error) error {
	return status.Errorf(codes.Unavailable, "rule storage: %v", err)
}
