package nbi

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/internal/elevation"
	"github.com/signalsfoundry/avue/internal/search"
	"github.com/signalsfoundry/avue/internal/supports"
	"github.com/signalsfoundry/avue/kb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest marks a request that could not be decoded or is
// missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps search errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrTooManyCandidates):
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, elevation.ErrUpstream),
		errors.Is(err, supports.ErrUpstream),
		errors.Is(err, search.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, search.ErrSuperseded),
		errors.Is(err, search.ErrCancelled),
		errors.Is(err, kb.ErrStaleEpoch):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, search.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// httpStatus is the HTTP counterpart of ToStatusError.
func httpStatus(err error) int {
	switch status.Code(ToStatusError(err)) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.ResourceExhausted:
		return http.StatusUnprocessableEntity
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Aborted, codes.Canceled:
		return http.StatusConflict
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
