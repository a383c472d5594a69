package control

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/kb"
)

var (
	// ErrInvalidTimeScale is returned for a time scale outside [0, core.MaxTimeScale].
	ErrInvalidTimeScale = errors.New("invalid time scale")
	// ErrUnknownView is returned for a view name other than Overview or Ship.
	ErrUnknownView = errors.New("unknown view")
	// ErrInvalidKey is returned for an empty key code.
	ErrInvalidKey = errors.New("invalid key code")
	// ErrInvalidDisplay is returned for a malformed or out-of-range display
	// change.
	ErrInvalidDisplay = errors.New("invalid display settings")
	// ErrNotReady is returned when the service has no engine behind it.
	ErrNotReady = errors.New("simulation not ready")
)

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidTimeScale),
		errors.Is(err, ErrUnknownView),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrInvalidDisplay),
		errors.Is(err, core.ErrTimeScaleOutOfRange),
		errors.Is(err, core.ErrSunIntensityOutOfRange),
		errors.Is(err, core.ErrUnknownViewMode),
		errors.Is(err, kb.ErrInvalidBody):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrBodyNotFound),
		errors.Is(err, kb.ErrParentNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, kb.ErrBodyExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, kb.ErrSealed):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrNotReady):
		return status.Error(codes.Unavailable, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
