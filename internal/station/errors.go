package station

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig        = errors.New("configuration error")
	ErrDeviceConnect = errors.New("device connect error")
	ErrDevice        = errors.New("device error")
	ErrInvalidCavity = errors.New("invalid cavity")
	ErrProtocol      = errors.New("protocol error")
	ErrTimeout       = errors.New("timeout")
	ErrRunInProgress = errors.New("run in progress")
	ErrStartLocked   = errors.New("start locked")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrDevice
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the marker carried by err. Unknown errors
// report "error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCavity):
		return "invalid_cavity"
	case errors.Is(err, ErrDeviceConnect):
		return "device_connect"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrDevice):
		return "device"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrRunInProgress):
		return "run_in_progress"
	case errors.Is(err, ErrStartLocked):
		return "start_locked"
	default:
		return "error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "station failure"
	}
	return strings.Join(parts, ": ")
}
