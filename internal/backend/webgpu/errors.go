package webgpu

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrUnavailable is returned when no compatible GPU adapter can be
	// acquired from the native WebGPU runtime.
	ErrUnavailable = errors.New("no compatible GPU adapter available")

	// ErrDeviceFailure wraps any native-library failure raised while
	// executing a kernel. The failed call is aborted; there is no retry.
	ErrDeviceFailure = errors.New("device operation failed")
)

// deviceError converts a recovered native-library panic into an error the
// caller can inspect with errors.Is(err, ErrDeviceFailure).
func deviceError(op string, r any) error {
	return fmt.Errorf("webgpu: %s: %w: %v", op, ErrDeviceFailure, r)
}

// recoverDevice is deferred by every exported operation so that a panic out
// of the native WebGPU bindings aborts only the current call.
func recoverDevice(op string, err *error) {
	if r := recover(); r != nil {
		*err = deviceError(op, r)
	}
}
