package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrLiveStateNotFound) {
//	    // nothing recorded yet
//	}
var (
	// ErrLiveStateNotFound is returned when no live record exists for a device.
	ErrLiveStateNotFound = errors.New("device: live state not found")

	// ErrStatusNotFound is returned when no communication status exists for a unit.
	ErrStatusNotFound = errors.New("device: status not found")

	// ErrDeviceIDRequired is returned when a device ID is empty.
	ErrDeviceIDRequired = errors.New("device: device id is required")

	// ErrInvalidRetention is returned when a prune window is not positive.
	ErrInvalidRetention = errors.New("device: retention must be positive")

	// ErrInvalidTimestamp is returned when a stored timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("device: invalid timestamp")
)
