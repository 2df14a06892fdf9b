package brightness

import "errors"

// Domain errors for brightness operations.
var (
	// ErrInvalidValue is returned for a negative value or one above max_brightness.
	ErrInvalidValue = errors.New("brightness: invalid value")

	// ErrAccessDenied is returned when the kernel rejects the brightness write.
	ErrAccessDenied = errors.New("brightness: write rejected")

	// ErrAttributeUnavailable is returned when an attribute is missing or
	// does not hold an integer. It points at a malformed device node
	// rather than a caller mistake.
	ErrAttributeUnavailable = errors.New("brightness: attribute unavailable")
)
