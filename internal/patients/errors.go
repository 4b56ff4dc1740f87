package patients

import "errors"

var (
	// ErrNameRequired is returned when the registration has no name
	ErrNameRequired = errors.New("patient name is required")

	// ErrPhoneRequired is returned when the registration has no phone number
	ErrPhoneRequired = errors.New("patient phone is required")

	// ErrNotFound is returned when no patient matches the given key or ref
	ErrNotFound = errors.New("patient not found")
)
