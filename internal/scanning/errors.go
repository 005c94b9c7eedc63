package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a backend is requested that cannot be built.
	ErrConfiguration = errors.New("invalid scanning configuration")
	// ErrCapabilityUnavailable marks a collaborator that is not configured or is
	// temporarily disabled.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)

// DecodeError reports receipt bytes that could not be decoded into an image.
type DecodeError struct {
	MimeType string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.MimeType == "" {
		return fmt.Sprintf("decoding image: %v", e.Err)
	}
	return fmt.Sprintf("decoding %s image: %v", e.MimeType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TierFailure wraps an error raised by a collaborator inside one tier.
// The pipeline records it and moves on to the next tier.
type TierFailure struct {
	Tier Tier
	Err  error
}

func (e *TierFailure) Error() string {
	return fmt.Sprintf("%s tier failed: %v", e.Tier, e.Err)
}

func (e *TierFailure) Unwrap() error {
	return e.Err
}
