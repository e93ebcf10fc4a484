package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPayload is returned by Decode when the provider message has no payload at all.
	ErrNoPayload = errors.New("message payload is absent")

	// ErrInvalidAddress is returned when a sender or recipient fails address validation.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrEmptyBody is returned when an outgoing body is empty after trimming.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrNoRecipients is returned when an outgoing message has no recipients.
	ErrNoRecipients = errors.New("message has no recipients")
)

// ValidationError describes why an outgoing message was rejected before encoding.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is an outgoing-message validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
