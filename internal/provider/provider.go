// Package provider defines the mail provider and credential boundaries the
// sync engine talks to.
package provider

import (
	"context"
	"errors"

	"github.com/vdavid/vchat/internal/models"
)

var (
	// ErrUnauthorized is returned when the provider rejects the credentials,
	// after the one refresh-and-retry has been spent.
	ErrUnauthorized = errors.New("provider rejected credentials")

	// ErrNotFound is returned when a message or attachment doesn't exist.
	ErrNotFound = errors.New("not found at provider")
)

// Provider is a remote mailbox.
type Provider interface {
	// Profile returns the authenticated account.
	Profile(ctx context.Context) (*models.Profile, error)
	// ListMessageIDs returns up to limit message ids, newest first.
	ListMessageIDs(ctx context.Context, limit int) ([]string, error)
	// GetMessage returns the full part tree of a message.
	GetMessage(ctx context.Context, id string) (*models.ProviderMessage, error)
	// GetAttachment returns the base64url-encoded bytes of an attachment.
	GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error)
	// SendRaw sends a base64url-encoded RFC 2822 message, optionally in a thread.
	SendRaw(ctx context.Context, raw, threadID string) (*models.SendResult, error)
}

// Authenticator is the credential collaborator.
type Authenticator interface {
	IsAuthenticated() bool
	CurrentUserEmail() string
	CurrentUserDisplayName() string
	// Refresh forces a new access token.
	Refresh(ctx context.Context) error
}

// ProfileRecorder is implemented by authenticators that cache the profile
// the provider reports.
type ProfileRecorder interface {
	SetProfile(profile models.Profile)
}
