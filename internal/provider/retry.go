package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/vdavid/vchat/internal/models"
)

// WithRefresh runs fn, and when it fails with ErrUnauthorized refreshes the
// credentials and runs it exactly once more.
func WithRefresh[T any](ctx context.Context, auth Authenticator, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return v, err
	}

	var zero T
	if rerr := auth.Refresh(ctx); rerr != nil {
		return zero, fmt.Errorf("%w: token refresh failed: %w", ErrUnauthorized, rerr)
	}
	return fn(ctx)
}

// Refreshing wraps a provider so every call gets one refresh-and-retry on
// ErrUnauthorized.
type Refreshing struct {
	next Provider
	auth Authenticator
}

// NewRefreshing wraps next.
func NewRefreshing(next Provider, auth Authenticator) *Refreshing {
	return &Refreshing{next: next, auth: auth}
}

func (p *Refreshing) Profile(ctx context.Context) (*models.Profile, error) {
	return WithRefresh(ctx, p.auth, func(ctx context.Context) (*models.Profile, error) {
		return p.next.Profile(ctx)
	})
}

func (p *Refreshing) ListMessageIDs(ctx context.Context, limit int) ([]string, error) {
	return WithRefresh(ctx, p.auth, func(ctx context.Context) ([]string, error) {
		return p.next.ListMessageIDs(ctx, limit)
	})
}

func (p *Refreshing) GetMessage(ctx context.Context, id string) (*models.ProviderMessage, error) {
	return WithRefresh(ctx, p.auth, func(ctx context.Context) (*models.ProviderMessage, error) {
		return p.next.GetMessage(ctx, id)
	})
}

func (p *Refreshing) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	return WithRefresh(ctx, p.auth, func(ctx context.Context) (string, error) {
		return p.next.GetAttachment(ctx, messageID, attachmentID)
	})
}

func (p *Refreshing) SendRaw(ctx context.Context, raw, threadID string) (*models.SendResult, error) {
	return WithRefresh(ctx, p.auth, func(ctx context.Context) (*models.SendResult, error) {
		return p.next.SendRaw(ctx, raw, threadID)
	})
}
