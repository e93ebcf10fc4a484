// Package gmail adapts the Gmail REST API to provider.Provider.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/provider"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user = "me"
	// listPageSize is the largest page Gmail serves.
	listPageSize = 500
)

// Scopes are the OAuth scopes the client needs.
var Scopes = []string{gmail.GmailReadonlyScope, gmail.GmailSendScope}

type Client struct {
	srv *gmail.Service
	log zerolog.Logger
}

// NewClient creates a Gmail client. Credentials come from opts, typically
// option.WithTokenSource.
func NewClient(ctx context.Context, log zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &Client{srv: srv, log: log.With().Str("component", "gmail").Logger()}, nil
}

func (c *Client) Profile(ctx context.Context) (*models.Profile, error) {
	p, err := c.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "get profile")
	}
	profile := &models.Profile{Email: p.EmailAddress}

	// The display name lives on the send-as identity. Missing settings
	// scope only costs us the name.
	sendAs, err := c.srv.Users.Settings.SendAs.List(user).Context(ctx).Do()
	if err != nil {
		c.log.Debug().Err(err).Msg("Could not list send-as identities")
		return profile, nil
	}
	for _, s := range sendAs.SendAs {
		if s.IsPrimary || s.IsDefault {
			profile.DisplayName = s.DisplayName
			break
		}
	}
	return profile, nil
}

func (c *Client) ListMessageIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	pageToken := ""
	for len(ids) < limit {
		size := limit - len(ids)
		if size > listPageSize {
			size = listPageSize
		}

		call := c.srv.Users.Messages.List(user).MaxResults(int64(size)).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, wrapError(err, "list messages")
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*models.ProviderMessage, error) {
	msg, err := c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "get message "+id)
	}
	return convertMessage(msg), nil
}

func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	body, err := c.srv.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return "", wrapError(err, "get attachment "+attachmentID)
	}
	return body.Data, nil
}

func (c *Client) SendRaw(ctx context.Context, raw, threadID string) (*models.SendResult, error) {
	sent, err := c.srv.Users.Messages.Send(user, &gmail.Message{Raw: raw, ThreadId: threadID}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "send message")
	}
	c.log.Info().Str("id", sent.Id).Str("thread_id", sent.ThreadId).Msg("Message sent")
	return &models.SendResult{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}

func convertMessage(msg *gmail.Message) *models.ProviderMessage {
	return &models.ProviderMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: strconv.FormatInt(msg.InternalDate, 10),
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(part *gmail.MessagePart) *models.Part {
	if part == nil {
		return nil
	}

	p := &models.Part{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		p.Headers = append(p.Headers, models.Header{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		p.Body = &models.PartBody{
			AttachmentID: part.Body.AttachmentId,
			Data:         part.Body.Data,
			Size:         part.Body.Size,
		}
	}
	for _, child := range part.Parts {
		p.Parts = append(p.Parts, convertPart(child))
	}
	return p
}

func wrapError(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("gmail: %s: %w: %s", op, provider.ErrUnauthorized, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("gmail: %s: %w", op, provider.ErrNotFound)
		}
	}
	return fmt.Errorf("gmail: %s: %w", op, err)
}
