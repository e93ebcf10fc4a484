// Package mailbox performs the user-initiated operations on the mailbox:
// sending, lazy attachment download and marking conversations read.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/base64url"
	"github.com/vdavid/vchat/internal/codec"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/provider"
	"github.com/vdavid/vchat/internal/reconcile"
	"github.com/vdavid/vchat/internal/store"
)

var ErrNotAuthenticated = errors.New("not authenticated")

type Service struct {
	provider   provider.Provider
	auth       provider.Authenticator
	store      *store.Store
	reconciler *reconcile.Reconciler
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(p provider.Provider, auth provider.Authenticator, st *store.Store, r *reconcile.Reconciler, log zerolog.Logger) *Service {
	return &Service{
		provider:   p,
		auth:       auth,
		store:      st,
		reconciler: r,
		log:        log.With().Str("component", "mailbox").Logger(),
		now:        time.Now,
	}
}

// Send validates, encodes and sends msg, then stores its local echo. An
// empty From is filled in from the signed-in account. Validation errors are
// returned before anything reaches the provider.
func (s *Service) Send(ctx context.Context, msg models.OutgoingMessage) (*models.Message, error) {
	if !s.auth.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if msg.From.Email == "" {
		msg.From = models.Address{Name: s.auth.CurrentUserDisplayName(), Email: s.auth.CurrentUserEmail()}
	}
	if msg.Date.IsZero() {
		msg.Date = s.now()
	}

	if err := codec.Validate(&msg); err != nil {
		return nil, err
	}
	raw, err := codec.Encode(&msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	localID := uuid.NewString()
	log := s.log.With().Str("local_id", localID).Logger()
	log.Debug().Int("bytes", len(raw)).Msg("Sending message")

	res, err := s.provider.SendRaw(ctx, base64url.Encode(raw), msg.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	log.Info().Str("provider_id", res.ID).Msg("Message accepted by provider")

	echo := localEcho(localID, msg, res)
	var stored *models.Message
	err = s.store.Update(ctx, func(g *store.Graph) error {
		var err error
		stored, err = s.reconciler.AddEcho(g, echo, msg.From.Email)
		return err
	})
	if err != nil {
		// The provider has the message; the next sync brings it in.
		log.Error().Err(err).Msg("Failed to store local echo")
		return nil, fmt.Errorf("message sent but not stored locally: %w", err)
	}
	return stored, nil
}

func localEcho(localID string, msg models.OutgoingMessage, res *models.SendResult) *models.Message {
	threadID := msg.ThreadID
	if res.ThreadID != "" {
		threadID = res.ThreadID
	}

	echo := &models.Message{
		LocalID:    localID,
		ThreadID:   threadID,
		From:       msg.From,
		To:         msg.To,
		Cc:         msg.Cc,
		Bcc:        msg.Bcc,
		Subject:    msg.Subject,
		InReplyTo:  msg.InReplyTo,
		References: msg.References,
		BodyText:   msg.Body,
		Snippet:    codec.Snippet(msg.Body),
		Timestamp:  msg.Date.UTC(),
		IsRead:     true,
		IsSent:     true,
	}
	for _, a := range msg.Attachments {
		echo.Attachments = append(echo.Attachments, models.Attachment{
			ID:        uuid.NewString(),
			Filename:  a.Filename,
			MimeType:  a.MimeType,
			SizeBytes: int64(len(a.Data)),
			Data:      a.Data,
		})
	}
	return echo
}

// FetchAttachment returns the bytes of an attachment, downloading and
// storing them on first use.
func (s *Service) FetchAttachment(ctx context.Context, messageKey, attachmentID string) (*models.Attachment, error) {
	var (
		msg *models.Message
		att *models.Attachment
	)
	s.store.View(func(g *store.Graph) {
		m, ok := g.Message(messageKey)
		if !ok {
			return
		}
		msg = m.Clone()
		for i := range msg.Attachments {
			if msg.Attachments[i].ID == attachmentID {
				att = &msg.Attachments[i]
			}
		}
	})
	switch {
	case msg == nil:
		return nil, fmt.Errorf("%w: %s", store.ErrMessageNotFound, messageKey)
	case att == nil:
		return nil, fmt.Errorf("%w: %s/%s", store.ErrAttachmentNotFound, messageKey, attachmentID)
	case att.HasData():
		return att, nil
	case msg.ProviderID == "":
		return nil, fmt.Errorf("%w: local message %s has no data for %s", store.ErrAttachmentNotFound, messageKey, attachmentID)
	}

	encoded, err := s.provider.GetAttachment(ctx, msg.ProviderID, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment %s: %w", attachmentID, err)
	}
	data := base64url.Decode(encoded)

	err = s.store.Update(ctx, func(g *store.Graph) error {
		return g.SetAttachmentData(messageKey, attachmentID, data)
	})
	if err != nil {
		return nil, err
	}

	att.Data = data
	if att.SizeBytes == 0 {
		att.SizeBytes = int64(len(data))
	}
	s.log.Debug().Str("message", messageKey).Str("attachment", attachmentID).Int("bytes", len(data)).Msg("Attachment fetched")
	return att, nil
}

// MarkConversationRead marks every message of a conversation read locally.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID string) error {
	return s.store.Update(ctx, func(g *store.Graph) error {
		if _, ok := g.Conversation(conversationID); !ok {
			return fmt.Errorf("%w: %s", store.ErrConversationNotFound, conversationID)
		}
		for _, m := range g.Messages(conversationID) {
			if err := g.SetMessageRead(m.Key(), true); err != nil {
				return err
			}
		}
		return g.RefreshPreview(conversationID)
	})
}
