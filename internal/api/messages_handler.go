package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/codec"
	"github.com/vdavid/vchat/internal/mailbox"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/provider"
	"github.com/vdavid/vchat/internal/store"
)

const maxSendBody = 32 << 20

// Mailbox is the part of mailbox.Service the handlers use.
type Mailbox interface {
	ReadMarker
	Send(ctx context.Context, msg models.OutgoingMessage) (*models.Message, error)
	FetchAttachment(ctx context.Context, messageKey, attachmentID string) (*models.Attachment, error)
}

type attachmentRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	// Data is standard base64 in JSON.
	Data []byte `json:"data"`
}

// sendRequest takes recipients as header-style address lists.
type sendRequest struct {
	To          string              `json:"to"`
	Cc          string              `json:"cc"`
	Bcc         string              `json:"bcc"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	InReplyTo   string              `json:"in_reply_to"`
	References  string              `json:"references"`
	ThreadID    string              `json:"thread_id"`
	Attachments []attachmentRequest `json:"attachments"`
}

func (req sendRequest) outgoing() models.OutgoingMessage {
	msg := models.OutgoingMessage{
		To:         codec.ParseAddressList(req.To),
		Cc:         codec.ParseAddressList(req.Cc),
		Bcc:        codec.ParseAddressList(req.Bcc),
		Subject:    req.Subject,
		Body:       req.Body,
		InReplyTo:  req.InReplyTo,
		References: req.References,
		ThreadID:   req.ThreadID,
	}
	for _, a := range req.Attachments {
		msg.Attachments = append(msg.Attachments, models.AttachmentDraft{
			Filename: a.Filename,
			Data:     a.Data,
			MimeType: a.MimeType,
		})
	}
	return msg
}

// MessagesHandler sends messages and serves attachment bytes.
type MessagesHandler struct {
	mailbox Mailbox
	log     zerolog.Logger
}

// NewMessagesHandler creates a new MessagesHandler instance.
func NewMessagesHandler(mb Mailbox, log zerolog.Logger) *MessagesHandler {
	return &MessagesHandler{
		mailbox: mb,
		log:     log.With().Str("component", "api.messages").Logger(),
	}
}

// Send encodes and sends a message, returning the local echo.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	echo, err := h.mailbox.Send(r.Context(), req.outgoing())
	switch {
	case codec.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, mailbox.ErrNotAuthenticated), errors.Is(err, provider.ErrUnauthorized):
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to send message")
		http.Error(w, "failed to send message", http.StatusBadGateway)
		return
	}

	writeJSONStatus(w, http.StatusCreated, echo)
}

// GetAttachment streams attachment bytes, fetching them from the provider
// on first use.
func (h *MessagesHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	messageKey := chi.URLParam(r, "messageID")
	attachmentID := chi.URLParam(r, "attachmentID")

	att, err := h.mailbox.FetchAttachment(r.Context(), messageKey, attachmentID)
	switch {
	case errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, store.ErrAttachmentNotFound),
		errors.Is(err, provider.ErrNotFound):
		http.Error(w, "attachment not found", http.StatusNotFound)
		return
	case errors.Is(err, mailbox.ErrNotAuthenticated), errors.Is(err, provider.ErrUnauthorized):
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	case err != nil:
		h.log.Error().Err(err).Str("message", messageKey).Str("attachment", attachmentID).Msg("Failed to fetch attachment")
		http.Error(w, "failed to fetch attachment", http.StatusBadGateway)
		return
	}

	disposition := "attachment"
	if att.IsInline {
		disposition = "inline"
	}
	if att.Filename != "" {
		disposition = mime.FormatMediaType(disposition, map[string]string{"filename": att.Filename})
	}

	w.Header().Set("Content-Type", contentType(att))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(att.Data)))
	if _, err := w.Write(att.Data); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write attachment")
	}
}

// contentType trusts the declared type unless it is missing or generic.
func contentType(att *models.Attachment) string {
	if att.MimeType != "" && att.MimeType != "application/octet-stream" {
		return att.MimeType
	}
	return mimetype.Detect(att.Data).String()
}
