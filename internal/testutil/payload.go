package testutil

import (
	"strconv"
	"time"

	"github.com/vdavid/vchat/internal/base64url"
	"github.com/vdavid/vchat/internal/models"
)

// MessageParams describes a provider message for tests. When Parts is empty the
// payload is a single text/plain node holding Body; otherwise the payload is
// a multipart/mixed node with the given children and Body is ignored.
type MessageParams struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Cc       string
	Bcc      string
	Subject  string
	Body     string
	Time     time.Time
	Unread   bool
	Sent     bool
	Parts    []*models.Part
}

// NewProviderMessage builds a provider payload from params.
func NewProviderMessage(params MessageParams) *models.ProviderMessage {
	threadID := params.ThreadID
	if threadID == "" {
		threadID = "thread-" + params.ID
	}

	var labels []string
	if params.Unread {
		labels = append(labels, "UNREAD")
	}
	if params.Sent {
		labels = append(labels, "SENT")
	} else {
		labels = append(labels, "INBOX")
	}

	headers := []models.Header{
		{Name: "From", Value: params.From},
		{Name: "To", Value: params.To},
		{Name: "Subject", Value: params.Subject},
	}
	if params.Cc != "" {
		headers = append(headers, models.Header{Name: "Cc", Value: params.Cc})
	}
	if params.Bcc != "" {
		headers = append(headers, models.Header{Name: "Bcc", Value: params.Bcc})
	}

	var payload *models.Part
	if len(params.Parts) == 0 {
		payload = TextPart("text/plain", params.Body)
	} else {
		payload = Multipart("multipart/mixed", params.Parts...)
	}
	payload.Headers = append(headers, payload.Headers...)

	return &models.ProviderMessage{
		ID:           params.ID,
		ThreadID:     threadID,
		InternalDate: strconv.FormatInt(params.Time.UnixMilli(), 10),
		LabelIDs:     labels,
		Payload:      payload,
	}
}

// TextPart returns a leaf part with an inline base64url body.
func TextPart(mimeType, body string) *models.Part {
	return &models.Part{
		MimeType: mimeType,
		Body: &models.PartBody{
			Data: base64url.EncodeString(body),
			Size: int64(len(body)),
		},
	}
}

// AttachmentPart returns a part describing an attachment stored provider side.
func AttachmentPart(partID, filename, mimeType, attachmentID string, size int64) *models.Part {
	return &models.Part{
		PartID:   partID,
		MimeType: mimeType,
		Filename: filename,
		Headers: []models.Header{
			{Name: "Content-Disposition", Value: `attachment; filename="` + filename + `"`},
		},
		Body: &models.PartBody{AttachmentID: attachmentID, Size: size},
	}
}

// Multipart returns a container part with children.
func Multipart(mimeType string, parts ...*models.Part) *models.Part {
	return &models.Part{
		MimeType: mimeType,
		Body:     &models.PartBody{},
		Parts:    parts,
	}
}
