package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/vdavid/vchat/internal/base64url"
	"github.com/vdavid/vchat/internal/models"
)

// Provider labels that drive message flags.
const (
	LabelUnread = "UNREAD"
	LabelSent   = "SENT"
)

type bodies struct {
	plain    string
	html     string
	hasPlain bool
	hasHTML  bool
}

// Decode converts a provider message into a Message. Attachments are
// described but their bytes are not fetched. The only failure is a message
// with no payload; everything else decodes to whatever could be recovered.
func Decode(pm *models.ProviderMessage) (*models.Message, error) {
	if pm == nil || pm.Payload == nil {
		return nil, ErrNoPayload
	}
	root := pm.Payload

	msg := &models.Message{
		ProviderID: pm.ID,
		ThreadID:   pm.ThreadID,
		Timestamp:  parseInternalDate(pm.InternalDate),
		IsRead:     !pm.HasLabel(LabelUnread),
		IsSent:     pm.HasLabel(LabelSent),
	}
	readHeaders(root.Headers, msg)

	var b bodies
	collectBodies(root, &b)
	if !b.hasPlain && !b.hasHTML && root.Body != nil {
		raw := base64url.DecodeString(root.Body.Data)
		if LooksLikeHTML(raw) {
			b.html, b.hasHTML = raw, true
		} else {
			b.plain, b.hasPlain = raw, true
		}
	}

	plain := b.plain
	if strings.TrimSpace(plain) == "" && b.hasHTML {
		plain = HTMLToText(b.html)
	}
	msg.BodyText = CleanBody(plain)
	msg.BodyHTML = b.html
	msg.Snippet = Snippet(msg.BodyText)
	msg.Attachments = collectAttachments(root, nil)

	return msg, nil
}

func readHeaders(headers []models.Header, msg *models.Message) {
	for _, h := range headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = ParseAddress(h.Value)
		case "to":
			msg.To = ParseAddressList(h.Value)
		case "cc":
			msg.Cc = ParseAddressList(h.Value)
		case "bcc":
			msg.Bcc = ParseAddressList(h.Value)
		case "subject":
			msg.Subject = decodeHeaderWord(h.Value)
		case "in-reply-to":
			msg.InReplyTo = trimAngles(h.Value)
		case "message-id":
			msg.MessageIDHeader = trimAngles(h.Value)
		case "references":
			msg.References = strings.TrimSpace(h.Value)
		}
	}
}

// collectBodies records the first text/plain and text/html bodies in
// depth-first order. Parts with a file name are attachments and are skipped
// along with their children.
func collectBodies(part *models.Part, b *bodies) {
	if part == nil || part.Filename != "" {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch mediaType(part.MimeType) {
		case "text/plain":
			if !b.hasPlain {
				b.plain, b.hasPlain = base64url.DecodeString(part.Body.Data), true
			}
		case "text/html":
			if !b.hasHTML {
				b.html, b.hasHTML = base64url.DecodeString(part.Body.Data), true
			}
		}
	}

	for _, child := range part.Parts {
		collectBodies(child, b)
	}
}

// collectAttachments returns descriptors for every part with a file name and
// a body reference, in tree order.
func collectAttachments(part *models.Part, acc []models.Attachment) []models.Attachment {
	if part == nil {
		return acc
	}

	if part.Filename != "" {
		ref := part.PartID
		var size int64
		if part.Body != nil {
			if part.Body.AttachmentID != "" {
				ref = part.Body.AttachmentID
			}
			size = part.Body.Size
		}
		if ref != "" {
			att := models.Attachment{
				ID:        ref,
				Filename:  part.Filename,
				MimeType:  mediaType(part.MimeType),
				SizeBytes: size,
			}
			if cid := part.Header("Content-ID"); cid != "" {
				att.ContentID = trimAngles(cid)
				att.IsInline = true
			} else if strings.HasPrefix(strings.ToLower(part.Header("Content-Disposition")), "inline") {
				att.IsInline = true
			}
			acc = append(acc, att)
		}
	}

	for _, child := range part.Parts {
		acc = collectAttachments(child, acc)
	}
	return acc
}

func parseInternalDate(value string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		ms = 0
	}
	return time.UnixMilli(ms).UTC()
}

func mediaType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func trimAngles(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 2 && value[0] == '<' && value[len(value)-1] == '>' {
		return value[1 : len(value)-1]
	}
	return value
}
