package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/vdavid/vchat/internal/models"
)

const base64LineLength = 64

// newBoundary is swapped in tests that need stable output.
var newBoundary = func() string {
	return "vchat-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Validate rejects an outgoing message whose sender or recipients fail
// address validation, that has no recipients, or whose body is blank.
func Validate(msg *models.OutgoingMessage) error {
	if !ValidAddress(msg.From.Email) {
		return &ValidationError{Field: "from", Value: msg.From.Email, Err: ErrInvalidAddress}
	}

	if len(msg.To)+len(msg.Cc)+len(msg.Bcc) == 0 {
		return &ValidationError{Field: "to", Err: ErrNoRecipients}
	}
	for _, field := range []struct {
		name  string
		addrs []models.Address
	}{{"to", msg.To}, {"cc", msg.Cc}, {"bcc", msg.Bcc}} {
		for _, a := range field.addrs {
			if !ValidAddress(a.Email) {
				return &ValidationError{Field: field.name, Value: a.Email, Err: ErrInvalidAddress}
			}
		}
	}

	if strings.TrimSpace(msg.Body) == "" {
		return &ValidationError{Field: "body", Err: ErrEmptyBody}
	}
	return nil
}

// Encode validates msg and renders it as an RFC 2822 message. Without
// attachments the result is a single text/plain entity; with attachments it
// is multipart/mixed with base64 attachment parts.
func Encode(msg *models.OutgoingMessage) ([]byte, error) {
	if err := Validate(msg); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", formatAddress(msg.From))
	writeHeader(&buf, "To", FormatAddressList(msg.To))
	if len(msg.Cc) > 0 {
		writeHeader(&buf, "Cc", FormatAddressList(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		writeHeader(&buf, "Bcc", FormatAddressList(msg.Bcc))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))

	if msg.InReplyTo != "" {
		writeHeader(&buf, "In-Reply-To", angleIDs(msg.InReplyTo))
		refs := msg.References
		if refs == "" {
			refs = msg.InReplyTo
		}
		writeHeader(&buf, "References", angleIDs(refs))
	} else if msg.References != "" {
		writeHeader(&buf, "References", angleIDs(msg.References))
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		writeTextHeaders(&buf, msg.Body)
		buf.WriteString("\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes(), nil
	}

	boundary := newBoundary()
	writeHeader(&buf, "Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": boundary}))
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	writeTextHeaders(&buf, msg.Body)
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	for _, att := range msg.Attachments {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		writeAttachment(&buf, att)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writeTextHeaders(buf *bytes.Buffer, body string) {
	writeHeader(buf, "Content-Type", "text/plain; charset=UTF-8")
	writeHeader(buf, "Content-Transfer-Encoding", transferEncoding(body))
}

func writeAttachment(buf *bytes.Buffer, att models.AttachmentDraft) {
	filename := att.Filename
	if filename == "" {
		filename = "attachment"
	}
	contentType := mediaType(att.MimeType)
	if contentType == "" {
		contentType = mediaType(mimetype.Detect(att.Data).String())
	}

	writeHeader(buf, "Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": filename}))
	writeHeader(buf, "Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	writeHeader(buf, "Content-Transfer-Encoding", "base64")
	buf.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > base64LineLength {
		buf.WriteString(encoded[:base64LineLength])
		buf.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}
	if encoded != "" {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
}

func formatAddress(a models.Address) string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// angleIDs wraps each whitespace-separated message id in angle brackets.
func angleIDs(value string) string {
	ids := strings.Fields(value)
	for i, id := range ids {
		ids[i] = "<" + trimAngles(id) + ">"
	}
	return strings.Join(ids, " ")
}

func transferEncoding(body string) string {
	for _, r := range body {
		if r > unicode.MaxASCII {
			return "8bit"
		}
	}
	return "7bit"
}

func decodeHeaderWord(value string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}
