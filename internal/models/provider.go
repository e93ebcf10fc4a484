package models

import "strings"

// ProviderMessage is a raw message as the mail provider returns it: a tree of
// header/body/part nodes rooted at Payload. Body data is base64url text.
type ProviderMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	InternalDate string   `json:"internalDate"`
	LabelIDs     []string `json:"labelIds,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
	Payload      *Part    `json:"payload,omitempty"`
}

// HasLabel reports whether the message carries the given label.
func (m *ProviderMessage) HasLabel(label string) bool {
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

type Part struct {
	PartID   string    `json:"partId,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Headers  []Header  `json:"headers,omitempty"`
	Body     *PartBody `json:"body,omitempty"`
	Parts    []*Part   `json:"parts,omitempty"`
}

// Header returns the first header value matching name, ignoring case.
func (p *Part) Header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PartBody struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Data         string `json:"data,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// SendResult is what the provider's send endpoint returns.
type SendResult struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Profile is the authenticated account as the provider reports it.
type Profile struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}
