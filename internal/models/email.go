package models

import (
	"strings"
	"time"
)

// Address is one mailbox participant. Email is lower-cased for identity;
// Name keeps whatever casing the header used.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String formats the address the way it appears in a header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Is reports whether the address matches email, ignoring case.
func (a Address) Is(email string) bool {
	return strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(email))
}

type Message struct {
	// ProviderID is empty for a local echo that hasn't been synced yet.
	ProviderID     string `json:"provider_id,omitempty"`
	ThreadID       string `json:"thread_id,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
	ConversationID string `json:"conversation_id"`

	From Address   `json:"from"`
	To   []Address `json:"to"`
	Cc   []Address `json:"cc,omitempty"`
	Bcc  []Address `json:"bcc,omitempty"`

	Subject         string `json:"subject,omitempty"`
	MessageIDHeader string `json:"message_id_header,omitempty"`
	InReplyTo       string `json:"in_reply_to,omitempty"`
	References      string `json:"references,omitempty"`

	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`
	Snippet  string `json:"snippet"`

	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
	IsSent    bool      `json:"is_sent"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// Seq is the store insertion sequence, used to break timestamp ties.
	Seq int64 `json:"-"`
}

// Key returns the store identity of the message: the provider id, or the
// local id for an unsynced echo.
func (m *Message) Key() string {
	if m.ProviderID != "" {
		return m.ProviderID
	}
	return m.LocalID
}

// IsLocalEcho reports whether the message is an optimistic copy of a sent
// message that the provider hasn't returned yet.
func (m *Message) IsLocalEcho() bool {
	return m.ProviderID == "" && m.LocalID != ""
}

// PrimaryRecipient returns the first To address, if any.
func (m *Message) PrimaryRecipient() Address {
	if len(m.To) == 0 {
		return Address{}
	}
	return m.To[0]
}

// Recipients returns To, Cc and Bcc in header order.
func (m *Message) Recipients() []Address {
	all := make([]Address, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.To...)
	all = append(all, m.Cc...)
	all = append(all, m.Bcc...)
	return all
}

// Clone returns a deep copy. Attachment payloads are shared.
func (m *Message) Clone() *Message {
	c := *m
	c.To = append([]Address(nil), m.To...)
	c.Cc = append([]Address(nil), m.Cc...)
	c.Bcc = append([]Address(nil), m.Bcc...)
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	return &c
}

type Attachment struct {
	// ID is the provider attachment id, the part id when the provider gave
	// none, or a generated id for locally composed messages.
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	IsInline  bool   `json:"is_inline"`
	ContentID string `json:"content_id,omitempty"`
	// Data stays nil until the bytes are fetched.
	Data []byte `json:"-"`
}

// HasData reports whether the attachment bytes have been fetched.
func (a Attachment) HasData() bool {
	return a.Data != nil
}

type Conversation struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	DisplayName  string    `json:"display_name"`
	IsGroup      bool      `json:"is_group"`
	Participants []Address `json:"participants"`

	LastMessageAt time.Time `json:"last_message_at"`
	Snippet       string    `json:"snippet"`
	HasUnread     bool      `json:"has_unread"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	cc := *c
	cc.Participants = append([]Address(nil), c.Participants...)
	return &cc
}

// AttachmentDraft is one file attached to an outgoing message.
type AttachmentDraft struct {
	Filename string
	Data     []byte
	MimeType string
}

// OutgoingMessage holds the fields the encoder turns into wire bytes.
type OutgoingMessage struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	Body        string
	InReplyTo   string
	References  string
	ThreadID    string
	Date        time.Time
	Attachments []AttachmentDraft
}
