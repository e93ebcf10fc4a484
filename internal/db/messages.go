package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/vchat/internal/models"
)

func loadMessages(ctx context.Context, tx pgx.Tx) ([]*models.Message, error) {
	rows, err := tx.Query(ctx, `
		SELECT message_key, provider_id, local_id, thread_id, conversation_id,
		       from_address, to_addresses, cc_addresses, bcc_addresses,
		       subject, message_id_header, in_reply_to, references_header,
		       body_text, body_html, snippet, sent_at, is_read, is_sent, seq
		FROM messages
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var (
		messages []*models.Message
		byKey    = make(map[string]*models.Message)
	)
	for rows.Next() {
		var (
			m          models.Message
			key        string
			providerID *string
			localID    *string
		)
		if err := rows.Scan(
			&key,
			&providerID,
			&localID,
			&m.ThreadID,
			&m.ConversationID,
			&m.From,
			&m.To,
			&m.Cc,
			&m.Bcc,
			&m.Subject,
			&m.MessageIDHeader,
			&m.InReplyTo,
			&m.References,
			&m.BodyText,
			&m.BodyHTML,
			&m.Snippet,
			&m.Timestamp,
			&m.IsRead,
			&m.IsSent,
			&m.Seq,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if providerID != nil {
			m.ProviderID = *providerID
		}
		if localID != nil {
			m.LocalID = *localID
		}
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, &m)
		byKey[key] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	rows.Close()

	if err := loadAttachments(ctx, tx, byKey); err != nil {
		return nil, err
	}
	return messages, nil
}

func loadAttachments(ctx context.Context, tx pgx.Tx, byKey map[string]*models.Message) error {
	rows, err := tx.Query(ctx, `
		SELECT message_key, attachment_id, filename, mime_type, size_bytes,
		       is_inline, content_id, data
		FROM attachments
		ORDER BY message_key, position
	`)
	if err != nil {
		return fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			a   models.Attachment
		)
		if err := rows.Scan(&key, &a.ID, &a.Filename, &a.MimeType, &a.SizeBytes, &a.IsInline, &a.ContentID, &a.Data); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if m, ok := byKey[key]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load attachments: %w", err)
	}
	return nil
}

// saveMessages upserts messages and replaces their attachment rows.
func saveMessages(ctx context.Context, tx pgx.Tx, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	keys := make([]string, 0, len(messages))
	batch := &pgx.Batch{}
	for _, m := range messages {
		keys = append(keys, m.Key())
		batch.Queue(`
			INSERT INTO messages (
				message_key, provider_id, local_id, thread_id, conversation_id,
				from_address, to_addresses, cc_addresses, bcc_addresses,
				subject, message_id_header, in_reply_to, references_header,
				body_text, body_html, snippet, sent_at, is_read, is_sent, seq
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			ON CONFLICT (message_key) DO UPDATE SET
				thread_id = EXCLUDED.thread_id,
				conversation_id = EXCLUDED.conversation_id,
				from_address = EXCLUDED.from_address,
				to_addresses = EXCLUDED.to_addresses,
				cc_addresses = EXCLUDED.cc_addresses,
				bcc_addresses = EXCLUDED.bcc_addresses,
				subject = EXCLUDED.subject,
				body_text = EXCLUDED.body_text,
				body_html = EXCLUDED.body_html,
				snippet = EXCLUDED.snippet,
				sent_at = EXCLUDED.sent_at,
				is_read = EXCLUDED.is_read,
				is_sent = EXCLUDED.is_sent,
				seq = EXCLUDED.seq
		`,
			m.Key(),
			nullString(m.ProviderID),
			nullString(m.LocalID),
			m.ThreadID,
			m.ConversationID,
			m.From,
			addresses(m.To),
			addresses(m.Cc),
			addresses(m.Bcc),
			m.Subject,
			m.MessageIDHeader,
			m.InReplyTo,
			m.References,
			m.BodyText,
			m.BodyHTML,
			m.Snippet,
			m.Timestamp,
			m.IsRead,
			m.IsSent,
			m.Seq,
		)
	}
	batch.Queue(`DELETE FROM attachments WHERE message_key = ANY($1)`, keys)
	for _, m := range messages {
		for i, a := range m.Attachments {
			batch.Queue(`
				INSERT INTO attachments (
					message_key, attachment_id, position, filename, mime_type,
					size_bytes, is_inline, content_id, data
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, m.Key(), a.ID, i, a.Filename, a.MimeType, a.SizeBytes, a.IsInline, a.ContentID, a.Data)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func addresses(list []models.Address) []models.Address {
	if list == nil {
		return []models.Address{}
	}
	return list
}
