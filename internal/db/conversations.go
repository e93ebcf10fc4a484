package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/vchat/internal/models"
)

func loadConversations(ctx context.Context, tx pgx.Tx) ([]*models.Conversation, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, conv_key, display_name, is_group, participants,
		       last_message_at, snippet, has_unread, created_at
		FROM conversations
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		var (
			c      models.Conversation
			lastAt *time.Time
		)
		if err := rows.Scan(
			&c.ID,
			&c.Key,
			&c.DisplayName,
			&c.IsGroup,
			&c.Participants,
			&lastAt,
			&c.Snippet,
			&c.HasUnread,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if lastAt != nil {
			c.LastMessageAt = lastAt.UTC()
		}
		c.CreatedAt = c.CreatedAt.UTC()
		convs = append(convs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	return convs, nil
}

func saveConversations(ctx context.Context, tx pgx.Tx, convs []*models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range convs {
		participants := c.Participants
		if participants == nil {
			participants = []models.Address{}
		}
		batch.Queue(`
			INSERT INTO conversations (
				id, conv_key, display_name, is_group, participants,
				last_message_at, snippet, has_unread, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				conv_key = EXCLUDED.conv_key,
				display_name = EXCLUDED.display_name,
				is_group = EXCLUDED.is_group,
				participants = EXCLUDED.participants,
				last_message_at = EXCLUDED.last_message_at,
				snippet = EXCLUDED.snippet,
				has_unread = EXCLUDED.has_unread
		`,
			c.ID,
			c.Key,
			c.DisplayName,
			c.IsGroup,
			participants,
			nullTime(c.LastMessageAt),
			c.Snippet,
			c.HasUnread,
			c.CreatedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
