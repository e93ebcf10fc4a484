package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/store"
)

// Repository is a store.Repository backed by PostgreSQL. Each commit is one
// transaction.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ store.Repository = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{pool: pool, log: log.With().Str("component", "db").Logger()}
}

func (r *Repository) Load(ctx context.Context) (*store.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to begin load: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := &store.Snapshot{}
	if snap.Conversations, err = loadConversations(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Messages, err = loadMessages(ctx, tx); err != nil {
		return nil, err
	}
	if snap.LastSyncAt, err = loadLastSync(ctx, tx); err != nil {
		return nil, err
	}

	r.log.Debug().
		Int("conversations", len(snap.Conversations)).
		Int("messages", len(snap.Messages)).
		Msg("Store loaded")
	return snap, nil
}

// Commit applies changes in the order ChangeSet documents.
func (r *Repository) Commit(ctx context.Context, changes store.ChangeSet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if changes.Reset {
		if _, err := tx.Exec(ctx, `DELETE FROM conversations`); err != nil {
			return fmt.Errorf("failed to reset: %w", err)
		}
	}
	if len(changes.MessageDeletes) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE message_key = ANY($1)`, changes.MessageDeletes); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
	}
	if len(changes.ConversationDeletes) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = ANY($1::uuid[])`, changes.ConversationDeletes); err != nil {
			return fmt.Errorf("failed to delete conversations: %w", err)
		}
	}
	if err := saveConversations(ctx, tx, changes.ConversationUpserts); err != nil {
		return err
	}
	if err := saveMessages(ctx, tx, changes.MessageUpserts); err != nil {
		return err
	}
	if !changes.SyncedAt.IsZero() {
		if err := saveLastSync(ctx, tx, changes.SyncedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func loadLastSync(ctx context.Context, tx pgx.Tx) (time.Time, error) {
	var t time.Time
	err := tx.QueryRow(ctx, `SELECT last_sync_at FROM sync_state WHERE id = 1`).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	return t.UTC(), nil
}

func saveLastSync(ctx context.Context, tx pgx.Tx, t time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sync_state (id, last_sync_at) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_sync_at = EXCLUDED.last_sync_at
	`, t)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}
