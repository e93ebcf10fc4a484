// Package store holds the local mirror of the mailbox: conversations and
// their messages. All writes go through a single writer.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Repository is the persistence boundary of the store.
type Repository interface {
	// Load returns the persisted state.
	Load(ctx context.Context) (*Snapshot, error)
	// Commit applies a change set atomically.
	Commit(ctx context.Context, changes ChangeSet) error
	Close()
}

// MaintenanceFunc repairs a freshly loaded graph. It runs once in Open.
type MaintenanceFunc func(g *Graph) error

// Store serializes all mutations of the graph. Readers see an immutable
// published graph; writers work on a clone that replaces it only after the
// repository accepted the changes.
type Store struct {
	repo Repository
	log  zerolog.Logger

	writeMu  sync.Mutex
	current  atomic.Pointer[Graph]
	lastSync atomic.Pointer[time.Time]
}

// Open loads the repository into memory and runs maintain, when given, as the
// first unit of work.
func Open(ctx context.Context, repo Repository, log zerolog.Logger, maintain MaintenanceFunc) (*Store, error) {
	snap, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	s := &Store{
		repo: repo,
		log:  log.With().Str("component", "store").Logger(),
	}
	s.current.Store(NewGraphFromSnapshot(snap))
	s.setLastSync(snap.LastSyncAt)

	if maintain != nil {
		if err := s.Update(ctx, maintain); err != nil {
			return nil, fmt.Errorf("failed to run maintenance: %w", err)
		}
	}

	g := s.current.Load()
	s.log.Info().
		Int("conversations", g.ConversationCount()).
		Int("messages", g.MessageCount()).
		Msg("Store opened")
	return s, nil
}

// Update runs fn on a private copy of the graph and commits what it changed.
// If fn fails nothing is committed. If the commit fails the published graph
// is left as it was and the error wraps ErrCommit.
func (s *Store) Update(ctx context.Context, fn func(g *Graph) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	work := s.current.Load().Clone()
	if err := fn(work); err != nil {
		return err
	}

	changes := work.Changes()
	if changes.Empty() {
		return nil
	}
	if err := s.repo.Commit(ctx, changes); err != nil {
		s.log.Error().Err(err).
			Int("message_upserts", len(changes.MessageUpserts)).
			Int("message_deletes", len(changes.MessageDeletes)).
			Msg("Commit failed")
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}

	work.changes = newTracker()
	s.current.Store(work)
	if !changes.SyncedAt.IsZero() {
		s.setLastSync(changes.SyncedAt)
	}
	return nil
}

// View runs fn against the current graph. fn must not mutate it.
func (s *Store) View(fn func(g *Graph)) {
	fn(s.current.Load())
}

// LastSyncTime returns when the last sync cycle was committed.
func (s *Store) LastSyncTime() time.Time {
	if t := s.lastSync.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Reset deletes every conversation and message.
func (s *Store) Reset(ctx context.Context) error {
	return s.Update(ctx, func(g *Graph) error {
		g.Reset()
		return nil
	})
}

// Close releases the repository.
func (s *Store) Close() {
	s.repo.Close()
}

func (s *Store) setLastSync(t time.Time) {
	s.lastSync.Store(&t)
}
