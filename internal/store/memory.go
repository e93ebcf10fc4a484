package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vdavid/vchat/internal/models"
)

// MemoryRepository keeps committed state in memory. It is used by tests and
// by the CLI when no database is configured.
type MemoryRepository struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	lastSyncAt    time.Time
	commits       int
	failWith      error
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

// Seed stores state directly, bypassing commits.
func (r *MemoryRepository) Seed(conversations []*models.Conversation, messages []*models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range conversations {
		r.conversations[c.ID] = c.Clone()
	}
	for i, m := range messages {
		m = m.Clone()
		if m.Seq == 0 {
			m.Seq = int64(i + 1)
		}
		r.messages[m.Key()] = m
	}
}

// FailCommits makes every following Commit return err. Pass nil to recover.
func (r *MemoryRepository) FailCommits(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

// Commits returns how many commits succeeded.
func (r *MemoryRepository) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *MemoryRepository) Load(_ context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{LastSyncAt: r.lastSyncAt}
	for _, c := range r.conversations {
		snap.Conversations = append(snap.Conversations, c.Clone())
	}
	for _, m := range r.messages {
		snap.Messages = append(snap.Messages, m.Clone())
	}
	sortBySeq(snap.Messages)
	sortByCreated(snap.Conversations)
	return snap, nil
}

func (r *MemoryRepository) Commit(_ context.Context, changes ChangeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}

	if changes.Reset {
		r.conversations = make(map[string]*models.Conversation)
		r.messages = make(map[string]*models.Message)
	}
	for _, key := range changes.MessageDeletes {
		delete(r.messages, key)
	}
	for _, id := range changes.ConversationDeletes {
		delete(r.conversations, id)
	}
	for _, c := range changes.ConversationUpserts {
		r.conversations[c.ID] = c.Clone()
	}
	for _, m := range changes.MessageUpserts {
		r.messages[m.Key()] = m.Clone()
	}
	if !changes.SyncedAt.IsZero() {
		r.lastSyncAt = changes.SyncedAt
	}
	r.commits++
	return nil
}

func (r *MemoryRepository) Close() {}

func sortBySeq(messages []*models.Message) {
	sort.Slice(messages, func(i, j int) bool { return messages[i].Seq < messages[j].Seq })
}

func sortByCreated(conversations []*models.Conversation) {
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].CreatedAt.Before(conversations[j].CreatedAt)
		}
		return conversations[i].ID < conversations[j].ID
	})
}
