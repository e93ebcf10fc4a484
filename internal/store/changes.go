package store

import (
	"sort"
	"time"

	"github.com/vdavid/vchat/internal/models"
)

// ChangeSet is everything a unit of work changed, in the order a repository
// should apply it: reset, message deletes, conversation deletes, conversation
// upserts, message upserts.
type ChangeSet struct {
	Reset               bool
	MessageDeletes      []string
	ConversationDeletes []string
	ConversationUpserts []*models.Conversation
	MessageUpserts      []*models.Message
	// SyncedAt is non-zero when the work completed a sync cycle.
	SyncedAt time.Time
}

// Empty reports whether there is nothing to commit.
func (c ChangeSet) Empty() bool {
	return !c.Reset &&
		len(c.MessageDeletes) == 0 &&
		len(c.ConversationDeletes) == 0 &&
		len(c.ConversationUpserts) == 0 &&
		len(c.MessageUpserts) == 0 &&
		c.SyncedAt.IsZero()
}

// tracker records dirty and deleted ids between commits.
type tracker struct {
	reset        bool
	dirtyConvs   map[string]bool
	deletedConvs map[string]bool
	dirtyMsgs    map[string]bool
	deletedMsgs  map[string]bool
	syncedAt     time.Time
}

func newTracker() tracker {
	return tracker{
		dirtyConvs:   make(map[string]bool),
		deletedConvs: make(map[string]bool),
		dirtyMsgs:    make(map[string]bool),
		deletedMsgs:  make(map[string]bool),
	}
}

func (t *tracker) touchConversation(id string) {
	delete(t.deletedConvs, id)
	t.dirtyConvs[id] = true
}

func (t *tracker) dropConversation(id string) {
	delete(t.dirtyConvs, id)
	t.deletedConvs[id] = true
}

func (t *tracker) touchMessage(key string) {
	delete(t.deletedMsgs, key)
	t.dirtyMsgs[key] = true
}

func (t *tracker) dropMessage(key string) {
	delete(t.dirtyMsgs, key)
	t.deletedMsgs[key] = true
}

// build snapshots the tracked ids against the graph's current values.
func (t *tracker) build(g *Graph) ChangeSet {
	cs := ChangeSet{Reset: t.reset, SyncedAt: t.syncedAt}

	cs.MessageDeletes = sortedKeys(t.deletedMsgs)
	cs.ConversationDeletes = sortedKeys(t.deletedConvs)
	for _, id := range sortedKeys(t.dirtyConvs) {
		if c, ok := g.conversations[id]; ok {
			cs.ConversationUpserts = append(cs.ConversationUpserts, c.Clone())
		}
	}
	for _, key := range sortedKeys(t.dirtyMsgs) {
		if m, ok := g.messages[key]; ok {
			cs.MessageUpserts = append(cs.MessageUpserts, m.Clone())
		}
	}
	sort.SliceStable(cs.MessageUpserts, func(i, j int) bool {
		return cs.MessageUpserts[i].Seq < cs.MessageUpserts[j].Seq
	})
	return cs
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
