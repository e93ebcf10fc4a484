package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vdavid/vchat/internal/models"
)

// Graph is the in-memory working set of conversations and messages.
//
// Conversations own an ordered member list of message keys; a message only
// carries its conversation id. Members are ordered by timestamp, then by
// insertion sequence. Every mutation is tracked so the graph can hand its
// changes to a Repository.
//
// Values returned by the accessors belong to the graph. Change them through
// the mutation methods only.
type Graph struct {
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	members       map[string][]string
	byKey         map[string]string
	seq           int64
	changes       tracker
}

// Snapshot is the persisted state a repository loads.
type Snapshot struct {
	Conversations []*models.Conversation
	// Messages in insertion order.
	Messages   []*models.Message
	LastSyncAt time.Time
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		members:       make(map[string][]string),
		byKey:         make(map[string]string),
		changes:       newTracker(),
	}
}

// NewGraphFromSnapshot builds a graph from persisted state without recording
// any changes. Messages whose conversation is missing are dropped.
func NewGraphFromSnapshot(snap *Snapshot) *Graph {
	g := NewGraph()
	for _, c := range snap.Conversations {
		c = c.Clone()
		g.conversations[c.ID] = c
		// Legacy rows may share a key by case only; the first one wins the
		// index and maintenance merges the rest.
		if _, taken := g.byKey[c.Key]; !taken {
			g.byKey[c.Key] = c.ID
		}
	}
	for _, m := range snap.Messages {
		if _, ok := g.conversations[m.ConversationID]; !ok {
			continue
		}
		m = m.Clone()
		if m.Seq > g.seq {
			g.seq = m.Seq
		} else if m.Seq == 0 {
			g.seq++
			m.Seq = g.seq
		}
		g.messages[m.Key()] = m
		g.insertMember(m)
	}
	return g
}

// Clone deep-copies the graph with a fresh change tracker.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		conversations: make(map[string]*models.Conversation, len(g.conversations)),
		messages:      make(map[string]*models.Message, len(g.messages)),
		members:       make(map[string][]string, len(g.members)),
		byKey:         make(map[string]string, len(g.byKey)),
		seq:           g.seq,
		changes:       newTracker(),
	}
	for id, conv := range g.conversations {
		c.conversations[id] = conv.Clone()
	}
	for key, m := range g.messages {
		c.messages[key] = m.Clone()
	}
	for id, keys := range g.members {
		c.members[id] = append([]string(nil), keys...)
	}
	for k, id := range g.byKey {
		c.byKey[k] = id
	}
	return c
}

// Changes returns what changed since the graph was created or cloned.
func (g *Graph) Changes() ChangeSet {
	return g.changes.build(g)
}

// Conversation returns a conversation by id.
func (g *Graph) Conversation(id string) (*models.Conversation, bool) {
	c, ok := g.conversations[id]
	return c, ok
}

// ConversationByKey returns the conversation with exactly this key.
func (g *Graph) ConversationByKey(key string) (*models.Conversation, bool) {
	id, ok := g.byKey[key]
	if !ok {
		return nil, false
	}
	return g.Conversation(id)
}

// Conversations returns every conversation, most recent first.
func (g *Graph) Conversations() []*models.Conversation {
	list := make([]*models.Conversation, 0, len(g.conversations))
	for _, c := range g.conversations {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastMessageAt.Equal(list[j].LastMessageAt) {
			return list[i].LastMessageAt.After(list[j].LastMessageAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Message returns a message by key.
func (g *Graph) Message(key string) (*models.Message, bool) {
	m, ok := g.messages[key]
	return m, ok
}

// HasProviderID reports whether a synced message with this provider id is stored.
func (g *Graph) HasProviderID(providerID string) bool {
	if providerID == "" {
		return false
	}
	m, ok := g.messages[providerID]
	return ok && m.ProviderID == providerID
}

// Messages returns the members of a conversation, oldest first.
func (g *Graph) Messages(conversationID string) []*models.Message {
	keys := g.members[conversationID]
	list := make([]*models.Message, 0, len(keys))
	for _, key := range keys {
		list = append(list, g.messages[key])
	}
	return list
}

// FindMessages returns every message matching pred, ordered by timestamp
// then insertion sequence.
func (g *Graph) FindMessages(pred func(*models.Message) bool) []*models.Message {
	var list []*models.Message
	for _, m := range g.messages {
		if pred(m) {
			list = append(list, m)
		}
	}
	sort.Slice(list, func(i, j int) bool { return before(list[i], list[j]) })
	return list
}

// ConversationCount returns the number of conversations.
func (g *Graph) ConversationCount() int {
	return len(g.conversations)
}

// MessageCount returns the number of messages.
func (g *Graph) MessageCount() int {
	return len(g.messages)
}

// AddConversation stores a new conversation, assigning an id and creation
// time when missing.
func (g *Graph) AddConversation(c *models.Conversation) (*models.Conversation, error) {
	if _, taken := g.byKey[c.Key]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, c.Key)
	}

	c = c.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	g.conversations[c.ID] = c
	g.byKey[c.Key] = c.ID
	g.changes.touchConversation(c.ID)
	return c, nil
}

// UpdateConversation replaces the stored conversation with the same id,
// re-indexing its key.
func (g *Graph) UpdateConversation(c *models.Conversation) error {
	old, ok := g.conversations[c.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, c.ID)
	}
	if c.Key != old.Key {
		if other, taken := g.byKey[c.Key]; taken && other != c.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, c.Key)
		}
		if g.byKey[old.Key] == old.ID {
			delete(g.byKey, old.Key)
		}
		g.byKey[c.Key] = c.ID
	}

	g.conversations[c.ID] = c.Clone()
	g.changes.touchConversation(c.ID)
	return nil
}

// DeleteConversation removes a conversation together with any members it still has.
func (g *Graph) DeleteConversation(id string) error {
	c, ok := g.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	for _, key := range g.members[id] {
		delete(g.messages, key)
		g.changes.dropMessage(key)
	}
	delete(g.members, id)
	if g.byKey[c.Key] == id {
		delete(g.byKey, c.Key)
	}
	delete(g.conversations, id)
	g.changes.dropConversation(id)
	return nil
}

// InsertMessage adds a message to its conversation.
func (g *Graph) InsertMessage(m *models.Message) (*models.Message, error) {
	key := m.Key()
	if key == "" {
		return nil, fmt.Errorf("message has neither provider nor local id")
	}
	if _, exists := g.messages[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateMessage, key)
	}
	if _, ok := g.conversations[m.ConversationID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, m.ConversationID)
	}

	m = m.Clone()
	g.seq++
	m.Seq = g.seq
	g.messages[key] = m
	g.insertMember(m)
	g.changes.touchMessage(key)
	return m, nil
}

// DeleteMessage removes a message from the graph.
func (g *Graph) DeleteMessage(key string) error {
	m, ok := g.messages[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, key)
	}

	g.removeMember(m)
	delete(g.messages, key)
	g.changes.dropMessage(key)
	return nil
}

// MoveMessage re-parents a message onto another conversation.
func (g *Graph) MoveMessage(key, conversationID string) error {
	m, ok := g.messages[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, key)
	}
	if _, ok := g.conversations[conversationID]; !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if m.ConversationID == conversationID {
		return nil
	}

	g.removeMember(m)
	m.ConversationID = conversationID
	g.insertMember(m)
	g.changes.touchMessage(key)
	return nil
}

// SetMessageRead updates the read flag of a message.
func (g *Graph) SetMessageRead(key string, read bool) error {
	m, ok := g.messages[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, key)
	}
	if m.IsRead != read {
		m.IsRead = read
		g.changes.touchMessage(key)
	}
	return nil
}

// SetAttachmentData stores fetched bytes on an attachment.
func (g *Graph) SetAttachmentData(key, attachmentID string, data []byte) error {
	m, ok := g.messages[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, key)
	}
	for i := range m.Attachments {
		if m.Attachments[i].ID == attachmentID {
			m.Attachments[i].Data = data
			if m.Attachments[i].SizeBytes == 0 {
				m.Attachments[i].SizeBytes = int64(len(data))
			}
			g.changes.touchMessage(key)
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrAttachmentNotFound, key, attachmentID)
}

// MarkConversationUnread flags a conversation as having unread messages.
func (g *Graph) MarkConversationUnread(id string) error {
	c, ok := g.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if !c.HasUnread {
		c.HasUnread = true
		g.changes.touchConversation(id)
	}
	return nil
}

// RefreshPreview sets a conversation's cached timestamp and snippet to those
// of its chronologically latest message and recomputes the unread aggregate.
func (g *Graph) RefreshPreview(id string) error {
	c, ok := g.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	var (
		lastAt  time.Time
		snippet string
		unread  bool
	)
	keys := g.members[id]
	if len(keys) > 0 {
		latest := g.messages[keys[len(keys)-1]]
		lastAt, snippet = latest.Timestamp, latest.Snippet
	}
	for _, key := range keys {
		if m := g.messages[key]; !m.IsSent && !m.IsRead {
			unread = true
			break
		}
	}

	if !c.LastMessageAt.Equal(lastAt) || c.Snippet != snippet || c.HasUnread != unread {
		c.LastMessageAt, c.Snippet, c.HasUnread = lastAt, snippet, unread
		g.changes.touchConversation(id)
	}
	return nil
}

// MarkSynced records that this unit of work completed a sync cycle at t.
func (g *Graph) MarkSynced(t time.Time) {
	g.changes.syncedAt = t
}

// Reset removes every conversation and message.
func (g *Graph) Reset() {
	g.conversations = make(map[string]*models.Conversation)
	g.messages = make(map[string]*models.Message)
	g.members = make(map[string][]string)
	g.byKey = make(map[string]string)
	g.changes = newTracker()
	g.changes.reset = true
}

func (g *Graph) insertMember(m *models.Message) {
	keys := g.members[m.ConversationID]
	i := sort.Search(len(keys), func(i int) bool {
		return before(m, g.messages[keys[i]])
	})
	keys = append(keys, "")
	copy(keys[i+1:], keys[i:])
	keys[i] = m.Key()
	g.members[m.ConversationID] = keys
}

func (g *Graph) removeMember(m *models.Message) {
	keys := g.members[m.ConversationID]
	key := m.Key()
	for i, k := range keys {
		if k == key {
			g.members[m.ConversationID] = append(keys[:i], keys[i+1:]...)
			return
		}
	}
}

// before orders messages by timestamp, then insertion sequence.
func before(a, b *models.Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Seq < b.Seq
}
