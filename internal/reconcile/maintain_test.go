package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/store"
)

func openMaintained(t *testing.T, convs []*models.Conversation, msgs []*models.Message) (*store.Store, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	repo.Seed(convs, msgs)
	s, err := store.Open(context.Background(), repo, zerolog.Nop(), newReconciler(t0).Maintain)
	require.NoError(t, err)
	return s, repo
}

func TestMaintain(t *testing.T) {
	yesterday := t0.Add(-24 * time.Hour)

	t.Run("merges conversations whose keys differ only by case", func(t *testing.T) {
		s, repo := openMaintained(t,
			[]*models.Conversation{
				{ID: "old", Key: "a@x.com,b@x.com", IsGroup: true, CreatedAt: yesterday, LastMessageAt: yesterday, Snippet: "old news",
					Participants: []models.Address{{Email: "a@x.com"}, {Email: "b@x.com"}}},
				{ID: "new", Key: "A@x.com,B@x.com", IsGroup: true, CreatedAt: t0, LastMessageAt: t0, Snippet: "fresh",
					Participants: []models.Address{{Name: "Ann", Email: "a@x.com"}, {Email: "b@x.com"}}},
			},
			[]*models.Message{
				{ProviderID: "m1", ConversationID: "old", Timestamp: yesterday, BodyText: "old news", Snippet: "old news"},
				{ProviderID: "m2", ConversationID: "new", Timestamp: t0, BodyText: "fresh", Snippet: "fresh"},
			},
		)

		s.View(func(g *store.Graph) {
			require.Equal(t, 1, g.ConversationCount())
			c, ok := g.ConversationByKey("a@x.com,b@x.com")
			require.True(t, ok)
			assert.Equal(t, "new", c.ID)
			assert.Equal(t, "fresh", c.Snippet)
			assert.True(t, c.LastMessageAt.Equal(t0))
			assert.Equal(t, []string{"m1", "m2"}, messageKeys(g.Messages(c.ID)))
			assert.Equal(t, "Ann", c.Participants[0].Name)
		})

		snap, err := repo.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, snap.Conversations, 1)
		assert.Equal(t, "a@x.com,b@x.com", snap.Conversations[0].Key)
		for _, m := range snap.Messages {
			assert.Equal(t, "new", m.ConversationID)
		}
	})

	t.Run("normalizes a lone non-canonical key", func(t *testing.T) {
		s, _ := openMaintained(t,
			[]*models.Conversation{{ID: "c1", Key: "B@x.com,a@x.com"}},
			[]*models.Message{{ProviderID: "m1", ConversationID: "c1", Timestamp: t0}},
		)

		s.View(func(g *store.Graph) {
			_, ok := g.ConversationByKey("a@x.com,b@x.com")
			assert.True(t, ok)
		})
	})

	t.Run("drops duplicate messages keeping the earliest", func(t *testing.T) {
		bucketStart := time.Unix(t0.Unix()/10*10, 0).UTC()
		s, _ := openMaintained(t,
			[]*models.Conversation{{ID: "c1", Key: "a@x.com"}},
			[]*models.Message{
				{ProviderID: "first", ConversationID: "c1", Timestamp: bucketStart.Add(time.Second), BodyText: "same", Snippet: "same"},
				{ProviderID: "copy", ConversationID: "c1", Timestamp: bucketStart.Add(8 * time.Second), BodyText: "same", Snippet: "same"},
				{ProviderID: "sent", ConversationID: "c1", Timestamp: bucketStart.Add(2 * time.Second), BodyText: "same", IsSent: true},
				{ProviderID: "next-bucket", ConversationID: "c1", Timestamp: bucketStart.Add(11 * time.Second), BodyText: "same"},
			},
		)

		s.View(func(g *store.Graph) {
			c, _ := g.Conversation("c1")
			assert.Equal(t, []string{"first", "sent", "next-bucket"}, messageKeys(g.Messages(c.ID)))
			assert.True(t, c.LastMessageAt.Equal(bucketStart.Add(11*time.Second)))
		})
	})

	t.Run("only the first hundred characters are compared", func(t *testing.T) {
		prefix := strings.Repeat("x", 100)
		s, _ := openMaintained(t,
			[]*models.Conversation{{ID: "c1", Key: "a@x.com"}},
			[]*models.Message{
				{ProviderID: "m1", ConversationID: "c1", Timestamp: t0, BodyText: prefix + " tail one"},
				{ProviderID: "m2", ConversationID: "c1", Timestamp: t0, BodyText: prefix + " tail two"},
			},
		)

		s.View(func(g *store.Graph) { assert.Equal(t, 1, g.MessageCount()) })
	})

	t.Run("clean store is left alone", func(t *testing.T) {
		_, repo := openMaintained(t,
			[]*models.Conversation{{ID: "c1", Key: "a@x.com", LastMessageAt: t0, Snippet: "hi"}},
			[]*models.Message{{ProviderID: "m1", ConversationID: "c1", Timestamp: t0, BodyText: "hi", Snippet: "hi", IsRead: true}},
		)
		assert.Equal(t, 0, repo.Commits())
	})
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(1), floorDiv(19, 10))
	assert.Equal(t, int64(-2), floorDiv(-11, 10))
	assert.Equal(t, int64(-1), floorDiv(-10, 10))
}

func messageKeys(messages []*models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Key()
	}
	return out
}
