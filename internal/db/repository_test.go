package db

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vchat/internal/contacts"
	"github.com/vdavid/vchat/internal/conversation"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/reconcile"
	"github.com/vdavid/vchat/internal/store"
	"github.com/vdavid/vchat/internal/testutil"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewRepository(pool, zerolog.Nop())

	t.Run("empty database", func(t *testing.T) {
		snap, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Conversations)
		assert.Empty(t, snap.Messages)
		assert.True(t, snap.LastSyncAt.IsZero())
	})

	t.Run("round trips a unit of work", func(t *testing.T) {
		st, err := store.Open(ctx, repo, zerolog.Nop(), nil)
		require.NoError(t, err)

		err = st.Update(ctx, func(g *store.Graph) error {
			c, err := g.AddConversation(&models.Conversation{
				Key:          "amy@x.com,bob@x.com",
				DisplayName:  "Amy, Bob",
				IsGroup:      true,
				Participants: []models.Address{{Name: "Amy", Email: "amy@x.com"}, {Email: "bob@x.com"}},
				CreatedAt:    base,
			})
			if err != nil {
				return err
			}
			if _, err := g.InsertMessage(&models.Message{
				ProviderID:     "m1",
				ThreadID:       "t1",
				ConversationID: c.ID,
				From:           models.Address{Name: "Amy", Email: "amy@x.com"},
				To:             []models.Address{{Email: "me@x.com"}, {Email: "bob@x.com"}},
				Subject:        "Plans",
				BodyText:       "see attached",
				Snippet:        "see attached",
				Timestamp:      base,
				Attachments: []models.Attachment{
					{ID: "att-1", Filename: "plan.pdf", MimeType: "application/pdf", SizeBytes: 10},
					{ID: "att-2", Filename: "logo.png", MimeType: "image/png", IsInline: true, ContentID: "logo", Data: []byte{1, 2, 3}},
				},
			}); err != nil {
				return err
			}
			if _, err := g.InsertMessage(&models.Message{
				LocalID:        "local-1",
				ConversationID: c.ID,
				From:           models.Address{Email: "me@x.com"},
				To:             []models.Address{{Email: "amy@x.com"}},
				BodyText:       "thanks",
				Snippet:        "thanks",
				Timestamp:      base.Add(time.Minute),
				IsRead:         true,
				IsSent:         true,
			}); err != nil {
				return err
			}
			if err := g.RefreshPreview(c.ID); err != nil {
				return err
			}
			g.MarkSynced(base.Add(2 * time.Minute))
			return nil
		})
		require.NoError(t, err)

		snap, err := NewRepository(pool, zerolog.Nop()).Load(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Conversations, 1)
		require.Len(t, snap.Messages, 2)
		assert.True(t, snap.LastSyncAt.Equal(base.Add(2*time.Minute)))

		conv := snap.Conversations[0]
		assert.Equal(t, "amy@x.com,bob@x.com", conv.Key)
		assert.True(t, conv.IsGroup)
		assert.Equal(t, "Amy", conv.Participants[0].Name)
		assert.Equal(t, "thanks", conv.Snippet)
		assert.True(t, conv.LastMessageAt.Equal(base.Add(time.Minute)))

		first, second := snap.Messages[0], snap.Messages[1]
		assert.Equal(t, "m1", first.ProviderID)
		assert.Equal(t, conv.ID, first.ConversationID)
		assert.Equal(t, "bob@x.com", first.To[1].Email)
		require.Len(t, first.Attachments, 2)
		assert.False(t, first.Attachments[0].HasData())
		assert.Equal(t, []byte{1, 2, 3}, first.Attachments[1].Data)
		assert.Equal(t, "logo", first.Attachments[1].ContentID)
		assert.Less(t, first.Seq, second.Seq)

		assert.True(t, second.IsLocalEcho())
		assert.Equal(t, "local-1", second.LocalID)
		assert.True(t, second.IsSent)
	})

	t.Run("reset clears everything", func(t *testing.T) {
		st, err := store.Open(ctx, repo, zerolog.Nop(), nil)
		require.NoError(t, err)
		require.NoError(t, st.Reset(ctx))

		snap, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Conversations)
		assert.Empty(t, snap.Messages)
	})

	t.Run("failed commit changes nothing", func(t *testing.T) {
		err := repo.Commit(ctx, store.ChangeSet{
			ConversationUpserts: []*models.Conversation{{ID: "7d4f6f5e-4c2a-4b8e-9a55-0f3f3c1b2a10", Key: "ok@x.com", CreatedAt: base}},
			MessageUpserts: []*models.Message{{
				ProviderID:     "orphan",
				ConversationID: "00000000-0000-0000-0000-000000000000",
				Timestamp:      base,
			}},
		})
		require.Error(t, err)

		snap, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Conversations)
	})
}

func TestRepositoryMaintenance(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewRepository(pool, zerolog.Nop())

	older := &models.Conversation{ID: "0b7c8a9e-1f2d-4c3b-8a7e-6d5c4b3a2f10", Key: "A@x.com,b@x.com", IsGroup: true, CreatedAt: base.Add(-24 * time.Hour), LastMessageAt: base.Add(-24 * time.Hour)}
	newer := &models.Conversation{ID: "1c8d9b0f-2a3e-4d4c-9b8f-7e6d5c4b3a21", Key: "a@x.com,b@x.com", IsGroup: true, CreatedAt: base, LastMessageAt: base, Snippet: "latest"}
	require.NoError(t, repo.Commit(ctx, store.ChangeSet{
		ConversationUpserts: []*models.Conversation{older, newer},
		MessageUpserts: []*models.Message{
			{ProviderID: "m1", ConversationID: older.ID, From: models.Address{Email: "a@x.com"}, BodyText: "old", Snippet: "old", Timestamp: older.LastMessageAt, Seq: 1},
			{ProviderID: "m2", ConversationID: newer.ID, From: models.Address{Email: "b@x.com"}, BodyText: "latest", Snippet: "latest", Timestamp: newer.LastMessageAt, Seq: 2},
		},
	}))

	rec := reconcile.New(conversation.NewResolver(contacts.NewBook(nil)), zerolog.Nop())
	st, err := store.Open(ctx, repo, zerolog.Nop(), rec.Maintain)
	require.NoError(t, err)
	st.View(func(g *store.Graph) { assert.Equal(t, 1, g.ConversationCount()) })

	snap, err := NewRepository(pool, zerolog.Nop()).Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, newer.ID, snap.Conversations[0].ID)
	assert.Equal(t, "a@x.com,b@x.com", snap.Conversations[0].Key)
	assert.Equal(t, "latest", snap.Conversations[0].Snippet)
	require.Len(t, snap.Messages, 2)
	for _, m := range snap.Messages {
		assert.Equal(t, newer.ID, m.ConversationID)
	}
}
