package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/store"
	"github.com/vdavid/vchat/internal/testutil"
)

func TestConversationsHandler_GetConversations(t *testing.T) {
	f := newFixture(t)

	t.Run("returns empty list when no conversations exist", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/api/v1/conversations", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var response models.ConversationsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.Empty(t, response.Conversations)
		assert.Equal(t, models.PaginationInfo{TotalCount: 0, Page: 1, PerPage: defaultConversationsPerPage}, response.Pagination)
	})

	for i := range 5 {
		f.seed(t, testutil.MessageParams{
			ID:   fmt.Sprintf("m%d", i),
			From: fmt.Sprintf("Friend %d <friend%d@example.com>", i, i),
			To:   me,
			Body: fmt.Sprintf("hello %d", i),
			Time: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	t.Run("pages most recent first", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/api/v1/conversations?page=2&limit=2", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var response models.ConversationsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		require.Len(t, response.Conversations, 2)
		assert.Equal(t, "friend2@example.com", response.Conversations[0].Key)
		assert.Equal(t, "friend1@example.com", response.Conversations[1].Key)
		assert.Equal(t, models.PaginationInfo{TotalCount: 5, Page: 2, PerPage: 2}, response.Pagination)
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/api/v1/conversations?page=9&limit=2", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var response models.ConversationsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.Empty(t, response.Conversations)
		assert.Equal(t, 5, response.Pagination.TotalCount)
	})
}

func TestConversationsHandler_GetConversation(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		testutil.MessageParams{ID: "m1", From: "Amy <amy@example.com>", To: me, Body: "first", Time: t0, Unread: true},
		testutil.MessageParams{ID: "m2", From: me, To: "amy@example.com", Body: "second", Time: t0.Add(time.Minute), Sent: true},
	)
	id := f.conversationID(t, "amy@example.com")

	t.Run("returns messages oldest first", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/api/v1/conversations/"+id, "")
		require.Equal(t, http.StatusOK, rr.Code)

		var response models.ConversationResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.Equal(t, "Amy", response.Conversation.DisplayName)
		require.Len(t, response.Messages, 2)
		assert.Equal(t, "first", response.Messages[0].BodyText)
		assert.Equal(t, "second", response.Messages[1].BodyText)
		assert.True(t, response.Messages[1].IsSent)
	})

	t.Run("returns 404 for unknown conversation", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/api/v1/conversations/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestConversationsHandler_MarkRead(t *testing.T) {
	f := newFixture(t)
	f.seed(t, testutil.MessageParams{ID: "m1", From: "amy@example.com", To: me, Body: "ping", Time: t0, Unread: true})
	id := f.conversationID(t, "amy@example.com")

	f.store.View(func(g *store.Graph) {
		c, _ := g.Conversation(id)
		require.True(t, c.HasUnread)
	})

	rr := f.do(http.MethodPost, "/api/v1/conversations/"+id+"/read", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	f.store.View(func(g *store.Graph) {
		c, _ := g.Conversation(id)
		assert.False(t, c.HasUnread)
		m, _ := g.Message("m1")
		assert.True(t, m.IsRead)
	})

	t.Run("returns 404 for unknown conversation", func(t *testing.T) {
		rr := f.do(http.MethodPost, "/api/v1/conversations/nope/read", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
