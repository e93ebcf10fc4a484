package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/store"
)

const defaultConversationsPerPage = 50

// ReadMarker marks a conversation read.
type ReadMarker interface {
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// ConversationsHandler serves the conversation list and conversation views.
type ConversationsHandler struct {
	store  *store.Store
	marker ReadMarker
	log    zerolog.Logger
}

// NewConversationsHandler creates a new ConversationsHandler instance.
func NewConversationsHandler(st *store.Store, marker ReadMarker, log zerolog.Logger) *ConversationsHandler {
	return &ConversationsHandler{
		store:  st,
		marker: marker,
		log:    log.With().Str("component", "api.conversations").Logger(),
	}
}

// BuildPaginationResponse cuts one page out of the full, ordered list.
func BuildPaginationResponse(all []*models.Conversation, page, limit int) *models.ConversationsResponse {
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))

	conversations := make([]*models.Conversation, 0, end-start)
	for _, c := range all[start:end] {
		conversations = append(conversations, c.Clone())
	}
	return &models.ConversationsResponse{
		Conversations: conversations,
		Pagination: models.PaginationInfo{
			TotalCount: len(all),
			Page:       page,
			PerPage:    limit,
		},
	}
}

// GetConversations returns a page of conversations, most recent first.
func (h *ConversationsHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	page, limit := ParsePaginationParams(r, defaultConversationsPerPage)

	var response *models.ConversationsResponse
	h.store.View(func(g *store.Graph) {
		response = BuildPaginationResponse(g.Conversations(), page, limit)
	})

	WriteJSONResponse(w, response)
}

// GetConversation returns one conversation with its messages.
func (h *ConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	var response *models.ConversationResponse
	h.store.View(func(g *store.Graph) {
		c, ok := g.Conversation(id)
		if !ok {
			return
		}
		messages := g.Messages(id)
		response = &models.ConversationResponse{
			Conversation: c.Clone(),
			Messages:     make([]*models.Message, 0, len(messages)),
		}
		for _, m := range messages {
			response.Messages = append(response.Messages, m.Clone())
		}
	})
	if response == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	WriteJSONResponse(w, response)
}

// MarkRead marks every message of the conversation read.
func (h *ConversationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	err := h.marker.MarkConversationRead(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	case err != nil:
		h.log.Error().Err(err).Str("conversation", id).Msg("Failed to mark conversation read")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
