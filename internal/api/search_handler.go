package api

import (
	"net/http"
	"strings"

	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/store"
)

// SearchHandler finds conversations by message content.
type SearchHandler struct {
	store *store.Store
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(st *store.Store) *SearchHandler {
	return &SearchHandler{store: st}
}

// Search returns a page of conversations, most recent first, with at least
// one message whose subject, body or sender contains q. Matching ignores case.
// An empty query matches every conversation.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	page, limit := ParsePaginationParams(r, defaultConversationsPerPage)

	var response *models.ConversationsResponse
	h.store.View(func(g *store.Graph) {
		all := g.Conversations()
		if query == "" {
			response = BuildPaginationResponse(all, page, limit)
			return
		}

		hits := make(map[string]bool)
		for _, m := range g.FindMessages(func(m *models.Message) bool { return matches(m, query) }) {
			hits[m.ConversationID] = true
		}
		matched := make([]*models.Conversation, 0, len(hits))
		for _, c := range all {
			if hits[c.ID] {
				matched = append(matched, c)
			}
		}
		response = BuildPaginationResponse(matched, page, limit)
	})

	WriteJSONResponse(w, response)
}

func matches(m *models.Message, query string) bool {
	for _, field := range []string{m.Subject, m.BodyText, m.From.Name, m.From.Email} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
